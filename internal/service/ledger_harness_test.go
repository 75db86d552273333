package service

import (
	"context"
	"fmt"
	"testing"
	"time"

	"reseller-ledger/internal/adapter/storage/memory"
	"reseller-ledger/internal/core/domain"
	"reseller-ledger/internal/core/ports"
	"reseller-ledger/internal/metrics"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

const testEventsSecret = "test_events_secret"

// ledgerHarness wires the real services over the in-memory store.
type ledgerHarness struct {
	store    *memory.Store
	sellerID uuid.UUID
	product  domain.Product

	walletRepo   *memory.WalletRepo
	movementRepo *memory.MovementRepo
	orderRepo    *memory.OrderRepo
	paymentRepo  *memory.PaymentTransactionRepo
	eventRepo    *memory.WebhookEventRepo

	sales       *SaleProcessor
	settlement  *SettlementEngine
	withdrawals *WithdrawalProcessor
	webhooks    *WebhookReconciler
	orders      ports.OrderService
	wallets     ports.WalletService

	sig     *HMACSignatureService
	metrics *metrics.Ledger
	reg     *prometheus.Registry
}

func newLedgerHarness(t *testing.T) *ledgerHarness {
	t.Helper()

	store := memory.New()
	h := &ledgerHarness{
		store:    store,
		sellerID: uuid.New(),
		product: domain.Product{
			ID:        uuid.New(),
			Name:      "Serum",
			Price:     dec("45000"),
			CostPrice: decPtr("25000"),
			IsActive:  true,
		},
		walletRepo:   memory.NewWalletRepo(store),
		movementRepo: memory.NewMovementRepo(store),
		orderRepo:    memory.NewOrderRepo(store),
		paymentRepo:  memory.NewPaymentTransactionRepo(store),
		eventRepo:    memory.NewWebhookEventRepo(store),
		sig:          NewHMACSignatureService(),
		reg:          prometheus.NewRegistry(),
	}
	h.metrics = metrics.NewLedger(h.reg)

	now := time.Now().UTC()
	store.PutSeller(domain.Seller{ID: h.sellerID, Name: "Ana", IsActive: true, CreatedAt: now, UpdatedAt: now})
	store.PutProduct(h.product)

	calc := newTestCalculator(t)
	enc := newTestEncryption(t)
	sellerRepo := memory.NewSellerRepo(store)
	productRepo := memory.NewProductRepo(store)
	minWithdrawal := dec("50000")
	log := newTestLogger()

	h.sales = NewSaleProcessor(calc, h.walletRepo, h.movementRepo, sellerRepo, productRepo, h.orderRepo, store, minWithdrawal, h.metrics, log)
	h.settlement = NewSettlementEngine(h.sales, h.orderRepo, h.paymentRepo, h.walletRepo, h.movementRepo, store, h.metrics, log)
	h.withdrawals = NewWithdrawalProcessor(h.walletRepo, h.movementRepo, nil, enc, store, time.Hour, h.metrics, log)
	h.webhooks = NewWebhookReconciler(WebhookConfig{EventsSecret: testEventsSecret, EventTTL: time.Hour},
		h.sig, nil, nil, h.sales, h.settlement, h.orderRepo, h.paymentRepo, h.eventRepo, store, h.metrics, log)
	h.orders = NewOrderService(calc, productRepo, h.orderRepo, h.paymentRepo, nil, store, PaymentLinkConfig{Currency: "COP"}, log)
	h.wallets = NewWalletService(h.walletRepo, h.movementRepo, sellerRepo, enc, store, minWithdrawal)
	return h
}

// createOrder places an order for quantity units of the harness product.
// A non-nil commission overrides the computed per-unit commission.
func (h *ledgerHarness) createOrder(t *testing.T, reference string, quantity int, commission *string) *domain.Order {
	t.Helper()
	item := ports.OrderItemRequest{ProductID: h.product.ID, Quantity: quantity}
	if commission != nil {
		item.Commission = decPtr(*commission)
	}
	order, err := h.orders.CreateOrder(context.Background(), ports.CreateOrderRequest{
		SellerID:  h.sellerID,
		Reference: reference,
		Items:     []ports.OrderItemRequest{item},
		Customer:  domain.Customer{Name: "Luisa"},
	})
	require.NoError(t, err)
	return order
}

// webhookPayload builds a signed transaction.updated event.
func (h *ledgerHarness) webhookPayload(reference, gatewayID, status string, amountInCents int64) ([]byte, string) {
	body := fmt.Sprintf(`{"event":"transaction.updated","data":{"transaction":{"id":%q,"status":%q,"reference":%q,"payment_method_type":"CARD","amount_in_cents":%d}},"sent_at":"2026-01-10T10:00:00Z"}`,
		gatewayID, status, reference, amountInCents)
	return []byte(body), h.sig.Sign(testEventsSecret, body)
}

func (h *ledgerHarness) sendWebhook(t *testing.T, order *domain.Order, status string) (ports.WebhookOutcome, error) {
	t.Helper()
	payload, sig := h.webhookPayload(order.Reference, "tx-"+order.Reference, status, domain.ToCents(order.Total))
	return h.webhooks.HandleWebhookEvent(context.Background(), payload, sig)
}

func (h *ledgerHarness) approve(t *testing.T, order *domain.Order) {
	t.Helper()
	outcome, err := h.sendWebhook(t, order, domain.GatewayStatusApproved)
	require.NoError(t, err)
	require.Equal(t, ports.WebhookApplied, outcome)
}

func (h *ledgerHarness) deliver(t *testing.T, order *domain.Order) *ports.SettlementResult {
	t.Helper()
	res, err := h.settlement.ConfirmDelivery(context.Background(), ports.DeliveryRequest{
		SellerID: h.sellerID, OrderID: order.ID, ReceivedBy: "Luisa",
	})
	require.NoError(t, err)
	return res
}

// fund settles an order whose commission is exactly amount, making it available.
func (h *ledgerHarness) fund(t *testing.T, reference, amount string) {
	t.Helper()
	order := h.createOrder(t, reference, 1, &amount)
	h.approve(t, order)
	h.deliver(t, order)
}

func (h *ledgerHarness) wallet(t *testing.T) domain.Wallet {
	t.Helper()
	w, err := h.walletRepo.GetBySellerID(context.Background(), h.sellerID)
	require.NoError(t, err)
	require.NotNil(t, w)
	return *w
}

func (h *ledgerHarness) order(t *testing.T, id uuid.UUID) domain.Order {
	t.Helper()
	o, err := h.orderRepo.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, o)
	return *o
}

func (h *ledgerHarness) movements(t *testing.T, typ domain.MovementType) []domain.Movement {
	t.Helper()
	list, _, err := h.movementRepo.List(context.Background(), domain.MovementFilter{SellerID: h.sellerID, Type: &typ})
	require.NoError(t, err)
	return list
}

// counter reads a counter from the harness registry. An empty label matches any series.
func (h *ledgerHarness) counter(t *testing.T, name, label, value string) float64 {
	t.Helper()
	return gatherCounter(t, h.reg, name, label, value)
}

func gatherCounter(t *testing.T, reg *prometheus.Registry, name, label, value string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	var total float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if label == "" {
				total += m.GetCounter().GetValue()
				continue
			}
			for _, lp := range m.GetLabel() {
				if lp.GetName() == label && lp.GetValue() == value {
					total += m.GetCounter().GetValue()
				}
			}
		}
	}
	return total
}

func nequiWithdrawal(sellerID uuid.UUID, amount string) ports.WithdrawalRequest {
	return ports.WithdrawalRequest{
		SellerID: sellerID,
		Amount:   dec(amount),
		Method:   domain.PayoutMethodNequi,
		Payout:   &domain.PayoutDetails{PhoneNumber: "3001234567"},
	}
}

func productRepoFor(h *ledgerHarness) ports.ProductRepository {
	return memory.NewProductRepo(h.store)
}
