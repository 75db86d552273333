package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"reseller-ledger/internal/core/domain"
	"reseller-ledger/internal/core/ports"
	"reseller-ledger/internal/core/ports/mocks"
	"reseller-ledger/internal/metrics"
	"reseller-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

type reconcilerMocks struct {
	guard      *mocks.MockWebhookEventGuard
	orderRepo  *mocks.MockOrderRepository
	payRepo    *mocks.MockPaymentTransactionRepository
	eventRepo  *mocks.MockWebhookEventRepository
	transactor *mocks.MockDBTransactor
}

func newMockedReconciler(t *testing.T, cfg WebhookConfig) (*WebhookReconciler, reconcilerMocks) {
	ctrl := gomock.NewController(t)
	m := reconcilerMocks{
		guard:      mocks.NewMockWebhookEventGuard(ctrl),
		orderRepo:  mocks.NewMockOrderRepository(ctrl),
		payRepo:    mocks.NewMockPaymentTransactionRepository(ctrl),
		eventRepo:  mocks.NewMockWebhookEventRepository(ctrl),
		transactor: mocks.NewMockDBTransactor(ctrl),
	}
	r := NewWebhookReconciler(cfg, NewHMACSignatureService(), m.guard, nil, nil, nil,
		m.orderRepo, m.payRepo, m.eventRepo, m.transactor, nil, newTestLogger())
	return r, m
}

const approvedEvent = `{"event":"transaction.updated","data":{"transaction":{"id":"tx-1","status":"APPROVED","reference":"ORD-1","amount_in_cents":900000}}}`

func signed(body string) ([]byte, string) {
	return []byte(body), NewHMACSignatureService().Sign(testEventsSecret, body)
}

func TestWebhookReconciler_DuplicateFromGuard(t *testing.T) {
	r, m := newMockedReconciler(t, WebhookConfig{EventsSecret: testEventsSecret, EventTTL: time.Hour})
	payload, sig := signed(approvedEvent)

	m.guard.EXPECT().MarkIfNew(gomock.Any(), "transaction.updated:tx-1:APPROVED", time.Hour).Return(false, nil)

	outcome, err := r.HandleWebhookEvent(context.Background(), payload, sig)
	require.NoError(t, err)
	assert.Equal(t, ports.WebhookDuplicate, outcome)
}

func TestWebhookReconciler_StorageFailureReleasesGuard(t *testing.T) {
	r, m := newMockedReconciler(t, WebhookConfig{EventsSecret: testEventsSecret, EventTTL: time.Hour})
	payload, sig := signed(approvedEvent)
	key := "transaction.updated:tx-1:APPROVED"

	m.guard.EXPECT().MarkIfNew(gomock.Any(), key, time.Hour).Return(true, nil)
	m.transactor.EXPECT().Begin(gomock.Any()).Return(&mockTx{}, nil)
	m.orderRepo.EXPECT().GetByReferenceForUpdate(gomock.Any(), gomock.Any(), "ORD-1").Return(nil, errors.New("connection reset"))
	m.guard.EXPECT().Forget(gomock.Any(), key).Return(nil)

	_, err := r.HandleWebhookEvent(context.Background(), payload, sig)
	require.Error(t, err)
	assert.True(t, apperror.IsKind(err, apperror.KindInternal), "storage faults are surfaced so the gateway retries")
}

func TestWebhookReconciler_GuardErrorFallsThroughToHistory(t *testing.T) {
	r, m := newMockedReconciler(t, WebhookConfig{EventsSecret: testEventsSecret, EventTTL: time.Hour})
	payload, sig := signed(approvedEvent)
	order := &domain.Order{Reference: "ORD-1", Status: domain.OrderStatusPaid, PaymentStatus: domain.PaymentStatusApproved}

	m.guard.EXPECT().MarkIfNew(gomock.Any(), gomock.Any(), gomock.Any()).Return(false, errors.New("redis down"))
	m.transactor.EXPECT().Begin(gomock.Any()).Return(&mockTx{}, nil)
	m.orderRepo.EXPECT().GetByReferenceForUpdate(gomock.Any(), gomock.Any(), "ORD-1").Return(order, nil)
	m.eventRepo.EXPECT().Append(gomock.Any(), gomock.Any(), gomock.Any()).Return(false, nil)

	outcome, err := r.HandleWebhookEvent(context.Background(), payload, sig)
	require.NoError(t, err)
	assert.Equal(t, ports.WebhookDuplicate, outcome)
}

func TestWebhookReconciler_UnknownOrderIsAcknowledged(t *testing.T) {
	r, m := newMockedReconciler(t, WebhookConfig{EventsSecret: testEventsSecret, EventTTL: time.Hour})
	payload, sig := signed(approvedEvent)

	m.guard.EXPECT().MarkIfNew(gomock.Any(), gomock.Any(), gomock.Any()).Return(true, nil)
	m.transactor.EXPECT().Begin(gomock.Any()).Return(&mockTx{}, nil)
	m.orderRepo.EXPECT().GetByReferenceForUpdate(gomock.Any(), gomock.Any(), "ORD-1").Return(nil, nil)

	outcome, err := r.HandleWebhookEvent(context.Background(), payload, sig)
	require.NoError(t, err)
	assert.Equal(t, ports.WebhookIgnored, outcome)
}

func TestWebhookReconciler_PaymentLinkEventFindsOrderByLink(t *testing.T) {
	r, m := newMockedReconciler(t, WebhookConfig{EventsSecret: testEventsSecret, EventTTL: time.Hour})
	payload, sig := signed(`{"event":"payment_link.updated","data":{"payment_link":{"id":"link-9"}}}`)

	m.guard.EXPECT().MarkIfNew(gomock.Any(), "payment_link.updated:link-9:", gomock.Any()).Return(true, nil)
	m.transactor.EXPECT().Begin(gomock.Any()).Return(&mockTx{}, nil)
	m.orderRepo.EXPECT().GetByPaymentLinkIDForUpdate(gomock.Any(), gomock.Any(), "link-9").Return(&domain.Order{Reference: "ORD-1"}, nil)
	m.eventRepo.EXPECT().Append(gomock.Any(), gomock.Any(), gomock.Any()).Return(true, nil)

	outcome, err := r.HandleWebhookEvent(context.Background(), payload, sig)
	require.NoError(t, err)
	assert.Equal(t, ports.WebhookIgnored, outcome, "link updates are recorded but carry no payment status")
}

func TestWebhookReconciler_RejectsBeforeTouchingState(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		sig     func(body string) string
		outcome ports.WebhookOutcome
		kind    apperror.Kind
	}{
		{
			name: "bad signature",
			body: approvedEvent,
			sig:  func(string) string { return "deadbeef" },
			kind: apperror.KindInvalidSignature,
		},
		{
			name: "malformed json",
			body: `{"event":`,
			sig:  func(b string) string { return NewHMACSignatureService().Sign(testEventsSecret, b) },
			kind: apperror.KindValidation,
		},
		{
			name: "missing identity",
			body: `{"event":"transaction.updated","data":{"transaction":{"status":"APPROVED"}}}`,
			sig:  func(b string) string { return NewHMACSignatureService().Sign(testEventsSecret, b) },
			kind: apperror.KindValidation,
		},
		{
			name:    "unsupported event",
			body:    `{"event":"nequi_token.updated","data":{}}`,
			sig:     func(b string) string { return NewHMACSignatureService().Sign(testEventsSecret, b) },
			outcome: ports.WebhookIgnored,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, _ := newMockedReconciler(t, WebhookConfig{EventsSecret: testEventsSecret, EventTTL: time.Hour})
			outcome, err := r.HandleWebhookEvent(context.Background(), []byte(tt.body), tt.sig(tt.body))
			if tt.kind != "" {
				require.Error(t, err)
				assert.True(t, apperror.IsKind(err, tt.kind))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.outcome, outcome)
		})
	}
}

func TestWebhookReconciler_SkipSignature(t *testing.T) {
	r, m := newMockedReconciler(t, WebhookConfig{SkipSignature: true, EventTTL: time.Hour})
	m.guard.EXPECT().MarkIfNew(gomock.Any(), gomock.Any(), gomock.Any()).Return(false, nil)

	outcome, err := r.HandleWebhookEvent(context.Background(), []byte(approvedEvent), "")
	require.NoError(t, err)
	assert.Equal(t, ports.WebhookDuplicate, outcome)
}

func TestWebhookReconciler_PaymentMethodShapes(t *testing.T) {
	tests := []struct {
		raw  string
		want string
	}{
		{`{"payment_method_type":"NEQUI"}`, "NEQUI"},
		{`{"payment_method":"PSE"}`, "PSE"},
		{`{"payment_method":{"type":"CARD","extra":{}}}`, "CARD"},
		{`{}`, ""},
	}
	for _, tt := range tests {
		var p gatewayTransactionPayload
		require.NoError(t, json.Unmarshal([]byte(tt.raw), &p))
		assert.Equal(t, tt.want, p.method(), tt.raw)
	}
}

func TestWebhookReconciler_SyncPaymentAppliesGatewayStatus(t *testing.T) {
	h := newLedgerHarness(t)
	ctrl := gomock.NewController(t)
	gateway := mocks.NewMockPaymentGateway(ctrl)
	r := NewWebhookReconciler(WebhookConfig{EventsSecret: testEventsSecret}, h.sig, nil, gateway, h.sales, h.settlement,
		h.orderRepo, h.paymentRepo, h.eventRepo, h.store, h.metrics, newTestLogger())
	ctx := context.Background()
	order := h.createOrder(t, "ORD-SYNC", 2, nil)

	gateway.EXPECT().FindTransactionByReference(gomock.Any(), "ORD-SYNC").Return(&ports.GatewayTransaction{
		ID: "tx-77", Reference: "ORD-SYNC", Status: domain.GatewayStatusApproved, PaymentMethod: "CARD", Amount: dec("90000"),
	}, nil)

	synced, err := r.SyncPayment(ctx, h.sellerID, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusApproved, synced.PaymentStatus)
	assert.True(t, h.wallet(t).PendingBalance.Equal(dec("8000")))

	payment, err := h.paymentRepo.GetByOrderID(ctx, order.ID)
	require.NoError(t, err)
	require.NotNil(t, payment.GatewayTransactionID)
	assert.Equal(t, "tx-77", *payment.GatewayTransactionID)
	assert.Equal(t, "CARD", payment.PaymentMethod)

	// Once the gateway id is known the transaction is fetched directly.
	gateway.EXPECT().GetTransaction(gomock.Any(), "tx-77").Return(&ports.GatewayTransaction{
		ID: "tx-77", Status: domain.GatewayStatusApproved,
	}, nil)
	_, err = r.SyncPayment(ctx, h.sellerID, order.ID)
	require.NoError(t, err)
	assert.True(t, h.wallet(t).PendingBalance.Equal(dec("8000")), "re-syncing the same status is a no-op")
}

func TestWebhookReconciler_SyncPaymentErrors(t *testing.T) {
	h := newLedgerHarness(t)
	ctrl := gomock.NewController(t)
	gateway := mocks.NewMockPaymentGateway(ctrl)
	r := NewWebhookReconciler(WebhookConfig{}, h.sig, nil, gateway, h.sales, h.settlement,
		h.orderRepo, h.paymentRepo, h.eventRepo, h.store, nil, newTestLogger())
	ctx := context.Background()
	order := h.createOrder(t, "ORD-SYNC", 1, nil)

	gateway.EXPECT().FindTransactionByReference(gomock.Any(), "ORD-SYNC").Return(nil, errors.New("timeout"))
	_, err := r.SyncPayment(ctx, h.sellerID, order.ID)
	assert.True(t, apperror.HasCode(err, "SYS_002"))

	gateway.EXPECT().FindTransactionByReference(gomock.Any(), "ORD-SYNC").Return(nil, nil)
	got, err := r.SyncPayment(ctx, h.sellerID, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.PaymentStatusPending, got.PaymentStatus)

	_, err = r.SyncPayment(ctx, h.sellerID, uuid.New())
	assert.True(t, apperror.IsKind(err, apperror.KindNotFound))

	_, err = h.webhooks.SyncPayment(ctx, h.sellerID, order.ID)
	assert.True(t, apperror.HasCode(err, "SYS_002"), "no gateway configured")
}

func TestWebhookReconciler_LostCommitRecordsNoCredit(t *testing.T) {
	ctrl := gomock.NewController(t)
	guard := mocks.NewMockWebhookEventGuard(ctrl)
	orderRepo := mocks.NewMockOrderRepository(ctrl)
	payRepo := mocks.NewMockPaymentTransactionRepository(ctrl)
	eventRepo := mocks.NewMockWebhookEventRepository(ctrl)
	walletRepo := mocks.NewMockWalletRepository(ctrl)
	movementRepo := mocks.NewMockMovementRepository(ctrl)
	sellerRepo := mocks.NewMockSellerRepository(ctrl)
	transactor := mocks.NewMockDBTransactor(ctrl)

	reg := prometheus.NewRegistry()
	m := metrics.NewLedger(reg)
	sales := NewSaleProcessor(newTestCalculator(t), walletRepo, movementRepo, sellerRepo, nil, orderRepo, transactor, dec("50000"), m, newTestLogger())
	r := NewWebhookReconciler(WebhookConfig{EventsSecret: testEventsSecret, EventTTL: time.Hour}, NewHMACSignatureService(), guard, nil,
		sales, nil, orderRepo, payRepo, eventRepo, transactor, m, newTestLogger())

	sellerID := uuid.New()
	order := &domain.Order{
		ID: uuid.New(), SellerID: sellerID, Reference: "ORD-1",
		Items:         []domain.OrderItem{{ProductID: uuid.New(), Name: "Serum", Quantity: 2, UnitPrice: dec("45000"), Commission: dec("4000"), Points: 9}},
		Status:        domain.OrderStatusPaymentPending,
		PaymentStatus: domain.PaymentStatusPending,
	}
	order.RecalculateTotals()
	payload, sig := signed(approvedEvent)

	guard.EXPECT().MarkIfNew(gomock.Any(), gomock.Any(), time.Hour).Return(true, nil)
	guard.EXPECT().Forget(gomock.Any(), gomock.Any()).Return(nil)
	transactor.EXPECT().Begin(gomock.Any()).Return(&failingCommitTx{}, nil)
	orderRepo.EXPECT().GetByReferenceForUpdate(gomock.Any(), gomock.Any(), "ORD-1").Return(order, nil)
	eventRepo.EXPECT().Append(gomock.Any(), gomock.Any(), gomock.Any()).Return(true, nil)
	payRepo.EXPECT().GetByOrderIDForUpdate(gomock.Any(), gomock.Any(), order.ID).Return(nil, nil)
	walletRepo.EXPECT().GetOrCreateForUpdate(gomock.Any(), gomock.Any(), gomock.Any()).
		Return(domain.NewWallet(sellerID, dec("50000"), time.Now().UTC()), nil)
	movementRepo.EXPECT().ExistsForOrder(gomock.Any(), gomock.Any(), order.ID, gomock.Any()).Return(false, nil).Times(2)
	movementRepo.EXPECT().Create(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).Times(2)
	walletRepo.EXPECT().Update(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	sellerRepo.EXPECT().GetByIDForUpdate(gomock.Any(), gomock.Any(), sellerID).Return(&domain.Seller{ID: sellerID}, nil)
	sellerRepo.EXPECT().UpdateStats(gomock.Any(), gomock.Any(), sellerID, gomock.Any()).Return(nil)
	orderRepo.EXPECT().Update(gomock.Any(), gomock.Any(), order).Return(nil)

	_, err := r.HandleWebhookEvent(context.Background(), payload, sig)
	require.Error(t, err)

	assert.Zero(t, gatherCounter(t, reg, "ledger_commission_amount_total", "", ""))
	assert.Zero(t, gatherCounter(t, reg, "ledger_points_credited_total", "", ""))
	assert.Equal(t, float64(1), gatherCounter(t, reg, "ledger_webhook_events_total", "outcome", "failed"))
}
