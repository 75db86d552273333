package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"reseller-ledger/internal/core/domain"
	"reseller-ledger/internal/core/ports"
	"reseller-ledger/internal/metrics"
	"reseller-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
)

// WebhookConfig holds what the reconciler needs from the gateway settings.
type WebhookConfig struct {
	EventsSecret  string
	SkipSignature bool // never set in release mode
	EventTTL      time.Duration
}

// gatewayEvent is the inbound webhook body. Only the fields the ledger uses are decoded.
type gatewayEvent struct {
	Event string `json:"event"`
	Data  struct {
		Transaction *gatewayTransactionPayload `json:"transaction"`
		PaymentLink *struct {
			ID        string `json:"id"`
			Reference string `json:"reference"`
		} `json:"payment_link"`
	} `json:"data"`
}

type gatewayTransactionPayload struct {
	ID                string          `json:"id"`
	Status            string          `json:"status"`
	Reference         string          `json:"reference"`
	PaymentMethod     json.RawMessage `json:"payment_method"`
	PaymentMethodType string          `json:"payment_method_type"`
	AmountInCents     int64           `json:"amount_in_cents"`
	PaymentLinkID     string          `json:"payment_link_id"`
}

// method returns the payment method name, whether sent as a string or as an object with a type.
func (t *gatewayTransactionPayload) method() string {
	if t.PaymentMethodType != "" {
		return t.PaymentMethodType
	}
	var s string
	if err := json.Unmarshal(t.PaymentMethod, &s); err == nil {
		return s
	}
	var obj struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(t.PaymentMethod, &obj); err == nil {
		return obj.Type
	}
	return ""
}

// WebhookReconciler applies gateway payment state to orders exactly once per
// logical event. It implements ports.WebhookService.
type WebhookReconciler struct {
	cfg         WebhookConfig
	sigSvc      ports.SignatureService
	guard       ports.WebhookEventGuard
	gateway     ports.PaymentGateway
	sales       *SaleProcessor
	settlement  *SettlementEngine
	orderRepo   ports.OrderRepository
	paymentRepo ports.PaymentTransactionRepository
	eventRepo   ports.WebhookEventRepository
	transactor  ports.DBTransactor
	metrics     *metrics.Ledger
	log         zerolog.Logger
}

// NewWebhookReconciler creates a new WebhookReconciler.
func NewWebhookReconciler(
	cfg WebhookConfig,
	sigSvc ports.SignatureService,
	guard ports.WebhookEventGuard,
	gateway ports.PaymentGateway,
	sales *SaleProcessor,
	settlement *SettlementEngine,
	orderRepo ports.OrderRepository,
	paymentRepo ports.PaymentTransactionRepository,
	eventRepo ports.WebhookEventRepository,
	transactor ports.DBTransactor,
	m *metrics.Ledger,
	log zerolog.Logger,
) *WebhookReconciler {
	return &WebhookReconciler{
		cfg:         cfg,
		sigSvc:      sigSvc,
		guard:       guard,
		gateway:     gateway,
		sales:       sales,
		settlement:  settlement,
		orderRepo:   orderRepo,
		paymentRepo: paymentRepo,
		eventRepo:   eventRepo,
		transactor:  transactor,
		metrics:     m,
		log:         log,
	}
}

// HandleWebhookEvent verifies, deduplicates and applies one gateway event.
// Duplicates and events the ledger does not act on are acknowledged; storage
// faults are returned so the gateway redelivers.
func (r *WebhookReconciler) HandleWebhookEvent(ctx context.Context, payload []byte, signature string) (ports.WebhookOutcome, error) {
	defer r.metrics.ObserveDuration("webhook", time.Now())

	if !r.cfg.SkipSignature && !r.sigSvc.Verify(r.cfg.EventsSecret, string(payload), signature) {
		r.metrics.IncWebhook("invalid_signature")
		return "", apperror.ErrInvalidSignature()
	}

	var evt gatewayEvent
	if err := json.Unmarshal(payload, &evt); err != nil {
		r.metrics.IncWebhook("malformed")
		return "", apperror.Validation("malformed webhook payload")
	}

	var (
		txn       = evt.Data.Transaction
		reference string
		linkID    string
		gatewayID string
		status    string
	)
	if txn != nil {
		reference, linkID, gatewayID, status = txn.Reference, txn.PaymentLinkID, txn.ID, txn.Status
	}
	if pl := evt.Data.PaymentLink; pl != nil {
		if linkID == "" {
			linkID = pl.ID
		}
		if reference == "" {
			reference = pl.Reference
		}
		if gatewayID == "" {
			gatewayID = pl.ID
		}
	}

	switch {
	case evt.Event != domain.EventTransactionUpdated && evt.Event != domain.EventPaymentLinkUpdated:
		r.log.Warn().Str("event", evt.Event).Msg("ignoring unsupported webhook event")
		r.metrics.IncWebhook(string(ports.WebhookIgnored))
		return ports.WebhookIgnored, nil
	case gatewayID == "" || (reference == "" && linkID == ""):
		r.metrics.IncWebhook("malformed")
		return "", apperror.Validation("webhook payload is missing transaction identity")
	}

	key := domain.BuildWebhookEventKey(evt.Event, gatewayID, status)
	if !r.markIfNew(ctx, key) {
		r.metrics.IncWebhook(string(ports.WebhookDuplicate))
		return ports.WebhookDuplicate, nil
	}

	rec := &domain.WebhookEventRecord{
		ID:                   uuid.New(),
		Event:                evt.Event,
		GatewayTransactionID: gatewayID,
		GatewayStatus:        status,
		Payload:              payload,
		ReceivedAt:           time.Now().UTC(),
	}
	outcome, err := r.apply(ctx, rec, reference, linkID, txn)
	if err != nil {
		r.forget(ctx, key)
		r.metrics.IncWebhook("failed")
		r.log.Error().Err(err).Str("key", key).Msg("webhook processing failed")
		return "", err
	}

	r.metrics.IncWebhook(string(outcome))
	r.log.Info().
		Str("event", evt.Event).
		Str("reference", reference).
		Str("status", status).
		Str("outcome", string(outcome)).
		Msg("webhook handled")
	return outcome, nil
}

// markIfNew consults the fast dedup layer. Without a guard, or when it is
// unavailable, the event history in the database decides.
func (r *WebhookReconciler) markIfNew(ctx context.Context, key string) bool {
	if r.guard == nil {
		return true
	}
	fresh, err := r.guard.MarkIfNew(ctx, key, r.cfg.EventTTL)
	if err != nil {
		r.log.Warn().Err(err).Str("key", key).Msg("webhook guard unavailable, falling through to DB")
		return true
	}
	return fresh
}

func (r *WebhookReconciler) forget(ctx context.Context, key string) {
	if r.guard == nil {
		return
	}
	if err := r.guard.Forget(ctx, key); err != nil {
		r.log.Warn().Err(err).Str("key", key).Msg("failed to release webhook guard")
	}
}

func (r *WebhookReconciler) apply(ctx context.Context, rec *domain.WebhookEventRecord, reference, linkID string, txn *gatewayTransactionPayload) (ports.WebhookOutcome, error) {
	dbTx, err := r.transactor.Begin(ctx)
	if err != nil {
		return "", apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	var order *domain.Order
	if reference != "" {
		order, err = r.orderRepo.GetByReferenceForUpdate(ctx, dbTx, reference)
	}
	if err == nil && order == nil && linkID != "" {
		order, err = r.orderRepo.GetByPaymentLinkIDForUpdate(ctx, dbTx, linkID)
	}
	if err != nil {
		return "", apperror.InternalError(fmt.Errorf("lock order: %w", err))
	}
	if order == nil {
		r.log.Warn().Str("reference", reference).Str("payment_link_id", linkID).Msg("webhook for unknown order")
		return ports.WebhookIgnored, nil
	}

	rec.OrderID = order.ID
	inserted, err := r.eventRepo.Append(ctx, dbTx, rec)
	if err != nil {
		return "", apperror.InternalError(fmt.Errorf("append webhook event: %w", err))
	}
	if !inserted {
		return ports.WebhookDuplicate, nil
	}

	outcome := ports.WebhookIgnored
	var applied appliedTransition
	if txn != nil {
		gt := &ports.GatewayTransaction{
			ID:            txn.ID,
			Reference:     txn.Reference,
			Status:        txn.Status,
			PaymentMethod: txn.method(),
			Amount:        domain.FromCents(txn.AmountInCents),
		}
		applied, err = r.transition(ctx, dbTx, order, gt)
		if err != nil {
			return "", err
		}
		if applied.changed {
			outcome = ports.WebhookApplied
		}
	}

	if err := dbTx.Commit(ctx); err != nil {
		return "", apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}
	applied.record(r.metrics)
	return outcome, nil
}

// SyncPayment asks the gateway for the order's payment state and applies it
// the same way a webhook would.
func (r *WebhookReconciler) SyncPayment(ctx context.Context, sellerID, orderID uuid.UUID) (*domain.Order, error) {
	if r.gateway == nil {
		return nil, apperror.ErrGatewayFailure(errors.New("payment gateway is not configured"))
	}
	order, err := r.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get order: %w", err))
	}
	if order == nil || (sellerID != uuid.Nil && order.SellerID != sellerID) {
		return nil, apperror.ErrNotFound("order")
	}
	payment, err := r.paymentRepo.GetByOrderID(ctx, orderID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get payment: %w", err))
	}

	var gt *ports.GatewayTransaction
	if payment != nil && payment.GatewayTransactionID != nil {
		gt, err = r.gateway.GetTransaction(ctx, *payment.GatewayTransactionID)
	} else {
		gt, err = r.gateway.FindTransactionByReference(ctx, order.Reference)
	}
	if err != nil {
		return nil, apperror.ErrGatewayFailure(err)
	}
	if gt == nil {
		return order, nil
	}

	dbTx, err := r.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	order, err = r.orderRepo.GetByIDForUpdate(ctx, dbTx, orderID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock order: %w", err))
	}
	if order == nil {
		return nil, apperror.ErrNotFound("order")
	}
	applied, err := r.transition(ctx, dbTx, order, gt)
	if err != nil {
		return nil, err
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}
	applied.record(r.metrics)
	return order, nil
}

// appliedTransition is what a payment transition changed. Its ledger effects
// reach the metrics only after the transaction commits.
type appliedTransition struct {
	changed  bool
	credit   *ports.SaleResult
	reversal *domain.Movement
}

func (a appliedTransition) record(m *metrics.Ledger) {
	if a.credit != nil {
		m.AddCommission("pending", a.credit.Commission)
		m.AddPoints(a.credit.Points)
	}
	if a.reversal != nil {
		m.AddCommission("reversed", a.reversal.Amount.Neg())
	}
}

// transition maps a gateway status onto the locked order. changed is false
// when the order already reflects that status or the event is stale.
func (r *WebhookReconciler) transition(ctx context.Context, tx pgx.Tx, order *domain.Order, gt *ports.GatewayTransaction) (appliedTransition, error) {
	var applied appliedTransition
	next, ok := domain.PaymentStatusFromGateway(gt.Status)
	if !ok {
		r.log.Warn().Str("order_id", order.ID.String()).Str("status", gt.Status).Msg("unknown gateway status")
		return applied, nil
	}
	if order.PaymentStatus == next {
		return applied, nil
	}

	payment, err := r.paymentRepo.GetByOrderIDForUpdate(ctx, tx, order.ID)
	if err != nil {
		return applied, apperror.InternalError(fmt.Errorf("lock payment: %w", err))
	}

	now := time.Now().UTC()
	switch next {
	case domain.PaymentStatusApproved:
		if order.Status.IsTerminal() {
			r.log.Warn().Str("order_id", order.ID.String()).Str("order_status", string(order.Status)).
				Msg("approved payment for closed order")
			return applied, nil
		}
		if gt.Amount.IsPositive() && !gt.Amount.Equal(order.Total) {
			r.log.Warn().Str("order_id", order.ID.String()).Str("order_total", order.Total.String()).
				Str("paid", gt.Amount.String()).Msg("approved amount differs from order total")
		}
		order.PaymentStatus = next
		if order.Status.CanTransitionTo(domain.OrderStatusPaid) {
			order.Status = domain.OrderStatusPaid
		}
		credit, err := r.sales.creditOrderTx(ctx, tx, order)
		if err != nil {
			return applied, err
		}
		applied.credit = credit

	case domain.PaymentStatusDeclined, domain.PaymentStatusVoided:
		if order.Status == domain.OrderStatusDelivered {
			r.log.Warn().Str("order_id", order.ID.String()).Str("status", gt.Status).
				Msg("payment reversal for delivered order")
			return applied, nil
		}
		order.PaymentStatus = next
		if !order.Status.IsTerminal() {
			reversal, err := r.settlement.closeOrderTx(ctx, tx, order, domain.OrderStatusCancelled, "payment "+string(next))
			if err != nil {
				return applied, err
			}
			applied.reversal = reversal
		}

	case domain.PaymentStatusPending:
		if order.PaymentStatus.IsFinal() {
			return applied, nil
		}
		order.PaymentStatus = next
		if order.Status.CanTransitionTo(domain.OrderStatusPaymentPending) {
			order.Status = domain.OrderStatusPaymentPending
		}
	}

	order.UpdatedAt = now
	if err := r.orderRepo.Update(ctx, tx, order); err != nil {
		return applied, apperror.InternalError(fmt.Errorf("update order: %w", err))
	}

	if payment != nil {
		payment.Status = order.PaymentStatus
		payment.OrderStatus = order.Status
		if gt.ID != "" {
			id := gt.ID
			payment.GatewayTransactionID = &id
		}
		if gt.PaymentMethod != "" {
			payment.PaymentMethod = gt.PaymentMethod
		}
		payment.UpdatedAt = now
		if err := r.paymentRepo.Update(ctx, tx, payment); err != nil {
			return applied, apperror.InternalError(fmt.Errorf("update payment: %w", err))
		}
	}

	r.log.Info().
		Str("order_id", order.ID.String()).
		Str("payment_status", string(order.PaymentStatus)).
		Str("order_status", string(order.Status)).
		Msg("payment status applied")
	applied.changed = true
	return applied, nil
}
