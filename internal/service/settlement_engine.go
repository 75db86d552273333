package service

import (
	"context"
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

// SettlementEngine moves commissions from pending to available balance on
// delivery and drives the rest of the fulfilment state machine.
// It implements ports.SettlementService.
type SettlementEngine struct {
	sales        *SaleProcessor
	orderRepo    ports.OrderRepository
	paymentRepo  ports.PaymentTransactionRepository
	walletRepo   ports.WalletRepository
	movementRepo ports.MovementRepository
	transactor   ports.DBTransactor
	metrics      *metrics.Ledger
	log          zerolog.Logger
}

// NewSettlementEngine creates a new SettlementEngine.
func NewSettlementEngine(
	sales *SaleProcessor,
	orderRepo ports.OrderRepository,
	paymentRepo ports.PaymentTransactionRepository,
	walletRepo ports.WalletRepository,
	movementRepo ports.MovementRepository,
	transactor ports.DBTransactor,
	m *metrics.Ledger,
	log zerolog.Logger,
) *SettlementEngine {
	return &SettlementEngine{
		sales:        sales,
		orderRepo:    orderRepo,
		paymentRepo:  paymentRepo,
		walletRepo:   walletRepo,
		movementRepo: movementRepo,
		transactor:   transactor,
		metrics:      m,
		log:          log,
	}
}

// ConfirmDelivery settles an order's commission. The order row is locked for
// the whole operation, so a concurrent or repeated confirmation sees the order
// already delivered and fails without touching the wallet.
func (e *SettlementEngine) ConfirmDelivery(ctx context.Context, req ports.DeliveryRequest) (*ports.SettlementResult, error) {
	defer e.metrics.ObserveDuration("confirm_delivery", time.Now())

	result, err := e.confirmDelivery(ctx, req)
	if err != nil {
		if apperror.IsKind(err, apperror.KindConflict) {
			e.metrics.IncSettlement("rejected")
		} else {
			e.metrics.IncSettlement("failed")
		}
		return nil, err
	}
	e.metrics.IncSettlement("settled")
	e.metrics.AddCommission("settled", result.DepositedAmount)
	e.metrics.AddPoints(result.DepositedPoints)
	return result, nil
}

func (e *SettlementEngine) confirmDelivery(ctx context.Context, req ports.DeliveryRequest) (*ports.SettlementResult, error) {
	dbTx, err := e.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	order, err := e.lockOwnedOrder(ctx, dbTx, req.SellerID, req.OrderID)
	if err != nil {
		return nil, err
	}

	switch {
	case order.PaymentStatus != domain.PaymentStatusApproved:
		return nil, apperror.ErrPaymentNotApproved()
	case order.Status == domain.OrderStatusDelivered:
		return nil, apperror.ErrAlreadyDelivered()
	case order.CommissionStatus == domain.CommissionStatusApproved:
		return nil, apperror.ErrCommissionAlreadySettled()
	case !order.CommissionTotal.IsPositive():
		return nil, apperror.ErrNoCommission()
	case !order.Status.CanTransitionTo(domain.OrderStatusDelivered):
		return nil, apperror.ErrInvalidTransition(string(order.Status), string(domain.OrderStatusDelivered))
	}

	wallet, err := e.sales.lockWallet(ctx, dbTx, order.SellerID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	amount := order.CommissionTotal
	prevBalance, prevPending := wallet.Balance, wallet.PendingBalance

	_, shortfall, err := wallet.Settle(amount)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("settle wallet: %w", err))
	}
	if shortfall.IsPositive() {
		e.metrics.IncShortfall()
		e.log.Warn().
			Str("order_id", order.ID.String()).
			Str("wallet_id", wallet.ID.String()).
			Str("commission", amount.String()).
			Str("pending_balance", prevPending.String()).
			Str("shortfall", shortfall.String()).
			Msg("pending balance did not cover settled commission")
	}

	var depositedPoints int64
	if !order.PointsCredited && order.PointsTotal > 0 {
		if err := wallet.CreditPoints(order.PointsTotal); err != nil {
			return nil, apperror.InternalError(fmt.Errorf("credit points: %w", err))
		}
		depositedPoints = order.PointsTotal
	}
	wallet.UpdatedAt = now

	mv := domain.NewMovement(wallet, domain.SettlementDetails{
		PreviousBalance:        prevBalance,
		NewBalance:             wallet.Balance,
		PreviousPendingBalance: prevPending,
		NewPendingBalance:      wallet.PendingBalance,
		Shortfall:              shortfall,
		DeliveredAt:            now.Format(time.RFC3339),
	}, amount, depositedPoints, domain.MovementStatusCompleted,
		fmt.Sprintf("Delivery confirmed for order %s", order.Reference), now).WithOrder(order.ID, nil)
	mv.ProcessedAt = &now
	mv.ProcessedBy = strPtr(req.SellerID.String())

	if err := saveWallet(ctx, e.walletRepo, dbTx, wallet); err != nil {
		return nil, err
	}
	if err := e.movementRepo.Create(ctx, dbTx, mv); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create settlement movement: %w", err))
	}
	if _, err := e.movementRepo.TransitionByOrder(ctx, dbTx, ports.MovementTransition{
		OrderID:     order.ID,
		Type:        domain.MovementCommissionEarned,
		From:        domain.MovementStatusPending,
		To:          domain.MovementStatusCompleted,
		ProcessedBy: req.SellerID.String(),
	}); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("complete commission movements: %w", err))
	}

	order.Status = domain.OrderStatusDelivered
	order.CommissionStatus = domain.CommissionStatusApproved
	order.CommissionCredited = true
	order.PointsCredited = true
	order.Delivery = &domain.DeliveryProof{
		Notes:       req.Notes,
		Photos:      req.Photos,
		Signature:   req.Signature,
		ReceivedBy:  req.ReceivedBy,
		DeliveredAt: now,
	}
	order.UpdatedAt = now
	if err := e.orderRepo.Update(ctx, dbTx, order); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update order: %w", err))
	}
	if err := e.syncPaymentOrderStatus(ctx, dbTx, order); err != nil {
		return nil, err
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	e.log.Info().
		Str("order_id", order.ID.String()).
		Str("seller_id", order.SellerID.String()).
		Str("amount", amount.String()).
		Int64("points", depositedPoints).
		Msg("delivery confirmed, commission settled")

	return &ports.SettlementResult{
		DepositedAmount: amount,
		DepositedPoints: depositedPoints,
		Shortfall:       shortfall,
		Wallet:          wallet,
		Order:           order,
	}, nil
}

// AdvanceOrder moves a paid order through confirmed, processing and shipped.
// Payment states are driven by the gateway and delivery by ConfirmDelivery.
func (e *SettlementEngine) AdvanceOrder(ctx context.Context, sellerID, orderID uuid.UUID, status domain.OrderStatus) (*domain.Order, error) {
	switch status {
	case domain.OrderStatusCancelled, domain.OrderStatusRefunded:
		return e.closeOrder(ctx, sellerID, orderID, status, "closed by seller")
	case domain.OrderStatusConfirmed, domain.OrderStatusProcessing, domain.OrderStatusShipped:
	case domain.OrderStatusDelivered:
		return nil, apperror.Validation("use delivery confirmation to deliver an order")
	default:
		return nil, apperror.Validation(fmt.Sprintf("status %q cannot be set manually", status))
	}

	dbTx, err := e.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	order, err := e.lockOwnedOrder(ctx, dbTx, sellerID, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status == status {
		return order, nil
	}
	if !order.Status.CanTransitionTo(status) {
		return nil, apperror.ErrInvalidTransition(string(order.Status), string(status))
	}

	ok, err := e.orderRepo.TransitionStatus(ctx, dbTx, order.ID, order.Status, status)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("transition order: %w", err))
	}
	if !ok {
		return nil, apperror.ErrConcurrentModification()
	}
	order.Status = status
	order.UpdatedAt = time.Now().UTC()
	if err := e.syncPaymentOrderStatus(ctx, dbTx, order); err != nil {
		return nil, err
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}
	return order, nil
}

// CancelOrder cancels a non-terminal order and reverses any unsettled credit.
// Cancelling a cancelled order is a no-op.
func (e *SettlementEngine) CancelOrder(ctx context.Context, sellerID, orderID uuid.UUID, reason string) (*domain.Order, error) {
	return e.closeOrder(ctx, sellerID, orderID, domain.OrderStatusCancelled, reason)
}

func (e *SettlementEngine) closeOrder(ctx context.Context, sellerID, orderID uuid.UUID, status domain.OrderStatus, reason string) (*domain.Order, error) {
	dbTx, err := e.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	order, err := e.lockOwnedOrder(ctx, dbTx, sellerID, orderID)
	if err != nil {
		return nil, err
	}
	if order.Status == status {
		return order, nil
	}
	reversal, err := e.closeOrderTx(ctx, dbTx, order, status, reason)
	if err != nil {
		return nil, err
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}
	if reversal != nil {
		e.metrics.AddCommission("reversed", reversal.Amount.Neg())
	}
	return order, nil
}

// closeOrderTx moves a locked order to a terminal failure status and persists it.
// It returns the adjustment movement of the reversed credit, if any.
func (e *SettlementEngine) closeOrderTx(ctx context.Context, tx pgx.Tx, order *domain.Order, status domain.OrderStatus, reason string) (*domain.Movement, error) {
	if !order.Status.CanTransitionTo(status) {
		return nil, apperror.ErrInvalidTransition(string(order.Status), string(status))
	}
	reversal, err := e.sales.reverseOrderCreditTx(ctx, tx, order, reason)
	if err != nil {
		return nil, err
	}
	if order.CommissionStatus == domain.CommissionStatusPending {
		order.CommissionStatus = domain.CommissionStatusRejected
	}
	order.Status = status
	order.UpdatedAt = time.Now().UTC()
	if err := e.orderRepo.Update(ctx, tx, order); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update order: %w", err))
	}
	if err := e.syncPaymentOrderStatus(ctx, tx, order); err != nil {
		return nil, err
	}

	e.log.Info().
		Str("order_id", order.ID.String()).
		Str("status", string(status)).
		Str("reason", reason).
		Msg("order closed")
	return reversal, nil
}

// lockOwnedOrder locks the order and hides orders of other sellers.
// A nil sellerID skips the ownership check.
func (e *SettlementEngine) lockOwnedOrder(ctx context.Context, tx pgx.Tx, sellerID, orderID uuid.UUID) (*domain.Order, error) {
	order, err := e.orderRepo.GetByIDForUpdate(ctx, tx, orderID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock order: %w", err))
	}
	if order == nil || (sellerID != uuid.Nil && order.SellerID != sellerID) {
		return nil, apperror.ErrNotFound("order")
	}
	return order, nil
}

// syncPaymentOrderStatus mirrors the order status onto its payment record.
func (e *SettlementEngine) syncPaymentOrderStatus(ctx context.Context, tx pgx.Tx, order *domain.Order) error {
	payment, err := e.paymentRepo.GetByOrderIDForUpdate(ctx, tx, order.ID)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("lock payment: %w", err))
	}
	if payment == nil {
		return nil
	}
	payment.OrderStatus = order.Status
	payment.UpdatedAt = order.UpdatedAt
	if err := e.paymentRepo.Update(ctx, tx, payment); err != nil {
		return apperror.InternalError(fmt.Errorf("update payment: %w", err))
	}
	return nil
}
