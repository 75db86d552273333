package service

import (
	"context"
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
	"github.com/shopspring/decimal"
)

// SaleProcessor credits commissions (pending) and points (immediately) for sales.
// It implements ports.SaleService.
type SaleProcessor struct {
	calc          *CommissionCalculator
	walletRepo    ports.WalletRepository
	movementRepo  ports.MovementRepository
	sellerRepo    ports.SellerRepository
	productRepo   ports.ProductRepository
	orderRepo     ports.OrderRepository
	transactor    ports.DBTransactor
	minWithdrawal decimal.Decimal
	metrics       *metrics.Ledger
	log           zerolog.Logger
}

// NewSaleProcessor creates a new SaleProcessor.
func NewSaleProcessor(
	calc *CommissionCalculator,
	walletRepo ports.WalletRepository,
	movementRepo ports.MovementRepository,
	sellerRepo ports.SellerRepository,
	productRepo ports.ProductRepository,
	orderRepo ports.OrderRepository,
	transactor ports.DBTransactor,
	minWithdrawal decimal.Decimal,
	m *metrics.Ledger,
	log zerolog.Logger,
) *SaleProcessor {
	return &SaleProcessor{
		calc:          calc,
		walletRepo:    walletRepo,
		movementRepo:  movementRepo,
		sellerRepo:    sellerRepo,
		productRepo:   productRepo,
		orderRepo:     orderRepo,
		transactor:    transactor,
		minWithdrawal: minWithdrawal,
		metrics:       m,
		log:           log,
	}
}

// ProcessSale credits a single product line sold by a seller. SaleID is the
// order the sale settles under: when no order has that id a paid single-line
// order is recorded for it, so ConfirmDelivery(SaleID) later settles the
// commission. An existing order must belong to the seller, carry the product
// and have an approved payment. Crediting the same sale twice is rejected.
func (p *SaleProcessor) ProcessSale(ctx context.Context, req ports.SaleRequest) (*ports.SaleResult, error) {
	defer p.metrics.ObserveDuration("process_sale", time.Now())

	if req.SellerID == uuid.Nil || req.SaleID == uuid.Nil {
		return nil, apperror.Validation("seller and sale ids are required")
	}

	product, err := p.productRepo.GetByID(ctx, req.ProductID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get product: %w", err))
	}
	if product == nil {
		return nil, apperror.ErrNotFound("product")
	}

	item, err := p.calc.PriceLine(product, req.Quantity, req.SalePrice, req.Commission)
	if err != nil {
		return nil, err
	}

	dbTx, err := p.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	order, err := p.orderRepo.GetByIDForUpdate(ctx, dbTx, req.SaleID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock order: %w", err))
	}
	if order == nil {
		order, err = p.recordSaleOrder(ctx, dbTx, req, item)
	} else {
		err = p.checkSaleOrder(ctx, dbTx, order, req)
	}
	if err != nil {
		return nil, err
	}

	result, err := p.creditOrderTx(ctx, dbTx, order)
	if err != nil {
		return nil, err
	}
	if err := p.orderRepo.Update(ctx, dbTx, order); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update order: %w", err))
	}

	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	p.metrics.AddCommission("pending", result.Commission)
	p.metrics.AddPoints(result.Points)
	p.log.Info().
		Str("seller_id", req.SellerID.String()).
		Str("sale_id", req.SaleID.String()).
		Str("commission", result.Commission.String()).
		Int64("points", result.Points).
		Msg("sale credited")

	return result, nil
}

// recordSaleOrder stores a paid order holding the single sold line under the sale id.
func (p *SaleProcessor) recordSaleOrder(ctx context.Context, tx pgx.Tx, req ports.SaleRequest, item domain.OrderItem) (*domain.Order, error) {
	seller, err := p.sellerRepo.GetByID(ctx, req.SellerID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get seller: %w", err))
	}
	if seller == nil {
		return nil, apperror.ErrNotFound("seller")
	}

	now := time.Now().UTC()
	order := &domain.Order{
		ID:               req.SaleID,
		SellerID:         req.SellerID,
		Reference:        "SALE-" + req.SaleID.String(),
		Items:            []domain.OrderItem{item},
		Status:           domain.OrderStatusPaid,
		PaymentStatus:    domain.PaymentStatusApproved,
		CommissionStatus: domain.CommissionStatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	order.RecalculateTotals()
	if err := p.orderRepo.Create(ctx, tx, order); err != nil {
		if errors.Is(err, ports.ErrUniqueViolation) {
			return nil, apperror.ErrSaleAlreadyProcessed()
		}
		return nil, apperror.InternalError(fmt.Errorf("create sale order: %w", err))
	}
	return order, nil
}

// checkSaleOrder validates crediting a sale against an order that already exists.
func (p *SaleProcessor) checkSaleOrder(ctx context.Context, tx pgx.Tx, order *domain.Order, req ports.SaleRequest) error {
	if order.SellerID != req.SellerID {
		return apperror.ErrNotFound("order")
	}
	commissionDone, pointsDone, err := p.creditedParts(ctx, tx, order)
	if err != nil {
		return err
	}
	if commissionDone || pointsDone {
		return apperror.ErrSaleAlreadyProcessed()
	}
	if order.Status.IsTerminal() {
		return apperror.ErrInvalidTransition(string(order.Status), "credited")
	}
	if order.PaymentStatus != domain.PaymentStatusApproved {
		return apperror.ErrPaymentNotApproved()
	}
	for _, it := range order.Items {
		if it.ProductID == req.ProductID {
			return nil
		}
	}
	return apperror.Validation(fmt.Sprintf("product %s is not part of order %s", req.ProductID, order.Reference))
}

// CreditOrder credits every line of an approved order. Crediting an order
// that was already credited is a no-op.
func (p *SaleProcessor) CreditOrder(ctx context.Context, orderID uuid.UUID) (*ports.SaleResult, error) {
	dbTx, err := p.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	order, err := p.orderRepo.GetByIDForUpdate(ctx, dbTx, orderID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock order: %w", err))
	}
	if order == nil {
		return nil, apperror.ErrNotFound("order")
	}
	if order.PaymentStatus != domain.PaymentStatusApproved {
		return nil, apperror.ErrPaymentNotApproved()
	}

	result, err := p.creditOrderTx(ctx, dbTx, order)
	if err != nil {
		return nil, err
	}
	if err := p.orderRepo.Update(ctx, dbTx, order); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("update order: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	p.metrics.AddCommission("pending", result.Commission)
	p.metrics.AddPoints(result.Points)
	return result, nil
}

// creditOrderTx credits whatever part of order has not been credited yet and
// flags it on the order. A part counts as credited when its flag is set or a
// movement of its type already references the order. The caller persists the order.
func (p *SaleProcessor) creditOrderTx(ctx context.Context, tx pgx.Tx, order *domain.Order) (*ports.SaleResult, error) {
	wallet, err := p.lockWallet(ctx, tx, order.SellerID)
	if err != nil {
		return nil, err
	}
	commissionDone, pointsDone, err := p.creditedParts(ctx, tx, order)
	if err != nil {
		return nil, err
	}
	order.CommissionCredited = commissionDone
	order.PointsCredited = pointsDone
	if commissionDone && pointsDone {
		return &ports.SaleResult{Commission: decimal.Zero, Wallet: wallet}, nil
	}

	result, err := p.creditLines(ctx, tx, wallet, order.ID, order.Items, !commissionDone, !pointsDone)
	if err != nil {
		return nil, err
	}
	if !commissionDone {
		var units int
		for _, item := range order.Items {
			units += item.Quantity
		}
		if err := p.recordSellerSale(ctx, tx, order.SellerID, order.Total, units, result.Commission); err != nil {
			return nil, err
		}
	}

	order.CommissionCredited = true
	order.PointsCredited = true
	return result, nil
}

// creditedParts reports which halves of an order's credit are already on the ledger.
func (p *SaleProcessor) creditedParts(ctx context.Context, tx pgx.Tx, order *domain.Order) (commission, points bool, err error) {
	commission, points = order.CommissionCredited, order.PointsCredited
	if !commission {
		if commission, err = p.movementRepo.ExistsForOrder(ctx, tx, order.ID, domain.MovementCommissionEarned); err != nil {
			return false, false, apperror.InternalError(fmt.Errorf("check commission movements: %w", err))
		}
	}
	if !points {
		if points, err = p.movementRepo.ExistsForOrder(ctx, tx, order.ID, domain.MovementPointsEarned); err != nil {
			return false, false, apperror.InternalError(fmt.Errorf("check points movements: %w", err))
		}
	}
	return commission, points, nil
}

// reverseOrderCreditTx undoes the unsettled part of an order's credit. Pending
// commission movements are rejected and one adjustment movement records the
// reversal. Nothing is reversed for an order that was never credited.
func (p *SaleProcessor) reverseOrderCreditTx(ctx context.Context, tx pgx.Tx, order *domain.Order, reason string) (*domain.Movement, error) {
	if !order.CommissionCredited && !order.PointsCredited {
		return nil, nil
	}
	wallet, err := p.walletRepo.GetBySellerIDForUpdate(ctx, tx, order.SellerID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock wallet: %w", err))
	}
	if wallet == nil {
		return nil, apperror.ErrNotFound("wallet")
	}

	removed := decimal.Zero
	if order.CommissionCredited {
		if _, err := p.movementRepo.TransitionByOrder(ctx, tx, ports.MovementTransition{
			OrderID:     order.ID,
			Type:        domain.MovementCommissionEarned,
			From:        domain.MovementStatusPending,
			To:          domain.MovementStatusRejected,
			ProcessedBy: systemActor,
			Reason:      strPtr(reason),
		}); err != nil {
			return nil, apperror.InternalError(fmt.Errorf("reject commission movements: %w", err))
		}
		removed = wallet.ReversePending(order.CommissionTotal)
	}
	var points int64
	if order.PointsCredited {
		points = wallet.ReversePoints(order.PointsTotal)
	}
	order.CommissionStatus = domain.CommissionStatusRejected
	order.CommissionCredited = false
	order.PointsCredited = false

	if removed.IsZero() && points == 0 {
		return nil, nil
	}

	now := time.Now().UTC()
	mv := domain.NewMovement(wallet, domain.AdjustmentDetails{
		Reason:         reason,
		Actor:          systemActor,
		AffectsPending: true,
	}, removed.Neg(), -points, domain.MovementStatusCompleted,
		fmt.Sprintf("Reversal of order %s", order.Reference), now).WithOrder(order.ID, nil)
	mv.ProcessedAt = &now
	mv.ProcessedBy = strPtr(systemActor)

	if err := saveWallet(ctx, p.walletRepo, tx, wallet); err != nil {
		return nil, err
	}
	if err := p.movementRepo.Create(ctx, tx, mv); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("create adjustment movement: %w", err))
	}

	p.log.Info().
		Str("order_id", order.ID.String()).
		Str("seller_id", order.SellerID.String()).
		Str("reversed", removed.String()).
		Int64("points", points).
		Msg("order credit reversed")
	return mv, nil
}

// lockWallet returns the seller's wallet locked for update, creating it on first use.
func (p *SaleProcessor) lockWallet(ctx context.Context, tx pgx.Tx, sellerID uuid.UUID) (*domain.Wallet, error) {
	wallet, err := p.walletRepo.GetOrCreateForUpdate(ctx, tx, domain.NewWallet(sellerID, p.minWithdrawal, time.Now().UTC()))
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("lock wallet: %w", err))
	}
	if !wallet.IsActive {
		return nil, apperror.ErrWalletInactive()
	}
	return wallet, nil
}

// creditLines applies each line to the wallet and writes one movement per
// effect, then persists the wallet. Movements snapshot the wallet right after
// their own effect.
func (p *SaleProcessor) creditLines(ctx context.Context, tx pgx.Tx, wallet *domain.Wallet, saleID uuid.UUID, items []domain.OrderItem, commission, points bool) (*ports.SaleResult, error) {
	now := time.Now().UTC()
	result := &ports.SaleResult{Commission: decimal.Zero, Wallet: wallet}

	for _, item := range items {
		productID := item.ProductID

		if amount := item.LineCommission(); commission && amount.IsPositive() {
			if err := wallet.CreditPending(amount); err != nil {
				return nil, apperror.InternalError(fmt.Errorf("credit pending: %w", err))
			}
			mv := domain.NewMovement(wallet, domain.CommissionDetails{
				UnitPrice: item.UnitPrice,
				CostPrice: item.CostPrice,
				Quantity:  item.Quantity,
				Margin:    item.Margin,
				Explicit:  item.Explicit,
			}, amount, 0, domain.MovementStatusPending,
				fmt.Sprintf("Commission for %d x %s", item.Quantity, item.Name), now).WithOrder(saleID, &productID)
			if err := p.movementRepo.Create(ctx, tx, mv); err != nil {
				return nil, apperror.InternalError(fmt.Errorf("create commission movement: %w", err))
			}
			result.Commission = result.Commission.Add(amount)
			result.Movements = append(result.Movements, *mv)
		}

		if points && item.Points > 0 {
			if err := wallet.CreditPoints(item.Points); err != nil {
				return nil, apperror.InternalError(fmt.Errorf("credit points: %w", err))
			}
			mv := domain.NewMovement(wallet, domain.PointsDetails{
				LineTotal: item.LineTotal(),
				Divisor:   p.calc.Policy().PointsDivisor,
			}, decimal.Zero, item.Points, domain.MovementStatusApproved,
				fmt.Sprintf("Points for %d x %s", item.Quantity, item.Name), now).WithOrder(saleID, &productID)
			if err := p.movementRepo.Create(ctx, tx, mv); err != nil {
				return nil, apperror.InternalError(fmt.Errorf("create points movement: %w", err))
			}
			result.Points += item.Points
			result.Movements = append(result.Movements, *mv)
		}
	}

	if len(result.Movements) == 0 {
		return result, nil
	}
	wallet.UpdatedAt = now
	if err := saveWallet(ctx, p.walletRepo, tx, wallet); err != nil {
		return nil, err
	}
	return result, nil
}

func (p *SaleProcessor) recordSellerSale(ctx context.Context, tx pgx.Tx, sellerID uuid.UUID, amount decimal.Decimal, quantity int, commission decimal.Decimal) error {
	seller, err := p.sellerRepo.GetByIDForUpdate(ctx, tx, sellerID)
	if err != nil {
		return apperror.InternalError(fmt.Errorf("lock seller: %w", err))
	}
	if seller == nil {
		return apperror.ErrNotFound("seller")
	}
	seller.Stats.RecordSale(amount, quantity, commission, time.Now().UTC())
	if err := p.sellerRepo.UpdateStats(ctx, tx, sellerID, seller.Stats); err != nil {
		return apperror.InternalError(fmt.Errorf("update seller stats: %w", err))
	}
	return nil
}
