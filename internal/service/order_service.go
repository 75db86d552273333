package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"reseller-ledger/internal/core/domain"
	"reseller-ledger/internal/core/ports"
	"reseller-ledger/pkg/apperror"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// PaymentLinkConfig holds the checkout settings for gateway payment links.
type PaymentLinkConfig struct {
	Currency    string
	RedirectURL string
}

// orderService implements ports.OrderService.
type orderService struct {
	calc        *CommissionCalculator
	productRepo ports.ProductRepository
	orderRepo   ports.OrderRepository
	paymentRepo ports.PaymentTransactionRepository
	gateway     ports.PaymentGateway
	transactor  ports.DBTransactor
	linkCfg     PaymentLinkConfig
	log         zerolog.Logger
}

// NewOrderService creates a new order service. gateway may be nil when payment links are disabled.
func NewOrderService(
	calc *CommissionCalculator,
	productRepo ports.ProductRepository,
	orderRepo ports.OrderRepository,
	paymentRepo ports.PaymentTransactionRepository,
	gateway ports.PaymentGateway,
	transactor ports.DBTransactor,
	linkCfg PaymentLinkConfig,
	log zerolog.Logger,
) ports.OrderService {
	return &orderService{
		calc:        calc,
		productRepo: productRepo,
		orderRepo:   orderRepo,
		paymentRepo: paymentRepo,
		gateway:     gateway,
		transactor:  transactor,
		linkCfg:     linkCfg,
		log:         log,
	}
}

// CreateOrder prices the requested lines and stores the order with its
// payment record. The reference is the gateway idempotency key; reusing it is a conflict.
func (s *orderService) CreateOrder(ctx context.Context, req ports.CreateOrderRequest) (*domain.Order, error) {
	reference := strings.TrimSpace(req.Reference)
	switch {
	case req.SellerID == uuid.Nil:
		return nil, apperror.Validation("seller id is required")
	case reference == "":
		return nil, apperror.Validation("reference is required")
	case len(req.Items) == 0:
		return nil, apperror.Validation("an order needs at least one item")
	}

	items := make([]domain.OrderItem, 0, len(req.Items))
	for _, line := range req.Items {
		product, err := s.productRepo.GetByID(ctx, line.ProductID)
		if err != nil {
			return nil, apperror.InternalError(fmt.Errorf("get product: %w", err))
		}
		if product == nil || !product.IsActive {
			return nil, apperror.ErrNotFound("product")
		}
		item, err := s.calc.PriceLine(product, line.Quantity, line.UnitPrice, line.Commission)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	now := time.Now().UTC()
	order := &domain.Order{
		ID:               uuid.New(),
		SellerID:         req.SellerID,
		Reference:        reference,
		Items:            items,
		Customer:         req.Customer,
		Status:           domain.OrderStatusCreated,
		PaymentStatus:    domain.PaymentStatusPending,
		CommissionStatus: domain.CommissionStatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	order.RecalculateTotals()

	payment := &domain.PaymentTransaction{
		ID:            uuid.New(),
		OrderID:       order.ID,
		SellerID:      order.SellerID,
		Reference:     reference,
		PaymentMethod: req.PaymentMethod,
		Amount:        order.Total,
		Status:        domain.PaymentStatusPending,
		OrderStatus:   order.Status,
		CreatedAt:     now,
		UpdatedAt:     now,
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("begin tx: %w", err))
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	if err := s.orderRepo.Create(ctx, dbTx, order); err != nil {
		if errors.Is(err, ports.ErrUniqueViolation) {
			return nil, apperror.ErrDuplicateReference()
		}
		return nil, apperror.InternalError(fmt.Errorf("create order: %w", err))
	}
	if err := s.paymentRepo.Create(ctx, dbTx, payment); err != nil {
		if errors.Is(err, ports.ErrUniqueViolation) {
			return nil, apperror.ErrDuplicateReference()
		}
		return nil, apperror.InternalError(fmt.Errorf("create payment: %w", err))
	}
	if err := dbTx.Commit(ctx); err != nil {
		return nil, apperror.InternalError(fmt.Errorf("commit tx: %w", err))
	}

	s.log.Info().
		Str("order_id", order.ID.String()).
		Str("seller_id", order.SellerID.String()).
		Str("reference", reference).
		Str("total", order.Total.String()).
		Str("commission", order.CommissionTotal.String()).
		Msg("order created")

	if req.CreatePaymentLink && s.gateway != nil {
		if err := s.attachPaymentLink(ctx, order); err != nil {
			// The order stands; the seller can still collect payment another way.
			s.log.Warn().Err(err).Str("order_id", order.ID.String()).Msg("payment link creation failed")
		}
	}
	return order, nil
}

func (s *orderService) attachPaymentLink(ctx context.Context, order *domain.Order) error {
	link, err := s.gateway.CreatePaymentLink(ctx, ports.PaymentLinkRequest{
		Reference:   order.Reference,
		Name:        "Order " + order.Reference,
		Description: fmt.Sprintf("%d item(s)", len(order.Items)),
		Amount:      order.Total,
		Currency:    s.linkCfg.Currency,
		RedirectURL: s.linkCfg.RedirectURL,
	})
	if err != nil {
		return fmt.Errorf("create payment link: %w", err)
	}

	dbTx, err := s.transactor.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer dbTx.Rollback(ctx) //nolint:errcheck

	locked, err := s.orderRepo.GetByIDForUpdate(ctx, dbTx, order.ID)
	if err != nil {
		return fmt.Errorf("lock order: %w", err)
	}
	if locked == nil {
		return errors.New("order disappeared before link was attached")
	}
	locked.PaymentLinkID = &link.ID
	locked.PaymentURL = &link.URL
	locked.UpdatedAt = time.Now().UTC()
	if err := s.orderRepo.Update(ctx, dbTx, locked); err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if err := dbTx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	*order = *locked
	return nil
}

// GetOrder returns one of the seller's orders.
func (s *orderService) GetOrder(ctx context.Context, sellerID, orderID uuid.UUID) (*domain.Order, error) {
	order, err := s.orderRepo.GetByID(ctx, orderID)
	if err != nil {
		return nil, apperror.InternalError(fmt.Errorf("get order: %w", err))
	}
	if order == nil || order.SellerID != sellerID {
		return nil, apperror.ErrNotFound("order")
	}
	return order, nil
}
