package ports

import (
	"context"
	"errors"

	"reseller-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

// ErrUniqueViolation is returned by repositories when an insert hits a unique constraint.
var ErrUniqueViolation = errors.New("unique constraint violation")

// ErrVersionConflict is returned when an optimistic version check fails.
var ErrVersionConflict = errors.New("row version changed")

// Lookups return (nil, nil) when the row does not exist.
// Methods accepting pgx.Tx run inside a transaction block; *ForUpdate variants lock the row.

// SellerRepository defines persistence operations for sellers.
type SellerRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Seller, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Seller, error)
	UpdateStats(ctx context.Context, tx pgx.Tx, sellerID uuid.UUID, stats domain.SellerStats) error
}

// ProductRepository is the read-only catalog lookup.
type ProductRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Product, error)
}

// WalletRepository defines persistence operations for wallets.
type WalletRepository interface {
	GetBySellerID(ctx context.Context, sellerID uuid.UUID) (*domain.Wallet, error)
	GetBySellerIDForUpdate(ctx context.Context, tx pgx.Tx, sellerID uuid.UUID) (*domain.Wallet, error)
	// GetOrCreateForUpdate inserts candidate unless a wallet already exists for
	// its seller, then returns the locked stored wallet.
	GetOrCreateForUpdate(ctx context.Context, tx pgx.Tx, candidate *domain.Wallet) (*domain.Wallet, error)
	// Update persists balances and settings when the stored version still
	// matches w.Version, then increments w.Version. Returns ErrVersionConflict otherwise.
	Update(ctx context.Context, tx pgx.Tx, w *domain.Wallet) error
}

// MovementRepository defines persistence operations for the movement log.
type MovementRepository interface {
	Create(ctx context.Context, tx pgx.Tx, mv *domain.Movement) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Movement, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Movement, error)
	GetByIdempotencyKey(ctx context.Context, key string) (*domain.Movement, error)
	// ExistsForOrder reports whether a movement of type t already references orderID.
	ExistsForOrder(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, t domain.MovementType) (bool, error)
	// UpdateStatus writes the status and processing fields of a pending movement.
	UpdateStatus(ctx context.Context, tx pgx.Tx, mv *domain.Movement) error
	// TransitionByOrder moves every movement of the given type and order from one status to another.
	TransitionByOrder(ctx context.Context, tx pgx.Tx, params MovementTransition) (int64, error)
	List(ctx context.Context, filter domain.MovementFilter) ([]domain.Movement, int64, error)
	Summarize(ctx context.Context, sellerID uuid.UUID) ([]MovementSummary, error)
}

// MovementTransition selects movements of one order for a bulk status change.
type MovementTransition struct {
	OrderID     uuid.UUID
	Type        domain.MovementType
	From        domain.MovementStatus
	To          domain.MovementStatus
	ProcessedBy string
	Reason      *string
}

// MovementSummary aggregates a seller's movements per type and status.
type MovementSummary struct {
	Type   domain.MovementType   `json:"type"`
	Status domain.MovementStatus `json:"status"`
	Count  int64                 `json:"count"`
	Amount decimal.Decimal       `json:"amount"`
	Points int64                 `json:"points"`
}

// OrderRepository defines persistence operations for orders.
type OrderRepository interface {
	// Create returns ErrUniqueViolation when the reference is taken.
	Create(ctx context.Context, tx pgx.Tx, order *domain.Order) error
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Order, error)
	GetByReferenceForUpdate(ctx context.Context, tx pgx.Tx, reference string) (*domain.Order, error)
	GetByPaymentLinkIDForUpdate(ctx context.Context, tx pgx.Tx, linkID string) (*domain.Order, error)
	Update(ctx context.Context, tx pgx.Tx, order *domain.Order) error
	// TransitionStatus sets status to `to` only if it is currently `from`.
	// Returns false when the current status did not match.
	TransitionStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, from, to domain.OrderStatus) (bool, error)
}

// PaymentTransactionRepository defines persistence operations for payment records.
type PaymentTransactionRepository interface {
	// Create returns ErrUniqueViolation when the reference is taken.
	Create(ctx context.Context, tx pgx.Tx, p *domain.PaymentTransaction) error
	GetByOrderID(ctx context.Context, orderID uuid.UUID) (*domain.PaymentTransaction, error)
	GetByOrderIDForUpdate(ctx context.Context, tx pgx.Tx, orderID uuid.UUID) (*domain.PaymentTransaction, error)
	Update(ctx context.Context, tx pgx.Tx, p *domain.PaymentTransaction) error
}

// WebhookEventRepository is the append-only gateway event history.
type WebhookEventRepository interface {
	// Append stores rec unless an event with the same dedup key exists.
	// Returns false for a duplicate.
	Append(ctx context.Context, tx pgx.Tx, rec *domain.WebhookEventRecord) (bool, error)
	ListByOrder(ctx context.Context, orderID uuid.UUID) ([]domain.WebhookEventRecord, error)
}

// AuditRepository persists audit logs.
type AuditRepository interface {
	Create(ctx context.Context, log *domain.AuditLog) error
}

// DBTransactor provides database transaction management.
type DBTransactor interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}
