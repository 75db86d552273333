package ports

import (
	"context"
	"time"

	"reseller-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EncryptionService handles AES-256-GCM encryption/decryption.
type EncryptionService interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// SignatureService handles HMAC-SHA256 signing and verification.
type SignatureService interface {
	Sign(secretKey string, payload string) string
	Verify(secretKey string, payload string, signature string) bool
}

// Token roles.
const (
	RoleSeller = "seller"
	RoleAdmin  = "admin"
)

// TokenService handles JWT token operations.
type TokenService interface {
	Generate(sellerID uuid.UUID, role string) (string, time.Time, error)
	Validate(tokenString string) (*TokenClaims, error)
}

// TokenClaims holds the parsed JWT claims.
type TokenClaims struct {
	SellerID uuid.UUID
	Role     string
}

// IdempotencyCache is the Redis-layer idempotency check (fast path).
type IdempotencyCache interface {
	Get(ctx context.Context, key string) ([]byte, error) // Returns cached response JSON or nil
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// WebhookEventGuard is the fast dedup layer in front of the webhook event history.
type WebhookEventGuard interface {
	// MarkIfNew atomically marks key as seen. Returns false if it was already marked.
	MarkIfNew(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Forget removes the mark so a redelivery is processed again.
	Forget(ctx context.Context, key string) error
}

// PaymentGateway is the outbound payment provider. Amounts are in major units;
// the adapter converts to cents.
type PaymentGateway interface {
	CreatePaymentLink(ctx context.Context, req PaymentLinkRequest) (*PaymentLink, error)
	GetTransaction(ctx context.Context, transactionID string) (*GatewayTransaction, error)
	// FindTransactionByReference returns (nil, nil) when the gateway has no transaction yet.
	FindTransactionByReference(ctx context.Context, reference string) (*GatewayTransaction, error)
}

// PaymentLinkRequest describes a checkout link for one order.
type PaymentLinkRequest struct {
	Reference   string
	Name        string
	Description string
	Amount      decimal.Decimal
	Currency    string
	RedirectURL string
}

// PaymentLink is a created checkout link.
type PaymentLink struct {
	ID  string
	URL string
}

// GatewayTransaction is the gateway's view of a payment.
type GatewayTransaction struct {
	ID            string
	Reference     string
	Status        string // APPROVED, DECLINED, VOIDED, PENDING
	PaymentMethod string
	Amount        decimal.Decimal
}

// AuditService records audited operations.
type AuditService interface {
	Log(ctx context.Context, entry *domain.AuditLog)
}

// --- Service Ports (Business Logic) ---

// SaleService credits commissions and points for sales.
type SaleService interface {
	ProcessSale(ctx context.Context, req SaleRequest) (*SaleResult, error)
	CreditOrder(ctx context.Context, orderID uuid.UUID) (*SaleResult, error)
}

// SaleRequest is one product line sold by a seller.
type SaleRequest struct {
	SellerID   uuid.UUID
	ProductID  uuid.UUID
	SaleID     uuid.UUID
	Quantity   int
	SalePrice  *decimal.Decimal // nil = catalog price
	Commission *decimal.Decimal // explicit per-unit commission
}

// SaleResult is what a sale credited.
type SaleResult struct {
	Commission decimal.Decimal
	Points     int64
	Wallet     *domain.Wallet
	Movements  []domain.Movement
}

// SettlementService drives fulfilment and delivery settlement.
type SettlementService interface {
	ConfirmDelivery(ctx context.Context, req DeliveryRequest) (*SettlementResult, error)
	AdvanceOrder(ctx context.Context, sellerID, orderID uuid.UUID, status domain.OrderStatus) (*domain.Order, error)
	CancelOrder(ctx context.Context, sellerID, orderID uuid.UUID, reason string) (*domain.Order, error)
}

// DeliveryRequest confirms delivery of a seller's order.
type DeliveryRequest struct {
	SellerID   uuid.UUID
	OrderID    uuid.UUID
	Notes      string
	Photos     []string
	Signature  string
	ReceivedBy string
}

// SettlementResult is what a delivery confirmation deposited.
type SettlementResult struct {
	DepositedAmount decimal.Decimal
	DepositedPoints int64
	Shortfall       decimal.Decimal
	Wallet          *domain.Wallet
	Order           *domain.Order
}

// WithdrawalService handles payout requests and their review.
type WithdrawalService interface {
	RequestWithdrawal(ctx context.Context, req WithdrawalRequest) (*WithdrawalResult, error)
	ApproveWithdrawal(ctx context.Context, movementID uuid.UUID, actor string) (*domain.Movement, error)
	RejectWithdrawal(ctx context.Context, movementID uuid.UUID, actor, reason string) (*WithdrawalResult, error)
}

// WithdrawalRequest is a seller's payout request.
type WithdrawalRequest struct {
	SellerID       uuid.UUID
	Amount         decimal.Decimal
	Method         domain.PayoutMethod   // empty = wallet preferred method
	Payout         *domain.PayoutDetails // nil = wallet payout settings
	IdempotencyKey string
}

// WithdrawalResult is the withdrawal movement and the balance it left.
type WithdrawalResult struct {
	Movement   *domain.Movement `json:"movement"`
	NewBalance decimal.Decimal  `json:"new_balance"`
}

// WebhookOutcome tells the caller how an inbound event was handled.
type WebhookOutcome string

const (
	WebhookApplied   WebhookOutcome = "applied"
	WebhookDuplicate WebhookOutcome = "duplicate"
	WebhookIgnored   WebhookOutcome = "ignored"
)

// WebhookService reconciles gateway payment state.
type WebhookService interface {
	HandleWebhookEvent(ctx context.Context, payload []byte, signature string) (WebhookOutcome, error)
	SyncPayment(ctx context.Context, sellerID, orderID uuid.UUID) (*domain.Order, error)
}

// OrderService handles order intake.
type OrderService interface {
	CreateOrder(ctx context.Context, req CreateOrderRequest) (*domain.Order, error)
	GetOrder(ctx context.Context, sellerID, orderID uuid.UUID) (*domain.Order, error)
}

// CreateOrderRequest is a seller's new sale.
type CreateOrderRequest struct {
	SellerID          uuid.UUID
	Reference         string
	Items             []OrderItemRequest
	Customer          domain.Customer
	PaymentMethod     string
	CreatePaymentLink bool
}

// OrderItemRequest is one requested line.
type OrderItemRequest struct {
	ProductID  uuid.UUID
	Quantity   int
	UnitPrice  *decimal.Decimal // nil = catalog price
	Commission *decimal.Decimal // explicit per-unit commission
}

// WalletService exposes wallet reads and seller settings.
type WalletService interface {
	GetWallet(ctx context.Context, sellerID uuid.UUID) (*domain.Wallet, error)
	ListMovements(ctx context.Context, filter domain.MovementFilter) ([]domain.Movement, int64, error)
	GetSummary(ctx context.Context, sellerID uuid.UUID) (*WalletSummary, error)
	UpdateSettings(ctx context.Context, sellerID uuid.UUID, req UpdateSettingsRequest) (*domain.Wallet, error)
	GetSeller(ctx context.Context, sellerID uuid.UUID) (*domain.Seller, error)
}

// WalletSummary totals a seller's ledger.
type WalletSummary struct {
	Wallet              *domain.Wallet    `json:"wallet"`
	PendingCommission   decimal.Decimal   `json:"pending_commission"`
	SettledCommission   decimal.Decimal   `json:"settled_commission"`
	PendingWithdrawals  decimal.Decimal   `json:"pending_withdrawals"`
	ApprovedWithdrawals decimal.Decimal   `json:"approved_withdrawals"`
	PointsEarned        int64             `json:"points_earned"`
	Breakdown           []MovementSummary `json:"breakdown"`
}

// UpdateSettingsRequest changes wallet settings; nil fields are left alone.
type UpdateSettingsRequest struct {
	MinimumWithdrawal    *decimal.Decimal
	PreferredMethod      *domain.PayoutMethod
	Payout               *domain.PayoutDetails
	NotifyOnCommission   *bool
	NotifyOnWithdrawal   *bool
	NotifyOnPointsEarned *bool
}
