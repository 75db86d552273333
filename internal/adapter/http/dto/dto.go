package dto

import (
	"reseller-ledger/internal/core/domain"
	"reseller-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// --- Orders ---

// CreateOrderRequest is the body for POST /api/v1/orders.
type CreateOrderRequest struct {
	Reference         string             `json:"reference" binding:"required,max=64,safe_id"`
	Items             []OrderItemRequest `json:"items" binding:"required,min=1,max=50,dive"`
	Customer          CustomerRequest    `json:"customer"`
	PaymentMethod     string             `json:"payment_method" binding:"omitempty,max=32"`
	CreatePaymentLink bool               `json:"create_payment_link"`
}

// OrderItemRequest is one line of a new order.
type OrderItemRequest struct {
	ProductID  string           `json:"product_id" binding:"required,uuid"`
	Quantity   int              `json:"quantity" binding:"required,min=1,max=1000"`
	UnitPrice  *decimal.Decimal `json:"unit_price,omitempty" binding:"omitempty,amount_positive"`
	Commission *decimal.Decimal `json:"commission,omitempty" binding:"omitempty,amount_nonnegative"`
}

// CustomerRequest is the buyer of an order.
type CustomerRequest struct {
	Name    string `json:"name" binding:"required,max=120"`
	Phone   string `json:"phone" binding:"omitempty,max=20"`
	Email   string `json:"email" binding:"omitempty,email"`
	Address string `json:"address" binding:"omitempty,max=255"`
	City    string `json:"city" binding:"omitempty,max=80"`
}

// ToPort converts the body into the service request.
func (r CreateOrderRequest) ToPort(sellerID uuid.UUID) (ports.CreateOrderRequest, error) {
	items := make([]ports.OrderItemRequest, 0, len(r.Items))
	for _, it := range r.Items {
		productID, err := uuid.Parse(it.ProductID)
		if err != nil {
			return ports.CreateOrderRequest{}, err
		}
		items = append(items, ports.OrderItemRequest{
			ProductID:  productID,
			Quantity:   it.Quantity,
			UnitPrice:  it.UnitPrice,
			Commission: it.Commission,
		})
	}
	return ports.CreateOrderRequest{
		SellerID:  sellerID,
		Reference: r.Reference,
		Items:     items,
		Customer: domain.Customer{
			Name:    r.Customer.Name,
			Phone:   r.Customer.Phone,
			Email:   r.Customer.Email,
			Address: r.Customer.Address,
			City:    r.Customer.City,
		},
		PaymentMethod:     r.PaymentMethod,
		CreatePaymentLink: r.CreatePaymentLink,
	}, nil
}

// DeliverRequest is the body for POST /api/v1/orders/:id/deliver.
type DeliverRequest struct {
	Notes      string   `json:"notes" binding:"omitempty,max=500"`
	Photos     []string `json:"photos" binding:"omitempty,max=10,dive,safe_url"`
	Signature  string   `json:"signature" binding:"omitempty,max=255"`
	ReceivedBy string   `json:"received_by" binding:"omitempty,max=120"`
}

// UpdateOrderStatusRequest is the body for PATCH /api/v1/orders/:id/status.
type UpdateOrderStatusRequest struct {
	Status string `json:"status" binding:"required,oneof=confirmed processing shipped cancelled"`
	Reason string `json:"reason" binding:"omitempty,max=255"`
}

// DeliveryResponse is what a delivery confirmation settled.
type DeliveryResponse struct {
	Order           *domain.Order   `json:"order"`
	DepositedAmount decimal.Decimal `json:"deposited_amount"`
	DepositedPoints int64           `json:"deposited_points"`
	Shortfall       decimal.Decimal `json:"shortfall"`
	Balance         decimal.Decimal `json:"balance"`
	PendingBalance  decimal.Decimal `json:"pending_balance"`
}

// NewDeliveryResponse flattens a settlement result.
func NewDeliveryResponse(r *ports.SettlementResult) DeliveryResponse {
	resp := DeliveryResponse{
		Order:           r.Order,
		DepositedAmount: r.DepositedAmount,
		DepositedPoints: r.DepositedPoints,
		Shortfall:       r.Shortfall,
	}
	if r.Wallet != nil {
		resp.Balance = r.Wallet.Balance
		resp.PendingBalance = r.Wallet.PendingBalance
	}
	return resp
}

// --- Wallet ---

// PayoutDetailsRequest is where a seller wants to be paid.
type PayoutDetailsRequest struct {
	BankName       string `json:"bank_name" binding:"omitempty,max=80"`
	AccountType    string `json:"account_type" binding:"omitempty,oneof=savings checking"`
	AccountNumber  string `json:"account_number" binding:"omitempty,numeric,max=34"`
	AccountHolder  string `json:"account_holder" binding:"omitempty,max=120"`
	DocumentNumber string `json:"document_number" binding:"omitempty,alphanum,max=20"`
	PhoneNumber    string `json:"phone_number" binding:"omitempty,numeric,min=7,max=15"`
}

func (p *PayoutDetailsRequest) toDomain() *domain.PayoutDetails {
	if p == nil {
		return nil
	}
	return &domain.PayoutDetails{
		BankName:       p.BankName,
		AccountType:    p.AccountType,
		AccountNumber:  p.AccountNumber,
		AccountHolder:  p.AccountHolder,
		DocumentNumber: p.DocumentNumber,
		PhoneNumber:    p.PhoneNumber,
	}
}

// WithdrawalRequest is the body for POST /api/v1/wallet/withdrawals.
type WithdrawalRequest struct {
	Amount decimal.Decimal       `json:"amount" binding:"amount_positive"`
	Method string                `json:"method" binding:"omitempty,payout_method"`
	Payout *PayoutDetailsRequest `json:"payout"`
}

// ToPort converts the body into the service request.
func (r WithdrawalRequest) ToPort(sellerID uuid.UUID, idempotencyKey string) ports.WithdrawalRequest {
	return ports.WithdrawalRequest{
		SellerID:       sellerID,
		Amount:         r.Amount,
		Method:         domain.PayoutMethod(r.Method),
		Payout:         r.Payout.toDomain(),
		IdempotencyKey: idempotencyKey,
	}
}

// UpdateSettingsRequest is the body for PUT /api/v1/wallet/settings.
type UpdateSettingsRequest struct {
	MinimumWithdrawal    *decimal.Decimal      `json:"minimum_withdrawal" binding:"omitempty,amount_positive"`
	PreferredMethod      *string               `json:"preferred_method" binding:"omitempty,payout_method"`
	Payout               *PayoutDetailsRequest `json:"payout"`
	NotifyOnCommission   *bool                 `json:"notify_on_commission"`
	NotifyOnWithdrawal   *bool                 `json:"notify_on_withdrawal"`
	NotifyOnPointsEarned *bool                 `json:"notify_on_points_earned"`
}

// ToPort converts the body into the service request.
func (r UpdateSettingsRequest) ToPort() ports.UpdateSettingsRequest {
	out := ports.UpdateSettingsRequest{
		MinimumWithdrawal:    r.MinimumWithdrawal,
		Payout:               r.Payout.toDomain(),
		NotifyOnCommission:   r.NotifyOnCommission,
		NotifyOnWithdrawal:   r.NotifyOnWithdrawal,
		NotifyOnPointsEarned: r.NotifyOnPointsEarned,
	}
	if r.PreferredMethod != nil {
		m := domain.PayoutMethod(*r.PreferredMethod)
		out.PreferredMethod = &m
	}
	return out
}

// MovementListQuery is the query string for GET /api/v1/wallet/movements.
type MovementListQuery struct {
	Type     string `form:"type" binding:"omitempty,movement_type"`
	Status   string `form:"status" binding:"omitempty,oneof=pending approved rejected completed"`
	OrderID  string `form:"order_id" binding:"omitempty,uuid"`
	Page     int    `form:"page" binding:"omitempty,min=1"`
	PageSize int    `form:"page_size" binding:"omitempty,min=1,max=100"`
}

const defaultPageSize = 20

// ToFilter converts the query into a movement filter for the seller.
func (q MovementListQuery) ToFilter(sellerID uuid.UUID) domain.MovementFilter {
	f := domain.MovementFilter{SellerID: sellerID, Page: max(q.Page, 1), PageSize: q.PageSize}
	if f.PageSize == 0 {
		f.PageSize = defaultPageSize
	}
	if q.Type != "" {
		t := domain.MovementType(q.Type)
		f.Type = &t
	}
	if q.Status != "" {
		s := domain.MovementStatus(q.Status)
		f.Status = &s
	}
	if q.OrderID != "" {
		if id, err := uuid.Parse(q.OrderID); err == nil {
			f.OrderID = &id
		}
	}
	return f
}

// MovementListResponse is a page of movements.
type MovementListResponse struct {
	Movements []domain.Movement `json:"movements"`
	Total     int64             `json:"total"`
	Page      int               `json:"page"`
	PageSize  int               `json:"page_size"`
}

// --- Admin ---

// RejectWithdrawalRequest is the body for POST /api/v1/admin/withdrawals/:id/reject.
type RejectWithdrawalRequest struct {
	Reason string `json:"reason" binding:"required,max=500"`
}
