package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderStatus is the fulfilment state of an order.
type OrderStatus string

const (
	OrderStatusCreated        OrderStatus = "created"
	OrderStatusPaymentPending OrderStatus = "payment_pending"
	OrderStatusPaid           OrderStatus = "paid"
	OrderStatusConfirmed      OrderStatus = "confirmed"
	OrderStatusProcessing     OrderStatus = "processing"
	OrderStatusShipped        OrderStatus = "shipped"
	OrderStatusDelivered      OrderStatus = "delivered"
	OrderStatusCancelled      OrderStatus = "cancelled"
	OrderStatusRefunded       OrderStatus = "refunded"
)

// orderTransitions lists the forward edges of the fulfilment state machine.
// cancelled and refunded are reachable from any non-terminal state.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusCreated:        {OrderStatusPaymentPending, OrderStatusPaid},
	OrderStatusPaymentPending: {OrderStatusPaid},
	OrderStatusPaid:           {OrderStatusConfirmed, OrderStatusProcessing, OrderStatusShipped, OrderStatusDelivered},
	OrderStatusConfirmed:      {OrderStatusProcessing, OrderStatusShipped, OrderStatusDelivered},
	OrderStatusProcessing:     {OrderStatusShipped, OrderStatusDelivered},
	OrderStatusShipped:        {OrderStatusDelivered},
}

// IsValid reports whether s is a known order status.
func (s OrderStatus) IsValid() bool {
	switch s {
	case OrderStatusCreated, OrderStatusPaymentPending, OrderStatusPaid, OrderStatusConfirmed,
		OrderStatusProcessing, OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled,
		OrderStatusRefunded:
		return true
	}
	return false
}

// IsTerminal reports whether no further transition is possible.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled || s == OrderStatusRefunded
}

// CanTransitionTo reports whether the state machine allows s -> next.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	if s.IsTerminal() {
		return false
	}
	if next == OrderStatusCancelled || next == OrderStatusRefunded {
		return true
	}
	for _, allowed := range orderTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// PaymentStatus is the ledger-side view of the gateway payment.
type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusApproved PaymentStatus = "approved"
	PaymentStatusDeclined PaymentStatus = "declined"
	PaymentStatusVoided   PaymentStatus = "voided"
)

// IsFinal reports whether the payment can no longer change.
func (s PaymentStatus) IsFinal() bool {
	return s == PaymentStatusApproved || s == PaymentStatusDeclined || s == PaymentStatusVoided
}

// CommissionStatus tracks whether an order's commission reached the available balance.
type CommissionStatus string

const (
	CommissionStatusPending  CommissionStatus = "pending"
	CommissionStatusApproved CommissionStatus = "approved"
	CommissionStatusRejected CommissionStatus = "rejected"
)

// OrderItem is a priced line of an order. Commission is per unit; Points is for the whole line.
type OrderItem struct {
	ProductID  uuid.UUID        `json:"product_id"`
	Name       string           `json:"name"`
	Quantity   int              `json:"quantity"`
	UnitPrice  decimal.Decimal  `json:"unit_price"`
	CostPrice  *decimal.Decimal `json:"cost_price,omitempty"`
	Commission decimal.Decimal  `json:"commission"`
	Margin     decimal.Decimal  `json:"margin"`
	Explicit   bool             `json:"explicit_commission"`
	Points     int64            `json:"points"`
}

// LineTotal is unit price times quantity.
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// LineCommission is the per-unit commission times quantity.
func (i OrderItem) LineCommission() decimal.Decimal {
	return i.Commission.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// Customer is the buyer a reseller sold to.
type Customer struct {
	Name    string `json:"name"`
	Phone   string `json:"phone,omitempty"`
	Email   string `json:"email,omitempty"`
	Address string `json:"address,omitempty"`
	City    string `json:"city,omitempty"`
}

// DeliveryProof is what the courier or seller records on delivery.
type DeliveryProof struct {
	Notes       string    `json:"notes,omitempty"`
	Photos      []string  `json:"photos,omitempty"`
	Signature   string    `json:"signature,omitempty"`
	ReceivedBy  string    `json:"received_by,omitempty"`
	DeliveredAt time.Time `json:"delivered_at"`
}

// Order is a reseller sale together with its shipment state.
type Order struct {
	ID                 uuid.UUID        `json:"id"`
	SellerID           uuid.UUID        `json:"seller_id"`
	Reference          string           `json:"reference"`
	Items              []OrderItem      `json:"items"`
	Customer           Customer         `json:"customer"`
	Total              decimal.Decimal  `json:"total"`
	CommissionTotal    decimal.Decimal  `json:"commission_total"`
	PointsTotal        int64            `json:"points_total"`
	Status             OrderStatus      `json:"status"`
	PaymentStatus      PaymentStatus    `json:"payment_status"`
	CommissionStatus   CommissionStatus `json:"commission_status"`
	CommissionCredited bool             `json:"commission_credited"`
	PointsCredited     bool             `json:"points_credited"`
	PaymentLinkID      *string          `json:"payment_link_id,omitempty"`
	PaymentURL         *string          `json:"payment_url,omitempty"`
	Delivery           *DeliveryProof   `json:"delivery,omitempty"`
	CreatedAt          time.Time        `json:"created_at"`
	UpdatedAt          time.Time        `json:"updated_at"`
}

// RecalculateTotals sums line totals, commissions and points.
func (o *Order) RecalculateTotals() {
	total := decimal.Zero
	commission := decimal.Zero
	var points int64
	for _, item := range o.Items {
		total = total.Add(item.LineTotal())
		commission = commission.Add(item.LineCommission())
		points += item.Points
	}
	o.Total = total
	o.CommissionTotal = commission
	o.PointsTotal = points
}

// PaymentTransaction is the payment record linked to an order. Reference is
// unique across the store and is the gateway-side idempotency key.
type PaymentTransaction struct {
	ID                   uuid.UUID       `json:"id"`
	OrderID              uuid.UUID       `json:"order_id"`
	SellerID             uuid.UUID       `json:"seller_id"`
	Reference            string          `json:"reference"`
	GatewayTransactionID *string         `json:"gateway_transaction_id,omitempty"`
	PaymentMethod        string          `json:"payment_method,omitempty"`
	Amount               decimal.Decimal `json:"amount"`
	Status               PaymentStatus   `json:"status"`
	OrderStatus          OrderStatus     `json:"order_status"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}
