package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MovementType classifies a ledger entry.
type MovementType string

const (
	MovementCommissionEarned   MovementType = "commission_earned"
	MovementCommissionApproved MovementType = "commission_approved"
	MovementWithdrawal         MovementType = "withdrawal"
	MovementPointsEarned       MovementType = "points_earned"
	MovementPointsRedeemed     MovementType = "points_redeemed"
	MovementBonus              MovementType = "bonus"
	MovementPenalty            MovementType = "penalty"
	MovementAdjustment         MovementType = "adjustment"
	MovementDeliveryConfirmed  MovementType = "delivery_confirmed"
)

// IsValid reports whether t is a known movement type.
func (t MovementType) IsValid() bool {
	switch t {
	case MovementCommissionEarned, MovementCommissionApproved, MovementWithdrawal,
		MovementPointsEarned, MovementPointsRedeemed, MovementBonus, MovementPenalty,
		MovementAdjustment, MovementDeliveryConfirmed:
		return true
	}
	return false
}

// MovementStatus is the lifecycle of a movement.
type MovementStatus string

const (
	MovementStatusPending   MovementStatus = "pending"
	MovementStatusApproved  MovementStatus = "approved"
	MovementStatusRejected  MovementStatus = "rejected"
	MovementStatusCompleted MovementStatus = "completed"
)

// IsValid reports whether s is a known movement status.
func (s MovementStatus) IsValid() bool {
	switch s {
	case MovementStatusPending, MovementStatusApproved, MovementStatusRejected, MovementStatusCompleted:
		return true
	}
	return false
}

// CanTransitionTo reports whether a movement in status s may move to next.
// Only pending movements change status.
func (s MovementStatus) CanTransitionTo(next MovementStatus) bool {
	if s != MovementStatusPending {
		return false
	}
	return next == MovementStatusApproved || next == MovementStatusRejected || next == MovementStatusCompleted
}

// Movement is an append-only ledger entry. Only Status and the processing
// fields change after it is written.
type Movement struct {
	ID                  uuid.UUID       `json:"id"`
	WalletID            uuid.UUID       `json:"wallet_id"`
	SellerID            uuid.UUID       `json:"seller_id"`
	Type                MovementType    `json:"type"`
	Amount              decimal.Decimal `json:"amount"`
	Points              int64           `json:"points"`
	BalanceAfter        decimal.Decimal `json:"balance_after"`
	PendingBalanceAfter decimal.Decimal `json:"pending_balance_after"`
	PointsAfter         int64           `json:"points_after"`
	Description         string          `json:"description"`
	Status              MovementStatus  `json:"status"`
	OrderID             *uuid.UUID      `json:"order_id,omitempty"`
	ProductID           *uuid.UUID      `json:"product_id,omitempty"`
	IdempotencyKey      *string         `json:"-"`
	Details             MovementDetails `json:"details,omitempty"`
	CreatedAt           time.Time       `json:"created_at"`
	ProcessedAt         *time.Time      `json:"processed_at,omitempty"`
	ProcessedBy         *string         `json:"processed_by,omitempty"`
	StatusReason        *string         `json:"status_reason,omitempty"`
}

// NewMovement snapshots the wallet state right after the movement's effect was applied to it.
func NewMovement(w *Wallet, details MovementDetails, amount decimal.Decimal, points int64, status MovementStatus, description string, now time.Time) *Movement {
	return &Movement{
		ID:                  uuid.New(),
		WalletID:            w.ID,
		SellerID:            w.SellerID,
		Type:                details.MovementType(),
		Amount:              amount,
		Points:              points,
		BalanceAfter:        w.Balance,
		PendingBalanceAfter: w.PendingBalance,
		PointsAfter:         w.Points,
		Description:         description,
		Status:              status,
		Details:             details,
		CreatedAt:           now,
	}
}

// WithOrder links the movement to the order (and optionally product) that caused it.
func (m *Movement) WithOrder(orderID uuid.UUID, productID *uuid.UUID) *Movement {
	m.OrderID = &orderID
	m.ProductID = productID
	return m
}

// MovementFilter narrows movement listings.
type MovementFilter struct {
	SellerID uuid.UUID
	Type     *MovementType
	Status   *MovementStatus
	OrderID  *uuid.UUID
	Page     int
	PageSize int
}

// UnmarshalJSON restores the typed details variant.
func (m *Movement) UnmarshalJSON(data []byte) error {
	type alias Movement
	aux := struct {
		*alias
		Details json.RawMessage `json:"details,omitempty"`
	}{alias: (*alias)(m)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	details, err := DecodeDetails(m.Type, aux.Details)
	if err != nil {
		return err
	}
	m.Details = details
	return nil
}
