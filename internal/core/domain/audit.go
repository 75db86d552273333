package domain

import (
	"time"

	"github.com/google/uuid"
)

// AuditAction represents the type of audited action.
type AuditAction string

const (
	AuditActionCreateOrder       AuditAction = "CREATE_ORDER"
	AuditActionConfirmDelivery   AuditAction = "CONFIRM_DELIVERY"
	AuditActionUpdateOrderStatus AuditAction = "UPDATE_ORDER_STATUS"
	AuditActionWithdrawal        AuditAction = "WITHDRAWAL"
	AuditActionApproveWithdrawal AuditAction = "APPROVE_WITHDRAWAL"
	AuditActionRejectWithdrawal  AuditAction = "REJECT_WITHDRAWAL"
	AuditActionUpdateSettings    AuditAction = "UPDATE_WALLET_SETTINGS"
)

// AuditLog records a single audited ledger operation.
type AuditLog struct {
	ID           uuid.UUID   `json:"id"`
	SellerID     *uuid.UUID  `json:"seller_id,omitempty"`
	Action       AuditAction `json:"action"`
	ResourceType string      `json:"resource_type"`
	ResourceID   string      `json:"resource_id,omitempty"`
	Details      string      `json:"details,omitempty"` // JSON string
	IPAddress    string      `json:"ip_address"`
	CreatedAt    time.Time   `json:"created_at"`
}
