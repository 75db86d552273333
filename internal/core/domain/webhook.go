package domain

import (
	"time"

	"github.com/google/uuid"
)

// Gateway event names.
const (
	EventTransactionUpdated = "transaction.updated"
	EventPaymentLinkUpdated = "payment_link.updated"
)

// Gateway transaction statuses.
const (
	GatewayStatusApproved = "APPROVED"
	GatewayStatusDeclined = "DECLINED"
	GatewayStatusVoided   = "VOIDED"
	GatewayStatusPending  = "PENDING"
)

// PaymentStatusFromGateway maps an uppercase gateway status onto the ledger's payment status.
func PaymentStatusFromGateway(status string) (PaymentStatus, bool) {
	switch status {
	case GatewayStatusApproved:
		return PaymentStatusApproved, true
	case GatewayStatusDeclined:
		return PaymentStatusDeclined, true
	case GatewayStatusVoided:
		return PaymentStatusVoided, true
	case GatewayStatusPending:
		return PaymentStatusPending, true
	}
	return "", false
}

// WebhookEventRecord is one raw gateway event appended to an order's history.
// Records are never updated; (event, gateway transaction, status) is unique.
type WebhookEventRecord struct {
	ID                   uuid.UUID `json:"id"`
	OrderID              uuid.UUID `json:"order_id"`
	Event                string    `json:"event"`
	GatewayTransactionID string    `json:"gateway_transaction_id"`
	GatewayStatus        string    `json:"gateway_status"`
	Payload              []byte    `json:"payload"`
	ReceivedAt           time.Time `json:"received_at"`
}

// DedupKey identifies a logical gateway event.
func (r WebhookEventRecord) DedupKey() string {
	return BuildWebhookEventKey(r.Event, r.GatewayTransactionID, r.GatewayStatus)
}

// BuildWebhookEventKey constructs the dedup key for a gateway event.
func BuildWebhookEventKey(event, gatewayTransactionID, status string) string {
	return event + ":" + gatewayTransactionID + ":" + status
}

// BuildWithdrawalIdempotencyKey scopes a client idempotency key to a seller.
func BuildWithdrawalIdempotencyKey(sellerID uuid.UUID, key string) string {
	return sellerID.String() + ":withdrawal:" + key
}
