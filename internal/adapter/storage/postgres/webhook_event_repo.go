package postgres

import (
	"context"
	"fmt"

	"reseller-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// WebhookEventRepo implements ports.WebhookEventRepository. The dedup_key
// unique index is what makes a replayed gateway event a no-op.
type WebhookEventRepo struct {
	pool Pool
}

// NewWebhookEventRepo creates a new WebhookEventRepo.
func NewWebhookEventRepo(pool Pool) *WebhookEventRepo {
	return &WebhookEventRepo{pool: pool}
}

// Append stores rec and reports false if its dedup key was already recorded.
func (r *WebhookEventRepo) Append(ctx context.Context, tx pgx.Tx, rec *domain.WebhookEventRecord) (bool, error) {
	query := `INSERT INTO webhook_events (id, order_id, event, gateway_transaction_id, gateway_status, dedup_key, payload, received_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (dedup_key) DO NOTHING`

	tag, err := tx.Exec(ctx, query,
		rec.ID, rec.OrderID, rec.Event, rec.GatewayTransactionID, rec.GatewayStatus,
		rec.DedupKey(), rec.Payload, rec.ReceivedAt,
	)
	if err != nil {
		return false, fmt.Errorf("append webhook event: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListByOrder returns the event history of an order, oldest first.
func (r *WebhookEventRepo) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]domain.WebhookEventRecord, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, order_id, event, gateway_transaction_id, gateway_status, payload, received_at
		 FROM webhook_events WHERE order_id = $1 ORDER BY received_at`, orderID)
	if err != nil {
		return nil, fmt.Errorf("list webhook events: %w", err)
	}
	defer rows.Close()

	var events []domain.WebhookEventRecord
	for rows.Next() {
		var e domain.WebhookEventRecord
		if err := rows.Scan(
			&e.ID, &e.OrderID, &e.Event, &e.GatewayTransactionID, &e.GatewayStatus, &e.Payload, &e.ReceivedAt,
		); err != nil {
			return nil, fmt.Errorf("scan webhook event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
