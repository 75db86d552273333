package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"reseller-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const orderColumns = `id, seller_id, reference, items, customer, total, commission_total, points_total,
	status, payment_status, commission_status, commission_credited, points_credited,
	payment_link_id, payment_url, delivery, created_at, updated_at`

// OrderRepo implements ports.OrderRepository. Line items, customer and delivery proof are JSONB.
type OrderRepo struct {
	pool Pool
}

// NewOrderRepo creates a new OrderRepo.
func NewOrderRepo(pool Pool) *OrderRepo {
	return &OrderRepo{pool: pool}
}

type orderDocuments struct {
	items    []byte
	customer []byte
	delivery []byte
}

func encodeOrderDocuments(o *domain.Order) (orderDocuments, error) {
	var docs orderDocuments
	var err error
	if docs.items, err = json.Marshal(o.Items); err != nil {
		return docs, fmt.Errorf("encode order items: %w", err)
	}
	if docs.customer, err = json.Marshal(o.Customer); err != nil {
		return docs, fmt.Errorf("encode order customer: %w", err)
	}
	if o.Delivery != nil {
		if docs.delivery, err = json.Marshal(o.Delivery); err != nil {
			return docs, fmt.Errorf("encode delivery proof: %w", err)
		}
	}
	return docs, nil
}

// Create inserts an order. A taken reference surfaces as ports.ErrUniqueViolation.
func (r *OrderRepo) Create(ctx context.Context, tx pgx.Tx, o *domain.Order) error {
	docs, err := encodeOrderDocuments(o)
	if err != nil {
		return err
	}

	query := `INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)`

	_, err = tx.Exec(ctx, query,
		o.ID, o.SellerID, o.Reference, docs.items, docs.customer,
		o.Total, o.CommissionTotal, o.PointsTotal,
		string(o.Status), string(o.PaymentStatus), string(o.CommissionStatus),
		o.CommissionCredited, o.PointsCredited, o.PaymentLinkID, o.PaymentURL, docs.delivery,
		o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		return mapWriteError("insert order", err)
	}
	return nil
}

func (r *OrderRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`
	return scanOrder(r.pool.QueryRow(ctx, query, id))
}

func (r *OrderRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1 FOR UPDATE`
	return scanOrder(tx.QueryRow(ctx, query, id))
}

func (r *OrderRepo) GetByReferenceForUpdate(ctx context.Context, tx pgx.Tx, reference string) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE reference = $1 FOR UPDATE`
	return scanOrder(tx.QueryRow(ctx, query, reference))
}

func (r *OrderRepo) GetByPaymentLinkIDForUpdate(ctx context.Context, tx pgx.Tx, linkID string) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE payment_link_id = $1 FOR UPDATE`
	return scanOrder(tx.QueryRow(ctx, query, linkID))
}

// Update rewrites the mutable order fields. Reference and seller never change.
func (r *OrderRepo) Update(ctx context.Context, tx pgx.Tx, o *domain.Order) error {
	docs, err := encodeOrderDocuments(o)
	if err != nil {
		return err
	}

	query := `UPDATE orders SET items = $1, customer = $2, total = $3, commission_total = $4, points_total = $5,
		status = $6, payment_status = $7, commission_status = $8, commission_credited = $9,
		points_credited = $10, payment_link_id = $11, payment_url = $12, delivery = $13, updated_at = $14
		WHERE id = $15`

	tag, err := tx.Exec(ctx, query,
		docs.items, docs.customer, o.Total, o.CommissionTotal, o.PointsTotal,
		string(o.Status), string(o.PaymentStatus), string(o.CommissionStatus), o.CommissionCredited,
		o.PointsCredited, o.PaymentLinkID, o.PaymentURL, docs.delivery, o.UpdatedAt,
		o.ID,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("order not found: %s", o.ID)
	}
	return nil
}

func (r *OrderRepo) TransitionStatus(ctx context.Context, tx pgx.Tx, id uuid.UUID, from, to domain.OrderStatus) (bool, error) {
	tag, err := tx.Exec(ctx,
		`UPDATE orders SET status = $1, updated_at = $2 WHERE id = $3 AND status = $4`,
		string(to), time.Now().UTC(), id, string(from),
	)
	if err != nil {
		return false, fmt.Errorf("transition order status: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func scanOrder(row pgx.Row) (*domain.Order, error) {
	o := &domain.Order{}
	var status, paymentStatus, commissionStatus string
	var items, customer, delivery []byte
	err := row.Scan(
		&o.ID, &o.SellerID, &o.Reference, &items, &customer,
		&o.Total, &o.CommissionTotal, &o.PointsTotal,
		&status, &paymentStatus, &commissionStatus,
		&o.CommissionCredited, &o.PointsCredited, &o.PaymentLinkID, &o.PaymentURL, &delivery,
		&o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		if noRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan order: %w", err)
	}
	o.Status = domain.OrderStatus(status)
	o.PaymentStatus = domain.PaymentStatus(paymentStatus)
	o.CommissionStatus = domain.CommissionStatus(commissionStatus)

	if err := json.Unmarshal(items, &o.Items); err != nil {
		return nil, fmt.Errorf("decode order items: %w", err)
	}
	if len(customer) > 0 {
		if err := json.Unmarshal(customer, &o.Customer); err != nil {
			return nil, fmt.Errorf("decode order customer: %w", err)
		}
	}
	if len(delivery) > 0 && string(delivery) != "null" {
		o.Delivery = &domain.DeliveryProof{}
		if err := json.Unmarshal(delivery, o.Delivery); err != nil {
			return nil, fmt.Errorf("decode delivery proof: %w", err)
		}
	}
	return o, nil
}
