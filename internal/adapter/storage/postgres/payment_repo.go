package postgres

import (
	"context"
	"fmt"

	"reseller-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const paymentColumns = `id, order_id, seller_id, reference, gateway_transaction_id, payment_method,
	amount, status, order_status, created_at, updated_at`

// PaymentTransactionRepo implements ports.PaymentTransactionRepository.
type PaymentTransactionRepo struct {
	pool Pool
}

// NewPaymentTransactionRepo creates a new PaymentTransactionRepo.
func NewPaymentTransactionRepo(pool Pool) *PaymentTransactionRepo {
	return &PaymentTransactionRepo{pool: pool}
}

func (r *PaymentTransactionRepo) Create(ctx context.Context, tx pgx.Tx, p *domain.PaymentTransaction) error {
	query := `INSERT INTO payment_transactions (` + paymentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := tx.Exec(ctx, query,
		p.ID, p.OrderID, p.SellerID, p.Reference, p.GatewayTransactionID, p.PaymentMethod,
		p.Amount, string(p.Status), string(p.OrderStatus), p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		return mapWriteError("insert payment transaction", err)
	}
	return nil
}

func (r *PaymentTransactionRepo) GetByOrderID(ctx context.Context, orderID uuid.UUID) (*domain.PaymentTransaction, error) {
	query := `SELECT ` + paymentColumns + ` FROM payment_transactions WHERE order_id = $1`
	return scanPayment(r.pool.QueryRow(ctx, query, orderID))
}

func (r *PaymentTransactionRepo) GetByOrderIDForUpdate(ctx context.Context, tx pgx.Tx, orderID uuid.UUID) (*domain.PaymentTransaction, error) {
	query := `SELECT ` + paymentColumns + ` FROM payment_transactions WHERE order_id = $1 FOR UPDATE`
	return scanPayment(tx.QueryRow(ctx, query, orderID))
}

func (r *PaymentTransactionRepo) Update(ctx context.Context, tx pgx.Tx, p *domain.PaymentTransaction) error {
	query := `UPDATE payment_transactions SET gateway_transaction_id = $1, payment_method = $2,
		status = $3, order_status = $4, updated_at = $5 WHERE id = $6`

	tag, err := tx.Exec(ctx, query,
		p.GatewayTransactionID, p.PaymentMethod, string(p.Status), string(p.OrderStatus), p.UpdatedAt, p.ID,
	)
	if err != nil {
		return fmt.Errorf("update payment transaction: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("payment transaction not found: %s", p.ID)
	}
	return nil
}

func scanPayment(row pgx.Row) (*domain.PaymentTransaction, error) {
	p := &domain.PaymentTransaction{}
	var status, orderStatus string
	err := row.Scan(
		&p.ID, &p.OrderID, &p.SellerID, &p.Reference, &p.GatewayTransactionID, &p.PaymentMethod,
		&p.Amount, &status, &orderStatus, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if noRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan payment transaction: %w", err)
	}
	p.Status = domain.PaymentStatus(status)
	p.OrderStatus = domain.OrderStatus(orderStatus)
	return p, nil
}
