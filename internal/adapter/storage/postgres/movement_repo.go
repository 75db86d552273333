package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"reseller-ledger/internal/core/domain"
	"reseller-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const movementColumns = `id, wallet_id, seller_id, type, amount, points, balance_after, pending_balance_after,
	points_after, description, status, order_id, product_id, idempotency_key, details,
	created_at, processed_at, processed_by, status_reason`

// MovementRepo implements ports.MovementRepository.
type MovementRepo struct {
	pool Pool
}

// NewMovementRepo creates a new MovementRepo.
func NewMovementRepo(pool Pool) *MovementRepo {
	return &MovementRepo{pool: pool}
}

// Create appends a movement within a database transaction.
func (r *MovementRepo) Create(ctx context.Context, tx pgx.Tx, m *domain.Movement) error {
	details, err := domain.EncodeDetails(m.Details)
	if err != nil {
		return fmt.Errorf("encode movement details: %w", err)
	}

	query := `INSERT INTO wallet_movements (` + movementColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`

	_, err = tx.Exec(ctx, query,
		m.ID, m.WalletID, m.SellerID, string(m.Type), m.Amount, m.Points,
		m.BalanceAfter, m.PendingBalanceAfter, m.PointsAfter, m.Description, string(m.Status),
		m.OrderID, m.ProductID, m.IdempotencyKey, details,
		m.CreatedAt, m.ProcessedAt, m.ProcessedBy, m.StatusReason,
	)
	if err != nil {
		return mapWriteError("insert movement", err)
	}
	return nil
}

func (r *MovementRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Movement, error) {
	query := `SELECT ` + movementColumns + ` FROM wallet_movements WHERE id = $1`
	return scanMovement(r.pool.QueryRow(ctx, query, id))
}

func (r *MovementRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Movement, error) {
	query := `SELECT ` + movementColumns + ` FROM wallet_movements WHERE id = $1 FOR UPDATE`
	return scanMovement(tx.QueryRow(ctx, query, id))
}

func (r *MovementRepo) GetByIdempotencyKey(ctx context.Context, key string) (*domain.Movement, error) {
	query := `SELECT ` + movementColumns + ` FROM wallet_movements WHERE idempotency_key = $1`
	return scanMovement(r.pool.QueryRow(ctx, query, key))
}

func (r *MovementRepo) ExistsForOrder(ctx context.Context, tx pgx.Tx, orderID uuid.UUID, t domain.MovementType) (bool, error) {
	var exists bool
	err := tx.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM wallet_movements WHERE order_id = $1 AND type = $2)`,
		orderID, string(t),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check movement exists: %w", err)
	}
	return exists, nil
}

// UpdateStatus writes the review outcome of a single movement.
func (r *MovementRepo) UpdateStatus(ctx context.Context, tx pgx.Tx, m *domain.Movement) error {
	query := `UPDATE wallet_movements SET status = $1, processed_at = $2, processed_by = $3, status_reason = $4
		WHERE id = $5`

	tag, err := tx.Exec(ctx, query, string(m.Status), m.ProcessedAt, m.ProcessedBy, m.StatusReason, m.ID)
	if err != nil {
		return fmt.Errorf("update movement status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("movement not found: %s", m.ID)
	}
	return nil
}

func (r *MovementRepo) TransitionByOrder(ctx context.Context, tx pgx.Tx, p ports.MovementTransition) (int64, error) {
	query := `UPDATE wallet_movements SET status = $1, processed_at = $2, processed_by = $3, status_reason = $4
		WHERE order_id = $5 AND type = $6 AND status = $7`

	tag, err := tx.Exec(ctx, query,
		string(p.To), time.Now().UTC(), p.ProcessedBy, p.Reason,
		p.OrderID, string(p.Type), string(p.From),
	)
	if err != nil {
		return 0, fmt.Errorf("transition movements: %w", err)
	}
	return tag.RowsAffected(), nil
}

// List fetches a seller's movements, newest first, with filtering and pagination.
// Movements written in one transaction share created_at; seq keeps them in write order.
func (r *MovementRepo) List(ctx context.Context, f domain.MovementFilter) ([]domain.Movement, int64, error) {
	var conditions []string
	var args []any
	argIdx := 1

	conditions = append(conditions, fmt.Sprintf("seller_id = $%d", argIdx))
	args = append(args, f.SellerID)
	argIdx++

	if f.Type != nil {
		conditions = append(conditions, fmt.Sprintf("type = $%d", argIdx))
		args = append(args, string(*f.Type))
		argIdx++
	}
	if f.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIdx))
		args = append(args, string(*f.Status))
		argIdx++
	}
	if f.OrderID != nil {
		conditions = append(conditions, fmt.Sprintf("order_id = $%d", argIdx))
		args = append(args, *f.OrderID)
		argIdx++
	}

	where := "WHERE " + strings.Join(conditions, " AND ")

	var total int64
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM wallet_movements "+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count movements: %w", err)
	}

	dataQuery := `SELECT ` + movementColumns + ` FROM wallet_movements ` + where + ` ORDER BY created_at DESC, seq DESC`
	if f.PageSize > 0 {
		page := f.Page
		if page < 1 {
			page = 1
		}
		dataQuery += fmt.Sprintf(" LIMIT $%d OFFSET $%d", argIdx, argIdx+1)
		args = append(args, f.PageSize, (page-1)*f.PageSize)
	}

	rows, err := r.pool.Query(ctx, dataQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list movements: %w", err)
	}
	defer rows.Close()

	movements := []domain.Movement{}
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, 0, err
		}
		movements = append(movements, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate movement rows: %w", err)
	}
	return movements, total, nil
}

// Summarize aggregates a seller's movements per type and status.
func (r *MovementRepo) Summarize(ctx context.Context, sellerID uuid.UUID) ([]ports.MovementSummary, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT type, status, COUNT(*), COALESCE(SUM(amount), 0), COALESCE(SUM(points), 0)
		 FROM wallet_movements WHERE seller_id = $1
		 GROUP BY type, status ORDER BY type, status`, sellerID)
	if err != nil {
		return nil, fmt.Errorf("summarize movements: %w", err)
	}
	defer rows.Close()

	var out []ports.MovementSummary
	for rows.Next() {
		var s ports.MovementSummary
		var typ, status string
		if err := rows.Scan(&typ, &status, &s.Count, &s.Amount, &s.Points); err != nil {
			return nil, fmt.Errorf("scan movement summary: %w", err)
		}
		s.Type = domain.MovementType(typ)
		s.Status = domain.MovementStatus(status)
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanMovement(row pgx.Row) (*domain.Movement, error) {
	m := &domain.Movement{}
	var typ, status string
	var details []byte
	err := row.Scan(
		&m.ID, &m.WalletID, &m.SellerID, &typ, &m.Amount, &m.Points,
		&m.BalanceAfter, &m.PendingBalanceAfter, &m.PointsAfter, &m.Description, &status,
		&m.OrderID, &m.ProductID, &m.IdempotencyKey, &details,
		&m.CreatedAt, &m.ProcessedAt, &m.ProcessedBy, &m.StatusReason,
	)
	if err != nil {
		if noRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan movement: %w", err)
	}
	m.Type = domain.MovementType(typ)
	m.Status = domain.MovementStatus(status)
	if m.Details, err = domain.DecodeDetails(m.Type, details); err != nil {
		return nil, err
	}
	return m, nil
}
