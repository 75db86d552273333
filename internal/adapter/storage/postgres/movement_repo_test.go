package postgres

import (
	"context"
	"testing"
	"time"

	"reseller-ledger/internal/core/domain"
	"reseller-ledger/internal/core/ports"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var movementColumnNames = []string{
	"id", "wallet_id", "seller_id", "type", "amount", "points", "balance_after", "pending_balance_after",
	"points_after", "description", "status", "order_id", "product_id", "idempotency_key", "details",
	"created_at", "processed_at", "processed_by", "status_reason",
}

func newTestWithdrawal() *domain.Movement {
	w := newTestWallet(uuid.New())
	key := "seller:abc"
	m := domain.NewMovement(w, domain.WithdrawalDetails{
		Method: domain.PayoutMethodNequi,
		Payout: domain.PayoutDetails{PhoneNumber: "3001234567"},
	}, decimal.NewFromInt(-60000), 0, domain.MovementStatusPending, "withdrawal request", time.Now().UTC())
	m.IdempotencyKey = &key
	return m
}

func movementRow(m *domain.Movement, details []byte) *pgxmock.Rows {
	return pgxmock.NewRows(movementColumnNames).AddRow(
		m.ID, m.WalletID, m.SellerID, string(m.Type), m.Amount, m.Points,
		m.BalanceAfter, m.PendingBalanceAfter, m.PointsAfter, m.Description, string(m.Status),
		m.OrderID, m.ProductID, m.IdempotencyKey, details,
		m.CreatedAt, m.ProcessedAt, m.ProcessedBy, m.StatusReason,
	)
}

func TestMovementRepo_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewMovementRepo(mock)
	m := newTestWithdrawal()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO wallet_movements").
		WithArgs(m.ID, m.WalletID, m.SellerID, "withdrawal", m.Amount, int64(0),
			m.BalanceAfter, m.PendingBalanceAfter, m.PointsAfter, m.Description, "pending",
			m.OrderID, m.ProductID, m.IdempotencyKey, pgxmock.AnyArg(),
			m.CreatedAt, m.ProcessedAt, m.ProcessedBy, m.StatusReason).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	assert.NoError(t, repo.Create(context.Background(), tx, m))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMovementRepo_Create_DuplicateIdempotencyKey(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewMovementRepo(mock)
	m := newTestWithdrawal()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO wallet_movements").
		WithArgs(append([]any{m.ID}, anyArgs(18)...)...).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "wallet_movements_idempotency_key_key"})

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = repo.Create(context.Background(), tx, m)
	assert.ErrorIs(t, err, ports.ErrUniqueViolation)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMovementRepo_GetByIdempotencyKey_DecodesDetails(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewMovementRepo(mock)
	m := newTestWithdrawal()
	details, err := domain.EncodeDetails(m.Details)
	require.NoError(t, err)

	mock.ExpectQuery("SELECT .+ FROM wallet_movements WHERE idempotency_key").
		WithArgs(*m.IdempotencyKey).
		WillReturnRows(movementRow(m, details))

	result, err := repo.GetByIdempotencyKey(context.Background(), *m.IdempotencyKey)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, domain.MovementWithdrawal, result.Type)
	wd, ok := result.Details.(domain.WithdrawalDetails)
	require.True(t, ok)
	assert.Equal(t, "3001234567", wd.Payout.PhoneNumber)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMovementRepo_ExistsForOrder(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewMovementRepo(mock)
	orderID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT EXISTS").
		WithArgs(orderID, "delivery_confirmed").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	exists, err := repo.ExistsForOrder(context.Background(), tx, orderID, domain.MovementDeliveryConfirmed)
	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMovementRepo_TransitionByOrder(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewMovementRepo(mock)
	orderID := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE wallet_movements SET status").
		WithArgs("approved", pgxmock.AnyArg(), "system", (*string)(nil),
			orderID, "commission_earned", "pending").
		WillReturnResult(pgxmock.NewResult("UPDATE", 2))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	n, err := repo.TransitionByOrder(context.Background(), tx, ports.MovementTransition{
		OrderID:     orderID,
		Type:        domain.MovementCommissionEarned,
		From:        domain.MovementStatusPending,
		To:          domain.MovementStatusApproved,
		ProcessedBy: "system",
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMovementRepo_List(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewMovementRepo(mock)
	m := newTestWithdrawal()
	details, err := domain.EncodeDetails(m.Details)
	require.NoError(t, err)
	typ := domain.MovementWithdrawal

	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM wallet_movements WHERE seller_id = \\$1 AND type = \\$2").
		WithArgs(m.SellerID, "withdrawal").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(21)))
	mock.ExpectQuery("SELECT .+ FROM wallet_movements WHERE .+ ORDER BY created_at DESC, seq DESC LIMIT \\$3 OFFSET \\$4").
		WithArgs(m.SellerID, "withdrawal", 20, 20).
		WillReturnRows(movementRow(m, details))

	movements, total, err := repo.List(context.Background(), domain.MovementFilter{
		SellerID: m.SellerID, Type: &typ, Page: 2, PageSize: 20,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(21), total)
	require.Len(t, movements, 1)
	assert.Equal(t, m.ID, movements[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMovementRepo_Summarize(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewMovementRepo(mock)
	sellerID := uuid.New()

	mock.ExpectQuery("SELECT type, status, COUNT\\(\\*\\)").
		WithArgs(sellerID).
		WillReturnRows(pgxmock.NewRows([]string{"type", "status", "count", "amount", "points"}).
			AddRow("commission_earned", "pending", int64(2), decimal.NewFromInt(8000), int64(0)).
			AddRow("points_earned", "approved", int64(1), decimal.Zero, int64(9)))

	rows, err := repo.Summarize(context.Background(), sellerID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, domain.MovementCommissionEarned, rows[0].Type)
	assert.True(t, rows[0].Amount.Equal(decimal.NewFromInt(8000)))
	assert.Equal(t, int64(9), rows[1].Points)
	assert.NoError(t, mock.ExpectationsWereMet())
}
