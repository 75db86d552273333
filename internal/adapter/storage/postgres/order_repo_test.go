package postgres

import (
	"context"
	"encoding/json"
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

func newTestOrder() *domain.Order {
	now := time.Now().UTC().Truncate(time.Microsecond)
	o := &domain.Order{
		ID:        uuid.New(),
		SellerID:  uuid.New(),
		Reference: "ORD-1001",
		Items: []domain.OrderItem{{
			ProductID:  uuid.New(),
			Name:       "Serum",
			Quantity:   2,
			UnitPrice:  decimal.NewFromInt(45000),
			Commission: decimal.NewFromInt(4000),
			Points:     9,
		}},
		Customer:         domain.Customer{Name: "Luisa", City: "Medellín"},
		Status:           domain.OrderStatusPaid,
		PaymentStatus:    domain.PaymentStatusApproved,
		CommissionStatus: domain.CommissionStatusPending,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	o.RecalculateTotals()
	return o
}

func orderRow(t *testing.T, o *domain.Order) *pgxmock.Rows {
	items, err := json.Marshal(o.Items)
	require.NoError(t, err)
	customer, err := json.Marshal(o.Customer)
	require.NoError(t, err)
	var delivery []byte
	if o.Delivery != nil {
		delivery, err = json.Marshal(o.Delivery)
		require.NoError(t, err)
	}
	return pgxmock.NewRows([]string{
		"id", "seller_id", "reference", "items", "customer", "total", "commission_total", "points_total",
		"status", "payment_status", "commission_status", "commission_credited", "points_credited",
		"payment_link_id", "payment_url", "delivery", "created_at", "updated_at",
	}).AddRow(
		o.ID, o.SellerID, o.Reference, items, customer, o.Total, o.CommissionTotal, o.PointsTotal,
		string(o.Status), string(o.PaymentStatus), string(o.CommissionStatus), o.CommissionCredited, o.PointsCredited,
		o.PaymentLinkID, o.PaymentURL, delivery, o.CreatedAt, o.UpdatedAt,
	)
}

func TestOrderRepo_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewOrderRepo(mock)
	o := newTestOrder()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO orders").
		WithArgs(o.ID, o.SellerID, "ORD-1001", pgxmock.AnyArg(), pgxmock.AnyArg(),
			o.Total, o.CommissionTotal, int64(9),
			"paid", "approved", "pending", false, false, o.PaymentLinkID, o.PaymentURL, []byte(nil),
			o.CreatedAt, o.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	assert.NoError(t, repo.Create(context.Background(), tx, o))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepo_Create_DuplicateReference(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewOrderRepo(mock)
	o := newTestOrder()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO orders").
		WithArgs(append([]any{o.ID, o.SellerID, o.Reference}, anyArgs(15)...)...).
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "orders_reference_key"})

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = repo.Create(context.Background(), tx, o)
	assert.ErrorIs(t, err, ports.ErrUniqueViolation)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepo_GetByReferenceForUpdate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewOrderRepo(mock)
	o := newTestOrder()
	o.Delivery = &domain.DeliveryProof{ReceivedBy: "Luisa", DeliveredAt: o.CreatedAt}

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM orders WHERE reference = \\$1 FOR UPDATE").
		WithArgs(o.Reference).
		WillReturnRows(orderRow(t, o))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	result, err := repo.GetByReferenceForUpdate(context.Background(), tx, o.Reference)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, domain.OrderStatusPaid, result.Status)
	require.Len(t, result.Items, 1)
	assert.Equal(t, 2, result.Items[0].Quantity)
	assert.True(t, result.Items[0].Commission.Equal(decimal.NewFromInt(4000)))
	assert.Equal(t, "Medellín", result.Customer.City)
	require.NotNil(t, result.Delivery)
	assert.Equal(t, "Luisa", result.Delivery.ReceivedBy)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepo_GetByID_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewOrderRepo(mock)
	id := uuid.New()

	mock.ExpectQuery("SELECT .+ FROM orders WHERE id").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"id"}))

	result, err := repo.GetByID(context.Background(), id)
	assert.NoError(t, err)
	assert.Nil(t, result)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepo_TransitionStatus(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewOrderRepo(mock)
	id := uuid.New()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE orders SET status = \\$1, updated_at = \\$2 WHERE id = \\$3 AND status = \\$4").
		WithArgs("shipped", pgxmock.AnyArg(), id, "processing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("UPDATE orders SET status").
		WithArgs("shipped", pgxmock.AnyArg(), id, "processing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	ok, err := repo.TransitionStatus(context.Background(), tx, id, domain.OrderStatusProcessing, domain.OrderStatusShipped)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.TransitionStatus(context.Background(), tx, id, domain.OrderStatusProcessing, domain.OrderStatusShipped)
	require.NoError(t, err)
	assert.False(t, ok, "status already moved on")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepo_Update_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewOrderRepo(mock)
	o := newTestOrder()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE orders SET items").
		WithArgs(append(anyArgs(14), o.ID)...).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = repo.Update(context.Background(), tx, o)
	assert.ErrorContains(t, err, "order not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}
