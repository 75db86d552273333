package postgres

import (
	"context"
	"testing"
	"time"

	"reseller-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSellerRepo_GetByIDForUpdate(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewSellerRepo(mock)
	id := uuid.New()
	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT .+ FROM sellers WHERE id = \\$1 FOR UPDATE").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{
			"id", "name", "email", "is_active", "total_sales", "products_sold", "sales_count",
			"average_commission", "last_sale_at", "created_at", "updated_at",
		}).AddRow(id, "Ana", "ana@example.com", true, decimal.NewFromInt(90000), int64(2), int64(1),
			decimal.NewFromInt(8000), &now, now, now))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	s, err := repo.GetByIDForUpdate(context.Background(), tx, id)
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, "Ana", s.Name)
	assert.Equal(t, int64(2), s.Stats.ProductsSold)
	require.NotNil(t, s.Stats.LastSaleAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSellerRepo_UpdateStats(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewSellerRepo(mock)
	id := uuid.New()
	now := time.Now().UTC()
	stats := domain.SellerStats{
		TotalSales:        decimal.NewFromInt(135000),
		ProductsSold:      3,
		SalesCount:        2,
		AverageCommission: decimal.NewFromInt(6000),
		LastSaleAt:        &now,
	}

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE sellers SET total_sales").
		WithArgs(stats.TotalSales, int64(3), int64(2), stats.AverageCommission, stats.LastSaleAt, id).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	tx, err := mock.Begin(context.Background())
	require.NoError(t, err)

	err = repo.UpdateStats(context.Background(), tx, id, stats)
	assert.ErrorContains(t, err, "seller not found")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProductRepo_GetByID(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewProductRepo(mock)
	id := uuid.New()
	cost := decimal.NewFromInt(25000)

	mock.ExpectQuery("SELECT id, name, price, cost_price, is_active FROM products").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "price", "cost_price", "is_active"}).
			AddRow(id, "Serum", decimal.NewFromInt(45000), &cost, true))

	p, err := repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, p)
	require.NotNil(t, p.CostPrice)
	assert.True(t, p.CostPrice.Equal(cost))
	assert.True(t, p.IsActive)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestProductRepo_GetByID_NullCost(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	repo := NewProductRepo(mock)
	id := uuid.New()

	mock.ExpectQuery("SELECT .+ FROM products").
		WithArgs(id).
		WillReturnRows(pgxmock.NewRows([]string{"id", "name", "price", "cost_price", "is_active"}).
			AddRow(id, "Crema", decimal.NewFromInt(30000), nil, true))

	p, err := repo.GetByID(context.Background(), id)
	require.NoError(t, err)
	assert.Nil(t, p.CostPrice)
	assert.NoError(t, mock.ExpectationsWereMet())
}
