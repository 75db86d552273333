package postgres

import (
	"context"
	"fmt"

	"reseller-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const sellerColumns = `id, name, email, is_active, total_sales, products_sold, sales_count,
	average_commission, last_sale_at, created_at, updated_at`

// SellerRepo implements ports.SellerRepository.
type SellerRepo struct {
	pool Pool
}

// NewSellerRepo creates a new SellerRepo.
func NewSellerRepo(pool Pool) *SellerRepo {
	return &SellerRepo{pool: pool}
}

// GetByID fetches a seller without locking.
func (r *SellerRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Seller, error) {
	query := `SELECT ` + sellerColumns + ` FROM sellers WHERE id = $1`
	return scanSeller(r.pool.QueryRow(ctx, query, id))
}

// GetByIDForUpdate locks the seller row for a stats update.
func (r *SellerRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id uuid.UUID) (*domain.Seller, error) {
	query := `SELECT ` + sellerColumns + ` FROM sellers WHERE id = $1 FOR UPDATE`
	return scanSeller(tx.QueryRow(ctx, query, id))
}

// UpdateStats overwrites the sale counters of a seller.
func (r *SellerRepo) UpdateStats(ctx context.Context, tx pgx.Tx, sellerID uuid.UUID, stats domain.SellerStats) error {
	query := `UPDATE sellers SET total_sales = $1, products_sold = $2, sales_count = $3,
		average_commission = $4, last_sale_at = $5, updated_at = NOW() WHERE id = $6`

	tag, err := tx.Exec(ctx, query,
		stats.TotalSales, stats.ProductsSold, stats.SalesCount,
		stats.AverageCommission, stats.LastSaleAt, sellerID,
	)
	if err != nil {
		return fmt.Errorf("update seller stats: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("seller not found: %s", sellerID)
	}
	return nil
}

func scanSeller(row pgx.Row) (*domain.Seller, error) {
	s := &domain.Seller{}
	err := row.Scan(
		&s.ID, &s.Name, &s.Email, &s.IsActive,
		&s.Stats.TotalSales, &s.Stats.ProductsSold, &s.Stats.SalesCount,
		&s.Stats.AverageCommission, &s.Stats.LastSaleAt, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if noRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("scan seller: %w", err)
	}
	return s, nil
}

// ProductRepo implements ports.ProductRepository.
type ProductRepo struct {
	pool Pool
}

// NewProductRepo creates a new ProductRepo.
func NewProductRepo(pool Pool) *ProductRepo {
	return &ProductRepo{pool: pool}
}

func (r *ProductRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	p := &domain.Product{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, name, price, cost_price, is_active FROM products WHERE id = $1`, id,
	).Scan(&p.ID, &p.Name, &p.Price, &p.CostPrice, &p.IsActive)
	if err != nil {
		if noRows(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("get product: %w", err)
	}
	return p, nil
}
