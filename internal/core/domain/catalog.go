package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Product is the catalog view the ledger needs: price and cost basis.
type Product struct {
	ID        uuid.UUID        `json:"id"`
	Name      string           `json:"name"`
	Price     decimal.Decimal  `json:"price"`
	CostPrice *decimal.Decimal `json:"cost_price,omitempty"`
	IsActive  bool             `json:"is_active"`
}

// SellerStats are the aggregate sale counters kept on a seller.
type SellerStats struct {
	TotalSales        decimal.Decimal `json:"total_sales"`
	ProductsSold      int64           `json:"products_sold"`
	SalesCount        int64           `json:"sales_count"`
	AverageCommission decimal.Decimal `json:"average_commission"`
	LastSaleAt        *time.Time      `json:"last_sale_at,omitempty"`
}

// RecordSale folds one sale into the running stats.
func (s *SellerStats) RecordSale(amount decimal.Decimal, quantity int, commission decimal.Decimal, at time.Time) {
	prev := decimal.NewFromInt(s.SalesCount)
	s.SalesCount++
	s.AverageCommission = s.AverageCommission.Mul(prev).Add(commission).
		DivRound(decimal.NewFromInt(s.SalesCount), 2)
	s.TotalSales = s.TotalSales.Add(amount)
	s.ProductsSold += int64(quantity)
	s.LastSaleAt = &at
}

// Seller is the reseller account that owns a wallet.
type Seller struct {
	ID        uuid.UUID   `json:"id"`
	Name      string      `json:"name"`
	Email     string      `json:"email"`
	IsActive  bool        `json:"is_active"`
	Stats     SellerStats `json:"stats"`
	CreatedAt time.Time   `json:"created_at"`
	UpdatedAt time.Time   `json:"updated_at"`
}
