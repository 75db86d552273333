package memory

import (
	"fmt"
	"time"

	"reseller-ledger/internal/core/domain"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type seedFile struct {
	Sellers []struct {
		ID    string `mapstructure:"id"`
		Name  string `mapstructure:"name"`
		Email string `mapstructure:"email"`
	} `mapstructure:"sellers"`
	Products []struct {
		ID        string `mapstructure:"id"`
		Name      string `mapstructure:"name"`
		Price     string `mapstructure:"price"`
		CostPrice string `mapstructure:"cost_price"`
		Inactive  bool   `mapstructure:"inactive"`
	} `mapstructure:"products"`
}

// LoadSeed reads sellers and catalog products from a YAML or JSON file.
// The memory driver has no other way to learn about them.
func (s *Store) LoadSeed(path string) error {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("reading seed file: %w", err)
	}
	var seed seedFile
	if err := v.Unmarshal(&seed); err != nil {
		return fmt.Errorf("decoding seed file: %w", err)
	}

	now := time.Now().UTC()
	for _, raw := range seed.Sellers {
		id, err := uuid.Parse(raw.ID)
		if err != nil {
			return fmt.Errorf("seller %q: %w", raw.ID, err)
		}
		s.PutSeller(domain.Seller{
			ID: id, Name: raw.Name, Email: raw.Email, IsActive: true,
			Stats:     domain.SellerStats{TotalSales: decimal.Zero, AverageCommission: decimal.Zero},
			CreatedAt: now, UpdatedAt: now,
		})
	}
	for _, raw := range seed.Products {
		id, err := uuid.Parse(raw.ID)
		if err != nil {
			return fmt.Errorf("product %q: %w", raw.ID, err)
		}
		price, err := decimal.NewFromString(raw.Price)
		if err != nil {
			return fmt.Errorf("product %s price: %w", id, err)
		}
		p := domain.Product{ID: id, Name: raw.Name, Price: price, IsActive: !raw.Inactive}
		if raw.CostPrice != "" {
			cost, err := decimal.NewFromString(raw.CostPrice)
			if err != nil {
				return fmt.Errorf("product %s cost price: %w", id, err)
			}
			p.CostPrice = &cost
		}
		s.PutProduct(p)
	}
	return nil
}
