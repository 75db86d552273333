package service

import (
	"fmt"

	"reseller-ledger/internal/core/domain"
	"reseller-ledger/pkg/apperror"

	"github.com/shopspring/decimal"
)

// commissionPlaces is the precision commissions and margins are rounded to.
const commissionPlaces = 2

// CommissionQuote is the commission and margin for one unit of a product.
type CommissionQuote struct {
	Commission decimal.Decimal
	Margin     decimal.Decimal
	Explicit   bool
}

// CommissionCalculator applies a CommissionPolicy. It holds no state besides the policy.
type CommissionCalculator struct {
	policy domain.CommissionPolicy
}

// NewCommissionCalculator validates the policy and returns a calculator for it.
func NewCommissionCalculator(policy domain.CommissionPolicy) (*CommissionCalculator, error) {
	if err := policy.Validate(); err != nil {
		return nil, apperror.ErrInvalidPolicy(err)
	}
	return &CommissionCalculator{policy: policy}, nil
}

// Policy returns the policy in use.
func (c *CommissionCalculator) Policy() domain.CommissionPolicy {
	return c.policy
}

// ComputeCommission returns the per-unit commission for a sale at unitPrice.
//
// An explicit commission is used verbatim and the margin is derived from it.
// With a positive cost basis the margin is unitPrice - costPrice. Without one
// the fallback rate applies to the price and the margin is assumed.
func (c *CommissionCalculator) ComputeCommission(unitPrice decimal.Decimal, costPrice, explicit *decimal.Decimal) (CommissionQuote, error) {
	if err := c.policy.Validate(); err != nil {
		return CommissionQuote{}, apperror.ErrInvalidPolicy(err)
	}
	if unitPrice.IsNegative() {
		return CommissionQuote{}, apperror.Validation("unit price cannot be negative")
	}

	var q CommissionQuote
	switch {
	case explicit != nil:
		q.Explicit = true
		q.Commission = *explicit
		q.Margin = explicit.DivRound(c.policy.CommissionRate, commissionPlaces)
	case costPrice != nil && costPrice.IsPositive():
		q.Margin = unitPrice.Sub(*costPrice)
		q.Commission = q.Margin.Mul(c.policy.CommissionRate).Round(commissionPlaces)
	default:
		q.Commission = unitPrice.Mul(c.policy.FallbackRate).Round(commissionPlaces)
		q.Margin = unitPrice.Mul(c.policy.AssumedMarginRate).Round(commissionPlaces)
	}

	if q.Commission.IsNegative() {
		q.Commission = decimal.Zero
	}
	return q, nil
}

// ComputePoints returns floor(lineTotal / divisor), never negative.
func (c *CommissionCalculator) ComputePoints(lineTotal decimal.Decimal) int64 {
	if c.policy.PointsDivisor <= 0 || !lineTotal.IsPositive() {
		return 0
	}
	return lineTotal.Div(decimal.NewFromInt(c.policy.PointsDivisor)).Floor().IntPart()
}

// PriceLine builds an order line for quantity units of product. Points are
// computed on the whole line, commission per unit.
func (c *CommissionCalculator) PriceLine(product *domain.Product, quantity int, unitPrice, explicit *decimal.Decimal) (domain.OrderItem, error) {
	if quantity <= 0 {
		return domain.OrderItem{}, apperror.Validation(fmt.Sprintf("quantity for product %s must be positive", product.ID))
	}
	price := product.Price
	if unitPrice != nil {
		price = *unitPrice
	}

	quote, err := c.ComputeCommission(price, product.CostPrice, explicit)
	if err != nil {
		return domain.OrderItem{}, err
	}

	item := domain.OrderItem{
		ProductID:  product.ID,
		Name:       product.Name,
		Quantity:   quantity,
		UnitPrice:  price,
		CostPrice:  product.CostPrice,
		Commission: quote.Commission,
		Margin:     quote.Margin,
		Explicit:   quote.Explicit,
	}
	item.Points = c.ComputePoints(item.LineTotal())
	return item, nil
}
