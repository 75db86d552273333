package domain

import (
	"errors"

	"github.com/shopspring/decimal"
)

// CommissionPolicy holds every rate the commission calculator uses.
// One policy is configured per deployment.
type CommissionPolicy struct {
	CommissionRate    decimal.Decimal `json:"commission_rate"`
	FallbackRate      decimal.Decimal `json:"fallback_rate"`
	AssumedMarginRate decimal.Decimal `json:"assumed_margin_rate"`
	PointsDivisor     int64           `json:"points_divisor"`
}

// Validate rejects a malformed policy.
func (p CommissionPolicy) Validate() error {
	one := decimal.NewFromInt(1)
	if !p.CommissionRate.IsPositive() || p.CommissionRate.GreaterThan(one) {
		return errors.New("commission rate must be in (0, 1]")
	}
	if p.FallbackRate.IsNegative() || p.FallbackRate.GreaterThan(one) {
		return errors.New("fallback rate must be in [0, 1]")
	}
	if p.AssumedMarginRate.IsNegative() || p.AssumedMarginRate.GreaterThan(one) {
		return errors.New("assumed margin rate must be in [0, 1]")
	}
	if p.PointsDivisor <= 0 {
		return errors.New("points divisor must be positive")
	}
	return nil
}
