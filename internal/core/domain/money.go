package domain

import "github.com/shopspring/decimal"

// Ledger amounts are major currency units. Gateways speak minor units (cents);
// these two functions are the only conversion between them.

// ToCents converts a major-unit amount to cents, rounding half away from zero.
func ToCents(amount decimal.Decimal) int64 {
	return amount.Shift(2).Round(0).IntPart()
}

// FromCents converts cents to a major-unit amount.
func FromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}
