// Package types provides common type aliases and monetary utilities.
package types

import (
	"github.com/shopspring/decimal"
)

// Money represents a monetary value with full precision.
// Uses decimal.Decimal to avoid floating-point errors; rounding to two
// decimals happens only at presentation, never during computation.
type Money = decimal.Decimal

// IGVRate is the Peruvian sales tax (IGV) applied to settlement subtotals.
var IGVRate = decimal.NewFromFloat(0.18)

// NewMoney creates a Money value from a float.
// WARNING: Use NewMoneyFromString for precise values.
func NewMoney(f float64) Money {
	return decimal.NewFromFloat(f)
}

// NewMoneyFromString creates a Money value from a string.
// This is the preferred method for monetary values.
func NewMoneyFromString(s string) (Money, error) {
	return decimal.NewFromString(s)
}

// MustMoney creates a Money value from a string, panics on error.
// Use only for constants and tests.
func MustMoney(s string) Money {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Zero returns zero Money value.
func Zero() Money {
	return decimal.Zero
}

// Tax returns the IGV amount for a subtotal, full precision.
func Tax(subtotal Money) Money {
	return subtotal.Mul(IGVRate)
}

// TotalWithTax returns subtotal plus IGV, full precision.
func TotalWithTax(subtotal Money) Money {
	return subtotal.Add(Tax(subtotal))
}

// Display formats a monetary value with two decimals for presentation.
func Display(m Money) string {
	return m.StringFixed(2)
}
