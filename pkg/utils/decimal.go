// Package utils provides shared utility functions.
package utils

import (
	"github.com/shopspring/decimal"
)

// ContractMultiplier is the number of underlying shares one option contract controls.
const ContractMultiplier = 100

var multiplier = decimal.NewFromInt(ContractMultiplier)

// Numeric is the set of inputs accepted by the quantizers.
type Numeric interface {
	int | int32 | int64 | float32 | float64 | decimal.Decimal
}

// ToDecimal converts a numeric value to a decimal without rounding.
// Floats go through their shortest decimal representation, so 12.77 stays 12.77.
func ToDecimal[T Numeric](v T) decimal.Decimal {
	switch x := any(v).(type) {
	case decimal.Decimal:
		return x
	case int:
		return decimal.NewFromInt(int64(x))
	case int32:
		return decimal.NewFromInt32(x)
	case int64:
		return decimal.NewFromInt(x)
	case float32:
		return decimal.NewFromFloat32(x)
	case float64:
		return decimal.NewFromFloat(x)
	}
	return decimal.Zero
}

// Decimal0 quantizes v to a whole number, rounding half away from zero.
func Decimal0[T Numeric](v T) decimal.Decimal {
	return ToDecimal(v).Round(0)
}

// Decimal2 quantizes v to cents, rounding half away from zero.
func Decimal2[T Numeric](v T) decimal.Decimal {
	return ToDecimal(v).Round(2)
}

// Decimal4 quantizes v to four places, rounding half away from zero.
func Decimal4[T Numeric](v T) decimal.Decimal {
	return ToDecimal(v).Round(4)
}

// Premium returns price × 100 × quantity at cent precision.
func Premium(price decimal.Decimal, quantity int) decimal.Decimal {
	return Decimal2(price.Mul(multiplier).Mul(decimal.NewFromInt(int64(quantity))))
}

// Multiplier returns the contract multiplier as a decimal.
func Multiplier() decimal.Decimal {
	return multiplier
}

// AbsInt returns the absolute value of n.
func AbsInt(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

// Sign returns -1, 0 or 1.
func Sign(n int) int {
	switch {
	case n < 0:
		return -1
	case n > 0:
		return 1
	}
	return 0
}
