package fixed

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrOutOfRange 表示十进制数超出 int64 定点表示范围。
var ErrOutOfRange = errors.New("decimal out of fixed-point range")

const scaleDigits = 4

// FromInt converts a whole number to fixed point.
func FromInt(v int64) int64 {
	return v * Scale
}

// FromDecimal parses a decimal string ("100.05", "-0.5", "1e-3") into fixed point.
// Digits beyond the 4th decimal are truncated toward zero.
func FromDecimal(s string) (int64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("parse decimal %q: %w", s, err)
	}
	return FromDecimalValue(d)
}

// FromDecimalValue converts an already-parsed decimal into fixed point.
func FromDecimalValue(d decimal.Decimal) (int64, error) {
	scaled := d.Shift(scaleDigits).Truncate(0)
	bi := scaled.BigInt()
	if !bi.IsInt64() {
		return 0, fmt.Errorf("%s: %w", d.String(), ErrOutOfRange)
	}
	return bi.Int64(), nil
}

// MustDecimal is FromDecimal for constants and tests; it panics on bad input.
func MustDecimal(s string) int64 {
	v, err := FromDecimal(s)
	if err != nil {
		panic(err)
	}
	return v
}

// ToDecimal returns the exact decimal value of v.
func ToDecimal(v int64) decimal.Decimal {
	return decimal.New(v, -scaleDigits)
}

// ToFloat64 is for logging and metrics export only; computed outputs stay integral.
func ToFloat64(v int64) float64 {
	return float64(v) / float64(Scale)
}

// Format renders v with exactly 4 decimal places.
func Format(v int64) string {
	return ToDecimal(v).StringFixed(scaleDigits)
}
