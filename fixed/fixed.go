// Package fixed implements the scaled-integer arithmetic used by the book and the
// feature calculator. Every value is an int64 carrying 4 implied decimal digits.
//
// Rounding: every division truncates toward zero. Several outputs (idempotence of
// repeated applies, symmetry of imbalance/pressure) depend on this, so callers must
// not substitute floor or round-half-even anywhere.
package fixed

import (
	"math"
	"math/bits"
)

// Scale is the number of fixed-point units in 1.0.
const Scale int64 = 10_000

// Half is 0.5 at Scale.
const Half = Scale / 2

// tanhCeiling is the magnitude Tanh saturates to.
const tanhCeiling = Scale - 100

// MulScaled returns (a*b)/Scale, truncated toward zero.
func MulScaled(a, b int64) int64 {
	return MulDiv(a, b, Scale)
}

// MulDiv returns (a*b)/c with a 128-bit intermediate product, truncated toward zero.
// A zero divisor yields 0 and a quotient outside int64 saturates to ±MaxInt64.
func MulDiv(a, b, c int64) int64 {
	if c == 0 || a == 0 || b == 0 {
		return 0
	}
	neg := (a < 0) != (b < 0)
	if c < 0 {
		neg = !neg
	}
	hi, lo := bits.Mul64(magnitude(a), magnitude(b))
	uc := magnitude(c)
	if hi >= uc {
		return saturate(neg)
	}
	q, _ := bits.Div64(hi, lo, uc)
	if q > math.MaxInt64 {
		return saturate(neg)
	}
	if neg {
		return -int64(q)
	}
	return int64(q)
}

// Div returns a/b truncated toward zero, or 0 when b is 0.
func Div(a, b int64) int64 {
	if b == 0 {
		return 0
	}
	return a / b
}

// IntegerSqrt returns floor(sqrt(n)) using Newton's method.
// n < 0 returns 0 and n < 2 returns n.
func IntegerSqrt(n int64) int64 {
	if n < 0 {
		return 0
	}
	if n < 2 {
		return n
	}
	x := n
	y := x/2 + x%2 // (x+1)/2 without overflowing at MaxInt64
	for y < x {
		x = y
		y = (x + n/x) / 2
	}
	return x
}

// SqrtScaled returns sqrt(v) for a fixed-point v, itself at Scale.
func SqrtScaled(v int64) int64 {
	if v <= 0 {
		return 0
	}
	if v > math.MaxInt64/Scale {
		return IntegerSqrt(v) * 100 // sqrt(Scale) == 100
	}
	return IntegerSqrt(v * Scale)
}

// Tanh is a cheap saturating squash, not a hyperbolic tangent.
// |x| < Scale/2 maps to x*Scale/(Scale+|x|); anything larger saturates to ±(Scale-100).
func Tanh(x int64) int64 {
	if x > -Half && x < Half {
		return x * Scale / (Scale + Abs(x))
	}
	if x < 0 {
		return -tanhCeiling
	}
	return tanhCeiling
}

// Abs returns |x|; MinInt64 saturates to MaxInt64.
func Abs(x int64) int64 {
	if x < 0 {
		if x == math.MinInt64 {
			return math.MaxInt64
		}
		return -x
	}
	return x
}

func Min(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

func Max(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

// Clamp bounds x to [lo, hi].
func Clamp(x, lo, hi int64) int64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

func magnitude(x int64) uint64 {
	u := uint64(x)
	if x < 0 {
		u = -u
	}
	return u
}

func saturate(neg bool) int64 {
	if neg {
		return -math.MaxInt64
	}
	return math.MaxInt64
}
