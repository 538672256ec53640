package fixed

import "math/bits"

// Acc128 is an unsigned 128-bit running sum of products. Sliding windows use it to keep
// Σ(price*volume) exact however many samples they hold.
type Acc128 struct {
	hi, lo uint64
}

// AddMul adds a*b. Negative inputs are ignored.
func (a *Acc128) AddMul(x, y int64) {
	if x <= 0 || y <= 0 {
		return
	}
	hi, lo := bits.Mul64(uint64(x), uint64(y))
	var carry uint64
	a.lo, carry = bits.Add64(a.lo, lo, 0)
	a.hi, _ = bits.Add64(a.hi, hi, carry)
}

// SubMul removes a product previously added with AddMul.
func (a *Acc128) SubMul(x, y int64) {
	if x <= 0 || y <= 0 {
		return
	}
	hi, lo := bits.Mul64(uint64(x), uint64(y))
	var borrow uint64
	a.lo, borrow = bits.Sub64(a.lo, lo, 0)
	a.hi, _ = bits.Sub64(a.hi, hi, borrow)
}

// Quo returns the sum divided by d, truncated, saturating at MaxInt64.
func (a *Acc128) Quo(d int64) int64 {
	if d <= 0 {
		return 0
	}
	ud := uint64(d)
	if a.hi >= ud {
		return saturate(false)
	}
	q, _ := bits.Div64(a.hi, a.lo, ud)
	if q > uint64(saturate(false)) {
		return saturate(false)
	}
	return int64(q)
}

// IsZero reports an empty sum.
func (a *Acc128) IsZero() bool { return a.hi == 0 && a.lo == 0 }

// Reset clears the sum.
func (a *Acc128) Reset() { a.hi, a.lo = 0, 0 }
