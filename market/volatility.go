package market

import "market-signals-go/fixed"

const (
	// VolatilityWindowSize caps the return window; older returns are evicted FIFO.
	VolatilityWindowSize = 100
	// MinVolatilitySamples is the sample count below which Forecast returns DefaultVolatilityBps.
	MinVolatilitySamples = 10
)

// DefaultVolatilityBps is the neutral low volatility (10 bps) used until enough returns exist.
var DefaultVolatilityBps = fixed.FromInt(10)

// ReturnWindow keeps the last N absolute bps returns in a ring buffer.
type ReturnWindow struct {
	values []int64
	head   int
	count  int
}

// NewReturnWindow creates a window holding at most size returns.
func NewReturnWindow(size int) *ReturnWindow {
	if size <= 0 {
		size = VolatilityWindowSize
	}
	return &ReturnWindow{values: make([]int64, size)}
}

// Push adds a return, evicting the oldest when full.
func (w *ReturnWindow) Push(v int64) {
	idx := (w.head + w.count) % len(w.values)
	if w.count == len(w.values) {
		w.values[w.head] = v
		w.head = (w.head + 1) % len(w.values)
		return
	}
	w.values[idx] = v
	w.count++
}

// Len returns the number of stored returns.
func (w *ReturnWindow) Len() int { return w.count }

// Cap returns the window capacity.
func (w *ReturnWindow) Cap() int { return len(w.values) }

// At returns the i-th oldest value.
func (w *ReturnWindow) At(i int) int64 {
	return w.values[(w.head+i)%len(w.values)]
}

// StdDev is the population standard deviation of the stored returns, via IntegerSqrt.
// Both sums are kept in 128 bits; a variance beyond int64 saturates rather than wrapping.
func (w *ReturnWindow) StdDev() int64 {
	if w.count < 2 {
		return 0
	}
	n := int64(w.count)
	var sum fixed.Acc128
	for i := 0; i < w.count; i++ {
		sum.AddMul(w.At(i), 1)
	}
	mean := sum.Quo(n)
	var sq fixed.Acc128
	for i := 0; i < w.count; i++ {
		d := fixed.Abs(w.At(i) - mean)
		sq.AddMul(d, d)
	}
	return fixed.SqrtScaled(sq.Quo(n * fixed.Scale))
}

// Forecast returns StdDev once MinVolatilitySamples returns exist, DefaultVolatilityBps before.
func (w *ReturnWindow) Forecast() int64 {
	if !w.IsReady() {
		return DefaultVolatilityBps
	}
	return w.StdDev()
}

// IsReady reports whether Forecast has enough samples to use StdDev.
func (w *ReturnWindow) IsReady() bool {
	return w.count >= MinVolatilitySamples
}

// Reset clears the window.
func (w *ReturnWindow) Reset() {
	w.head = 0
	w.count = 0
}
