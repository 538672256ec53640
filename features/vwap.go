package features

import (
	"market-signals-go/fixed"
	"market-signals-go/market"
)

type vwapSample struct {
	px  market.Px
	vol market.Qty
}

// VWAP is a time-windowed volume-weighted average price. Σ(px*vol) is kept in a 128-bit
// accumulator so neither long windows nor large notionals overflow, and each update is O(1)
// amortized.
type VWAP struct {
	window *market.Window[vwapSample]
	pv     fixed.Acc128
	vol    int64
	latest market.Ts
}

func NewVWAP(span market.Ts) *VWAP {
	return &VWAP{window: market.NewWindow[vwapSample](span)}
}

// Add pushes a sample and evicts everything older than ts-span.
func (v *VWAP) Add(ts market.Ts, px market.Px, vol market.Qty) {
	if vol > 0 && px > 0 {
		v.window.Push(ts, vwapSample{px: px, vol: vol})
		v.pv.AddMul(int64(px), int64(vol))
		v.vol += int64(vol)
	}
	if ts > v.latest {
		v.latest = ts
	}
	v.window.Evict(v.latest, func(s vwapSample) {
		v.pv.SubMul(int64(s.px), int64(s.vol))
		v.vol -= int64(s.vol)
	})
}

// Value returns the current VWAP; false while the window is empty.
func (v *VWAP) Value() (market.Px, bool) {
	if v.vol <= 0 {
		return 0, false
	}
	return market.Px(v.pv.Quo(v.vol)), true
}

// DeviationBps returns (px-vwap)/vwap in fixed-point bps, 0 when empty.
func (v *VWAP) DeviationBps(px market.Px) int64 {
	vwap, ok := v.Value()
	if !ok {
		return 0
	}
	return fixed.MulDiv(int64(px-vwap), bpsFactor, max(int64(vwap), 1))
}

// Len 窗口内样本数。
func (v *VWAP) Len() int { return v.window.Len() }

// OldestTs returns the timestamp of the oldest retained sample.
func (v *VWAP) OldestTs() (market.Ts, bool) {
	ts, _, ok := v.window.Oldest()
	return ts, ok
}

func (v *VWAP) Span() market.Ts { return v.window.Span() }

func (v *VWAP) Reset() {
	v.window.Reset()
	v.pv.Reset()
	v.vol = 0
	v.latest = 0
}
