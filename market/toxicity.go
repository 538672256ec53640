package market

import "market-signals-go/fixed"

// maxVolumeSkew caps |volumeRatio-1| before it enters the toxicity product.
var maxVolumeSkew = fixed.FromInt(10)

// FlowToxicity is a VPIN-style proxy: |imbalance| x normalized spread x |volumeRatio-1|,
// squashed with fixed.Tanh. All inputs and the result are fixed point; the result is in [0, Scale).
//   - imbalance in [-Scale, Scale]
//   - spreadBps in fixed bps, normalized against 100 bps and capped at 1
//   - volumeRatio = bidDepth/askDepth at fixed scale (Scale means balanced)
func FlowToxicity(imbalance, spreadBps, volumeRatio int64) int64 {
	spreadNorm := fixed.Min(fixed.Max(spreadBps, 0), fixed.FromInt(100)) / 100
	skew := fixed.Min(fixed.Abs(volumeRatio-fixed.Scale), maxVolumeSkew)
	raw := fixed.MulScaled(fixed.MulScaled(fixed.Abs(imbalance), spreadNorm), skew)
	return fixed.Tanh(raw)
}

// TradeFlow tracks aggressor buy/sell volume over a sliding time window.
type TradeFlow struct {
	window *Window[flowSample]
	buy    Qty
	sell   Qty
}

type flowSample struct {
	qty Qty
	buy bool
}

// NewTradeFlow creates a trade-flow tracker covering span nanoseconds.
func NewTradeFlow(span Ts) *TradeFlow {
	return &TradeFlow{window: NewWindow[flowSample](span)}
}

// AddTrade records a print and ages out anything older than the window.
func (f *TradeFlow) AddTrade(ts Ts, qty Qty, aggressor Side) {
	if qty <= 0 {
		return
	}
	buy := aggressor == Bid
	f.window.Push(ts, flowSample{qty: qty, buy: buy})
	if buy {
		f.buy += qty
	} else {
		f.sell += qty
	}
	f.Evict(ts)
}

// Evict drops prints older than latest-span.
func (f *TradeFlow) Evict(latest Ts) {
	f.window.Evict(latest, func(s flowSample) {
		if s.buy {
			f.buy -= s.qty
		} else {
			f.sell -= s.qty
		}
	})
}

// Imbalance returns (buy-sell)/(buy+sell) at fixed scale, 0 with no prints.
func (f *TradeFlow) Imbalance() int64 {
	return CalculateImbalance(f.buy, f.sell)
}

func (f *TradeFlow) BuyVolume() Qty  { return f.buy }
func (f *TradeFlow) SellVolume() Qty { return f.sell }
func (f *TradeFlow) Len() int        { return f.window.Len() }

// Reset clears all buckets.
func (f *TradeFlow) Reset() {
	f.window.Reset()
	f.buy, f.sell = 0, 0
}
