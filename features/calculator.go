package features

import (
	"market-signals-go/fixed"
	"market-signals-go/market"
)

const (
	scale = fixed.Scale

	// bpsFactor turns a price ratio into fixed-point basis points.
	bpsFactor = 10_000 * scale

	topLevels   = 5
	depthLevels = 10

	// 报价频率基线：100 次/秒
	stuffingBaselineRate = 100

	emaKeep  = 9500
	emaAlpha = 500
)

var (
	maxMomentumBps = fixed.FromInt(100)
	stabilityVol   = 10 * scale // 10 bps
)

// Calculator produces one Frame per Calculate call for a single instrument and carries the
// sliding windows, EMA and regime between calls. It is not safe for concurrent use; pair it
// with exactly one OrderBook and one writer.
type Calculator struct {
	symbol market.Symbol
	cfg    Config

	vwap   *VWAP
	flow   *market.TradeFlow
	regime *market.RegimeDetector

	lastMicroprice market.Px
	lastSpread     int64
	spreadEMA      int64
	updateCount    uint64
	lastUpdateTs   market.Ts
	lastStuffing   int64
}

// New 创建特征计算器。零值窗口使用 DefaultConfig。
func New(symbol market.Symbol, cfg Config) *Calculator {
	cfg = cfg.withDefaults()
	return &Calculator{
		symbol: symbol,
		cfg:    cfg,
		vwap:   NewVWAP(cfg.VWAPWindow),
		flow:   market.NewTradeFlow(cfg.FlowWindow),
		regime: market.NewRegimeDetector(),
	}
}

// NewHFT builds a calculator with HFTConfig windows.
func NewHFT(symbol market.Symbol) *Calculator { return New(symbol, HFTConfig()) }

// NewMarketMaker builds a calculator with MarketMakerConfig windows.
func NewMarketMaker(symbol market.Symbol) *Calculator { return New(symbol, MarketMakerConfig()) }

// RecordTrade feeds an aggressor print into the trade-flow window.
func (c *Calculator) RecordTrade(ts market.Ts, qty market.Qty, aggressor market.Side) {
	c.flow.AddTrade(ts, qty, aggressor)
}

// Calculate computes a frame from the current book. It returns false when either side is
// empty. Steps run in a fixed order: later steps read state that earlier steps just wrote,
// while resilience and momentum still see the previous call's microprice.
func (c *Calculator) Calculate(book *market.OrderBook) (Frame, bool) {
	bid, okBid := book.BestBid()
	ask, okAsk := book.BestAsk()
	if !okBid || !okAsk {
		return Frame{}, false
	}
	ts := book.LastUpdate()
	f := Frame{Ts: ts, Symbol: c.symbol}

	// 1. microprice
	mid := (bid.Price + ask.Price) / 2
	f.Microprice = microprice(bid, ask, mid)

	// 2. imbalance over the top 5 levels
	bd5, ad5 := book.BidDepth(topLevels), book.AskDepth(topLevels)
	f.Imbalance = market.CalculateImbalance(bd5, ad5)

	// 3. spread family; vol is the forecast before this call's return is pushed
	vol := c.regime.Volatility()
	f.SpreadBps = toBps(int64(ask.Price-bid.Price), int64(mid))
	f.WeightedSpread = weightedSpread(book, mid, f.SpreadBps)
	f.EffectiveSpread = effectiveSpread(f.SpreadBps, bd5, ad5)
	depth10 := int64(book.BidDepth(depthLevels)) + int64(book.AskDepth(depthLevels))
	f.PriceImpact = fixed.MulDiv(vol*100, scale, max(fixed.SqrtScaled(depth10), 1))
	f.Resilience = scale / 2
	if c.lastMicroprice > 0 {
		moveBps := toBps(fixed.Abs(int64(f.Microprice-c.lastMicroprice)), int64(c.lastMicroprice))
		f.Resilience = fixed.MulDiv(scale, scale, scale+moveBps)
	}

	// 4. flow
	volumeRatio := fixed.MulDiv(int64(bd5), scale, max(int64(ad5), 1))
	f.FlowToxicity = market.FlowToxicity(f.Imbalance, f.SpreadBps, volumeRatio)
	c.flow.Evict(ts)
	f.TradeImbalance = c.flow.Imbalance()
	f.QuoteStuffing = c.quoteStuffing(ts)
	var returnBps int64
	if c.lastMicroprice > 0 {
		returnBps = toBps(int64(f.Microprice-c.lastMicroprice), int64(c.lastMicroprice))
	}
	f.Momentum = fixed.Clamp(returnBps, -maxMomentumBps, maxMomentumBps)

	// 5. liquidity, stability, pressure
	f.LiquidityScore = liquidityScore(depth10, f.SpreadBps, f.Imbalance)
	f.StabilityIndex = c.stabilityIndex(f.SpreadBps, bd5, ad5, vol)
	f.BookPressure = market.BookPressure(book, depthLevels)

	// 6. regime, including this call's return
	if c.lastMicroprice > 0 {
		c.regime.AddReturn(returnBps)
	}
	f.Regime = c.regime.DetectRegime(f.SpreadBps)

	// 7. predictive signals; mean reversion uses the VWAP before this call's sample
	f.PriceTrend = fixed.Tanh((3*f.Imbalance + 3*f.Momentum/100 + 2*f.BookPressure + 2*f.TradeImbalance) / 10)
	f.VolatilityForecast = c.regime.Volatility()
	f.MeanReversion = -fixed.Tanh(c.vwap.DeviationBps(f.Microprice) / 10)
	f.AdverseSelection = fixed.Min((f.FlowToxicity+f.QuoteStuffing+fixed.Abs(f.Imbalance))/3, scale)

	// 8. VWAP
	c.vwap.Add(ts, f.Microprice, bid.Qty+ask.Qty)
	f.VWAPDeviation = c.vwap.DeviationBps(f.Microprice)

	// 9. persist; the EMA folds in the spread just stored
	c.lastMicroprice = f.Microprice
	c.lastSpread = f.SpreadBps
	c.spreadEMA = (c.spreadEMA*emaKeep + c.lastSpread*emaAlpha) / scale
	c.updateCount++
	c.lastUpdateTs = ts

	return f, true
}

// microprice = (bidPx*askQty + askPx*bidQty) / (bidQty+askQty), mid when both are 0.
func microprice(bid, ask market.Level, mid market.Px) market.Px {
	total := int64(bid.Qty) + int64(ask.Qty)
	if total <= 0 {
		return mid
	}
	var acc fixed.Acc128
	acc.AddMul(int64(bid.Price), int64(ask.Qty))
	acc.AddMul(int64(ask.Price), int64(bid.Qty))
	return market.Px(acc.Quo(total))
}

// toBps returns diff/base in fixed-point bps.
func toBps(diff, base int64) int64 {
	return fixed.MulDiv(diff, bpsFactor, max(base, 1))
}

// weightedSpread 前 5 档按两侧数量加权的 bps 价差。
func weightedSpread(book *market.OrderBook, mid market.Px, fallback int64) int64 {
	var num, den int64
	for i := 0; i < topLevels; i++ {
		b, okB := book.BidLevel(i)
		a, okA := book.AskLevel(i)
		if !okB || !okA {
			break
		}
		w := int64(b.Qty) + int64(a.Qty)
		num += fixed.MulScaled(toBps(int64(a.Price-b.Price), int64(mid)), w)
		den += w
	}
	if den == 0 {
		return fallback
	}
	return fixed.MulDiv(num, scale, den)
}

// effectiveSpread = spread * (0.5 + 0.3*bidShare)
func effectiveSpread(spreadBps int64, bd5, ad5 market.Qty) int64 {
	bidShare := int64(scale / 2)
	if total := int64(bd5) + int64(ad5); total > 0 {
		bidShare = fixed.MulDiv(int64(bd5), scale, total)
	}
	factor := scale/2 + fixed.MulScaled(3000, bidShare)
	return fixed.MulScaled(spreadBps, factor)
}

// quoteStuffing saturates the update rate above a 100/s baseline. The first call has no
// interval and reports 0. Updates sharing a timestamp (levels of one exchange message, or
// no-op updates that left the book time unchanged) belong to the same burst and repeat
// its value.
func (c *Calculator) quoteStuffing(ts market.Ts) int64 {
	if c.updateCount == 0 {
		c.lastStuffing = 0
		return 0
	}
	if ts <= c.lastUpdateTs {
		return c.lastStuffing
	}
	rate := int64(1_000_000_000) / int64(ts-c.lastUpdateTs)
	excess := max(rate-stuffingBaselineRate, 0)
	c.lastStuffing = fixed.Tanh(fixed.MulDiv(excess, scale, stuffingBaselineRate))
	return c.lastStuffing
}

// liquidityScore blends a geometric mean of depth and spread scores with book balance.
func liquidityScore(depth, spreadBps, imbalance int64) int64 {
	depthScore := fixed.MulDiv(scale, depth, max(depth+100*scale, 1))
	spreadScore := fixed.MulDiv(10*scale, scale, 10*scale+max(spreadBps, 0))
	geo := fixed.SqrtScaled(fixed.MulScaled(depthScore, spreadScore))
	return (2*geo + (scale - fixed.Abs(imbalance))) / 3
}

// stabilityIndex mixes spread steadiness against the EMA and depth symmetry, damped by
// volatility above 10 bps.
func (c *Calculator) stabilityIndex(spreadBps int64, bd5, ad5 market.Qty, vol int64) int64 {
	dev := fixed.Abs(spreadBps - c.spreadEMA)
	spreadStab := fixed.MulDiv(10*scale, scale, 10*scale+dev)
	lo, hi := min(int64(bd5), int64(ad5)), max(int64(bd5), int64(ad5))
	symmetry := int64(0)
	if hi > 0 {
		symmetry = fixed.MulDiv(lo, scale, hi)
	}
	return fixed.MulDiv((spreadStab+symmetry)/2, stabilityVol, max(vol, stabilityVol))
}

func (c *Calculator) Symbol() market.Symbol { return c.symbol }
func (c *Calculator) Config() Config        { return c.cfg }

// UpdateCount 成功计算的次数。
func (c *Calculator) UpdateCount() uint64 { return c.updateCount }

func (c *Calculator) LastUpdateTs() market.Ts      { return c.lastUpdateTs }
func (c *Calculator) LastMicroprice() market.Px    { return c.lastMicroprice }
func (c *Calculator) LastSpread() int64            { return c.lastSpread }
func (c *Calculator) SpreadEMA() int64             { return c.spreadEMA }
func (c *Calculator) Regime() market.MarketRegime  { return c.regime.Current() }
func (c *Calculator) VWAP() *VWAP                  { return c.vwap }
func (c *Calculator) TradeFlow() *market.TradeFlow { return c.flow }
func (c *Calculator) VolatilitySamples() int       { return c.regime.Returns().Len() }

// Reset clears every window and the persistent state; the config is kept.
func (c *Calculator) Reset() {
	c.vwap.Reset()
	c.flow.Reset()
	c.regime = market.NewRegimeDetector()
	c.lastMicroprice = 0
	c.lastSpread = 0
	c.spreadEMA = 0
	c.updateCount = 0
	c.lastUpdateTs = 0
	c.lastStuffing = 0
}
