package features

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-signals-go/fixed"
	"market-signals-go/market"
)

const sym market.Symbol = 42

func px(s string) market.Px   { return market.Px(fixed.MustDecimal(s)) }
func qty(s string) market.Qty { return market.Qty(fixed.MustDecimal(s)) }

func newBook() *market.OrderBook {
	return market.NewOrderBook(market.BookConfig{
		Symbol:   sym,
		TickSize: px("0.05"),
		Policy:   market.CrossAutoResolve,
	})
}

func apply(t testing.TB, b *market.OrderBook, ts market.Ts, side market.Side, price, q string) {
	t.Helper()
	require.NoError(t, b.ApplyValidated(market.DepthUpdate{
		Ts: ts, Symbol: sym, Side: side, Price: px(price), Qty: qty(q),
	}))
}

// 经典场景：买 100.00 x10 / 卖 100.10 x10
func standardBook(t testing.TB, ts market.Ts) *market.OrderBook {
	b := newBook()
	apply(t, b, ts, market.Bid, "100.00", "10")
	apply(t, b, ts, market.Ask, "100.10", "10")
	return b
}

func TestCalculateMicropriceScenario(t *testing.T) {
	c := New(sym, DefaultConfig())
	f, ok := c.Calculate(standardBook(t, 1_000))
	require.True(t, ok)

	assert.Equal(t, market.Px(1_000_500), f.Microprice)
	assert.Equal(t, int64(99_950), f.SpreadBps) // 0.10/100.05 = 9.995 bps
	assert.Equal(t, f.SpreadBps, f.WeightedSpread)
	assert.Equal(t, fixed.MulScaled(f.SpreadBps, 6_500), f.EffectiveSpread) // 0.5 + 0.3*0.5
	assert.Zero(t, f.Imbalance)
	assert.Zero(t, f.BookPressure)
	assert.Zero(t, f.FlowToxicity)
	assert.Zero(t, f.TradeImbalance)
	assert.Zero(t, f.QuoteStuffing)
	assert.Zero(t, f.Momentum)
	assert.Zero(t, f.MeanReversion)
	assert.Zero(t, f.VWAPDeviation)
	assert.Equal(t, scale/2, f.Resilience)
	assert.Equal(t, market.DefaultVolatilityBps, f.VolatilityForecast)
	assert.Equal(t, market.RegimeNormal, f.Regime)
	assert.Equal(t, market.Ts(1_000), f.Ts)
	assert.Equal(t, sym, f.Symbol)
	assert.Equal(t, uint64(1), c.UpdateCount())
	assert.Equal(t, 0, c.VolatilitySamples(), "no return without a previous microprice")
}

func TestCalculateOneSidedBook(t *testing.T) {
	c := New(sym, DefaultConfig())

	bidsOnly := newBook()
	apply(t, bidsOnly, 1, market.Bid, "100.00", "10")
	_, ok := c.Calculate(bidsOnly)
	assert.False(t, ok)

	asksOnly := newBook()
	apply(t, asksOnly, 1, market.Ask, "100.10", "10")
	_, ok = c.Calculate(asksOnly)
	assert.False(t, ok)

	assert.Zero(t, c.UpdateCount(), "one-sided books must not touch calculator state")
	assert.Zero(t, c.VWAP().Len())
}

// resilience and momentum read the previous call's microprice, while the spread EMA folds
// in the spread stored by the same call.
func TestCalculateStateOrdering(t *testing.T) {
	c := New(sym, DefaultConfig())
	b := standardBook(t, 1_000_000)

	f1, ok := c.Calculate(b)
	require.True(t, ok)
	assert.Equal(t, f1.SpreadBps, c.LastSpread())
	assert.Equal(t, int64(4_997), c.SpreadEMA()) // 99950 * 500 / 10000
	emaBefore := c.SpreadEMA()

	apply(t, b, 2_000_000, market.Ask, "100.10", "0")
	apply(t, b, 2_000_000, market.Ask, "100.20", "10")
	f2, ok := c.Calculate(b)
	require.True(t, ok)

	require.Equal(t, market.Px(1_001_000), f2.Microprice)
	move := toBps(int64(f2.Microprice-f1.Microprice), int64(f1.Microprice))
	assert.Equal(t, move, f2.Momentum)
	assert.Equal(t, fixed.MulDiv(scale, scale, scale+move), f2.Resilience)

	assert.Equal(t, f2.SpreadBps, c.LastSpread())
	assert.Equal(t, (emaBefore*9_500+f2.SpreadBps*500)/10_000, c.SpreadEMA())
	assert.Equal(t, f2.Microprice, c.LastMicroprice())
	assert.Equal(t, market.Ts(2_000_000), c.LastUpdateTs())
	assert.Equal(t, 1, c.VolatilitySamples())
}

func TestCalculateVWAPAndMeanReversion(t *testing.T) {
	c := New(sym, DefaultConfig())
	b := standardBook(t, 1_000)
	_, ok := c.Calculate(b)
	require.True(t, ok)

	apply(t, b, 2_000, market.Ask, "100.10", "0")
	apply(t, b, 2_000, market.Ask, "100.20", "10")
	f, ok := c.Calculate(b)
	require.True(t, ok)

	// mean reversion compares against the VWAP before this sample (100.05)
	devBefore := toBps(1_001_000-1_000_500, 1_000_500)
	assert.Equal(t, -fixed.Tanh(devBefore/10), f.MeanReversion)
	assert.Negative(t, f.MeanReversion)

	// VWAP after the push: equal volumes -> 100.075
	vwap, ok := c.VWAP().Value()
	require.True(t, ok)
	assert.Equal(t, market.Px(1_000_750), vwap)
	assert.Equal(t, toBps(1_001_000-1_000_750, 1_000_750), f.VWAPDeviation)
}

func TestVWAPWindowEviction(t *testing.T) {
	c := NewHFT(sym)
	b := standardBook(t, 0)
	window := c.Config().VWAPWindow

	for _, ts := range []time.Duration{0, 500 * time.Millisecond, 1200 * time.Millisecond, 3 * time.Second} {
		apply(t, b, market.Ts(ts), market.Bid, "100.00", "10")
		_, ok := c.Calculate(b)
		require.True(t, ok)

		oldest, ok := c.VWAP().OldestTs()
		require.True(t, ok)
		assert.GreaterOrEqual(t, oldest, market.Ts(ts)-window, "stale sample at ts=%s", ts)
	}
	assert.Equal(t, 1, c.VWAP().Len())
}

func TestTradeImbalanceFromRecordedTrades(t *testing.T) {
	c := New(sym, DefaultConfig())
	b := standardBook(t, market.Ts(time.Second))

	c.RecordTrade(market.Ts(900*time.Millisecond), qty("3"), market.Bid)
	c.RecordTrade(market.Ts(950*time.Millisecond), qty("1"), market.Ask)
	f, ok := c.Calculate(b)
	require.True(t, ok)
	assert.Equal(t, scale/2, f.TradeImbalance)

	// 超出成交流窗口后归零
	apply(t, b, market.Ts(3*time.Second), market.Bid, "100.00", "10")
	f, ok = c.Calculate(b)
	require.True(t, ok)
	assert.Zero(t, f.TradeImbalance)
	assert.Zero(t, c.TradeFlow().Len())
}

func TestQuoteStuffing(t *testing.T) {
	tests := []struct {
		name     string
		interval time.Duration
		want     int64
	}{
		{"below baseline", 100 * time.Millisecond, 0},
		{"at baseline", 10 * time.Millisecond, 0},
		{"burst", time.Millisecond, fixed.Scale - 100},
		{"mild", 8333 * time.Microsecond, fixed.Tanh(fixed.MulDiv(20, scale, 100))}, // 120/s
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(sym, DefaultConfig())
			b := standardBook(t, market.Ts(time.Second))
			_, ok := c.Calculate(b)
			require.True(t, ok)

			apply(t, b, market.Ts(time.Second+tt.interval), market.Bid, "100.00", "11")
			f, ok := c.Calculate(b)
			require.True(t, ok)
			assert.Equal(t, tt.want, f.QuoteStuffing)
		})
	}
}

// 同一条交易所消息里的多个档位共用时间戳，按一次更新计频率
func TestQuoteStuffingSameTimestampBurst(t *testing.T) {
	tests := []struct {
		name     string
		interval time.Duration
		want     int64
	}{
		{"slow feed", 100 * time.Millisecond, 0},
		{"fast feed", time.Millisecond, fixed.Scale - 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(sym, DefaultConfig())
			b := standardBook(t, market.Ts(time.Second))
			_, ok := c.Calculate(b)
			require.True(t, ok)

			ts := market.Ts(time.Second + tt.interval)
			apply(t, b, ts, market.Bid, "100.00", "11")
			first, ok := c.Calculate(b)
			require.True(t, ok)
			apply(t, b, ts, market.Ask, "100.10", "12")
			second, ok := c.Calculate(b)
			require.True(t, ok)
			// 盘口时间未变（例如 ROI 外的更新）再算一次
			again, ok := c.Calculate(b)
			require.True(t, ok)

			assert.Equal(t, tt.want, first.QuoteStuffing)
			assert.Equal(t, tt.want, second.QuoteStuffing)
			assert.Equal(t, tt.want, again.QuoteStuffing)
			assert.Equal(t, fixed.Min((second.FlowToxicity+tt.want+fixed.Abs(second.Imbalance))/3, scale),
				second.AdverseSelection)
		})
	}
}

func TestRegimeFollowsSpread(t *testing.T) {
	c := New(sym, DefaultConfig())
	b := newBook()
	apply(t, b, 1, market.Bid, "99.00", "10")
	apply(t, b, 1, market.Ask, "101.00", "10") // ~200 bps
	f, ok := c.Calculate(b)
	require.True(t, ok)
	assert.Equal(t, market.RegimeStressed, f.Regime)
	assert.Equal(t, market.RegimeStressed, c.Regime())
	assert.Equal(t, market.ClassifyRegime(f.VolatilityForecast, f.SpreadBps), f.Regime)
}

func TestWindowProfiles(t *testing.T) {
	hft, mm := NewHFT(sym), NewMarketMaker(sym)
	assert.Equal(t, market.Ts(time.Second), hft.Config().VWAPWindow)
	assert.Equal(t, market.Ts(100*time.Millisecond), hft.Config().FlowWindow)
	assert.Equal(t, market.Ts(60*time.Second), mm.Config().VWAPWindow)
	assert.Equal(t, market.Ts(5*time.Second), mm.Config().FlowWindow)
	assert.Equal(t, MarketMakerConfig(), ConfigForProfile("mm"))
	assert.Equal(t, DefaultConfig(), ConfigForProfile("whatever"))
	assert.Equal(t, DefaultConfig(), New(sym, Config{}).Config())

	// same book, same first frame: only the windows differ
	f1, _ := hft.Calculate(standardBook(t, 5))
	f2, _ := mm.Calculate(standardBook(t, 5))
	assert.Equal(t, f1, f2)
}

func TestCalculateBoundsRandomWalk(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 11))
	c := NewHFT(sym)
	b := newBook()
	ts := market.Ts(0)
	for i := 0; i < 3000; i++ {
		ts += market.Ts(r.IntN(5_000_000))
		side := market.Bid
		base := 1990
		if r.IntN(2) == 1 {
			side = market.Ask
			base = 2001
		}
		tick := int64(base + r.IntN(10))
		if side == market.Bid {
			tick = int64(base + 9 - r.IntN(10))
		}
		_ = b.ApplyValidated(market.DepthUpdate{
			Ts: ts, Symbol: sym, Side: side,
			Price: market.Px(tick * int64(px("0.05"))),
			Qty:   market.Qty(int64(r.IntN(50)) * fixed.Scale / 10),
		})
		if r.IntN(4) == 0 {
			c.RecordTrade(ts, market.Qty(int64(r.IntN(20)+1)*fixed.Scale), side)
		}
		f, ok := c.Calculate(b)
		if !ok {
			continue
		}
		for name, v := range map[string]int64{
			"imbalance":      f.Imbalance,
			"price_trend":    f.PriceTrend,
			"toxicity":       f.FlowToxicity,
			"trade_imb":      f.TradeImbalance,
			"book_pressure":  f.BookPressure,
			"mean_reversion": f.MeanReversion,
		} {
			require.LessOrEqual(t, v, scale, "%s at step %d", name, i)
			require.GreaterOrEqual(t, v, -scale, "%s at step %d", name, i)
		}
		require.GreaterOrEqual(t, f.FlowToxicity, int64(0))
		require.LessOrEqual(t, f.AdverseSelection, scale)
		require.Positive(t, f.Resilience)
		require.LessOrEqual(t, f.Resilience, scale)
		require.GreaterOrEqual(t, f.LiquidityScore, int64(0))
		require.LessOrEqual(t, f.LiquidityScore, scale)
		require.LessOrEqual(t, f.StabilityIndex, scale)
		oldest, _ := c.VWAP().OldestTs()
		require.GreaterOrEqual(t, oldest, ts-c.Config().VWAPWindow)
		require.LessOrEqual(t, c.VolatilitySamples(), market.VolatilityWindowSize)
	}
}

func TestCalculatorReset(t *testing.T) {
	c := New(sym, DefaultConfig())
	_, ok := c.Calculate(standardBook(t, 10))
	require.True(t, ok)
	c.Reset()
	assert.Zero(t, c.UpdateCount())
	assert.Zero(t, c.SpreadEMA())
	assert.Zero(t, c.VWAP().Len())
	assert.Equal(t, market.RegimeNormal, c.Regime())
}

func BenchmarkCalculate(b *testing.B) {
	c := NewHFT(sym)
	book := newBook()
	for i := 0; i < 10; i++ {
		off := market.Px(int64(i) * int64(px("0.05")))
		_ = book.ApplyFast(market.DepthUpdate{Symbol: sym, Side: market.Bid, Price: px("100.00") - off, Qty: qty("5")})
		_ = book.ApplyFast(market.DepthUpdate{Symbol: sym, Side: market.Ask, Price: px("100.10") + off, Qty: qty("5")})
	}
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = book.ApplyFast(market.DepthUpdate{Ts: market.Ts(i * 1000), Symbol: sym, Side: market.Bid, Price: px("100.00"), Qty: market.Qty(int64(i%7+1) * fixed.Scale)})
		c.Calculate(book)
	}
}
