package features

import (
	"fmt"

	"market-signals-go/market"
)

// Frame is one calculation result. Every signal is fixed point (scale 10000); fields ending
// in Bps are fixed-point basis points. Frames are values: copies never alias calculator state.
type Frame struct {
	Ts     market.Ts     `json:"ts"`
	Symbol market.Symbol `json:"symbol"`

	Microprice      market.Px `json:"microprice"`
	SpreadBps       int64     `json:"spread_bps"`
	Imbalance       int64     `json:"imbalance"`
	WeightedSpread  int64     `json:"weighted_spread"`
	EffectiveSpread int64     `json:"effective_spread"`
	PriceImpact     int64     `json:"price_impact"`
	Resilience      int64     `json:"resilience"`

	FlowToxicity   int64 `json:"flow_toxicity"`
	TradeImbalance int64 `json:"trade_imbalance"`
	QuoteStuffing  int64 `json:"quote_stuffing"`
	Momentum       int64 `json:"momentum"`

	LiquidityScore int64 `json:"liquidity_score"`
	StabilityIndex int64 `json:"stability_index"`
	BookPressure   int64 `json:"book_pressure"`

	Regime             market.MarketRegime `json:"regime"`
	PriceTrend         int64               `json:"price_trend"`
	VolatilityForecast int64               `json:"volatility_forecast"`
	MeanReversion      int64               `json:"mean_reversion"`
	AdverseSelection   int64               `json:"adverse_selection"`
	VWAPDeviation      int64               `json:"vwap_deviation"`
}

func (f Frame) String() string {
	return fmt.Sprintf("frame %s ts=%d micro=%s spread=%dbps imb=%d regime=%s",
		f.Symbol, f.Ts, f.Microprice, f.SpreadBps/10000, f.Imbalance, f.Regime)
}
