package market

import (
	"fmt"

	"market-signals-go/fixed"
)

// MarketRegime represents different market conditions
type MarketRegime int

const (
	RegimeStable MarketRegime = iota
	RegimeNormal
	RegimeVolatile
	RegimeStressed
)

func (r MarketRegime) String() string {
	switch r {
	case RegimeStable:
		return "stable"
	case RegimeNormal:
		return "normal"
	case RegimeVolatile:
		return "volatile"
	case RegimeStressed:
		return "stressed"
	default:
		return "unknown"
	}
}

// MarshalText keeps regimes readable in JSON frames.
func (r MarketRegime) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *MarketRegime) UnmarshalText(b []byte) error {
	for c := RegimeStable; c <= RegimeStressed; c++ {
		if c.String() == string(b) {
			*r = c
			return nil
		}
	}
	return fmt.Errorf("invalid regime %q", string(b))
}

// Regime thresholds, in fixed-point bps.
var (
	stableVolBps      = fixed.FromInt(10)
	stableSpreadBps   = fixed.FromInt(20)
	normalVolBps      = fixed.FromInt(100)
	normalSpreadBps   = fixed.FromInt(50)
	volatileVolBps    = fixed.FromInt(500)
	volatileSpreadBps = fixed.FromInt(100)
)

// ClassifyRegime is a pure function of volatility and spread (both fixed-point bps).
func ClassifyRegime(volatilityBps, spreadBps int64) MarketRegime {
	switch {
	case volatilityBps < stableVolBps && spreadBps < stableSpreadBps:
		return RegimeStable
	case volatilityBps < normalVolBps && spreadBps < normalSpreadBps:
		return RegimeNormal
	case volatilityBps < volatileVolBps && spreadBps < volatileSpreadBps:
		return RegimeVolatile
	default:
		return RegimeStressed
	}
}

// RegimeDetector 维护收益率窗口与当前市场状态。
type RegimeDetector struct {
	returns *ReturnWindow
	current MarketRegime
}

// NewRegimeDetector creates a detector starting in RegimeNormal.
func NewRegimeDetector() *RegimeDetector {
	return &RegimeDetector{
		returns: NewReturnWindow(VolatilityWindowSize),
		current: RegimeNormal,
	}
}

// AddReturn pushes |returnBps| onto the volatility window.
func (r *RegimeDetector) AddReturn(returnBps int64) {
	r.returns.Push(fixed.Abs(returnBps))
}

// DetectRegime classifies against the window as it stands (including the latest push)
// and stores the result.
func (r *RegimeDetector) DetectRegime(spreadBps int64) MarketRegime {
	r.current = ClassifyRegime(r.returns.Forecast(), spreadBps)
	return r.current
}

// Current returns the last detected regime.
func (r *RegimeDetector) Current() MarketRegime { return r.current }

// Volatility returns the forecast from the window.
func (r *RegimeDetector) Volatility() int64 { return r.returns.Forecast() }

// Returns exposes the underlying window.
func (r *RegimeDetector) Returns() *ReturnWindow { return r.returns }
