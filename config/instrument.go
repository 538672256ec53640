package config

import (
	"time"

	"market-signals-go/features"
	"market-signals-go/fixed"
	"market-signals-go/market"
)

// InstrumentConfig 单个合约的盘口与特征配置。价格字段用十进制字符串，避免浮点误差。
type InstrumentConfig struct {
	ID             uint32 `yaml:"id"`
	TickSize       string `yaml:"tickSize"`
	ROICenter      string `yaml:"roiCenter"`
	ROIHalfWidth   string `yaml:"roiHalfWidth"` // 为空或 0 表示不限制
	CrossingPolicy string `yaml:"crossingPolicy"`
	Profile        string `yaml:"profile"` // hft, mm, default
	VWAPWindowMs   int64  `yaml:"vwapWindowMs"`
	FlowWindowMs   int64  `yaml:"flowWindowMs"`
}

// BookConfig converts the instrument into construction parameters for its order book.
func (ic InstrumentConfig) BookConfig() (market.BookConfig, error) {
	if err := ic.validate(); err != nil {
		return market.BookConfig{}, err
	}
	policy, _ := market.ParseCrossingPolicy(ic.CrossingPolicy)
	cfg := market.BookConfig{
		Symbol:   market.Symbol(ic.ID),
		TickSize: market.Px(fixed.MustDecimal(ic.TickSize)),
		Policy:   policy,
	}
	if ic.ROICenter != "" {
		cfg.ROICenter = market.Px(fixed.MustDecimal(ic.ROICenter))
	}
	if ic.ROIHalfWidth != "" {
		cfg.ROIHalfWidth = market.Px(fixed.MustDecimal(ic.ROIHalfWidth))
	}
	return cfg, nil
}

// FeatureConfig starts from the profile's windows; explicit millisecond values win.
func (ic InstrumentConfig) FeatureConfig() features.Config {
	cfg := features.ConfigForProfile(ic.Profile)
	if ic.VWAPWindowMs > 0 {
		cfg.VWAPWindow = market.Ts(time.Duration(ic.VWAPWindowMs) * time.Millisecond)
	}
	if ic.FlowWindowMs > 0 {
		cfg.FlowWindow = market.Ts(time.Duration(ic.FlowWindowMs) * time.Millisecond)
	}
	return cfg
}
