package features

import (
	"time"

	"market-signals-go/market"
)

// Config 特征计算器配置；只在构造时读取。
type Config struct {
	VWAPWindow market.Ts // VWAP 滑动窗口（纳秒）
	FlowWindow market.Ts // 成交流窗口（纳秒）
}

// DefaultConfig 返回通用配置：VWAP 10s，成交流 1s。
func DefaultConfig() Config {
	return Config{
		VWAPWindow: market.Ts(10 * time.Second),
		FlowWindow: market.Ts(time.Second),
	}
}

// HFTConfig keeps short windows so signals react within a few hundred updates.
func HFTConfig() Config {
	return Config{
		VWAPWindow: market.Ts(time.Second),
		FlowWindow: market.Ts(100 * time.Millisecond),
	}
}

// MarketMakerConfig 做市场景：更长的窗口，信号更平滑。
func MarketMakerConfig() Config {
	return Config{
		VWAPWindow: market.Ts(60 * time.Second),
		FlowWindow: market.Ts(5 * time.Second),
	}
}

// ConfigForProfile maps a profile name from the instrument config to its windows.
// Unknown names fall back to DefaultConfig.
func ConfigForProfile(profile string) Config {
	switch profile {
	case "hft":
		return HFTConfig()
	case "mm", "market_maker":
		return MarketMakerConfig()
	default:
		return DefaultConfig()
	}
}

func (c Config) withDefaults() Config {
	def := DefaultConfig()
	if c.VWAPWindow <= 0 {
		c.VWAPWindow = def.VWAPWindow
	}
	if c.FlowWindow <= 0 {
		c.FlowWindow = def.FlowWindow
	}
	return c
}
