package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"market-signals-go/features"
	"market-signals-go/fixed"
	"market-signals-go/market"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "cfg.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return path
}

const sampleConfig = `
env: dev
metrics:
  addr: ":9100"
feed:
  endpoint: wss://fstream.binance.com
  tradeStream: "@aggTrade"
engine:
  shards: 2
sink:
  kind: log
instruments:
  BTCUSDT:
    id: 1
    tickSize: "0.1"
    roiCenter: "60000"
    roiHalfWidth: "3000"
    crossingPolicy: reject
    profile: hft
  ETHUSDT:
    id: 2
    tickSize: "0.01"
    crossingPolicy: auto_resolve
    profile: mm
    flowWindowMs: 250
`

func TestLoad(t *testing.T) {
	cfg, err := Load(writeTempConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Env != "dev" || cfg.Metrics.Addr != ":9100" || cfg.Engine.Shards != 2 {
		t.Fatalf("unexpected cfg values: %+v", cfg)
	}
	// defaults
	if cfg.Engine.QueueSize != 4096 || cfg.Feed.DepthStream != "@depth20@100ms" || cfg.Log.Level != "info" {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}

func TestInstrumentBookConfig(t *testing.T) {
	cfg, err := Load(writeTempConfig(t, sampleConfig))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	bc, err := cfg.Instruments["BTCUSDT"].BookConfig()
	if err != nil {
		t.Fatalf("book config: %v", err)
	}
	want := market.BookConfig{
		Symbol:       1,
		TickSize:     market.Px(fixed.MustDecimal("0.1")),
		ROICenter:    market.PxFromInt(60000),
		ROIHalfWidth: market.PxFromInt(3000),
		Policy:       market.CrossReject,
	}
	if bc != want {
		t.Fatalf("got %+v want %+v", bc, want)
	}

	eth := cfg.Instruments["ETHUSDT"]
	fc := eth.FeatureConfig()
	if fc.VWAPWindow != features.MarketMakerConfig().VWAPWindow {
		t.Fatalf("profile window not used: %+v", fc)
	}
	if fc.FlowWindow != market.Ts(250*time.Millisecond) {
		t.Fatalf("explicit flow window ignored: %+v", fc)
	}
}

func TestLoadWithEnvOverrides(t *testing.T) {
	path := writeTempConfig(t, sampleConfig)
	t.Setenv("MS_METRICS_ADDR", ":9999")
	t.Setenv("MS_SINK_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("MS_FEED_ENDPOINT", "wss://example.test")
	cfg, err := LoadWithEnvOverrides(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Metrics.Addr != ":9999" || cfg.Feed.Endpoint != "wss://example.test" {
		t.Fatalf("env overrides not applied: %+v", cfg)
	}
	if len(cfg.Sink.Brokers) != 2 || cfg.Sink.Brokers[1] != "k2:9092" {
		t.Fatalf("unexpected brokers %v", cfg.Sink.Brokers)
	}
}

func TestValidate(t *testing.T) {
	if err := Validate(AppConfig{}); err == nil {
		t.Fatalf("expected error for empty config")
	}

	base := func() AppConfig {
		return AppConfig{
			Env: "dev",
			Instruments: map[string]InstrumentConfig{
				"A": {ID: 1, TickSize: "0.5"},
			},
		}
	}
	if err := Validate(base()); err != nil {
		t.Fatalf("minimal config rejected: %v", err)
	}

	cases := map[string]func(*AppConfig){
		"zero id":      func(c *AppConfig) { c.Instruments["A"] = InstrumentConfig{TickSize: "0.5"} },
		"dup id":       func(c *AppConfig) { c.Instruments["B"] = InstrumentConfig{ID: 1, TickSize: "1"} },
		"bad tick":     func(c *AppConfig) { c.Instruments["A"] = InstrumentConfig{ID: 1, TickSize: "0"} },
		"bad decimal":  func(c *AppConfig) { c.Instruments["A"] = InstrumentConfig{ID: 1, TickSize: "abc"} },
		"neg roi":      func(c *AppConfig) { c.Instruments["A"] = InstrumentConfig{ID: 1, TickSize: "1", ROIHalfWidth: "-1"} },
		"bad policy":   func(c *AppConfig) { c.Instruments["A"] = InstrumentConfig{ID: 1, TickSize: "1", CrossingPolicy: "maybe"} },
		"kafka topic":  func(c *AppConfig) { c.Sink = SinkConfig{Kind: SinkKafka, Brokers: []string{"k:9092"}} },
		"unknown sink": func(c *AppConfig) { c.Sink.Kind = "carrier-pigeon" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := base()
			mutate(&cfg)
			if err := Validate(cfg); err == nil {
				t.Fatalf("expected error")
			}
		})
	}

	cfg := base()
	cfg.Sink = SinkConfig{Kind: SinkKafka}
	var inv ErrInvalid
	if err := Validate(cfg); !errors.As(err, &inv) {
		t.Fatalf("expected ErrInvalid, got %v", err)
	}
}
