package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"market-signals-go/infrastructure/logger"
)

// AppConfig holds the main runtime configuration.
type AppConfig struct {
	Env         string                      `yaml:"env"`
	Log         logger.Config               `yaml:"log"`
	Metrics     MetricsConfig               `yaml:"metrics"`
	Feed        FeedConfig                  `yaml:"feed"`
	Engine      EngineConfig                `yaml:"engine"`
	Sink        SinkConfig                  `yaml:"sink"`
	Alert       AlertConfig                 `yaml:"alert"`
	Instruments map[string]InstrumentConfig `yaml:"instruments"`
}

type MetricsConfig struct {
	Addr      string `yaml:"addr"`
	Namespace string `yaml:"namespace"`
	Subsystem string `yaml:"subsystem"`
}

// FeedConfig 行情 combined stream 配置。
type FeedConfig struct {
	Endpoint           string  `yaml:"endpoint"`
	DepthStream        string  `yaml:"depthStream"`        // 追加在小写 symbol 后，如 @depth20@100ms
	TradeStream        string  `yaml:"tradeStream"`        // 为空则不订阅成交
	ReconnectPerMinute float64 `yaml:"reconnectPerMinute"` // 重连速率上限
	ReadTimeoutSec     int     `yaml:"readTimeoutSec"`
}

type EngineConfig struct {
	Shards    int `yaml:"shards"`
	QueueSize int `yaml:"queueSize"`
}

// SinkConfig 特征帧输出配置。
type SinkConfig struct {
	Kind           string   `yaml:"kind"` // log, kafka, none
	Brokers        []string `yaml:"brokers"`
	Topic          string   `yaml:"topic"`
	Buffer         int      `yaml:"buffer"`
	BatchTimeoutMs int      `yaml:"batchTimeoutMs"`
}

// AlertConfig 行情过期与市场状态告警。
type AlertConfig struct {
	StaleAfterMs    int `yaml:"staleAfterMs"`
	CheckIntervalMs int `yaml:"checkIntervalMs"`
	ThrottleSec     int `yaml:"throttleSec"` // 同一告警的最小间隔
}

const (
	SinkLog   = "log"
	SinkKafka = "kafka"
	SinkNone  = "none"
)

// Load reads YAML config from path, fills defaults and validates.
func Load(path string) (AppConfig, error) {
	var cfg AppConfig
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("parse yaml: %w", err)
	}
	applyDefaults(&cfg)
	if err := Validate(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadWithEnvOverrides loads config then overrides deployment-specific fields from env vars if present.
func LoadWithEnvOverrides(path string) (AppConfig, error) {
	cfg, err := Load(path)
	if err != nil {
		return cfg, err
	}
	if v := os.Getenv("MS_METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
	}
	if v := os.Getenv("MS_FEED_ENDPOINT"); v != "" {
		cfg.Feed.Endpoint = v
	}
	if v := os.Getenv("MS_SINK_BROKERS"); v != "" {
		cfg.Sink.Brokers = splitList(v)
	}
	if v := os.Getenv("MS_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	return cfg, Validate(cfg)
}

func applyDefaults(cfg *AppConfig) {
	def := logger.DefaultConfig()
	if cfg.Log.Level == "" {
		cfg.Log.Level = def.Level
	}
	if len(cfg.Log.Outputs) == 0 {
		cfg.Log.Outputs = def.Outputs
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = def.Format
	}
	if cfg.Log.MaxSize == 0 {
		cfg.Log.MaxSize = def.MaxSize
		cfg.Log.MaxBackups = def.MaxBackups
		cfg.Log.MaxAge = def.MaxAge
	}
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = "ms"
	}
	if cfg.Metrics.Subsystem == "" {
		cfg.Metrics.Subsystem = "signals"
	}
	if cfg.Feed.DepthStream == "" {
		cfg.Feed.DepthStream = "@depth20@100ms"
	}
	if cfg.Feed.ReconnectPerMinute <= 0 {
		cfg.Feed.ReconnectPerMinute = 12
	}
	if cfg.Feed.ReadTimeoutSec <= 0 {
		cfg.Feed.ReadTimeoutSec = 30
	}
	if cfg.Engine.Shards <= 0 {
		cfg.Engine.Shards = 4
	}
	if cfg.Engine.QueueSize <= 0 {
		cfg.Engine.QueueSize = 4096
	}
	if cfg.Sink.Kind == "" {
		cfg.Sink.Kind = SinkLog
	}
	if cfg.Sink.Buffer <= 0 {
		cfg.Sink.Buffer = 1024
	}
	if cfg.Sink.BatchTimeoutMs <= 0 {
		cfg.Sink.BatchTimeoutMs = 50
	}
	if cfg.Alert.StaleAfterMs <= 0 {
		cfg.Alert.StaleAfterMs = 5000
	}
	if cfg.Alert.CheckIntervalMs <= 0 {
		cfg.Alert.CheckIntervalMs = 1000
	}
	if cfg.Alert.ThrottleSec <= 0 {
		cfg.Alert.ThrottleSec = 60
	}
}

func splitList(v string) []string {
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
