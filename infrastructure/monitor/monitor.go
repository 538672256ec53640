package monitor

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"market-signals-go/features"
	"market-signals-go/fixed"
	"market-signals-go/market"
)

// Monitor Prometheus监控指标收集器
type Monitor struct {
	registry *prometheus.Registry

	// 盘口指标
	updatesApplied  *prometheus.CounterVec
	updatesRejected *prometheus.CounterVec
	crossings       *prometheus.CounterVec
	levelsTruncated *prometheus.CounterVec

	// 特征指标
	framesEmitted    *prometheus.CounterVec
	calculateLatency prometheus.Histogram
	regime           *prometheus.GaugeVec
	spreadBps        *prometheus.GaugeVec
	microprice       *prometheus.GaugeVec
	toxicity         *prometheus.GaugeVec

	// 引擎指标
	activeInstruments prometheus.Gauge
	queueDepth        *prometheus.GaugeVec
	configReloads     *prometheus.CounterVec

	// 输出指标
	sinkPublished *prometheus.CounterVec
	sinkDropped   *prometheus.CounterVec

	// 行情连接
	wsConnections   prometheus.Counter
	wsDisconnects   prometheus.Counter
	feedMessages    prometheus.Counter
	feedParseErrors prometheus.Counter
}

// Config 监控配置
type Config struct {
	Namespace string `yaml:"namespace"`
	Subsystem string `yaml:"subsystem"`
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Namespace: "ms",
		Subsystem: "signals",
	}
}

// New 创建新的Monitor实例
func New(cfg Config) *Monitor {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	counterVec := func(name, help string, labels ...string) *prometheus.CounterVec {
		return factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      name,
			Help:      help,
		}, labels)
	}
	gaugeVec := func(name, help string, labels ...string) *prometheus.GaugeVec {
		return factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      name,
			Help:      help,
		}, labels)
	}
	counter := func(name, help string) prometheus.Counter {
		return factory.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      name,
			Help:      help,
		})
	}

	return &Monitor{
		registry: reg,

		updatesApplied:  counterVec("updates_applied_total", "已应用的深度更新数", "symbol"),
		updatesRejected: counterVec("updates_rejected_total", "被拒绝的深度更新数", "symbol", "reason"),
		crossings:       counterVec("crossings_total", "交叉盘口次数（按策略）", "symbol", "policy"),
		levelsTruncated: counterVec("levels_truncated_total", "AutoResolve 删除的对手档位数", "symbol"),

		framesEmitted: counterVec("frames_emitted_total", "输出的特征帧数", "symbol"),
		calculateLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "calculate_latency_seconds",
			Help:      "单次特征计算耗时（秒）",
			Buckets:   []float64{1e-7, 2.5e-7, 5e-7, 1e-6, 2.5e-6, 5e-6, 1e-5, 1e-4},
		}),
		regime:     gaugeVec("regime", "当前市场状态 (0=stable 1=normal 2=volatile 3=stressed)", "symbol"),
		spreadBps:  gaugeVec("spread_bps", "最新价差（bps）", "symbol"),
		microprice: gaugeVec("microprice", "最新 microprice", "symbol"),
		toxicity:   gaugeVec("flow_toxicity", "最新订单流毒性", "symbol"),

		activeInstruments: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "active_instruments",
			Help:      "已订阅合约数",
		}),
		queueDepth:    gaugeVec("shard_queue_depth", "分片队列长度", "shard"),
		configReloads: counterVec("config_reloads_total", "配置热加载次数", "result"),

		sinkPublished: counterVec("sink_published_total", "成功输出的帧数", "sink"),
		sinkDropped:   counterVec("sink_dropped_total", "因缓冲区满丢弃的帧数", "sink"),

		wsConnections:   counter("ws_connections_total", "WebSocket连接总数"),
		wsDisconnects:   counter("ws_disconnects_total", "WebSocket断开总数"),
		feedMessages:    counter("feed_messages_total", "收到的行情消息数"),
		feedParseErrors: counter("feed_parse_errors_total", "行情解析失败数"),
	}
}

// 盘口相关方法
func (m *Monitor) RecordApplied(sym market.Symbol) {
	m.updatesApplied.WithLabelValues(sym.String()).Inc()
}

func (m *Monitor) RecordRejected(sym market.Symbol, reason string) {
	m.updatesRejected.WithLabelValues(sym.String(), reason).Inc()
}

// RecordCrossing counts one crossed update and any levels AutoResolve removed.
func (m *Monitor) RecordCrossing(ev market.CrossingEvent) {
	s := ev.Symbol.String()
	m.crossings.WithLabelValues(s, ev.Policy.String()).Inc()
	if ev.Truncated > 0 {
		m.levelsTruncated.WithLabelValues(s).Add(float64(ev.Truncated))
	}
}

// 特征相关方法
func (m *Monitor) RecordFrame(f features.Frame, seconds float64) {
	s := f.Symbol.String()
	m.framesEmitted.WithLabelValues(s).Inc()
	m.calculateLatency.Observe(seconds)
	m.regime.WithLabelValues(s).Set(float64(f.Regime))
	m.spreadBps.WithLabelValues(s).Set(fixed.ToFloat64(f.SpreadBps))
	m.microprice.WithLabelValues(s).Set(f.Microprice.AsFloat64())
	m.toxicity.WithLabelValues(s).Set(fixed.ToFloat64(f.FlowToxicity))
}

// ForgetSymbol 取消订阅后删除该合约的标签序列。
func (m *Monitor) ForgetSymbol(sym market.Symbol) {
	s := sym.String()
	m.regime.DeleteLabelValues(s)
	m.spreadBps.DeleteLabelValues(s)
	m.microprice.DeleteLabelValues(s)
	m.toxicity.DeleteLabelValues(s)
}

// 引擎相关方法
func (m *Monitor) SetActiveInstruments(n int) {
	m.activeInstruments.Set(float64(n))
}

func (m *Monitor) SetQueueDepth(shard, depth int) {
	m.queueDepth.WithLabelValues(strconv.Itoa(shard)).Set(float64(depth))
}

func (m *Monitor) RecordConfigReload(ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	m.configReloads.WithLabelValues(result).Inc()
}

// 输出相关方法
func (m *Monitor) RecordSinkPublished(sink string) {
	m.sinkPublished.WithLabelValues(sink).Inc()
}

func (m *Monitor) RecordSinkDropped(sink string) {
	m.sinkDropped.WithLabelValues(sink).Inc()
}

// 系统相关方法
func (m *Monitor) RecordWSConnection() {
	m.wsConnections.Inc()
}

func (m *Monitor) RecordWSDisconnect() {
	m.wsDisconnects.Inc()
}

func (m *Monitor) RecordFeedMessage() {
	m.feedMessages.Inc()
}

func (m *Monitor) RecordFeedParseError() {
	m.feedParseErrors.Inc()
}

// Handler 返回HTTP handler用于暴露指标
func (m *Monitor) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry 返回prometheus registry
func (m *Monitor) Registry() *prometheus.Registry {
	return m.registry
}
