package container

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	"go.uber.org/zap"

	"market-signals-go/config"
	"market-signals-go/gateway"
	"market-signals-go/infrastructure/alert"
	"market-signals-go/infrastructure/logger"
	"market-signals-go/infrastructure/monitor"
	"market-signals-go/internal/engine"
	"market-signals-go/market"
	"market-signals-go/sink"
)

const defaultMetricsAddr = ":9100"

// Container 依赖注入容器，管理所有组件的生命周期
type Container struct {
	// 配置
	configPath string
	cfg        config.AppConfig

	// 基础设施
	logger  *logger.Logger
	monitor *monitor.Monitor
	alerts  *alert.Manager

	// 核心服务
	marketData *market.Service
	sink       sink.Sink
	engine     *engine.Engine

	// 行情
	handler *gateway.BinanceWSHandler
	feed    *loopComponent

	// 生命周期管理
	lifecycle *LifecycleManager

	reloadMu sync.Mutex
}

// New 加载配置文件并创建容器；配置文件会被监听并热加载合约列表。
func New(configPath string) (*Container, error) {
	cfg, err := config.LoadWithEnvOverrides(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config failed: %w", err)
	}
	c := NewFromConfig(cfg)
	c.configPath = configPath
	return c, nil
}

// NewFromConfig 使用已加载的配置创建容器，不监听文件。
func NewFromConfig(cfg config.AppConfig) *Container {
	return &Container{
		cfg:       cfg,
		lifecycle: NewLifecycleManager(),
	}
}

// Build 构建所有组件
func (c *Container) Build() error {
	if err := c.buildInfrastructure(); err != nil {
		return fmt.Errorf("build infrastructure failed: %w", err)
	}

	if err := c.buildCoreServices(); err != nil {
		return fmt.Errorf("build core services failed: %w", err)
	}

	c.buildFeed()
	c.registerLifecycleComponents()
	c.logger.Info("container built successfully",
		zap.String("env", c.cfg.Env),
		zap.Strings("instruments", c.engine.Registry().Names()),
	)
	return nil
}

func (c *Container) buildInfrastructure() error {
	var err error
	c.logger, err = logger.New(c.cfg.Log)
	if err != nil {
		return fmt.Errorf("create logger failed: %w", err)
	}

	monitorCfg := monitor.DefaultConfig()
	if c.cfg.Metrics.Namespace != "" {
		monitorCfg.Namespace = c.cfg.Metrics.Namespace
	}
	if c.cfg.Metrics.Subsystem != "" {
		monitorCfg.Subsystem = c.cfg.Metrics.Subsystem
	}
	c.monitor = monitor.New(monitorCfg)

	throttle := time.Duration(c.cfg.Alert.ThrottleSec) * time.Second
	if throttle <= 0 {
		throttle = time.Minute
	}
	c.alerts = alert.NewManager([]alert.Channel{alert.NewLogChannel("log", c.logger)}, throttle)

	c.logger.Info("infrastructure built")
	return nil
}

func (c *Container) buildCoreServices() error {
	c.marketData = market.NewService(market.NewPublisher())

	primary, err := sink.New(c.cfg.Sink, c.logger, c.monitor)
	if err != nil {
		return fmt.Errorf("create sink failed: %w", err)
	}
	c.sink = sink.Multi{primary, alert.NewRegimeAlerter(c.alerts)}

	c.engine, err = engine.New(engine.Config{
		Shards:    c.cfg.Engine.Shards,
		QueueSize: c.cfg.Engine.QueueSize,
	}, engine.Components{
		Sink:    c.sink,
		Logger:  c.logger,
		Monitor: c.monitor,
		Service: c.marketData,
	})
	if err != nil {
		return fmt.Errorf("create engine failed: %w", err)
	}
	if err := c.engine.ApplyConfig(c.cfg); err != nil {
		return fmt.Errorf("subscribe instruments failed: %w", err)
	}

	c.logger.Info("core services built", zap.String("sink", c.sink.Name()))
	return nil
}

func (c *Container) buildFeed() {
	c.handler = gateway.NewBinanceWSHandler(c.engine, c.engine.Registry(), c.logger, c.monitor)
	c.feed = &loopComponent{
		name:   "ws_feed",
		logger: c.logger,
		run: func(ctx context.Context) error {
			// 每次(重新)连接时读取当前订阅列表
			ws := gateway.NewBinanceWSReal(c.cfg.Feed, c.engine.Registry().Names(), c.logger, c.monitor)
			return ws.Run(ctx, c.handler)
		},
	}
}

func (c *Container) registerLifecycleComponents() {
	addr := c.cfg.Metrics.Addr
	if addr == "" {
		addr = defaultMetricsAddr
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.monitor.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if err := c.HealthCheck(); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte("ok"))
	})
	c.lifecycle.Register(&httpServerComponent{
		name:    "metrics_server",
		handler: mux,
		addr:    addr,
		logger:  c.logger,
	})
	c.lifecycle.Register(&engineComponent{engine: c.engine})
	c.lifecycle.Register(c.feed)

	stale := &alert.StaleFeedWatch{
		Service:    c.marketData,
		Symbols:    c.engine.Registry().Symbols,
		StaleAfter: time.Duration(c.cfg.Alert.StaleAfterMs) * time.Millisecond,
		Interval:   time.Duration(c.cfg.Alert.CheckIntervalMs) * time.Millisecond,
		Alerts:     c.alerts,
	}
	if stale.StaleAfter <= 0 {
		stale.StaleAfter = 5 * time.Second
	}
	c.lifecycle.Register(&loopComponent{name: "stale_feed_watch", logger: c.logger, run: stale.Run})
	crossed := &alert.CrossedBookWatch{
		Snapshots: c.marketData.Publisher().SubscribeSnapshots(1024),
		Alerts:    c.alerts,
	}
	c.lifecycle.Register(&loopComponent{name: "crossed_book_watch", logger: c.logger, run: crossed.Run})

	if c.configPath != "" {
		w := &config.Watcher{
			Path: c.configPath,
			OnError: func(err error) {
				c.monitor.RecordConfigReload(false)
				c.logger.LogError(err, map[string]interface{}{"action": "config_reload"})
			},
		}
		c.lifecycle.Register(&loopComponent{
			name:   "config_watcher",
			logger: c.logger,
			run: func(ctx context.Context) error {
				return w.Start(ctx, func(cfg config.AppConfig) { c.Reload(cfg) })
			},
		})
	}
}

// Reload applies a new instrument set. Books of unchanged instruments keep their state;
// the feed reconnects only when the subscribed names changed.
func (c *Container) Reload(cfg config.AppConfig) {
	c.reloadMu.Lock()
	defer c.reloadMu.Unlock()

	before := c.engine.Registry().Names()
	err := c.engine.ApplyConfig(cfg)
	c.monitor.RecordConfigReload(err == nil)
	if err != nil {
		c.logger.LogError(err, map[string]interface{}{"action": "config_reload"})
	}
	after := c.engine.Registry().Names()
	c.logger.LogEvent("config_reloaded", map[string]interface{}{
		"before": before,
		"after":  after,
	})
	if !slices.Equal(before, after) {
		c.feed.Restart()
	}
}

func (c *Container) Start(ctx context.Context) error {
	c.logger.Info("starting container...")

	if err := c.lifecycle.StartAll(ctx); err != nil {
		return fmt.Errorf("start failed: %w", err)
	}

	c.logger.Info("container started")
	return nil
}

func (c *Container) Stop() error {
	c.logger.Info("stopping container...")

	err := c.lifecycle.StopAll()
	if err != nil {
		c.logger.LogError(err, map[string]interface{}{"action": "stop"})
	}
	// 引擎停止后再关闭 sink，保证缓冲的帧被写出
	if serr := c.sink.Close(); serr != nil {
		c.logger.LogError(serr, map[string]interface{}{"action": "sink_close"})
		if err == nil {
			err = serr
		}
	}

	c.logger.Info("container stopped")
	_ = c.logger.Close()
	return err
}

func (c *Container) HealthCheck() error {
	return c.lifecycle.CheckHealth()
}

func (c *Container) Config() config.AppConfig    { return c.cfg }
func (c *Container) Logger() *logger.Logger      { return c.logger }
func (c *Container) Monitor() *monitor.Monitor   { return c.monitor }
func (c *Container) Engine() *engine.Engine      { return c.engine }
func (c *Container) MarketData() *market.Service { return c.marketData }

// engineComponent 适配引擎到生命周期接口
type engineComponent struct {
	engine *engine.Engine
}

func (e *engineComponent) Name() string                    { return "engine" }
func (e *engineComponent) Start(ctx context.Context) error { return e.engine.Start(ctx) }
func (e *engineComponent) Stop() error {
	if e.engine.State() != engine.StateRunning {
		return nil
	}
	return e.engine.Stop()
}

func (e *engineComponent) Health() error {
	if s := e.engine.State(); s != engine.StateRunning {
		return fmt.Errorf("engine %s", s)
	}
	return nil
}
