package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"market-signals-go/config"
	"market-signals-go/features"
	"market-signals-go/infrastructure/logger"
	"market-signals-go/infrastructure/monitor"
	"market-signals-go/market"
)

// EngineState 引擎状态
type EngineState int

const (
	StateIdle EngineState = iota
	StateRunning
	StateStopped
)

func (s EngineState) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateRunning:
		return "RUNNING"
	case StateStopped:
		return "STOPPED"
	default:
		return "UNKNOWN"
	}
}

// snapshotDepth is the depth published to market.Service after each applied update.
const snapshotDepth = 5

// FrameSink receives every computed frame. Publish must not block the shard for long.
type FrameSink interface {
	Publish(features.Frame)
}

// Config 分片配置
type Config struct {
	Shards    int
	QueueSize int
}

// Components 引擎依赖
type Components struct {
	Registry *Registry
	Sink     FrameSink
	Logger   *logger.Logger
	Monitor  *monitor.Monitor
	Service  *market.Service
}

type eventKind uint8

const (
	eventDepth eventKind = iota
	eventTrade
)

type event struct {
	kind  eventKind
	depth market.DepthUpdate
	trade market.Trade
}

// Engine routes updates to shard goroutines by symbol. All updates for one symbol land on the
// same shard, so they are applied in submission order.
type Engine struct {
	cfg      Config
	registry *Registry
	sink     FrameSink
	logger   *logger.Logger
	monitor  *monitor.Monitor
	service  *market.Service

	mu       sync.RWMutex
	state    EngineState
	shards   []chan event
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// New 创建引擎。Registry 为空时新建一个。
func New(cfg Config, comp Components) (*Engine, error) {
	if cfg.Shards <= 0 {
		return nil, fmt.Errorf("shards must be positive, got %d", cfg.Shards)
	}
	if cfg.QueueSize <= 0 {
		return nil, fmt.Errorf("queue size must be positive, got %d", cfg.QueueSize)
	}
	if comp.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if comp.Registry == nil {
		comp.Registry = NewRegistry()
	}
	return &Engine{
		cfg:      cfg,
		registry: comp.Registry,
		sink:     comp.Sink,
		logger:   comp.Logger,
		monitor:  comp.Monitor,
		service:  comp.Service,
		state:    StateIdle,
	}, nil
}

func (e *Engine) Registry() *Registry { return e.registry }

// State 返回当前状态
func (e *Engine) State() EngineState {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.state
}

// Subscribe registers an instrument and hooks its crossing events into logs and metrics.
func (e *Engine) Subscribe(name string, ic config.InstrumentConfig) error {
	bc, err := ic.BookConfig()
	if err != nil {
		return fmt.Errorf("instrument %s: %w", name, err)
	}
	inst, err := e.registry.Subscribe(name, bc, ic.FeatureConfig())
	if err != nil {
		return err
	}
	inst.View(func(b *market.OrderBook, _ *features.Calculator) { b.OnCrossing(e.onCrossing) })
	e.logger.Info("instrument subscribed",
		zap.String("name", name),
		zap.Stringer("symbol", bc.Symbol),
		zap.String("policy", bc.Policy.String()),
	)
	e.syncActive()
	return nil
}

// Unsubscribe 删除合约及其全部状态。
func (e *Engine) Unsubscribe(sym market.Symbol) error {
	if err := e.registry.Unsubscribe(sym); err != nil {
		return err
	}
	if e.monitor != nil {
		e.monitor.ForgetSymbol(sym)
	}
	if e.service != nil {
		e.service.Forget(sym)
	}
	e.logger.Info("instrument unsubscribed", zap.Stringer("symbol", sym))
	e.syncActive()
	return nil
}

// ApplyConfig subscribes instruments new in cfg and drops the ones no longer listed.
// Instruments present in both keep their book and calculator untouched.
func (e *Engine) ApplyConfig(cfg config.AppConfig) error {
	var errs []error
	for _, name := range e.registry.Names() {
		ic, ok := cfg.Instruments[name]
		sym, _ := e.registry.Lookup(name)
		if ok && market.Symbol(ic.ID) == sym {
			continue
		}
		if err := e.Unsubscribe(sym); err != nil {
			errs = append(errs, err)
		}
	}
	for name, ic := range cfg.Instruments {
		if _, ok := e.registry.Lookup(name); ok {
			continue
		}
		if err := e.Subscribe(name, ic); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Start 启动分片协程
func (e *Engine) Start(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.state != StateIdle {
		return fmt.Errorf("engine already started (state: %s)", e.state)
	}

	e.stopChan = make(chan struct{})
	e.shards = make([]chan event, e.cfg.Shards)
	for i := range e.shards {
		e.shards[i] = make(chan event, e.cfg.QueueSize)
		e.wg.Add(1)
		go e.runShard(ctx, i, e.shards[i])
	}
	e.state = StateRunning

	e.logger.Info("engine started",
		zap.Int("shards", e.cfg.Shards),
		zap.Int("queue_size", e.cfg.QueueSize),
		zap.Int("instruments", e.registry.Len()),
	)
	return nil
}

// Stop 停止引擎，等待分片协程退出
func (e *Engine) Stop() error {
	e.mu.Lock()
	if e.state != StateRunning {
		e.mu.Unlock()
		return fmt.Errorf("engine not running (state: %s)", e.state)
	}
	e.state = StateStopped
	close(e.stopChan)
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		e.logger.Info("engine stopped")
		return nil
	case <-time.After(10 * time.Second):
		e.logger.Warn("engine stop timeout")
		return fmt.Errorf("stop timeout")
	}
}

// Submit queues a depth update on its symbol's shard. It blocks while the shard queue is full.
func (e *Engine) Submit(u market.DepthUpdate) error {
	return e.enqueue(u.Symbol, event{kind: eventDepth, depth: u})
}

// SubmitTrade queues a trade print on its symbol's shard.
func (e *Engine) SubmitTrade(tr market.Trade) error {
	return e.enqueue(tr.Symbol, event{kind: eventTrade, trade: tr})
}

func (e *Engine) enqueue(sym market.Symbol, ev event) error {
	e.mu.RLock()
	if e.state != StateRunning {
		e.mu.RUnlock()
		return ErrNotRunning
	}
	ch, stop := e.shards[e.shardFor(sym)], e.stopChan
	e.mu.RUnlock()

	if _, ok := e.registry.Get(sym); !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSymbol, sym)
	}
	select {
	case ch <- ev:
		return nil
	case <-stop:
		return ErrNotRunning
	}
}

func (e *Engine) shardFor(sym market.Symbol) int {
	return int(uint64(sym) % uint64(e.cfg.Shards))
}

func (e *Engine) runShard(ctx context.Context, idx int, ch <-chan event) {
	defer e.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopChan:
			return
		case ev := <-ch:
			switch ev.kind {
			case eventDepth:
				// 异步路径的错误已记录在日志和指标中
				_, _, _ = e.Process(ev.depth)
			case eventTrade:
				_ = e.ProcessTrade(ev.trade)
			}
			if e.monitor != nil {
				e.monitor.SetQueueDepth(idx, len(ch))
			}
		}
	}
}

// Process applies u synchronously and returns the resulting frame. The bool is false when the
// book is one-sided after the update. Rejected updates leave the book unchanged.
func (e *Engine) Process(u market.DepthUpdate) (features.Frame, bool, error) {
	inst, ok := e.registry.Get(u.Symbol)
	if !ok {
		return features.Frame{}, false, fmt.Errorf("%w: %s", ErrUnknownSymbol, u.Symbol)
	}

	start := time.Now()
	f, hasFrame, err := inst.Apply(u)
	elapsed := time.Since(start)
	if err != nil {
		e.logger.LogReject(u, err)
		if e.monitor != nil {
			e.monitor.RecordRejected(u.Symbol, market.RejectReason(err))
		}
		return features.Frame{}, false, err
	}
	if e.monitor != nil {
		e.monitor.RecordApplied(u.Symbol)
	}
	if e.service != nil {
		e.service.OnSnapshot(inst.Snapshot(snapshotDepth), start)
	}
	if !hasFrame {
		return features.Frame{}, false, nil
	}

	if e.monitor != nil {
		e.monitor.RecordFrame(f, elapsed.Seconds())
	}
	e.logger.LogFrame(f)
	if e.sink != nil {
		e.sink.Publish(f)
	}
	return f, true, nil
}

// ProcessTrade 同步记录一笔成交。
func (e *Engine) ProcessTrade(tr market.Trade) error {
	inst, ok := e.registry.Get(tr.Symbol)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSymbol, tr.Symbol)
	}
	inst.RecordTrade(tr)
	return nil
}

func (e *Engine) onCrossing(ev market.CrossingEvent) {
	e.logger.LogCrossing(ev)
	if e.monitor != nil {
		e.monitor.RecordCrossing(ev)
	}
}

func (e *Engine) syncActive() {
	if e.monitor != nil {
		e.monitor.SetActiveInstruments(e.registry.Len())
	}
}
