package engine_test

import (
	"context"
	"errors"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"market-signals-go/config"
	"market-signals-go/features"
	"market-signals-go/fixed"
	"market-signals-go/infrastructure/logger"
	"market-signals-go/infrastructure/monitor"
	"market-signals-go/internal/engine"
	"market-signals-go/market"
)

type captureSink struct {
	mu     sync.Mutex
	frames []features.Frame
}

func (s *captureSink) Publish(f features.Frame) {
	s.mu.Lock()
	s.frames = append(s.frames, f)
	s.mu.Unlock()
}

func (s *captureSink) snapshot() []features.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]features.Frame(nil), s.frames...)
}

func px(s string) market.Px   { return market.Px(fixed.MustDecimal(s)) }
func qty(s string) market.Qty { return market.Qty(fixed.MustDecimal(s)) }

func depth(sym market.Symbol, ts market.Ts, side market.Side, price, q string) market.DepthUpdate {
	return market.DepthUpdate{Ts: ts, Symbol: sym, Side: side, Price: px(price), Qty: qty(q)}
}

func instruments() map[string]config.InstrumentConfig {
	return map[string]config.InstrumentConfig{
		"BTCUSDT": {ID: 1, TickSize: "0.1", CrossingPolicy: "auto_resolve", Profile: "hft"},
		"ETHUSDT": {ID: 2, TickSize: "0.01", CrossingPolicy: "reject"},
	}
}

type fixture struct {
	eng  *engine.Engine
	sink *captureSink
	mon  *monitor.Monitor
	svc  *market.Service
	logs *observer.ObservedLogs
}

func newFixture(t *testing.T, shards int) fixture {
	t.Helper()
	core, logs := observer.New(zapcore.DebugLevel)
	f := fixture{
		sink: &captureSink{},
		mon:  monitor.New(monitor.DefaultConfig()),
		svc:  market.NewService(market.NewPublisher()),
		logs: logs,
	}
	eng, err := engine.New(engine.Config{Shards: shards, QueueSize: 64}, engine.Components{
		Sink:    f.sink,
		Logger:  logger.NewWithCore(core),
		Monitor: f.mon,
		Service: f.svc,
	})
	require.NoError(t, err)
	require.NoError(t, eng.ApplyConfig(config.AppConfig{Instruments: instruments()}))
	f.eng = eng
	return f
}

func metricsBody(t *testing.T, m *monitor.Monitor) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	return rec.Body.String()
}

func TestNewValidatesConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  engine.Config
		comp engine.Components
	}{
		{"分片数为0", engine.Config{Shards: 0, QueueSize: 1}, engine.Components{Logger: logger.NewNop()}},
		{"队列为0", engine.Config{Shards: 1, QueueSize: 0}, engine.Components{Logger: logger.NewNop()}},
		{"缺少日志器", engine.Config{Shards: 1, QueueSize: 1}, engine.Components{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := engine.New(tt.cfg, tt.comp)
			assert.Error(t, err)
		})
	}
}

func TestRegistrySubscribeErrors(t *testing.T) {
	r := engine.NewRegistry()
	bc := market.BookConfig{Symbol: 9, TickSize: px("0.1")}
	_, err := r.Subscribe("SOLUSDT", bc, features.DefaultConfig())
	require.NoError(t, err)

	_, err = r.Subscribe("SOL2", bc, features.DefaultConfig())
	assert.ErrorIs(t, err, engine.ErrAlreadySubscribed)

	_, err = r.Subscribe("SOLUSDT", market.BookConfig{Symbol: 10, TickSize: px("0.1")}, features.DefaultConfig())
	assert.ErrorIs(t, err, engine.ErrDuplicateShortName)

	assert.ErrorIs(t, r.Unsubscribe(42), engine.ErrUnknownSymbol)
	require.NoError(t, r.Unsubscribe(9))
	assert.Equal(t, 0, r.Len())
	_, ok := r.Lookup("SOLUSDT")
	assert.False(t, ok)
}

func TestProcessEmitsFrames(t *testing.T) {
	f := newFixture(t, 2)

	_, ok, err := f.eng.Process(depth(1, 1, market.Bid, "100", "1"))
	require.NoError(t, err)
	assert.False(t, ok, "one-sided book has no frame")

	frame, ok, err := f.eng.Process(depth(1, 2, market.Ask, "100.2", "1"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, market.Symbol(1), frame.Symbol)
	assert.Equal(t, px("100.1"), frame.Microprice)

	require.Len(t, f.sink.snapshot(), 1)
	body := metricsBody(t, f.mon)
	assert.Contains(t, body, `ms_signals_updates_applied_total{symbol="1"} 2`)
	assert.Contains(t, body, `ms_signals_frames_emitted_total{symbol="1"} 1`)
	assert.Contains(t, body, `ms_signals_active_instruments 2`)

	snap, ok := f.svc.Latest(1)
	require.True(t, ok)
	assert.Equal(t, px("100.1"), snap.Mid)
}

func TestProcessRejectLeavesBookAndLogs(t *testing.T) {
	f := newFixture(t, 1)
	_, _, err := f.eng.Process(depth(2, 1, market.Bid, "10", "1"))
	require.NoError(t, err)
	_, _, err = f.eng.Process(depth(2, 2, market.Ask, "10.05", "1"))
	require.NoError(t, err)

	// ETHUSDT 使用 reject 策略，交叉更新被回滚
	_, ok, err := f.eng.Process(depth(2, 3, market.Ask, "9.99", "1"))
	require.ErrorIs(t, err, market.ErrCrossedBook)
	assert.False(t, ok)

	inst, found := f.eng.Registry().Get(2)
	require.True(t, found)
	snap := inst.Snapshot(5)
	assert.Equal(t, px("10.05"), snap.BestAsk.Price)
	assert.Equal(t, 1, snap.AskLevels)

	assert.Equal(t, 1, f.logs.FilterMessage("depth_rejected").Len())
	assert.Equal(t, 1, f.logs.FilterMessage("book_crossed").Len())
	body := metricsBody(t, f.mon)
	assert.Contains(t, body, `ms_signals_updates_rejected_total{reason="crossed",symbol="2"} 1`)
	assert.Len(t, f.sink.snapshot(), 1)
}

func TestProcessAutoResolveCountsTruncation(t *testing.T) {
	f := newFixture(t, 1)
	for i, u := range []market.DepthUpdate{
		depth(1, 1, market.Bid, "100", "1"),
		depth(1, 2, market.Ask, "100.1", "1"),
		depth(1, 3, market.Ask, "100.3", "1"),
		depth(1, 4, market.Bid, "100.2", "2"),
	} {
		_, _, err := f.eng.Process(u)
		require.NoError(t, err, "update %d", i)
	}
	inst, _ := f.eng.Registry().Get(1)
	snap := inst.Snapshot(5)
	assert.Equal(t, px("100.2"), snap.BestBid.Price)
	assert.Equal(t, px("100.3"), snap.BestAsk.Price)
	assert.Contains(t, metricsBody(t, f.mon), `ms_signals_levels_truncated_total{symbol="1"} 1`)
}

func TestProcessUnknownSymbol(t *testing.T) {
	f := newFixture(t, 1)
	_, _, err := f.eng.Process(depth(99, 1, market.Bid, "1", "1"))
	assert.ErrorIs(t, err, engine.ErrUnknownSymbol)
	assert.ErrorIs(t, f.eng.ProcessTrade(market.Trade{Symbol: 99}), engine.ErrUnknownSymbol)
}

func TestProcessTradeFeedsFlow(t *testing.T) {
	f := newFixture(t, 1)
	require.NoError(t, f.eng.ProcessTrade(market.Trade{Ts: 1, Symbol: 1, Price: px("100"), Qty: qty("3"), Aggressor: market.Bid}))
	require.NoError(t, f.eng.ProcessTrade(market.Trade{Ts: 2, Symbol: 1, Price: px("100"), Qty: qty("1"), Aggressor: market.Ask}))
	_, _, err := f.eng.Process(depth(1, 3, market.Bid, "100", "1"))
	require.NoError(t, err)
	frame, ok, err := f.eng.Process(depth(1, 4, market.Ask, "100.1", "1"))
	require.NoError(t, err)
	require.True(t, ok)
	// (3-1)/(3+1)
	assert.Equal(t, fixed.Scale/2, frame.TradeImbalance)
}

func TestSubmitRequiresRunning(t *testing.T) {
	f := newFixture(t, 2)
	assert.ErrorIs(t, f.eng.Submit(depth(1, 1, market.Bid, "1", "1")), engine.ErrNotRunning)
	assert.Equal(t, engine.StateIdle, f.eng.State())

	require.NoError(t, f.eng.Start(context.Background()))
	err := f.eng.Start(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RUNNING")

	assert.ErrorIs(t, f.eng.Submit(depth(77, 1, market.Bid, "1", "1")), engine.ErrUnknownSymbol)
	require.NoError(t, f.eng.Stop())
	assert.Equal(t, engine.StateStopped, f.eng.State())
	assert.ErrorIs(t, f.eng.SubmitTrade(market.Trade{Symbol: 1}), engine.ErrNotRunning)
	assert.Error(t, f.eng.Stop())
}

func TestShardsPreserveOrderPerSymbol(t *testing.T) {
	f := newFixture(t, 2)
	require.NoError(t, f.eng.Start(context.Background()))
	defer f.eng.Stop()

	const n = 50
	for _, sym := range []market.Symbol{1, 2} {
		require.NoError(t, f.eng.Submit(depth(sym, 1, market.Bid, "10", "1")))
	}
	for i := 0; i < n; i++ {
		ts := market.Ts(i + 2)
		require.NoError(t, f.eng.Submit(depth(1, ts, market.Ask, "10.5", "1")))
		require.NoError(t, f.eng.Submit(depth(2, ts, market.Ask, "10.5", "1")))
	}

	assert.Eventually(t, func() bool { return len(f.sink.snapshot()) == 2*n }, 2*time.Second, 5*time.Millisecond)

	last := map[market.Symbol]market.Ts{}
	for _, fr := range f.sink.snapshot() {
		assert.Greater(t, fr.Ts, last[fr.Symbol], "symbol %s out of order", fr.Symbol)
		last[fr.Symbol] = fr.Ts
	}
}

func TestStopOnContextCancel(t *testing.T) {
	f := newFixture(t, 3)
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, f.eng.Start(ctx))
	cancel()
	// 协程已因 ctx 退出，Stop 仍需正常返回
	require.NoError(t, f.eng.Stop())
}

func TestApplyConfigDiff(t *testing.T) {
	f := newFixture(t, 1)
	_, _, err := f.eng.Process(depth(1, 1, market.Bid, "100", "1"))
	require.NoError(t, err)

	next := instruments()
	delete(next, "ETHUSDT")
	next["SOLUSDT"] = config.InstrumentConfig{ID: 3, TickSize: "0.001", CrossingPolicy: "allow"}
	require.NoError(t, f.eng.ApplyConfig(config.AppConfig{Instruments: next}))

	assert.Equal(t, []market.Symbol{1, 3}, f.eng.Registry().Symbols())
	assert.Equal(t, []string{"BTCUSDT", "SOLUSDT"}, f.eng.Registry().Names())

	// 未变化的合约保留盘口状态
	inst, _ := f.eng.Registry().Get(1)
	assert.Equal(t, 1, inst.Snapshot(5).BidLevels)

	_, ok := f.svc.Latest(2)
	assert.False(t, ok)
	assert.Contains(t, metricsBody(t, f.mon), `ms_signals_active_instruments 2`)
}

func TestApplyConfigReportsBadInstrument(t *testing.T) {
	f := newFixture(t, 1)
	next := instruments()
	next["BAD"] = config.InstrumentConfig{ID: 5, TickSize: "0"}
	err := f.eng.ApplyConfig(config.AppConfig{Instruments: next})
	require.Error(t, err)
	var inv config.ErrInvalid
	assert.True(t, errors.As(err, &inv))
	assert.Equal(t, 2, f.eng.Registry().Len())
}

func TestApplyConfigResubscribesChangedID(t *testing.T) {
	f := newFixture(t, 1)
	next := instruments()
	next["ETHUSDT"] = config.InstrumentConfig{ID: 12, TickSize: "0.01"}
	require.NoError(t, f.eng.ApplyConfig(config.AppConfig{Instruments: next}))
	sym, ok := f.eng.Registry().Lookup("ETHUSDT")
	require.True(t, ok)
	assert.Equal(t, market.Symbol(12), sym)
	_, ok = f.eng.Registry().Get(2)
	assert.False(t, ok)
}
