package alert

import (
	"context"
	"sync"
	"time"

	"market-signals-go/features"
	"market-signals-go/market"
)

const (
	MsgFeedStale       = "feed_stale"
	MsgFeedMissing     = "feed_missing"
	MsgRegimeStressed  = "regime_stressed"
	MsgRegimeRecovered = "regime_recovered"
	MsgBookCrossed     = "book_crossed"
)

// StaleFeedWatch periodically checks how long ago each subscribed symbol last produced a
// snapshot and raises a warning past StaleAfter.
type StaleFeedWatch struct {
	Service    *market.Service
	Symbols    func() []market.Symbol
	StaleAfter time.Duration
	Interval   time.Duration
	Alerts     *Manager

	started time.Time
	stale   map[market.Symbol]bool
}

// Run 阻塞直到 ctx 结束。
func (w *StaleFeedWatch) Run(ctx context.Context) error {
	interval := w.Interval
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	w.started = time.Now()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			w.Check(now)
		}
	}
}

// Check 检查一次，返回当前过期的合约数。
func (w *StaleFeedWatch) Check(now time.Time) int {
	if w.stale == nil {
		w.stale = make(map[market.Symbol]bool)
	}
	if w.started.IsZero() {
		w.started = now
	}
	n := 0
	for _, sym := range w.Symbols() {
		if _, seen := w.Service.Latest(sym); !seen {
			// 启动后给一个 StaleAfter 的宽限期
			if now.Sub(w.started) >= w.StaleAfter {
				n++
				_ = w.Alerts.SendAlert(Alert{Level: LevelWarning, Message: MsgFeedMissing, Symbol: sym, Timestamp: now})
			}
			continue
		}
		age := w.Service.Staleness(sym, now)
		if age < w.StaleAfter {
			if w.stale[sym] {
				delete(w.stale, sym)
				w.Alerts.Clear(LevelWarning, MsgFeedStale, sym)
			}
			continue
		}
		n++
		w.stale[sym] = true
		_ = w.Alerts.SendAlert(Alert{
			Level:     LevelWarning,
			Message:   MsgFeedStale,
			Symbol:    sym,
			Timestamp: now,
			Fields:    map[string]interface{}{"age_ms": age.Milliseconds()},
		})
	}
	return n
}

// CrossedBookWatch consumes published snapshots and warns while a book stays crossed,
// which only books under the allow policy can do.
type CrossedBookWatch struct {
	Snapshots <-chan market.Snapshot
	Alerts    *Manager

	crossed map[market.Symbol]bool
}

// Run 阻塞直到 ctx 结束或快照通道关闭。
func (w *CrossedBookWatch) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case snap, ok := <-w.Snapshots:
			if !ok {
				return nil
			}
			w.Observe(snap)
		}
	}
}

// Observe 处理一条快照；交叉消失时解除限流。
func (w *CrossedBookWatch) Observe(snap market.Snapshot) {
	if w.crossed == nil {
		w.crossed = make(map[market.Symbol]bool)
	}
	if !snap.Crossed {
		if w.crossed[snap.Symbol] {
			delete(w.crossed, snap.Symbol)
			w.Alerts.Clear(LevelWarning, MsgBookCrossed, snap.Symbol)
		}
		return
	}
	w.crossed[snap.Symbol] = true
	_ = w.Alerts.SendAlert(Alert{
		Level:     LevelWarning,
		Message:   MsgBookCrossed,
		Symbol:    snap.Symbol,
		Timestamp: time.Unix(0, int64(snap.Ts)),
		Fields: map[string]interface{}{
			"best_bid": snap.BestBid.Price.String(),
			"best_ask": snap.BestAsk.Price.String(),
		},
	})
}

// RegimeAlerter is a frame sink that raises a critical alert when a symbol enters the
// stressed regime and an info alert when it leaves.
type RegimeAlerter struct {
	alerts *Manager
	mu     sync.Mutex
	last   map[market.Symbol]market.MarketRegime
}

func NewRegimeAlerter(m *Manager) *RegimeAlerter {
	return &RegimeAlerter{alerts: m, last: make(map[market.Symbol]market.MarketRegime)}
}

func (r *RegimeAlerter) Publish(f features.Frame) {
	r.mu.Lock()
	prev, seen := r.last[f.Symbol]
	r.last[f.Symbol] = f.Regime
	r.mu.Unlock()
	if seen && prev == f.Regime {
		return
	}

	fields := map[string]interface{}{
		"from":       prev.String(),
		"to":         f.Regime.String(),
		"spread_bps": f.SpreadBps,
		"volatility": f.VolatilityForecast,
	}
	switch {
	case f.Regime == market.RegimeStressed:
		_ = r.alerts.SendAlert(Alert{Level: LevelCritical, Message: MsgRegimeStressed, Symbol: f.Symbol, Fields: fields})
	case seen && prev == market.RegimeStressed:
		r.alerts.Clear(LevelCritical, MsgRegimeStressed, f.Symbol)
		_ = r.alerts.SendAlert(Alert{Level: LevelInfo, Message: MsgRegimeRecovered, Symbol: f.Symbol, Fields: fields})
	}
}

func (r *RegimeAlerter) Name() string { return "regime_alert" }
func (r *RegimeAlerter) Close() error { return nil }
