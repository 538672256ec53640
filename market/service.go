package market

import (
	"sync"
	"time"
)

// Service 维护每个合约的最新盘口快照，并向订阅者广播。
// Books themselves stay single-writer; Service only holds copies.
type Service struct {
	pub  *Publisher
	mu   sync.RWMutex
	snap map[Symbol]Snapshot
	last map[Symbol]time.Time
}

func NewService(pub *Publisher) *Service {
	if pub == nil {
		pub = NewPublisher()
	}
	return &Service{
		pub:  pub,
		snap: make(map[Symbol]Snapshot),
		last: make(map[Symbol]time.Time),
	}
}

// Publisher exposes the snapshot fan-out.
func (s *Service) Publisher() *Publisher { return s.pub }

// OnSnapshot 更新并广播。
func (s *Service) OnSnapshot(snap Snapshot, now time.Time) {
	s.mu.Lock()
	s.snap[snap.Symbol] = snap
	s.last[snap.Symbol] = now
	s.mu.Unlock()
	s.pub.PublishSnapshot(snap)
}

// Latest returns the last snapshot seen for sym.
func (s *Service) Latest(sym Symbol) (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snap[sym]
	return snap, ok
}

// Mid 返回当前中间价；若缺失则返回 0。
func (s *Service) Mid(sym Symbol) Px {
	snap, ok := s.Latest(sym)
	if !ok {
		return 0
	}
	return snap.Mid
}

// Staleness 返回距离上次更新的时间间隔；如无数据返回一年。
func (s *Service) Staleness(sym Symbol, now time.Time) time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ts, ok := s.last[sym]
	if !ok {
		return time.Hour * 24 * 365
	}
	return now.Sub(ts)
}

// Forget drops state for an unsubscribed symbol.
func (s *Service) Forget(sym Symbol) {
	s.mu.Lock()
	delete(s.snap, sym)
	delete(s.last, sym)
	s.mu.Unlock()
}
