package market

import "sync"

// Publisher 一个轻量事件分发器：盘口快照广播给订阅者，慢订阅者直接丢弃。
type Publisher struct {
	mu   sync.RWMutex
	subs []chan Snapshot
}

func NewPublisher() *Publisher {
	return &Publisher{subs: make([]chan Snapshot, 0)}
}

// SubscribeSnapshots returns a channel buffering up to size snapshots (minimum 1).
func (p *Publisher) SubscribeSnapshots(size int) <-chan Snapshot {
	ch := make(chan Snapshot, max(size, 1))
	p.mu.Lock()
	p.subs = append(p.subs, ch)
	p.mu.Unlock()
	return ch
}

// PublishSnapshot returns how many subscribers missed s because their buffer was full.
func (p *Publisher) PublishSnapshot(s Snapshot) int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	dropped := 0
	for _, ch := range p.subs {
		select {
		case ch <- s:
		default:
			dropped++
		}
	}
	return dropped
}
