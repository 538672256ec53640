package engine

import (
	"fmt"
	"slices"
	"sync"

	"market-signals-go/features"
	"market-signals-go/market"
)

// Instrument pairs one book with its calculator. The two are created and dropped together
// and only ever mutated under mu.
type Instrument struct {
	mu   sync.Mutex
	name string
	book *market.OrderBook
	calc *features.Calculator
}

func (i *Instrument) Name() string          { return i.name }
func (i *Instrument) Symbol() market.Symbol { return i.book.Symbol() }

// Apply validates and applies u, then computes a frame from the updated book.
// The bool is false when the book is one-sided.
func (i *Instrument) Apply(u market.DepthUpdate) (features.Frame, bool, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if err := i.book.ApplyValidated(u); err != nil {
		return features.Frame{}, false, err
	}
	f, ok := i.calc.Calculate(i.book)
	return f, ok, nil
}

// RecordTrade feeds a print to the calculator's trade-flow window.
func (i *Instrument) RecordTrade(tr market.Trade) {
	i.mu.Lock()
	i.calc.RecordTrade(tr.Ts, tr.Qty, tr.Aggressor)
	i.mu.Unlock()
}

// Snapshot 加锁读取盘口快照。
func (i *Instrument) Snapshot(depth int) market.Snapshot {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.book.Snapshot(depth)
}

// View runs fn with exclusive access to the book and calculator.
func (i *Instrument) View(fn func(*market.OrderBook, *features.Calculator)) {
	i.mu.Lock()
	defer i.mu.Unlock()
	fn(i.book, i.calc)
}

// Registry is the symbol -> instrument arena. Its lock guards membership only; per-instrument
// state is guarded by each Instrument.
type Registry struct {
	mu    sync.RWMutex
	items map[market.Symbol]*Instrument
	names map[string]market.Symbol
}

func NewRegistry() *Registry {
	return &Registry{
		items: make(map[market.Symbol]*Instrument),
		names: make(map[string]market.Symbol),
	}
}

// Subscribe creates the book and calculator for a new instrument.
func (r *Registry) Subscribe(name string, bc market.BookConfig, fc features.Config) (*Instrument, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[bc.Symbol]; ok {
		return nil, fmt.Errorf("%w: %s (%s)", ErrAlreadySubscribed, name, bc.Symbol)
	}
	if sym, ok := r.names[name]; ok {
		return nil, fmt.Errorf("%w: %s -> %s", ErrDuplicateShortName, name, sym)
	}
	inst := &Instrument{
		name: name,
		book: market.NewOrderBook(bc),
		calc: features.New(bc.Symbol, fc),
	}
	r.items[bc.Symbol] = inst
	r.names[name] = bc.Symbol
	return inst, nil
}

// Unsubscribe drops the instrument; its book and calculator go with it.
func (r *Registry) Unsubscribe(sym market.Symbol) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	inst, ok := r.items[sym]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSymbol, sym)
	}
	delete(r.items, sym)
	delete(r.names, inst.name)
	return nil
}

func (r *Registry) Get(sym market.Symbol) (*Instrument, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	inst, ok := r.items[sym]
	return inst, ok
}

// Lookup 根据交易所名称查找 symbol id。
func (r *Registry) Lookup(name string) (market.Symbol, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sym, ok := r.names[name]
	return sym, ok
}

// Names returns subscribed exchange names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.names))
	for n := range r.names {
		out = append(out, n)
	}
	slices.Sort(out)
	return out
}

// Symbols returns subscribed ids in ascending order.
func (r *Registry) Symbols() []market.Symbol {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]market.Symbol, 0, len(r.items))
	for s := range r.items {
		out = append(out, s)
	}
	slices.Sort(out)
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.items)
}
