package market

import (
	"fmt"
	"strings"
)

// CrossingPolicy decides what happens when an update leaves best bid >= best ask.
type CrossingPolicy uint8

const (
	// CrossReject undoes the offending level change and returns ErrCrossedBook.
	CrossReject CrossingPolicy = iota
	// CrossAutoResolve keeps the new level and drops the opposite side's innermost levels.
	CrossAutoResolve
	// CrossAllow leaves the book crossed; callers check IsCrossed.
	CrossAllow
)

func (p CrossingPolicy) String() string {
	switch p {
	case CrossReject:
		return "reject"
	case CrossAutoResolve:
		return "auto_resolve"
	case CrossAllow:
		return "allow_crossed"
	default:
		return "unknown"
	}
}

// ParseCrossingPolicy 解析配置中的策略名。
func ParseCrossingPolicy(s string) (CrossingPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "reject":
		return CrossReject, nil
	case "", "auto_resolve", "autoresolve", "auto":
		return CrossAutoResolve, nil
	case "allow_crossed", "allow", "allowcrossed":
		return CrossAllow, nil
	default:
		return CrossReject, fmt.Errorf("unknown crossing policy %q", s)
	}
}

// BookConfig is fixed at construction; nothing in it changes for the life of the book.
type BookConfig struct {
	Symbol       Symbol
	TickSize     Px
	ROICenter    Px
	ROIHalfWidth Px
	Policy       CrossingPolicy
}

// CrossingEvent describes one crossed update and how the policy handled it.
type CrossingEvent struct {
	Symbol    Symbol
	Policy    CrossingPolicy
	Side      Side // side that received the update
	Price     Px
	Truncated int // opposite-side levels removed by CrossAutoResolve
}

// OrderBook 维护单个合约的两侧价格梯度。
// Not safe for concurrent use: one writer per instrument is the caller's job.
type OrderBook struct {
	symbol     Symbol
	tickSize   Px
	policy     CrossingPolicy
	bids       *Ladder
	asks       *Ladder
	lastUpdate Ts
	onCrossing func(CrossingEvent)
}

func NewOrderBook(cfg BookConfig) *OrderBook {
	if cfg.TickSize <= 0 {
		cfg.TickSize = 1
	}
	roi := NewROI(cfg.ROICenter, cfg.ROIHalfWidth, cfg.TickSize)
	return &OrderBook{
		symbol:   cfg.Symbol,
		tickSize: cfg.TickSize,
		policy:   cfg.Policy,
		bids:     NewLadder(Bid, roi),
		asks:     NewLadder(Ask, roi),
	}
}

// OnCrossing registers a hook invoked whenever an update crosses the book.
func (b *OrderBook) OnCrossing(fn func(CrossingEvent)) { b.onCrossing = fn }

func (b *OrderBook) Symbol() Symbol         { return b.symbol }
func (b *OrderBook) TickSize() Px           { return b.tickSize }
func (b *OrderBook) Policy() CrossingPolicy { return b.policy }
func (b *OrderBook) LastUpdate() Ts         { return b.lastUpdate }
func (b *OrderBook) Bids() *Ladder          { return b.bids }
func (b *OrderBook) Asks() *Ladder          { return b.asks }

// Ladder returns the ladder for side.
func (b *OrderBook) Ladder(side Side) *Ladder {
	if side == Bid {
		return b.bids
	}
	return b.asks
}

// Validate checks an update without touching the book.
func (b *OrderBook) Validate(u DepthUpdate) error {
	switch {
	case u.Symbol != b.symbol:
		return &InvalidUpdateError{Reason: ReasonSymbolMismatch, Update: u}
	case u.Side != Bid && u.Side != Ask:
		return &InvalidUpdateError{Reason: ReasonInvalidSide, Update: u}
	case u.Price < 0:
		return &InvalidUpdateError{Reason: ReasonNegativePrice, Update: u}
	case u.Qty < 0:
		return &InvalidUpdateError{Reason: ReasonNegativeQty, Update: u}
	}
	return nil
}

// ApplyValidated checks the update before applying it. A failed check leaves the book as it was.
func (b *OrderBook) ApplyValidated(u DepthUpdate) error {
	if err := b.Validate(u); err != nil {
		return err
	}
	return b.apply(u)
}

// ApplyFast skips validation for trusted feeds; the crossing policy still applies.
func (b *OrderBook) ApplyFast(u DepthUpdate) error {
	return b.apply(u)
}

// ApplyBatch applies updates in order with validation and stops at the first error.
// It returns how many updates were applied.
func (b *OrderBook) ApplyBatch(updates []DepthUpdate) (int, error) {
	for i, u := range updates {
		if err := b.ApplyValidated(u); err != nil {
			return i, err
		}
	}
	return len(updates), nil
}

func (b *OrderBook) apply(u DepthUpdate) error {
	side := b.Ladder(u.Side)
	tick := int64(u.Price) / int64(b.tickSize)
	prev, tracked := side.UpsertLevel(tick, u.Qty)
	if !tracked || !b.IsCrossed() {
		b.lastUpdate = u.Ts
		return nil
	}

	switch b.policy {
	case CrossReject:
		bid, _ := b.bids.Best()
		ask, _ := b.asks.Best()
		side.UpsertLevel(tick, prev)
		b.notify(CrossingEvent{Symbol: b.symbol, Policy: b.policy, Side: u.Side, Price: u.Price})
		return &CrossedBookError{
			Symbol:  b.symbol,
			Side:    u.Side,
			Price:   u.Price,
			BestBid: b.px(bid.Tick),
			BestAsk: b.px(ask.Tick),
		}
	case CrossAutoResolve:
		opp := b.Ladder(u.Side.Opposite())
		n := 0
		for b.IsCrossed() {
			opp.RemoveBest()
			n++
		}
		b.notify(CrossingEvent{Symbol: b.symbol, Policy: b.policy, Side: u.Side, Price: u.Price, Truncated: n})
	default:
		b.notify(CrossingEvent{Symbol: b.symbol, Policy: b.policy, Side: u.Side, Price: u.Price})
	}
	b.lastUpdate = u.Ts
	return nil
}

func (b *OrderBook) notify(ev CrossingEvent) {
	if b.onCrossing != nil {
		b.onCrossing(ev)
	}
}

// IsCrossed reports best bid >= best ask with both sides present.
func (b *OrderBook) IsCrossed() bool {
	bid, okBid := b.bids.Best()
	ask, okAsk := b.asks.Best()
	return okBid && okAsk && bid.Tick >= ask.Tick
}

// BestBid 最优买价与数量。
func (b *OrderBook) BestBid() (Level, bool) { return b.BidLevel(0) }

// BestAsk 最优卖价与数量。
func (b *OrderBook) BestAsk() (Level, bool) { return b.AskLevel(0) }

func (b *OrderBook) BidLevel(rank int) (Level, bool) { return b.level(b.bids, rank) }

func (b *OrderBook) AskLevel(rank int) (Level, bool) { return b.level(b.asks, rank) }

// BidDepth sums the best n bid levels.
func (b *OrderBook) BidDepth(n int) Qty { return b.bids.TotalQtyUpTo(n) }

// AskDepth sums the best n ask levels.
func (b *OrderBook) AskDepth(n int) Qty { return b.asks.TotalQtyUpTo(n) }

// SpreadTicks returns (best ask - best bid) / tick size.
func (b *OrderBook) SpreadTicks() (int64, bool) {
	bid, okBid := b.BestBid()
	ask, okAsk := b.BestAsk()
	if !okBid || !okAsk {
		return 0, false
	}
	return int64(ask.Price-bid.Price) / int64(b.tickSize), true
}

// Mid 中间价；任一侧缺失返回 false。
func (b *OrderBook) Mid() (Px, bool) {
	bid, okBid := b.BestBid()
	ask, okAsk := b.BestAsk()
	if !okBid || !okAsk {
		return 0, false
	}
	return (bid.Price + ask.Price) / 2, true
}

// EstimateFillPrice walks side's ladder from the best level until the cumulative quantity
// covers qty. It returns the last price touched and the cumulative quantity seen; when the
// ladder runs out the deepest level and the full ladder volume are returned.
func (b *OrderBook) EstimateFillPrice(side Side, qty Qty) (Px, Qty) {
	var (
		price Px
		cum   Qty
	)
	b.Ladder(side).ForEach(func(_ int, lvl PriceLevel) bool {
		price = b.px(lvl.Tick)
		cum += lvl.Qty
		return cum < qty
	})
	return price, cum
}

// Snapshot captures the top of book for logging and diagnostics.
func (b *OrderBook) Snapshot(depth int) Snapshot {
	s := Snapshot{
		Symbol:    b.symbol,
		Ts:        b.lastUpdate,
		BidLevels: b.bids.Len(),
		AskLevels: b.asks.Len(),
		BidDepth:  b.BidDepth(depth),
		AskDepth:  b.AskDepth(depth),
		Crossed:   b.IsCrossed(),
	}
	if lvl, ok := b.BestBid(); ok {
		s.BestBid = lvl
	}
	if lvl, ok := b.BestAsk(); ok {
		s.BestAsk = lvl
	}
	s.Mid, _ = b.Mid()
	s.SpreadTicks, _ = b.SpreadTicks()
	return s
}

// Reset empties both sides; configuration is kept.
func (b *OrderBook) Reset() {
	b.bids.Reset()
	b.asks.Reset()
	b.lastUpdate = 0
}

func (b *OrderBook) level(l *Ladder, rank int) (Level, bool) {
	lvl, ok := l.Level(rank)
	if !ok {
		return Level{}, false
	}
	return Level{Price: b.px(lvl.Tick), Qty: lvl.Qty}, true
}

func (b *OrderBook) px(tick int64) Px {
	return Px(tick * int64(b.tickSize))
}
