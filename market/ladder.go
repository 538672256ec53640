package market

import "slices"

// PriceLevel 单个价格档位：价格以 tick 计，数量为定点数。
type PriceLevel struct {
	Tick int64
	Qty  Qty
}

// ROI bounds the ticks a ladder tracks. The zero value tracks everything.
type ROI struct {
	LoTick  int64
	HiTick  int64
	Bounded bool
}

// NewROI converts a center price and half-width into an inclusive tick window
// [ceil((center-width)/tick), floor((center+width)/tick)]. halfWidth <= 0 disables the bound.
func NewROI(center, halfWidth, tickSize Px) ROI {
	if halfWidth <= 0 {
		return ROI{}
	}
	ts := int64(tickSize)
	if ts <= 0 {
		ts = 1
	}
	return ROI{
		LoTick:  ceilDiv(int64(center-halfWidth), ts),
		HiTick:  floorDiv(int64(center+halfWidth), ts),
		Bounded: true,
	}
}

// Contains reports whether tick lies inside the window.
func (r ROI) Contains(tick int64) bool {
	return !r.Bounded || (tick >= r.LoTick && tick <= r.HiTick)
}

// Ladder keeps one side of the book ordered best-first: bids descending, asks ascending.
// Levels live in a slice so rank lookups are O(1); locating a tick is a binary search and
// inserts/removes shift at most the ROI width.
type Ladder struct {
	side   Side
	levels []PriceLevel
	total  Qty
	roi    ROI
}

func NewLadder(side Side, roi ROI) *Ladder {
	return &Ladder{
		side:   side,
		levels: make([]PriceLevel, 0, 64),
		roi:    roi,
	}
}

func (l *Ladder) Side() Side { return l.side }

func (l *Ladder) ROI() ROI { return l.roi }

// Len 当前档位数。
func (l *Ladder) Len() int { return len(l.levels) }

// UpsertLevel replaces the quantity at tick; qty <= 0 removes the level.
// It returns the quantity previously held at tick (0 if absent) and false when tick is
// outside the ROI, in which case the ladder is untouched.
func (l *Ladder) UpsertLevel(tick int64, qty Qty) (prev Qty, tracked bool) {
	if !l.roi.Contains(tick) {
		return 0, false
	}
	i, found := l.search(tick)
	if found {
		prev = l.levels[i].Qty
		if qty <= 0 {
			l.levels = slices.Delete(l.levels, i, i+1)
			l.total -= prev
			return prev, true
		}
		l.levels[i].Qty = qty
		l.total += qty - prev
		return prev, true
	}
	if qty <= 0 {
		return 0, true
	}
	l.levels = slices.Insert(l.levels, i, PriceLevel{Tick: tick, Qty: qty})
	l.total += qty
	return 0, true
}

// Find returns the quantity at tick.
func (l *Ladder) Find(tick int64) (Qty, bool) {
	i, found := l.search(tick)
	if !found {
		return 0, false
	}
	return l.levels[i].Qty, true
}

// Level returns the level at the 0-indexed rank from the best price.
func (l *Ladder) Level(rank int) (PriceLevel, bool) {
	if rank < 0 || rank >= len(l.levels) {
		return PriceLevel{}, false
	}
	return l.levels[rank], true
}

// Best 返回最优档位。
func (l *Ladder) Best() (PriceLevel, bool) {
	return l.Level(0)
}

// RemoveBest drops the innermost level.
func (l *Ladder) RemoveBest() (PriceLevel, bool) {
	if len(l.levels) == 0 {
		return PriceLevel{}, false
	}
	best := l.levels[0]
	l.levels = slices.Delete(l.levels, 0, 1)
	l.total -= best.Qty
	return best, true
}

// TotalQtyUpTo sums the best n levels.
func (l *Ladder) TotalQtyUpTo(n int) Qty {
	if n > len(l.levels) {
		n = len(l.levels)
	}
	var sum Qty
	for i := 0; i < n; i++ {
		sum += l.levels[i].Qty
	}
	return sum
}

// TotalVolume 所有保留档位的数量之和。
func (l *Ladder) TotalVolume() Qty { return l.total }

// ForEach visits levels best-first until fn returns false.
func (l *Ladder) ForEach(fn func(rank int, lvl PriceLevel) bool) {
	for i, lvl := range l.levels {
		if !fn(i, lvl) {
			return
		}
	}
}

// Reset drops every level but keeps the ROI.
func (l *Ladder) Reset() {
	l.levels = l.levels[:0]
	l.total = 0
}

// Levels returns a copy of the ladder, best-first.
func (l *Ladder) Levels() []PriceLevel {
	return slices.Clone(l.levels)
}

func (l *Ladder) search(tick int64) (int, bool) {
	return slices.BinarySearchFunc(l.levels, tick, func(lvl PriceLevel, target int64) int {
		switch {
		case lvl.Tick == target:
			return 0
		case l.better(lvl.Tick, target):
			return -1
		default:
			return 1
		}
	})
}

// better reports whether tick a ranks ahead of b on this side.
func (l *Ladder) better(a, b int64) bool {
	if l.side == Bid {
		return a > b
	}
	return a < b
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

func ceilDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) == (b < 0)) {
		q++
	}
	return q
}
