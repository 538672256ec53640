package market

// Window is a FIFO of timestamped samples that ages out anything older than its span.
// Memory is O(samples within span) regardless of event rate.
type Window[T any] struct {
	span  Ts
	items []windowItem[T]
	head  int
}

type windowItem[T any] struct {
	ts Ts
	v  T
}

func NewWindow[T any](span Ts) *Window[T] {
	return &Window[T]{
		span:  span,
		items: make([]windowItem[T], 0, 128),
	}
}

// Span returns the configured age limit in nanoseconds.
func (w *Window[T]) Span() Ts { return w.span }

// Len 窗口内样本数。
func (w *Window[T]) Len() int { return len(w.items) - w.head }

// Push appends a sample; callers push in non-decreasing ts order.
func (w *Window[T]) Push(ts Ts, v T) {
	w.items = append(w.items, windowItem[T]{ts: ts, v: v})
}

// Evict removes every sample with ts < latest-span, calling drop for each one removed.
func (w *Window[T]) Evict(latest Ts, drop func(T)) int {
	cutoff := latest - w.span
	n := 0
	for w.head < len(w.items) && w.items[w.head].ts < cutoff {
		if drop != nil {
			drop(w.items[w.head].v)
		}
		var zero windowItem[T]
		w.items[w.head] = zero
		w.head++
		n++
	}
	w.compact()
	return n
}

// Oldest returns the earliest retained sample.
func (w *Window[T]) Oldest() (Ts, T, bool) {
	if w.Len() == 0 {
		var zero T
		return 0, zero, false
	}
	it := w.items[w.head]
	return it.ts, it.v, true
}

// Each visits samples oldest-first.
func (w *Window[T]) Each(fn func(ts Ts, v T)) {
	for _, it := range w.items[w.head:] {
		fn(it.ts, it.v)
	}
}

// Reset drops every sample.
func (w *Window[T]) Reset() {
	clear(w.items)
	w.items = w.items[:0]
	w.head = 0
}

// compact reclaims the evicted prefix once it dominates the backing slice.
func (w *Window[T]) compact() {
	if w.head == len(w.items) {
		w.items = w.items[:0]
		w.head = 0
		return
	}
	if w.head >= 64 && w.head*2 >= len(w.items) {
		n := copy(w.items, w.items[w.head:])
		clear(w.items[n:])
		w.items = w.items[:n]
		w.head = 0
	}
}
