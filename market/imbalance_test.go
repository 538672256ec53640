package market

import (
	"testing"

	"market-signals-go/fixed"
)

func TestCalculateImbalance(t *testing.T) {
	tests := []struct {
		name      string
		bidVolume Qty
		askVolume Qty
		expected  int64
	}{
		{name: "Equal volumes", bidVolume: QtyFromInt(100), askVolume: QtyFromInt(100), expected: 0},
		{name: "More bid volume", bidVolume: QtyFromInt(150), askVolume: QtyFromInt(100), expected: 2000},
		{name: "More ask volume", bidVolume: QtyFromInt(100), askVolume: QtyFromInt(150), expected: -2000},
		{name: "Zero volumes", bidVolume: 0, askVolume: 0, expected: 0},
		{name: "One zero volume", bidVolume: QtyFromInt(100), askVolume: 0, expected: fixed.Scale},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := CalculateImbalance(tt.bidVolume, tt.askVolume)
			if result != tt.expected {
				t.Errorf("CalculateImbalance(%s, %s) = %d, want %d",
					tt.bidVolume, tt.askVolume, result, tt.expected)
			}
		})
	}
}

func symmetricBook(t *testing.T) *OrderBook {
	t.Helper()
	book := newTestBook(CrossAutoResolve)
	for i, q := range []string{"5", "3", "2", "1"} {
		off := Px(int64(i) * int64(px("0.05")))
		mustApply(t, book,
			DepthUpdate{Symbol: testSymbol, Side: Bid, Price: px("100.00") - off, Qty: qty(q)},
			DepthUpdate{Symbol: testSymbol, Side: Ask, Price: px("100.10") + off, Qty: qty(q)},
		)
	}
	return book
}

func TestCalculateImbalanceFromOrderBook(t *testing.T) {
	book := symmetricBook(t)
	if imb := CalculateImbalanceFromOrderBook(book, 5); imb != 0 {
		t.Errorf("symmetric book imbalance = %d", imb)
	}

	// 买方第一档加厚
	mustApply(t, book, upd(Bid, "100.00", "13"))
	// bids 13+3+2+1=19, asks 5+3+2+1=11
	if imb := CalculateImbalanceFromOrderBook(book, 5); imb != 8*fixed.Scale/30 {
		t.Errorf("unexpected imbalance %d", imb)
	}
	if imb := CalculateImbalanceFromOrderBook(nil, 5); imb != 0 {
		t.Errorf("nil book imbalance = %d", imb)
	}
}

func TestBookPressure(t *testing.T) {
	book := symmetricBook(t)
	if p := BookPressure(book, 10); p != 0 {
		t.Fatalf("symmetric book pressure = %d", p)
	}
	// Thin the best ask only: weight 1 dominates deeper levels.
	mustApply(t, book, upd(Ask, "100.10", "1"))
	if p := BookPressure(book, 10); p <= 0 {
		t.Fatalf("expected positive pressure, got %d", p)
	}
	if p := BookPressure(book, 10); p > fixed.Scale {
		t.Fatalf("pressure out of range %d", p)
	}
}
