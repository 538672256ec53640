package market

import (
	"encoding/json"
	"testing"
)

func TestSideText(t *testing.T) {
	var s Side
	if err := s.UnmarshalText([]byte("sell")); err != nil || s != Ask {
		t.Fatalf("sell -> %v, %v", s, err)
	}
	if err := s.UnmarshalText([]byte("sideways")); err == nil {
		t.Fatal("expected error for unknown side")
	}
	if Bid.Opposite() != Ask || Ask.Opposite() != Bid {
		t.Fatal("Opposite broken")
	}
}

func TestDepthUpdateJSON(t *testing.T) {
	raw := `{"ts":5,"symbol":7,"side":"ask","price":1001000,"qty":25000,"level_rank":2}`
	var u DepthUpdate
	if err := json.Unmarshal([]byte(raw), &u); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if u.Side != Ask || u.Price != px("100.1") || u.Qty != qty("2.5") || u.LevelRank != 2 {
		t.Fatalf("unexpected update %+v", u)
	}
	if u.Price.String() != "100.1000" {
		t.Fatalf("unexpected price text %s", u.Price.String())
	}
}
