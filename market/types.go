package market

import (
	"fmt"
	"strconv"

	"market-signals-go/fixed"
)

// Px 价格，定点数（scale 10000）。
type Px int64

// Qty 数量，定点数（scale 10000）。
type Qty int64

// Ts is a nanosecond timestamp, monotonic within one book's update stream.
type Ts int64

// Symbol is an opaque instrument id.
type Symbol uint32

// Side 盘口方向。
type Side uint8

const (
	Bid Side = iota
	Ask
)

func (s Side) String() string {
	switch s {
	case Bid:
		return "bid"
	case Ask:
		return "ask"
	default:
		return "side(" + strconv.Itoa(int(s)) + ")"
	}
}

// MarshalText encodes the side as "bid"/"ask".
func (s Side) MarshalText() ([]byte, error) {
	if s > Ask {
		return nil, fmt.Errorf("invalid side %d", s)
	}
	return []byte(s.String()), nil
}

func (s *Side) UnmarshalText(b []byte) error {
	switch string(b) {
	case "bid", "BID", "buy", "BUY":
		*s = Bid
	case "ask", "ASK", "sell", "SELL":
		*s = Ask
	default:
		return fmt.Errorf("invalid side %q", string(b))
	}
	return nil
}

// Opposite returns the other side of the book.
func (s Side) Opposite() Side {
	if s == Bid {
		return Ask
	}
	return Bid
}

func PxFromInt(v int64) Px { return Px(fixed.FromInt(v)) }

// ParsePx parses a decimal price string.
func ParsePx(s string) (Px, error) {
	v, err := fixed.FromDecimal(s)
	return Px(v), err
}

func (p Px) AsInt64() int64     { return int64(p) }
func (p Px) AsFloat64() float64 { return fixed.ToFloat64(int64(p)) }
func (p Px) String() string     { return fixed.Format(int64(p)) }

func QtyFromInt(v int64) Qty { return Qty(fixed.FromInt(v)) }

// ParseQty parses a decimal quantity string.
func ParseQty(s string) (Qty, error) {
	v, err := fixed.FromDecimal(s)
	return Qty(v), err
}

func (q Qty) AsInt64() int64     { return int64(q) }
func (q Qty) AsFloat64() float64 { return fixed.ToFloat64(int64(q)) }
func (q Qty) String() string     { return fixed.Format(int64(q)) }

func (s Symbol) String() string { return strconv.FormatUint(uint64(s), 10) }

// DepthUpdate carries the new aggregated quantity of one price level (a replace, not a delta).
type DepthUpdate struct {
	Ts        Ts     `json:"ts"`
	Symbol    Symbol `json:"symbol"`
	Side      Side   `json:"side"`
	Price     Px     `json:"price"`
	Qty       Qty    `json:"qty"`
	LevelRank uint8  `json:"level_rank"`
}

func (u DepthUpdate) String() string {
	return fmt.Sprintf("%s %s %s@%s rank=%d ts=%d", u.Symbol, u.Side, u.Qty, u.Price, u.LevelRank, u.Ts)
}

// Level 对外暴露的价格档位（价格 + 数量）。
type Level struct {
	Price Px  `json:"price"`
	Qty   Qty `json:"qty"`
}
