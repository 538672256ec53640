package gateway

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"market-signals-go/market"
)

// ErrUnknownStream 表示 combined 消息既不是 depth 也不是 aggTrade。
var ErrUnknownStream = errors.New("unknown stream")

// CombinedMessage 对应 binance combined stream 包装。
type CombinedMessage struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// StreamKind classifies a combined stream name.
type StreamKind int

const (
	StreamUnknown StreamKind = iota
	StreamDepth
	StreamTrade
)

// KindOf 根据 stream 名称判断类型，如 btcusdt@depth20@100ms / btcusdt@aggTrade。
func KindOf(stream string) StreamKind {
	_, rest, ok := strings.Cut(stream, "@")
	switch {
	case !ok:
		return StreamUnknown
	case strings.HasPrefix(rest, "depth"):
		return StreamDepth
	case strings.HasPrefix(rest, "aggTrade"), strings.HasPrefix(rest, "trade"):
		return StreamTrade
	default:
		return StreamUnknown
	}
}

// IsPartialDepth reports whether stream carries top-N snapshots (depth5/10/20) rather than
// diffs. Levels that drop out of a snapshot are not sent with qty 0.
func IsPartialDepth(stream string) bool {
	_, rest, _ := strings.Cut(stream, "@")
	return strings.HasPrefix(rest, "depth5") || strings.HasPrefix(rest, "depth10") || strings.HasPrefix(rest, "depth20")
}

type depthPayload struct {
	EventTime int64            `json:"E"`
	Symbol    string           `json:"s"`
	Bids      [][2]json.Number `json:"b"`
	Asks      [][2]json.Number `json:"a"`
}

type aggTradePayload struct {
	Symbol       string      `json:"s"`
	Price        json.Number `json:"p"`
	Qty          json.Number `json:"q"`
	TradeTime    int64       `json:"T"`
	BuyerIsMaker bool        `json:"m"`
}

// DepthMessage is a parsed depth event with prices already in fixed point.
type DepthMessage struct {
	Stream  string
	Symbol  string
	Ts      market.Ts
	Bids    []market.Level
	Asks    []market.Level
	Partial bool
}

// Updates converts the message into per-level replace updates for sym. LevelRank is the
// level's position within the message, capped at 255.
func (m DepthMessage) Updates(sym market.Symbol) []market.DepthUpdate {
	out := make([]market.DepthUpdate, 0, len(m.Bids)+len(m.Asks))
	add := func(side market.Side, levels []market.Level) {
		for i, l := range levels {
			out = append(out, market.DepthUpdate{
				Ts:        m.Ts,
				Symbol:    sym,
				Side:      side,
				Price:     l.Price,
				Qty:       l.Qty,
				LevelRank: uint8(min(i, 255)),
			})
		}
	}
	add(market.Bid, m.Bids)
	add(market.Ask, m.Asks)
	return out
}

// TradeMessage is a parsed aggTrade print.
type TradeMessage struct {
	Symbol    string
	Ts        market.Ts
	Price     market.Px
	Qty       market.Qty
	Aggressor market.Side
}

// Trade 转换为标准成交。
func (m TradeMessage) Trade(sym market.Symbol) market.Trade {
	return market.Trade{Ts: m.Ts, Symbol: sym, Price: m.Price, Qty: m.Qty, Aggressor: m.Aggressor}
}

// ParseCombined 解析 combined 包装，返回 stream 名称与原始 data。
func ParseCombined(raw []byte) (CombinedMessage, error) {
	var msg CombinedMessage
	if err := json.Unmarshal(raw, &msg); err != nil {
		return msg, fmt.Errorf("decode combined: %w", err)
	}
	if msg.Stream == "" || len(msg.Data) == 0 {
		return msg, fmt.Errorf("%w: missing stream or data", ErrUnknownStream)
	}
	return msg, nil
}

// ParseCombinedDepth 解析 combined stream 的 depth 消息。
func ParseCombinedDepth(raw []byte) (DepthMessage, error) {
	msg, err := ParseCombined(raw)
	if err != nil {
		return DepthMessage{}, err
	}
	if KindOf(msg.Stream) != StreamDepth {
		return DepthMessage{}, fmt.Errorf("%w: %s", ErrUnknownStream, msg.Stream)
	}
	return parseDepth(msg)
}

func parseDepth(msg CombinedMessage) (DepthMessage, error) {
	var p depthPayload
	if err := json.Unmarshal(msg.Data, &p); err != nil {
		return DepthMessage{}, fmt.Errorf("decode depth: %w", err)
	}
	out := DepthMessage{
		Stream:  msg.Stream,
		Symbol:  p.Symbol,
		Ts:      msTs(p.EventTime),
		Partial: IsPartialDepth(msg.Stream),
	}
	var err error
	if out.Bids, err = parseLevels(p.Bids); err != nil {
		return DepthMessage{}, fmt.Errorf("bids: %w", err)
	}
	if out.Asks, err = parseLevels(p.Asks); err != nil {
		return DepthMessage{}, fmt.Errorf("asks: %w", err)
	}
	return out, nil
}

// ParseCombinedTrade 解析 aggTrade 消息。m=true 表示买方是 maker，即卖方主动。
func ParseCombinedTrade(raw []byte) (TradeMessage, error) {
	msg, err := ParseCombined(raw)
	if err != nil {
		return TradeMessage{}, err
	}
	if KindOf(msg.Stream) != StreamTrade {
		return TradeMessage{}, fmt.Errorf("%w: %s", ErrUnknownStream, msg.Stream)
	}
	return parseTrade(msg)
}

func parseTrade(msg CombinedMessage) (TradeMessage, error) {
	var p aggTradePayload
	if err := json.Unmarshal(msg.Data, &p); err != nil {
		return TradeMessage{}, fmt.Errorf("decode trade: %w", err)
	}
	price, err := market.ParsePx(p.Price.String())
	if err != nil {
		return TradeMessage{}, err
	}
	qty, err := market.ParseQty(p.Qty.String())
	if err != nil {
		return TradeMessage{}, err
	}
	aggressor := market.Bid
	if p.BuyerIsMaker {
		aggressor = market.Ask
	}
	return TradeMessage{Symbol: p.Symbol, Ts: msTs(p.TradeTime), Price: price, Qty: qty, Aggressor: aggressor}, nil
}

func parseLevels(raw [][2]json.Number) ([]market.Level, error) {
	out := make([]market.Level, 0, len(raw))
	for _, pair := range raw {
		price, err := market.ParsePx(pair[0].String())
		if err != nil {
			return nil, err
		}
		qty, err := market.ParseQty(pair[1].String())
		if err != nil {
			return nil, err
		}
		out = append(out, market.Level{Price: price, Qty: qty})
	}
	return out, nil
}

// msTs converts exchange milliseconds to book nanoseconds; 0 falls back to local time.
func msTs(ms int64) market.Ts {
	if ms <= 0 {
		return market.Ts(time.Now().UnixNano())
	}
	return market.Ts(ms * int64(time.Millisecond))
}
