package gateway

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"market-signals-go/infrastructure/logger"
	"market-signals-go/infrastructure/monitor"
	"market-signals-go/market"
)

// Submitter 接收标准化后的深度与成交，通常是 engine.Engine。
type Submitter interface {
	Submit(market.DepthUpdate) error
	SubmitTrade(market.Trade) error
}

// Resolver maps exchange names like BTCUSDT to symbol ids.
type Resolver interface {
	Lookup(name string) (market.Symbol, bool)
}

// BinanceWSHandler 解析 combined 消息并提交到引擎。对 top-N 快照流，
// 它记住上一帧的档位，把消失的档位补成 qty=0 的更新。
type BinanceWSHandler struct {
	sub     Submitter
	names   Resolver
	logger  *logger.Logger
	monitor *monitor.Monitor

	mu   sync.Mutex
	prev map[market.Symbol]*levelImage
}

type levelImage struct {
	bids map[market.Px]struct{}
	asks map[market.Px]struct{}
}

func NewBinanceWSHandler(sub Submitter, names Resolver, log *logger.Logger, mon *monitor.Monitor) *BinanceWSHandler {
	return &BinanceWSHandler{
		sub:     sub,
		names:   names,
		logger:  log,
		monitor: mon,
		prev:    make(map[market.Symbol]*levelImage),
	}
}

// OnRawMessage 处理一条 ws 原始消息。
func (h *BinanceWSHandler) OnRawMessage(raw []byte) {
	if h.monitor != nil {
		h.monitor.RecordFeedMessage()
	}
	msg, err := ParseCombined(raw)
	if err != nil {
		h.parseFailed(err, raw)
		return
	}
	switch KindOf(msg.Stream) {
	case StreamDepth:
		dm, err := parseDepth(msg)
		if err != nil {
			h.parseFailed(err, raw)
			return
		}
		h.OnDepth(dm)
	case StreamTrade:
		tm, err := parseTrade(msg)
		if err != nil {
			h.parseFailed(err, raw)
			return
		}
		h.OnTrade(tm)
	default:
		h.logger.Debug("ignored stream", zap.String("stream", msg.Stream))
	}
}

// OnDepth submits every level of m; unknown symbols are dropped.
func (h *BinanceWSHandler) OnDepth(m DepthMessage) {
	sym, ok := h.names.Lookup(m.Symbol)
	if !ok {
		return
	}
	updates := m.Updates(sym)
	if m.Partial {
		// 先删旧档，避免新最优价与残留档位短暂交叉
		updates = append(h.removed(sym, m), updates...)
	}
	for _, u := range updates {
		if err := h.sub.Submit(u); err != nil {
			h.submitFailed(err, m.Symbol)
			return
		}
	}
}

// OnTrade 提交一笔成交。
func (h *BinanceWSHandler) OnTrade(m TradeMessage) {
	sym, ok := h.names.Lookup(m.Symbol)
	if !ok {
		return
	}
	if err := h.sub.SubmitTrade(m.Trade(sym)); err != nil {
		h.submitFailed(err, m.Symbol)
	}
}

// removed diffs the snapshot against the previous one and returns qty=0 updates for levels
// that disappeared.
func (h *BinanceWSHandler) removed(sym market.Symbol, m DepthMessage) []market.DepthUpdate {
	h.mu.Lock()
	defer h.mu.Unlock()
	cur := &levelImage{bids: priceSet(m.Bids), asks: priceSet(m.Asks)}
	old := h.prev[sym]
	h.prev[sym] = cur
	if old == nil {
		return nil
	}
	var out []market.DepthUpdate
	for side, pair := range map[market.Side][2]map[market.Px]struct{}{
		market.Bid: {old.bids, cur.bids},
		market.Ask: {old.asks, cur.asks},
	} {
		for p := range pair[0] {
			if _, still := pair[1][p]; !still {
				out = append(out, market.DepthUpdate{Ts: m.Ts, Symbol: sym, Side: side, Price: p})
			}
		}
	}
	return out
}

func priceSet(levels []market.Level) map[market.Px]struct{} {
	out := make(map[market.Px]struct{}, len(levels))
	for _, l := range levels {
		out[l.Price] = struct{}{}
	}
	return out
}

func (h *BinanceWSHandler) parseFailed(err error, raw []byte) {
	if h.monitor != nil {
		h.monitor.RecordFeedParseError()
	}
	if errors.Is(err, ErrUnknownStream) {
		h.logger.Debug("unparsed message", zap.Error(err))
		return
	}
	h.logger.Warn("parse feed message failed", zap.Error(err), zap.ByteString("raw", truncate(raw, 256)))
}

func (h *BinanceWSHandler) submitFailed(err error, name string) {
	// 行情侧只记录；拒绝原因已由引擎记到指标
	h.logger.Debug("submit failed", zap.String("name", name), zap.Error(err))
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
