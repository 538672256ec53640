package market

// Snapshot represents a top-of-book snapshot.
type Snapshot struct {
	Symbol      Symbol `json:"symbol"`
	Ts          Ts     `json:"ts"`
	BestBid     Level  `json:"best_bid"`
	BestAsk     Level  `json:"best_ask"`
	Mid         Px     `json:"mid"`
	SpreadTicks int64  `json:"spread_ticks"`
	BidDepth    Qty    `json:"bid_depth"`
	AskDepth    Qty    `json:"ask_depth"`
	BidLevels   int    `json:"bid_levels"`
	AskLevels   int    `json:"ask_levels"`
	Crossed     bool   `json:"crossed"`
}
