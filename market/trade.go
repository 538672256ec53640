package market

// Trade represents a normalized trade print. Aggressor is the side that crossed the spread.
type Trade struct {
	Ts        Ts     `json:"ts"`
	Symbol    Symbol `json:"symbol"`
	Price     Px     `json:"price"`
	Qty       Qty    `json:"qty"`
	Aggressor Side   `json:"aggressor"`
}
