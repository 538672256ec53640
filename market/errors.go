package market

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidUpdate = errors.New("invalid depth update")
	ErrCrossedBook   = errors.New("crossed book")
)

// 拒绝原因，同时用作指标标签。
const (
	ReasonSymbolMismatch = "symbol_mismatch"
	ReasonNegativePrice  = "negative_price"
	ReasonNegativeQty    = "negative_qty"
	ReasonInvalidSide    = "invalid_side"
	ReasonCrossed        = "crossed"
)

// InvalidUpdateError is returned by ApplyValidated when an update fails the shape checks.
// The book is left untouched.
type InvalidUpdateError struct {
	Reason string
	Update DepthUpdate
}

func (e *InvalidUpdateError) Error() string {
	return fmt.Sprintf("%v: %s (%s)", ErrInvalidUpdate, e.Reason, e.Update)
}

func (e *InvalidUpdateError) Unwrap() error { return ErrInvalidUpdate }

// CrossedBookError is returned under CrossReject after the offending level change was undone.
type CrossedBookError struct {
	Symbol  Symbol
	Side    Side
	Price   Px
	BestBid Px
	BestAsk Px
}

func (e *CrossedBookError) Error() string {
	return fmt.Sprintf("%v: symbol %s %s@%s would cross bid %s / ask %s",
		ErrCrossedBook, e.Symbol, e.Side, e.Price, e.BestBid, e.BestAsk)
}

func (e *CrossedBookError) Unwrap() error { return ErrCrossedBook }

// RejectReason extracts the metrics label for an apply error.
func RejectReason(err error) string {
	var inv *InvalidUpdateError
	if errors.As(err, &inv) {
		return inv.Reason
	}
	if errors.Is(err, ErrCrossedBook) {
		return ReasonCrossed
	}
	return "unknown"
}
