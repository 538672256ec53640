package market

import "market-signals-go/fixed"

// CalculateImbalance calculates the imbalance between bid and ask volumes
// Imbalance = (BidVol - AskVol) / (BidVol + AskVol), at fixed scale, in [-Scale, Scale].
func CalculateImbalance(bidVolume Qty, askVolume Qty) int64 {
	total := int64(bidVolume) + int64(askVolume)
	if total == 0 {
		return 0
	}
	return fixed.MulDiv(int64(bidVolume)-int64(askVolume), fixed.Scale, total)
}

// CalculateImbalanceFromOrderBook calculates imbalance over the best `levels` levels per side.
func CalculateImbalanceFromOrderBook(book *OrderBook, levels int) int64 {
	if book == nil || levels <= 0 {
		return 0
	}
	return CalculateImbalance(book.BidDepth(levels), book.AskDepth(levels))
}

// BookPressure weights each level by 1/(rank+1) and returns the weighted imbalance.
// A book with equal quantity at every rank on both sides yields 0.
func BookPressure(book *OrderBook, levels int) int64 {
	if book == nil || levels <= 0 {
		return 0
	}
	bid := weightedDepth(book.Bids(), levels)
	ask := weightedDepth(book.Asks(), levels)
	total := bid + ask
	if total == 0 {
		return 0
	}
	return fixed.MulDiv(bid-ask, fixed.Scale, total)
}

func weightedDepth(l *Ladder, levels int) int64 {
	var sum int64
	l.ForEach(func(rank int, lvl PriceLevel) bool {
		if rank >= levels {
			return false
		}
		sum += fixed.MulDiv(int64(lvl.Qty), fixed.Scale, int64(rank+1))
		return true
	})
	return sum
}
