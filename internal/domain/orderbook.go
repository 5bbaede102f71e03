package domain

import "time"

// PriceLevel is a single price+size entry in an orderbook.
type PriceLevel struct {
	Price float64 `json:"price"`
	Size  float64 `json:"size"`
}

// OrderbookSnapshot is a point-in-time view of one instrument's L2 book.
// Bids are ordered descending by price (best first), asks ascending (best
// first). A snapshot is never mutated after construction; each feed message
// produces a fresh replacement.
type OrderbookSnapshot struct {
	Timestamp time.Time
	Exchange  string
	Symbol    string
	Bids      []PriceLevel
	Asks      []PriceLevel
}

// BestBid returns the highest bid price, or 0 when the bid side is empty.
func (s OrderbookSnapshot) BestBid() float64 {
	if len(s.Bids) == 0 {
		return 0
	}
	return s.Bids[0].Price
}

// BestAsk returns the lowest ask price, or 0 when the ask side is empty.
func (s OrderbookSnapshot) BestAsk() float64 {
	if len(s.Asks) == 0 {
		return 0
	}
	return s.Asks[0].Price
}

// MidPrice returns (best bid + best ask) / 2, or 0 when either side is empty.
func (s OrderbookSnapshot) MidPrice() float64 {
	if len(s.Bids) == 0 || len(s.Asks) == 0 {
		return 0
	}
	return (s.Bids[0].Price + s.Asks[0].Price) / 2
}

// AskDepthUSD returns the total visible notional value on the ask side.
func (s OrderbookSnapshot) AskDepthUSD() float64 {
	var total float64
	for _, lvl := range s.Asks {
		total += lvl.Price * lvl.Size
	}
	return total
}
