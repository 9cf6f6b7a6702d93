package market

import "time"

// EventKind tags the sum type emitted by the feed (spec §9: "tagged variants
// instead of polymorphism").
type EventKind string

const (
	EventTicker       EventKind = "ticker"
	EventTrade        EventKind = "trade"
	EventFundingRate  EventKind = "funding_rate"
)

// Ticker is the normalized best-bid/best-ask/last snapshot (spec §4.2).
type Ticker struct {
	Symbol string
	Bid    float64
	Ask    float64
	Last   float64
}

// Trade is a single executed trade, used by the leading-indicator engine's
// OFI computation (spec §4.7).
type Trade struct {
	Symbol    string
	Price     float64
	Qty       float64
	IsBuyerMaker bool // true when the aggressor was a seller (buyer is maker)
	Time      time.Time
}

// Event is the tagged-union market-data event (spec §4.2, §9).
type Event struct {
	Kind        EventKind
	Symbol      string
	Timestamp   time.Time
	Ticker      *Ticker
	Trade       *Trade
	FundingRate float64
}
