package private

import "time"

// EventKind tags the private-feed sum type (spec §4.3).
type EventKind string

const (
	EventOrderUpdate   EventKind = "order_update"
	EventPositionUpdate EventKind = "position_update"
	EventAccountUpdate  EventKind = "account_update"
)

// OrderUpdate mirrors the exchange's order-channel push.
type OrderUpdate struct {
	ClientID    string
	ExchangeID  string
	Symbol      string
	Status      string
	FilledQty   float64
	AvgPrice    float64
	RealizedPnL float64
}

// PositionUpdate mirrors the exchange's position-channel push.
type PositionUpdate struct {
	Symbol        string
	PositionSide  string
	Qty           float64
	EntryPrice    float64
	Margin        float64
	UnrealizedPnL float64
}

// AccountUpdate mirrors the exchange's account/balance-channel push.
type AccountUpdate struct {
	Currency         string
	WalletBalance    float64
	AvailableBalance float64
	UnrealizedPnL    float64
}

// Event is the tagged-union private event (spec §4.3, §9).
type Event struct {
	Kind      EventKind
	Timestamp time.Time

	Order     *OrderUpdate
	Position  *PositionUpdate
	Account   *AccountUpdate
}
