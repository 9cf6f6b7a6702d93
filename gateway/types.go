package gateway

import "time"

// PositionSide distinguishes the hedge-mode long/short leg of a symbol.
type PositionSide string

const (
	PositionLong  PositionSide = "long"
	PositionShort PositionSide = "short"
)

// OrderSide is the exchange-facing buy/sell direction.
type OrderSide string

const (
	SideBuy  OrderSide = "buy"
	SideSell OrderSide = "sell"
)

// OrderType distinguishes a resting limit order from an immediate market order.
type OrderType string

const (
	OrderTypeLimit  OrderType = "limit"
	OrderTypeMarket OrderType = "market"
)

// OrderStatus is the exchange-facing lifecycle status of an Order (spec §3).
type OrderStatus string

const (
	OrderStatusNew       OrderStatus = "new"
	OrderStatusFilled    OrderStatus = "filled"
	OrderStatusPartial   OrderStatus = "partial"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusRejected  OrderStatus = "rejected"
)

// Instrument carries the precision and sizing rules the gateway rounds
// against before submission (spec §4.1).
type Instrument struct {
	Symbol         string
	PricePrecision int
	QtyPrecision   int
	MinQty         float64
	MinNotional    float64
}

// PlaceOrderRequest is the gateway's typed order-submission contract.
type PlaceOrderRequest struct {
	Symbol       string
	Side         OrderSide
	PositionSide PositionSide
	Type         OrderType
	Price        float64 // ignored for market orders
	Qty          float64
	ReduceOnly   bool
	ClientOrderID string
}

// Order is the gateway's normalized view of an order (spec §3).
type Order struct {
	ClientID     string
	ExchangeID   string
	Symbol       string
	Side         OrderSide
	PositionSide PositionSide
	Price        float64
	Qty          float64
	FilledQty    float64
	AvgPrice     float64
	Status       OrderStatus
	ReduceOnly   bool
	RealizedPnL  float64
	CreatedAt    time.Time
}

// Position is the gateway's normalized view of one side of one symbol.
type Position struct {
	Symbol       string
	PositionSide PositionSide
	Qty          float64
	EntryPrice   float64
	Margin       float64
	UnrealizedPnL float64
	Timestamp    time.Time
}

// Balance is the gateway's normalized per-currency account balance (spec §3).
type Balance struct {
	Currency        string
	WalletBalance   float64
	AvailableBalance float64
	UnrealizedPnL   float64
	UsedMargin      float64
}

// Equity is wallet balance plus unrealized PnL.
func (b Balance) Equity() float64 {
	return b.WalletBalance + b.UnrealizedPnL
}

// MarginRatio is used margin over equity, 0 when equity is non-positive.
func (b Balance) MarginRatio() float64 {
	eq := b.Equity()
	if eq <= 0 {
		return 0
	}
	return b.UsedMargin / eq
}

// FundingRate is a single symbol's current funding rate snapshot.
type FundingRate struct {
	Symbol string
	Rate   float64
	Time   time.Time
}
