package gateway

import "context"

// Gateway is the typed wrapper over the exchange's REST surface (spec §4.1).
// It never interprets strategy; it only translates types and error codes.
// For WebSockets it only supplies PublicWSURL and the signed
// PrivateLoginFrame; the market/private feed packages open and drive the
// connections (the gateway owns signing, not the read loop).
type Gateway interface {
	LoadInstruments(ctx context.Context) (map[string]Instrument, error)
	SetHedgeMode(ctx context.Context, symbol string) error
	PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*Order, error)
	CancelOrder(ctx context.Context, symbol, exchangeID string) error
	CancelOrdersForPositionSide(ctx context.Context, symbol string, side PositionSide) error
	FetchPositions(ctx context.Context) ([]Position, error)
	FetchOpenOrders(ctx context.Context, symbol string) ([]Order, error)
	FetchBalance(ctx context.Context) ([]Balance, error)
	FetchFundingRate(ctx context.Context, symbol string) (FundingRate, error)

	PublicWSURL() string
	PrivateLoginFrame(timestamp string) PrivateLoginFrame
}

// PrivateLoginFrame is the signed login payload for the private WebSocket
// (spec §6.1): sign = Base64(HMAC_SHA256(secret, timestamp+"GET/user/verify")).
type PrivateLoginFrame struct {
	APIKey     string
	Passphrase string
	Timestamp  string
	Sign       string
}

// Credentials is the already-decrypted struct the core receives from the
// out-of-scope vault collaborator (spec §6.3). The core never opens a vault
// itself.
type Credentials struct {
	APIKey     string
	APISecret  string
	Passphrase string
}
