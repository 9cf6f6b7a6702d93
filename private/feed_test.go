package private

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"

	"nofx/gateway"
)

type fakeLoginFramer struct{}

func (fakeLoginFramer) PrivateLoginFrame(timestamp string) gateway.PrivateLoginFrame {
	return gateway.PrivateLoginFrame{APIKey: "k", Passphrase: "p", Timestamp: timestamp, Sign: "sig"}
}

func TestHandleMessageRoutesOrderUpdate(t *testing.T) {
	f := NewFeed("wss://example.invalid", fakeLoginFramer{})

	raw, _ := json.Marshal(wsEnvelope{
		Arg:  subscribeArg{Channel: "orders"},
		Data: json.RawMessage(`[{"clientOid":"c1","orderId":"e1","instId":"BTCUSDT","status":"filled","baseVolume":"0.1","priceAvg":"50000","totalProfits":"1.5"}]`),
	})
	f.handleMessage(raw)

	select {
	case evt := <-f.events:
		assert.Equal(t, EventOrderUpdate, evt.Kind)
		assert.Equal(t, "filled", evt.Order.Status)
		assert.InDelta(t, 0.1, evt.Order.FilledQty, 1e-9)
	default:
		t.Fatal("expected an order update event")
	}
}

func TestHandleMessageRoutesPositionUpdate(t *testing.T) {
	f := NewFeed("wss://example.invalid", fakeLoginFramer{})

	raw, _ := json.Marshal(wsEnvelope{
		Arg:  subscribeArg{Channel: "positions"},
		Data: json.RawMessage(`[{"instId":"BTCUSDT","holdSide":"long","total":"1.0","openPriceAvg":"49000","marginSize":"100","unrealizedPL":"5"}]`),
	})
	f.handleMessage(raw)

	select {
	case evt := <-f.events:
		assert.Equal(t, EventPositionUpdate, evt.Kind)
		assert.Equal(t, "long", evt.Position.PositionSide)
		assert.InDelta(t, 1.0, evt.Position.Qty, 1e-9)
	default:
		t.Fatal("expected a position update event")
	}
}

func TestHandleMessageRoutesAccountUpdate(t *testing.T) {
	f := NewFeed("wss://example.invalid", fakeLoginFramer{})

	raw, _ := json.Marshal(wsEnvelope{
		Arg:  subscribeArg{Channel: "account"},
		Data: json.RawMessage(`[{"marginCoin":"USDT","available":"900","accountEquity":"1000","unrealizedPL":"10"}]`),
	})
	f.handleMessage(raw)

	select {
	case evt := <-f.events:
		assert.Equal(t, EventAccountUpdate, evt.Kind)
		assert.Equal(t, "USDT", evt.Account.Currency)
		assert.InDelta(t, 990.0, evt.Account.WalletBalance, 1e-9)
	default:
		t.Fatal("expected an account update event")
	}
}
