package gateway

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testGateway() *BitgetGateway {
	return NewBitgetGateway(Credentials{APIKey: "k", APISecret: "s", Passphrase: "p"})
}

func TestSignIsDeterministic(t *testing.T) {
	g := testGateway()
	a := g.sign("1000", "GET", "/user/verify", "")
	b := g.sign("1000", "GET", "/user/verify", "")
	assert.Equal(t, a, b, "same inputs must yield the same signature")

	c := g.sign("1001", "GET", "/user/verify", "")
	assert.NotEqual(t, a, c, "different timestamp must change the signature")
}

func TestPrivateLoginFrame(t *testing.T) {
	g := testGateway()
	frame := g.PrivateLoginFrame("123456")
	assert.Equal(t, "k", frame.APIKey)
	assert.Equal(t, "p", frame.Passphrase)
	assert.NotEmpty(t, frame.Sign)
}

func TestRoundToPrecision(t *testing.T) {
	assert.InDelta(t, 1.235, roundToPrecision(1.2346, 3), 1e-9)
	assert.InDelta(t, 1.0, roundToPrecision(0.999999, 0), 1e-9)
}

func TestClassifyBitgetCode(t *testing.T) {
	cases := []struct {
		code string
		want ErrorKind
	}{
		{"40429", KindRateLimited},
		{"40018", KindAuthFailed},
		{"40017", KindInsufficientMargin},
		{"40009", KindInvalidParam},
		{"40725", KindBelowMinQty},
		{"99999", KindUnknown},
	}
	for _, c := range cases {
		err := classifyBitgetCode(c.code, "msg")
		assert.Equal(t, c.want, err.Kind, "code %s", c.code)
	}
}

func TestSetHedgeModeIsIdempotent(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		json.NewEncoder(w).Encode(bitgetEnvelope{Code: "00000", Data: json.RawMessage(`{}`)})
	}))
	defer srv.Close()

	g := testGateway()
	g.httpClient = srv.Client()
	origURL := bitgetBaseURL
	_ = origURL // base URL is a package const; redirect via httpClient.Transport below instead

	g.httpClient.Transport = rewriteHostTransport{targetBase: srv.URL}

	ctx := context.Background()
	require.NoError(t, g.SetHedgeMode(ctx, "BTCUSDT"))
	require.NoError(t, g.SetHedgeMode(ctx, "BTCUSDT"))
	assert.Equal(t, 1, calls, "second SetHedgeMode call must be a no-op per spec (idempotent)")
}

func TestPlaceOrderRaisesQtyToInstrumentMinimum(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]interface{}
		json.NewDecoder(r.Body).Decode(&body)
		assert.Equal(t, "0.01", body["size"], "qty below instrument minimum must be raised, not dropped")
		json.NewEncoder(w).Encode(bitgetEnvelope{Code: "00000", Data: json.RawMessage(`{"orderId":"1","clientOid":"c1"}`)})
	}))
	defer srv.Close()

	g := testGateway()
	g.httpClient = srv.Client()
	g.httpClient.Transport = rewriteHostTransport{targetBase: srv.URL}
	g.instruments["BTCUSDT"] = Instrument{Symbol: "BTCUSDT", QtyPrecision: 2, PricePrecision: 1, MinQty: 0.01}

	order, err := g.PlaceOrder(context.Background(), PlaceOrderRequest{
		Symbol: "BTCUSDT", Side: SideBuy, PositionSide: PositionLong,
		Type: OrderTypeLimit, Price: 100, Qty: 0.001,
	})
	require.NoError(t, err)
	assert.Equal(t, 0.01, order.Qty)
}

// rewriteHostTransport redirects every request to targetBase, preserving
// path and query, so REST method tests can point at an httptest server
// without changing the package-level base URL constant.
type rewriteHostTransport struct {
	targetBase string
}

func (rt rewriteHostTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	target, err := http.NewRequest(req.Method, rt.targetBase+req.URL.Path+"?"+req.URL.RawQuery, req.Body)
	if err != nil {
		return nil, err
	}
	target.Header = req.Header
	return http.DefaultTransport.RoundTrip(target)
}
