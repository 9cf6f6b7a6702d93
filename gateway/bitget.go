package gateway

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	bitgetBaseURL           = "https://api.bitget.com"
	bitgetPublicWSURL       = "wss://ws.bitget.com/v2/ws/public"
	bitgetPrivateWSURL      = "wss://ws.bitget.com/v2/ws/private"
	bitgetInstrumentsPath   = "/api/v2/mix/market/contracts"
	bitgetPositionsPath     = "/api/v2/mix/position/all-position"
	bitgetOpenOrdersPath    = "/api/v2/mix/order/orders-pending"
	bitgetBalancePath       = "/api/v2/mix/account/accounts"
	bitgetPlaceOrderPath    = "/api/v2/mix/order/place-order"
	bitgetCancelOrderPath   = "/api/v2/mix/order/cancel-order"
	bitgetCancelAllPath     = "/api/v2/mix/order/cancel-all-orders"
	bitgetHedgeModePath     = "/api/v2/mix/account/set-position-mode"
	bitgetFundingRatePath   = "/api/v2/mix/market/current-fund-rate"
	bitgetProductType       = "USDT-FUTURES"
	bitgetLoginVerifyString = "GET/user/verify"
)

// bitgetEnvelope is the common {code,msg,data} response shape every Bitget
// V2 endpoint uses.
type bitgetEnvelope struct {
	Code string          `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

// BitgetGateway implements Gateway against Bitget's V2 REST API. Signing
// follows the teacher's kucoin.KuCoinTrader idiom: stdlib HMAC-SHA256,
// hand-rolled per request, not a vendored SDK (the teacher hand-signs for
// every exchange it supports, including ones with an available SDK).
type BitgetGateway struct {
	creds      Credentials
	httpClient *http.Client

	instrumentsMu sync.RWMutex
	instruments   map[string]Instrument

	hedgeModeMu sync.Mutex
	hedgeModeSet map[string]bool
}

// NewBitgetGateway constructs a gateway bound to already-decrypted
// credentials (spec §6.3 — the core never opens the vault itself).
func NewBitgetGateway(creds Credentials) *BitgetGateway {
	return &BitgetGateway{
		creds: creds,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		instruments:  make(map[string]Instrument),
		hedgeModeSet: make(map[string]bool),
	}
}

func (g *BitgetGateway) PublicWSURL() string { return bitgetPublicWSURL }

// PrivateLoginFrame builds the signed login payload (spec §6.1).
func (g *BitgetGateway) PrivateLoginFrame(timestamp string) PrivateLoginFrame {
	return PrivateLoginFrame{
		APIKey:     g.creds.APIKey,
		Passphrase: g.creds.Passphrase,
		Timestamp:  timestamp,
		Sign:       g.sign(timestamp, "GET", "/user/verify", ""),
	}
}

// sign computes Base64(HMAC-SHA256(secret, timestamp+method+requestPath+body)),
// the canonical Bitget V2 request signature (and, with method="GET" and
// requestPath="/user/verify", the private WS login signature of spec §6.1).
func (g *BitgetGateway) sign(timestamp, method, requestPath, body string) string {
	preHash := timestamp + method + requestPath + body
	h := hmac.New(sha256.New, []byte(g.creds.APISecret))
	h.Write([]byte(preHash))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

func (g *BitgetGateway) doRequest(ctx context.Context, method, path string, query url.Values, body interface{}) (json.RawMessage, error) {
	var bodyBytes []byte
	var err error
	if body != nil {
		bodyBytes, err = json.Marshal(body)
		if err != nil {
			return nil, &GatewayError{Kind: KindInvalidParam, Reason: fmt.Sprintf("encoding request: %v", err)}
		}
	}

	fullPath := path
	if len(query) > 0 {
		fullPath = path + "?" + query.Encode()
	}

	timestamp := strconv.FormatInt(time.Now().UnixMilli(), 10)
	signature := g.sign(timestamp, method, fullPath, string(bodyBytes))

	req, err := http.NewRequestWithContext(ctx, method, bitgetBaseURL+fullPath, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, &GatewayError{Kind: KindInvalidParam, Reason: err.Error()}
	}
	req.Header.Set("ACCESS-KEY", g.creds.APIKey)
	req.Header.Set("ACCESS-SIGN", signature)
	req.Header.Set("ACCESS-TIMESTAMP", timestamp)
	req.Header.Set("ACCESS-PASSPHRASE", g.creds.Passphrase)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("locale", "en-US")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, newTransient("request cancelled: " + ctx.Err().Error())
		}
		return nil, newTransient(err.Error())
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, newTransient(fmt.Sprintf("reading response: %v", err))
	}

	if resp.StatusCode >= 500 {
		return nil, newTransient(fmt.Sprintf("server error %d: %s", resp.StatusCode, string(respBody)))
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &GatewayError{Kind: KindRateLimited, Reason: string(respBody)}
	}

	var env bitgetEnvelope
	if err := json.Unmarshal(respBody, &env); err != nil {
		return nil, &GatewayError{Kind: KindUnknown, Reason: fmt.Sprintf("unparseable body: %s", string(respBody))}
	}

	if env.Code != "00000" && env.Code != "" {
		return nil, classifyBitgetCode(env.Code, env.Msg)
	}

	return env.Data, nil
}

// LoadInstruments fetches and caches instrument precision/minimums.
func (g *BitgetGateway) LoadInstruments(ctx context.Context) (map[string]Instrument, error) {
	data, err := g.doRequest(ctx, "GET", bitgetInstrumentsPath, url.Values{"productType": {bitgetProductType}}, nil)
	if err != nil {
		return nil, err
	}

	var contracts []struct {
		Symbol        string `json:"symbol"`
		PricePlace    string `json:"pricePlace"`
		VolumePlace   string `json:"volumePlace"`
		MinTradeNum   string `json:"minTradeNum"`
		MinTradeUSDT  string `json:"minTradeUSDT"`
	}
	if err := json.Unmarshal(data, &contracts); err != nil {
		return nil, &GatewayError{Kind: KindUnknown, Reason: "parsing instruments: " + err.Error()}
	}

	out := make(map[string]Instrument, len(contracts))
	for _, c := range contracts {
		pp, _ := strconv.Atoi(c.PricePlace)
		vp, _ := strconv.Atoi(c.VolumePlace)
		minQty, _ := strconv.ParseFloat(c.MinTradeNum, 64)
		minNotional, _ := strconv.ParseFloat(c.MinTradeUSDT, 64)
		out[c.Symbol] = Instrument{
			Symbol:         c.Symbol,
			PricePrecision: pp,
			QtyPrecision:   vp,
			MinQty:         minQty,
			MinNotional:    minNotional,
		}
	}

	g.instrumentsMu.Lock()
	g.instruments = out
	g.instrumentsMu.Unlock()
	return out, nil
}

func (g *BitgetGateway) instrumentFor(symbol string) (Instrument, bool) {
	g.instrumentsMu.RLock()
	defer g.instrumentsMu.RUnlock()
	inst, ok := g.instruments[symbol]
	return inst, ok
}

// roundToPrecision applies the gateway-boundary precision rounding
// named in spec §4.1/§9: strategy math stays float64-pure, unrounded;
// rounding happens here, at the last mile before submission.
func roundToPrecision(v float64, precision int) float64 {
	scale := math.Pow(10, float64(precision))
	return math.Round(v*scale) / scale
}

// SetHedgeMode is idempotent: a second call for an already-configured
// symbol is a no-op, matching spec §4.1 ("already set is not an error") and
// §8's "set_hedge_mode applied twice is equivalent to once."
func (g *BitgetGateway) SetHedgeMode(ctx context.Context, symbol string) error {
	g.hedgeModeMu.Lock()
	if g.hedgeModeSet[symbol] {
		g.hedgeModeMu.Unlock()
		return nil
	}
	g.hedgeModeMu.Unlock()

	body := map[string]string{
		"productType":  bitgetProductType,
		"posMode":      "hedge_mode",
	}
	_, err := g.doRequest(ctx, "POST", bitgetHedgeModePath, nil, body)
	if err != nil {
		var gerr *GatewayError
		if asGatewayError(err, &gerr) && strings.Contains(strings.ToLower(gerr.Reason), "already") {
			err = nil
		} else {
			return err
		}
	}

	g.hedgeModeMu.Lock()
	g.hedgeModeSet[symbol] = true
	g.hedgeModeMu.Unlock()
	return nil
}

func asGatewayError(err error, out **GatewayError) bool {
	if gerr, ok := err.(*GatewayError); ok {
		*out = gerr
		return true
	}
	return false
}

// PlaceOrder rounds price/qty to instrument precision, raises below-minimum
// quantity to the instrument minimum rather than silently dropping it (spec
// §8: "place_order rounds to minimum, does not silently drop"), and submits.
func (g *BitgetGateway) PlaceOrder(ctx context.Context, req PlaceOrderRequest) (*Order, error) {
	inst, ok := g.instrumentFor(req.Symbol)
	qty := req.Qty
	price := req.Price
	if ok {
		qty = roundToPrecision(qty, inst.QtyPrecision)
		price = roundToPrecision(price, inst.PricePrecision)
		if qty < inst.MinQty {
			qty = inst.MinQty
		}
	}
	if qty <= 0 {
		return nil, &GatewayError{Kind: KindInvalidParam, Reason: "quantity resolves to zero after rounding"}
	}

	clientID := req.ClientOrderID
	if clientID == "" {
		clientID = uuid.NewString()
	}

	body := map[string]interface{}{
		"symbol":      req.Symbol,
		"productType": bitgetProductType,
		"marginMode":  "crossed",
		"marginCoin":  "USDT",
		"size":        strconv.FormatFloat(qty, 'f', -1, 64),
		"side":        string(req.Side),
		"tradeSide":   tradeSideFor(req.PositionSide, req.Side),
		"orderType":   string(req.Type),
		"clientOid":   clientID,
		"reduceOnly":  req.ReduceOnly,
	}
	if req.Type == OrderTypeLimit {
		body["price"] = strconv.FormatFloat(price, 'f', -1, 64)
		body["force"] = "gtc"
	}

	data, err := g.doRequest(ctx, "POST", bitgetPlaceOrderPath, nil, body)
	if err != nil {
		return nil, err
	}

	var resp struct {
		OrderID   string `json:"orderId"`
		ClientOid string `json:"clientOid"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, &GatewayError{Kind: KindUnknown, Reason: "parsing place-order response: " + err.Error()}
	}

	return &Order{
		ClientID:     clientID,
		ExchangeID:   resp.OrderID,
		Symbol:       req.Symbol,
		Side:         req.Side,
		PositionSide: req.PositionSide,
		Price:        price,
		Qty:          qty,
		Status:       OrderStatusNew,
		ReduceOnly:   req.ReduceOnly,
		CreatedAt:    time.Now(),
	}, nil
}

func tradeSideFor(posSide PositionSide, side OrderSide) string {
	// Hedge-mode trade side: open on the entry leg of that position side,
	// close on the reducing leg.
	opening := (posSide == PositionLong && side == SideBuy) || (posSide == PositionShort && side == SideSell)
	if opening {
		return "open"
	}
	return "close"
}

func (g *BitgetGateway) CancelOrder(ctx context.Context, symbol, exchangeID string) error {
	body := map[string]string{
		"symbol":      symbol,
		"productType": bitgetProductType,
		"orderId":     exchangeID,
	}
	_, err := g.doRequest(ctx, "POST", bitgetCancelOrderPath, nil, body)
	return err
}

func (g *BitgetGateway) CancelOrdersForPositionSide(ctx context.Context, symbol string, side PositionSide) error {
	orders, err := g.FetchOpenOrders(ctx, symbol)
	if err != nil {
		return err
	}
	for _, o := range orders {
		if o.PositionSide != side {
			continue
		}
		if cerr := g.CancelOrder(ctx, symbol, o.ExchangeID); cerr != nil {
			return cerr
		}
	}
	return nil
}

func (g *BitgetGateway) FetchPositions(ctx context.Context) ([]Position, error) {
	data, err := g.doRequest(ctx, "GET", bitgetPositionsPath, url.Values{"productType": {bitgetProductType}}, nil)
	if err != nil {
		return nil, err
	}

	var raw []struct {
		Symbol       string `json:"symbol"`
		HoldSide     string `json:"holdSide"`
		Total        string `json:"total"`
		OpenPriceAvg string `json:"openPriceAvg"`
		Margin       string `json:"marginSize"`
		UnrealizedPL string `json:"unrealizedPL"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &GatewayError{Kind: KindUnknown, Reason: "parsing positions: " + err.Error()}
	}

	out := make([]Position, 0, len(raw))
	now := time.Now()
	for _, p := range raw {
		qty, _ := strconv.ParseFloat(p.Total, 64)
		entry, _ := strconv.ParseFloat(p.OpenPriceAvg, 64)
		margin, _ := strconv.ParseFloat(p.Margin, 64)
		upnl, _ := strconv.ParseFloat(p.UnrealizedPL, 64)
		side := PositionLong
		if strings.EqualFold(p.HoldSide, "short") {
			side = PositionShort
		}
		out = append(out, Position{
			Symbol:        p.Symbol,
			PositionSide:  side,
			Qty:           qty,
			EntryPrice:    entry,
			Margin:        margin,
			UnrealizedPnL: upnl,
			Timestamp:     now,
		})
	}
	return out, nil
}

func (g *BitgetGateway) FetchOpenOrders(ctx context.Context, symbol string) ([]Order, error) {
	q := url.Values{"productType": {bitgetProductType}}
	if symbol != "" {
		q.Set("symbol", symbol)
	}
	data, err := g.doRequest(ctx, "GET", bitgetOpenOrdersPath, q, nil)
	if err != nil {
		return nil, err
	}

	var resp struct {
		EntrustedList []struct {
			OrderID      string `json:"orderId"`
			ClientOid    string `json:"clientOid"`
			Symbol       string `json:"symbol"`
			Side         string `json:"side"`
			TradeSide    string `json:"tradeSide"`
			Price        string `json:"price"`
			Size         string `json:"size"`
			FilledQty    string `json:"baseVolume"`
			PriceAvg     string `json:"priceAvg"`
			Status       string `json:"status"`
			ReduceOnly   string `json:"reduceOnly"`
		} `json:"entrustedList"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, &GatewayError{Kind: KindUnknown, Reason: "parsing open orders: " + err.Error()}
	}

	out := make([]Order, 0, len(resp.EntrustedList))
	for _, o := range resp.EntrustedList {
		price, _ := strconv.ParseFloat(o.Price, 64)
		qty, _ := strconv.ParseFloat(o.Size, 64)
		filled, _ := strconv.ParseFloat(o.FilledQty, 64)
		avg, _ := strconv.ParseFloat(o.PriceAvg, 64)
		posSide := PositionLong
		if (o.TradeSide == "open" && o.Side == "sell") || (o.TradeSide == "close" && o.Side == "buy") {
			posSide = PositionShort
		}
		out = append(out, Order{
			ClientID:     o.ClientOid,
			ExchangeID:   o.OrderID,
			Symbol:       o.Symbol,
			Side:         OrderSide(o.Side),
			PositionSide: posSide,
			Price:        price,
			Qty:          qty,
			FilledQty:    filled,
			AvgPrice:     avg,
			Status:       normalizeStatus(o.Status),
			ReduceOnly:   o.ReduceOnly == "yes" || o.ReduceOnly == "true",
		})
	}
	return out, nil
}

func normalizeStatus(bitgetStatus string) OrderStatus {
	switch bitgetStatus {
	case "filled":
		return OrderStatusFilled
	case "partially_filled":
		return OrderStatusPartial
	case "cancelled", "canceled":
		return OrderStatusCancelled
	case "rejected":
		return OrderStatusRejected
	default:
		return OrderStatusNew
	}
}

func (g *BitgetGateway) FetchBalance(ctx context.Context) ([]Balance, error) {
	data, err := g.doRequest(ctx, "GET", bitgetBalancePath, url.Values{"productType": {bitgetProductType}}, nil)
	if err != nil {
		return nil, err
	}

	var raw []struct {
		MarginCoin       string `json:"marginCoin"`
		Available        string `json:"available"`
		Equity           string `json:"accountEquity"`
		UnrealizedPL     string `json:"unrealizedPL"`
		LockedMargin     string `json:"locked"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &GatewayError{Kind: KindUnknown, Reason: "parsing balance: " + err.Error()}
	}

	out := make([]Balance, 0, len(raw))
	for _, b := range raw {
		avail, _ := strconv.ParseFloat(b.Available, 64)
		equity, _ := strconv.ParseFloat(b.Equity, 64)
		upnl, _ := strconv.ParseFloat(b.UnrealizedPL, 64)
		locked, _ := strconv.ParseFloat(b.LockedMargin, 64)
		out = append(out, Balance{
			Currency:         b.MarginCoin,
			WalletBalance:    equity - upnl,
			AvailableBalance: avail,
			UnrealizedPnL:    upnl,
			UsedMargin:       locked,
		})
	}
	return out, nil
}

func (g *BitgetGateway) FetchFundingRate(ctx context.Context, symbol string) (FundingRate, error) {
	data, err := g.doRequest(ctx, "GET", bitgetFundingRatePath, url.Values{"symbol": {symbol}, "productType": {bitgetProductType}}, nil)
	if err != nil {
		return FundingRate{}, err
	}
	var raw []struct {
		Symbol      string `json:"symbol"`
		FundingRate string `json:"fundingRate"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return FundingRate{}, &GatewayError{Kind: KindUnknown, Reason: "parsing funding rate: " + err.Error()}
	}
	if len(raw) == 0 {
		return FundingRate{}, &GatewayError{Kind: KindUnknown, Reason: "empty funding rate response"}
	}
	rate, _ := strconv.ParseFloat(raw[0].FundingRate, 64)
	return FundingRate{Symbol: symbol, Rate: rate, Time: time.Now()}, nil
}
