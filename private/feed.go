package private

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"nofx/gateway"
	"nofx/logger"
)

const (
	pingInterval      = 30 * time.Second
	pongMissThreshold = 3
	backoffInitial    = 5 * time.Second
	backoffCap        = 60 * time.Second
)

// LoginFramer supplies the signed login payload for the private channel.
// Satisfied by gateway.Gateway; kept as its own narrow interface so this
// package doesn't need the rest of the gateway surface.
type LoginFramer interface {
	PrivateLoginFrame(timestamp string) gateway.PrivateLoginFrame
}

type loginFrame struct {
	Op   string     `json:"op"`
	Args []loginArg `json:"args"`
}

type loginArg struct {
	ApiKey     string `json:"apiKey"`
	Passphrase string `json:"passphrase"`
	Timestamp  string `json:"timestamp"`
	Sign       string `json:"sign"`
}

type subscribeFrame struct {
	Op   string            `json:"op"`
	Args []subscribeArg `json:"args"`
}

type subscribeArg struct {
	InstType string `json:"instType"`
	Channel  string `json:"channel"`
}

type wsEnvelope struct {
	Event   string            `json:"event"`
	Arg     subscribeArg      `json:"arg"`
	Data    json.RawMessage   `json:"data"`
}

type orderPush struct {
	ClientOid   string `json:"clientOid"`
	OrderId     string `json:"orderId"`
	InstId      string `json:"instId"`
	Status      string `json:"status"`
	BaseVolume  string `json:"baseVolume"`
	PriceAvg    string `json:"priceAvg"`
	TotalProfits string `json:"totalProfits"`
}

type positionPush struct {
	InstId        string `json:"instId"`
	HoldSide      string `json:"holdSide"`
	Total         string `json:"total"`
	OpenPriceAvg  string `json:"openPriceAvg"`
	MarginSize    string `json:"marginSize"`
	UnrealizedPL  string `json:"unrealizedPL"`
}

type accountPush struct {
	MarginCoin    string `json:"marginCoin"`
	Available     string `json:"available"`
	Equity        string `json:"accountEquity"`
	UnrealizedPL  string `json:"unrealizedPL"`
}

// Feed is the authenticated Private Event Feed (spec §4.3): same
// connection-management idiom as market.Feed, authenticated at connect via
// the gateway's login frame, subscribed to order/position/account channels.
type Feed struct {
	wsURL  string
	gw     LoginFramer

	mu       sync.Mutex
	conn     *websocket.Conn
	lastPong time.Time

	events chan Event
}

// NewFeed builds a private Feed dialing wsURL and authenticating via gw.
func NewFeed(wsURL string, gw LoginFramer) *Feed {
	return &Feed{
		wsURL:  wsURL,
		gw:     gw,
		events: make(chan Event, 4096),
	}
}

// Events returns the channel subscribers read order/position/account events from.
func (f *Feed) Events() <-chan Event {
	return f.events
}

// Run drives the connect/authenticate/read/reconnect loop until ctx is
// cancelled. It blocks; callers run it in its own goroutine.
func (f *Feed) Run(ctx context.Context) {
	backoff := backoffInitial
	for {
		if ctx.Err() != nil {
			close(f.events)
			return
		}

		connected, err := f.connectAndServe(ctx)
		if ctx.Err() != nil {
			close(f.events)
			return
		}
		if connected {
			backoff = backoffInitial
		}
		if err != nil {
			logger.Warnf("private feed disconnected, reconnecting in %s: %v", backoff, err)
		}

		select {
		case <-ctx.Done():
			close(f.events)
			return
		case <-time.After(backoff):
		}

		if !connected {
			backoff *= 2
			if backoff > backoffCap {
				backoff = backoffCap
			}
		}
	}
}

// connectAndServe dials, logs in, and serves once until the connection drops
// or ctx is cancelled. connected reports whether the dial succeeded, so Run
// can reset its backoff to the floor even when login or a later read fails.
func (f *Feed) connectAndServe(ctx context.Context) (connected bool, err error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.wsURL, nil)
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	ts := strconv.FormatInt(time.Now().Unix(), 10)
	lf := f.gw.PrivateLoginFrame(ts)
	login := loginFrame{Op: "login", Args: []loginArg{{
		ApiKey: lf.APIKey, Passphrase: lf.Passphrase, Timestamp: lf.Timestamp, Sign: lf.Sign,
	}}}
	if err := conn.WriteJSON(login); err != nil {
		return true, fmt.Errorf("login: %w", err)
	}

	// first frame back must be the login ack before we trust the channel.
	_, raw, err := conn.ReadMessage()
	if err != nil {
		return true, fmt.Errorf("read login ack: %w", err)
	}
	var ack struct {
		Event string `json:"event"`
		Code  string `json:"code"`
	}
	if err := json.Unmarshal(raw, &ack); err == nil && ack.Event == "error" {
		return true, fmt.Errorf("login rejected: code %s", ack.Code)
	}

	sub := subscribeFrame{Op: "subscribe", Args: []subscribeArg{
		{InstType: "USDT-FUTURES", Channel: "orders"},
		{InstType: "USDT-FUTURES", Channel: "positions"},
		{InstType: "USDT-FUTURES", Channel: "account"},
	}}
	if err := conn.WriteJSON(sub); err != nil {
		return true, fmt.Errorf("subscribe: %w", err)
	}

	f.mu.Lock()
	f.conn = conn
	f.lastPong = time.Now()
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.conn = nil
		f.mu.Unlock()
	}()

	conn.SetPongHandler(func(string) error {
		f.mu.Lock()
		f.lastPong = time.Now()
		f.mu.Unlock()
		return nil
	})

	readErrCh := make(chan error, 1)
	go f.readLoop(conn, readErrCh)

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return true, nil
		case err := <-readErrCh:
			return true, err
		case <-ticker.C:
			f.mu.Lock()
			missed := time.Since(f.lastPong)
			f.mu.Unlock()
			if missed > pingInterval*pongMissThreshold {
				return true, fmt.Errorf("no pong for %s, forcing reconnect", missed)
			}
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return true, fmt.Errorf("ping: %w", err)
			}
		}
	}
}

func (f *Feed) readLoop(conn *websocket.Conn, errCh chan<- error) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			errCh <- err
			return
		}
		f.handleMessage(raw)
	}
}

func (f *Feed) handleMessage(raw []byte) {
	var env wsEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return
	}
	if len(env.Data) == 0 {
		return
	}

	now := time.Now()
	switch env.Arg.Channel {
	case "orders":
		var pushes []orderPush
		if err := json.Unmarshal(env.Data, &pushes); err != nil {
			return
		}
		for _, p := range pushes {
			filled, _ := strconv.ParseFloat(p.BaseVolume, 64)
			avg, _ := strconv.ParseFloat(p.PriceAvg, 64)
			pnl, _ := strconv.ParseFloat(p.TotalProfits, 64)
			f.emit(Event{
				Kind: EventOrderUpdate, Timestamp: now,
				Order: &OrderUpdate{
					ClientID: p.ClientOid, ExchangeID: p.OrderId, Symbol: p.InstId,
					Status: p.Status, FilledQty: filled, AvgPrice: avg, RealizedPnL: pnl,
				},
			})
		}
	case "positions":
		var pushes []positionPush
		if err := json.Unmarshal(env.Data, &pushes); err != nil {
			return
		}
		for _, p := range pushes {
			qty, _ := strconv.ParseFloat(p.Total, 64)
			entry, _ := strconv.ParseFloat(p.OpenPriceAvg, 64)
			margin, _ := strconv.ParseFloat(p.MarginSize, 64)
			upnl, _ := strconv.ParseFloat(p.UnrealizedPL, 64)
			f.emit(Event{
				Kind: EventPositionUpdate, Timestamp: now,
				Position: &PositionUpdate{
					Symbol: p.InstId, PositionSide: p.HoldSide, Qty: qty,
					EntryPrice: entry, Margin: margin, UnrealizedPnL: upnl,
				},
			})
		}
	case "account":
		var pushes []accountPush
		if err := json.Unmarshal(env.Data, &pushes); err != nil {
			return
		}
		for _, p := range pushes {
			avail, _ := strconv.ParseFloat(p.Available, 64)
			equity, _ := strconv.ParseFloat(p.Equity, 64)
			upnl, _ := strconv.ParseFloat(p.UnrealizedPL, 64)
			f.emit(Event{
				Kind: EventAccountUpdate, Timestamp: now,
				Account: &AccountUpdate{
					Currency: p.MarginCoin, WalletBalance: equity - upnl,
					AvailableBalance: avail, UnrealizedPnL: upnl,
				},
			})
		}
	}
}

func (f *Feed) emit(evt Event) {
	select {
	case f.events <- evt:
	default:
		logger.Warnf("private feed event buffer full, dropping %s event", evt.Kind)
	}
}
