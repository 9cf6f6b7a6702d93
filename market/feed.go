package market

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"nofx/logger"
)

const (
	pingInterval     = 30 * time.Second
	pongMissThreshold = 3
	backoffInitial   = 5 * time.Second
	backoffCap       = 60 * time.Second
)

// bitgetSubscribeFrame and bitgetWSEnvelope mirror Bitget's v2 public channel
// wire format: {"op":"subscribe","args":[{instType,channel,instId}...]} to
// subscribe, {"action","arg":{channel,instId},"data":[...]} on push.
type bitgetSubscribeFrame struct {
	Op   string                   `json:"op"`
	Args []bitgetSubscribeArg `json:"args"`
}

type bitgetSubscribeArg struct {
	InstType string `json:"instType"`
	Channel  string `json:"channel"`
	InstId   string `json:"instId"`
}

type bitgetWSEnvelope struct {
	Action string          `json:"action"`
	Arg    bitgetSubscribeArg `json:"arg"`
	Data   json.RawMessage `json:"data"`
}

type bitgetTickerPush struct {
	InstId   string `json:"instId"`
	LastPr   string `json:"lastPr"`
	BidPr    string `json:"bidPr"`
	AskPr    string `json:"askPr"`
}

// Feed is the public Market Data Feed (spec §4.2): a single long-lived
// WebSocket connection fanning ticker events out to subscribers. It owns
// reconnection and re-subscription; it never buffers events across a
// reconnect gap, matching the spec's "no cross-reconnect delivery
// guarantee" note.
type Feed struct {
	wsURL string

	mu        sync.Mutex
	conn      *websocket.Conn
	symbols   map[string]bool
	lastPong  time.Time

	events chan Event
}

// NewFeed builds a Feed that will dial wsURL once Run is called.
func NewFeed(wsURL string) *Feed {
	return &Feed{
		wsURL:   wsURL,
		symbols: make(map[string]bool),
		events:  make(chan Event, 4096),
	}
}

// Events returns the channel subscribers read ticker events from.
func (f *Feed) Events() <-chan Event {
	return f.events
}

// Subscribe marks symbol for subscription. If the feed is already connected,
// it subscribes immediately; otherwise the symbol is picked up on next
// connect/reconnect.
func (f *Feed) Subscribe(symbol string) error {
	f.mu.Lock()
	f.symbols[symbol] = true
	conn := f.conn
	f.mu.Unlock()

	if conn == nil {
		return nil
	}
	return f.sendSubscribe(conn, []string{symbol})
}

// Run drives the connect/read/reconnect loop until ctx is cancelled. It
// blocks; callers run it in its own goroutine.
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
			logger.Warnf("market feed disconnected, reconnecting in %s: %v", backoff, err)
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

// connectAndServe dials once and serves until the connection drops or ctx is
// cancelled. connected reports whether the dial succeeded, so Run can reset
// its backoff to the floor even when the connection drops shortly after.
func (f *Feed) connectAndServe(ctx context.Context) (connected bool, err error) {
	u, err := url.Parse(f.wsURL)
	if err != nil {
		return false, fmt.Errorf("parse ws url: %w", err)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return false, fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()

	f.mu.Lock()
	f.conn = conn
	f.lastPong = time.Now()
	symbols := make([]string, 0, len(f.symbols))
	for s := range f.symbols {
		symbols = append(symbols, s)
	}
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.conn = nil
		f.mu.Unlock()
	}()

	if len(symbols) > 0 {
		if err := f.sendSubscribe(conn, symbols); err != nil {
			return true, fmt.Errorf("resubscribe: %w", err)
		}
	}

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
	var env bitgetWSEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return
	}
	if env.Arg.Channel != "ticker" || len(env.Data) == 0 {
		return
	}

	var pushes []bitgetTickerPush
	if err := json.Unmarshal(env.Data, &pushes); err != nil {
		return
	}

	now := time.Now()
	for _, p := range pushes {
		bid, _ := strconv.ParseFloat(p.BidPr, 64)
		ask, _ := strconv.ParseFloat(p.AskPr, 64)
		last, _ := strconv.ParseFloat(p.LastPr, 64)

		evt := Event{
			Kind:      EventTicker,
			Symbol:    p.InstId,
			Timestamp: now,
			Ticker:    &Ticker{Symbol: p.InstId, Bid: bid, Ask: ask, Last: last},
		}
		select {
		case f.events <- evt:
		default:
			logger.Warnf("market feed event buffer full, dropping ticker for %s", p.InstId)
		}
	}
}

func (f *Feed) sendSubscribe(conn *websocket.Conn, symbols []string) error {
	args := make([]bitgetSubscribeArg, 0, len(symbols))
	for _, s := range symbols {
		args = append(args, bitgetSubscribeArg{InstType: "USDT-FUTURES", Channel: "ticker", InstId: s})
	}
	frame := bitgetSubscribeFrame{Op: "subscribe", Args: args}
	return conn.WriteJSON(frame)
}
