// Package coordinator owns the process lifecycle and the single-threaded
// cooperative event loop described in spec §4.11 and §5: it multiplexes the
// two WebSocket feeds, the REST reconcile timer, the supervisor timer, and
// an external command channel, and is the sole writer of shared state
// outside each SymbolTrader's own mutex.
package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"nofx/account"
	"nofx/config"
	"nofx/gateway"
	"nofx/hook"
	"nofx/kernel"
	"nofx/logger"
	"nofx/market"
	"nofx/private"
	"nofx/risk"
	"nofx/rotation"
	"nofx/trader"
)

// CommandKind tags the Coordinator's external command channel (spec §5:
// "a single buffered chan Command read by the Coordinator's main select
// loop").
type CommandKind string

const (
	CommandStop   CommandKind = "stop"
	CommandRotate CommandKind = "rotate"
)

// Command is one external instruction delivered to the Coordinator's main
// loop.
type Command struct {
	Kind          CommandKind
	RotateSignal  *rotation.Signal
}

const (
	reconcileInterval = 30 * time.Second
	supervisorInterval = 10 * time.Second
)

// Coordinator wires the gateway, both event feeds, the account mirror, the
// per-symbol traders, the risk supervisor, and the rotation controller into
// one cooperative event loop (spec §4.11).
type Coordinator struct {
	cfg *config.Config
	gw  gateway.Gateway

	acc *account.State

	market  *market.Feed
	private *private.Feed

	bandit    *kernel.BanditOptimizer
	indicator *kernel.IndicatorEngine
	dgt       *kernel.DGTTracker
	dynSpacer *kernel.DynamicGridSpacer
	maxParams kernel.MaxEnhancementParams

	riskSupervisor *risk.Supervisor
	rotationCtrl   *rotation.Controller
	scorer         rotation.Scorer

	mu      sync.Mutex
	traders map[string]*trader.SymbolTrader

	commands chan Command
}

// New builds a Coordinator from its already-constructed collaborators (spec
// §9: explicit dependency injection, no package-level singletons beyond the
// logger).
func New(
	cfg *config.Config,
	gw gateway.Gateway,
	acc *account.State,
	marketFeed *market.Feed,
	privateFeed *private.Feed,
	bandit *kernel.BanditOptimizer,
	indicator *kernel.IndicatorEngine,
	dgt *kernel.DGTTracker,
	dynSpacer *kernel.DynamicGridSpacer,
	maxParams kernel.MaxEnhancementParams,
	riskSupervisor *risk.Supervisor,
	rotationCtrl *rotation.Controller,
	scorer rotation.Scorer,
) *Coordinator {
	return &Coordinator{
		cfg: cfg, gw: gw, acc: acc,
		market: marketFeed, private: privateFeed,
		bandit: bandit, indicator: indicator, dgt: dgt, dynSpacer: dynSpacer, maxParams: maxParams,
		riskSupervisor: riskSupervisor, rotationCtrl: rotationCtrl, scorer: scorer,
		traders:  make(map[string]*trader.SymbolTrader),
		commands: make(chan Command, 16),
	}
}

// Submit enqueues an external command for the main loop to process.
func (c *Coordinator) Submit(cmd Command) {
	c.commands <- cmd
}

// Start runs the spec §4.11 startup sequence: load instruments, set hedge
// mode and subscribe the market feed for every enabled symbol, reconcile
// once, and spawn a trader per enabled symbol.
func (c *Coordinator) Start(ctx context.Context) error {
	if _, err := c.gw.LoadInstruments(ctx); err != nil {
		return fmt.Errorf("load instruments: %w", err)
	}

	for symbol, sc := range c.cfg.Symbols {
		if !sc.Enabled {
			continue
		}
		if err := c.gw.SetHedgeMode(ctx, symbol); err != nil {
			return fmt.Errorf("set hedge mode for %s: %w", symbol, err)
		}
		c.market.Subscribe(symbol)
	}

	if err := c.reconcile(ctx); err != nil {
		return fmt.Errorf("initial reconcile: %w", err)
	}

	c.mu.Lock()
	for symbol, sc := range c.cfg.Symbols {
		if !sc.Enabled {
			continue
		}
		c.traders[symbol] = trader.NewSymbolTrader(sc, c.gw, c.acc, c.bandit, c.indicator, c.dgt, c.dynSpacer, c.maxParams)
	}
	c.mu.Unlock()

	logger.Infof("[coordinator] started with %d symbols", len(c.traders))
	return nil
}

func (c *Coordinator) reconcile(ctx context.Context) error {
	positions, err := c.gw.FetchPositions(ctx)
	if err != nil {
		return fmt.Errorf("fetch positions: %w", err)
	}
	balances, err := c.gw.FetchBalance(ctx)
	if err != nil {
		return fmt.Errorf("fetch balance: %w", err)
	}

	var orders []gateway.Order
	for symbol, sc := range c.cfg.Symbols {
		if !sc.Enabled {
			continue
		}
		symbolOrders, err := c.gw.FetchOpenOrders(ctx, symbol)
		if err != nil {
			return fmt.Errorf("fetch open orders for %s: %w", symbol, err)
		}
		orders = append(orders, symbolOrders...)
	}

	c.acc.Reconcile(positions, orders, balances, time.Now())
	return nil
}

// Run is the Coordinator's cooperative event loop (spec §5): it multiplexes
// both WebSocket feeds, the reconcile timer, the supervisor timer, and the
// command channel until ctx is cancelled, at which point it issues a
// best-effort cancel-all before returning.
func (c *Coordinator) Run(ctx context.Context) error {
	interval := reconcileInterval
	if c.cfg.SyncIntervalSec > 0 {
		interval = time.Duration(c.cfg.SyncIntervalSec * float64(time.Second))
	}
	reconcileTicker := time.NewTicker(interval)
	defer reconcileTicker.Stop()
	supervisorTicker := time.NewTicker(supervisorInterval)
	defer supervisorTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.shutdown(context.Background())
			return ctx.Err()

		case cmd := <-c.commands:
			c.handleCommand(ctx, cmd)

		case evt, ok := <-c.market.Events():
			if !ok {
				continue
			}
			c.handleMarketEvent(ctx, evt)

		case evt, ok := <-c.private.Events():
			if !ok {
				continue
			}
			c.handlePrivateEvent(ctx, evt)

		case <-reconcileTicker.C:
			if err := c.reconcile(ctx); err != nil {
				logger.Warnf("[coordinator] reconcile failed: %v", err)
			}

		case <-supervisorTicker.C:
			c.checkRiskSupervisor(ctx)
		}
	}
}

func (c *Coordinator) checkRiskSupervisor(ctx context.Context) {
	action := c.riskSupervisor.Evaluate(c.acc, time.Now())
	if action.Triggered {
		c.closeEverything(ctx)
	}
}

func (c *Coordinator) handleMarketEvent(ctx context.Context, evt market.Event) {
	if evt.Kind != market.EventTicker || evt.Ticker == nil {
		return
	}
	tr := c.traderFor(evt.Ticker.Symbol)
	if tr == nil {
		return
	}
	mid := (evt.Ticker.Bid + evt.Ticker.Ask) / 2
	if mid <= 0 {
		mid = evt.Ticker.Last
	}
	if err := tr.OnTick(ctx, mid, evt.Ticker.Bid, evt.Ticker.Ask, evt.Timestamp); err != nil {
		logger.Warnf("[coordinator] tick handling failed for %s: %v", evt.Ticker.Symbol, err)
	}
}

func (c *Coordinator) handlePrivateEvent(ctx context.Context, evt private.Event) {
	switch evt.Kind {
	case private.EventOrderUpdate:
		if evt.Order == nil {
			return
		}
		tr := c.traderFor(evt.Order.Symbol)
		if tr == nil {
			return
		}
		if err := tr.OnOrderUpdate(ctx, evt.Order.ClientID, evt.Order.Status, evt.Order.FilledQty, evt.Order.AvgPrice, evt.Order.RealizedPnL, evt.Timestamp); err != nil {
			logger.Warnf("[coordinator] order update handling failed: %v", err)
		}
	case private.EventPositionUpdate:
		if evt.Position == nil {
			return
		}
		c.acc.ApplyPositionUpdate(evt.Position.Symbol, gateway.PositionSide(evt.Position.PositionSide), gateway.Position{
			Symbol: evt.Position.Symbol, PositionSide: gateway.PositionSide(evt.Position.PositionSide),
			Qty: evt.Position.Qty, EntryPrice: evt.Position.EntryPrice, Margin: evt.Position.Margin,
			UnrealizedPnL: evt.Position.UnrealizedPnL, Timestamp: evt.Timestamp,
		})
	case private.EventAccountUpdate:
		if evt.Account == nil {
			return
		}
		c.acc.ApplyBalanceUpdate(gateway.Balance{
			Currency: evt.Account.Currency, WalletBalance: evt.Account.WalletBalance,
			AvailableBalance: evt.Account.AvailableBalance, UnrealizedPnL: evt.Account.UnrealizedPnL,
		})
	}
}

func (c *Coordinator) handleCommand(ctx context.Context, cmd Command) {
	switch cmd.Kind {
	case CommandStop:
		c.shutdown(ctx)
	case CommandRotate:
		if cmd.RotateSignal == nil {
			return
		}
		c.executeRotation(ctx, cmd.RotateSignal)
	}
}

func (c *Coordinator) executeRotation(ctx context.Context, signal *rotation.Signal) {
	exec := rotation.Executor{
		DisableTrader: func(ctx context.Context, symbol string) error {
			c.mu.Lock()
			delete(c.traders, symbol)
			c.mu.Unlock()
			return nil
		},
		CancelOpens: func(ctx context.Context, symbol string) error {
			if err := c.gw.CancelOrdersForPositionSide(ctx, symbol, gateway.PositionLong); err != nil {
				return err
			}
			return c.gw.CancelOrdersForPositionSide(ctx, symbol, gateway.PositionShort)
		},
		FlattenPositions: func(ctx context.Context, symbol string) error {
			return c.flattenSymbol(ctx, symbol)
		},
		EnableTrader: func(ctx context.Context, symbol string) error {
			sc, ok := c.cfg.Symbols[symbol]
			if !ok {
				return fmt.Errorf("no configuration for %s", symbol)
			}
			if err := c.gw.SetHedgeMode(ctx, symbol); err != nil {
				return err
			}
			c.market.Subscribe(symbol)
			c.mu.Lock()
			c.traders[symbol] = trader.NewSymbolTrader(sc, c.gw, c.acc, c.bandit, c.indicator, c.dgt, c.dynSpacer, c.maxParams)
			c.mu.Unlock()
			return nil
		},
	}

	if err := c.rotationCtrl.Execute(ctx, signal, exec, time.Now()); err != nil {
		logger.Warnf("[coordinator] rotation %s->%s failed: %v", signal.FromSymbol, signal.ToSymbol, err)
		return
	}

	if result := hook.HookExec[hook.AlertResult](hook.ROTATION_SWAP, signal.FromSymbol, signal.ToSymbol, signal.FromScore, signal.ToScore); result != nil {
		result.GetResult()
	}
}

func (c *Coordinator) flattenSymbol(ctx context.Context, symbol string) error {
	positions := c.acc.PositionsFor(symbol)
	if positions.Long.Qty > 0 {
		if _, err := c.gw.PlaceOrder(ctx, gateway.PlaceOrderRequest{
			Symbol: symbol, Side: gateway.SideSell, PositionSide: gateway.PositionLong,
			Type: gateway.OrderTypeMarket, Qty: positions.Long.Qty, ReduceOnly: true,
		}); err != nil {
			return err
		}
	}
	if positions.Short.Qty > 0 {
		if _, err := c.gw.PlaceOrder(ctx, gateway.PlaceOrderRequest{
			Symbol: symbol, Side: gateway.SideBuy, PositionSide: gateway.PositionShort,
			Type: gateway.OrderTypeMarket, Qty: positions.Short.Qty, ReduceOnly: true,
		}); err != nil {
			return err
		}
	}
	return nil
}

// closeEverything is the Risk Supervisor's triggered action: cancel every
// resting order and market-close every position, across all symbols (spec
// §4.9).
func (c *Coordinator) closeEverything(ctx context.Context) {
	logger.Warnf("[coordinator] risk supervisor triggered: closing all positions")
	c.mu.Lock()
	symbols := make([]string, 0, len(c.traders))
	for symbol := range c.traders {
		symbols = append(symbols, symbol)
	}
	c.mu.Unlock()

	for _, symbol := range symbols {
		_ = c.gw.CancelOrdersForPositionSide(ctx, symbol, gateway.PositionLong)
		_ = c.gw.CancelOrdersForPositionSide(ctx, symbol, gateway.PositionShort)
		if err := c.flattenSymbol(ctx, symbol); err != nil {
			logger.Warnf("[coordinator] failed to flatten %s: %v", symbol, err)
		}
	}
}

// shutdown issues the best-effort cancel-all the Coordinator performs on
// stop() (spec §4.11, §5).
func (c *Coordinator) shutdown(ctx context.Context) {
	logger.Infof("[coordinator] shutting down")
	c.mu.Lock()
	symbols := make([]string, 0, len(c.traders))
	for symbol := range c.traders {
		symbols = append(symbols, symbol)
	}
	c.mu.Unlock()

	for _, symbol := range symbols {
		_ = c.gw.CancelOrdersForPositionSide(ctx, symbol, gateway.PositionLong)
		_ = c.gw.CancelOrdersForPositionSide(ctx, symbol, gateway.PositionShort)
	}
}

func (c *Coordinator) traderFor(symbol string) *trader.SymbolTrader {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.traders[symbol]
}
