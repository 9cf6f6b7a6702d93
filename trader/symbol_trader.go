package trader

import (
	"context"
	"fmt"
	"sync"
	"time"

	"nofx/account"
	"nofx/config"
	"nofx/gateway"
	"nofx/kernel"
	"nofx/logger"
)

const (
	requoteCooldown   = 10 * time.Second
	autoReduceCooldown = 60 * time.Second
	autoReduceThresholdPct = 0.8
	autoReduceQtyPct      = 0.1
)

// orderSlot tracks one resting order on one side (tp or entry) of one
// position leg.
type orderSlot struct {
	clientID string
	price    float64
}

// sideState is the runtime state the Per-Symbol Trader keeps for one
// hedge-mode leg (long or short), mirroring the mutex-guarded field layout
// of the teacher's GridState (spec §4.8 grounding).
type sideState struct {
	lots LotQueue

	entry orderSlot
	tp    orderSlot

	lastQuotePrice float64
	lastQuoteAt    time.Time

	deadMode bool

	inFlight bool
}

// SymbolTrader owns the quoting loop for one enabled symbol (spec §4.8). All
// access to its mutable state goes through its methods, which hold mu while
// reading or writing it and release it around gateway calls, matching
// trader/auto_trader_grid.go's GridState discipline.
type SymbolTrader struct {
	mu sync.Mutex

	cfg config.SymbolConfig
	gw  gateway.Gateway
	acc *account.State

	bandit    *kernel.BanditOptimizer
	indicator *kernel.IndicatorEngine
	dgt       *kernel.DGTTracker
	dynSpacer *kernel.DynamicGridSpacer
	maxParams kernel.MaxEnhancementParams

	long  sideState
	short sideState

	latestPrice float64
	fundingRate float64

	dgtInitialized bool

	lastAutoReduce time.Time
}

// dgtNumGrids is the boundary tracker's notion of grid count, used only to
// size the observed upper/lower bounds (spec §2.3 supplement, DGT is
// observer-only — see kernel/dgt.go).
const dgtNumGrids = 20

// NewSymbolTrader builds a trader for one symbol. The bandit, indicator,
// dgt, and dynSpacer collaborators are shared singletons keyed internally by
// symbol; ownership of each symbol's slice of their state is the trader's,
// not this struct's.
func NewSymbolTrader(
	cfg config.SymbolConfig,
	gw gateway.Gateway,
	acc *account.State,
	bandit *kernel.BanditOptimizer,
	indicator *kernel.IndicatorEngine,
	dgt *kernel.DGTTracker,
	dynSpacer *kernel.DynamicGridSpacer,
	maxParams kernel.MaxEnhancementParams,
) *SymbolTrader {
	return &SymbolTrader{
		cfg: cfg, gw: gw, acc: acc,
		bandit: bandit, indicator: indicator, dgt: dgt, dynSpacer: dynSpacer,
		maxParams: maxParams,
	}
}

// UpdateFundingRate refreshes the symbol's funding-rate snapshot, polled
// periodically from the gateway (spec §2.3 supplement: funding-rate
// position bias).
func (t *SymbolTrader) UpdateFundingRate(rate float64) {
	t.mu.Lock()
	t.fundingRate = rate
	t.mu.Unlock()
}

// OnTick is driven by every market-data tick for this symbol: it refreshes
// the cached price and evaluates both sides for a re-quote (spec §4.8
// steps 1-5).
func (t *SymbolTrader) OnTick(ctx context.Context, price, bid, ask float64, now time.Time) error {
	t.mu.Lock()
	t.latestPrice = price
	t.mu.Unlock()

	t.bandit.UpdatePrice(price)
	t.indicator.UpdateSpread(t.cfg.Symbol, bid, ask, now)
	t.dynSpacer.UpdatePrice(t.cfg.Symbol, price, now)

	t.mu.Lock()
	initialized := t.dgtInitialized
	t.dgtInitialized = true
	t.mu.Unlock()
	if !initialized {
		t.dgt.InitializeBoundary(t.cfg.Symbol, price, t.cfg.GridSpacing, dgtNumGrids, now)
	} else if breached, evt := t.dgt.Observe(t.cfg.Symbol, price, 0, now); breached {
		logger.Infof("[trader] %s grid boundary breach: %s (new center %.6f, reinvest %.4f)", t.cfg.Symbol, evt.Direction, evt.NewCenter, evt.ReinvestAmount)
	}

	if pause, reason := t.indicator.ShouldPauseTrading(t.cfg.Symbol, now); pause {
		logger.Warnf("[trader] %s pausing trading: %s", t.cfg.Symbol, reason)
		return nil
	}

	if err := t.evaluateSide(ctx, kernel.SideLong, now); err != nil {
		return fmt.Errorf("evaluate long side: %w", err)
	}
	if err := t.evaluateSide(ctx, kernel.SideShort, now); err != nil {
		return fmt.Errorf("evaluate short side: %w", err)
	}

	return t.checkAutoReduce(ctx, now)
}

func (t *SymbolTrader) positionSideFor(side kernel.Side) gateway.PositionSide {
	if side == kernel.SideLong {
		return gateway.PositionLong
	}
	return gateway.PositionShort
}

func (t *SymbolTrader) stateFor(side kernel.Side) *sideState {
	if side == kernel.SideLong {
		return &t.long
	}
	return &t.short
}

func (t *SymbolTrader) evaluateSide(ctx context.Context, side kernel.Side, now time.Time) error {
	t.mu.Lock()
	price := t.latestPrice
	s := t.stateFor(side)
	if s.inFlight {
		t.mu.Unlock()
		return nil
	}
	if !t.shouldRequote(s, price, now) {
		t.mu.Unlock()
		return nil
	}
	s.inFlight = true
	t.mu.Unlock()

	defer func() {
		t.mu.Lock()
		s.inFlight = false
		t.mu.Unlock()
	}()

	positions := t.acc.PositionsFor(t.cfg.Symbol)
	var myPos, oppPos float64
	if side == kernel.SideLong {
		myPos, oppPos = positions.Long.Qty, positions.Short.Qty
	} else {
		myPos, oppPos = positions.Short.Qty, positions.Long.Qty
	}

	arm := t.bandit.CurrentParams()
	tpSpacing, gridSpacing := t.dynSpacer.GetDynamicSpacing(t.cfg.Symbol, arm.TakeProfitSpacing, arm.GridSpacing, t.maxParams, now)
	gridSpacing, _ = t.indicator.GetSpacingAdjustment(t.cfg.Symbol, gridSpacing, now)

	baseQty := t.cfg.InitialQuantity
	baseQty = kernel.GLFTAdjustQuantity(baseQty, side, positions.Long.Qty, positions.Short.Qty, t.maxParams)

	t.mu.Lock()
	fundingRate := t.fundingRate
	t.mu.Unlock()
	longBias, shortBias := kernel.FundingRateBias(fundingRate, t.maxParams)
	if side == kernel.SideLong {
		baseQty *= longBias
	} else {
		baseQty *= shortBias
	}

	decision := kernel.GetGridDecision(price, myPos, oppPos, t.cfg.PositionThreshold(), t.cfg.PositionLimit(), baseQty, tpSpacing, gridSpacing, side)

	return t.applyDecision(ctx, side, s, decision, price, now)
}

// shouldRequote implements the debounce: always re-quote if no open order
// exists on this side; otherwise only when price has drifted at least half
// a grid spacing from the last quote reference and the per-side cooldown
// has elapsed (spec §4.8 step 3).
func (t *SymbolTrader) shouldRequote(s *sideState, price float64, now time.Time) bool {
	if s.entry.clientID == "" && s.tp.clientID == "" {
		return true
	}
	if now.Sub(s.lastQuoteAt) < requoteCooldown {
		return false
	}
	if s.lastQuotePrice <= 0 {
		return true
	}
	deviation := absDiff(price-s.lastQuotePrice) / s.lastQuotePrice
	return deviation >= 0.5*t.cfg.GridSpacing
}

// applyDecision places the new entry/tp orders for one side. It runs
// outside t.mu while the (blocking) gateway calls are in flight, but every
// read or write of s's fields is done under t.mu, matching OnOrderUpdate's
// locking on the same sideState.
func (t *SymbolTrader) applyDecision(ctx context.Context, side kernel.Side, s *sideState, d kernel.GridDecision, price float64, now time.Time) error {
	posSide := t.positionSideFor(side)

	if err := t.gw.CancelOrdersForPositionSide(ctx, t.cfg.Symbol, posSide); err != nil {
		return fmt.Errorf("cancel existing orders: %w", err)
	}
	t.mu.Lock()
	s.entry = orderSlot{}
	s.tp = orderSlot{}
	t.mu.Unlock()

	tpSide := gateway.SideSell
	entrySide := gateway.SideBuy
	if side == kernel.SideShort {
		tpSide = gateway.SideBuy
		entrySide = gateway.SideSell
	}

	tpOrder, err := t.gw.PlaceOrder(ctx, gateway.PlaceOrderRequest{
		Symbol: t.cfg.Symbol, Side: tpSide, PositionSide: posSide,
		Type: gateway.OrderTypeLimit, Price: d.TPPrice, Qty: d.TPQty, ReduceOnly: true,
	})
	if err != nil {
		return fmt.Errorf("place tp order: %w", err)
	}
	t.mu.Lock()
	s.tp = orderSlot{clientID: tpOrder.ClientID, price: d.TPPrice}
	t.mu.Unlock()

	if d.HasEntry {
		available := t.acc.AggregateEquity() - t.acc.AggregateUsedMargin()
		reserved := d.EntryPrice * d.EntryQty / float64(t.cfg.Leverage)
		if reserved <= available {
			entryOrder, err := t.gw.PlaceOrder(ctx, gateway.PlaceOrderRequest{
				Symbol: t.cfg.Symbol, Side: entrySide, PositionSide: posSide,
				Type: gateway.OrderTypeLimit, Price: d.EntryPrice, Qty: d.EntryQty,
			})
			if err != nil {
				return fmt.Errorf("place entry order: %w", err)
			}
			t.mu.Lock()
			s.entry = orderSlot{clientID: entryOrder.ClientID, price: d.EntryPrice}
			t.mu.Unlock()
		} else {
			logger.Warnf("[trader] %s %s entry skipped: reserved margin %.4f exceeds available %.4f", t.cfg.Symbol, side, reserved, available)
		}
	}

	t.mu.Lock()
	s.lastQuotePrice = price
	s.lastQuoteAt = now
	s.deadMode = d.DeadMode
	t.mu.Unlock()
	return nil
}

// OnOrderUpdate folds a fill/cancel/reject event for this symbol into the
// relevant side's lot queue and order slots, and triggers an immediate
// re-quote on any state-changing event (spec §4.8).
func (t *SymbolTrader) OnOrderUpdate(ctx context.Context, clientID, status string, filledQty, avgPrice, realizedPnL float64, now time.Time) error {
	t.mu.Lock()
	side, s, role := t.findOrderSlot(clientID)
	if s == nil {
		t.mu.Unlock()
		return nil
	}

	switch status {
	case string(gateway.OrderStatusFilled), string(gateway.OrderStatusPartial):
		if role == "tp" {
			consumed, _ := s.lots.PopFilled(filledQty)
			_ = consumed
			t.bandit.RecordTrade(realizedPnL, t.bandit.CurrentContext())
			if status == string(gateway.OrderStatusFilled) {
				s.tp = orderSlot{}
			}
		} else {
			s.lots.Push(filledQty, avgPrice)
			s.lastQuotePrice = avgPrice
			if status == string(gateway.OrderStatusFilled) {
				s.entry = orderSlot{}
			}
		}
	case string(gateway.OrderStatusCancelled), string(gateway.OrderStatusRejected):
		if role == "tp" {
			s.tp = orderSlot{}
		} else {
			s.entry = orderSlot{}
		}
	}
	t.mu.Unlock()

	return t.evaluateSide(ctx, side, now)
}

func (t *SymbolTrader) findOrderSlot(clientID string) (kernel.Side, *sideState, string) {
	if t.long.entry.clientID == clientID {
		return kernel.SideLong, &t.long, "entry"
	}
	if t.long.tp.clientID == clientID {
		return kernel.SideLong, &t.long, "tp"
	}
	if t.short.entry.clientID == clientID {
		return kernel.SideShort, &t.short, "entry"
	}
	if t.short.tp.clientID == clientID {
		return kernel.SideShort, &t.short, "tp"
	}
	return "", nil, ""
}

// checkAutoReduce breaks a long/short deadlock when both sides have grown
// past 0.8x the position threshold, by market-reducing each side by 0.1x the
// threshold, gated by a per-symbol cooldown (spec §4.8, grounded on
// original_source's _check_and_reduce_positions).
func (t *SymbolTrader) checkAutoReduce(ctx context.Context, now time.Time) error {
	t.mu.Lock()
	if now.Sub(t.lastAutoReduce) < autoReduceCooldown {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	positions := t.acc.PositionsFor(t.cfg.Symbol)
	localThreshold := t.cfg.PositionThreshold() * autoReduceThresholdPct
	reduceQty := t.cfg.PositionThreshold() * autoReduceQtyPct

	if positions.Long.Qty < localThreshold || positions.Short.Qty < localThreshold {
		return nil
	}

	logger.Warnf("[trader] %s both sides exceed %.4f, auto-reducing", t.cfg.Symbol, localThreshold)

	if positions.Long.Qty > 0 {
		if _, err := t.gw.PlaceOrder(ctx, gateway.PlaceOrderRequest{
			Symbol: t.cfg.Symbol, Side: gateway.SideSell, PositionSide: gateway.PositionLong,
			Type: gateway.OrderTypeMarket, Qty: reduceQty, ReduceOnly: true,
		}); err != nil {
			return fmt.Errorf("auto-reduce long: %w", err)
		}
	}
	if positions.Short.Qty > 0 {
		if _, err := t.gw.PlaceOrder(ctx, gateway.PlaceOrderRequest{
			Symbol: t.cfg.Symbol, Side: gateway.SideBuy, PositionSide: gateway.PositionShort,
			Type: gateway.OrderTypeMarket, Qty: reduceQty, ReduceOnly: true,
		}); err != nil {
			return fmt.Errorf("auto-reduce short: %w", err)
		}
	}

	t.mu.Lock()
	t.lastAutoReduce = now
	t.mu.Unlock()
	return nil
}

func absDiff(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
