package trader

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nofx/account"
	"nofx/config"
	"nofx/gateway"
	"nofx/kernel"
)

type fakeGateway struct {
	orders      []gateway.PlaceOrderRequest
	cancels     []gateway.PositionSide
	nextOrderID int
}

func (g *fakeGateway) LoadInstruments(ctx context.Context) (map[string]gateway.Instrument, error) {
	return nil, nil
}
func (g *fakeGateway) SetHedgeMode(ctx context.Context, symbol string) error { return nil }
func (g *fakeGateway) PlaceOrder(ctx context.Context, req gateway.PlaceOrderRequest) (*gateway.Order, error) {
	g.nextOrderID++
	g.orders = append(g.orders, req)
	return &gateway.Order{
		ClientID:     fakeClientID(g.nextOrderID),
		Symbol:       req.Symbol,
		Side:         req.Side,
		PositionSide: req.PositionSide,
		Price:        req.Price,
		Qty:          req.Qty,
		Status:       gateway.OrderStatusNew,
	}, nil
}
func (g *fakeGateway) CancelOrder(ctx context.Context, symbol, exchangeID string) error { return nil }
func (g *fakeGateway) CancelOrdersForPositionSide(ctx context.Context, symbol string, side gateway.PositionSide) error {
	g.cancels = append(g.cancels, side)
	return nil
}
func (g *fakeGateway) FetchPositions(ctx context.Context) ([]gateway.Position, error) { return nil, nil }
func (g *fakeGateway) FetchOpenOrders(ctx context.Context, symbol string) ([]gateway.Order, error) {
	return nil, nil
}
func (g *fakeGateway) FetchBalance(ctx context.Context) ([]gateway.Balance, error) { return nil, nil }
func (g *fakeGateway) FetchFundingRate(ctx context.Context, symbol string) (gateway.FundingRate, error) {
	return gateway.FundingRate{}, nil
}
func (g *fakeGateway) PublicWSURL() string { return "wss://example.invalid/public" }
func (g *fakeGateway) PrivateLoginFrame(timestamp string) gateway.PrivateLoginFrame {
	return gateway.PrivateLoginFrame{}
}

func fakeClientID(n int) string {
	return "order-" + string(rune('a'+n))
}

func testSymbolConfig() config.SymbolConfig {
	return config.SymbolConfig{
		Symbol:              "BTCUSDT",
		Leverage:            10,
		TakeProfitSpacing:   0.004,
		GridSpacing:         0.006,
		InitialQuantity:     0.01,
		LimitMultiplier:     5.0,
		ThresholdMultiplier: 20.0,
	}
}

func testTrader(t *testing.T, gw *fakeGateway) (*SymbolTrader, *account.State) {
	t.Helper()
	acc := account.New()
	acc.ApplyBalanceUpdate(gateway.Balance{Currency: "USDT", WalletBalance: 1_000_000, AvailableBalance: 1_000_000})

	bandit := kernel.NewBanditOptimizer(kernel.BanditParams{
		Enabled: true, WindowSize: 20, ExplorationFactor: 1.0, MinPullsPerArm: 1,
		UpdateInterval: 1, ContextualEnabled: false,
		VolatilityLookback: 20, TrendLookback: 20, HighVolatilityThreshold: 0.05, TrendThreshold: 0.01,
		ThompsonPriorAlpha: 1, ThompsonPriorBeta: 1,
	})
	indicator := kernel.NewIndicatorEngine(kernel.LeadingIndicatorParams{Enabled: false})
	dgt := kernel.NewDGTTracker(kernel.DGTParams{Enabled: false})
	spacer := kernel.NewDynamicGridSpacer(time.Minute)

	tr := NewSymbolTrader(testSymbolConfig(), gw, acc, bandit, indicator, dgt, spacer, kernel.MaxEnhancementParams{})
	return tr, acc
}

func TestOnTickPlacesInitialQuotesOnBothSides(t *testing.T) {
	gw := &fakeGateway{}
	tr, _ := testTrader(t, gw)

	err := tr.OnTick(context.Background(), 100, 99.9, 100.1, time.Now())
	require.NoError(t, err)

	assert.NotEmpty(t, tr.long.tp.clientID)
	assert.NotEmpty(t, tr.long.entry.clientID)
	assert.NotEmpty(t, tr.short.tp.clientID)
	assert.NotEmpty(t, tr.short.entry.clientID)
	assert.Len(t, gw.cancels, 2)
}

func TestOnTickDebouncesSecondQuoteAtSamePrice(t *testing.T) {
	gw := &fakeGateway{}
	tr, _ := testTrader(t, gw)
	now := time.Now()

	require.NoError(t, tr.OnTick(context.Background(), 100, 99.9, 100.1, now))
	ordersAfterFirst := len(gw.orders)

	require.NoError(t, tr.OnTick(context.Background(), 100, 99.9, 100.1, now.Add(time.Second)))
	assert.Equal(t, ordersAfterFirst, len(gw.orders))
}

func TestOnTickRequotesAfterPriceDriftAndCooldown(t *testing.T) {
	gw := &fakeGateway{}
	tr, _ := testTrader(t, gw)
	now := time.Now()

	require.NoError(t, tr.OnTick(context.Background(), 100, 99.9, 100.1, now))
	ordersAfterFirst := len(gw.orders)

	movedPrice := 100 * (1 + tr.cfg.GridSpacing)
	later := now.Add(15 * time.Second)
	require.NoError(t, tr.OnTick(context.Background(), movedPrice, movedPrice-0.1, movedPrice+0.1, later))

	assert.Greater(t, len(gw.orders), ordersAfterFirst)
}

func TestOnOrderUpdateTPFillClearsSlotAndFeedsBandit(t *testing.T) {
	gw := &fakeGateway{}
	tr, _ := testTrader(t, gw)
	now := time.Now()
	require.NoError(t, tr.OnTick(context.Background(), 100, 99.9, 100.1, now))

	tpClientID := tr.long.tp.clientID
	require.NotEmpty(t, tpClientID)

	err := tr.OnOrderUpdate(context.Background(), tpClientID, string(gateway.OrderStatusFilled), tr.long.tp.price, tr.long.tp.price, 5.0, now.Add(time.Second))
	require.NoError(t, err)
	assert.Empty(t, tr.long.tp.clientID)
}

func TestOnOrderUpdateEntryFillPushesLot(t *testing.T) {
	gw := &fakeGateway{}
	tr, _ := testTrader(t, gw)
	now := time.Now()
	require.NoError(t, tr.OnTick(context.Background(), 100, 99.9, 100.1, now))

	entryClientID := tr.long.entry.clientID
	require.NotEmpty(t, entryClientID)

	entryPrice := tr.long.entry.price
	err := tr.OnOrderUpdate(context.Background(), entryClientID, string(gateway.OrderStatusFilled), 0.01, entryPrice, 0, now.Add(time.Second))
	require.NoError(t, err)
	assert.InDelta(t, 0.01, tr.long.lots.TotalQty(), 1e-9)
}

func TestCheckAutoReduceFiresWhenBothSidesExceedThreshold(t *testing.T) {
	gw := &fakeGateway{}
	tr, acc := testTrader(t, gw)

	threshold := tr.cfg.PositionThreshold()
	acc.Reconcile(
		[]gateway.Position{
			{Symbol: "BTCUSDT", PositionSide: gateway.PositionLong, Qty: threshold * 0.9},
			{Symbol: "BTCUSDT", PositionSide: gateway.PositionShort, Qty: threshold * 0.9},
		},
		nil,
		[]gateway.Balance{{Currency: "USDT", WalletBalance: 1_000_000, AvailableBalance: 1_000_000}},
		time.Now(),
	)

	err := tr.checkAutoReduce(context.Background(), time.Now())
	require.NoError(t, err)

	var sawLongReduce, sawShortReduce bool
	for _, o := range gw.orders {
		if o.PositionSide == gateway.PositionLong && o.ReduceOnly {
			sawLongReduce = true
		}
		if o.PositionSide == gateway.PositionShort && o.ReduceOnly {
			sawShortReduce = true
		}
	}
	assert.True(t, sawLongReduce)
	assert.True(t, sawShortReduce)
}

func TestCheckAutoReduceNoopWhenOnlyOneSideExceedsThreshold(t *testing.T) {
	gw := &fakeGateway{}
	tr, acc := testTrader(t, gw)

	threshold := tr.cfg.PositionThreshold()
	acc.Reconcile(
		[]gateway.Position{
			{Symbol: "BTCUSDT", PositionSide: gateway.PositionLong, Qty: threshold * 0.9},
			{Symbol: "BTCUSDT", PositionSide: gateway.PositionShort, Qty: 0},
		},
		nil,
		[]gateway.Balance{{Currency: "USDT", WalletBalance: 1_000_000, AvailableBalance: 1_000_000}},
		time.Now(),
	)

	err := tr.checkAutoReduce(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Empty(t, gw.orders)
}
