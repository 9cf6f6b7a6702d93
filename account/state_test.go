package account

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"nofx/gateway"
)

func TestApplyPositionUpdateTracksBothLegs(t *testing.T) {
	s := New()
	s.ApplyPositionUpdate("BTCUSDT", gateway.PositionLong, gateway.Position{Symbol: "BTCUSDT", Qty: 1})
	s.ApplyPositionUpdate("BTCUSDT", gateway.PositionShort, gateway.Position{Symbol: "BTCUSDT", Qty: 2})

	sp := s.PositionsFor("BTCUSDT")
	assert.InDelta(t, 1, sp.Long.Qty, 1e-9)
	assert.InDelta(t, 2, sp.Short.Qty, 1e-9)
}

func TestReconcileOverwritesEventDrivenState(t *testing.T) {
	s := New()
	s.ApplyBalanceUpdate(gateway.Balance{Currency: "USDT", WalletBalance: 100})
	assert.InDelta(t, 100, s.Balance("USDT").WalletBalance, 1e-9)

	s.Reconcile(nil, nil, []gateway.Balance{{Currency: "USDT", WalletBalance: 50}}, time.Unix(0, 0))
	assert.InDelta(t, 50, s.Balance("USDT").WalletBalance, 1e-9, "reconcile must win over the stale event-driven value")
}

func TestNewSeedsDualQuoteCurrencies(t *testing.T) {
	s := New()
	assert.Equal(t, "USDT", s.Balance("USDT").Currency)
	assert.Equal(t, "USDC", s.Balance("USDC").Currency)
}

func TestAggregateMarginRatioIsZeroWhenEquityNonPositive(t *testing.T) {
	s := New()
	s.ApplyBalanceUpdate(gateway.Balance{Currency: "USDT", WalletBalance: 0, UsedMargin: 10})
	assert.Equal(t, 0.0, s.AggregateMarginRatio())
}

func TestAggregateEquitySumsAcrossCurrencies(t *testing.T) {
	s := New()
	s.ApplyBalanceUpdate(gateway.Balance{Currency: "USDT", WalletBalance: 100, UnrealizedPnL: 5})
	s.ApplyBalanceUpdate(gateway.Balance{Currency: "USDC", WalletBalance: 50, UnrealizedPnL: -2})
	assert.InDelta(t, 153, s.AggregateEquity(), 1e-9)
}

func TestOrderByClientIDUnknownReturnsFalse(t *testing.T) {
	s := New()
	_, ok := s.OrderByClientID("missing")
	assert.False(t, ok)
}
