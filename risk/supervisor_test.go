package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"nofx/account"
	"nofx/gateway"
)

func testParams() Params {
	return Params{
		Enabled:             true,
		MarginThreshold:     0.5,
		TrailingStartProfit: 100,
		TrailingDrawdownPct: 0.2,
		TrailingMinDrawdown: 10,
	}
}

func accountWith(marginRatio float64, unrealized float64) *account.State {
	acc := account.New()
	wallet := 10000.0
	usedMargin := marginRatio * (wallet + unrealized)
	acc.ApplyBalanceUpdate(gateway.Balance{
		Currency: "USDT", WalletBalance: wallet, UnrealizedPnL: unrealized, UsedMargin: usedMargin,
	})
	return acc
}

func TestEvaluateDisabledIsNoop(t *testing.T) {
	s := New(Params{Enabled: false})
	acc := accountWith(0.9, 500)
	action := s.Evaluate(acc, time.Now())
	assert.False(t, action.Triggered)
}

func TestEvaluateStaysUnarmedBelowMarginThreshold(t *testing.T) {
	s := New(testParams())
	acc := accountWith(0.1, 500)
	action := s.Evaluate(acc, time.Now())
	assert.False(t, action.Triggered)
	assert.False(t, s.armed)
}

func TestEvaluateArmsOnceMarginAndProfitThresholdsMet(t *testing.T) {
	s := New(testParams())
	acc := accountWith(0.6, 150)
	action := s.Evaluate(acc, time.Now())
	assert.False(t, action.Triggered)
	assert.True(t, s.armed)
	assert.InDelta(t, 150, s.peakUnrealized, 1e-9)
}

func TestEvaluateTriggersOnDrawdownBelowPeak(t *testing.T) {
	s := New(testParams())
	now := time.Now()

	acc := accountWith(0.6, 200)
	s.Evaluate(acc, now)

	acc2 := accountWith(0.6, 200*0.7)
	action := s.Evaluate(acc2, now.Add(time.Minute))

	assert.True(t, action.Triggered)
	assert.InDelta(t, 200, action.PeakEquity, 1e-9)
	assert.False(t, s.armed)
}

func TestEvaluateDisarmsWhenMarginFallsBackBelowThreshold(t *testing.T) {
	s := New(testParams())
	now := time.Now()

	acc := accountWith(0.6, 200)
	s.Evaluate(acc, now)
	assert.True(t, s.armed)

	acc2 := accountWith(0.1, 200)
	action := s.Evaluate(acc2, now.Add(time.Minute))
	assert.False(t, action.Triggered)
	assert.False(t, s.armed)
}
