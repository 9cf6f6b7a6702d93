package kernel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func testIndicatorParams() LeadingIndicatorParams {
	return LeadingIndicatorParams{
		Enabled: true,
		OFI:     IndicatorParams{Enabled: true, Lookback: 3, Threshold: 0.6},
		Volume:  IndicatorParams{Enabled: true, Lookback: 3, Threshold: 2.0},
		Spread:  IndicatorParams{Enabled: true, Lookback: 3, Threshold: 1.5},
		MinSignalsForAction: 2,
	}
}

func TestCalculateOFIBuyPressure(t *testing.T) {
	e := NewIndicatorEngine(testIndicatorParams())
	now := time.Now()
	e.RecordTrade("BTCUSDT", 100, 10, true, now)
	e.RecordTrade("BTCUSDT", 100, 10, true, now)
	e.RecordTrade("BTCUSDT", 100, 1, false, now)

	signals, values := e.GetSignals("BTCUSDT", now)
	assert.Contains(t, signals, SignalOFIBuyPressure)
	assert.Greater(t, values.OFI, 0.6)
}

func TestGetSpacingAdjustmentGatedByMinSignals(t *testing.T) {
	p := testIndicatorParams()
	e := NewIndicatorEngine(p)
	now := time.Now()

	e.RecordTrade("BTCUSDT", 100, 10, true, now)
	e.RecordTrade("BTCUSDT", 100, 10, true, now)
	e.RecordTrade("BTCUSDT", 100, 1, false, now)

	spacing, reason := e.GetSpacingAdjustment("BTCUSDT", 0.005, now)
	assert.Equal(t, 0.005, spacing, "a single signal must not move spacing when min_signals_for_action=2")
	assert.Equal(t, "normal", reason)
}

func TestGetSpacingAdjustmentCapsAt1Point8(t *testing.T) {
	p := testIndicatorParams()
	p.MinSignalsForAction = 1
	e := NewIndicatorEngine(p)
	now := time.Now()

	for i := 0; i < 5; i++ {
		e.RecordTrade("BTCUSDT", 100, 100, true, now)
	}
	e.UpdateSpread("BTCUSDT", 99, 101, now.Add(-time.Minute))
	e.UpdateSpread("BTCUSDT", 99, 101, now.Add(-time.Minute))
	e.UpdateSpread("BTCUSDT", 50, 150, now)

	spacing, _ := e.GetSpacingAdjustment("BTCUSDT", 0.005, now)
	assert.LessOrEqual(t, spacing, 0.005*maxSpacingAdjustment+1e-9)
}

func TestShouldPauseTradingOnLiquidityDrought(t *testing.T) {
	p := testIndicatorParams()
	p.Spread.Lookback = 5
	e := NewIndicatorEngine(p)
	now := time.Now()

	for i := 0; i < 4; i++ {
		e.UpdateSpread("BTCUSDT", 99.95, 100.05, now) // ~10bps
	}
	e.UpdateSpread("BTCUSDT", 98, 102, now) // ~400bps, spikes the ratio past 3x

	pause, reason := e.ShouldPauseTrading("BTCUSDT", now)
	assert.True(t, pause)
	assert.Contains(t, reason, "liquidity")
}

func TestShouldPauseTradingDisabledReturnsFalse(t *testing.T) {
	p := testIndicatorParams()
	p.Enabled = false
	e := NewIndicatorEngine(p)
	pause, reason := e.ShouldPauseTrading("BTCUSDT", time.Now())
	assert.False(t, pause)
	assert.Empty(t, reason)
}
