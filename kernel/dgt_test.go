package kernel

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDGTTrackerDisabledNeverBreaches(t *testing.T) {
	d := NewDGTTracker(DGTParams{Enabled: false})
	d.InitializeBoundary("BTCUSDT", 100, 0.01, 10, time.Now())
	breached, evt := d.Observe("BTCUSDT", 200, 5, time.Now())
	assert.False(t, breached)
	assert.Nil(t, evt)
}

func TestDGTTrackerDetectsUpperBreach(t *testing.T) {
	d := NewDGTTracker(DGTParams{Enabled: true, BoundaryBuffer: 0.0, ProfitReinvestRatio: 0.5})
	now := time.Now()
	d.InitializeBoundary("BTCUSDT", 100, 0.01, 10, now)

	breached, evt := d.Observe("BTCUSDT", 1000, 10, now)
	require.True(t, breached)
	require.NotNil(t, evt)
	assert.Equal(t, "upper", evt.Direction)
	assert.InDelta(t, 5, evt.ReinvestAmount, 1e-9)
	assert.Equal(t, 1, evt.BreachCount)
}

func TestDGTTrackerReinitializesAroundNewCenter(t *testing.T) {
	d := NewDGTTracker(DGTParams{Enabled: true, BoundaryBuffer: 0.0, ProfitReinvestRatio: 1.0})
	now := time.Now()
	d.InitializeBoundary("BTCUSDT", 100, 0.01, 10, now)
	d.Observe("BTCUSDT", 1000, 10, now)

	b := d.boundaries["BTCUSDT"]
	assert.InDelta(t, 1000, b.center, 1e-9)
}

func TestDGTTrackerUnknownSymbolIsNoop(t *testing.T) {
	d := NewDGTTracker(DGTParams{Enabled: true})
	breached, evt := d.Observe("ETHUSDT", 100, 0, time.Now())
	assert.False(t, breached)
	assert.Nil(t, evt)
}
