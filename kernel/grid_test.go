package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsDeadModeIsStrict(t *testing.T) {
	assert.False(t, IsDeadMode(20, 20), "position == threshold must stay in normal mode")
	assert.True(t, IsDeadMode(20.0001, 20))
}

func TestCalculateDeadModePriceWithOpposite(t *testing.T) {
	price := CalculateDeadModePrice(100, 40, 20, SideLong)
	assert.InDelta(t, 100*((40.0/20.0)/100+1), price, 1e-9)

	priceShort := CalculateDeadModePrice(100, 40, 20, SideShort)
	assert.InDelta(t, 100/((40.0/20.0)/100+1), priceShort, 1e-9)
}

func TestCalculateDeadModePriceFallback(t *testing.T) {
	assert.InDelta(t, 105, CalculateDeadModePrice(100, 25, 0, SideLong), 1e-9)
	assert.InDelta(t, 95, CalculateDeadModePrice(100, 25, 0, SideShort), 1e-9)
}

func TestCalculateTPQuantityDoubles(t *testing.T) {
	assert.Equal(t, 2.0, CalculateTPQuantity(1, 6, 0, 5, 20), "my position past limit doubles TP qty")
	assert.Equal(t, 2.0, CalculateTPQuantity(1, 1, 20, 5, 20), "opposite at threshold doubles TP qty")
	assert.Equal(t, 1.0, CalculateTPQuantity(1, 1, 1, 5, 20))
}

func TestCalculateGridPrices(t *testing.T) {
	tp, entry := CalculateGridPrices(100, 0.004, 0.006, SideLong)
	assert.InDelta(t, 100.4, tp, 1e-9)
	assert.InDelta(t, 99.4, entry, 1e-9)

	tp, entry = CalculateGridPrices(100, 0.004, 0.006, SideShort)
	assert.InDelta(t, 99.6, tp, 1e-9)
	assert.InDelta(t, 100.6, entry, 1e-9)
}

func TestGetGridDecisionNormalMode(t *testing.T) {
	d := GetGridDecision(100, 3, 0, 20, 5, 3, 0.004, 0.006, SideLong)
	assert.False(t, d.DeadMode)
	assert.True(t, d.HasEntry)
	assert.InDelta(t, 3, d.EntryQty, 1e-9)
}

func TestGetGridDecisionDeadMode(t *testing.T) {
	d := GetGridDecision(100, 21, 10, 20, 5, 3, 0.004, 0.006, SideLong)
	assert.True(t, d.DeadMode)
	assert.False(t, d.HasEntry)
	assert.Equal(t, 0.0, d.EntryQty)
	assert.Equal(t, 6.0, d.TPQty, "position past limit also doubles TP qty in dead mode")
}
