// Package kernel is the pure decision brain of the trader: grid pricing,
// bandit parameter selection, market-regime classification, the
// leading-indicator engine, and the MAX enhancements. Apart from log lines,
// nothing in this package performs I/O; every function takes inputs and
// returns a decision.
package kernel

import "fmt"

// Side distinguishes the long/short leg a grid decision is computed for.
type Side string

const (
	SideLong  Side = "long"
	SideShort Side = "short"
)

// Grid fallback ratios used when a dead-mode symbol has no opposite
// position to scale its take-profit price against.
const (
	deadModeFallbackLong  = 1.05
	deadModeFallbackShort = 0.95
	deadModeDivisor       = 100.0
)

// GridDecision is the full output of GetGridDecision (spec §4.5).
type GridDecision struct {
	DeadMode    bool
	TPPrice     float64
	EntryPrice  float64 // zero and unused when DeadMode is true
	HasEntry    bool
	TPQty       float64
	EntryQty    float64
}

// IsDeadMode reports whether a position has grown past its threshold,
// strictly greater than (spec §8: position == threshold stays in normal
// mode).
func IsDeadMode(position, threshold float64) bool {
	return position > threshold
}

// CalculateDeadModePrice computes the special take-profit price used once a
// side has entered dead mode. With an opposite position to scale against,
// the ratio widens the further ahead the dead-mode side is; with none, a
// fixed fallback ratio applies.
func CalculateDeadModePrice(basePrice, myPosition, oppositePosition float64, side Side) float64 {
	if oppositePosition > 0 {
		r := (myPosition/oppositePosition)/deadModeDivisor + 1
		if side == SideLong {
			return basePrice * r
		}
		return basePrice / r
	}

	if side == SideLong {
		return basePrice * deadModeFallbackLong
	}
	return basePrice * deadModeFallbackShort
}

// CalculateTPQuantity doubles the take-profit quantity once this side has
// grown past the position limit, or the opposite side has reached the
// position threshold (spec §4.5).
func CalculateTPQuantity(baseQty, myPosition, oppositePosition, positionLimit, positionThreshold float64) float64 {
	if myPosition > positionLimit || oppositePosition >= positionThreshold {
		return baseQty * 2
	}
	return baseQty
}

// CalculateGridPrices computes the normal-mode take-profit and re-entry
// prices for one side (spec §4.5).
func CalculateGridPrices(basePrice, takeProfitSpacing, gridSpacing float64, side Side) (tpPrice, entryPrice float64) {
	if side == SideLong {
		return basePrice * (1 + takeProfitSpacing), basePrice * (1 - gridSpacing)
	}
	return basePrice * (1 - takeProfitSpacing), basePrice * (1 + gridSpacing)
}

// GetGridDecision is the grid strategy's single entry point: given a price
// and the current position state for one side, it returns the complete
// pricing and sizing decision (spec §4.5, the "Grid Strategy" core).
func GetGridDecision(
	price, myPosition, oppositePosition, positionThreshold, positionLimit, baseQty, takeProfitSpacing, gridSpacing float64,
	side Side,
) GridDecision {
	dead := IsDeadMode(myPosition, positionThreshold)
	tpQty := CalculateTPQuantity(baseQty, myPosition, oppositePosition, positionLimit, positionThreshold)

	if dead {
		tpPrice := CalculateDeadModePrice(price, myPosition, oppositePosition, side)
		return GridDecision{
			DeadMode: true,
			TPPrice:  tpPrice,
			HasEntry: false,
			TPQty:    tpQty,
			EntryQty: 0,
		}
	}

	tpPrice, entryPrice := CalculateGridPrices(price, takeProfitSpacing, gridSpacing, side)
	return GridDecision{
		DeadMode:   false,
		TPPrice:    tpPrice,
		EntryPrice: entryPrice,
		HasEntry:   true,
		TPQty:      tpQty,
		EntryQty:   baseQty,
	}
}

func (d GridDecision) String() string {
	if d.DeadMode {
		return fmt.Sprintf("dead_mode tp=%.6f qty=%.4f", d.TPPrice, d.TPQty)
	}
	return fmt.Sprintf("tp=%.6f entry=%.6f tp_qty=%.4f entry_qty=%.4f", d.TPPrice, d.EntryPrice, d.TPQty, d.EntryQty)
}
