package kernel

import (
	"math"
	"time"
)

// MaxEnhancementParams is the master switch plus per-feature switches for
// the MAX enhancement sub-systems (spec §2.3 supplement). A sub-feature only
// takes effect when both AllEnabled and its own switch are on, matching
// original_source's MaxEnhancement.is_feature_enabled.
type MaxEnhancementParams struct {
	AllEnabled bool

	FundingRateEnabled   bool
	FundingRateThreshold float64
	FundingRatePositionBias float64

	GLFTEnabled     bool
	Gamma           float64
	InventoryTarget float64

	DynamicGridEnabled bool
	ATRPeriod          int
	ATRMultiplier      float64
	MinSpacing         float64
	MaxSpacing         float64
	VolatilityLookback int
}

func (p MaxEnhancementParams) fundingRateActive() bool { return p.AllEnabled && p.FundingRateEnabled }
func (p MaxEnhancementParams) glftActive() bool        { return p.AllEnabled && p.GLFTEnabled }
func (p MaxEnhancementParams) dynamicGridActive() bool { return p.AllEnabled && p.DynamicGridEnabled }

// FundingRateBias returns (longBias, shortBias): multipliers nudging the
// grid away from the side paying funding and toward the side receiving it
// (spec §2.3 supplement). Both are 1.0 (no bias) when the feature is off or
// the rate is within the threshold.
func FundingRateBias(rate float64, p MaxEnhancementParams) (longBias, shortBias float64) {
	if !p.fundingRateActive() {
		return 1.0, 1.0
	}
	if math.Abs(rate) < p.FundingRateThreshold {
		return 1.0, 1.0
	}

	bias := p.FundingRatePositionBias
	if rate > 0 {
		// longs pay, shorts receive: lean away from longs
		return 1.0 - bias, 1.0 + bias
	}
	return 1.0 + bias, 1.0 - bias
}

// InventoryRatio is the normalized long/short imbalance in [-1, 1]; 0 when
// there is no open position on either side.
func InventoryRatio(longPos, shortPos float64) float64 {
	total := longPos + shortPos
	if total <= 0 {
		return 0
	}
	return (longPos - shortPos) / total
}

// GLFTSpreadSkew returns (bidSkew, askSkew): the inventory-proportional
// spread adjustment a Guéant-Lehalle-Fernandez-Tapia-style market maker
// would apply to lean its quotes away from the heavier side (spec §2.3
// supplement). Both are zero when the feature is off.
func GLFTSpreadSkew(longPos, shortPos, baseSpread float64, p MaxEnhancementParams) (bidSkew, askSkew float64) {
	if !p.glftActive() {
		return 0, 0
	}
	ratio := InventoryRatio(longPos, shortPos)
	skew := ratio * baseSpread * p.Gamma
	return -skew, skew
}

// GLFTAdjustQuantity scales an order's base quantity down on the heavier
// side and up on the lighter side, clamped to [0.5x, 1.5x] (spec §2.3
// supplement).
func GLFTAdjustQuantity(baseQty float64, side Side, longPos, shortPos float64, p MaxEnhancementParams) float64 {
	if !p.glftActive() {
		return baseQty
	}
	ratio := InventoryRatio(longPos, shortPos)
	var adjust float64
	if side == SideLong {
		adjust = 1.0 - ratio*p.Gamma
	} else {
		adjust = 1.0 + ratio*p.Gamma
	}
	adjust = clamp(adjust, 0.5, 1.5)
	return baseQty * adjust
}

type priceSample struct {
	t     time.Time
	price float64
}

// DynamicGridSpacer derives ATR-driven take-profit/grid spacing per symbol,
// recalculating at most once per interval (spec §2.3 supplement: "dynamic
// ATR-based grid spacing").
type DynamicGridSpacer struct {
	calcInterval time.Duration
	history      map[string][]priceSample
	atrCache     map[string]float64
	lastCalc     map[string]time.Time
}

// NewDynamicGridSpacer builds a spacer recalculating ATR at most once per
// calcInterval.
func NewDynamicGridSpacer(calcInterval time.Duration) *DynamicGridSpacer {
	return &DynamicGridSpacer{
		calcInterval: calcInterval,
		history:      make(map[string][]priceSample),
		atrCache:     make(map[string]float64),
		lastCalc:     make(map[string]time.Time),
	}
}

// UpdatePrice appends a price sample for symbol.
func (d *DynamicGridSpacer) UpdatePrice(symbol string, price float64, at time.Time) {
	d.history[symbol] = append(d.history[symbol], priceSample{t: at, price: price})
	if maxLen := 1000; len(d.history[symbol]) > maxLen {
		d.history[symbol] = d.history[symbol][len(d.history[symbol])-maxLen:]
	}
}

func (d *DynamicGridSpacer) calculateATR(symbol string, p MaxEnhancementParams, now time.Time) float64 {
	if last, ok := d.lastCalc[symbol]; ok && now.Sub(last) < d.calcInterval {
		if v, ok := d.atrCache[symbol]; ok {
			return v
		}
		return 0.005
	}

	history := d.history[symbol]
	if len(history) < p.VolatilityLookback {
		return 0.005
	}

	recent := history[len(history)-p.VolatilityLookback:]
	var returns []float64
	for i := 1; i < len(recent); i++ {
		if recent[i-1].price > 0 {
			returns = append(returns, (recent[i].price-recent[i-1].price)/recent[i-1].price)
		}
	}
	if len(returns) == 0 {
		return 0.005
	}

	vol := stddev(returns) * p.ATRMultiplier
	vol = clamp(vol, p.MinSpacing, p.MaxSpacing)

	d.atrCache[symbol] = vol
	d.lastCalc[symbol] = now
	return vol
}

// GetDynamicSpacing returns (takeProfitSpacing, gridSpacing) derived from
// symbol's recent ATR, or the unmodified base values when the feature is off
// (spec §2.3 supplement).
func (d *DynamicGridSpacer) GetDynamicSpacing(symbol string, baseTakeProfit, baseGridSpacing float64, p MaxEnhancementParams, now time.Time) (float64, float64) {
	if !p.dynamicGridActive() {
		return baseTakeProfit, baseGridSpacing
	}

	atr := d.calculateATR(symbol, p, now)
	dynamicTP := clamp(atr*0.5, p.MinSpacing, p.MaxSpacing*0.6)
	dynamicGS := clamp(atr, p.MinSpacing*1.5, p.MaxSpacing)

	if dynamicTP >= dynamicGS {
		dynamicTP = dynamicGS * 0.6
	}

	return dynamicTP, dynamicGS
}
