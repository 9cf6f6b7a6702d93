package kernel

import "time"

// DGTParams configures the dynamic grid boundary tracker. Disabled by
// default; the AS grid strategy does not need it (original_source).
type DGTParams struct {
	Enabled             bool
	ResetThreshold      float64
	ProfitReinvestRatio float64
	BoundaryBuffer      float64
}

// boundary is the tracked price range for one symbol.
type boundary struct {
	center      float64
	upper       float64
	lower       float64
	gridSpacing float64
	numGrids    int
	initialized time.Time
}

// BoundaryBreach reports that the tracked price range was crossed, and in
// which direction.
type BoundaryBreach struct {
	OldCenter     float64
	NewCenter     float64
	Direction     string // "upper" or "lower"
	ReinvestAmount float64
	BreachCount   int
}

// DGTTracker observes the grid's price range against a boundary and reports
// when it would be breached, along with the profit-reinvestment figure a
// reset would carry. Unlike original_source's DGTBoundaryManager, this
// tracker never repositions the grid itself: §9's Open Question resolution
// keeps DGT observer-only so it cannot fight the bandit optimizer's own
// parameter changes, surfacing a BoundaryBreach for the caller (the
// Per-Symbol Trader) to act on or ignore.
type DGTTracker struct {
	cfg          DGTParams
	boundaries   map[string]*boundary
	accumulated  map[string]float64
	breachCounts map[string]int
}

// NewDGTTracker builds a tracker from its configuration.
func NewDGTTracker(cfg DGTParams) *DGTTracker {
	return &DGTTracker{
		cfg:          cfg,
		boundaries:   make(map[string]*boundary),
		accumulated:  make(map[string]float64),
		breachCounts: make(map[string]int),
	}
}

// InitializeBoundary (re)seeds symbol's tracked price range around
// centerPrice, spanning numGrids/2 grid steps above and below.
func (d *DGTTracker) InitializeBoundary(symbol string, centerPrice, gridSpacing float64, numGrids int, at time.Time) {
	halfGrids := numGrids / 2
	upper := centerPrice * pow1p(gridSpacing, halfGrids)
	lower := centerPrice * pow1p(-gridSpacing, halfGrids)

	d.boundaries[symbol] = &boundary{
		center: centerPrice, upper: upper, lower: lower,
		gridSpacing: gridSpacing, numGrids: numGrids, initialized: at,
	}
	d.accumulated[symbol] = 0
	d.breachCounts[symbol] = 0
}

// Observe checks currentPrice against symbol's tracked boundary and returns
// a BoundaryBreach if it has been crossed (within the configured buffer).
// realizedPnL accumulates toward the reinvestment figure reported on the
// next breach; Observe never mutates trading behavior, only the tracker's
// own bookkeeping.
func (d *DGTTracker) Observe(symbol string, currentPrice, realizedPnL float64, at time.Time) (bool, *BoundaryBreach) {
	if !d.cfg.Enabled {
		return false, nil
	}
	b, ok := d.boundaries[symbol]
	if !ok {
		return false, nil
	}

	d.accumulated[symbol] += realizedPnL

	breachUpper := currentPrice >= b.upper*(1-d.cfg.BoundaryBuffer)
	breachLower := currentPrice <= b.lower*(1+d.cfg.BoundaryBuffer)
	if !breachUpper && !breachLower {
		return false, nil
	}

	oldCenter := b.center
	newCenter := currentPrice

	var reinvest float64
	direction := "lower"
	if breachUpper {
		direction = "upper"
		reinvest = d.accumulated[symbol] * d.cfg.ProfitReinvestRatio
	} else {
		reinvest = d.accumulated[symbol]
	}

	d.InitializeBoundary(symbol, newCenter, b.gridSpacing, b.numGrids, at)
	d.breachCounts[symbol]++
	d.accumulated[symbol] = 0

	return true, &BoundaryBreach{
		OldCenter: oldCenter, NewCenter: newCenter, Direction: direction,
		ReinvestAmount: reinvest, BreachCount: d.breachCounts[symbol],
	}
}

func pow1p(x float64, n int) float64 {
	result := 1.0
	base := 1 + x
	for i := 0; i < n; i++ {
		result *= base
	}
	return result
}
