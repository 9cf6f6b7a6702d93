package kernel

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Signal is one of the leading-indicator engine's tagged triggers.
type Signal string

const (
	SignalOFIBuyPressure    Signal = "ofi_buy_pressure"
	SignalOFISellPressure   Signal = "ofi_sell_pressure"
	SignalVolumeSurge       Signal = "volume_surge"
	SignalSpreadExpansion   Signal = "spread_expansion"
)

// maxSpacingAdjustment caps how far the leading-indicator engine may widen
// spacing above its base value, regardless of how many signals stack (spec
// §4.7).
const maxSpacingAdjustment = 1.8

type tradeSample struct {
	t     time.Time
	value float64 // price * quantity
	isBuy bool
}

type spreadSample struct {
	t         time.Time
	spreadBps float64
}

// IndicatorParams configures one of the OFI/volume/spread sub-signals.
type IndicatorParams struct {
	Enabled   bool
	Lookback  int
	Threshold float64
}

// LeadingIndicatorParams configures the whole engine (spec §4.7).
type LeadingIndicatorParams struct {
	Enabled             bool
	OFI                 IndicatorParams
	Volume              IndicatorParams
	Spread              IndicatorParams
	MinSignalsForAction int
}

type symbolIndicatorState struct {
	trades  []tradeSample
	spreads []spreadSample

	currentOFI         float64
	currentVolumeRatio float64
	currentSpreadRatio float64
}

// IndicatorEngine computes order-flow-imbalance, volume-surge, and
// spread-surge signals per symbol and derives a bounded spacing-widening
// multiplier and a pause-trading recommendation from them (spec §4.7).
type IndicatorEngine struct {
	cfg    LeadingIndicatorParams
	states map[string]*symbolIndicatorState
}

// NewIndicatorEngine builds an engine from its configuration.
func NewIndicatorEngine(cfg LeadingIndicatorParams) *IndicatorEngine {
	return &IndicatorEngine{cfg: cfg, states: make(map[string]*symbolIndicatorState)}
}

func (e *IndicatorEngine) stateFor(symbol string) *symbolIndicatorState {
	s, ok := e.states[symbol]
	if !ok {
		s = &symbolIndicatorState{currentVolumeRatio: 1.0, currentSpreadRatio: 1.0}
		e.states[symbol] = s
	}
	return s
}

// RecordTrade folds a new trade into symbol's OFI/volume history.
func (e *IndicatorEngine) RecordTrade(symbol string, price, qty float64, isBuy bool, at time.Time) {
	if !e.cfg.Enabled {
		return
	}
	s := e.stateFor(symbol)
	s.trades = append(s.trades, tradeSample{t: at, value: price * qty, isBuy: isBuy})
	if maxLen := 500; len(s.trades) > maxLen {
		s.trades = s.trades[len(s.trades)-maxLen:]
	}
}

// UpdateSpread folds a new best bid/ask into symbol's spread history.
func (e *IndicatorEngine) UpdateSpread(symbol string, bid, ask float64, at time.Time) {
	if !e.cfg.Enabled || bid <= 0 || ask <= 0 {
		return
	}
	s := e.stateFor(symbol)
	mid := (bid + ask) / 2
	spreadBps := (ask - bid) / mid * 10000
	s.spreads = append(s.spreads, spreadSample{t: at, spreadBps: spreadBps})
	if maxLen := 200; len(s.spreads) > maxLen {
		s.spreads = s.spreads[len(s.spreads)-maxLen:]
	}
}

func (e *IndicatorEngine) calculateOFI(symbol string) float64 {
	s := e.stateFor(symbol)
	if len(s.trades) < e.cfg.OFI.Lookback {
		return 0
	}
	recent := s.trades[len(s.trades)-e.cfg.OFI.Lookback:]
	var buyVol, sellVol float64
	for _, t := range recent {
		if t.isBuy {
			buyVol += t.value
		} else {
			sellVol += t.value
		}
	}
	total := buyVol + sellVol
	if total <= 0 {
		return 0
	}
	ofi := (buyVol - sellVol) / total
	s.currentOFI = ofi
	return ofi
}

func (e *IndicatorEngine) calculateVolumeRatio(symbol string, now time.Time) float64 {
	s := e.stateFor(symbol)
	if len(s.trades) < e.cfg.Volume.Lookback {
		return 1.0
	}

	var recentMinute []float64
	for _, t := range s.trades {
		if now.Sub(t.t) < time.Minute {
			recentMinute = append(recentMinute, t.value)
		}
	}
	historical := s.trades[len(s.trades)-e.cfg.Volume.Lookback:]
	var historicalValues []float64
	for _, t := range historical {
		historicalValues = append(historicalValues, t.value)
	}

	var currentVolume float64
	for _, v := range recentMinute {
		currentVolume += v
	}
	avgPerTrade := mean(historicalValues)
	expected := avgPerTrade * math.Max(1, float64(len(recentMinute)))
	if expected <= 0 {
		return 1.0
	}

	ratio := currentVolume / expected
	s.currentVolumeRatio = ratio
	return ratio
}

func (e *IndicatorEngine) calculateSpreadRatio(symbol string) float64 {
	s := e.stateFor(symbol)
	if len(s.spreads) < e.cfg.Spread.Lookback {
		return 1.0
	}
	current := s.spreads[len(s.spreads)-1].spreadBps
	window := s.spreads[len(s.spreads)-e.cfg.Spread.Lookback:]
	var bps []float64
	for _, sp := range window {
		bps = append(bps, sp.spreadBps)
	}
	avg := mean(bps)
	if avg <= 0 {
		return 1.0
	}
	ratio := current / avg
	s.currentSpreadRatio = ratio
	return ratio
}

// IndicatorValues is the underlying metric readout the signal thresholds are
// computed from.
type IndicatorValues struct {
	OFI          float64
	VolumeRatio  float64
	SpreadRatio  float64
}

// GetSignals computes the current active signal set and the underlying
// metric values for symbol (spec §4.7).
func (e *IndicatorEngine) GetSignals(symbol string, now time.Time) ([]Signal, IndicatorValues) {
	if !e.cfg.Enabled {
		return nil, IndicatorValues{}
	}

	ofi := e.calculateOFI(symbol)
	volRatio := e.calculateVolumeRatio(symbol, now)
	spreadRatio := e.calculateSpreadRatio(symbol)
	values := IndicatorValues{OFI: ofi, VolumeRatio: volRatio, SpreadRatio: spreadRatio}

	var signals []Signal
	if e.cfg.OFI.Enabled {
		if ofi > e.cfg.OFI.Threshold {
			signals = append(signals, SignalOFIBuyPressure)
		} else if ofi < -e.cfg.OFI.Threshold {
			signals = append(signals, SignalOFISellPressure)
		}
	}
	if e.cfg.Volume.Enabled && volRatio > e.cfg.Volume.Threshold {
		signals = append(signals, SignalVolumeSurge)
	}
	if e.cfg.Spread.Enabled && spreadRatio > e.cfg.Spread.Threshold {
		signals = append(signals, SignalSpreadExpansion)
	}

	return signals, values
}

// hasSignal reports whether signals contains s.
func hasSignal(signals []Signal, s Signal) bool {
	for _, x := range signals {
		if x == s {
			return true
		}
	}
	return false
}

// GetSpacingAdjustment returns the widened spacing and a human-readable
// reason, gated by MinSignalsForAction: fewer signals than the configured
// minimum leaves spacing untouched even if individually significant (spec
// §2.3 supplement, §4.7).
func (e *IndicatorEngine) GetSpacingAdjustment(symbol string, baseSpacing float64, now time.Time) (float64, string) {
	if !e.cfg.Enabled {
		return baseSpacing, "leading indicator disabled"
	}

	signals, values := e.GetSignals(symbol, now)
	if len(signals) < e.cfg.MinSignalsForAction {
		return baseSpacing, "normal"
	}

	adjustment := 1.0
	var reasons []string

	if hasSignal(signals, SignalVolumeSurge) {
		volAdj := math.Min(1.5, 1.0+(values.VolumeRatio-2.0)*0.1)
		adjustment = math.Max(adjustment, volAdj)
		reasons = append(reasons, fmt.Sprintf("volume x%.1f", values.VolumeRatio))
	}
	if hasSignal(signals, SignalSpreadExpansion) {
		spreadAdj := math.Min(1.4, 1.0+(values.SpreadRatio-1.5)*0.2)
		adjustment = math.Max(adjustment, spreadAdj)
		reasons = append(reasons, fmt.Sprintf("spread x%.1f", values.SpreadRatio))
	}
	if hasSignal(signals, SignalOFIBuyPressure) || hasSignal(signals, SignalOFISellPressure) {
		ofiAdj := 1.0 + math.Abs(values.OFI)*0.2
		adjustment = math.Max(adjustment, ofiAdj)
		direction := "sell"
		if values.OFI > 0 {
			direction = "buy"
		}
		reasons = append(reasons, fmt.Sprintf("%s pressure ofi=%.2f", direction, values.OFI))
	}

	adjustment = math.Min(adjustment, maxSpacingAdjustment)
	reason := "normal"
	if len(reasons) > 0 {
		reason = strings.Join(reasons, " + ")
	}
	return baseSpacing * adjustment, reason
}

// ShouldPauseTrading flags extreme conditions the engine believes grid
// trading should pause through entirely (spec §4.7).
func (e *IndicatorEngine) ShouldPauseTrading(symbol string, now time.Time) (bool, string) {
	if !e.cfg.Enabled {
		return false, ""
	}

	_, values := e.GetSignals(symbol, now)
	switch {
	case values.VolumeRatio > 4.0 && values.SpreadRatio > 2.0:
		return true, fmt.Sprintf("extreme volatility (vol=%.1fx, spread=%.1fx)", values.VolumeRatio, values.SpreadRatio)
	case values.VolumeRatio > 6.0:
		return true, fmt.Sprintf("abnormal volume surge (vol=%.1fx)", values.VolumeRatio)
	case values.SpreadRatio > 3.0:
		return true, fmt.Sprintf("liquidity drought (spread=%.1fx)", values.SpreadRatio)
	default:
		return false, ""
	}
}
