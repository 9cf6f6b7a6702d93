// Package risk implements the aggregate-only Risk Supervisor (spec §4.9): a
// margin-gated trailing stop that watches the account's combined equity
// across every symbol, not any one symbol's position.
package risk

import (
	"time"

	"nofx/account"
	"nofx/hook"
	"nofx/logger"
)

// Params configures the trailing stop (spec §4.9, mirrors config.RiskConfig).
type Params struct {
	Enabled             bool
	MarginThreshold      float64
	TrailingStartProfit  float64
	TrailingDrawdownPct  float64
	TrailingMinDrawdown  float64
}

// Action is the command the supervisor asks the caller to execute once the
// trailing stop trips: cancel every resting order and market-close every
// position, across all symbols (spec §4.9).
type Action struct {
	Triggered   bool
	Reason      string
	PeakEquity  float64
	CurrentEquity float64
	DrawdownPct float64
}

// Supervisor tracks the aggregate trailing-stop arm/peak state. It holds no
// per-symbol state, per the Open Question resolution in DESIGN.md.
type Supervisor struct {
	cfg Params

	armed bool
	peakUnrealized float64
}

// New builds a Supervisor from its configuration.
func New(cfg Params) *Supervisor {
	return &Supervisor{cfg: cfg}
}

// Evaluate is driven on every account-state refresh: it arms once the
// margin ratio crosses the configured threshold, tracks the peak unrealized
// PnL once trailing has started, and reports a close-everything Action once
// the drawdown from peak exceeds the configured bound (spec §4.9).
func (s *Supervisor) Evaluate(acc *account.State, now time.Time) Action {
	if !s.cfg.Enabled {
		return Action{}
	}

	marginRatio := acc.AggregateMarginRatio()
	equity := acc.AggregateEquity()
	unrealized := s.aggregateUnrealized(acc)

	if marginRatio < s.cfg.MarginThreshold {
		s.armed = false
		s.peakUnrealized = 0
		return Action{CurrentEquity: equity}
	}

	if !s.armed {
		if unrealized < s.cfg.TrailingStartProfit {
			return Action{CurrentEquity: equity}
		}
		s.armed = true
		s.peakUnrealized = unrealized
		logger.Infof("[risk] trailing stop armed: margin_ratio=%.4f unrealized=%.4f", marginRatio, unrealized)
		return Action{CurrentEquity: equity, PeakEquity: equity}
	}

	if unrealized > s.peakUnrealized {
		s.peakUnrealized = unrealized
	}

	drawdown := s.peakUnrealized - unrealized
	bound := s.cfg.TrailingMinDrawdown
	if pctBound := s.peakUnrealized * s.cfg.TrailingDrawdownPct; pctBound > bound {
		bound = pctBound
	}

	if drawdown < bound {
		return Action{CurrentEquity: equity, PeakEquity: s.peakUnrealized}
	}

	drawdownPct := 0.0
	if s.peakUnrealized != 0 {
		drawdownPct = drawdown / s.peakUnrealized
	}

	reason := "trailing stop drawdown exceeded"
	result := hook.HookExec[hook.AlertResult](hook.RISK_CRITICAL_ALERT, reason, drawdownPct)
	if result != nil {
		result.GetResult()
	}

	peak := s.peakUnrealized
	s.armed = false
	s.peakUnrealized = 0

	return Action{
		Triggered:     true,
		Reason:        reason,
		PeakEquity:    peak,
		CurrentEquity: equity,
		DrawdownPct:   drawdownPct,
	}
}

func (s *Supervisor) aggregateUnrealized(acc *account.State) float64 {
	var total float64
	for _, currency := range []string{"USDT", "USDC"} {
		total += acc.Balance(currency).UnrealizedPnL
	}
	return total
}
