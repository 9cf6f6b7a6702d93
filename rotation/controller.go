// Package rotation implements the Rotation Controller (spec §4.10): an
// offline-triggered decision to retire one symbol's trader in favor of a
// better-scoring candidate, gated by a cooldown and a UTC weekly quota.
package rotation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"nofx/logger"
)

// Scorer rates candidate symbols on the out-of-scope coin-scoring module's
// composite index (spec §4.10: "the scorer collaborator's shape ... follows
// teacher pool/coin_pool.go's API->cache->default fallback pattern").
type Scorer interface {
	Scores(ctx context.Context) (map[string]float64, error)
}

// Signal is the transient rotation decision object (spec glossary:
// "RotationSignal"). Consumed by Execute or discarded by the caller.
type Signal struct {
	FromSymbol        string
	ToSymbol          string
	FromScore         float64
	ToScore           float64
	ScoreDiff         float64
	EstimatedSlippage float64
	Reason            string
}

// Params configures the cooldown/quota/margin gates (spec §4.10).
type Params struct {
	Cooldown            time.Duration
	WeeklyQuota         int
	ScoreMarginThreshold float64
}

// Controller evaluates rotation opportunities and executes approved ones. It
// keeps no per-symbol state beyond the rotation history needed for its own
// gates.
type Controller struct {
	mu sync.Mutex

	cfg Params

	lastRotation time.Time
	weeklyCounts map[string]int // ISO-8601 UTC week key -> rotations this week

	pending *Signal
}

// New builds a Controller from its configuration.
func New(cfg Params) *Controller {
	return &Controller{cfg: cfg, weeklyCounts: make(map[string]int)}
}

func isoWeekKey(t time.Time) string {
	year, week := t.UTC().ISOWeek()
	return fmt.Sprintf("%04d-W%02d", year, week)
}

// Evaluate consults scorer for the active symbol and every candidate and
// returns a Signal if the cooldown has elapsed, the weekly quota has not
// been exceeded, and some candidate's score beats the active symbol's by
// more than the margin threshold (spec §4.10). A nil Signal means no
// rotation is warranted right now.
func (c *Controller) Evaluate(ctx context.Context, scorer Scorer, activeSymbol string, candidates []string, now time.Time) (*Signal, error) {
	c.mu.Lock()
	if c.pending != nil {
		pending := c.pending
		c.mu.Unlock()
		return pending, nil
	}
	if !c.lastRotation.IsZero() && now.Sub(c.lastRotation) < c.cfg.Cooldown {
		c.mu.Unlock()
		return nil, nil
	}
	weekKey := isoWeekKey(now)
	if c.weeklyCounts[weekKey] >= c.cfg.WeeklyQuota {
		c.mu.Unlock()
		return nil, nil
	}
	c.mu.Unlock()

	scores, err := scorer.Scores(ctx)
	if err != nil {
		return nil, fmt.Errorf("scoring candidates: %w", err)
	}

	activeScore, ok := scores[activeSymbol]
	if !ok {
		activeScore = 0
	}

	var bestSymbol string
	bestScore := activeScore
	for _, candidate := range candidates {
		if candidate == activeSymbol {
			continue
		}
		score, ok := scores[candidate]
		if !ok {
			continue
		}
		if score > bestScore {
			bestScore = score
			bestSymbol = candidate
		}
	}

	if bestSymbol == "" || bestScore-activeScore <= c.cfg.ScoreMarginThreshold {
		return nil, nil
	}

	signal := &Signal{
		FromSymbol: activeSymbol,
		ToSymbol:   bestSymbol,
		FromScore:  activeScore,
		ToScore:    bestScore,
		ScoreDiff:  bestScore - activeScore,
		Reason:     fmt.Sprintf("%s scores %.4f above %.4f margin threshold", bestSymbol, bestScore-activeScore, c.cfg.ScoreMarginThreshold),
	}

	c.mu.Lock()
	c.pending = signal
	c.mu.Unlock()

	return signal, nil
}

// Executor performs the four ordered steps of a rotation: disable the
// from-symbol's trader, cancel its open orders, market-close its positions,
// and enable the to-symbol's trader with fresh initial quotes (spec §4.10).
type Executor struct {
	DisableTrader func(ctx context.Context, symbol string) error
	CancelOpens   func(ctx context.Context, symbol string) error
	FlattenPositions func(ctx context.Context, symbol string) error
	EnableTrader  func(ctx context.Context, symbol string) error
}

// Execute runs signal through the ordered rotation sequence. It is
// idempotent with respect to a pending signal: once a rotation completes
// (successfully or not), the pending signal is cleared so the next Evaluate
// call can produce a fresh one.
func (c *Controller) Execute(ctx context.Context, signal *Signal, exec Executor, now time.Time) error {
	defer func() {
		c.mu.Lock()
		c.pending = nil
		c.mu.Unlock()
	}()

	if err := exec.DisableTrader(ctx, signal.FromSymbol); err != nil {
		return fmt.Errorf("disable %s: %w", signal.FromSymbol, err)
	}
	if err := exec.CancelOpens(ctx, signal.FromSymbol); err != nil {
		return fmt.Errorf("cancel opens for %s: %w", signal.FromSymbol, err)
	}
	if err := exec.FlattenPositions(ctx, signal.FromSymbol); err != nil {
		return fmt.Errorf("flatten %s: %w", signal.FromSymbol, err)
	}
	if err := exec.EnableTrader(ctx, signal.ToSymbol); err != nil {
		return fmt.Errorf("enable %s: %w", signal.ToSymbol, err)
	}

	c.mu.Lock()
	c.lastRotation = now
	c.weeklyCounts[isoWeekKey(now)]++
	c.mu.Unlock()

	logger.Infof("[rotation] %s -> %s (from_score=%.4f to_score=%.4f diff=%.4f): %s",
		signal.FromSymbol, signal.ToSymbol, signal.FromScore, signal.ToScore, signal.ScoreDiff, signal.Reason)

	return nil
}
