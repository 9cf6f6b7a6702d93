package rotation

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeScorer struct {
	scores map[string]float64
	err    error
}

func (f *fakeScorer) Scores(ctx context.Context) (map[string]float64, error) {
	return f.scores, f.err
}

func testParams() Params {
	return Params{Cooldown: time.Hour, WeeklyQuota: 2, ScoreMarginThreshold: 0.1}
}

func TestEvaluateEmitsSignalWhenCandidateBeatsMargin(t *testing.T) {
	c := New(testParams())
	scorer := &fakeScorer{scores: map[string]float64{"BTCUSDT": 1.0, "ETHUSDT": 1.5}}

	signal, err := c.Evaluate(context.Background(), scorer, "BTCUSDT", []string{"ETHUSDT"}, time.Now())
	require.NoError(t, err)
	require.NotNil(t, signal)
	assert.Equal(t, "ETHUSDT", signal.ToSymbol)
	assert.InDelta(t, 0.5, signal.ScoreDiff, 1e-9)
}

func TestEvaluateNoSignalBelowMargin(t *testing.T) {
	c := New(testParams())
	scorer := &fakeScorer{scores: map[string]float64{"BTCUSDT": 1.0, "ETHUSDT": 1.05}}

	signal, err := c.Evaluate(context.Background(), scorer, "BTCUSDT", []string{"ETHUSDT"}, time.Now())
	require.NoError(t, err)
	assert.Nil(t, signal)
}

func TestEvaluateRespectsCooldown(t *testing.T) {
	c := New(testParams())
	c.lastRotation = time.Now()

	scorer := &fakeScorer{scores: map[string]float64{"BTCUSDT": 1.0, "ETHUSDT": 5.0}}
	signal, err := c.Evaluate(context.Background(), scorer, "BTCUSDT", []string{"ETHUSDT"}, time.Now())
	require.NoError(t, err)
	assert.Nil(t, signal)
}

func TestEvaluateRespectsWeeklyQuota(t *testing.T) {
	c := New(Params{Cooldown: 0, WeeklyQuota: 1, ScoreMarginThreshold: 0.1})
	now := time.Now()
	c.weeklyCounts[isoWeekKey(now)] = 1

	scorer := &fakeScorer{scores: map[string]float64{"BTCUSDT": 1.0, "ETHUSDT": 5.0}}
	signal, err := c.Evaluate(context.Background(), scorer, "BTCUSDT", []string{"ETHUSDT"}, now)
	require.NoError(t, err)
	assert.Nil(t, signal)
}

func TestExecuteRunsStepsInOrderAndClearsPending(t *testing.T) {
	c := New(testParams())
	scorer := &fakeScorer{scores: map[string]float64{"BTCUSDT": 1.0, "ETHUSDT": 1.5}}
	signal, err := c.Evaluate(context.Background(), scorer, "BTCUSDT", []string{"ETHUSDT"}, time.Now())
	require.NoError(t, err)
	require.NotNil(t, signal)

	var steps []string
	exec := Executor{
		DisableTrader: func(ctx context.Context, symbol string) error {
			steps = append(steps, "disable:"+symbol)
			return nil
		},
		CancelOpens: func(ctx context.Context, symbol string) error {
			steps = append(steps, "cancel:"+symbol)
			return nil
		},
		FlattenPositions: func(ctx context.Context, symbol string) error {
			steps = append(steps, "flatten:"+symbol)
			return nil
		},
		EnableTrader: func(ctx context.Context, symbol string) error {
			steps = append(steps, "enable:"+symbol)
			return nil
		},
	}

	err = c.Execute(context.Background(), signal, exec, time.Now())
	require.NoError(t, err)
	assert.Equal(t, []string{"disable:BTCUSDT", "cancel:BTCUSDT", "flatten:BTCUSDT", "enable:ETHUSDT"}, steps)
	assert.Nil(t, c.pending)
	assert.False(t, c.lastRotation.IsZero())
}

func TestEvaluateReturnsPendingSignalIdempotently(t *testing.T) {
	c := New(testParams())
	scorer := &fakeScorer{scores: map[string]float64{"BTCUSDT": 1.0, "ETHUSDT": 1.5}}

	first, err := c.Evaluate(context.Background(), scorer, "BTCUSDT", []string{"ETHUSDT"}, time.Now())
	require.NoError(t, err)
	require.NotNil(t, first)

	second, err := c.Evaluate(context.Background(), scorer, "BTCUSDT", []string{"ETHUSDT"}, time.Now())
	require.NoError(t, err)
	assert.Same(t, first, second)
}
