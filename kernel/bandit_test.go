package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testBanditParams() BanditParams {
	return BanditParams{
		Enabled:                 true,
		WindowSize:              50,
		ExplorationFactor:       1.5,
		MinPullsPerArm:          3,
		UpdateInterval:          10,
		ColdStartEnabled:        false,
		ContextualEnabled:       true,
		VolatilityLookback:      20,
		TrendLookback:           50,
		HighVolatilityThreshold: 0.02,
		TrendThreshold:          0.01,
		ThompsonEnabled:         true,
		ThompsonPriorAlpha:      1,
		ThompsonPriorBeta:       1,
		ParamPerturbation:       0.1,
		MddPenaltyWeight:        0.5,
		WinRateBonus:            0.2,
	}
}

func TestNewBanditOptimizerHasTenArms(t *testing.T) {
	b := NewBanditOptimizer(testBanditParams())
	assert.Len(t, b.arms, 10)
}

func TestSelectArmRespectsMinPullsFloor(t *testing.T) {
	b := NewBanditOptimizer(testBanditParams())
	idx := b.SelectArm()
	assert.Equal(t, 0, idx, "first untried arm under the min-pulls floor must be picked")
}

func TestColdStartSeedsRecommendedArms(t *testing.T) {
	p := testBanditParams()
	p.ColdStartEnabled = true
	p.ColdStartArmIdx = 4
	b := NewBanditOptimizer(p)
	assert.Equal(t, 4, b.currentArmIdx)
	assert.Equal(t, 1, b.pullCounts[4])
	assert.Equal(t, 1, b.pullCounts[5])
}

func TestRecordTradeTriggersUpdateAfterInterval(t *testing.T) {
	p := testBanditParams()
	p.ThompsonEnabled = false
	p.ColdStartEnabled = true
	b := NewBanditOptimizer(p)
	// cold start has already counted one pull per seeded recommended arm
	seededPulls := b.totalPulls

	for i := 0; i < p.UpdateInterval; i++ {
		b.RecordTrade(1.0, ContextRanging)
	}
	assert.Equal(t, seededPulls+1, b.totalPulls)
	assert.Empty(t, b.pendingTrades)
}

func TestCalculateRewardPunishesDrawdown(t *testing.T) {
	calmPnls := []float64{1, 1, 1, 1}
	volatilePnls := []float64{5, -5, 5, -5}
	calmReward := calculateReward(calmPnls, 0.5, 0.2)
	volatileReward := calculateReward(volatilePnls, 0.5, 0.2)
	assert.Greater(t, calmReward, volatileReward)
}

func TestGammaSampleIsNonNegative(t *testing.T) {
	b := NewBanditOptimizer(testBanditParams())
	for i := 0; i < 100; i++ {
		g := gammaSample(b.rng, 2.5)
		require.GreaterOrEqual(t, g, 0.0)
	}
}

func TestGenerateDynamicArmKeepsTPBelowGS(t *testing.T) {
	b := NewBanditOptimizer(testBanditParams())
	for i := 0; i < 100; i++ {
		arm := b.generateDynamicArm()
		require.NotNil(t, arm)
		assert.Less(t, arm.TakeProfitSpacing, arm.GridSpacing)
	}
}
