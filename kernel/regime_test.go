package kernel

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRegimeClassifierDefaultsToRangingFirst(t *testing.T) {
	r := NewRegimeClassifier(20, 50, 0.02, 0.01)
	assert.Equal(t, ContextRanging, r.Detect())
}

func TestRegimeClassifierHoldsLastOnInsufficientData(t *testing.T) {
	r := NewRegimeClassifier(20, 50, 0.02, 0.01)
	for i := 0; i < 5; i++ {
		r.UpdatePrice(100)
	}
	assert.Equal(t, ContextRanging, r.Detect(), "fewer than volatilityLookback samples holds prior context")
}

func TestRegimeClassifierDetectsHighVolatility(t *testing.T) {
	r := NewRegimeClassifier(5, 50, 0.01, 0.01)
	prices := []float64{100, 130, 80, 140, 70}
	for _, p := range prices {
		r.UpdatePrice(p)
	}
	assert.Equal(t, ContextHighVolatility, r.Detect())
}

func TestRegimeClassifierDetectsTrendingUp(t *testing.T) {
	r := NewRegimeClassifier(5, 10, 1.0, 0.01)
	for i := 0; i < 10; i++ {
		r.UpdatePrice(100 + float64(i)*2)
	}
	assert.Equal(t, ContextTrendingUp, r.Detect())
}

func TestRecommendedArmsFallsBackToAllForUnknownContext(t *testing.T) {
	arms := RecommendedArms(MarketContext("nonsense"), 10)
	assert.Len(t, arms, 10)
}

func TestLinearSlopeOfFlatSeriesIsZero(t *testing.T) {
	assert.InDelta(t, 0, linearSlope([]float64{5, 5, 5, 5}), 1e-9)
}
