package pool

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMergedScorerPrefersAI500ScoreOverOIGrowth(t *testing.T) {
	merged := &MergedCoinPool{
		AI500Coins: []CoinInfo{{Pair: "BTCUSDT", Score: 42}},
		OITopCoins: []OIPosition{
			{Symbol: "BTCUSDT", OIDeltaPercent: 99},
			{Symbol: "ETHUSDT", OIDeltaPercent: 7.5},
		},
		AllSymbols: []string{"BTCUSDT", "ETHUSDT"},
	}

	scores := scoresFromMerged(merged)

	assert.InDelta(t, 42, scores["BTCUSDT"], 1e-9)
	assert.InDelta(t, 7.5, scores["ETHUSDT"], 1e-9)
}

func TestMergedScorerHandlesEmptyPool(t *testing.T) {
	s := &MergedScorer{AI500Limit: 10}
	assert.Equal(t, 10, s.AI500Limit)

	scores := scoresFromMerged(&MergedCoinPool{})
	assert.Empty(t, scores)
}
