package pool

import "context"

// MergedScorer adapts GetMergedCoinPool into the rotation.Scorer interface:
// rotation.Controller.Evaluate only needs one composite score per symbol, not
// the full AI500/OI-Top breakdown GetMergedCoinPool returns.
type MergedScorer struct {
	AI500Limit int
}

// NewMergedScorer builds a MergedScorer that asks GetMergedCoinPool for the
// top ai500Limit AI500-ranked coins merged with the OI Top list.
func NewMergedScorer(ai500Limit int) *MergedScorer {
	return &MergedScorer{AI500Limit: ai500Limit}
}

// Scores implements rotation.Scorer. AI500 coins score by their composite
// CoinInfo.Score; OI Top coins that aren't already in the AI500 set score by
// their open-interest growth rate, since OIPosition carries no composite
// score of its own.
func (s *MergedScorer) Scores(ctx context.Context) (map[string]float64, error) {
	merged, err := GetMergedCoinPool(s.AI500Limit)
	if err != nil {
		return nil, err
	}
	return scoresFromMerged(merged), nil
}

func scoresFromMerged(merged *MergedCoinPool) map[string]float64 {
	scores := make(map[string]float64, len(merged.AllSymbols))
	for _, coin := range merged.AI500Coins {
		scores[coin.Pair] = coin.Score
	}
	for _, pos := range merged.OITopCoins {
		if _, ok := scores[pos.Symbol]; !ok {
			scores[pos.Symbol] = pos.OIDeltaPercent
		}
	}
	return scores
}
