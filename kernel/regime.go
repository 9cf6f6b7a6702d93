package kernel

import "math"

// MarketContext classifies the recent price regime the bandit optimizer
// conditions its arm selection on (spec §4.6).
type MarketContext string

const (
	ContextRanging        MarketContext = "ranging"
	ContextTrendingUp     MarketContext = "trending_up"
	ContextTrendingDown   MarketContext = "trending_down"
	ContextHighVolatility MarketContext = "high_volatility"
)

// recommendedArms maps each market context to the subset of the static arm
// grid that context favors (spec §4.6; index layout matches DefaultArms).
var recommendedArms = map[MarketContext][]int{
	ContextRanging:        {0, 1, 2, 3},
	ContextTrendingUp:     {4, 5},
	ContextTrendingDown:   {4, 5},
	ContextHighVolatility: {6, 7, 8, 9},
}

// RegimeClassifier detects the current market context from a rolling price
// history. The first classification (empty history) defaults to ranging;
// afterwards, with insufficient history it holds the last context rather
// than guessing (spec §9 Open Question resolution: "hold last known context
// on insufficient data, defaulting only the very first call").
type RegimeClassifier struct {
	volatilityLookback      int
	trendLookback           int
	highVolatilityThreshold float64
	trendThreshold          float64

	prices  []float64
	current MarketContext
	seeded  bool
}

// NewRegimeClassifier builds a classifier from the bandit config's
// regime-detection parameters.
func NewRegimeClassifier(volatilityLookback, trendLookback int, highVolatilityThreshold, trendThreshold float64) *RegimeClassifier {
	return &RegimeClassifier{
		volatilityLookback:      volatilityLookback,
		trendLookback:           trendLookback,
		highVolatilityThreshold: highVolatilityThreshold,
		trendThreshold:          trendThreshold,
		current:                 ContextRanging,
	}
}

// UpdatePrice appends a new price sample, keeping only what trend detection
// could possibly need.
func (r *RegimeClassifier) UpdatePrice(price float64) {
	r.prices = append(r.prices, price)
	maxLen := r.trendLookback
	if r.volatilityLookback > maxLen {
		maxLen = r.volatilityLookback
	}
	if maxLen <= 0 {
		maxLen = 100
	}
	if len(r.prices) > maxLen {
		r.prices = r.prices[len(r.prices)-maxLen:]
	}
}

// Detect returns the current market context, updating it when enough
// history has accumulated.
func (r *RegimeClassifier) Detect() MarketContext {
	if !r.seeded {
		r.seeded = true
	}
	if len(r.prices) < r.volatilityLookback {
		return r.current
	}

	recent := r.prices[len(r.prices)-r.volatilityLookback:]
	vol := stddev(recent) / mean(recent)
	if vol > r.highVolatilityThreshold {
		r.current = ContextHighVolatility
		return r.current
	}

	if len(r.prices) >= r.trendLookback {
		trendPrices := r.prices[len(r.prices)-r.trendLookback:]
		slope := linearSlope(trendPrices)
		trendPct := slope / mean(trendPrices)

		switch {
		case trendPct > r.trendThreshold:
			r.current = ContextTrendingUp
		case trendPct < -r.trendThreshold:
			r.current = ContextTrendingDown
		default:
			r.current = ContextRanging
		}
	} else {
		r.current = ContextRanging
	}

	return r.current
}

// RecommendedArms returns the static-arm-grid indices recommended for ctx,
// or every index if ctx is unrecognized.
func RecommendedArms(ctx MarketContext, numArms int) []int {
	if arms, ok := recommendedArms[ctx]; ok {
		return arms
	}
	all := make([]int, numArms)
	for i := range all {
		all[i] = i
	}
	return all
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func stddev(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	m := mean(xs)
	var sumSq float64
	for _, x := range xs {
		d := x - m
		sumSq += d * d
	}
	return math.Sqrt(sumSq / float64(len(xs)))
}

// linearSlope fits a degree-1 least-squares line over xs (indexed 0..n-1)
// and returns its slope, matching original_source's np.polyfit(x, y, 1)[0].
func linearSlope(ys []float64) float64 {
	n := float64(len(ys))
	if n < 2 {
		return 0
	}
	var sumX, sumY, sumXY, sumXX float64
	for i, y := range ys {
		x := float64(i)
		sumX += x
		sumY += y
		sumXY += x * y
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / denom
}
