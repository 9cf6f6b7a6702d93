package kernel

import (
	"fmt"
	"math"
	"math/rand"
	"time"

	"nofx/logger"
)

// ParameterArm is one point in the bandit's static parameter grid: a GLFT
// risk coefficient paired with a grid-spacing/take-profit-spacing pair.
type ParameterArm struct {
	Gamma             float64
	GridSpacing       float64
	TakeProfitSpacing float64
}

func (a ParameterArm) String() string {
	return fmt.Sprintf("γ=%.2f/GS=%.1f%%/TP=%.1f%%", a.Gamma, a.GridSpacing*100, a.TakeProfitSpacing*100)
}

// DefaultArms is the fixed 10-arm static parameter grid (spec §4.6),
// grounded on original_source's AS-grid-specific arm space: tight arms for
// ranging markets, a balanced pair for trending markets, and loose arms for
// high volatility.
var DefaultArms = []ParameterArm{
	{Gamma: 0.05, GridSpacing: 0.003, TakeProfitSpacing: 0.003},
	{Gamma: 0.05, GridSpacing: 0.004, TakeProfitSpacing: 0.004},
	{Gamma: 0.08, GridSpacing: 0.005, TakeProfitSpacing: 0.003},
	{Gamma: 0.08, GridSpacing: 0.006, TakeProfitSpacing: 0.004},
	{Gamma: 0.10, GridSpacing: 0.006, TakeProfitSpacing: 0.004},
	{Gamma: 0.10, GridSpacing: 0.008, TakeProfitSpacing: 0.005},
	{Gamma: 0.12, GridSpacing: 0.008, TakeProfitSpacing: 0.006},
	{Gamma: 0.12, GridSpacing: 0.010, TakeProfitSpacing: 0.006},
	{Gamma: 0.15, GridSpacing: 0.010, TakeProfitSpacing: 0.008},
	{Gamma: 0.15, GridSpacing: 0.012, TakeProfitSpacing: 0.008},
}

// coldStartRecommendedArms get a small reward/pull seed during cold start so
// the optimizer doesn't treat them as completely untried.
var coldStartRecommendedArms = []int{4, 5}

// BanditParams configures the UCB1/Thompson-sampling optimizer (spec §4.6).
type BanditParams struct {
	Enabled                 bool
	WindowSize              int
	ExplorationFactor       float64
	MinPullsPerArm          int
	UpdateInterval          int
	ColdStartEnabled        bool
	ColdStartArmIdx         int
	ContextualEnabled       bool
	VolatilityLookback      int
	TrendLookback           int
	HighVolatilityThreshold float64
	TrendThreshold          float64
	ThompsonEnabled         bool
	ThompsonPriorAlpha      float64
	ThompsonPriorBeta       float64
	ParamPerturbation       float64
	MddPenaltyWeight        float64
	WinRateBonus            float64
}

type pendingTrade struct {
	pnl     float64
	context MarketContext
}

// BanditOptimizer selects the live grid-parameter arm by UCB1 score within
// the regime-recommended subset, occasionally substituting a Thompson
// sample or a dynamically perturbed arm (spec §4.6).
type BanditOptimizer struct {
	cfg  BanditParams
	arms []ParameterArm

	rewards    [][]float64 // per-arm sliding window of realized rewards
	pullCounts []int

	currentArmIdx int
	totalPulls    int

	pendingTrades         []pendingTrade
	tradeCountSinceUpdate int

	regime *RegimeClassifier

	thompsonAlpha []float64
	thompsonBeta  []float64

	dynamicArm       *ParameterArm
	dynamicArmReward float64

	rng *rand.Rand
}

// NewBanditOptimizer builds an optimizer over DefaultArms, applying cold
// start if configured.
func NewBanditOptimizer(cfg BanditParams) *BanditOptimizer {
	n := len(DefaultArms)
	b := &BanditOptimizer{
		cfg:           cfg,
		arms:          append([]ParameterArm(nil), DefaultArms...),
		rewards:       make([][]float64, n),
		pullCounts:    make([]int, n),
		thompsonAlpha: make([]float64, n),
		thompsonBeta:  make([]float64, n),
		regime: NewRegimeClassifier(cfg.VolatilityLookback, cfg.TrendLookback,
			cfg.HighVolatilityThreshold, cfg.TrendThreshold),
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for i := range b.thompsonAlpha {
		b.thompsonAlpha[i] = cfg.ThompsonPriorAlpha
		b.thompsonBeta[i] = cfg.ThompsonPriorBeta
	}

	if cfg.ColdStartEnabled {
		b.currentArmIdx = cfg.ColdStartArmIdx
		for _, idx := range coldStartRecommendedArms {
			if idx >= n {
				continue
			}
			b.rewards[idx] = append(b.rewards[idx], 0.5)
			b.pullCounts[idx] = 1
			b.totalPulls++
		}
		logger.Infof("[bandit] cold start: initial arm=%d", b.currentArmIdx)
	}

	return b
}

// UpdatePrice feeds a new price sample to the regime classifier.
func (b *BanditOptimizer) UpdatePrice(price float64) {
	b.regime.UpdatePrice(price)
}

// CurrentContext returns the regime classifier's current market context.
func (b *BanditOptimizer) CurrentContext() MarketContext {
	return b.regime.Detect()
}

// CurrentParams returns the live arm: the dynamically perturbed arm if one
// was generated and outperformed, else the selected static arm.
func (b *BanditOptimizer) CurrentParams() ParameterArm {
	if b.dynamicArm != nil && b.dynamicArmReward > 0 {
		return *b.dynamicArm
	}
	return b.arms[b.currentArmIdx]
}

// SelectArm returns the index of the arm UCB1 (possibly substituted by a
// Thompson sample) currently favors, constrained to the minimum-pulls floor
// and the regime-recommended subset.
func (b *BanditOptimizer) SelectArm() int {
	for i, c := range b.pullCounts {
		if c < b.cfg.MinPullsPerArm {
			return i
		}
	}

	var recommended []int
	if b.cfg.ContextualEnabled {
		recommended = RecommendedArms(b.regime.Detect(), len(b.arms))
	} else {
		recommended = allIndices(len(b.arms))
	}

	if b.cfg.ThompsonEnabled && b.rng.Float64() < 0.3 {
		choice := b.thompsonSample()
		if containsInt(recommended, choice) {
			return choice
		}
	}

	bestIdx := -1
	bestValue := math.Inf(-1)
	recSet := toSet(recommended)
	for i := range b.arms {
		if !recSet[i] {
			continue
		}
		rewards := b.rewards[i]
		var value float64
		if len(rewards) == 0 {
			value = math.Inf(1)
		} else {
			m := mean(rewards)
			confidence := b.cfg.ExplorationFactor * math.Sqrt(2*math.Log(float64(b.totalPulls+1))/float64(len(rewards)))
			value = m + confidence
		}
		if value > bestValue {
			bestValue = value
			bestIdx = i
		}
	}
	if bestIdx < 0 {
		return b.currentArmIdx
	}
	return bestIdx
}

// RecordTrade appends a realized trade PnL; once update_interval trades have
// accumulated, the optimizer evaluates the reward and may switch arms (spec
// §4.6).
func (b *BanditOptimizer) RecordTrade(pnl float64, context MarketContext) {
	if !b.cfg.Enabled {
		return
	}
	b.pendingTrades = append(b.pendingTrades, pendingTrade{pnl: pnl, context: context})
	b.tradeCountSinceUpdate++

	if b.tradeCountSinceUpdate >= b.cfg.UpdateInterval {
		b.updateAndSelect()
	}
}

func (b *BanditOptimizer) updateAndSelect() {
	if len(b.pendingTrades) == 0 {
		return
	}

	pnls := make([]float64, len(b.pendingTrades))
	for i, t := range b.pendingTrades {
		pnls[i] = t.pnl
	}
	reward := calculateReward(pnls, b.cfg.MddPenaltyWeight, b.cfg.WinRateBonus)

	armIdx := b.currentArmIdx
	b.rewards[armIdx] = appendWindowed(b.rewards[armIdx], reward, b.cfg.WindowSize)
	b.pullCounts[armIdx]++
	b.totalPulls++

	if b.cfg.ThompsonEnabled {
		b.updateThompson(armIdx, reward)
	}

	newArmIdx := b.SelectArm()
	if newArmIdx != b.currentArmIdx {
		logger.Infof("[bandit] switching arms: %v -> %v (context=%s)",
			b.arms[b.currentArmIdx], b.arms[newArmIdx], b.regime.Detect())
		b.currentArmIdx = newArmIdx
	}

	if b.cfg.ThompsonEnabled && b.rng.Float64() < 0.1 {
		if arm := b.generateDynamicArm(); arm != nil {
			b.dynamicArm = arm
			logger.Infof("[bandit] dynamic exploration arm: %v", *arm)
		}
	}

	b.pendingTrades = nil
	b.tradeCountSinceUpdate = 0
}

func (b *BanditOptimizer) thompsonSample() int {
	bestIdx := 0
	bestSample := math.Inf(-1)
	for i := range b.arms {
		sample := sampleBeta(b.rng, b.thompsonAlpha[i], b.thompsonBeta[i])
		if sample > bestSample {
			bestSample = sample
			bestIdx = i
		}
	}
	return bestIdx
}

func (b *BanditOptimizer) updateThompson(armIdx int, reward float64) {
	probSuccess := 1 / (1 + math.Exp(-reward))
	b.thompsonAlpha[armIdx] += probSuccess
	b.thompsonBeta[armIdx] += 1 - probSuccess
}

func (b *BanditOptimizer) generateDynamicArm() *ParameterArm {
	if !b.cfg.ThompsonEnabled {
		return nil
	}
	best := b.arms[b.bestArmIdx()]
	p := b.cfg.ParamPerturbation

	gammaDelta := (b.rng.Float64()*2 - 1) * p * best.Gamma
	gsDelta := (b.rng.Float64()*2 - 1) * p * best.GridSpacing
	tpDelta := (b.rng.Float64()*2 - 1) * p * best.TakeProfitSpacing

	newGamma := clamp(best.Gamma+gammaDelta, 0.01, 0.3)
	newGS := clamp(best.GridSpacing+gsDelta, 0.002, 0.02)
	newTP := clamp(best.TakeProfitSpacing+tpDelta, 0.002, 0.015)

	if newTP > newGS*0.7 {
		newTP = newGS * 0.7
	}

	return &ParameterArm{Gamma: newGamma, GridSpacing: newGS, TakeProfitSpacing: newTP}
}

func (b *BanditOptimizer) bestArmIdx() int {
	bestIdx := 0
	bestMean := math.Inf(-1)
	for i, rewards := range b.rewards {
		if len(rewards) == 0 {
			continue
		}
		m := mean(rewards)
		if m > bestMean {
			bestMean = m
			bestIdx = i
		}
	}
	return bestIdx
}

// calculateReward blends a Sharpe-like ratio, a drawdown penalty, and a
// win-rate bonus into the single scalar the bandit optimizes (spec §4.6).
func calculateReward(pnls []float64, mddPenaltyWeight, winRateBonus float64) float64 {
	if len(pnls) == 0 {
		return 0
	}

	meanPnl := mean(pnls)
	stdPnl := math.Max(stddev(pnls), 0.001)
	sharpe := meanPnl / stdPnl

	var cumsum, runningMax, maxDrawdown float64
	for _, p := range pnls {
		cumsum += p
		if cumsum > runningMax {
			runningMax = cumsum
		}
		if dd := runningMax - cumsum; dd > maxDrawdown {
			maxDrawdown = dd
		}
	}

	var totalPnl float64
	for _, p := range pnls {
		totalPnl += p
	}
	var mddRatio float64
	if totalPnl != 0 {
		mddRatio = maxDrawdown / math.Abs(totalPnl)
	}
	mddPenalty := mddPenaltyWeight * mddRatio

	var wins int
	for _, p := range pnls {
		if p > 0 {
			wins++
		}
	}
	winRate := float64(wins) / float64(len(pnls))
	winBonus := winRateBonus * (winRate - 0.5)

	return sharpe - mddPenalty + winBonus
}

func appendWindowed(window []float64, v float64, maxLen int) []float64 {
	window = append(window, v)
	if maxLen > 0 && len(window) > maxLen {
		window = window[len(window)-maxLen:]
	}
	return window
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func allIndices(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func toSet(xs []int) map[int]bool {
	m := make(map[int]bool, len(xs))
	for _, x := range xs {
		m[x] = true
	}
	return m
}

func containsInt(xs []int, v int) bool {
	for _, x := range xs {
		if x == v {
			return true
		}
	}
	return false
}

// sampleBeta draws from a Beta(alpha, beta) distribution via the standard
// ratio-of-gammas construction (stdlib math/rand has no native Beta sampler).
func sampleBeta(rng *rand.Rand, alpha, beta float64) float64 {
	g1 := gammaSample(rng, alpha)
	g2 := gammaSample(rng, beta)
	if g1+g2 == 0 {
		return 0.5
	}
	return g1 / (g1 + g2)
}

// gammaSample draws from Gamma(shape, 1) via Marsaglia-Tsang for shape >= 1,
// and via the Ahrens-Dieter boost-by-one transform for shape < 1.
func gammaSample(rng *rand.Rand, shape float64) float64 {
	if shape < 1 {
		u := rng.Float64()
		return gammaSample(rng, shape+1) * math.Pow(u, 1/shape)
	}

	d := shape - 1.0/3.0
	c := 1 / math.Sqrt(9*d)
	for {
		var x, v float64
		for {
			x = rng.NormFloat64()
			v = 1 + c*x
			if v > 0 {
				break
			}
		}
		v = v * v * v
		u := rng.Float64()
		if u < 1-0.0331*x*x*x*x {
			return d * v
		}
		if math.Log(u) < 0.5*x*x+d*(1-v+math.Log(v)) {
			return d * v
		}
	}
}
