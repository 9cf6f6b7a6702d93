package config

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"nofx/crypto"
	"nofx/logger"

	"golang.org/x/crypto/pbkdf2"
)

// SymbolConfig mirrors the per-symbol grid parameters a trader is configured
// with. position_limit and position_threshold are derived, never stored.
type SymbolConfig struct {
	Symbol             string  `json:"symbol"`
	Base               string  `json:"base"`
	Quote              string  `json:"quote"`
	Enabled            bool    `json:"enabled"`
	PricePrecision     int     `json:"price_precision"`
	QtyPrecision       int     `json:"qty_precision"`
	Leverage           int     `json:"leverage"`
	TakeProfitSpacing  float64 `json:"take_profit_spacing"`
	GridSpacing        float64 `json:"grid_spacing"`
	InitialQuantity    float64 `json:"initial_quantity"`
	LimitMultiplier    float64 `json:"limit_multiplier"`
	ThresholdMultiplier float64 `json:"threshold_multiplier"`
}

// PositionLimit is Q0 * limit multiplier.
func (c SymbolConfig) PositionLimit() float64 {
	return c.InitialQuantity * c.LimitMultiplier
}

// PositionThreshold is Q0 * threshold multiplier.
func (c SymbolConfig) PositionThreshold() float64 {
	return c.InitialQuantity * c.ThresholdMultiplier
}

// Validate enforces TP < GS (spec §8 boundary: TP == GS is rejected at load).
func (c SymbolConfig) Validate() error {
	if c.TakeProfitSpacing <= 0 || c.GridSpacing <= 0 {
		return fmt.Errorf("symbol %s: spacing must be positive", c.Symbol)
	}
	if c.TakeProfitSpacing >= c.GridSpacing {
		return fmt.Errorf("symbol %s: take_profit_spacing (%.6f) must be < grid_spacing (%.6f)", c.Symbol, c.TakeProfitSpacing, c.GridSpacing)
	}
	if c.InitialQuantity <= 0 {
		return fmt.Errorf("symbol %s: initial_quantity must be positive", c.Symbol)
	}
	return nil
}

// RiskConfig configures the Risk Supervisor's margin-gated trailing stop.
type RiskConfig struct {
	Enabled              bool    `json:"enabled"`
	MarginThreshold      float64 `json:"margin_threshold"`
	TrailingStartProfit  float64 `json:"trailing_start_profit"`
	TrailingDrawdownPct  float64 `json:"trailing_drawdown_pct"`
	TrailingMinDrawdown  float64 `json:"trailing_min_drawdown"`
}

// FundingRateConfig gates the MAX-enhancement funding-rate position bias.
type FundingRateConfig struct {
	Enabled      bool    `json:"enabled"`
	Threshold    float64 `json:"threshold"`
	PositionBias float64 `json:"position_bias"`
}

// GLFTConfig gates the MAX-enhancement inventory-skew adjustment.
type GLFTConfig struct {
	Enabled         bool    `json:"enabled"`
	Gamma           float64 `json:"gamma"`
	InventoryTarget float64 `json:"inventory_target"`
}

// DynamicGridConfig gates the MAX-enhancement ATR-driven spacing.
type DynamicGridConfig struct {
	Enabled           bool    `json:"enabled"`
	ATRPeriod         int     `json:"atr_period"`
	ATRMultiplier     float64 `json:"atr_multiplier"`
	MinSpacing        float64 `json:"min_spacing"`
	MaxSpacing        float64 `json:"max_spacing"`
	VolatilityLookback int    `json:"volatility_lookback"`
}

// MaxEnhancementConfig is the master switch plus per-feature switches,
// matching original_source's MaxEnhancement.is_feature_enabled semantics:
// a sub-feature only fires when both the master switch and its own switch
// are enabled.
type MaxEnhancementConfig struct {
	AllEnhancementsEnabled bool              `json:"all_enhancements_enabled"`
	FundingRate            FundingRateConfig `json:"funding_rate"`
	GLFT                   GLFTConfig        `json:"glft"`
	DynamicGrid            DynamicGridConfig `json:"dynamic_grid"`
}

func (m MaxEnhancementConfig) FundingRateEnabled() bool { return m.AllEnhancementsEnabled && m.FundingRate.Enabled }
func (m MaxEnhancementConfig) GLFTEnabled() bool        { return m.AllEnhancementsEnabled && m.GLFT.Enabled }
func (m MaxEnhancementConfig) DynamicGridEnabled() bool { return m.AllEnhancementsEnabled && m.DynamicGrid.Enabled }

// BanditConfig configures the UCB1/Thompson parameter-arm optimizer.
type BanditConfig struct {
	Enabled                 bool    `json:"enabled"`
	WindowSize              int     `json:"window_size"`
	ExplorationFactor       float64 `json:"exploration_factor"`
	MinPullsPerArm          int     `json:"min_pulls_per_arm"`
	UpdateInterval          int     `json:"update_interval"`
	ColdStartEnabled        bool    `json:"cold_start_enabled"`
	ColdStartArmIdx         int     `json:"cold_start_arm_idx"`
	ContextualEnabled       bool    `json:"contextual_enabled"`
	VolatilityLookback      int     `json:"volatility_lookback"`
	TrendLookback           int     `json:"trend_lookback"`
	HighVolatilityThreshold float64 `json:"high_volatility_threshold"`
	TrendThreshold          float64 `json:"trend_threshold"`
	ThompsonEnabled         bool    `json:"thompson_enabled"`
	ThompsonPriorAlpha      float64 `json:"thompson_prior_alpha"`
	ThompsonPriorBeta       float64 `json:"thompson_prior_beta"`
	ParamPerturbation       float64 `json:"param_perturbation"`
	MddPenaltyWeight        float64 `json:"mdd_penalty_weight"`
	WinRateBonus            float64 `json:"win_rate_bonus"`
}

// DGTConfig configures the observer-only dynamic grid boundary tracker.
// Disabled by default (original_source: "AS grid doesn't need this").
type DGTConfig struct {
	Enabled             bool    `json:"enabled"`
	ResetThreshold      float64 `json:"reset_threshold"`
	ProfitReinvestRatio float64 `json:"profit_reinvest_ratio"`
	BoundaryBuffer      float64 `json:"boundary_buffer"`
}

// IndicatorSubConfig is one of the ofi/volume/spread sub-blocks.
type IndicatorSubConfig struct {
	Enabled   bool    `json:"enabled"`
	Lookback  int     `json:"lookback"`
	Threshold float64 `json:"threshold"`
}

// LeadingIndicatorConfig configures the OFI/volume/spread signal engine.
type LeadingIndicatorConfig struct {
	Enabled            bool               `json:"enabled"`
	OFI                IndicatorSubConfig `json:"ofi"`
	Volume             IndicatorSubConfig `json:"volume"`
	Spread             IndicatorSubConfig `json:"spread"`
	MinSignalsForAction int               `json:"min_signals_for_action"`
}

// LeverageConfig retained from the teacher as a coarse fallback leverage
// table consulted when a SymbolConfig omits an explicit leverage.
type LeverageConfig struct {
	BTCETHLeverage  int `json:"btc_eth_leverage"`
	AltcoinLeverage int `json:"altcoin_leverage"`
}

// LogConfig controls the package logger's level.
type LogConfig struct {
	Level string `json:"level"`
}

// Config is the full, file-backed JSON configuration (§6.4).
type Config struct {
	WebsocketURL       string                            `json:"websocket_url"`
	PrivateWSURL       string                             `json:"private_ws_url"`
	SyncIntervalSec    float64                            `json:"sync_interval"`
	Symbols            map[string]SymbolConfig            `json:"symbols"`
	Risk               RiskConfig                         `json:"risk"`
	MaxEnhancement     MaxEnhancementConfig                `json:"max_enhancement"`
	Bandit             BanditConfig                        `json:"bandit"`
	DGT                DGTConfig                           `json:"dgt"`
	LeadingIndicator   LeadingIndicatorConfig               `json:"leading_indicator"`
	Leverage           LeverageConfig                       `json:"leverage"`
	Log                *LogConfig                           `json:"log"`

	// LegacyAPIDetected is set on load if plaintext credential-shaped fields
	// were found in the config file. The core never stores the raw value:
	// legacyFingerprint is a one-way reference safe to log, and
	// LegacyEncryptedCredential holds an AES-GCM encrypted copy (set only
	// when DATA_ENCRYPTION_KEY is configured) that migration tooling can
	// recover and write into the credential vault.
	LegacyAPIDetected         bool   `json:"-"`
	LegacyEncryptedCredential string `json:"-"`
	legacyFingerprint         string `json:"-"`
}

// rawCredentialProbe mirrors the legacy flat fields some older config files
// carried directly (api_key/api_secret/passphrase), which must never survive
// to disk again once detected.
type rawCredentialProbe struct {
	APIKey     string `json:"api_key"`
	APISecret  string `json:"api_secret"`
	Passphrase string `json:"passphrase"`
}

// LoadConfig reads filename and parses it as JSON. A missing file is not an
// error: it returns an empty Config, matching the teacher's LoadConfig.
func LoadConfig(filename string) (*Config, error) {
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		logger.Infof("config file %s not found, using defaults", filename)
		return &Config{}, nil
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", filename, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filename, err)
	}

	var probe rawCredentialProbe
	_ = json.Unmarshal(data, &probe)
	if probe.APIKey != "" || probe.APISecret != "" || probe.Passphrase != "" {
		plaintext := probe.APIKey + probe.APISecret + probe.Passphrase
		cfg.LegacyAPIDetected = true
		cfg.legacyFingerprint = fingerprintSecret(plaintext)

		cs := crypto.NewService()
		if cs.HasDataKey() {
			enc, err := cs.EncryptForStorage(plaintext, filename)
			if err != nil {
				logger.Warnf("failed to encrypt legacy credentials in %s: %v", filename, err)
			} else {
				cfg.LegacyEncryptedCredential = enc
			}
		}

		logger.Warnf("plaintext credentials detected in %s (fingerprint %s); migrate to the credential vault", filename, cfg.legacyFingerprint)
	}

	for symbol, sc := range cfg.Symbols {
		if err := sc.Validate(); err != nil {
			return nil, fmt.Errorf("invalid config for %s: %w", symbol, err)
		}
	}

	return &cfg, nil
}

// fingerprintSecret derives a non-reversible identifier for a plaintext
// secret so the migration warning can reference "which" credential without
// ever writing the credential itself to a log.
func fingerprintSecret(secret string) string {
	salt := []byte("nofx-legacy-credential-fingerprint")
	key := pbkdf2.Key([]byte(secret), salt, 4096, 8, sha256.New)
	return hex.EncodeToString(key)
}
