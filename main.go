package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"nofx/account"
	"nofx/bootstrap"
	"nofx/config"
	"nofx/coordinator"
	"nofx/gateway"
	"nofx/hook"
	"nofx/kernel"
	"nofx/logger"
	"nofx/market"
	"nofx/pool"
	"nofx/private"
	"nofx/risk"
	"nofx/rotation"
	"nofx/store"
)

func main() {
	if err := godotenv.Load(); err != nil {
		logger.Infof(".env not found, reading credentials from the environment directly")
	}

	cfg, err := config.LoadConfig("config.json")
	if err != nil {
		logger.Fatalf("load config: %v", err)
	}

	logLevel := "info"
	if cfg.Log != nil && cfg.Log.Level != "" {
		logLevel = cfg.Log.Level
	}
	if err := logger.InitWithSimpleConfig(logLevel); err != nil {
		logger.Fatalf("init logger: %v", err)
	}
	defer logger.Shutdown()

	creds := gateway.Credentials{
		APIKey:     os.Getenv("BITGET_API_KEY"),
		APISecret:  os.Getenv("BITGET_API_SECRET"),
		Passphrase: os.Getenv("BITGET_PASSPHRASE"),
	}

	db, err := store.NewFromEnv()
	if err != nil {
		logger.Fatalf("open store: %v", err)
	}
	defer db.Close()

	gw := gateway.NewBitgetGateway(creds)
	acc := account.New()

	marketFeed := market.NewFeed(orDefault(cfg.WebsocketURL, "wss://ws.bitget.com/v2/ws/public"))
	privateFeed := private.NewFeed(orDefault(cfg.PrivateWSURL, "wss://ws.bitget.com/v2/ws/private"), gw)

	bandit := kernel.NewBanditOptimizer(kernel.BanditParams{
		Enabled: cfg.Bandit.Enabled, WindowSize: cfg.Bandit.WindowSize, ExplorationFactor: cfg.Bandit.ExplorationFactor,
		MinPullsPerArm: cfg.Bandit.MinPullsPerArm, UpdateInterval: cfg.Bandit.UpdateInterval,
		ColdStartEnabled: cfg.Bandit.ColdStartEnabled, ColdStartArmIdx: cfg.Bandit.ColdStartArmIdx,
		ContextualEnabled: cfg.Bandit.ContextualEnabled, VolatilityLookback: cfg.Bandit.VolatilityLookback,
		TrendLookback: cfg.Bandit.TrendLookback, HighVolatilityThreshold: cfg.Bandit.HighVolatilityThreshold,
		TrendThreshold: cfg.Bandit.TrendThreshold, ThompsonEnabled: cfg.Bandit.ThompsonEnabled,
		ThompsonPriorAlpha: cfg.Bandit.ThompsonPriorAlpha, ThompsonPriorBeta: cfg.Bandit.ThompsonPriorBeta,
		ParamPerturbation: cfg.Bandit.ParamPerturbation, MddPenaltyWeight: cfg.Bandit.MddPenaltyWeight,
		WinRateBonus: cfg.Bandit.WinRateBonus,
	})
	indicator := kernel.NewIndicatorEngine(kernel.LeadingIndicatorParams{
		Enabled:             cfg.LeadingIndicator.Enabled,
		OFI:                 kernel.IndicatorParams(cfg.LeadingIndicator.OFI),
		Volume:              kernel.IndicatorParams(cfg.LeadingIndicator.Volume),
		Spread:              kernel.IndicatorParams(cfg.LeadingIndicator.Spread),
		MinSignalsForAction: cfg.LeadingIndicator.MinSignalsForAction,
	})
	dgt := kernel.NewDGTTracker(kernel.DGTParams{
		Enabled: cfg.DGT.Enabled, ResetThreshold: cfg.DGT.ResetThreshold,
		ProfitReinvestRatio: cfg.DGT.ProfitReinvestRatio, BoundaryBuffer: cfg.DGT.BoundaryBuffer,
	})
	dynSpacer := kernel.NewDynamicGridSpacer(time.Minute)
	maxParams := kernel.MaxEnhancementParams{
		AllEnabled:              cfg.MaxEnhancement.AllEnhancementsEnabled,
		FundingRateEnabled:      cfg.MaxEnhancement.FundingRate.Enabled,
		FundingRateThreshold:    cfg.MaxEnhancement.FundingRate.Threshold,
		FundingRatePositionBias: cfg.MaxEnhancement.FundingRate.PositionBias,
		GLFTEnabled:             cfg.MaxEnhancement.GLFT.Enabled,
		Gamma:                   cfg.MaxEnhancement.GLFT.Gamma,
		InventoryTarget:         cfg.MaxEnhancement.GLFT.InventoryTarget,
		DynamicGridEnabled:      cfg.MaxEnhancement.DynamicGrid.Enabled,
		ATRPeriod:               cfg.MaxEnhancement.DynamicGrid.ATRPeriod,
		ATRMultiplier:           cfg.MaxEnhancement.DynamicGrid.ATRMultiplier,
		MinSpacing:              cfg.MaxEnhancement.DynamicGrid.MinSpacing,
		MaxSpacing:              cfg.MaxEnhancement.DynamicGrid.MaxSpacing,
		VolatilityLookback:      cfg.MaxEnhancement.DynamicGrid.VolatilityLookback,
	}

	supervisor := risk.New(risk.Params{
		Enabled: cfg.Risk.Enabled, MarginThreshold: cfg.Risk.MarginThreshold,
		TrailingStartProfit: cfg.Risk.TrailingStartProfit, TrailingDrawdownPct: cfg.Risk.TrailingDrawdownPct,
		TrailingMinDrawdown: cfg.Risk.TrailingMinDrawdown,
	})
	rotationCtrl := rotation.New(rotation.Params{Cooldown: time.Hour, WeeklyQuota: 2, ScoreMarginThreshold: 5.0})
	scorer := pool.NewMergedScorer(30)

	telegram := hook.NewTelegramSinkFromEnv()
	telegram.RegisterRiskAlert()
	telegram.RegisterRotationAlert()

	c := coordinator.New(cfg, gw, acc, marketFeed, privateFeed, bandit, indicator, dgt, dynSpacer, maxParams, supervisor, rotationCtrl, scorer)

	ctx, cancel := context.WithCancel(context.Background())

	seq := bootstrap.NewSequence()
	seq.Add("start-coordinator", 1, func(bc *bootstrap.Context) error {
		return c.Start(bc.Ctx)
	})

	seq.Add("legacy-credential-migration-warning", 2, func(bc *bootstrap.Context) error {
		if bc.Config.LegacyEncryptedCredential == "" {
			return fmt.Errorf("legacy credentials detected but DATA_ENCRYPTION_KEY is not configured; set it so they can be migrated to the vault")
		}
		logger.Warnf("legacy plaintext credentials were detected and encrypted for migration; remove them from config.json")
		return nil
	}).EnabledIf(func(bc *bootstrap.Context) bool {
		return bc.Config.LegacyAPIDetected
	}).OnError(bootstrap.LogAndContinue)

	bc := &bootstrap.Context{Ctx: ctx, Config: cfg, GW: gw, Acc: acc}
	if err := seq.Run(bc); err != nil {
		logger.Fatalf("startup sequence failed: %v", err)
	}

	go marketFeed.Run(ctx)
	go privateFeed.Run(ctx)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Infof("shutdown signal received")
		cancel()
	}()

	if err := c.Run(ctx); err != nil && err != context.Canceled {
		logger.Warnf("coordinator stopped: %v", err)
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
