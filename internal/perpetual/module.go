package perpetual

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/latticefi/dexcore/internal/config"
)

// Module wires the perpetual bookkeeping Engine for fx-based assembly in
// cmd/coreengine, alongside internal/storage.Module and the matching
// engine's own fx wiring.
var Module = fx.Options(
	fx.Provide(newEngine),
	fx.Invoke(registerFundingTicker),
)

func newEngine(cfg *config.Config, logger *zap.Logger) *Engine {
	return New(Config{
		MaintenanceMarginBps: cfg.Margin.MaintenanceMarginBps,
		MaxLeverage:          cfg.Margin.MaxLeverage,
		FundingMaxRateBps:    cfg.Funding.MaxRateBps,
		FundingIntervalHours: cfg.Funding.IntervalHours,
	}, logger)
}

// registerFundingTicker drives ApplyFunding for every configured pair at
// each UTC-aligned funding boundary, mirroring internal/storage's archival
// ticker shape (a single goroutine gated by an fx.Lifecycle stop channel
// rather than a cron library, matching the teacher's ticker idiom).
func registerFundingTicker(lc fx.Lifecycle, engine *Engine, cfg *config.Config, logger *zap.Logger) {
	stop := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go runFundingLoop(engine, cfg.Pairs, logger, stop)
			return nil
		},
		OnStop: func(ctx context.Context) error {
			close(stop)
			return nil
		},
	})
}

func runFundingLoop(engine *Engine, pairs []string, logger *zap.Logger, stop chan struct{}) {
	for {
		next := engine.NextFundingTime(time.Now())
		wait := time.Until(next)
		if wait <= 0 {
			wait = time.Second
		}
		timer := time.NewTimer(wait)
		select {
		case <-stop:
			timer.Stop()
			return
		case <-timer.C:
			for _, pair := range pairs {
				// Rate derivation (mark/index basis, OI imbalance) belongs
				// to the market-data feed, not this keeper; a zero rate
				// here is a safe no-op until that feed is wired in.
				engine.ApplyFunding(context.Background(), pair, 0, time.Now())
			}
			logger.Info("perpetual: funding settlement pass complete", zap.Int("pairs", len(pairs)))
		}
	}
}
