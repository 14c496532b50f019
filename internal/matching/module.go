package matching

import (
	"context"
	"strings"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/latticefi/dexcore/internal/config"
	"github.com/latticefi/dexcore/internal/events"
	"github.com/latticefi/dexcore/internal/perpetual"
	"github.com/latticefi/dexcore/internal/privacyswap"
	"github.com/latticefi/dexcore/internal/settlement"
	"github.com/latticefi/dexcore/internal/storage"
)

// Module wires the Manager and one PairEngine per configured pair for
// fx-based assembly in cmd/coreengine, plugging in the concrete
// EventPublisher/Persister/SettlementPlanner/MarginChecker from the
// sibling modules (spec.md §5: each pair's engine is the single writer
// to its own ladder, collaborators are all async).
var Module = fx.Options(
	fx.Provide(newManager),
	fx.Invoke(registerPairs),
)

func newManager(logger *zap.Logger) *Manager {
	return NewManager(logger)
}

// registerPairs builds one PairEngine per cfg.Pairs entry and registers
// it with the Manager on process start. A pair symbol ending in "-PERP"
// is wired with the shared perpetual.Engine as its MarginChecker; every
// other pair gets NoopMarginChecker (spot pairs carry no margin concept).
func registerPairs(
	lc fx.Lifecycle,
	manager *Manager,
	cfg *config.Config,
	bus *events.Bus,
	orch *storage.Orchestrator,
	planner *settlement.Planner,
	margin *perpetual.Engine,
	privacy *privacyswap.Matcher,
	logger *zap.Logger,
) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			for _, pair := range cfg.Pairs {
				perp := strings.HasSuffix(pair, "-PERP")

				engineCfg := Config{
					PriceBandBps: cfg.PriceBand.MaxDeviationBps,
					SpotMakerBps: cfg.Fees.SpotMakerBps,
					SpotTakerBps: cfg.Fees.SpotTakerBps,
					PerpMakerBps: cfg.Fees.PerpMakerBps,
					PerpTakerBps: cfg.Fees.PerpTakerBps,
				}

				var marginChecker MarginChecker = NoopMarginChecker{}
				if perp {
					marginChecker = margin
				}

				engine := NewPairEngine(pair, perp, engineCfg, SystemClock, logger, bus, orch, planner, marginChecker, privacy)

				open, err := orch.LoadOpenOrders(ctx, pair)
				if err != nil {
					logger.Warn("matching: failed to load resting orders for rehydration, starting with an empty book", zap.String("pair", pair), zap.Error(err))
				} else if len(open) > 0 {
					engine.Rehydrate(ctx, open)
					logger.Info("matching: rehydrated resting orders", zap.String("pair", pair), zap.Int("count", len(open)))
				}

				manager.RegisterPair(pair, engine, time.Second)
			}
			logger.Info("matching: pairs registered", zap.Strings("pairs", cfg.Pairs))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			manager.Shutdown(ctx)
			logger.Info("matching: pairs flushed and stopped")
			return nil
		},
	})
}
