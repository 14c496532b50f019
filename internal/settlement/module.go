package settlement

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/latticefi/dexcore/internal/architecture/fx/resilience"
	"github.com/latticefi/dexcore/internal/config"
)

// Module wires the Settlement Surface for fx-based assembly in
// cmd/coreengine, reusing the shared circuit breaker factory
// (internal/storage.Module already provides it; fx dedups identical
// fx.Provide registrations within one app, so depending on it here rather
// than re-declaring it assumes both modules are composed together).
var Module = fx.Options(
	fx.Provide(newGateway, newPlanner),
	fx.Invoke(registerShutdownFlush),
)

func newGateway(cfg *config.Config, cb *resilience.CircuitBreakerFactory, logger *zap.Logger) *Gateway {
	return New(cfg.Settlement, cb, logger)
}

func newPlanner(gateway *Gateway, cfg *config.Config, logger *zap.Logger) *Planner {
	return NewPlanner(gateway, cfg.Settlement, logger)
}

// registerShutdownFlush drains any trades still batched in the planner on
// process shutdown, so a partially filled batch is never silently dropped.
func registerShutdownFlush(lc fx.Lifecycle, planner *Planner) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			planner.Flush(ctx)
			return nil
		},
	})
}
