package events

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/latticefi/dexcore/internal/config"
)

// Module wires the egress Bus for fx-based assembly in cmd/coreengine.
var Module = fx.Options(
	fx.Provide(newBus),
	fx.Invoke(registerShutdown),
)

func newBus(cfg *config.Config, logger *zap.Logger) (*Bus, error) {
	return New(cfg.Events, logger)
}

func registerShutdown(lc fx.Lifecycle, bus *Bus) {
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return bus.Close()
		},
	})
}
