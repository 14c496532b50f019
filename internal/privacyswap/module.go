package privacyswap

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/latticefi/dexcore/internal/architecture/fx/resilience"
	"github.com/latticefi/dexcore/internal/config"
)

// Module wires the privacy-variant oracle adapter for fx-based assembly in
// cmd/coreengine. It depends on the same CircuitBreakerFactory the
// settlement gateway uses (internal/storage.Module already provides it).
var Module = fx.Options(
	fx.Provide(newOracle, newMatcher),
)

func newOracle(cfg *config.Config, logger *zap.Logger) *HTTPOracle {
	return NewHTTPOracle(cfg.PrivacySwap, logger)
}

func newMatcher(oracle *HTTPOracle, cb *resilience.CircuitBreakerFactory, logger *zap.Logger) *Matcher {
	return NewMatcher(oracle, cb, logger)
}
