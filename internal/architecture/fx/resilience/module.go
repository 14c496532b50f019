package resilience

import (
	"context"
	
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module provides the resilience components
var Module = fx.Options(
	// Provide the circuit breaker factory
	fx.Provide(NewCircuitBreakerFactory),
	
	// Register lifecycle hooks
	fx.Invoke(registerHooks),
)

// registerHooks registers lifecycle hooks for the resilience components
func registerHooks(
	lc fx.Lifecycle,
	logger *zap.Logger,
	circuitBreaker *CircuitBreakerFactory,
) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("Starting resilience components")
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("Stopping resilience components")

			// Log circuit breaker metrics for the breakers the storage
			// and settlement layers dial through.
			metrics := circuitBreaker.GetMetrics()
			for _, name := range []string{"storage-warm-write", "settlement-gateway"} {
				logger.Info("Circuit breaker metrics",
					zap.String("name", name),
					zap.String("state", circuitBreaker.GetState(name).String()),
					zap.Int64("executions", metrics.GetExecutionCount(name)),
					zap.Int64("successes", metrics.GetSuccessCount(name)),
					zap.Int64("failures", metrics.GetFailureCount(name)),
					zap.Float64("success_rate", metrics.GetSuccessRate(name)))
			}

			return nil
		},
	})
}

