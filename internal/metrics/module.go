package metrics

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/latticefi/dexcore/internal/config"
)

// Module provides the metrics registry, the Matching collector, and the
// /metrics HTTP exposition endpoint, grounded on the teacher's
// internal/metrics/metrics_module.go.
var Module = fx.Options(
	fx.Provide(
		newRegistry,
		newMatching,
	),
	fx.Invoke(registerMetricsServer),
)

func newRegistry() *prometheus.Registry {
	return prometheus.NewRegistry()
}

// newMatching adapts the concrete *prometheus.Registry fx provides into the
// prometheus.Registerer interface New expects — fx matches constructor
// parameters by concrete type, not interface satisfaction, so this thin
// wrapper is where the implicit conversion happens (same shape as the
// teacher's NewWebSocketMetrics/NewPeerJSMetrics wrappers).
func newMatching(registry *prometheus.Registry) *Matching {
	return New(registry)
}

func registerMetricsServer(lc fx.Lifecycle, registry *prometheus.Registry, cfg *config.Config, logger *zap.Logger) {
	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Monitoring.PrometheusPort),
		Handler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					logger.Error("metrics: server error", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return server.Shutdown(ctx)
		},
	})
}
