// Package metrics collects ambient prometheus instrumentation for the
// matching core: match latency, trade throughput, and archival lag
// (SPEC_FULL.md §6 — observability, not a spec feature).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Matching holds the counters/histograms exercised by the matching engine
// and the storage archival sweep, grounded on the teacher's
// WebSocketMetrics (internal/metrics/websocket_metrics.go): one struct per
// subsystem, prometheus.NewX constructors, registered once via
// MustRegister at construction time.
type Matching struct {
	matchLatency    prometheus.Histogram
	tradesTotal     *prometheus.CounterVec
	ordersTotal     *prometheus.CounterVec
	rejectionsTotal *prometheus.CounterVec
	archivalLag     prometheus.Gauge
	bookDepth       *prometheus.GaugeVec
}

// New builds a Matching metrics collector and registers it with registry.
func New(registry prometheus.Registerer) *Matching {
	m := &Matching{
		matchLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dexcore_match_latency_seconds",
			Help:    "Time to run one PlaceOrder call through validate/match/commit",
			Buckets: prometheus.ExponentialBuckets(0.0001, 2, 12), // 100us to ~0.2s
		}),
		tradesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dexcore_trades_total",
			Help: "Total number of trades printed, by pair",
		}, []string{"pair"}),
		ordersTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dexcore_orders_total",
			Help: "Total number of orders accepted, by pair and type",
		}, []string{"pair", "type"}),
		rejectionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dexcore_order_rejections_total",
			Help: "Total number of orders rejected, by pair and error code",
		}, []string{"pair", "code"}),
		archivalLag: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dexcore_archival_lag_seconds",
			Help: "Age of the oldest unarchived warm-tier record",
		}),
		bookDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "dexcore_book_depth",
			Help: "Number of resting orders per pair and side",
		}, []string{"pair", "side"}),
	}

	registry.MustRegister(
		m.matchLatency,
		m.tradesTotal,
		m.ordersTotal,
		m.rejectionsTotal,
		m.archivalLag,
		m.bookDepth,
	)
	return m
}

// ObserveMatchLatencySeconds records the wall-clock cost of one
// validate/match/commit pass.
func (m *Matching) ObserveMatchLatencySeconds(seconds float64) {
	m.matchLatency.Observe(seconds)
}

// RecordTrade increments the trade counter for pair.
func (m *Matching) RecordTrade(pair string) {
	m.tradesTotal.WithLabelValues(pair).Inc()
}

// RecordOrderAccepted increments the accepted-order counter for pair/orderType.
func (m *Matching) RecordOrderAccepted(pair, orderType string) {
	m.ordersTotal.WithLabelValues(pair, orderType).Inc()
}

// RecordRejection increments the rejection counter for pair/errorCode.
func (m *Matching) RecordRejection(pair, code string) {
	m.rejectionsTotal.WithLabelValues(pair, code).Inc()
}

// SetArchivalLagSeconds reports the current archival-sweep lag.
func (m *Matching) SetArchivalLagSeconds(seconds float64) {
	m.archivalLag.Set(seconds)
}

// SetBookDepth reports the current resting-order count for pair/side.
func (m *Matching) SetBookDepth(pair, side string, depth int) {
	m.bookDepth.WithLabelValues(pair, side).Set(float64(depth))
}
