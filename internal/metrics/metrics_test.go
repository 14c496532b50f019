package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.Counter.GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, g.Write(&m))
	return m.Gauge.GetValue()
}

func TestRecordTradeIncrementsPerPairCounter(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)

	m.RecordTrade("BTC-USDT")
	m.RecordTrade("BTC-USDT")
	m.RecordTrade("ETH-USDT")

	require.Equal(t, float64(2), counterValue(t, m.tradesTotal.WithLabelValues("BTC-USDT")))
	require.Equal(t, float64(1), counterValue(t, m.tradesTotal.WithLabelValues("ETH-USDT")))
}

func TestRecordRejectionTracksPairAndCode(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)

	m.RecordRejection("BTC-USDT", "ErrFOKUnfillable")
	m.RecordRejection("BTC-USDT", "ErrFOKUnfillable")
	m.RecordRejection("BTC-USDT", "ErrPriceBandBreach")

	require.Equal(t, float64(2), counterValue(t, m.rejectionsTotal.WithLabelValues("BTC-USDT", "ErrFOKUnfillable")))
	require.Equal(t, float64(1), counterValue(t, m.rejectionsTotal.WithLabelValues("BTC-USDT", "ErrPriceBandBreach")))
}

func TestSetArchivalLagSecondsReportsGauge(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)

	m.SetArchivalLagSeconds(12.5)
	require.Equal(t, 12.5, gaugeValue(t, m.archivalLag))
}

func TestSetBookDepthTracksPairAndSide(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)

	m.SetBookDepth("BTC-USDT", "bid", 42)
	require.Equal(t, float64(42), gaugeValue(t, m.bookDepth.WithLabelValues("BTC-USDT", "bid")))
}

func TestObserveMatchLatencyDoesNotPanic(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := New(registry)
	require.NotPanics(t, func() { m.ObserveMatchLatencySeconds(0.002) })
}
