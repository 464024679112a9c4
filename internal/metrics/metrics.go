// Package metrics exposes the Prometheus instrumentation for the scan
// pipeline and the audit ledger.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Collector bundles every metric on a private registry so tests can build
// isolated instances.
type Collector struct {
	registry *prometheus.Registry

	ScanDuration  prometheus.Histogram
	ScanSymbols   prometheus.Counter
	Decisions     *prometheus.CounterVec
	FetchFailures *prometheus.CounterVec
	FallbackMode  prometheus.Gauge
	LedgerAppends prometheus.Counter
	RegimeGauge   *prometheus.GaugeVec
}

func NewCollector() *Collector {
	c := &Collector{registry: prometheus.NewRegistry()}

	c.ScanDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "signalcore",
		Name:      "scan_duration_seconds",
		Help:      "Wall time of a full scan cycle",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
	})
	c.ScanSymbols = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "signalcore",
		Name:      "scan_symbols_total",
		Help:      "Symbols processed across all scan cycles",
	})
	c.Decisions = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "signalcore",
		Name:      "decisions_total",
		Help:      "Governing decisions by outcome and rejection reason",
	}, []string{"outcome", "reason"})
	c.FetchFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "signalcore",
		Name:      "fetch_failures_total",
		Help:      "Bar fetch failures by kind",
	}, []string{"kind"})
	c.FallbackMode = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "signalcore",
		Name:      "scan_fallback_mode",
		Help:      "1 while the orchestrator runs sequential fallback",
	})
	c.LedgerAppends = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "signalcore",
		Name:      "ledger_appends_total",
		Help:      "Entries appended to the audit ledger",
	})
	c.RegimeGauge = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "signalcore",
		Name:      "regime_probability",
		Help:      "Latest regime probabilities per symbol",
	}, []string{"symbol", "regime"})

	c.registry.MustRegister(
		c.ScanDuration, c.ScanSymbols, c.Decisions, c.FetchFailures,
		c.FallbackMode, c.LedgerAppends, c.RegimeGauge,
	)
	return c
}

// Registry exposes the underlying registry for the /metrics handler.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// RecordDecision tallies one governing outcome.
func (c *Collector) RecordDecision(accepted bool, reason string) {
	if accepted {
		c.Decisions.WithLabelValues("accepted", "").Inc()
		return
	}
	c.Decisions.WithLabelValues("rejected", reason).Inc()
}
