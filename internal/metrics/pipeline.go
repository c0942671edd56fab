// Package metrics exposes Prometheus instrumentation for the analytics pipeline.
package metrics

import (
	"errors"
	"time"

	"github.com/lee-tech/analytics/internal/constants"
	"github.com/lee-tech/analytics/internal/fetcher"
	"github.com/lee-tech/analytics/internal/server"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/multierr"
)

const namespace = "report_analytics"

// Refresh outcomes.
const (
	OutcomeComplete   = "complete"
	OutcomePartial    = "partial"
	OutcomeSuperseded = "superseded"
	OutcomeCanceled   = "canceled"
	OutcomeError      = "error"
)

// PipelineMetrics records fetch latency, refresh outcomes and the size of the
// last dashboard's fault lists.
type PipelineMetrics struct {
	fetchDuration   *prometheus.HistogramVec
	fetchFailures   *prometheus.CounterVec
	refreshes       *prometheus.CounterVec
	refreshDuration prometheus.Histogram
	integrityFaults prometheus.Gauge
	skippedStats    prometheus.Gauge
	partial         prometheus.Gauge
	cacheHits       *prometheus.CounterVec
}

// NewPipelineMetrics creates the collectors and registers them with reg.
func NewPipelineMetrics(reg prometheus.Registerer) (*PipelineMetrics, error) {
	m := &PipelineMetrics{
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "source_fetch_duration_seconds",
			Help:      "Latency of individual source fetches.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"source", "status"}),
		fetchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "source_fetch_failures_total",
			Help:      "Source fetches that produced a SourceUnavailable fault.",
		}, []string{"source"}),
		refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "refresh_total",
			Help:      "Refresh cycles by outcome.",
		}, []string{"outcome"}),
		refreshDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "refresh_duration_seconds",
			Help:      "End-to-end duration of refresh cycles.",
			Buckets:   prometheus.DefBuckets,
		}),
		integrityFaults: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "integrity_faults",
			Help:      "Departments with a dangling branch reference in the last dashboard.",
		}),
		skippedStats: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "skipped_statistics",
			Help:      "Malformed stat entries skipped in the last dashboard.",
		}),
		partial: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dashboard_partial",
			Help:      "1 when the last dashboard was built from a partial snapshot.",
		}),
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dashboard_requests_total",
			Help:      "Dashboard requests by how they were served.",
		}, []string{"served_from"}),
	}

	if reg == nil {
		return m, nil
	}
	var err error
	m.fetchDuration = register(reg, m.fetchDuration, &err)
	m.fetchFailures = register(reg, m.fetchFailures, &err)
	m.refreshes = register(reg, m.refreshes, &err)
	m.refreshDuration = register(reg, m.refreshDuration, &err)
	m.integrityFaults = register(reg, m.integrityFaults, &err)
	m.skippedStats = register(reg, m.skippedStats, &err)
	m.partial = register(reg, m.partial, &err)
	m.cacheHits = register(reg, m.cacheHits, &err)
	if err != nil {
		return nil, err
	}
	return m, nil
}

// register adds c to reg, reusing an identical collector that is already
// registered. Other failures are appended to errp.
func register[C prometheus.Collector](reg prometheus.Registerer, c C, errp *error) C {
	err := reg.Register(c)
	if err == nil {
		return c
	}
	var already prometheus.AlreadyRegisteredError
	if errors.As(err, &already) {
		if existing, ok := already.ExistingCollector.(C); ok {
			return existing
		}
	}
	*errp = multierr.Append(*errp, err)
	return c
}

// ObserveFetch implements fetcher.Recorder.
func (m *PipelineMetrics) ObserveFetch(source fetcher.SourceName, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
		m.fetchFailures.WithLabelValues(string(source)).Inc()
	}
	m.fetchDuration.WithLabelValues(string(source), status).Observe(elapsed.Seconds())
}

// ObserveRefresh counts one refresh cycle.
func (m *PipelineMetrics) ObserveRefresh(outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.refreshes.WithLabelValues(outcome).Inc()
	m.refreshDuration.Observe(elapsed.Seconds())
}

// ObserveDashboard records the fault sizes of a freshly built dashboard.
func (m *PipelineMetrics) ObserveDashboard(partial bool, integrityFaults, skipped int) {
	if m == nil {
		return
	}
	if partial {
		m.partial.Set(1)
	} else {
		m.partial.Set(0)
	}
	m.integrityFaults.Set(float64(integrityFaults))
	m.skippedStats.Set(float64(skipped))
}

// ObserveServed counts a dashboard request by where it was served from:
// "memory", "cache" or "refresh".
func (m *PipelineMetrics) ObserveServed(from string) {
	if m == nil {
		return
	}
	m.cacheHits.WithLabelValues(from).Inc()
}

func init() {
	server.RegisterRepository(constants.ComponentKey.PipelineMetrics, func(app *server.HTTPApp) (interface{}, error) {
		return NewPipelineMetrics(app.Metrics)
	})
}
