// Package metrics exposes ingestion counters and timings to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sheetload"

// File outcomes.
const (
	OutcomeLoaded     = "loaded"
	OutcomeFailed     = "failed"
	OutcomeUndetected = "undetected"
)

// Metrics holds the collectors. A nil *Metrics records nothing.
type Metrics struct {
	registry *prometheus.Registry

	files           *prometheus.CounterVec
	rows            *prometheus.CounterVec
	writes          *prometheus.HistogramVec
	runs            *prometheus.CounterVec
	runDuration     prometheus.Histogram
	activeRuns      prometheus.Gauge
	settingsReloads prometheus.Counter
}

// New registers the collectors, plus Go runtime and process collectors, on
// a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		files: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_total",
			Help:      "Files processed, by file type and outcome.",
		}, []string{"type", "outcome"}),
		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_written_total",
			Help:      "Rows written to the sink, by file type and write mode.",
		}, []string{"type", "mode"}),
		writes: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "write_duration_seconds",
			Help:      "Duration of sink writes.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"type", "mode"}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Ingestion runs, by status.",
		}, []string{"status"}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of ingestion runs.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 14),
		}),
		activeRuns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_runs",
			Help:      "Runs currently in progress.",
		}),
		settingsReloads: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "settings_reloads_total",
			Help:      "Settings document reloads.",
		}),
	}

	reg.MustRegister(
		m.files, m.rows, m.writes, m.runs, m.runDuration, m.activeRuns, m.settingsReloads,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

func (m *Metrics) FileProcessed(typeName, outcome string) {
	if m == nil {
		return
	}
	if typeName == "" {
		typeName = "unknown"
	}
	m.files.WithLabelValues(typeName, outcome).Inc()
}

func (m *Metrics) WriteFinished(typeName, mode string, rows int64, d time.Duration) {
	if m == nil {
		return
	}
	m.rows.WithLabelValues(typeName, mode).Add(float64(rows))
	m.writes.WithLabelValues(typeName, mode).Observe(d.Seconds())
}

func (m *Metrics) RunStarted() {
	if m == nil {
		return
	}
	m.activeRuns.Inc()
}

func (m *Metrics) RunFinished(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.activeRuns.Dec()
	m.runs.WithLabelValues(status).Inc()
	m.runDuration.Observe(d.Seconds())
}

func (m *Metrics) SettingsReloaded() {
	if m == nil {
		return
	}
	m.settingsReloads.Inc()
}
