// Package metrics provides Prometheus metrics for the detection pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"plus-ev-alerts/internal/engine"
)

// Run statuses.
const (
	StatusOK      = "ok"
	StatusError   = "error"
	StatusSkipped = "skipped"
)

// Metrics holds every collector on a private registry. A nil *Metrics is
// valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	RunsTotal       *prometheus.CounterVec
	RunDuration     prometheus.Histogram
	InputRows       *prometheus.GaugeVec
	RowsDropped     *prometheus.CounterVec
	PlusEVLines     prometheus.Gauge
	Recommendations prometheus.Counter
	ArchiveSize     prometheus.Gauge
	Notifications   *prometheus.CounterVec
}

// New creates the collectors and registers them together with the Go runtime collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		RunsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "evwatcher_runs_total",
				Help: "Pipeline runs by outcome",
			},
			[]string{"status"},
		),
		RunDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "evwatcher_run_duration_seconds",
				Help:    "Wall time of one pipeline run",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
			},
		),
		InputRows: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "evwatcher_input_rows",
				Help: "Rows read by the last run per feed",
			},
			[]string{"feed"},
		),
		RowsDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "evwatcher_rows_dropped_total",
				Help: "Rows excluded from evaluation by reason",
			},
			[]string{"reason"},
		),
		PlusEVLines: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "evwatcher_plus_ev_lines",
				Help: "Positive expected value lines found by the last run",
			},
		),
		Recommendations: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "evwatcher_recommendations_total",
				Help: "Opportunities recommended for the first time",
			},
		),
		ArchiveSize: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "evwatcher_archive_size",
				Help: "Opportunities in the recommendation archive",
			},
		),
		Notifications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "evwatcher_notifications_total",
				Help: "Notification deliveries by channel and status",
			},
			[]string{"channel", "status"},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.RunsTotal,
		m.RunDuration,
		m.InputRows,
		m.RowsDropped,
		m.PlusEVLines,
		m.Recommendations,
		m.ArchiveSize,
		m.Notifications,
	)
	return m
}

// Registry exposes the registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return prometheus.NewRegistry()
	}
	return m.registry
}

// ObserveRun records the outcome and duration of one run.
func (m *Metrics) ObserveRun(status string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.RunsTotal.WithLabelValues(status).Inc()
	if status != StatusSkipped {
		m.RunDuration.Observe(elapsed.Seconds())
	}
}

// ObserveResult records the table sizes and drop counts of a finished run.
func (m *Metrics) ObserveResult(res *engine.Result) {
	if m == nil || res == nil {
		return
	}
	d := res.Diagnostics
	m.InputRows.WithLabelValues("quotes").Set(float64(d.QuotesIn))
	m.InputRows.WithLabelValues("consensus").Set(float64(d.ConsensusIn))
	for reason, n := range d.Counts() {
		m.RowsDropped.WithLabelValues(string(reason)).Add(float64(n))
	}
	m.PlusEVLines.Set(float64(len(res.PlusEV)))
	m.Recommendations.Add(float64(len(res.New)))
	m.ArchiveSize.Set(float64(len(res.Archive)))
}

// NotificationSent records one delivery attempt.
func (m *Metrics) NotificationSent(channel string, err error) {
	if m == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.Notifications.WithLabelValues(channel, status).Inc()
}
