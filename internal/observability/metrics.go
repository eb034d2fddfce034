// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Window fetch metrics
	WindowsAttempted prometheus.Counter
	WindowsSucceeded prometheus.Counter
	WindowsEmpty     prometheus.Counter
	WindowsSkipped   *prometheus.CounterVec
	FetchLatency     prometheus.Histogram
	RecordsFetched   prometheus.Counter

	// Rate resolution metrics
	RateLookups   prometheus.Counter
	RateFallbacks prometheus.Counter

	// Aggregation / merge metrics
	RowsAggregated prometheus.Counter
	DatasetRows    prometheus.Gauge
	MergeDuration  prometheus.Histogram

	// Run metrics
	RunsTotal   *prometheus.CounterVec
	RunDuration prometheus.Histogram

	// Health metrics
	LastSuccessfulRun prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "dlr_aggregator"
	}

	return &Metrics{
		WindowsAttempted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "windows_attempted_total",
			Help:      "Total number of report windows attempted",
		}),
		WindowsSucceeded: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "windows_succeeded_total",
			Help:      "Total number of report windows fetched and aggregated",
		}),
		WindowsEmpty: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "windows_empty_total",
			Help:      "Total number of windows with a valid but empty payload",
		}),
		WindowsSkipped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "windows_skipped_total",
			Help:      "Total number of windows skipped by failure type",
		}, []string{"reason"}),
		FetchLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "window_latency_seconds",
			Help:      "Report download latency per window in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300},
		}),
		RecordsFetched: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "fetch",
			Name:      "records_fetched_total",
			Help:      "Total number of raw records decoded from payloads",
		}),

		RateLookups: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rates",
			Name:      "lookups_total",
			Help:      "Total number of external rate source lookups",
		}),
		RateFallbacks: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "rates",
			Name:      "fallbacks_total",
			Help:      "Total number of rate lookups served by a static fallback",
		}),

		RowsAggregated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "aggregate",
			Name:      "rows_total",
			Help:      "Total number of aggregate rows produced",
		}),
		DatasetRows: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "aggregate",
			Name:      "dataset_rows",
			Help:      "Row count of the persisted dataset after the last merge",
		}),
		MergeDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "aggregate",
			Name:      "merge_duration_seconds",
			Help:      "Merge and re-aggregation duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),

		RunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "runs_total",
			Help:      "Total number of pipeline runs by status",
		}, []string{"status"}),
		RunDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "pipeline",
			Name:      "run_duration_seconds",
			Help:      "Full pipeline run duration in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		}),

		LastSuccessfulRun: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_run_timestamp",
			Help:      "Unix timestamp of the last successful pipeline run",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordWindowSkipped increments the skipped-window counter for a reason.
func RecordWindowSkipped(reason string) {
	DefaultMetrics.WindowsSkipped.WithLabelValues(reason).Inc()
}

// RecordWindowSucceeded increments the succeeded-window counter.
func RecordWindowSucceeded() {
	DefaultMetrics.WindowsSucceeded.Inc()
}

// RecordWindowEmpty increments the empty-window counter.
func RecordWindowEmpty() {
	DefaultMetrics.WindowsEmpty.Inc()
}
