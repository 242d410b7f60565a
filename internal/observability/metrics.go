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
	// ETL cycle metrics
	CyclesTotal   *prometheus.CounterVec
	CycleDuration *prometheus.HistogramVec

	// Record metrics
	RecordsSeen        *prometheus.CounterVec
	RecordsDropped     *prometheus.CounterVec
	RecordsQuarantined *prometheus.CounterVec
	RecordsUpserted    *prometheus.CounterVec

	// Extraction metrics
	ExtractRetries *prometheus.CounterVec

	// Resolution metrics
	AssetsCreated      prometheus.Counter
	ResolutionFailures *prometheus.CounterVec

	// Drift metrics
	DriftFindings *prometheus.CounterVec

	// Archive metrics
	ArchiveBatches prometheus.Counter
	ArchiveErrors  prometheus.Counter

	// Health metrics
	LastSuccessfulCycle *prometheus.GaugeVec
	CheckpointTimestamp *prometheus.GaugeVec
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "crypto_metrics_etl"
	}

	return &Metrics{
		CyclesTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "etl",
			Name:      "cycles_total",
			Help:      "Total number of ETL cycles by source and status",
		}, []string{"source", "status"}),
		CycleDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "etl",
			Name:      "cycle_duration_seconds",
			Help:      "ETL cycle duration in seconds",
			Buckets:   []float64{0.5, 1, 5, 10, 30, 60, 120, 300},
		}, []string{"source"}),

		RecordsSeen: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "etl",
			Name:      "records_seen_total",
			Help:      "Total number of records extracted by source",
		}, []string{"source"}),
		RecordsDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "etl",
			Name:      "records_dropped_total",
			Help:      "Total number of malformed records dropped by source",
		}, []string{"source"}),
		RecordsQuarantined: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "etl",
			Name:      "records_quarantined_total",
			Help:      "Total number of records quarantined by drift blocking",
		}, []string{"source"}),
		RecordsUpserted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "etl",
			Name:      "records_upserted_total",
			Help:      "Total number of observations upserted by source",
		}, []string{"source"}),

		ExtractRetries: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingestion",
			Name:      "extract_retries_total",
			Help:      "Total number of extraction retries by source",
		}, []string{"source"}),

		AssetsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resolution",
			Name:      "assets_created_total",
			Help:      "Total number of canonical assets created",
		}),
		ResolutionFailures: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resolution",
			Name:      "failures_total",
			Help:      "Total number of resolution failures by source",
		}, []string{"source"}),

		DriftFindings: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "drift",
			Name:      "findings_total",
			Help:      "Total number of drift findings by source and level",
		}, []string{"source", "level"}),

		ArchiveBatches: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "batches_total",
			Help:      "Total number of batches appended to the archive",
		}),
		ArchiveErrors: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "archive",
			Name:      "errors_total",
			Help:      "Total number of archive append failures",
		}),

		LastSuccessfulCycle: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_cycle_timestamp",
			Help:      "Unix timestamp of the last successful cycle by source",
		}, []string{"source"}),
		CheckpointTimestamp: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "checkpoint_timestamp",
			Help:      "Unix timestamp of the current checkpoint by source",
		}, []string{"source"}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
