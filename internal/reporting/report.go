// Package reporting summarizes ETL job history into operator reports.
package reporting

import "time"

// Report is an operational summary of recent ETL activity.
type Report struct {
	GeneratedAt time.Time
	RunsWindow  int // runs per source considered

	SourceHealth []SourceHealthRow
	Anomalies    []AnomalyRow

	// Newest canonical assets, for a quick look at what resolution
	// has been producing.
	RecentAssets []AssetRow
}

// SourceHealthRow aggregates recent runs for one source.
type SourceHealthRow struct {
	Source      string
	Runs        int
	Succeeded   int
	Partial     int
	Failed      int
	FailureRate float64

	AvgDuration time.Duration

	RecordsSeen        int
	RecordsDropped     int
	RecordsQuarantined int
	RecordsUpserted    int

	LastSuccess    *time.Time
	LastCheckpoint *time.Time
}

// Anomaly kinds.
const (
	AnomalyFailureRate     = "FAILURE_RATE"
	AnomalyDurationOutlier = "DURATION_OUTLIER"
	AnomalyStaleCheckpoint = "STALE_CHECKPOINT"
)

// AnomalyRow flags a source needing operator attention.
type AnomalyRow struct {
	Source string
	Kind   string
	Detail string
}

// AssetRow is one canonical asset in the report.
type AssetRow struct {
	ID        string
	Symbol    string
	Name      string
	Slug      string
	CreatedAt time.Time
}
