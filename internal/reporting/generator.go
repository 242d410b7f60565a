package reporting

import (
	"context"
	"fmt"
	"sort"
	"time"

	"crypto-metrics-etl/internal/domain"
	"crypto-metrics-etl/internal/storage"
)

// Defaults for anomaly detection.
const (
	defaultRunsWindow   = 20
	defaultStaleAfter   = 30 * time.Minute
	failureRateLimit    = 0.5
	minRunsForAnomalies = 3
	outlierFactor       = 3.0
	recentAssetLimit    = 10
)

// Generator produces reports from stored job history.
type Generator struct {
	jobs   storage.JobStore
	assets storage.AssetStore

	runsWindow int
	staleAfter time.Duration
	now        func() time.Time // injectable clock for deterministic output
}

// NewGenerator creates a report generator.
func NewGenerator(jobs storage.JobStore, assets storage.AssetStore) *Generator {
	return &Generator{
		jobs:       jobs,
		assets:     assets,
		runsWindow: defaultRunsWindow,
		staleAfter: defaultStaleAfter,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// WithStaleAfter sets how old the last success may be before the source
// is flagged stale.
func (g *Generator) WithStaleAfter(d time.Duration) *Generator {
	g.staleAfter = d
	return g
}

// Generate produces a report over the most recent runs of every source.
func (g *Generator) Generate(ctx context.Context) (*Report, error) {
	report := &Report{
		GeneratedAt: g.now(),
		RunsWindow:  g.runsWindow,
	}

	for _, source := range domain.AllSources() {
		runs, err := g.jobs.ListBySource(ctx, source, g.runsWindow)
		if err != nil {
			return nil, fmt.Errorf("list runs for %s: %w", source, err)
		}
		if len(runs) == 0 {
			continue
		}

		row := summarize(source, runs)
		report.SourceHealth = append(report.SourceHealth, row)
		report.Anomalies = append(report.Anomalies, g.detectAnomalies(row, runs)...)
	}

	sort.Slice(report.SourceHealth, func(i, j int) bool {
		return report.SourceHealth[i].Source < report.SourceHealth[j].Source
	})

	assets, err := g.assets.ListAssets(ctx, recentAssetLimit, 0)
	if err != nil {
		return nil, fmt.Errorf("list assets: %w", err)
	}
	for _, a := range assets {
		report.RecentAssets = append(report.RecentAssets, AssetRow{
			ID:        a.ID,
			Symbol:    a.Symbol,
			Name:      a.Name,
			Slug:      a.Slug,
			CreatedAt: a.CreatedAt,
		})
	}

	return report, nil
}

// summarize folds a source's runs into one health row.
func summarize(source domain.Source, runs []*domain.JobRun) SourceHealthRow {
	row := SourceHealthRow{Source: source.String(), Runs: len(runs)}

	var totalDuration time.Duration
	var finished int
	for _, run := range runs {
		switch run.Status {
		case domain.JobSuccess:
			row.Succeeded++
		case domain.JobPartial:
			row.Partial++
		case domain.JobFailed:
			row.Failed++
		}
		if run.Status.Committed() {
			if row.LastSuccess == nil || run.StartedAt.After(*row.LastSuccess) {
				t := run.StartedAt
				row.LastSuccess = &t
			}
			if run.Checkpoint != nil &&
				(row.LastCheckpoint == nil || run.Checkpoint.After(*row.LastCheckpoint)) {
				t := *run.Checkpoint
				row.LastCheckpoint = &t
			}
		}

		row.RecordsSeen += run.RecordsSeen
		row.RecordsDropped += run.RecordsDropped
		row.RecordsQuarantined += run.RecordsQuarantined
		row.RecordsUpserted += run.RecordsUpserted

		if run.FinishedAt != nil {
			totalDuration += run.FinishedAt.Sub(run.StartedAt)
			finished++
		}
	}

	if row.Runs > 0 {
		row.FailureRate = float64(row.Failed) / float64(row.Runs)
	}
	if finished > 0 {
		row.AvgDuration = totalDuration / time.Duration(finished)
	}
	return row
}

// detectAnomalies flags failure spikes, duration outliers and stale
// checkpoints for one source.
func (g *Generator) detectAnomalies(row SourceHealthRow, runs []*domain.JobRun) []AnomalyRow {
	var out []AnomalyRow

	if row.Runs >= minRunsForAnomalies && row.FailureRate > failureRateLimit {
		out = append(out, AnomalyRow{
			Source: row.Source,
			Kind:   AnomalyFailureRate,
			Detail: fmt.Sprintf("%d of %d recent runs failed (%.0f%%)",
				row.Failed, row.Runs, row.FailureRate*100),
		})
	}

	if outlier, median := durationOutlier(runs); outlier != nil {
		out = append(out, AnomalyRow{
			Source: row.Source,
			Kind:   AnomalyDurationOutlier,
			Detail: fmt.Sprintf("run %d took %s, median is %s",
				outlier.ID, outlier.FinishedAt.Sub(outlier.StartedAt).Round(time.Millisecond),
				median.Round(time.Millisecond)),
		})
	}

	if row.LastSuccess != nil && g.now().Sub(*row.LastSuccess) > g.staleAfter {
		out = append(out, AnomalyRow{
			Source: row.Source,
			Kind:   AnomalyStaleCheckpoint,
			Detail: fmt.Sprintf("no successful run since %s",
				row.LastSuccess.Format(time.RFC3339)),
		})
	}

	return out
}

// durationOutlier returns the newest finished run whose duration exceeds
// outlierFactor times the median, along with the median. Needs at least
// minRunsForAnomalies finished runs to say anything.
func durationOutlier(runs []*domain.JobRun) (*domain.JobRun, time.Duration) {
	var durations []time.Duration
	var finished []*domain.JobRun
	for _, run := range runs {
		if run.FinishedAt == nil {
			continue
		}
		durations = append(durations, run.FinishedAt.Sub(run.StartedAt))
		finished = append(finished, run)
	}
	if len(finished) < minRunsForAnomalies {
		return nil, 0
	}

	sorted := make([]time.Duration, len(durations))
	copy(sorted, durations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	median := sorted[len(sorted)/2]
	if median <= 0 {
		return nil, 0
	}

	for i, d := range durations {
		if float64(d) > float64(median)*outlierFactor {
			return finished[i], median
		}
	}
	return nil, 0
}
