package reporting

import (
	"fmt"
	"strings"
	"time"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	sb.WriteString("# ETL Health Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Window: last %d runs per source\n\n", r.RunsWindow))

	sb.WriteString("## Source Health\n\n")
	if len(r.SourceHealth) > 0 {
		sb.WriteString("| Source | Runs | OK | Partial | Failed | Failure% | AvgDuration | Seen | Dropped | Quarantined | Upserted | Last Success | Checkpoint |\n")
		sb.WriteString("|--------|------|----|---------|--------|----------|-------------|------|---------|-------------|----------|--------------|------------|\n")
		for _, row := range r.SourceHealth {
			sb.WriteString(fmt.Sprintf("| %s | %d | %d | %d | %d | %.1f | %s | %d | %d | %d | %d | %s | %s |\n",
				row.Source, row.Runs, row.Succeeded, row.Partial, row.Failed, row.FailureRate*100,
				row.AvgDuration.Round(time.Millisecond),
				row.RecordsSeen, row.RecordsDropped, row.RecordsQuarantined, row.RecordsUpserted,
				formatTime(row.LastSuccess), formatTime(row.LastCheckpoint)))
		}
	} else {
		sb.WriteString("No runs recorded.\n")
	}
	sb.WriteString("\n")

	sb.WriteString("## Anomalies\n\n")
	if len(r.Anomalies) > 0 {
		sb.WriteString("| Source | Kind | Detail |\n")
		sb.WriteString("|--------|------|--------|\n")
		for _, a := range r.Anomalies {
			sb.WriteString(fmt.Sprintf("| %s | %s | %s |\n", a.Source, a.Kind, a.Detail))
		}
	} else {
		sb.WriteString("None detected.\n")
	}
	sb.WriteString("\n")

	sb.WriteString("## Recent Assets\n\n")
	if len(r.RecentAssets) > 0 {
		sb.WriteString("| Symbol | Name | Slug | Created |\n")
		sb.WriteString("|--------|------|------|--------|\n")
		for _, a := range r.RecentAssets {
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %s |\n",
				a.Symbol, a.Name, a.Slug, a.CreatedAt.Format(time.RFC3339)))
		}
	} else {
		sb.WriteString("No assets resolved yet.\n")
	}
	sb.WriteString("\n")

	return sb.String()
}

func formatTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(time.RFC3339)
}
