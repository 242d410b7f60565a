// Package main generates an ETL health report from stored job history.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"crypto-metrics-etl/internal/reporting"
	"crypto-metrics-etl/internal/storage"
	pgstore "crypto-metrics-etl/internal/storage/postgres"
)

func main() {
	outputDir := flag.String("output-dir", "output", "Output directory for generated files")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("ETL_POSTGRES_DSN"), "PostgreSQL connection string")
	staleAfter := flag.Duration("stale-after", 30*time.Minute, "Flag sources without a success within this duration")
	stdout := flag.Bool("stdout", false, "Print the report instead of writing a file")
	flag.Parse()

	ctx := context.Background()

	if *postgresDSN == "" {
		fmt.Fprintln(os.Stderr, "Error: --postgres-dsn (or ETL_POSTGRES_DSN) is required")
		os.Exit(1)
	}

	jobs, assets, cleanup, err := createStores(ctx, *postgresDSN)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error connecting to database: %v\n", err)
		os.Exit(1)
	}
	defer cleanup()

	generator := reporting.NewGenerator(jobs, assets).WithStaleAfter(*staleAfter)
	report, err := generator.Generate(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating report: %v\n", err)
		os.Exit(1)
	}

	md := reporting.RenderMarkdown(report)

	if *stdout {
		fmt.Print(md)
		return
	}

	if err := os.MkdirAll(*outputDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "Error creating output directory: %v\n", err)
		os.Exit(1)
	}
	path := filepath.Join(*outputDir, "ETL_HEALTH.md")
	if err := os.WriteFile(path, []byte(md), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing report: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Report written to %s\n", path)
	if len(report.Anomalies) > 0 {
		fmt.Printf("%d anomalies detected\n", len(report.Anomalies))
		os.Exit(2)
	}
}

// createStores connects to PostgreSQL and creates the stores the report
// reads from.
func createStores(ctx context.Context, dsn string) (storage.JobStore, storage.AssetStore, func(), error) {
	pool, err := pgstore.NewPool(ctx, dsn)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	return pgstore.NewJobStore(pool), pgstore.NewAssetStore(pool), pool.Close, nil
}
