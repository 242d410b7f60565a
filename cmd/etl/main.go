// Package main runs the ETL service: scheduled extraction from all
// configured sources, entity resolution, drift gating and persistence,
// with Prometheus metrics and a health endpoint.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"crypto-metrics-etl/internal/config"
	"crypto-metrics-etl/internal/domain"
	"crypto-metrics-etl/internal/etl"
	"crypto-metrics-etl/internal/ingestion"
	"crypto-metrics-etl/internal/observability"
	"crypto-metrics-etl/internal/resolve"
	"crypto-metrics-etl/internal/storage"
	chstore "crypto-metrics-etl/internal/storage/clickhouse"
	"crypto-metrics-etl/internal/storage/memory"
	"crypto-metrics-etl/internal/storage/migrations"
	pgstore "crypto-metrics-etl/internal/storage/postgres"
)

// allStores holds all storage implementations.
type allStores struct {
	assets       storage.AssetStore
	observations storage.ObservationStore
	rawAudit     storage.RawAuditStore
	jobs         storage.JobStore
	leases       storage.LeaseStore
	archive      storage.ObservationArchive // nil without ClickHouse
}

func main() {
	configPath := flag.String("config", "", "Path to YAML config file (default: etl.yml if present)")
	mode := flag.String("mode", "serve", "Run mode: serve (scheduled) or run-once")
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string (overrides config)")
	clickhouseDSN := flag.String("clickhouse-dsn", "", "ClickHouse connection string (overrides config)")
	csvPath := flag.String("csv-path", "", "CSV drop file path (overrides config)")
	interval := flag.Duration("interval", 0, "Cycle interval (overrides config)")
	metricsAddr := flag.String("metrics-addr", "", "Metrics HTTP address (overrides config)")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL")

	flag.Parse()

	logger := log.New(os.Stdout, "[etl] ", log.LstdFlags|log.Lshortfile)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatalf("Failed to load config: %v", err)
	}
	applyOverrides(cfg, *postgresDSN, *clickhouseDSN, *csvPath, *interval, *metricsAddr)

	if !*useMemory && cfg.PostgresDSN == "" {
		logger.Fatal("postgres_dsn is required (use --use-memory for in-memory storage)")
	}
	if *mode != "serve" && *mode != "run-once" {
		logger.Fatalf("Unknown mode %q", *mode)
	}

	ctx, cancel := context.WithCancel(context.Background())

	stores, cleanup, err := createStores(ctx, cfg, *useMemory, logger)
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	adapters, err := buildAdapters(cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to build adapters: %v", err)
	}

	metrics := observability.NewMetrics("")

	resolver := resolve.NewResolver(stores.assets, logger)
	resolver.OnCreate(metrics.AssetsCreated.Inc)

	orchestrator := etl.New(etl.Options{
		AssetStore:       stores.assets,
		ObservationStore: stores.observations,
		RawAuditStore:    stores.rawAudit,
		JobStore:         stores.jobs,
		LeaseStore:       stores.leases,
		Archive:          stores.archive,
		Adapters:         adapters,
		Resolver:         resolver,
		Owner:            workerOwner(cfg.Owner),
		LeaseTTL:         cfg.LeaseTTL,
		Metrics:          metrics,
		Logger:           logger,
	})

	// Handle shutdown signals
	done := make(chan struct{})
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		select {
		case sig := <-sigCh:
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		case <-time.After(30 * time.Second):
			logger.Println("Graceful shutdown timed out after 30s, forcing exit")
			os.Exit(1)
		case <-done:
		}
	}()

	go startHTTPServer(cfg.MetricsAddr, stores, logger)

	switch *mode {
	case "run-once":
		results := orchestrator.RunAll(ctx)
		close(done)
		cancel()
		var failed int
		for _, res := range results {
			if res.Err != nil {
				failed++
				logger.Printf("%s: %v", res.Source, res.Err)
			}
		}
		if failed > 0 {
			logger.Fatalf("%d of %d cycles failed", failed, len(results))
		}
		logger.Printf("All %d cycles completed", len(results))

	case "serve":
		scheduler := etl.NewScheduler(orchestrator, cfg.Interval, logger)
		err := scheduler.Run(ctx)
		close(done)
		cancel()
		if err != nil && err != context.Canceled {
			logger.Fatalf("Scheduler error: %v", err)
		}
		logger.Println("Shutdown complete")
	}
}

// applyOverrides lets flags win over file and environment values.
func applyOverrides(cfg *config.Config, postgresDSN, clickhouseDSN, csvPath string, interval time.Duration, metricsAddr string) {
	if postgresDSN != "" {
		cfg.PostgresDSN = postgresDSN
	}
	if clickhouseDSN != "" {
		cfg.ClickHouseDSN = clickhouseDSN
	}
	if csvPath != "" {
		cfg.CSVPath = csvPath
	}
	if interval > 0 {
		cfg.Interval = interval
	}
	if metricsAddr != "" {
		cfg.MetricsAddr = metricsAddr
	}
}

// createStores creates all required stores and runs migrations.
func createStores(ctx context.Context, cfg *config.Config, useMemory bool, logger *log.Logger) (*allStores, func(), error) {
	if useMemory {
		stores := &allStores{
			assets:       memory.NewAssetStore(),
			observations: memory.NewObservationStore(),
			rawAudit:     memory.NewRawAuditStore(),
			jobs:         memory.NewJobStore(),
			leases:       memory.NewLeaseStore(),
		}
		return stores, func() {}, nil
	}

	pool, err := pgstore.NewPool(ctx, cfg.PostgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("postgres migrations: %w", err)
	}

	stores := &allStores{
		assets:       pgstore.NewAssetStore(pool),
		observations: pgstore.NewObservationStore(pool),
		rawAudit:     pgstore.NewRawAuditStore(pool),
		jobs:         pgstore.NewJobStore(pool),
		leases:       pgstore.NewLeaseStore(pool),
	}

	cleanup := func() { pool.Close() }

	// ClickHouse is optional: without it the relational store still
	// holds the full current state, only the analytics mirror is off.
	if cfg.ClickHouseDSN != "" {
		chConn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickHouseDSN)
		if err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("clickhouse migrations: %w", err)
		}
		stores.archive = chstore.NewObservationArchiveStore(chConn)
		cleanup = func() {
			chConn.Close()
			pool.Close()
		}
	} else {
		logger.Println("ClickHouse DSN not set, observation archive disabled")
	}

	return stores, cleanup, nil
}

// buildAdapters instantiates one adapter per configured source, keeping
// the configured priority order.
func buildAdapters(cfg *config.Config, logger *log.Logger) ([]ingestion.Adapter, error) {
	var adapters []ingestion.Adapter
	for _, source := range cfg.SourceList() {
		switch source {
		case domain.SourceCoinGecko:
			var opts []ingestion.CoinGeckoOption
			if cfg.CoinGeckoBaseURL != "" {
				opts = append(opts, ingestion.WithCoinGeckoBaseURL(cfg.CoinGeckoBaseURL))
			}
			if cfg.CoinGeckoAPIKey != "" {
				opts = append(opts, ingestion.WithCoinGeckoAPIKey(cfg.CoinGeckoAPIKey))
			}
			adapters = append(adapters, ingestion.NewCoinGeckoAdapter(logger, opts...))
		case domain.SourceCoinPaprika:
			var opts []ingestion.CoinPaprikaOption
			if cfg.CoinPaprikaBaseURL != "" {
				opts = append(opts, ingestion.WithCoinPaprikaBaseURL(cfg.CoinPaprikaBaseURL))
			}
			if cfg.CoinPaprikaAPIKey != "" {
				opts = append(opts, ingestion.WithCoinPaprikaAPIKey(cfg.CoinPaprikaAPIKey))
			}
			adapters = append(adapters, ingestion.NewCoinPaprikaAdapter(logger, opts...))
		case domain.SourceCSV:
			adapters = append(adapters, ingestion.NewCSVAdapter(cfg.CSVPath, logger))
		case domain.SourceExchangeWS:
			if cfg.WSURL == "" {
				return nil, fmt.Errorf("source %s requires ws_url", source)
			}
			adapters = append(adapters, ingestion.NewWSTickerAdapter(ingestion.WSTickerConfig{
				URL:              cfg.WSURL,
				SubscribeMessage: []byte(cfg.WSSubscribe),
			}, logger))
		default:
			return nil, fmt.Errorf("unknown source %s", source)
		}
	}
	return adapters, nil
}

// workerOwner derives a lease owner identity for this process.
func workerOwner(configured string) string {
	if configured != "" {
		return configured
	}
	host, err := os.Hostname()
	if err != nil {
		host = "etl"
	}
	return fmt.Sprintf("%s-%d", host, os.Getpid())
}

// startHTTPServer serves health and Prometheus metrics endpoints.
func startHTTPServer(addr string, stores *allStores, logger *log.Logger) {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	mux.Handle("/metrics", observability.Handler())

	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		runs, err := stores.jobs.ListRecent(r.Context(), 10)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		type runStatus struct {
			ID       int64      `json:"id"`
			Source   string     `json:"source"`
			Status   string     `json:"status"`
			Started  time.Time  `json:"started_at"`
			Upserted int        `json:"records_upserted"`
			Error    string     `json:"error,omitempty"`
			Finished *time.Time `json:"finished_at,omitempty"`
		}
		out := make([]runStatus, 0, len(runs))
		for _, run := range runs {
			out = append(out, runStatus{
				ID:       run.ID,
				Source:   run.Source.String(),
				Status:   string(run.Status),
				Started:  run.StartedAt,
				Finished: run.FinishedAt,
				Upserted: run.RecordsUpserted,
				Error:    run.Error,
			})
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(out)
	})

	logger.Printf("Starting HTTP server on %s", addr)
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		logger.Printf("HTTP server error: %v", err)
	}
}
