package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "etl.yml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "postgres_dsn: postgres://localhost/etl\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Interval != 5*time.Minute {
		t.Errorf("interval = %v", cfg.Interval)
	}
	if cfg.MetricsAddr != ":9090" {
		t.Errorf("metrics_addr = %q", cfg.MetricsAddr)
	}
	if len(cfg.Sources) != 3 {
		t.Errorf("sources = %v", cfg.Sources)
	}
}

func TestLoadFile(t *testing.T) {
	path := writeConfig(t, `
postgres_dsn: postgres://db:5432/metrics
clickhouse_dsn: clickhouse://ch:9000/metrics
sources:
  - csv
  - coingecko
interval: 90s
lease_ttl: 2m
csv_path: /srv/drops/latest.csv
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.PostgresDSN != "postgres://db:5432/metrics" {
		t.Errorf("postgres_dsn = %q", cfg.PostgresDSN)
	}
	if cfg.Interval != 90*time.Second {
		t.Errorf("interval = %v", cfg.Interval)
	}
	if cfg.LeaseTTL != 2*time.Minute {
		t.Errorf("lease_ttl = %v", cfg.LeaseTTL)
	}
	sources := cfg.SourceList()
	if len(sources) != 2 || sources[1].String() != "coingecko" {
		t.Errorf("sources = %v", sources)
	}
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("ETL_METRICS_ADDR", ":8080")
	cfg, err := Load(writeConfig(t, "postgres_dsn: postgres://localhost/etl\n"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.MetricsAddr != ":8080" {
		t.Errorf("metrics_addr = %q, want env override", cfg.MetricsAddr)
	}
}

func TestValidateRejectsUnknownSource(t *testing.T) {
	_, err := Load(writeConfig(t, "sources: [coingecko, kraken]\n"))
	if err == nil {
		t.Fatal("expected error for unknown source")
	}
}

func TestValidateRejectsDuplicateSource(t *testing.T) {
	_, err := Load(writeConfig(t, "sources: [csv, csv]\n"))
	if err == nil {
		t.Fatal("expected error for duplicate source")
	}
}

func TestValidateRejectsNonPositiveInterval(t *testing.T) {
	_, err := Load(writeConfig(t, "interval: -10s\n"))
	if err == nil {
		t.Fatal("expected error for negative interval")
	}
}
