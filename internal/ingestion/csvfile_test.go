package ingestion

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"crypto-metrics-etl/internal/domain"
)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "drop.csv")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCSVExtract(t *testing.T) {
	path := writeCSV(t, `ticker,price,volume,date
BTC,50000.5,1000000,2025-06-01
ETH,3000,500000,2025-06-01T10:00:00Z
,100,1,2025-06-01
SOL,150,,2025-06-01
`)
	adapter := NewCSVAdapter(path, discard())

	batch, err := adapter.Extract(context.Background(), domain.ExtractWindow{Until: time.Now().UTC()})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(batch.Records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(batch.Records))
	}
	if batch.Dropped != 1 {
		t.Errorf("dropped = %d, want 1 (row without ticker)", batch.Dropped)
	}

	rec := batch.Records[0]
	if rec.SourceID != "BTC" || rec.SourceSymbol != "BTC" {
		t.Errorf("unexpected identity: %+v", rec)
	}
	if rec.Metrics["price_usd"] != "50000.5" {
		t.Errorf("price_usd = %v, want raw string", rec.Metrics["price_usd"])
	}
	if !rec.ObservedAt.Equal(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("observedAt = %v", rec.ObservedAt)
	}

	// SOL has an empty volume cell; the metric must be absent, not "".
	sol := batch.Records[2]
	if _, present := sol.Metrics["volume_24h"]; present {
		t.Error("empty cell must not produce a metric entry")
	}

	// The audit payload mirrors the row.
	var rowObj map[string]string
	if err := json.Unmarshal(rec.Raw, &rowObj); err != nil {
		t.Fatalf("raw payload not an object: %v", err)
	}
	if rowObj["ticker"] != "BTC" {
		t.Errorf("raw ticker = %q", rowObj["ticker"])
	}
}

func TestCSVHeaderAliases(t *testing.T) {
	path := writeCSV(t, `Symbol,Close,Vol,Timestamp
BTC,50000,1000,2025-06-01 12:00:00
`)
	adapter := NewCSVAdapter(path, discard())

	batch, err := adapter.Extract(context.Background(), domain.ExtractWindow{Until: time.Now().UTC()})
	if err != nil {
		t.Fatal(err)
	}
	if len(batch.Records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(batch.Records))
	}
	if batch.Records[0].Metrics["price_usd"] != "50000" {
		t.Errorf("price_usd = %v", batch.Records[0].Metrics["price_usd"])
	}
}

func TestCSVMissingFileIsUnavailable(t *testing.T) {
	adapter := NewCSVAdapter(filepath.Join(t.TempDir(), "absent.csv"), discard())

	_, err := adapter.Extract(context.Background(), domain.ExtractWindow{Until: time.Now().UTC()})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestCSVMissingRequiredColumnIsMalformed(t *testing.T) {
	path := writeCSV(t, `ticker,volume,date
BTC,1000,2025-06-01
`)
	adapter := NewCSVAdapter(path, discard())

	_, err := adapter.Extract(context.Background(), domain.ExtractWindow{Until: time.Now().UTC()})
	if !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed, got %v", err)
	}
}

func TestCSVWindowFilter(t *testing.T) {
	path := writeCSV(t, `ticker,price,date
BTC,50000,2025-06-02
ETH,3000,2025-06-01
`)
	adapter := NewCSVAdapter(path, discard())

	since := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	batch, err := adapter.Extract(context.Background(), domain.ExtractWindow{
		Since: &since,
		Until: time.Date(2025, 6, 3, 0, 0, 0, 0, time.UTC),
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(batch.Records) != 1 || batch.Records[0].SourceID != "BTC" {
		t.Fatalf("window filter kept %d records", len(batch.Records))
	}
	if batch.Dropped != 0 {
		t.Errorf("window-filtered rows are not format errors, dropped = %d", batch.Dropped)
	}
}

func TestCSVUnparseableDateDropsRow(t *testing.T) {
	path := writeCSV(t, `ticker,price,date
BTC,50000,yesterday
ETH,3000,2025-06-01
`)
	adapter := NewCSVAdapter(path, discard())

	batch, err := adapter.Extract(context.Background(), domain.ExtractWindow{Until: time.Now().UTC()})
	if err != nil {
		t.Fatal(err)
	}
	if len(batch.Records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(batch.Records))
	}
	if batch.Dropped != 1 {
		t.Errorf("dropped = %d, want 1", batch.Dropped)
	}
}
