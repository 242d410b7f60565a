package ingestion

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"crypto-metrics-etl/internal/domain"
)

func TestCoinPaprikaExtract(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tickers" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("quotes"); got != "USD" {
			t.Errorf("quotes = %q", got)
		}
		fmt.Fprint(w, `[
			{"id":"btc-bitcoin","symbol":"BTC","name":"Bitcoin","last_updated":"2025-06-01T12:00:00Z",
			 "quotes":{"USD":{"price":50000.5,"market_cap":1000000000000,"volume_24h":30000000000}}},
			{"id":"eth-ethereum","symbol":"ETH","name":"Ethereum","last_updated":"2025-06-01T12:00:00Z",
			 "quotes":{"USD":{"price":3000,"market_cap":360000000000,"volume_24h":15000000000}}},
			{"symbol":"XXX","name":"No ID"}
		]`)
	}))
	defer server.Close()

	adapter := NewCoinPaprikaAdapter(discard(),
		WithCoinPaprikaBaseURL(server.URL),
		WithCoinPaprikaHTTPClient(server.Client()),
	)

	batch, err := adapter.Extract(context.Background(), domain.ExtractWindow{Until: time.Now().UTC()})
	if err != nil {
		t.Fatalf("Extract: %v", err)
	}
	if len(batch.Records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(batch.Records))
	}
	if batch.Dropped != 1 {
		t.Errorf("dropped = %d, want 1", batch.Dropped)
	}

	rec := batch.Records[0]
	if rec.SourceID != "btc-bitcoin" || rec.SourceSymbol != "BTC" {
		t.Errorf("unexpected identity: %+v", rec)
	}
	if rec.Metrics["price_usd"] != 50000.5 {
		t.Errorf("price_usd = %v", rec.Metrics["price_usd"])
	}
	if rec.Metrics["volume_24h"] != 30000000000.0 {
		t.Errorf("volume_24h = %v", rec.Metrics["volume_24h"])
	}
}

func TestCoinPaprikaLimit(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[
			{"id":"btc-bitcoin","symbol":"BTC","name":"Bitcoin","quotes":{"USD":{"price":50000}}},
			{"id":"eth-ethereum","symbol":"ETH","name":"Ethereum","quotes":{"USD":{"price":3000}}},
			{"id":"sol-solana","symbol":"SOL","name":"Solana","quotes":{"USD":{"price":150}}}
		]`)
	}))
	defer server.Close()

	adapter := NewCoinPaprikaAdapter(discard(),
		WithCoinPaprikaBaseURL(server.URL),
		WithCoinPaprikaHTTPClient(server.Client()),
		WithCoinPaprikaLimit(2),
	)

	batch, err := adapter.Extract(context.Background(), domain.ExtractWindow{Until: time.Now().UTC()})
	if err != nil {
		t.Fatal(err)
	}
	if len(batch.Records) != 2 {
		t.Fatalf("expected limit of 2 records, got %d", len(batch.Records))
	}
}

func TestCoinPaprikaServerErrorIsUnavailable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	adapter := NewCoinPaprikaAdapter(discard(),
		WithCoinPaprikaBaseURL(server.URL),
		WithCoinPaprikaHTTPClient(server.Client()),
	)

	_, err := adapter.Extract(context.Background(), domain.ExtractWindow{Until: time.Now().UTC()})
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
}

func TestCoinPaprikaMissingQuotesYieldsEmptyMetrics(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[{"id":"btc-bitcoin","symbol":"BTC","name":"Bitcoin"}]`)
	}))
	defer server.Close()

	adapter := NewCoinPaprikaAdapter(discard(),
		WithCoinPaprikaBaseURL(server.URL),
		WithCoinPaprikaHTTPClient(server.Client()),
	)

	batch, err := adapter.Extract(context.Background(), domain.ExtractWindow{Until: time.Now().UTC()})
	if err != nil {
		t.Fatal(err)
	}
	// The record survives normalization; drift classification decides
	// what an empty metric map means.
	if len(batch.Records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(batch.Records))
	}
	if len(batch.Records[0].Metrics) != 0 {
		t.Errorf("metrics = %v, want empty", batch.Records[0].Metrics)
	}
}
