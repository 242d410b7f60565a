package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"crypto-metrics-etl/internal/domain"
)

const (
	defaultCoinGeckoBaseURL = "https://api.coingecko.com/api/v3"
	defaultCoinGeckoPages   = 2
	defaultCoinGeckoPerPage = 250
)

// CoinGeckoAdapter extracts market snapshots from the CoinGecko
// /coins/markets endpoint, paginated by market cap.
type CoinGeckoAdapter struct {
	baseURL string
	apiKey  string
	client  *http.Client
	pages   int
	perPage int
	log     *log.Logger
}

var _ Adapter = (*CoinGeckoAdapter)(nil)

// CoinGeckoOption configures the adapter.
type CoinGeckoOption func(*CoinGeckoAdapter)

// WithCoinGeckoBaseURL overrides the API base URL.
func WithCoinGeckoBaseURL(url string) CoinGeckoOption {
	return func(a *CoinGeckoAdapter) { a.baseURL = url }
}

// WithCoinGeckoAPIKey sets the demo API key header.
func WithCoinGeckoAPIKey(key string) CoinGeckoOption {
	return func(a *CoinGeckoAdapter) { a.apiKey = key }
}

// WithCoinGeckoHTTPClient sets a custom HTTP client.
func WithCoinGeckoHTTPClient(client *http.Client) CoinGeckoOption {
	return func(a *CoinGeckoAdapter) { a.client = client }
}

// WithCoinGeckoPages sets how many pages to fetch per extraction.
func WithCoinGeckoPages(pages int) CoinGeckoOption {
	return func(a *CoinGeckoAdapter) { a.pages = pages }
}

// NewCoinGeckoAdapter creates a CoinGecko adapter.
func NewCoinGeckoAdapter(logger *log.Logger, opts ...CoinGeckoOption) *CoinGeckoAdapter {
	if logger == nil {
		logger = log.Default()
	}
	a := &CoinGeckoAdapter{
		baseURL: defaultCoinGeckoBaseURL,
		client:  &http.Client{Timeout: defaultHTTPTimeout},
		pages:   defaultCoinGeckoPages,
		perPage: defaultCoinGeckoPerPage,
		log:     logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Source implements Adapter.
func (a *CoinGeckoAdapter) Source() domain.Source {
	return domain.SourceCoinGecko
}

// coinGeckoMetricKeys maps canonical metric names to provider fields.
var coinGeckoMetricKeys = map[string]string{
	"price_usd":      "current_price",
	"market_cap_usd": "market_cap",
	"volume_24h":     "total_volume",
}

// Extract implements Adapter.
func (a *CoinGeckoAdapter) Extract(ctx context.Context, window domain.ExtractWindow) (*Batch, error) {
	batch := &Batch{}

	for page := 1; page <= a.pages; page++ {
		url := fmt.Sprintf("%s/coins/markets?vs_currency=usd&order=market_cap_desc&per_page=%d&page=%d",
			a.baseURL, a.perPage, page)

		var headers map[string]string
		if a.apiKey != "" {
			headers = map[string]string{"x-cg-demo-api-key": a.apiKey}
		}
		body, err := fetchJSON(ctx, a.client, url, headers)
		if err != nil {
			return nil, fmt.Errorf("coingecko page %d: %w", page, err)
		}

		var items []json.RawMessage
		if err := json.Unmarshal(body, &items); err != nil {
			return nil, fmt.Errorf("coingecko page %d: %w: %v", page, ErrMalformed, err)
		}

		for _, raw := range items {
			rec, ok := a.normalize(raw, window)
			if !ok {
				batch.Dropped++
				continue
			}
			if rec != nil {
				batch.Records = append(batch.Records, rec)
			}
		}

		// A short page means the listing is exhausted.
		if len(items) < a.perPage {
			break
		}
	}

	a.log.Printf("coingecko: extracted %d records (%d dropped)", len(batch.Records), batch.Dropped)
	return batch, nil
}

// normalize converts one market item. Returns ok=false for malformed
// items and (nil, true) for items outside the window.
func (a *CoinGeckoAdapter) normalize(raw json.RawMessage, window domain.ExtractWindow) (*domain.IntermediateRecord, bool) {
	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, false
	}

	id, _ := payload["id"].(string)
	symbol, _ := payload["symbol"].(string)
	if id == "" || symbol == "" {
		return nil, false
	}
	name, _ := payload["name"].(string)

	observedAt := window.Until
	if s, ok := payload["last_updated"].(string); ok && s != "" {
		if t, err := time.Parse(time.RFC3339, s); err == nil {
			observedAt = t.UTC()
		}
	}
	if window.Since != nil && !observedAt.After(*window.Since) {
		return nil, true
	}

	return &domain.IntermediateRecord{
		Source:       domain.SourceCoinGecko,
		SourceID:     id,
		SourceSymbol: symbol,
		DisplayName:  name,
		ObservedAt:   observedAt,
		Metrics:      metricsFrom(payload, coinGeckoMetricKeys),
		Raw:          raw,
	}, true
}
