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

const defaultCoinPaprikaBaseURL = "https://api.coinpaprika.com/v1"

// CoinPaprikaAdapter extracts ticker snapshots from the CoinPaprika
// /tickers endpoint with USD quotes.
type CoinPaprikaAdapter struct {
	baseURL string
	apiKey  string
	client  *http.Client
	limit   int
	log     *log.Logger
}

var _ Adapter = (*CoinPaprikaAdapter)(nil)

// CoinPaprikaOption configures the adapter.
type CoinPaprikaOption func(*CoinPaprikaAdapter)

// WithCoinPaprikaBaseURL overrides the API base URL.
func WithCoinPaprikaBaseURL(url string) CoinPaprikaOption {
	return func(a *CoinPaprikaAdapter) { a.baseURL = url }
}

// WithCoinPaprikaAPIKey sets the bearer token for the paid API tier.
func WithCoinPaprikaAPIKey(key string) CoinPaprikaOption {
	return func(a *CoinPaprikaAdapter) { a.apiKey = key }
}

// WithCoinPaprikaHTTPClient sets a custom HTTP client.
func WithCoinPaprikaHTTPClient(client *http.Client) CoinPaprikaOption {
	return func(a *CoinPaprikaAdapter) { a.client = client }
}

// WithCoinPaprikaLimit caps how many tickers are kept per extraction.
// Zero means no cap.
func WithCoinPaprikaLimit(limit int) CoinPaprikaOption {
	return func(a *CoinPaprikaAdapter) { a.limit = limit }
}

// NewCoinPaprikaAdapter creates a CoinPaprika adapter.
func NewCoinPaprikaAdapter(logger *log.Logger, opts ...CoinPaprikaOption) *CoinPaprikaAdapter {
	if logger == nil {
		logger = log.Default()
	}
	a := &CoinPaprikaAdapter{
		baseURL: defaultCoinPaprikaBaseURL,
		client:  &http.Client{Timeout: defaultHTTPTimeout},
		log:     logger,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Source implements Adapter.
func (a *CoinPaprikaAdapter) Source() domain.Source {
	return domain.SourceCoinPaprika
}

// Extract implements Adapter.
func (a *CoinPaprikaAdapter) Extract(ctx context.Context, window domain.ExtractWindow) (*Batch, error) {
	var headers map[string]string
	if a.apiKey != "" {
		headers = map[string]string{"Authorization": "Bearer " + a.apiKey}
	}
	body, err := fetchJSON(ctx, a.client, a.baseURL+"/tickers?quotes=USD", headers)
	if err != nil {
		return nil, fmt.Errorf("coinpaprika tickers: %w", err)
	}

	var items []json.RawMessage
	if err := json.Unmarshal(body, &items); err != nil {
		return nil, fmt.Errorf("coinpaprika tickers: %w: %v", ErrMalformed, err)
	}

	batch := &Batch{}
	for _, raw := range items {
		if a.limit > 0 && len(batch.Records) >= a.limit {
			break
		}
		rec, ok := a.normalize(raw, window)
		if !ok {
			batch.Dropped++
			continue
		}
		if rec != nil {
			batch.Records = append(batch.Records, rec)
		}
	}

	a.log.Printf("coinpaprika: extracted %d records (%d dropped)", len(batch.Records), batch.Dropped)
	return batch, nil
}

func (a *CoinPaprikaAdapter) normalize(raw json.RawMessage, window domain.ExtractWindow) (*domain.IntermediateRecord, bool) {
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

	// Metrics live under quotes.USD.
	metrics := map[string]any{}
	if quotes, ok := payload["quotes"].(map[string]any); ok {
		if usd, ok := quotes["USD"].(map[string]any); ok {
			metrics = metricsFrom(usd, map[string]string{
				"price_usd":      "price",
				"market_cap_usd": "market_cap",
				"volume_24h":     "volume_24h",
			})
		}
	}

	return &domain.IntermediateRecord{
		Source:       domain.SourceCoinPaprika,
		SourceID:     id,
		SourceSymbol: symbol,
		DisplayName:  name,
		ObservedAt:   observedAt,
		Metrics:      metrics,
		Raw:          raw,
	}, true
}
