package ingestion

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/gorilla/websocket"

	"crypto-metrics-etl/internal/domain"
)

const defaultWSCollectFor = 5 * time.Second

// WSTickerConfig configures the websocket ticker adapter.
type WSTickerConfig struct {
	// URL is the websocket endpoint of the exchange ticker stream.
	URL string
	// SubscribeMessage, when set, is sent right after connecting.
	SubscribeMessage []byte
	// CollectFor bounds how long one extraction listens to the stream.
	CollectFor time.Duration
}

// WSTickerAdapter extracts live tickers from an exchange websocket
// stream. One extraction connects, listens for a bounded interval, and
// keeps the latest ticker per symbol.
type WSTickerAdapter struct {
	cfg    WSTickerConfig
	dialer *websocket.Dialer
	log    *log.Logger
}

var _ Adapter = (*WSTickerAdapter)(nil)

// NewWSTickerAdapter creates a websocket ticker adapter.
func NewWSTickerAdapter(cfg WSTickerConfig, logger *log.Logger) *WSTickerAdapter {
	if logger == nil {
		logger = log.Default()
	}
	if cfg.CollectFor <= 0 {
		cfg.CollectFor = defaultWSCollectFor
	}
	return &WSTickerAdapter{
		cfg:    cfg,
		dialer: websocket.DefaultDialer,
		log:    logger,
	}
}

// Source implements Adapter.
func (a *WSTickerAdapter) Source() domain.Source {
	return domain.SourceExchangeWS
}

// wsTicker is the expected stream message shape.
type wsTicker struct {
	Symbol    string   `json:"symbol"`
	Price     *float64 `json:"price"`
	Volume    *float64 `json:"volume"`
	Timestamp string   `json:"timestamp"`
}

// Extract implements Adapter.
func (a *WSTickerAdapter) Extract(ctx context.Context, window domain.ExtractWindow) (*Batch, error) {
	deadline := time.Now().Add(a.cfg.CollectFor)
	dialCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	conn, _, err := a.dialer.DialContext(dialCtx, a.cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w: %v", a.cfg.URL, ErrUnavailable, err)
	}
	defer conn.Close()

	if len(a.cfg.SubscribeMessage) > 0 {
		if err := conn.WriteMessage(websocket.TextMessage, a.cfg.SubscribeMessage); err != nil {
			return nil, fmt.Errorf("subscribe: %w: %v", ErrUnavailable, err)
		}
	}

	if err := conn.SetReadDeadline(deadline); err != nil {
		return nil, fmt.Errorf("set read deadline: %w: %v", ErrUnavailable, err)
	}

	// Latest ticker wins per symbol within one collection interval.
	latest := make(map[string]*domain.IntermediateRecord)
	dropped := 0

	for time.Now().Before(deadline) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			// Deadline expiry and server close both end collection.
			break
		}

		rec, ok := a.normalize(msg, window)
		if !ok {
			dropped++
			continue
		}
		if rec != nil {
			latest[rec.SourceID] = rec
		}
	}

	batch := &Batch{Dropped: dropped}
	for _, rec := range latest {
		batch.Records = append(batch.Records, rec)
	}

	a.log.Printf("wsticker: extracted %d records (%d dropped)", len(batch.Records), batch.Dropped)
	return batch, nil
}

func (a *WSTickerAdapter) normalize(msg []byte, window domain.ExtractWindow) (*domain.IntermediateRecord, bool) {
	var t wsTicker
	if err := json.Unmarshal(msg, &t); err != nil || t.Symbol == "" {
		return nil, false
	}

	observedAt := time.Now().UTC()
	if t.Timestamp != "" {
		parsed, err := time.Parse(time.RFC3339, t.Timestamp)
		if err != nil {
			return nil, false
		}
		observedAt = parsed.UTC()
	}
	if window.Since != nil && !observedAt.After(*window.Since) {
		return nil, true
	}

	metrics := make(map[string]any)
	if t.Price != nil {
		metrics["price_usd"] = *t.Price
	}
	if t.Volume != nil {
		metrics["volume_24h"] = *t.Volume
	}

	return &domain.IntermediateRecord{
		Source:       domain.SourceExchangeWS,
		SourceID:     t.Symbol,
		SourceSymbol: t.Symbol,
		ObservedAt:   observedAt,
		Metrics:      metrics,
		Raw:          json.RawMessage(msg),
	}, true
}
