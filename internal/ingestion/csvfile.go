package ingestion

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strings"
	"time"

	"crypto-metrics-etl/internal/domain"
)

// csvColumnAliases maps canonical column roles to accepted header names.
// Headers are matched case-insensitively.
var csvColumnAliases = map[string][]string{
	"ticker":     {"ticker", "symbol"},
	"price_usd":  {"price_usd", "price", "close"},
	"volume_24h": {"volume_24h", "volume", "vol"},
	"date":       {"date", "timestamp", "observed_at"},
}

// csvDateLayouts are tried in order when parsing the date column.
var csvDateLayouts = []string{
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// CSVAdapter extracts records from a local CSV drop. The file needs a
// header row with at least ticker, price, and date columns.
type CSVAdapter struct {
	path string
	log  *log.Logger
}

var _ Adapter = (*CSVAdapter)(nil)

// NewCSVAdapter creates a CSV adapter reading from path.
func NewCSVAdapter(path string, logger *log.Logger) *CSVAdapter {
	if logger == nil {
		logger = log.Default()
	}
	return &CSVAdapter{path: path, log: logger}
}

// Source implements Adapter.
func (a *CSVAdapter) Source() domain.Source {
	return domain.SourceCSV
}

// Extract implements Adapter.
func (a *CSVAdapter) Extract(ctx context.Context, window domain.ExtractWindow) (*Batch, error) {
	f, err := os.Open(a.path)
	if err != nil {
		return nil, fmt.Errorf("open csv %s: %w: %v", a.path, ErrUnavailable, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read csv header: %w: %v", ErrMalformed, err)
	}

	columns, err := mapColumns(header)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	batch := &Batch{}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// A short or ragged row is a per-record defect.
			batch.Dropped++
			continue
		}

		rec, ok := a.normalize(header, columns, row, window)
		if !ok {
			batch.Dropped++
			continue
		}
		if rec != nil {
			batch.Records = append(batch.Records, rec)
		}
	}

	a.log.Printf("csv: extracted %d records (%d dropped) from %s", len(batch.Records), batch.Dropped, a.path)
	return batch, nil
}

// mapColumns resolves canonical roles to header indexes.
func mapColumns(header []string) (map[string]int, error) {
	index := make(map[string]int, len(header))
	for i, h := range header {
		index[strings.ToLower(strings.TrimSpace(h))] = i
	}

	columns := make(map[string]int)
	for role, aliases := range csvColumnAliases {
		for _, alias := range aliases {
			if i, ok := index[alias]; ok {
				columns[role] = i
				break
			}
		}
	}

	for _, required := range []string{"ticker", "price_usd", "date"} {
		if _, ok := columns[required]; !ok {
			return nil, fmt.Errorf("csv header missing %s column", required)
		}
	}

	return columns, nil
}

func (a *CSVAdapter) normalize(header []string, columns map[string]int, row []string, window domain.ExtractWindow) (*domain.IntermediateRecord, bool) {
	cell := func(role string) (string, bool) {
		i, ok := columns[role]
		if !ok || i >= len(row) {
			return "", false
		}
		return strings.TrimSpace(row[i]), true
	}

	ticker, _ := cell("ticker")
	if ticker == "" {
		return nil, false
	}

	dateStr, _ := cell("date")
	observedAt, err := parseCSVDate(dateStr)
	if err != nil {
		return nil, false
	}
	if window.Since != nil && !observedAt.After(*window.Since) {
		return nil, true
	}

	// Keep string values; drift classification coerces them.
	metrics := make(map[string]any)
	if v, ok := cell("price_usd"); ok && v != "" {
		metrics["price_usd"] = v
	}
	if v, ok := cell("volume_24h"); ok && v != "" {
		metrics["volume_24h"] = v
	}

	// The audit payload mirrors the row as an object keyed by header.
	rowObj := make(map[string]string, len(header))
	for i, h := range header {
		if i < len(row) {
			rowObj[h] = row[i]
		}
	}
	raw, err := json.Marshal(rowObj)
	if err != nil {
		return nil, false
	}

	return &domain.IntermediateRecord{
		Source:       domain.SourceCSV,
		SourceID:     strings.ToUpper(ticker),
		SourceSymbol: ticker,
		ObservedAt:   observedAt,
		Metrics:      metrics,
		Raw:          raw,
	}, true
}

func parseCSVDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, fmt.Errorf("empty date")
	}
	for _, layout := range csvDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date %q", s)
}
