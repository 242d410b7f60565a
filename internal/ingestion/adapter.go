// Package ingestion contains source adapters that pull provider data
// and normalize it into intermediate records.
package ingestion

import (
	"context"
	"errors"

	"crypto-metrics-etl/internal/domain"
)

// Adapter extracts records from one external provider.
type Adapter interface {
	// Source identifies the provider this adapter serves.
	Source() domain.Source

	// Extract fetches the provider's view for the window and normalizes
	// it. Individual malformed records are counted in Batch.Dropped
	// rather than failing the batch; an unreachable provider or an
	// unparseable response fails the whole call.
	Extract(ctx context.Context, window domain.ExtractWindow) (*Batch, error)
}

// Batch is the result of one extraction pass.
type Batch struct {
	Records []*domain.IntermediateRecord
	// Dropped counts records discarded during normalization because
	// their identity fields were unusable.
	Dropped int
}

var (
	// ErrUnavailable indicates the provider could not be reached or
	// refused to serve (timeouts, 5xx, rate limiting). Retryable.
	ErrUnavailable = errors.New("source unavailable")

	// ErrMalformed indicates the provider responded with a payload that
	// could not be parsed at all. Not retryable within a cycle.
	ErrMalformed = errors.New("source payload malformed")
)
