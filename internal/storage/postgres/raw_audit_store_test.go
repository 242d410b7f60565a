package postgres

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crypto-metrics-etl/internal/domain"
	"crypto-metrics-etl/internal/storage"
)

func TestRawAuditStore_InsertAndList(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewRawAuditStore(pool)

	rec := &domain.RawAudit{
		Source:  domain.SourceCoinGecko,
		Payload: json.RawMessage(`{"id":"bitcoin","current_price":50000}`),
	}
	require.NoError(t, store.Insert(ctx, rec))
	assert.NotZero(t, rec.ID)
	assert.False(t, rec.IngestedAt.IsZero())

	require.NoError(t, store.Insert(ctx, &domain.RawAudit{
		Source:  domain.SourceCoinGecko,
		Payload: json.RawMessage(`{"id":"ethereum","current_price":3000}`),
	}))
	require.NoError(t, store.Insert(ctx, &domain.RawAudit{
		Source:  domain.SourceCoinPaprika,
		Payload: json.RawMessage(`{"id":"btc-bitcoin"}`),
	}))

	recs, err := store.ListBySource(ctx, domain.SourceCoinGecko, 10)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	// Newest first.
	assert.JSONEq(t, `{"id":"ethereum","current_price":3000}`, string(recs[0].Payload))
}

func TestRawAuditStore_RejectsEmptyPayload(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	store := NewRawAuditStore(pool)
	err := store.Insert(context.Background(), &domain.RawAudit{Source: domain.SourceCSV})
	require.ErrorIs(t, err, storage.ErrInvalidInput)
}
