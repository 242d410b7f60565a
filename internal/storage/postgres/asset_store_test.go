package postgres

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"crypto-metrics-etl/internal/domain"
	"crypto-metrics-etl/internal/storage"
)

func TestAssetStore_CreateWithMapping(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewAssetStore(pool)

	asset := &domain.CanonicalAsset{ID: "a1", Symbol: "BTC", Name: "Bitcoin", Slug: "bitcoin"}
	mapping := &domain.SourceMapping{Source: domain.SourceCoinGecko, SourceID: "bitcoin", SourceSymbol: "btc"}
	require.NoError(t, store.CreateWithMapping(ctx, asset, mapping))

	got, err := store.GetBySlug(ctx, "bitcoin")
	require.NoError(t, err)
	assert.Equal(t, "a1", got.ID)
	assert.Equal(t, "BTC", got.Symbol)
	assert.False(t, got.CreatedAt.IsZero())

	m, err := store.GetMapping(ctx, domain.SourceCoinGecko, "bitcoin")
	require.NoError(t, err)
	assert.Equal(t, "a1", m.AssetID)
	assert.Equal(t, "btc", m.SourceSymbol)
}

func TestAssetStore_CreateWithMapping_DuplicateSlugRollsBack(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewAssetStore(pool)

	require.NoError(t, store.CreateWithMapping(ctx,
		&domain.CanonicalAsset{ID: "a1", Symbol: "BTC", Name: "Bitcoin", Slug: "bitcoin"},
		&domain.SourceMapping{Source: domain.SourceCoinGecko, SourceID: "bitcoin"}))

	err := store.CreateWithMapping(ctx,
		&domain.CanonicalAsset{ID: "a2", Symbol: "BTC", Name: "Bitcoin", Slug: "bitcoin"},
		&domain.SourceMapping{Source: domain.SourceCoinPaprika, SourceID: "btc-bitcoin"})
	require.ErrorIs(t, err, storage.ErrDuplicateKey)

	// The mapping insert must have been rolled back with the asset.
	_, err = store.GetMapping(ctx, domain.SourceCoinPaprika, "btc-bitcoin")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestAssetStore_InsertMapping(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewAssetStore(pool)

	require.NoError(t, store.CreateWithMapping(ctx,
		&domain.CanonicalAsset{ID: "a1", Symbol: "BTC", Name: "Bitcoin", Slug: "bitcoin"},
		&domain.SourceMapping{Source: domain.SourceCoinGecko, SourceID: "bitcoin"}))

	m := &domain.SourceMapping{AssetID: "a1", Source: domain.SourceCoinPaprika, SourceID: "btc-bitcoin", SourceSymbol: "btc"}
	require.NoError(t, store.InsertMapping(ctx, m))

	err := store.InsertMapping(ctx, m)
	require.ErrorIs(t, err, storage.ErrDuplicateKey)

	mappings, err := store.ListMappings(ctx, "a1")
	require.NoError(t, err)
	assert.Len(t, mappings, 2)
}

func TestAssetStore_GetBySymbol(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewAssetStore(pool)

	require.NoError(t, store.CreateWithMapping(ctx,
		&domain.CanonicalAsset{ID: "a1", Symbol: "UNI", Name: "Uniswap", Slug: "uniswap"},
		&domain.SourceMapping{Source: domain.SourceCoinGecko, SourceID: "uniswap"}))
	require.NoError(t, store.CreateWithMapping(ctx,
		&domain.CanonicalAsset{ID: "a2", Symbol: "UNI", Name: "Unicorn Token", Slug: "unicorn-token"},
		&domain.SourceMapping{Source: domain.SourceCoinPaprika, SourceID: "uni-unicorn"}))

	assets, err := store.GetBySymbol(ctx, "UNI")
	require.NoError(t, err)
	assert.Len(t, assets, 2)

	assets, err = store.GetBySymbol(ctx, "DOGE")
	require.NoError(t, err)
	assert.Empty(t, assets)
}

func TestAssetStore_UpdateDisplay(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewAssetStore(pool)

	require.NoError(t, store.CreateWithMapping(ctx,
		&domain.CanonicalAsset{ID: "a1", Symbol: "BTC", Name: "bitcoin", Slug: "bitcoin"},
		&domain.SourceMapping{Source: domain.SourceCSV, SourceID: "BTC"}))

	require.NoError(t, store.UpdateDisplay(ctx, "a1", "Bitcoin"))

	got, err := store.GetByID(ctx, "a1")
	require.NoError(t, err)
	assert.Equal(t, "Bitcoin", got.Name)

	err = store.UpdateDisplay(ctx, "missing", "x")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestAssetStore_ListAssets(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := NewAssetStore(pool)

	for _, a := range []struct{ id, slug string }{
		{"a1", "bitcoin"}, {"a2", "ethereum"}, {"a3", "solana"},
	} {
		require.NoError(t, store.CreateWithMapping(ctx,
			&domain.CanonicalAsset{ID: a.id, Symbol: "X", Name: a.slug, Slug: a.slug},
			&domain.SourceMapping{Source: domain.SourceCSV, SourceID: a.slug}))
	}

	assets, err := store.ListAssets(ctx, 2, 0)
	require.NoError(t, err)
	assert.Len(t, assets, 2)

	assets, err = store.ListAssets(ctx, 10, 2)
	require.NoError(t, err)
	assert.Len(t, assets, 1)
}
