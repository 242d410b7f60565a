package resolve

import (
	"context"
	"io"
	"log"
	"testing"

	"crypto-metrics-etl/internal/domain"
	"crypto-metrics-etl/internal/storage/memory"
)

func newTestResolver() (*Resolver, *memory.AssetStore) {
	store := memory.NewAssetStore()
	logger := log.New(io.Discard, "", 0)
	return NewResolver(store, logger), store
}

func seedAsset(t *testing.T, store *memory.AssetStore, id, symbol, name, slug string, source domain.Source, sourceID string) {
	t.Helper()
	err := store.CreateWithMapping(context.Background(),
		&domain.CanonicalAsset{ID: id, Symbol: symbol, Name: name, Slug: slug},
		&domain.SourceMapping{Source: source, SourceID: sourceID})
	if err != nil {
		t.Fatalf("seed asset %s: %v", id, err)
	}
}

func TestResolveCreatesNewAsset(t *testing.T) {
	ctx := context.Background()
	r, store := newTestResolver()

	id, err := r.Resolve(ctx, domain.SourceCoinGecko, "bitcoin", "btc", "Bitcoin")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if id == "" {
		t.Fatal("empty asset ID")
	}

	asset, err := store.GetByID(ctx, id)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if asset.Symbol != "BTC" {
		t.Errorf("symbol = %q, want BTC", asset.Symbol)
	}
	if asset.Slug != "bitcoin" {
		t.Errorf("slug = %q, want bitcoin", asset.Slug)
	}
}

func TestResolveIsIdempotent(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestResolver()

	first, err := r.Resolve(ctx, domain.SourceCoinGecko, "bitcoin", "btc", "Bitcoin")
	if err != nil {
		t.Fatal(err)
	}
	second, err := r.Resolve(ctx, domain.SourceCoinGecko, "bitcoin", "btc", "Bitcoin")
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Fatalf("repeated resolve diverged: %s vs %s", first, second)
	}
}

func TestResolveTwoSourcesSameSymbolConverge(t *testing.T) {
	ctx := context.Background()
	r, store := newTestResolver()

	// CoinGecko sees Bitcoin first, then CoinPaprika reports it under
	// its own provider ID. Both must land on one canonical asset.
	gecko, err := r.Resolve(ctx, domain.SourceCoinGecko, "bitcoin", "btc", "Bitcoin")
	if err != nil {
		t.Fatal(err)
	}
	paprika, err := r.Resolve(ctx, domain.SourceCoinPaprika, "btc-bitcoin", "BTC", "Bitcoin")
	if err != nil {
		t.Fatal(err)
	}
	if gecko != paprika {
		t.Fatalf("same asset resolved to two IDs: %s vs %s", gecko, paprika)
	}

	mappings, err := store.ListMappings(ctx, gecko)
	if err != nil {
		t.Fatal(err)
	}
	if len(mappings) != 2 {
		t.Errorf("expected 2 mappings, got %d", len(mappings))
	}
}

func TestResolveAmbiguousSymbolCreatesNewAsset(t *testing.T) {
	ctx := context.Background()
	r, store := newTestResolver()

	// Two distinct assets already share the symbol UNI.
	seedAsset(t, store, "uni-1", "UNI", "Uniswap", "uniswap", domain.SourceCoinGecko, "uniswap")
	seedAsset(t, store, "uni-2", "UNI", "Unicorn Token", "unicorn-token", domain.SourceCoinGecko, "unicorn-token")

	// A provider record with the ambiguous symbol and a new name must
	// not be guessed onto either existing asset.
	c, err := r.Resolve(ctx, domain.SourceCoinPaprika, "uni-universe", "UNI", "Universe Coin")
	if err != nil {
		t.Fatal(err)
	}
	if c == "uni-1" || c == "uni-2" {
		t.Fatal("ambiguous symbol resolved by guessing")
	}
}

func TestResolveSlugMatchAcrossTickers(t *testing.T) {
	ctx := context.Background()
	r, store := newTestResolver()

	// Two providers list the same asset under different tickers. The
	// shared display name must converge them onto one identity.
	a, err := r.Resolve(ctx, domain.SourceCoinPaprika, "xbt-bitcoin", "XBT", "Bitcoin")
	if err != nil {
		t.Fatal(err)
	}
	b, err := r.Resolve(ctx, domain.SourceCoinGecko, "btc-bitcoin", "BTC", "Bitcoin")
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Fatalf("same name resolved to two assets: %s vs %s", a, b)
	}

	assets, err := store.ListAssets(ctx, 10, 0)
	if err != nil {
		t.Fatal(err)
	}
	if len(assets) != 1 {
		t.Fatalf("assets = %d, want 1", len(assets))
	}
	mappings, err := store.ListMappings(ctx, a)
	if err != nil {
		t.Fatal(err)
	}
	if len(mappings) != 2 {
		t.Errorf("mappings = %d, want 2", len(mappings))
	}
}

func TestResolveSlugMatchBeatsAmbiguousSymbol(t *testing.T) {
	ctx := context.Background()
	r, store := newTestResolver()

	// Symbol BTC is ambiguous across two homonyms; the display name's
	// slug still identifies the original asset exactly.
	seedAsset(t, store, "btc-1", "BTC", "Bitcoin", "bitcoin", domain.SourceCoinGecko, "bitcoin")
	seedAsset(t, store, "btc-2", "BTC", "Bitcoin Classic", "bitcoin-classic", domain.SourceCoinGecko, "bitcoin-classic")

	c, err := r.Resolve(ctx, domain.SourceCSV, "BTC", "btc", "Bitcoin")
	if err != nil {
		t.Fatal(err)
	}
	if c != "btc-1" {
		t.Fatalf("slug match should attach to original asset, got %s", c)
	}

	mappings, err := store.ListMappings(ctx, "btc-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(mappings) != 2 {
		t.Errorf("expected 2 mappings on original asset, got %d", len(mappings))
	}
}

func TestResolveSlugCollisionOnCreateAttaches(t *testing.T) {
	ctx := context.Background()
	r, store := newTestResolver()

	// No display name, so the slug step is skipped and creation derives
	// the slug from the symbol. The slug is already taken by an asset
	// with a different symbol; the collision must attach, not suffix.
	seedAsset(t, store, "xbt-1", "XBT", "", "btc", domain.SourceCoinPaprika, "xbt")

	c, err := r.Resolve(ctx, domain.SourceCSV, "btc-drop", "BTC", "")
	if err != nil {
		t.Fatal(err)
	}
	if c != "xbt-1" {
		t.Fatalf("slug collision should attach to holder, got %s", c)
	}
	assets, _ := store.ListAssets(ctx, 10, 0)
	if len(assets) != 1 {
		t.Errorf("assets = %d, want 1 (no suffixed duplicate)", len(assets))
	}
}

func TestResolveUpgradesDisplayName(t *testing.T) {
	ctx := context.Background()
	r, store := newTestResolver()

	// CSV has no display name; the asset is created with the symbol as name.
	id, err := r.Resolve(ctx, domain.SourceCSV, "BTC", "btc", "")
	if err != nil {
		t.Fatal(err)
	}
	asset, _ := store.GetByID(ctx, id)
	if asset.Name != "BTC" {
		t.Fatalf("placeholder name = %q, want BTC", asset.Name)
	}

	// A richer source supplies the proper name.
	id2, err := r.Resolve(ctx, domain.SourceCoinGecko, "bitcoin", "btc", "Bitcoin")
	if err != nil {
		t.Fatal(err)
	}
	if id2 != id {
		t.Fatalf("expected symbol match to attach, got new asset %s", id2)
	}
	asset, _ = store.GetByID(ctx, id)
	if asset.Name != "Bitcoin" {
		t.Errorf("name = %q, want upgraded Bitcoin", asset.Name)
	}
}

func TestResolveEmptySourceID(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestResolver()

	if _, err := r.Resolve(ctx, domain.SourceCSV, "", "btc", "Bitcoin"); err == nil {
		t.Fatal("expected error for empty source ID")
	}
}

func TestResolveCachesMappings(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestResolver()

	if _, err := r.Resolve(ctx, domain.SourceCoinGecko, "bitcoin", "btc", "Bitcoin"); err != nil {
		t.Fatal(err)
	}
	if r.CacheSize() != 1 {
		t.Errorf("cache size = %d, want 1", r.CacheSize())
	}
}
