// Package resolve maps provider-specific asset identifiers onto
// canonical assets.
//
// Resolution order: existing mapping, then exact slug match on the
// display name, then unambiguous symbol match, then creation of a new
// asset. The slug outranks the symbol because providers disagree on
// tickers (BTC vs XBT) far more often than on names; a slug collision
// during creation therefore attaches to the slug holder instead of
// minting a second identity.
package resolve

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"

	"github.com/gosimple/slug"

	"crypto-metrics-etl/internal/domain"
	"crypto-metrics-etl/internal/entityid"
	"crypto-metrics-etl/internal/storage"
)

// ErrResolutionConflict is returned when an identity cannot be
// established: creation keeps losing races without a readable winner.
var ErrResolutionConflict = errors.New("asset resolution conflict")

// maxCreateAttempts bounds create/re-read rounds during asset creation.
const maxCreateAttempts = 5

// Resolver resolves (source, sourceID) pairs to canonical asset IDs.
// Safe for concurrent use.
type Resolver struct {
	assets storage.AssetStore
	log    *log.Logger

	// onCreate, when set, is called once per newly created asset.
	onCreate func()

	mu    sync.RWMutex
	cache map[cacheKey]string // (source, sourceID) -> asset ID
}

type cacheKey struct {
	source   domain.Source
	sourceID string
}

// NewResolver creates a resolver over the given asset store.
func NewResolver(assets storage.AssetStore, logger *log.Logger) *Resolver {
	if logger == nil {
		logger = log.Default()
	}
	return &Resolver{
		assets: assets,
		log:    logger,
		cache:  make(map[cacheKey]string),
	}
}

// OnCreate registers a callback invoked after each asset creation.
// Must be called before the resolver is shared between goroutines.
func (r *Resolver) OnCreate(fn func()) {
	r.onCreate = fn
}

// Resolve returns the canonical asset ID for a provider record, creating
// the asset and its mapping on first sighting.
func (r *Resolver) Resolve(ctx context.Context, source domain.Source, sourceID, sourceSymbol, displayName string) (string, error) {
	if sourceID == "" {
		return "", storage.ErrInvalidInput
	}

	key := cacheKey{source: source, sourceID: sourceID}
	r.mu.RLock()
	id, ok := r.cache[key]
	r.mu.RUnlock()
	if ok {
		return id, nil
	}

	// Existing mapping wins unconditionally.
	if m, err := r.assets.GetMapping(ctx, source, sourceID); err == nil {
		r.remember(key, m.AssetID)
		return m.AssetID, nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return "", fmt.Errorf("lookup mapping %s/%s: %w", source, sourceID, err)
	}

	// An exact slug match on the display name identifies the asset even
	// when providers use different tickers for it.
	if displayName != "" {
		if s := slug.Make(displayName); s != "" {
			asset, err := r.assets.GetBySlug(ctx, s)
			if err == nil {
				return r.attach(ctx, key, asset, source, sourceID, sourceSymbol, displayName)
			}
			if !errors.Is(err, storage.ErrNotFound) {
				return "", fmt.Errorf("lookup slug %s: %w", s, err)
			}
		}
	}

	symbol := entityid.NormalizeSymbol(sourceSymbol)

	// A single asset with this symbol is an unambiguous match. Zero or
	// several matches both fall through to creation: guessing among
	// homonym symbols would silently merge different assets.
	if symbol != "" {
		matches, err := r.assets.GetBySymbol(ctx, symbol)
		if err != nil {
			return "", fmt.Errorf("lookup symbol %s: %w", symbol, err)
		}
		if len(matches) == 1 {
			return r.attach(ctx, key, matches[0], source, sourceID, sourceSymbol, displayName)
		}
		if len(matches) > 1 {
			r.log.Printf("resolve: symbol %s ambiguous (%d assets), creating new asset for %s/%s",
				symbol, len(matches), source, sourceID)
		}
	}

	return r.create(ctx, key, source, sourceID, sourceSymbol, symbol, displayName)
}

// attach maps (source, sourceID) onto an existing asset.
func (r *Resolver) attach(ctx context.Context, key cacheKey, asset *domain.CanonicalAsset, source domain.Source, sourceID, sourceSymbol, displayName string) (string, error) {
	err := r.assets.InsertMapping(ctx, &domain.SourceMapping{
		AssetID:      asset.ID,
		Source:       source,
		SourceID:     sourceID,
		SourceSymbol: sourceSymbol,
		SourceName:   displayName,
	})
	if err != nil && !errors.Is(err, storage.ErrDuplicateKey) {
		return "", fmt.Errorf("insert mapping %s/%s: %w", source, sourceID, err)
	}

	// Sources without proper names (CSV drops) leave the symbol as the
	// display name; upgrade it once a richer source supplies one.
	if displayName != "" && (asset.Name == "" || asset.Name == asset.Symbol) && displayName != asset.Name {
		if err := r.assets.UpdateDisplay(ctx, asset.ID, displayName); err != nil && !errors.Is(err, storage.ErrNotFound) {
			r.log.Printf("resolve: update display name for %s: %v", asset.ID, err)
		}
	}

	r.remember(key, asset.ID)
	return asset.ID, nil
}

// create inserts a new asset. A duplicate key means another worker won
// the race; the loser re-reads and attaches to the winner.
func (r *Resolver) create(ctx context.Context, key cacheKey, source domain.Source, sourceID, sourceSymbol, symbol, displayName string) (string, error) {
	name := displayName
	if name == "" {
		name = symbol
	}
	s := slug.Make(name)
	if s == "" {
		s = slug.Make(sourceID)
	}
	if s == "" {
		return "", storage.ErrInvalidInput
	}

	for attempt := 0; attempt < maxCreateAttempts; attempt++ {
		asset := &domain.CanonicalAsset{
			ID:     entityid.AssetID(s),
			Symbol: symbol,
			Name:   name,
			Slug:   s,
		}
		mapping := &domain.SourceMapping{
			Source:       source,
			SourceID:     sourceID,
			SourceSymbol: sourceSymbol,
			SourceName:   displayName,
		}

		err := r.assets.CreateWithMapping(ctx, asset, mapping)
		if err == nil {
			r.log.Printf("resolve: created asset %s (slug=%s) for %s/%s", asset.ID, s, source, sourceID)
			if r.onCreate != nil {
				r.onCreate()
			}
			r.remember(key, asset.ID)
			return asset.ID, nil
		}
		if !errors.Is(err, storage.ErrDuplicateKey) {
			return "", fmt.Errorf("create asset for %s/%s: %w", source, sourceID, err)
		}

		// A concurrent worker may have resolved the same record first.
		if m, lookupErr := r.assets.GetMapping(ctx, source, sourceID); lookupErr == nil {
			r.remember(key, m.AssetID)
			return m.AssetID, nil
		}

		// Slug taken: the holder is this asset, first seen under another
		// provider ID or ticker. Attach to it.
		existing, lookupErr := r.assets.GetBySlug(ctx, s)
		if lookupErr == nil {
			return r.attach(ctx, key, existing, source, sourceID, sourceSymbol, displayName)
		}
		if !errors.Is(lookupErr, storage.ErrNotFound) {
			return "", fmt.Errorf("lookup slug %s: %w", s, lookupErr)
		}
		// The holder vanished between the insert and the read; retry.
	}

	return "", fmt.Errorf("%w: could not create or attach slug %q for %s/%s after %d attempts",
		ErrResolutionConflict, s, source, sourceID, maxCreateAttempts)
}

func (r *Resolver) remember(key cacheKey, id string) {
	r.mu.Lock()
	r.cache[key] = id
	r.mu.Unlock()
}

// CacheSize returns the number of cached mappings, for diagnostics.
func (r *Resolver) CacheSize() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.cache)
}
