// Package memory provides in-memory storage implementations for testing
// and local development without a database.
package memory

import (
	"context"
	"sync"
	"time"

	"crypto-metrics-etl/internal/domain"
	"crypto-metrics-etl/internal/storage"
)

// AssetStore is an in-memory implementation of storage.AssetStore.
type AssetStore struct {
	mu       sync.RWMutex
	byID     map[string]*domain.CanonicalAsset
	bySlug   map[string]string                   // slug -> asset ID
	mappings map[mappingKey]*domain.SourceMapping
	order    []string // asset IDs in insertion order
}

type mappingKey struct {
	source   domain.Source
	sourceID string
}

var _ storage.AssetStore = (*AssetStore)(nil)

// NewAssetStore creates an empty in-memory asset store.
func NewAssetStore() *AssetStore {
	return &AssetStore{
		byID:     make(map[string]*domain.CanonicalAsset),
		bySlug:   make(map[string]string),
		mappings: make(map[mappingKey]*domain.SourceMapping),
	}
}

func (s *AssetStore) CreateWithMapping(ctx context.Context, asset *domain.CanonicalAsset, mapping *domain.SourceMapping) error {
	if asset == nil || mapping == nil {
		return storage.ErrInvalidInput
	}
	if asset.ID == "" || asset.Slug == "" || mapping.SourceID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[asset.ID]; ok {
		return storage.ErrDuplicateKey
	}
	if _, ok := s.bySlug[asset.Slug]; ok {
		return storage.ErrDuplicateKey
	}
	key := mappingKey{source: mapping.Source, sourceID: mapping.SourceID}
	if _, ok := s.mappings[key]; ok {
		return storage.ErrDuplicateKey
	}

	now := time.Now().UTC()
	a := *asset
	if a.CreatedAt.IsZero() {
		a.CreatedAt = now
	}
	a.UpdatedAt = now
	m := *mapping
	m.AssetID = a.ID
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}

	s.byID[a.ID] = &a
	s.bySlug[a.Slug] = a.ID
	s.mappings[key] = &m
	s.order = append(s.order, a.ID)
	return nil
}

func (s *AssetStore) InsertMapping(ctx context.Context, mapping *domain.SourceMapping) error {
	if mapping == nil || mapping.AssetID == "" || mapping.SourceID == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byID[mapping.AssetID]; !ok {
		return storage.ErrNotFound
	}
	key := mappingKey{source: mapping.Source, sourceID: mapping.SourceID}
	if _, ok := s.mappings[key]; ok {
		return storage.ErrDuplicateKey
	}

	m := *mapping
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	s.mappings[key] = &m
	return nil
}

func (s *AssetStore) GetMapping(ctx context.Context, source domain.Source, sourceID string) (*domain.SourceMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.mappings[mappingKey{source: source, sourceID: sourceID}]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *AssetStore) GetByID(ctx context.Context, id string) (*domain.CanonicalAsset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.byID[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *AssetStore) GetBySlug(ctx context.Context, slug string) (*domain.CanonicalAsset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.bySlug[slug]
	if !ok {
		return nil, storage.ErrNotFound
	}
	cp := *s.byID[id]
	return &cp, nil
}

func (s *AssetStore) GetBySymbol(ctx context.Context, symbol string) ([]*domain.CanonicalAsset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.CanonicalAsset
	for _, id := range s.order {
		a := s.byID[id]
		if a.Symbol == symbol {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *AssetStore) UpdateDisplay(ctx context.Context, id, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.byID[id]
	if !ok {
		return storage.ErrNotFound
	}
	a.Name = name
	a.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *AssetStore) ListAssets(ctx context.Context, limit, offset int) ([]*domain.CanonicalAsset, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	// Newest first.
	var out []*domain.CanonicalAsset
	for i := len(s.order) - 1 - offset; i >= 0 && len(out) < limit; i-- {
		cp := *s.byID[s.order[i]]
		out = append(out, &cp)
	}
	return out, nil
}

func (s *AssetStore) ListMappings(ctx context.Context, assetID string) ([]*domain.SourceMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.SourceMapping
	for _, m := range s.mappings {
		if m.AssetID == assetID {
			cp := *m
			out = append(out, &cp)
		}
	}
	return out, nil
}
