package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"crypto-metrics-etl/internal/domain"
	"crypto-metrics-etl/internal/storage"
)

// ObservationStore is an in-memory implementation of storage.ObservationStore.
type ObservationStore struct {
	mu   sync.RWMutex
	rows map[obsKey]*domain.Observation
}

type obsKey struct {
	assetID    string
	observedAt time.Time
}

var _ storage.ObservationStore = (*ObservationStore)(nil)

// NewObservationStore creates an empty in-memory observation store.
func NewObservationStore() *ObservationStore {
	return &ObservationStore{rows: make(map[obsKey]*domain.Observation)}
}

func (s *ObservationStore) Upsert(ctx context.Context, obs *domain.Observation) error {
	if obs == nil || obs.AssetID == "" || obs.ObservedAt.IsZero() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *obs
	cp.IngestedAt = time.Now().UTC()
	s.rows[obsKey{assetID: obs.AssetID, observedAt: obs.ObservedAt.UTC()}] = &cp
	return nil
}

func (s *ObservationStore) LatestObservedAt(ctx context.Context, source domain.Source) (*time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *time.Time
	for _, o := range s.rows {
		if o.Source != source {
			continue
		}
		if latest == nil || o.ObservedAt.After(*latest) {
			t := o.ObservedAt
			latest = &t
		}
	}
	return latest, nil
}

func (s *ObservationStore) GetByAsset(ctx context.Context, assetID string, limit int) ([]*domain.Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Observation
	for _, o := range s.rows {
		if o.AssetID == assetID {
			cp := *o
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ObservedAt.After(out[j].ObservedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *ObservationStore) GetByAssetRange(ctx context.Context, assetID string, from, to time.Time) ([]*domain.Observation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Observation
	for _, o := range s.rows {
		if o.AssetID != assetID {
			continue
		}
		if o.ObservedAt.Before(from) || o.ObservedAt.After(to) {
			continue
		}
		cp := *o
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ObservedAt.Before(out[j].ObservedAt)
	})
	return out, nil
}
