package memory

import (
	"context"
	"sync"
	"time"

	"crypto-metrics-etl/internal/domain"
	"crypto-metrics-etl/internal/storage"
)

// RawAuditStore is an in-memory implementation of storage.RawAuditStore.
type RawAuditStore struct {
	mu     sync.RWMutex
	rows   []*domain.RawAudit
	nextID int64
}

var _ storage.RawAuditStore = (*RawAuditStore)(nil)

// NewRawAuditStore creates an empty in-memory audit store.
func NewRawAuditStore() *RawAuditStore {
	return &RawAuditStore{nextID: 1}
}

func (s *RawAuditStore) Insert(ctx context.Context, rec *domain.RawAudit) error {
	if rec == nil || len(rec.Payload) == 0 {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *rec
	cp.ID = s.nextID
	s.nextID++
	if cp.IngestedAt.IsZero() {
		cp.IngestedAt = time.Now().UTC()
	}
	cp.Payload = append([]byte(nil), rec.Payload...)
	s.rows = append(s.rows, &cp)
	rec.ID = cp.ID
	return nil
}

func (s *RawAuditStore) ListBySource(ctx context.Context, source domain.Source, limit int) ([]*domain.RawAudit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.RawAudit
	for i := len(s.rows) - 1; i >= 0; i-- {
		if s.rows[i].Source != source {
			continue
		}
		cp := *s.rows[i]
		cp.Payload = append([]byte(nil), s.rows[i].Payload...)
		out = append(out, &cp)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}
