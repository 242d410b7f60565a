package memory

import (
	"context"
	"sync"
	"time"

	"crypto-metrics-etl/internal/domain"
	"crypto-metrics-etl/internal/storage"
)

// JobStore is an in-memory implementation of storage.JobStore.
type JobStore struct {
	mu     sync.RWMutex
	rows   []*domain.JobRun
	nextID int64
}

var _ storage.JobStore = (*JobStore)(nil)

// NewJobStore creates an empty in-memory job store.
func NewJobStore() *JobStore {
	return &JobStore{nextID: 1}
}

func (s *JobStore) Create(ctx context.Context, run *domain.JobRun) error {
	if run == nil || !run.Source.IsValid() {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	cp := *run
	cp.ID = s.nextID
	s.nextID++
	if cp.Status == "" {
		cp.Status = domain.JobRunning
	}
	if cp.StartedAt.IsZero() {
		cp.StartedAt = time.Now().UTC()
	}
	s.rows = append(s.rows, &cp)
	run.ID = cp.ID
	run.Status = cp.Status
	run.StartedAt = cp.StartedAt
	return nil
}

func (s *JobStore) Finish(ctx context.Context, run *domain.JobRun) error {
	if run == nil || run.ID == 0 {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.rows {
		if r.ID != run.ID {
			continue
		}
		r.Status = run.Status
		r.RecordsSeen = run.RecordsSeen
		r.RecordsDropped = run.RecordsDropped
		r.RecordsQuarantined = run.RecordsQuarantined
		r.RecordsUpserted = run.RecordsUpserted
		r.Error = run.Error
		if run.Checkpoint != nil {
			t := *run.Checkpoint
			r.Checkpoint = &t
		}
		if run.FinishedAt != nil {
			t := *run.FinishedAt
			r.FinishedAt = &t
		} else {
			now := time.Now().UTC()
			r.FinishedAt = &now
		}
		return nil
	}
	return storage.ErrNotFound
}

func (s *JobStore) LastCheckpoint(ctx context.Context, source domain.Source) (*time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for i := len(s.rows) - 1; i >= 0; i-- {
		r := s.rows[i]
		if r.Source != source || !r.Status.Committed() || r.Checkpoint == nil {
			continue
		}
		t := *r.Checkpoint
		return &t, nil
	}
	return nil, nil
}

func (s *JobStore) ListBySource(ctx context.Context, source domain.Source, limit int) ([]*domain.JobRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.JobRun
	for i := len(s.rows) - 1; i >= 0; i-- {
		if s.rows[i].Source != source {
			continue
		}
		out = append(out, copyRun(s.rows[i]))
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *JobStore) ListRecent(ctx context.Context, limit int) ([]*domain.JobRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.JobRun
	for i := len(s.rows) - 1; i >= 0; i-- {
		out = append(out, copyRun(s.rows[i]))
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func copyRun(r *domain.JobRun) *domain.JobRun {
	cp := *r
	if r.Checkpoint != nil {
		t := *r.Checkpoint
		cp.Checkpoint = &t
	}
	if r.FinishedAt != nil {
		t := *r.FinishedAt
		cp.FinishedAt = &t
	}
	return &cp
}
