package memory

import (
	"context"
	"sync"
	"time"

	"crypto-metrics-etl/internal/storage"
)

// LeaseStore is an in-memory implementation of storage.LeaseStore.
// Only useful within one process; cross-process exclusion needs the
// PostgreSQL implementation.
type LeaseStore struct {
	mu     sync.Mutex
	leases map[string]lease
	now    func() time.Time
}

type lease struct {
	owner     string
	expiresAt time.Time
}

var _ storage.LeaseStore = (*LeaseStore)(nil)

// NewLeaseStore creates an empty in-memory lease store.
func NewLeaseStore() *LeaseStore {
	return &LeaseStore{
		leases: make(map[string]lease),
		now:    time.Now,
	}
}

func (s *LeaseStore) Acquire(ctx context.Context, name, owner string, ttl time.Duration) (bool, error) {
	if name == "" || owner == "" || ttl <= 0 {
		return false, storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	// A live lease blocks everyone, its own owner included; re-entry
	// would let two cycles for one source run side by side.
	if l, ok := s.leases[name]; ok && l.expiresAt.After(now) {
		return false, nil
	}
	s.leases[name] = lease{owner: owner, expiresAt: now.Add(ttl)}
	return true, nil
}

func (s *LeaseStore) Renew(ctx context.Context, name, owner string, ttl time.Duration) (bool, error) {
	if name == "" || owner == "" || ttl <= 0 {
		return false, storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	l, ok := s.leases[name]
	if !ok || l.owner != owner || !l.expiresAt.After(now) {
		return false, nil
	}
	s.leases[name] = lease{owner: owner, expiresAt: now.Add(ttl)}
	return true, nil
}

func (s *LeaseStore) Release(ctx context.Context, name, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if l, ok := s.leases[name]; ok && l.owner == owner {
		delete(s.leases, name)
	}
	return nil
}
