package postgres

import (
	"context"
	"time"

	"crypto-metrics-etl/internal/storage"
)

// LeaseStore is a PostgreSQL implementation of storage.LeaseStore.
// A single leases row per name; takeover of an expired lease and
// acquisition race both resolve through the conditional upsert.
type LeaseStore struct {
	pool *Pool
}

var _ storage.LeaseStore = (*LeaseStore)(nil)

// NewLeaseStore creates a new PostgreSQL lease store.
func NewLeaseStore(pool *Pool) *LeaseStore {
	return &LeaseStore{pool: pool}
}

// Acquire takes the named lease if it is free or expired. A live lease
// blocks every caller, its own owner included, so two cycles for one
// source can never overlap.
func (s *LeaseStore) Acquire(ctx context.Context, name, owner string, ttl time.Duration) (bool, error) {
	if name == "" || owner == "" || ttl <= 0 {
		return false, storage.ErrInvalidInput
	}

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO leases (name, owner, expires_at)
		VALUES ($1, $2, NOW() + make_interval(secs => $3))
		ON CONFLICT (name) DO UPDATE
		SET owner = EXCLUDED.owner,
		    expires_at = EXCLUDED.expires_at
		WHERE leases.expires_at <= NOW()
	`, name, owner, ttl.Seconds())
	if err != nil {
		return false, err
	}

	return tag.RowsAffected() > 0, nil
}

// Renew extends a lease the owner still holds.
func (s *LeaseStore) Renew(ctx context.Context, name, owner string, ttl time.Duration) (bool, error) {
	if name == "" || owner == "" || ttl <= 0 {
		return false, storage.ErrInvalidInput
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE leases
		SET expires_at = NOW() + make_interval(secs => $3)
		WHERE name = $1 AND owner = $2 AND expires_at > NOW()
	`, name, owner, ttl.Seconds())
	if err != nil {
		return false, err
	}

	return tag.RowsAffected() > 0, nil
}

// Release frees the lease if owner holds it.
func (s *LeaseStore) Release(ctx context.Context, name, owner string) error {
	_, err := s.pool.Exec(ctx, `
		DELETE FROM leases
		WHERE name = $1 AND owner = $2
	`, name, owner)

	return err
}
