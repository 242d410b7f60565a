package postgres

import (
	"context"

	"crypto-metrics-etl/internal/domain"
	"crypto-metrics-etl/internal/storage"
)

// RawAuditStore is a PostgreSQL implementation of storage.RawAuditStore.
// Rows are append-only.
type RawAuditStore struct {
	pool *Pool
}

var _ storage.RawAuditStore = (*RawAuditStore)(nil)

// NewRawAuditStore creates a new PostgreSQL raw audit store.
func NewRawAuditStore(pool *Pool) *RawAuditStore {
	return &RawAuditStore{pool: pool}
}

// Insert appends one audit row and fills in its ID.
func (s *RawAuditStore) Insert(ctx context.Context, rec *domain.RawAudit) error {
	if rec == nil || len(rec.Payload) == 0 {
		return storage.ErrInvalidInput
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO raw_audit (source, payload, ingested_at)
		VALUES ($1, $2, NOW())
		RETURNING id, ingested_at
	`, rec.Source, rec.Payload)

	return row.Scan(&rec.ID, &rec.IngestedAt)
}

// ListBySource returns the newest audit rows for a source.
func (s *RawAuditStore) ListBySource(ctx context.Context, source domain.Source, limit int) ([]*domain.RawAudit, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, source, payload, ingested_at
		FROM raw_audit
		WHERE source = $1
		ORDER BY id DESC
		LIMIT $2
	`, source, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var recs []*domain.RawAudit
	for rows.Next() {
		var r domain.RawAudit
		if err := rows.Scan(&r.ID, &r.Source, &r.Payload, &r.IngestedAt); err != nil {
			return nil, err
		}
		recs = append(recs, &r)
	}

	return recs, rows.Err()
}
