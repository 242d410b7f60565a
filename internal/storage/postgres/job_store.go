package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"crypto-metrics-etl/internal/domain"
	"crypto-metrics-etl/internal/storage"
)

// JobStore is a PostgreSQL implementation of storage.JobStore.
type JobStore struct {
	pool *Pool
}

var _ storage.JobStore = (*JobStore)(nil)

// NewJobStore creates a new PostgreSQL job store.
func NewJobStore(pool *Pool) *JobStore {
	return &JobStore{pool: pool}
}

// Create inserts a RUNNING job row and fills in its ID and start time.
func (s *JobStore) Create(ctx context.Context, run *domain.JobRun) error {
	if run == nil || !run.Source.IsValid() {
		return storage.ErrInvalidInput
	}
	if run.Status == "" {
		run.Status = domain.JobRunning
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO job_runs (source, status, started_at)
		VALUES ($1, $2, NOW())
		RETURNING id, started_at
	`, run.Source, run.Status)

	return row.Scan(&run.ID, &run.StartedAt)
}

// Finish records the terminal status and counters of a run.
func (s *JobStore) Finish(ctx context.Context, run *domain.JobRun) error {
	if run == nil || run.ID == 0 {
		return storage.ErrInvalidInput
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE job_runs
		SET status = $2,
		    finished_at = NOW(),
		    records_seen = $3,
		    records_dropped = $4,
		    records_quarantined = $5,
		    records_upserted = $6,
		    checkpoint = $7,
		    error = $8
		WHERE id = $1
	`, run.ID, run.Status, run.RecordsSeen, run.RecordsDropped, run.RecordsQuarantined, run.RecordsUpserted, run.Checkpoint, run.Error)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}

	return nil
}

// LastCheckpoint returns the checkpoint of the most recent run that
// committed data (SUCCESS or PARTIAL).
func (s *JobStore) LastCheckpoint(ctx context.Context, source domain.Source) (*time.Time, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT checkpoint
		FROM job_runs
		WHERE source = $1 AND status = ANY($2) AND checkpoint IS NOT NULL
		ORDER BY started_at DESC
		LIMIT 1
	`, source, []string{string(domain.JobSuccess), string(domain.JobPartial)})

	var cp *time.Time
	if err := row.Scan(&cp); err != nil {
		if isNotFoundError(err) {
			return nil, nil
		}
		return nil, err
	}

	return cp, nil
}

// ListBySource returns runs for one source, newest first.
func (s *JobStore) ListBySource(ctx context.Context, source domain.Source, limit int) ([]*domain.JobRun, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, source, status, started_at, finished_at,
		       records_seen, records_dropped, records_quarantined, records_upserted,
		       checkpoint, error
		FROM job_runs
		WHERE source = $1
		ORDER BY started_at DESC
		LIMIT $2
	`, source, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanJobRuns(rows)
}

// ListRecent returns runs across all sources, newest first.
func (s *JobStore) ListRecent(ctx context.Context, limit int) ([]*domain.JobRun, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, source, status, started_at, finished_at,
		       records_seen, records_dropped, records_quarantined, records_upserted,
		       checkpoint, error
		FROM job_runs
		ORDER BY started_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanJobRuns(rows)
}

func scanJobRuns(rows pgx.Rows) ([]*domain.JobRun, error) {
	var runs []*domain.JobRun
	for rows.Next() {
		var r domain.JobRun
		err := rows.Scan(&r.ID, &r.Source, &r.Status, &r.StartedAt, &r.FinishedAt,
			&r.RecordsSeen, &r.RecordsDropped, &r.RecordsQuarantined, &r.RecordsUpserted,
			&r.Checkpoint, &r.Error)
		if err != nil {
			return nil, err
		}
		runs = append(runs, &r)
	}
	return runs, rows.Err()
}
