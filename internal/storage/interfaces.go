package storage

import (
	"context"
	"time"

	"crypto-metrics-etl/internal/domain"
)

// AssetStore persists canonical assets and their per-source mappings.
type AssetStore interface {
	// CreateWithMapping inserts a new asset and its first mapping in one
	// transaction. Returns ErrDuplicateKey if the slug or the
	// (source, source_id) pair already exists; neither row is written then.
	CreateWithMapping(ctx context.Context, asset *domain.CanonicalAsset, mapping *domain.SourceMapping) error

	// InsertMapping attaches a new provider mapping to an existing asset.
	// Returns ErrDuplicateKey if (source, source_id) is already mapped.
	InsertMapping(ctx context.Context, mapping *domain.SourceMapping) error

	// GetMapping returns the mapping for (source, sourceID), or ErrNotFound.
	GetMapping(ctx context.Context, source domain.Source, sourceID string) (*domain.SourceMapping, error)

	// GetByID returns the asset with the given ID, or ErrNotFound.
	GetByID(ctx context.Context, id string) (*domain.CanonicalAsset, error)

	// GetBySlug returns the asset with the given slug, or ErrNotFound.
	GetBySlug(ctx context.Context, slug string) (*domain.CanonicalAsset, error)

	// GetBySymbol returns all assets sharing a normalized symbol. Symbols
	// are not unique; callers must handle multiple matches.
	GetBySymbol(ctx context.Context, symbol string) ([]*domain.CanonicalAsset, error)

	// UpdateDisplay refreshes the display name of an existing asset.
	UpdateDisplay(ctx context.Context, id, name string) error

	// ListAssets returns assets ordered by creation time, newest first.
	ListAssets(ctx context.Context, limit, offset int) ([]*domain.CanonicalAsset, error)

	// ListMappings returns all provider mappings for one asset.
	ListMappings(ctx context.Context, assetID string) ([]*domain.SourceMapping, error)
}

// ObservationStore persists normalized metric observations.
type ObservationStore interface {
	// Upsert writes an observation, overwriting metric fields when a row
	// for (asset_id, observed_at) already exists. Last writer wins.
	Upsert(ctx context.Context, obs *domain.Observation) error

	// LatestObservedAt returns the newest observed_at written by the given
	// source, or nil when the source has never written.
	LatestObservedAt(ctx context.Context, source domain.Source) (*time.Time, error)

	// GetByAsset returns the newest observations for an asset.
	GetByAsset(ctx context.Context, assetID string, limit int) ([]*domain.Observation, error)

	// GetByAssetRange returns observations for an asset within
	// [from, to], ordered by observed_at ascending.
	GetByAssetRange(ctx context.Context, assetID string, from, to time.Time) ([]*domain.Observation, error)
}

// RawAuditStore persists immutable copies of provider payloads.
type RawAuditStore interface {
	// Insert appends one audit row and fills in its ID.
	Insert(ctx context.Context, rec *domain.RawAudit) error

	// ListBySource returns the newest audit rows for a source.
	ListBySource(ctx context.Context, source domain.Source, limit int) ([]*domain.RawAudit, error)
}

// JobStore persists ETL cycle records.
type JobStore interface {
	// Create inserts a RUNNING job row and fills in its ID.
	Create(ctx context.Context, run *domain.JobRun) error

	// Finish records the terminal status and counters of a run.
	Finish(ctx context.Context, run *domain.JobRun) error

	// LastCheckpoint returns the checkpoint of the most recent SUCCESS or
	// PARTIAL run for the source, or nil when no such run exists.
	LastCheckpoint(ctx context.Context, source domain.Source) (*time.Time, error)

	// ListBySource returns runs for one source, newest first.
	ListBySource(ctx context.Context, source domain.Source, limit int) ([]*domain.JobRun, error)

	// ListRecent returns runs across all sources, newest first.
	ListRecent(ctx context.Context, limit int) ([]*domain.JobRun, error)
}

// LeaseStore provides coarse cross-process mutual exclusion. A lease is
// held by at most one owner until released or expired.
type LeaseStore interface {
	// Acquire takes the named lease for owner if it is free or expired.
	// Returns false while a live lease exists, even one held by the
	// same owner; a held lease is extended through Renew, never Acquire.
	Acquire(ctx context.Context, name, owner string, ttl time.Duration) (bool, error)

	// Renew extends a lease the owner already holds. Returns false when
	// the lease is held by someone else or has been lost.
	Renew(ctx context.Context, name, owner string, ttl time.Duration) (bool, error)

	// Release frees the lease if owner holds it. Releasing a lease held
	// by another owner is a no-op.
	Release(ctx context.Context, name, owner string) error
}

// ObservationArchive mirrors observations into an append-only analytical
// store. Writes are best-effort; the relational store stays authoritative.
type ObservationArchive interface {
	AppendBatch(ctx context.Context, obs []*domain.Observation) error
}
