package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"crypto-metrics-etl/internal/domain"
	"crypto-metrics-etl/internal/storage"
)

// AssetStore is a PostgreSQL implementation of storage.AssetStore.
// Uses two tables:
//   - canonical_assets: one row per resolved asset, slug unique
//   - source_mappings: (source, source_id) -> asset_id, pair unique
type AssetStore struct {
	pool *Pool
}

var _ storage.AssetStore = (*AssetStore)(nil)

// NewAssetStore creates a new PostgreSQL asset store.
func NewAssetStore(pool *Pool) *AssetStore {
	return &AssetStore{pool: pool}
}

// CreateWithMapping inserts the asset and its first mapping in one
// transaction so a unique violation on either table rolls back both.
func (s *AssetStore) CreateWithMapping(ctx context.Context, asset *domain.CanonicalAsset, mapping *domain.SourceMapping) error {
	if asset == nil || mapping == nil {
		return storage.ErrInvalidInput
	}
	if asset.ID == "" || asset.Slug == "" || mapping.SourceID == "" {
		return storage.ErrInvalidInput
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO canonical_assets (id, symbol, name, slug, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
	`, asset.ID, asset.Symbol, asset.Name, asset.Slug)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert asset: %w", err)
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO source_mappings (source, source_id, asset_id, source_symbol, source_name, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
	`, mapping.Source, mapping.SourceID, asset.ID, mapping.SourceSymbol, mapping.SourceName)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert mapping: %w", err)
	}

	return tx.Commit(ctx)
}

// InsertMapping attaches a new provider mapping to an existing asset.
func (s *AssetStore) InsertMapping(ctx context.Context, mapping *domain.SourceMapping) error {
	if mapping == nil || mapping.AssetID == "" || mapping.SourceID == "" {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO source_mappings (source, source_id, asset_id, source_symbol, source_name, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
	`, mapping.Source, mapping.SourceID, mapping.AssetID, mapping.SourceSymbol, mapping.SourceName)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return err
	}

	return nil
}

// GetMapping returns the mapping for (source, sourceID).
func (s *AssetStore) GetMapping(ctx context.Context, source domain.Source, sourceID string) (*domain.SourceMapping, error) {
	if sourceID == "" {
		return nil, storage.ErrInvalidInput
	}

	row := s.pool.QueryRow(ctx, `
		SELECT source, source_id, asset_id, source_symbol, source_name, created_at
		FROM source_mappings
		WHERE source = $1 AND source_id = $2
	`, source, sourceID)

	return scanMapping(row)
}

// GetByID returns the asset with the given ID.
func (s *AssetStore) GetByID(ctx context.Context, id string) (*domain.CanonicalAsset, error) {
	if id == "" {
		return nil, storage.ErrInvalidInput
	}

	row := s.pool.QueryRow(ctx, `
		SELECT id, symbol, name, slug, created_at, updated_at
		FROM canonical_assets
		WHERE id = $1
	`, id)

	return scanAsset(row)
}

// GetBySlug returns the asset with the given slug.
func (s *AssetStore) GetBySlug(ctx context.Context, slug string) (*domain.CanonicalAsset, error) {
	if slug == "" {
		return nil, storage.ErrInvalidInput
	}

	row := s.pool.QueryRow(ctx, `
		SELECT id, symbol, name, slug, created_at, updated_at
		FROM canonical_assets
		WHERE slug = $1
	`, slug)

	return scanAsset(row)
}

// GetBySymbol returns all assets sharing a symbol.
func (s *AssetStore) GetBySymbol(ctx context.Context, symbol string) ([]*domain.CanonicalAsset, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, symbol, name, slug, created_at, updated_at
		FROM canonical_assets
		WHERE symbol = $1
		ORDER BY created_at
	`, symbol)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanAssets(rows)
}

// UpdateDisplay refreshes the display name of an existing asset.
func (s *AssetStore) UpdateDisplay(ctx context.Context, id, name string) error {
	if id == "" {
		return storage.ErrInvalidInput
	}

	tag, err := s.pool.Exec(ctx, `
		UPDATE canonical_assets
		SET name = $2, updated_at = NOW()
		WHERE id = $1
	`, id, name)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}

	return nil
}

// ListAssets returns assets ordered by creation time, newest first.
func (s *AssetStore) ListAssets(ctx context.Context, limit, offset int) ([]*domain.CanonicalAsset, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, symbol, name, slug, created_at, updated_at
		FROM canonical_assets
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanAssets(rows)
}

// ListMappings returns all provider mappings for one asset.
func (s *AssetStore) ListMappings(ctx context.Context, assetID string) ([]*domain.SourceMapping, error) {
	if assetID == "" {
		return nil, storage.ErrInvalidInput
	}

	rows, err := s.pool.Query(ctx, `
		SELECT source, source_id, asset_id, source_symbol, source_name, created_at
		FROM source_mappings
		WHERE asset_id = $1
		ORDER BY created_at
	`, assetID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var mappings []*domain.SourceMapping
	for rows.Next() {
		m, err := scanMapping(rows)
		if err != nil {
			return nil, err
		}
		mappings = append(mappings, m)
	}

	return mappings, rows.Err()
}

func scanAsset(row pgx.Row) (*domain.CanonicalAsset, error) {
	var a domain.CanonicalAsset
	err := row.Scan(&a.ID, &a.Symbol, &a.Name, &a.Slug, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	return &a, nil
}

func scanAssets(rows pgx.Rows) ([]*domain.CanonicalAsset, error) {
	var assets []*domain.CanonicalAsset
	for rows.Next() {
		var a domain.CanonicalAsset
		if err := rows.Scan(&a.ID, &a.Symbol, &a.Name, &a.Slug, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		assets = append(assets, &a)
	}
	return assets, rows.Err()
}

func scanMapping(row pgx.Row) (*domain.SourceMapping, error) {
	var m domain.SourceMapping
	err := row.Scan(&m.Source, &m.SourceID, &m.AssetID, &m.SourceSymbol, &m.SourceName, &m.CreatedAt)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}
