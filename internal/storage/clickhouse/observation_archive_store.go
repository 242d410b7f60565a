package clickhouse

import (
	"context"
	"fmt"
	"time"

	"crypto-metrics-etl/internal/domain"
	"crypto-metrics-etl/internal/storage"
)

// ObservationArchiveStore implements storage.ObservationArchive using
// ClickHouse. Rows are append-only; each ETL upsert adds a new version,
// so the archive keeps the full write history per (asset_id, observed_at).
type ObservationArchiveStore struct {
	conn *Conn
}

// NewObservationArchiveStore creates a new ObservationArchiveStore.
func NewObservationArchiveStore(conn *Conn) *ObservationArchiveStore {
	return &ObservationArchiveStore{conn: conn}
}

// Compile-time interface check.
var _ storage.ObservationArchive = (*ObservationArchiveStore)(nil)

// AppendBatch inserts observations as one batch.
func (s *ObservationArchiveStore) AppendBatch(ctx context.Context, obs []*domain.Observation) error {
	if len(obs) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO observation_archive (
			asset_id, symbol, price_usd, market_cap_usd, volume_24h, source, observed_at, ingested_at
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, o := range obs {
		ingested := o.IngestedAt
		if ingested.IsZero() {
			ingested = time.Now().UTC()
		}
		err = batch.Append(
			o.AssetID, o.Symbol,
			o.PriceUSD, o.MarketCapUSD, o.Volume24h,
			o.Source.String(), o.ObservedAt, ingested,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByAsset retrieves archived rows for an asset, ordered by observed_at ASC.
// Multiple rows per observed_at reflect successive overwrites.
func (s *ObservationArchiveStore) GetByAsset(ctx context.Context, assetID string) ([]*domain.Observation, error) {
	query := `
		SELECT asset_id, symbol, price_usd, market_cap_usd, volume_24h, source, observed_at, ingested_at
		FROM observation_archive
		WHERE asset_id = ?
		ORDER BY observed_at ASC, ingested_at ASC
	`

	rows, err := s.conn.Query(ctx, query, assetID)
	if err != nil {
		return nil, fmt.Errorf("query by asset id: %w", err)
	}
	defer rows.Close()

	return scanArchive(rows)
}

// CountBySource returns the number of archived rows per source.
func (s *ObservationArchiveStore) CountBySource(ctx context.Context) (map[domain.Source]uint64, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT source, count(*) FROM observation_archive GROUP BY source
	`)
	if err != nil {
		return nil, fmt.Errorf("query counts: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.Source]uint64)
	for rows.Next() {
		var source string
		var n uint64
		if err := rows.Scan(&source, &n); err != nil {
			return nil, fmt.Errorf("scan count row: %w", err)
		}
		counts[domain.Source(source)] = n
	}

	return counts, rows.Err()
}

// chRows abstracts driver.Rows for scan helpers.
type chRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

// scanArchive scans multiple rows.
func scanArchive(rows chRows) ([]*domain.Observation, error) {
	var obs []*domain.Observation

	for rows.Next() {
		var o domain.Observation
		var source string

		err := rows.Scan(
			&o.AssetID, &o.Symbol,
			&o.PriceUSD, &o.MarketCapUSD, &o.Volume24h,
			&source, &o.ObservedAt, &o.IngestedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan archive row: %w", err)
		}

		o.Source = domain.Source(source)
		obs = append(obs, &o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate archive rows: %w", err)
	}

	return obs, nil
}
