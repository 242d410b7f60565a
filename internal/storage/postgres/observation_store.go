package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"crypto-metrics-etl/internal/domain"
	"crypto-metrics-etl/internal/storage"
)

// ObservationStore is a PostgreSQL implementation of storage.ObservationStore.
type ObservationStore struct {
	pool *Pool
}

var _ storage.ObservationStore = (*ObservationStore)(nil)

// NewObservationStore creates a new PostgreSQL observation store.
func NewObservationStore(pool *Pool) *ObservationStore {
	return &ObservationStore{pool: pool}
}

// Upsert writes an observation. A conflict on (asset_id, observed_at)
// overwrites the metric columns: last writer wins.
func (s *ObservationStore) Upsert(ctx context.Context, obs *domain.Observation) error {
	if obs == nil || obs.AssetID == "" || obs.ObservedAt.IsZero() {
		return storage.ErrInvalidInput
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO observations (asset_id, symbol, price_usd, market_cap_usd, volume_24h, source, observed_at, ingested_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW())
		ON CONFLICT (asset_id, observed_at) DO UPDATE
		SET symbol = EXCLUDED.symbol,
		    price_usd = EXCLUDED.price_usd,
		    market_cap_usd = EXCLUDED.market_cap_usd,
		    volume_24h = EXCLUDED.volume_24h,
		    source = EXCLUDED.source,
		    ingested_at = NOW()
	`, obs.AssetID, obs.Symbol, obs.PriceUSD, obs.MarketCapUSD, obs.Volume24h, obs.Source, obs.ObservedAt)

	return err
}

// LatestObservedAt returns the newest observed_at written by the source.
func (s *ObservationStore) LatestObservedAt(ctx context.Context, source domain.Source) (*time.Time, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT MAX(observed_at)
		FROM observations
		WHERE source = $1
	`, source)

	var latest *time.Time
	if err := row.Scan(&latest); err != nil {
		return nil, err
	}

	return latest, nil
}

// GetByAsset returns the newest observations for an asset.
func (s *ObservationStore) GetByAsset(ctx context.Context, assetID string, limit int) ([]*domain.Observation, error) {
	if assetID == "" {
		return nil, storage.ErrInvalidInput
	}

	rows, err := s.pool.Query(ctx, `
		SELECT asset_id, symbol, price_usd, market_cap_usd, volume_24h, source, observed_at, ingested_at
		FROM observations
		WHERE asset_id = $1
		ORDER BY observed_at DESC
		LIMIT $2
	`, assetID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanObservations(rows)
}

// GetByAssetRange returns observations within [from, to], ascending.
func (s *ObservationStore) GetByAssetRange(ctx context.Context, assetID string, from, to time.Time) ([]*domain.Observation, error) {
	if assetID == "" {
		return nil, storage.ErrInvalidInput
	}

	rows, err := s.pool.Query(ctx, `
		SELECT asset_id, symbol, price_usd, market_cap_usd, volume_24h, source, observed_at, ingested_at
		FROM observations
		WHERE asset_id = $1 AND observed_at >= $2 AND observed_at <= $3
		ORDER BY observed_at
	`, assetID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanObservations(rows)
}

func scanObservations(rows pgx.Rows) ([]*domain.Observation, error) {
	var obs []*domain.Observation
	for rows.Next() {
		var o domain.Observation
		if err := rows.Scan(&o.AssetID, &o.Symbol, &o.PriceUSD, &o.MarketCapUSD, &o.Volume24h, &o.Source, &o.ObservedAt, &o.IngestedAt); err != nil {
			return nil, err
		}
		obs = append(obs, &o)
	}
	return obs, rows.Err()
}
