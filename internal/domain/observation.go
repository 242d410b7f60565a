package domain

import "time"

// Observation is one normalized metric measurement for a canonical asset.
// (asset_id, observed_at) is unique; re-ingestion of the same asset/time
// overwrites metric fields (last writer wins).
// Corresponds to observations table in PostgreSQL.
type Observation struct {
	AssetID      string // FK to canonical_assets
	Symbol       string // denormalized for read convenience, not authoritative
	PriceUSD     *float64
	MarketCapUSD *float64
	Volume24h    *float64
	Source       Source    // provider that produced the winning write
	ObservedAt   time.Time // provider-reported measurement time
	IngestedAt   time.Time // when this row was (re)written
}
