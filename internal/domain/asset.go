package domain

import "time"

// CanonicalAsset is the system-owned identity for a real-world asset.
// All observations reference assets by ID, never by raw provider symbols.
// Corresponds to canonical_assets table in PostgreSQL.
//
// The ID is assigned on first sighting and is immutable. The slug is
// globally unique; it is the cross-source join key for entity resolution.
type CanonicalAsset struct {
	ID        string // opaque hex identifier, stable across restarts
	Symbol    string // normalized uppercase ticker, e.g. "BTC"
	Name      string // display name, e.g. "Bitcoin"
	Slug      string // unique URL-safe slug, e.g. "bitcoin"
	CreatedAt time.Time
	UpdatedAt time.Time
}

// SourceMapping links one provider's identifier to exactly one CanonicalAsset.
// (source, source_id) is unique; a mapping is created lazily on first
// resolution and never re-pointed by ETL.
// Corresponds to source_mappings table in PostgreSQL.
type SourceMapping struct {
	AssetID      string // FK to canonical_assets
	Source       Source
	SourceID     string // provider-specific identifier, e.g. "btc-bitcoin"
	SourceSymbol string // symbol as the provider reported it
	SourceName   string // name as the provider reported it (may be empty)
	CreatedAt    time.Time
}
