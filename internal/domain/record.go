package domain

import (
	"encoding/json"
	"time"
)

// IntermediateRecord is the adapter-normalized form of one provider row,
// before entity resolution. Metrics holds provider values keyed by the
// canonical metric names (price_usd, market_cap_usd, volume_24h); values
// stay loosely typed until drift classification coerces them.
type IntermediateRecord struct {
	Source       Source
	SourceID     string
	SourceSymbol string
	DisplayName  string
	ObservedAt   time.Time
	Metrics      map[string]any
	Raw          json.RawMessage // exact payload for the audit trail
}

// ExtractWindow bounds one extraction pass. Since is nil on a cold start
// (no prior successful run); adapters then fetch their full current view.
type ExtractWindow struct {
	Since *time.Time
	Until time.Time
}
