package domain

import (
	"encoding/json"
	"time"
)

// RawAudit is an immutable copy of the exact payload an adapter returned,
// kept for traceability. Written for every record regardless of drift
// outcome; never updated.
// Corresponds to raw_audit table in PostgreSQL.
type RawAudit struct {
	ID         int64 // BIGSERIAL primary key
	Source     Source
	Payload    json.RawMessage
	IngestedAt time.Time
}
