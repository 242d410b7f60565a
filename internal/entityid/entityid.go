// Package entityid derives stable identifiers for canonical assets.
//
// IDs are content-derived rather than sequence-assigned so that two
// processes resolving the same asset concurrently produce the same ID,
// and so IDs survive database rebuilds.
package entityid

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// AssetID computes the deterministic identifier for a canonical asset.
// The slug is the sole input: it is the unique cross-source join key,
// so equal slugs must yield equal IDs.
func AssetID(slug string) string {
	h := sha256.Sum256([]byte("asset|" + strings.ToLower(strings.TrimSpace(slug))))
	return hex.EncodeToString(h[:])
}

// NormalizeSymbol canonicalizes a provider-reported ticker symbol.
func NormalizeSymbol(symbol string) string {
	return strings.ToUpper(strings.TrimSpace(symbol))
}
