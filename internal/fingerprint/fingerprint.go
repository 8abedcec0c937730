// Package fingerprint derives stable content digests for fetched payloads.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Sum returns the hex SHA-256 of the canonical form of raw JSON.
// Canonicalisation round-trips the document through Go's generic JSON
// representation, which serialises object keys in sorted order, so two
// payloads that differ only in key order or whitespace hash identically.
// Input that is not valid JSON is hashed as-is.
func Sum(raw json.RawMessage) string {
	canonical := raw
	var value any
	if err := json.Unmarshal(raw, &value); err == nil {
		if encoded, err := json.Marshal(value); err == nil {
			canonical = encoded
		}
	}
	digest := sha256.Sum256(canonical)
	return hex.EncodeToString(digest[:])
}
