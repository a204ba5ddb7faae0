// Package identity builds the user-identification part of a conversion:
// it normalizes and hashes PII and resolves the configured
// identification method into exactly one identity variant.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// NormalizeAndHash lower-cases and trims the input, then returns its
// SHA-256 hex digest. Empty or whitespace-only input returns "" (the
// field is absent, not a hash of the empty string). Deterministic so the
// digest matches the platform's independently-hashed records.
func NormalizeAndHash(input string) string {
	normalized := strings.ToLower(strings.TrimSpace(input))
	if normalized == "" {
		return ""
	}
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
