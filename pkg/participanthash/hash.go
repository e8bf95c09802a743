// Package participanthash derives opaque identifiers for anonymous survey
// participants. The hash is salted per deployment so raw channel identifiers
// (session cookies, device fingerprints) never reach storage.
package participanthash

import (
	"encoding/hex"

	"golang.org/x/crypto/sha3"
)

// Derive produces a hex-encoded SHA3-256 digest of the raw channel identifier
// mixed with the deployment salt. The result is stable for the same inputs,
// which is what makes attempt counting for anonymous participants possible.
func Derive(salt, raw string) string {
	sum := sha3.Sum256([]byte(salt + ":" + raw))
	return hex.EncodeToString(sum[:])
}

// ShortPrefixLen is the number of leading characters used where a compact,
// privacy-safe identifier is needed (logs, interference checks). A prefix
// comparison is a probabilistic uniqueness check, not a guarantee.
const ShortPrefixLen = 8

// Short truncates a derived hash to ShortPrefixLen characters.
func Short(hash string) string {
	if len(hash) <= ShortPrefixLen {
		return hash
	}
	return hash[:ShortPrefixLen]
}
