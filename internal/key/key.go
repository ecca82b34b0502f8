// Package key mints the stable keys that carry note identity across the
// card store and the Markdown collection. Unlike the teacher's semantic,
// content-derived hash IDs (internal/idgen), a stable key has no relation
// to note content: it must remain fixed for the note's entire lifetime
// even as fields change, so it is drawn straight from a CSPRNG rather than
// hashed from title/description/creator.
package key

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
)

// Length is the fixed size, in hex characters, of a stable key.
const Length = 12

// byteLength is the number of random bytes needed to produce Length hex
// characters (two hex chars per byte).
const byteLength = Length / 2

// Generate returns a new stable key: 12 lowercase hex characters drawn from
// a cryptographically secure source. No collision check is performed here;
// 48 bits of entropy is sufficient at expected collection sizes, and the
// sidecar database's UNIQUE constraint on stable_key enforces the
// collection-wide uniqueness invariant, forcing the caller to regenerate on
// the rare collision.
func Generate() (string, error) {
	buf := make([]byte, byteLength)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate stable key: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// Valid reports whether s has the shape of a stable key: exactly Length
// lowercase hex characters. It does not consult the sidecar database.
func Valid(s string) bool {
	if len(s) != Length {
		return false
	}
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'f':
		default:
			return false
		}
	}
	return true
}
