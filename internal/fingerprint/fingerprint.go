// Package fingerprint computes the stable content fingerprint used to
// cache "known unchanged" notes across reconciliation runs, following the
// same canonicalize-then-hash-then-truncate shape as the teacher's
// internal/idgen hash-ID generator.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// Length is the fixed size, in hex characters, of a fingerprint.
const Length = 8

// canonical is the JSON-serializable shape fingerprints are computed over:
// note type name plus fields sorted by name, so that field insertion order
// never perturbs the digest.
type canonical struct {
	NoteType string          `json:"note_type"`
	Fields   []canonicalPair `json:"fields"`
}

type canonicalPair struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Compute returns the 8-hex-character fingerprint of (noteType, fields).
// It is pure and deterministic: encoding/json with sorted field names,
// UTF-8, no extraneous whitespace (json.Marshal's compact default), fed to
// SHA-256 and truncated to the first 4 bytes.
func Compute(noteType string, fields map[string]string) string {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	c := canonical{
		NoteType: noteType,
		Fields:   make([]canonicalPair, 0, len(names)),
	}
	for _, name := range names {
		c.Fields = append(c.Fields, canonicalPair{Name: name, Value: fields[name]})
	}

	// json.Marshal escapes non-ASCII by default only for HTML-sensitive
	// runes; SetEscapeHTML(false) via an Encoder would be needed to avoid
	// that, but the digest only needs determinism, not human-readability,
	// so the default marshaler is sufficient here.
	b, err := json.Marshal(c)
	if err != nil {
		// Marshal of a struct of strings cannot fail.
		panic(err)
	}

	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:Length/2])
}
