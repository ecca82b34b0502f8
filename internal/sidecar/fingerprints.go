package sidecar

import "fmt"

// NoteFingerprint caches the last-seen Markdown-side and store-side
// content fingerprints for a note, letting the reconcilers skip notes
// whose content hasn't changed on either side since the last run (§4.4).
type NoteFingerprint struct {
	StableKey string
	MDFp      string
	StoreFp   string
}

// GetNoteFingerprint returns the cached fingerprint pair for key, or
// ErrNotFound if the note has never been synced before.
func (tx *Tx) GetNoteFingerprint(key string) (NoteFingerprint, error) {
	var fp NoteFingerprint
	fp.StableKey = key
	err := tx.raw.QueryRow(`SELECT md_fp, store_fp FROM note_fingerprints WHERE stable_key = ?`, key).
		Scan(&fp.MDFp, &fp.StoreFp)
	if err != nil {
		return NoteFingerprint{}, wrapDBError(fmt.Sprintf("get fingerprint for key %s", key), err)
	}
	return fp, nil
}

// UpsertNoteFingerprints bulk-writes fingerprint rows, chunked.
func (tx *Tx) UpsertNoteFingerprints(fps []NoteFingerprint) error {
	for _, batch := range chunk(fps) {
		for _, fp := range batch {
			if _, err := tx.raw.Exec(
				`INSERT INTO note_fingerprints (stable_key, md_fp, store_fp) VALUES (?, ?, ?)
				 ON CONFLICT(stable_key) DO UPDATE SET md_fp = excluded.md_fp, store_fp = excluded.store_fp`,
				fp.StableKey, fp.MDFp, fp.StoreFp); err != nil {
				return wrapDBError("upsert note fingerprint", err)
			}
		}
	}
	return nil
}

// DeleteNoteFingerprints removes cached fingerprint rows for the given
// keys, chunked. Called after DeleteNotesByKey; rows left orphaned by any
// other path are pruned at end of run by PruneOrphanFingerprints.
func (tx *Tx) DeleteNoteFingerprints(keys []string) error {
	for _, batch := range chunk(keys) {
		placeholders, args := inClause(batch)
		if _, err := tx.raw.Exec(`DELETE FROM note_fingerprints WHERE stable_key IN (`+placeholders+`)`, args...); err != nil {
			return wrapDBError("bulk delete note fingerprints", err)
		}
	}
	return nil
}

// PruneOrphanFingerprints deletes note_fingerprints rows whose stable_key
// no longer has a backing row in notes, per the end-of-run cleanup in §4.6.
func (tx *Tx) PruneOrphanFingerprints() error {
	_, err := tx.raw.Exec(`DELETE FROM note_fingerprints WHERE stable_key NOT IN (SELECT stable_key FROM notes)`)
	return wrapDBError("prune orphan fingerprints", err)
}

// GetNoteTypeState returns the cached content hash of a note type's
// YAML+template definition, used to detect type-schema drift between runs
// (§4.5).
func (tx *Tx) GetNoteTypeState(typeName string) (string, error) {
	var hash string
	err := tx.raw.QueryRow(`SELECT content_hash FROM note_type_state WHERE type_name = ?`, typeName).Scan(&hash)
	if err != nil {
		return "", wrapDBError(fmt.Sprintf("get note type state for %s", typeName), err)
	}
	return hash, nil
}

// SetNoteTypeState records the content hash last observed for typeName.
func (tx *Tx) SetNoteTypeState(typeName, contentHash string) error {
	_, err := tx.raw.Exec(
		`INSERT INTO note_type_state (type_name, content_hash) VALUES (?, ?)
		 ON CONFLICT(type_name) DO UPDATE SET content_hash = excluded.content_hash`,
		typeName, contentHash)
	return wrapDBError("set note type state", err)
}
