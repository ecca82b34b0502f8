package sidecar

import "fmt"

// NoteMapping is one row of the bijective stable_key<->store_id registry.
type NoteMapping struct {
	StableKey string
	StoreID   int64
}

// GetNoteByKey looks up the store_id mapped to key.
func (tx *Tx) GetNoteByKey(key string) (int64, error) {
	var id int64
	err := tx.raw.QueryRow(`SELECT store_id FROM notes WHERE stable_key = ?`, key).Scan(&id)
	if err != nil {
		return 0, wrapDBError(fmt.Sprintf("get note mapping for key %s", key), err)
	}
	return id, nil
}

// GetNoteByStoreID looks up the stable_key mapped to id.
func (tx *Tx) GetNoteByStoreID(id int64) (string, error) {
	var key string
	err := tx.raw.QueryRow(`SELECT stable_key FROM notes WHERE store_id = ?`, id).Scan(&key)
	if err != nil {
		return "", wrapDBError(fmt.Sprintf("get note mapping for store id %d", id), err)
	}
	return key, nil
}

// UpsertNotes bulk-upserts stable_key<->store_id mappings with
// last-write-wins semantics: pairs are deduped by key, keeping the last
// occurrence; before insertion, any row whose store_id collides is deleted
// so that reassigning a store_id to a new key evicts the old key, per §4.3
// and the notes-table bijection invariant in §3.
func (tx *Tx) UpsertNotes(pairs []NoteMapping) error {
	deduped := make(map[string]int64, len(pairs))
	order := make([]string, 0, len(pairs))
	for _, p := range pairs {
		if _, seen := deduped[p.StableKey]; !seen {
			order = append(order, p.StableKey)
		}
		deduped[p.StableKey] = p.StoreID
	}

	for _, batch := range chunk(order) {
		for _, key := range batch {
			id := deduped[key]
			if _, err := tx.raw.Exec(`DELETE FROM notes WHERE store_id = ? AND stable_key != ?`, id, key); err != nil {
				return wrapDBError("evict conflicting note mapping", err)
			}
			if _, err := tx.raw.Exec(
				`INSERT INTO notes (stable_key, store_id) VALUES (?, ?)
				 ON CONFLICT(stable_key) DO UPDATE SET store_id = excluded.store_id`,
				key, id); err != nil {
				return wrapDBError("upsert note mapping", err)
			}
		}
	}
	return nil
}

// DeleteNotesByKey bulk-deletes mapping rows (and cascaded fingerprint
// rows) for the given keys, chunked to stay within host parameter limits.
func (tx *Tx) DeleteNotesByKey(keys []string) error {
	for _, batch := range chunk(keys) {
		placeholders, args := inClause(batch)
		query := `DELETE FROM notes WHERE stable_key IN (` + placeholders + `)`
		if _, err := tx.raw.Exec(query, args...); err != nil {
			return wrapDBError("bulk delete note mappings", err)
		}
	}
	return nil
}

// AllNotes returns every mapping row, used for orphan detection and
// corruption-recovery verification.
func (tx *Tx) AllNotes() ([]NoteMapping, error) {
	rows, err := tx.raw.Query(`SELECT stable_key, store_id FROM notes`)
	if err != nil {
		return nil, wrapDBError("list note mappings", err)
	}
	defer rows.Close()

	var out []NoteMapping
	for rows.Next() {
		var m NoteMapping
		if err := rows.Scan(&m.StableKey, &m.StoreID); err != nil {
			return nil, wrapDBError("scan note mapping", err)
		}
		out = append(out, m)
	}
	return out, wrapDBError("iterate note mappings", rows.Err())
}
