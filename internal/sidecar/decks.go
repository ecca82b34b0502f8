package sidecar

import "fmt"

// DeckMapping is one row of the deck_name<->store_id registry.
type DeckMapping struct {
	DeckName string
	StoreID  int64
}

// GetDeckID looks up the store_id mapped to name.
func (tx *Tx) GetDeckID(name string) (int64, error) {
	var id int64
	err := tx.raw.QueryRow(`SELECT store_id FROM decks WHERE deck_name = ?`, name).Scan(&id)
	if err != nil {
		return 0, wrapDBError(fmt.Sprintf("get deck mapping for %s", name), err)
	}
	return id, nil
}

// UpsertDecks bulk-upserts deck_name<->store_id mappings, last-write-wins
// by name, evicting any row whose store_id collides, mirroring
// UpsertNotes.
func (tx *Tx) UpsertDecks(pairs []DeckMapping) error {
	deduped := make(map[string]int64, len(pairs))
	order := make([]string, 0, len(pairs))
	for _, p := range pairs {
		if _, seen := deduped[p.DeckName]; !seen {
			order = append(order, p.DeckName)
		}
		deduped[p.DeckName] = p.StoreID
	}

	for _, batch := range chunk(order) {
		for _, name := range batch {
			id := deduped[name]
			if _, err := tx.raw.Exec(`DELETE FROM decks WHERE store_id = ? AND deck_name != ?`, id, name); err != nil {
				return wrapDBError("evict conflicting deck mapping", err)
			}
			if _, err := tx.raw.Exec(
				`INSERT INTO decks (deck_name, store_id) VALUES (?, ?)
				 ON CONFLICT(deck_name) DO UPDATE SET store_id = excluded.store_id`,
				name, id); err != nil {
				return wrapDBError("upsert deck mapping", err)
			}
		}
	}
	return nil
}

// DeleteDeck removes a single deck mapping row, used when a rename is
// detected and the old name's mapping is retired in favor of the new one.
func (tx *Tx) DeleteDeck(name string) error {
	_, err := tx.raw.Exec(`DELETE FROM decks WHERE deck_name = ?`, name)
	return wrapDBError("delete deck mapping", err)
}

// AllDecks returns every deck mapping row.
func (tx *Tx) AllDecks() ([]DeckMapping, error) {
	rows, err := tx.raw.Query(`SELECT deck_name, store_id FROM decks`)
	if err != nil {
		return nil, wrapDBError("list deck mappings", err)
	}
	defer rows.Close()

	var out []DeckMapping
	for rows.Next() {
		var m DeckMapping
		if err := rows.Scan(&m.DeckName, &m.StoreID); err != nil {
			return nil, wrapDBError("scan deck mapping", err)
		}
		out = append(out, m)
	}
	return out, wrapDBError("iterate deck mappings", rows.Err())
}
