// Package reconcile implements the import and export reconcilers (§4.6,
// §4.7): the diff/apply engines that converge a Markdown collection and a
// card store through the sidecar mapping database, grounded on the
// teacher's internal/importer and internal/merge packages' shape (Options/
// Result structs, per-file error accumulation, deterministic ordering).
package reconcile

import (
	"context"
	"sort"

	"github.com/ankiops/ankiops/internal/notetype"
	"github.com/ankiops/ankiops/internal/store"
)

// snapshot is a point-in-time view of the store, fetched once per run so
// every file's classification and orphan computation reads consistent
// data rather than re-querying mid-run.
type snapshot struct {
	deckIDs   map[string]int64           // deck name -> store id
	notes     map[int64]store.NoteInfo   // note id -> info
	noteDeck  map[int64]string           // note id -> the deck its first card sits in
	deckNotes map[string][]int64         // deck name -> note ids currently placed there
}

// fetchSnapshot pulls every deck, every note of a registered type, and
// every card placement the store currently holds.
func fetchSnapshot(ctx context.Context, cl store.Client, reg *notetype.Registry) (*snapshot, error) {
	deckIDs, err := cl.DeckNameToIDMap(ctx)
	if err != nil {
		return nil, err
	}

	typeNames := make([]string, 0)
	for _, s := range reg.All() {
		typeNames = append(typeNames, s.Name)
	}

	noteIDs, err := cl.FindNotesByType(ctx, typeNames)
	if err != nil {
		return nil, err
	}
	notes, err := cl.NotesInfo(ctx, noteIDs)
	if err != nil {
		return nil, err
	}

	var cardIDs []int64
	for _, n := range notes {
		cardIDs = append(cardIDs, n.CardIDs...)
	}
	cards, err := cl.CardsInfo(ctx, cardIDs)
	if err != nil {
		return nil, err
	}

	snap := &snapshot{
		deckIDs:   deckIDs,
		notes:     notes,
		noteDeck:  map[int64]string{},
		deckNotes: map[string][]int64{},
	}
	for id, n := range notes {
		for _, cid := range n.CardIDs {
			if c, ok := cards[cid]; ok {
				snap.noteDeck[id] = c.DeckName
				break
			}
		}
	}
	for id, deck := range snap.noteDeck {
		snap.deckNotes[deck] = append(snap.deckNotes[deck], id)
	}
	for deck := range snap.deckNotes {
		sort.Slice(snap.deckNotes[deck], func(i, j int) bool { return snap.deckNotes[deck][i] < snap.deckNotes[deck][j] })
	}
	return snap, nil
}
