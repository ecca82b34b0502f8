// Package storetest provides an in-memory fake of store.Client for use in
// reconciler and orchestrator tests, the way the teacher's
// internal/storage/memory package backs storage-interface tests without a
// real SQLite file.
package storetest

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ankiops/ankiops/internal/store"
)

// Fake is an in-memory store.Client.
type Fake struct {
	mu sync.Mutex

	nextID  int64
	Decks   map[string]int64            // name -> id
	Notes   map[int64]store.NoteInfo    // id -> note
	Cards   map[int64]store.CardInfo    // card id -> card
	NoteCards map[int64][]int64         // note id -> card ids
	Media   map[string][]byte
	MediaDir string
}

// New returns an empty fake store.
func New() *Fake {
	return &Fake{
		Decks:     map[string]int64{},
		Notes:     map[int64]store.NoteInfo{},
		Cards:     map[int64]store.CardInfo{},
		NoteCards: map[int64][]int64{},
		Media:     map[string][]byte{},
		MediaDir:  "/store/media",
	}
}

func (f *Fake) nextIDLocked() int64 {
	f.nextID++
	return f.nextID
}

func (f *Fake) DeckNameToIDMap(ctx context.Context) (map[string]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]int64, len(f.Decks))
	for k, v := range f.Decks {
		out[k] = v
	}
	return out, nil
}

func (f *Fake) FindNotesByType(ctx context.Context, typeNames []string) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	want := map[string]bool{}
	for _, t := range typeNames {
		want[t] = true
	}
	var ids []int64
	for id, n := range f.Notes {
		if want[n.Type] {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (f *Fake) NotesInfo(ctx context.Context, ids []int64) (map[int64]store.NoteInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[int64]store.NoteInfo, len(ids))
	for _, id := range ids {
		n, ok := f.Notes[id]
		if !ok {
			continue
		}
		out[id] = n
	}
	return out, nil
}

func (f *Fake) CardsInfo(ctx context.Context, ids []int64) (map[int64]store.CardInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[int64]store.CardInfo, len(ids))
	for _, id := range ids {
		c, ok := f.Cards[id]
		if !ok {
			continue
		}
		out[id] = c
	}
	return out, nil
}

func (f *Fake) FindNotesByHiddenKey(ctx context.Context, key string) ([]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []int64
	for id, n := range f.Notes {
		if n.Fields["AnkiOps Key"] == key {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// Multi applies actions in order, tolerating per-action failure.
func (f *Fake) Multi(ctx context.Context, actions []store.Action) ([]store.ActionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	results := make([]store.ActionResult, len(actions))
	for i, a := range actions {
		results[i] = f.applyLocked(a)
	}
	return results, nil
}

func (f *Fake) applyLocked(a store.Action) store.ActionResult {
	switch a.Kind {
	case store.ActionCreateDeck:
		name, _ := a.Params["name"].(string)
		if id, exists := f.Decks[name]; exists {
			return store.ActionResult{Value: id}
		}
		id := f.nextIDLocked()
		f.Decks[name] = id
		return store.ActionResult{Value: id}

	case store.ActionAddNote:
		deck, _ := a.Params["deck"].(string)
		typeName, _ := a.Params["type"].(string)
		fields, _ := a.Params["fields"].(map[string]string)
		if _, ok := f.Decks[deck]; !ok {
			f.Decks[deck] = f.nextIDLocked()
		}
		id := f.nextIDLocked()
		cardID := f.nextIDLocked()
		f.Notes[id] = store.NoteInfo{ID: id, Type: typeName, Fields: cloneFields(fields), CardIDs: []int64{cardID}}
		f.Cards[cardID] = store.CardInfo{ID: cardID, DeckName: deck}
		f.NoteCards[id] = []int64{cardID}
		return store.ActionResult{Value: id}

	case store.ActionUpdateNoteFields:
		id, _ := a.Params["id"].(int64)
		fields, _ := a.Params["fields"].(map[string]string)
		n, ok := f.Notes[id]
		if !ok {
			return store.ActionResult{Err: fmt.Errorf("note %d not found", id)}
		}
		n.Fields = cloneFields(fields)
		f.Notes[id] = n
		return store.ActionResult{}

	case store.ActionDeleteNotes:
		ids, _ := a.Params["ids"].([]int64)
		for _, id := range ids {
			delete(f.Notes, id)
			for _, cid := range f.NoteCards[id] {
				delete(f.Cards, cid)
			}
			delete(f.NoteCards, id)
		}
		return store.ActionResult{}

	case store.ActionChangeDeck:
		id, _ := a.Params["id"].(int64)
		deck, _ := a.Params["deck"].(string)
		if _, ok := f.Decks[deck]; !ok {
			f.Decks[deck] = f.nextIDLocked()
		}
		for _, cid := range f.NoteCards[id] {
			c := f.Cards[cid]
			c.DeckName = deck
			f.Cards[cid] = c
		}
		return store.ActionResult{}

	case store.ActionCreateModel, store.ActionUpdateModel:
		return store.ActionResult{}

	default:
		return store.ActionResult{Err: fmt.Errorf("unknown action kind %q", a.Kind)}
	}
}

func cloneFields(m map[string]string) map[string]string {
	out := make(map[string]string, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (f *Fake) PushMedia(ctx context.Context, name string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Media[name] = append([]byte(nil), data...)
	return nil
}

func (f *Fake) PullMedia(ctx context.Context, name string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.Media[name]
	if !ok {
		return nil, fmt.Errorf("media %q not found", name)
	}
	return append([]byte(nil), data...), nil
}

func (f *Fake) MediaDirPath(ctx context.Context) (string, error) {
	return f.MediaDir, nil
}

var _ store.Client = (*Fake)(nil)
