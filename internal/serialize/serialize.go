// Package serialize implements the portable JSON collection format (§4.9):
// a full dump of the store's decks and notes, and the reverse path that
// writes Markdown files back from such a document. Grounded on the
// teacher's cmd/bd/jsonl_reader.go line-oriented decode-and-apply shape,
// adapted here to a single nested JSON document rather than JSONL.
package serialize

import (
	"context"
	"encoding/json"
	"fmt"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ankiops/ankiops/internal/ankierr"
	"github.com/ankiops/ankiops/internal/key"
	"github.com/ankiops/ankiops/internal/mdfile"
	"github.com/ankiops/ankiops/internal/notetype"
	"github.com/ankiops/ankiops/internal/sidecar"
	"github.com/ankiops/ankiops/internal/store"
)

// Document is the root of the portable JSON format.
type Document struct {
	Collection CollectionMeta `json:"collection"`
	Decks      []DeckDoc      `json:"decks"`
}

// CollectionMeta carries the document's generation timestamp.
type CollectionMeta struct {
	SerializedAt string `json:"serialized_at"`
}

// DeckDoc is one deck and its notes.
type DeckDoc struct {
	Name   string    `json:"name"`
	DeckID *int64    `json:"deck_id,omitempty"`
	Notes  []NoteDoc `json:"notes"`
}

// NoteDoc is one note. NoteKey is omitted entirely under StripIdentity.
type NoteDoc struct {
	NoteKey  string            `json:"note_key,omitempty"`
	NoteType string            `json:"note_type"`
	Fields   map[string]string `json:"fields"`
}

// SerializeOptions configures a serialize run.
type SerializeOptions struct {
	// StripIdentity drops note_key and deck_id from the output, producing
	// a document suitable for sharing without exposing local identity.
	StripIdentity bool
}

// Serialize dumps the store's current decks and notes into the portable
// JSON document shape, resolving each note's stable key via the sidecar
// mapping (falling back to its embedded hidden field, then a freshly
// minted key, exactly as export's key resolution does).
func Serialize(ctx context.Context, cl store.Client, reg *notetype.Registry, tx *sidecar.Tx, serializedAt string, opts SerializeOptions) (*Document, error) {
	deckIDs, err := cl.DeckNameToIDMap(ctx)
	if err != nil {
		return nil, ankierr.Wrap(ankierr.ErrStoreTransport, "list decks", err)
	}

	typeNames := make([]string, 0, len(reg.All()))
	for _, s := range reg.All() {
		typeNames = append(typeNames, s.Name)
	}
	noteIDs, err := cl.FindNotesByType(ctx, typeNames)
	if err != nil {
		return nil, ankierr.Wrap(ankierr.ErrStoreTransport, "list notes", err)
	}
	notes, err := cl.NotesInfo(ctx, noteIDs)
	if err != nil {
		return nil, ankierr.Wrap(ankierr.ErrStoreTransport, "fetch note info", err)
	}

	var cardIDs []int64
	for _, n := range notes {
		cardIDs = append(cardIDs, n.CardIDs...)
	}
	cards, err := cl.CardsInfo(ctx, cardIDs)
	if err != nil {
		return nil, ankierr.Wrap(ankierr.ErrStoreTransport, "fetch card info", err)
	}

	deckNotes := map[string][]int64{}
	for id, n := range notes {
		for _, cid := range n.CardIDs {
			if c, ok := cards[cid]; ok {
				deckNotes[c.DeckName] = append(deckNotes[c.DeckName], id)
				break
			}
		}
	}

	var deckNames []string
	for name := range deckIDs {
		deckNames = append(deckNames, name)
	}
	sort.Strings(deckNames)

	doc := &Document{Collection: CollectionMeta{SerializedAt: serializedAt}}
	for _, name := range deckNames {
		ids := deckNotes[name]
		sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

		dd := DeckDoc{Name: name}
		if !opts.StripIdentity {
			id := deckIDs[name]
			dd.DeckID = &id
		}
		for _, id := range ids {
			info := notes[id]
			k, err := resolveKey(tx, info, id)
			if err != nil {
				return nil, err
			}
			nd := NoteDoc{NoteType: info.Type, Fields: info.Fields}
			if !opts.StripIdentity {
				nd.NoteKey = k
			}
			dd.Notes = append(dd.Notes, nd)
		}
		doc.Decks = append(doc.Decks, dd)
	}
	return doc, nil
}

func resolveKey(tx *sidecar.Tx, info store.NoteInfo, id int64) (string, error) {
	if k, err := tx.GetNoteByStoreID(id); err == nil {
		return k, nil
	}
	if v, ok := info.Fields[notetype.KeyFieldName]; ok && v != "" {
		return v, nil
	}
	return key.Generate()
}

// Marshal renders a document as indented JSON.
func Marshal(doc *Document) ([]byte, error) {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, ankierr.Wrap(ankierr.ErrParse, "marshal collection document", err)
	}
	return data, nil
}

// DeserializeResult aggregates the outcome of writing a document back to
// Markdown files.
type DeserializeResult struct {
	FilesWritten int
	NotesSkipped []string // "deck/note_type: reason" entries for ambiguous/unknown notes
}

// Deserialize parses a portable JSON document and writes one Markdown file
// per deck into collectionDir, queuing full-file writes on em. Notes whose
// type is unknown fall back to type inference over their field names; if
// inference finds no match or an ambiguous one the note is skipped with a
// recorded warning rather than aborting the whole run.
func Deserialize(data []byte, collectionDir string, reg *notetype.Registry, em *mdfile.Emitter) (*DeserializeResult, error) {
	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, ankierr.Wrap(ankierr.ErrParse, "unmarshal collection document", err)
	}

	result := &DeserializeResult{}
	for _, dd := range doc.Decks {
		var blocks []string
		for _, nd := range dd.Notes {
			schema, ok := reg.Get(nd.NoteType)
			if !ok {
				schema, ok = inferSchema(reg, nd.Fields)
				if !ok {
					result.NotesSkipped = append(result.NotesSkipped,
						fmt.Sprintf("%s/%s: unknown or ambiguous note type", dd.Name, nd.NoteType))
					continue
				}
			}
			blocks = append(blocks, renderNoteBlock(nd, schema))
		}
		if len(blocks) == 0 {
			continue
		}
		path := filepath.Join(collectionDir, mdfile.DeckToFileStem(dd.Name)+".md")
		em.QueueFullWrite(path, strings.Join(blocks, mdfile.Separator))
		result.FilesWritten++
	}
	return result, nil
}

// inferSchema matches presented fields against every registered schema's
// identifying field names: a schema is a candidate when all of its
// identifying field names are present, and the candidate with the fewest
// fields wins, a tie on that count counting as ambiguous. It works over
// field names rather than parsed line prefixes (unlike
// notetype.Registry.InferType), since a JSON note carries field names
// directly.
func inferSchema(reg *notetype.Registry, fields map[string]string) (*notetype.Schema, bool) {
	present := map[string]bool{}
	for name := range fields {
		present[name] = true
	}

	var candidates []*notetype.Schema
	for _, schema := range reg.All() {
		ok := true
		for _, name := range schema.IdentifyingFieldNames() {
			if !present[name] {
				ok = false
				break
			}
		}
		if ok {
			candidates = append(candidates, schema)
		}
	}
	if len(candidates) == 0 {
		return nil, false
	}
	sort.Slice(candidates, func(i, j int) bool {
		return len(candidates[i].Fields) < len(candidates[j].Fields)
	})
	if len(candidates) > 1 && len(candidates[0].Fields) == len(candidates[1].Fields) {
		return nil, false
	}
	return candidates[0], true
}

func renderNoteBlock(nd NoteDoc, schema *notetype.Schema) string {
	k := nd.NoteKey
	if k == "" {
		generated, err := key.Generate()
		if err == nil {
			k = generated
		}
	}
	var lines []string
	lines = append(lines, fmt.Sprintf("<!-- note_key: %s -->", k))
	for _, f := range schema.Fields {
		if f.KeyField || f.Prefix == "" {
			continue
		}
		lines = append(lines, fmt.Sprintf("%s %s", f.Prefix, nd.Fields[f.Name]))
	}
	return strings.Join(lines, "\n")
}
