package reconcile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ankiops/ankiops/internal/ankierr"
	"github.com/ankiops/ankiops/internal/fingerprint"
	"github.com/ankiops/ankiops/internal/key"
	"github.com/ankiops/ankiops/internal/mdfile"
	"github.com/ankiops/ankiops/internal/notetype"
	"github.com/ankiops/ankiops/internal/sidecar"
	"github.com/ankiops/ankiops/internal/store"
)

// ExportResult aggregates the outcome of a full export run.
type ExportResult struct {
	Files        []FileResult
	DeckRenames  map[string]string // old file path -> new file path
	OrphanFiles  []string          // files deleted because their deck vanished from the store
}

// Export reconciles the store into a Markdown collection (§4.7). Export is
// always full-sync for its scope: every deck the store currently knows
// about is reconciled, with no selective-update flag.
func Export(ctx context.Context, collectionDir string, reg *notetype.Registry, cl store.Client, tx *sidecar.Tx, em *mdfile.Emitter) (*ExportResult, error) {
	snap, err := fetchSnapshot(ctx, cl, reg)
	if err != nil {
		return nil, err
	}

	existingFiles, err := listMarkdownFiles(collectionDir)
	if err != nil {
		return nil, err
	}
	existingByDeck := map[string]string{}
	for _, path := range existingFiles {
		stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
		existingByDeck[mdfile.FileStemToDeck(stem)] = path
	}

	result := &ExportResult{DeckRenames: map[string]string{}}

	var decks []string
	for deck := range snap.deckIDs {
		decks = append(decks, deck)
	}
	sort.Strings(decks)

	seenDeck := map[string]bool{}
	exportedPath := map[string]string{}
	for _, deck := range decks {
		seenDeck[deck] = true
		path := existingByDeck[deck]
		if path == "" {
			path = filepath.Join(collectionDir, mdfile.DeckToFileStem(deck)+".md")
		}
		exportedPath[deck] = path
		fr, err := exportDeck(tx, reg, deck, path, snap, em)
		if err != nil {
			return nil, err
		}
		result.Files = append(result.Files, *fr)
	}

	// Orphan file cleanup: a file whose deck is no longer in the store at
	// all is removed. When the sidecar's store id for that deck now belongs
	// to a deck exported above, the removal is recorded as a rename to that
	// deck's file.
	for deck, path := range existingByDeck {
		if seenDeck[deck] {
			continue
		}
		if renamed, ok := renameTargetFor(tx, reg, deck, snap, exportedPath); ok {
			result.DeckRenames[path] = renamed
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				return nil, ankierr.Wrap(ankierr.ErrParse, fmt.Sprintf("remove renamed-away file %s", path), err)
			}
			continue
		}
		result.OrphanFiles = append(result.OrphanFiles, path)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return nil, ankierr.Wrap(ankierr.ErrParse, fmt.Sprintf("remove orphan file %s", path), err)
		}
	}

	return result, nil
}

// renameTargetFor reports whether the store id the sidecar maps deck to
// now belongs to another store deck, treating that as a detected
// store-side deck rename rather than a genuine deletion, and returns the
// path that other deck was exported to this run.
func renameTargetFor(tx *sidecar.Tx, reg *notetype.Registry, deck string, snap *snapshot, exportedPath map[string]string) (string, bool) {
	id, err := tx.GetDeckID(deck)
	if err != nil {
		return "", false
	}
	for otherDeck, otherID := range snap.deckIDs {
		if otherID == id {
			return exportedPath[otherDeck], otherDeck != ""
		}
	}
	return "", false
}

// exportDeck reconciles one store deck against its Markdown file,
// block-by-block, per §4.7 step 2.
func exportDeck(tx *sidecar.Tx, reg *notetype.Registry, deck, path string, snap *snapshot, em *mdfile.Emitter) (*FileResult, error) {
	fr := &FileResult{Path: path}

	existingBlocks := map[string]string{} // key -> raw block text, from the file on disk
	var existingOrder []string
	if data, err := os.ReadFile(path); err == nil {
		for _, block := range mdfile.SplitBlocks(string(data)) {
			pb, _, _, err := mdfile.InferAndParse(block, reg)
			if err != nil || pb.Key == "" {
				continue
			}
			existingBlocks[pb.Key] = block
			existingOrder = append(existingOrder, pb.Key)
		}
	}

	noteIDs := append([]int64(nil), snap.deckNotes[deck]...)
	sort.Slice(noteIDs, func(i, j int) bool { return noteIDs[i] < noteIDs[j] }) // store_id order = creation order

	keyForNote := make(map[int64]string, len(noteIDs))
	for _, id := range noteIDs {
		info := snap.notes[id]
		k, err := resolveExportKey(tx, info, id)
		if err != nil {
			return nil, err
		}
		keyForNote[id] = k
	}

	keptKeys := map[string]bool{}
	var blocksOut []string
	for _, id := range noteIDs {
		k := keyForNote[id]
		keptKeys[k] = true
		info := snap.notes[id]
		schema, ok := reg.Get(info.Type)
		if !ok {
			fr.Errors = append(fr.Errors, fmt.Errorf("note %d: unknown type %q, skipping", id, info.Type))
			continue
		}

		storeFp := fingerprint.Compute(info.Type, info.Fields)
		if raw, existed := existingBlocks[k]; existed {
			pb, _, _, err := mdfile.InferAndParse(raw, reg)
			mdFp := ""
			if err == nil {
				mdFp = fingerprint.Compute(info.Type, pb.Fields)
			}
			if err == nil && mdFp == storeFp {
				fr.Skipped++
				blocksOut = append(blocksOut, raw)
				continue
			}
			fr.Updated++
		} else {
			fr.Created++
		}

		blocksOut = append(blocksOut, renderBlock(k, info, schema))
		if err := tx.UpsertNoteFingerprints([]sidecar.NoteFingerprint{{StableKey: k, MDFp: storeFp, StoreFp: storeFp}}); err != nil {
			return nil, err
		}
		if err := tx.UpsertNotes([]sidecar.NoteMapping{{StableKey: k, StoreID: id}}); err != nil {
			return nil, err
		}
	}

	for _, k := range existingOrder {
		if !keptKeys[k] {
			fr.Deleted++
			if err := tx.DeleteNotesByKey([]string{k}); err != nil {
				return nil, err
			}
			if err := tx.DeleteNoteFingerprints([]string{k}); err != nil {
				return nil, err
			}
		}
	}

	if err := tx.UpsertDecks([]sidecar.DeckMapping{{DeckName: deck, StoreID: snap.deckIDs[deck]}}); err != nil {
		return nil, err
	}

	em.QueueFullWrite(path, strings.Join(blocksOut, mdfile.Separator))
	return fr, nil
}

// resolveExportKey implements §4.7 step 1's resolution order: sidecar
// lookup first, then the embedded hidden-field value, then a freshly
// minted key. Ties favor the embedded value over a stale sidecar entry
// pointing at a now-unknown note.
func resolveExportKey(tx *sidecar.Tx, info store.NoteInfo, id int64) (string, error) {
	if k, err := tx.GetNoteByStoreID(id); err == nil {
		return k, nil
	}
	if k, ok := hiddenKeyField(info); ok && k != "" {
		return k, nil
	}
	return key.Generate()
}

func hiddenKeyField(info store.NoteInfo) (string, bool) {
	if v, ok := info.Fields[notetype.KeyFieldName]; ok {
		return v, true
	}
	return "", false
}

func renderBlock(k string, info store.NoteInfo, schema *notetype.Schema) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<!-- note_key: %s -->\n", k)
	for _, f := range schema.Fields {
		if f.KeyField || f.Prefix == "" {
			continue
		}
		value := info.Fields[f.Name]
		fmt.Fprintf(&b, "%s %s\n", f.Prefix, value)
	}
	return strings.TrimRight(b.String(), "\n")
}
