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

// ImportOptions configures one import run.
type ImportOptions struct {
	// DryRun computes the action plan but never calls store.Multi or
	// writes to the sidecar DB or Markdown files.
	DryRun bool
}

// FileResult carries the outcome of reconciling one Markdown file.
type FileResult struct {
	Path     string
	Created  int
	Updated  int
	Moved    int
	Skipped  int
	Deleted  int
	Errors   []error
}

// ImportResult aggregates the outcome of a full import run.
type ImportResult struct {
	Files       []FileResult
	DeckRenames map[string]string // old deck name -> new deck name
}

// parsedNote pairs a parsed block with the note model derived from it.
type parsedNote struct {
	pb           *mdfile.ParsedBlock
	typeName     string
	key          string // n.Key at parse time; empty for keyless notes
	fields       map[string]string
	keyFieldName string
}

// Import reconciles a Markdown collection into the store (§4.6). It
// expects to run inside a single sidecar transaction and a single
// orchestrator-level run; tx is never nil even in dry-run mode (dry-run
// reads through it but makes no sidecar writes).
func Import(ctx context.Context, collectionDir string, reg *notetype.Registry, cl store.Client, tx *sidecar.Tx, em *mdfile.Emitter, opts ImportOptions) (*ImportResult, error) {
	paths, err := listMarkdownFiles(collectionDir)
	if err != nil {
		return nil, err
	}

	fileBlocks := make(map[string][]parsedNote, len(paths))
	fileErrors := make(map[string][]error, len(paths))
	globalKeys := make(map[string]string) // key -> first file path that claimed it

	for _, path := range paths {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, ankierr.Wrap(ankierr.ErrParse, fmt.Sprintf("read %s", path), err)
		}
		var notes []parsedNote
		seenInFile := map[string]bool{}
		for _, block := range mdfile.SplitBlocks(string(data)) {
			pb, typeName, n, err := mdfile.ParseAndValidate(block, reg)
			if err != nil {
				fileErrors[path] = append(fileErrors[path], err)
				continue
			}
			schema, _ := reg.Get(typeName)
			keyFieldName := notetype.KeyFieldName
			if kf, ok := schema.KeyField(); ok {
				keyFieldName = kf.Name
			}
			if n.Key != "" {
				if seenInFile[n.Key] {
					fileErrors[path] = append(fileErrors[path], fmt.Errorf("duplicate key %s within %s", n.Key, path))
					continue
				}
				seenInFile[n.Key] = true
				if owner, exists := globalKeys[n.Key]; exists && owner != path {
					return nil, ankierr.Wrap(ankierr.ErrConflict, "check cross-file key uniqueness",
						fmt.Errorf("key %s claimed by both %s and %s", n.Key, owner, path))
				}
				globalKeys[n.Key] = path
			}
			notes = append(notes, parsedNote{pb: pb, typeName: typeName, key: n.Key, fields: n.Fields, keyFieldName: keyFieldName})
		}
		fileBlocks[path] = notes
	}

	if err := pushModelUpdates(ctx, reg, cl, tx, opts.DryRun); err != nil {
		return nil, err
	}

	snap, err := fetchSnapshot(ctx, cl, reg)
	if err != nil {
		return nil, err
	}

	// Resolve every parsed key to its mapped store id before any file is
	// reconciled, so a note claimed by one file is never misread as an
	// orphan while a different file in the same run is processed first.
	// Without this, step 3's "not claimed by any other file in this run"
	// clause (§4.6) only held within a single file, and a cross-deck move
	// (§8 scenario 2) was seen by its old file as a plain delete.
	globalClaimed := map[int64]bool{}
	resolved := make(map[string]int64, len(globalKeys))
	for noteKey := range globalKeys {
		id, mapErr := tx.GetNoteByKey(noteKey)
		if mapErr != nil {
			ids, err := cl.FindNotesByHiddenKey(ctx, noteKey)
			if err != nil {
				return nil, err
			}
			if len(ids) == 0 {
				continue // genuinely new; nothing to protect yet
			}
			id = ids[0]
			if !opts.DryRun {
				if err := tx.UpsertNotes([]sidecar.NoteMapping{{StableKey: noteKey, StoreID: id}}); err != nil {
					return nil, err
				}
			}
		}
		resolved[noteKey] = id
		globalClaimed[id] = true
	}

	result := &ImportResult{DeckRenames: map[string]string{}}
	for _, path := range paths {
		fr, err := importFile(ctx, path, collectionDir, fileBlocks[path], fileErrors[path], cl, tx, em, snap, result, opts, resolved, globalClaimed)
		if err != nil {
			return nil, err
		}
		result.Files = append(result.Files, *fr)
	}

	if !opts.DryRun {
		if err := tx.PruneOrphanFingerprints(); err != nil {
			return nil, err
		}
	}

	return result, nil
}

func importFile(ctx context.Context, path, collectionDir string, notes []parsedNote, parseErrors []error,
	cl store.Client, tx *sidecar.Tx, em *mdfile.Emitter, snap *snapshot, result *ImportResult, opts ImportOptions,
	resolved map[string]int64, globalClaimed map[int64]bool) (*FileResult, error) {

	fr := &FileResult{Path: path, Errors: append([]error(nil), parseErrors...)}

	stem := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	deckName := mdfile.FileStemToDeck(stem)

	deckKnown, err := resolveDeck(tx, snap, deckName)
	if err != nil {
		return nil, err
	}

	var actions []store.Action
	var postCreate []func(result store.ActionResult) error

	if !deckKnown {
		if oldDeck, ok := detectRename(tx, notes, snap, deckName); ok {
			result.DeckRenames[oldDeck] = deckName
			if !opts.DryRun {
				id, getErr := tx.GetDeckID(oldDeck)
				if getErr == nil {
					if err := tx.DeleteDeck(oldDeck); err != nil {
						return nil, err
					}
					if err := tx.UpsertDecks([]sidecar.DeckMapping{{DeckName: deckName, StoreID: id}}); err != nil {
						return nil, err
					}
					deckKnown = true
				}
			}
		}
	}

	if !deckKnown {
		actions = append(actions, store.Action{Kind: store.ActionCreateDeck, Params: map[string]any{"name": deckName}})
		postCreate = append(postCreate, func(r store.ActionResult) error {
			if r.Err != nil {
				return nil
			}
			id, _ := r.Value.(int64)
			if !opts.DryRun {
				return tx.UpsertDecks([]sidecar.DeckMapping{{DeckName: deckName, StoreID: id}})
			}
			return nil
		})
	}

	var moveActions, updateActions, createActions []store.Action
	var moveCallbacks, updateCallbacks, createCallbacks []func(store.ActionResult) error

	for _, pn := range notes {
		if pn.key == "" {
			newKey, err := key.Generate()
			if err != nil {
				return nil, ankierr.Wrap(ankierr.ErrStorage, "mint stable key", err)
			}
			fields := withKeyField(pn.fields, pn.keyFieldName, newKey)
			a := store.Action{Kind: store.ActionAddNote, Params: map[string]any{
				"deck": deckName, "type": pn.typeName, "fields": fields,
			}}
			createActions = append(createActions, a)
			noteKey := newKey
			pbCopy := pn.pb
			typeName := pn.typeName
			createCallbacks = append(createCallbacks, func(r store.ActionResult) error {
				fr.Created++
				if r.Err != nil {
					fr.Errors = append(fr.Errors, r.Err)
					return nil
				}
				id, _ := r.Value.(int64)
				if opts.DryRun {
					return nil
				}
				if err := tx.UpsertNotes([]sidecar.NoteMapping{{StableKey: noteKey, StoreID: id}}); err != nil {
					return err
				}
				fp := fingerprint.Compute(typeName, fields)
				if err := tx.UpsertNoteFingerprints([]sidecar.NoteFingerprint{{StableKey: noteKey, MDFp: fp, StoreFp: fp}}); err != nil {
					return err
				}
				em.QueueKeyInsertion(path, pbCopy.FirstLine, noteKey)
				return nil
			})
			continue
		}

		mappedID, found := resolved[pn.key]
		if !found {
			newKey := pn.key
			fields := withKeyField(pn.fields, pn.keyFieldName, newKey)
			a := store.Action{Kind: store.ActionAddNote, Params: map[string]any{
				"deck": deckName, "type": pn.typeName, "fields": fields,
			}}
			createActions = append(createActions, a)
			typeName := pn.typeName
			createCallbacks = append(createCallbacks, func(r store.ActionResult) error {
				fr.Created++
				if r.Err != nil {
					fr.Errors = append(fr.Errors, r.Err)
					return nil
				}
				id, _ := r.Value.(int64)
				if opts.DryRun {
					return nil
				}
				if err := tx.UpsertNotes([]sidecar.NoteMapping{{StableKey: newKey, StoreID: id}}); err != nil {
					return err
				}
				fp := fingerprint.Compute(typeName, fields)
				return tx.UpsertNoteFingerprints([]sidecar.NoteFingerprint{{StableKey: newKey, MDFp: fp, StoreFp: fp}})
			})
			continue
		}

		info, present := snap.notes[mappedID]
		if !present {
			// Mapping pointed at a note the store no longer has; treat it
			// like a fresh recovery miss next run. Nothing more to do now.
			continue
		}
		if info.Type != pn.typeName {
			fr.Errors = append(fr.Errors, fmt.Errorf("note %s: type mismatch (store=%s, markdown=%s)", pn.key, info.Type, pn.typeName))
			continue
		}

		mdFp := fingerprint.Compute(pn.typeName, pn.fields)
		storeFp := fingerprint.Compute(info.Type, info.Fields)
		cached, cacheErr := tx.GetNoteFingerprint(pn.key)
		fpCached := cacheErr == nil && cached.MDFp == mdFp && cached.StoreFp == storeFp
		deckOK := snap.noteDeck[mappedID] == deckName

		if fpCached && deckOK {
			fr.Skipped++
			continue
		}

		noteKey := pn.key
		if !deckOK {
			id := mappedID
			moveActions = append(moveActions, store.Action{Kind: store.ActionChangeDeck, Params: map[string]any{"id": id, "deck": deckName}})
			moveCallbacks = append(moveCallbacks, func(r store.ActionResult) error {
				fr.Moved++
				if r.Err != nil {
					fr.Errors = append(fr.Errors, r.Err)
				}
				return nil
			})
		}
		if !fpCached {
			id := mappedID
			fields := pn.fields
			typeName := pn.typeName
			updateActions = append(updateActions, store.Action{Kind: store.ActionUpdateNoteFields, Params: map[string]any{"id": id, "fields": fields}})
			updateCallbacks = append(updateCallbacks, func(r store.ActionResult) error {
				fr.Updated++
				if r.Err != nil {
					fr.Errors = append(fr.Errors, r.Err)
					return nil
				}
				if opts.DryRun {
					return nil
				}
				fp := fingerprint.Compute(typeName, fields)
				return tx.UpsertNoteFingerprints([]sidecar.NoteFingerprint{{StableKey: noteKey, MDFp: fp, StoreFp: fp}})
			})
		}
	}

	var orphanIDs []int64
	for _, id := range snap.deckNotes[deckName] {
		if !globalClaimed[id] {
			orphanIDs = append(orphanIDs, id)
		}
	}
	var deleteCallback func(store.ActionResult) error
	if len(orphanIDs) > 0 {
		sort.Slice(orphanIDs, func(i, j int) bool { return orphanIDs[i] < orphanIDs[j] })
		orphanKeys := make([]string, 0, len(orphanIDs))
		for _, id := range orphanIDs {
			k, err := tx.GetNoteByStoreID(id)
			if err == nil {
				orphanKeys = append(orphanKeys, k)
			}
		}
		deleteCallback = func(r store.ActionResult) error {
			fr.Deleted += len(orphanIDs)
			if r.Err != nil {
				fr.Errors = append(fr.Errors, r.Err)
				return nil
			}
			if opts.DryRun {
				return nil
			}
			if err := tx.DeleteNotesByKey(orphanKeys); err != nil {
				return err
			}
			return tx.DeleteNoteFingerprints(orphanKeys)
		}
	}

	// Ordering guarantee (§5): MOVE and UPDATE precede CREATE within a file.
	var batch []store.Action
	var callbacks []func(store.ActionResult) error
	batch = append(batch, actions...)
	callbacks = append(callbacks, postCreate...)
	batch = append(batch, moveActions...)
	callbacks = append(callbacks, moveCallbacks...)
	batch = append(batch, updateActions...)
	callbacks = append(callbacks, updateCallbacks...)
	batch = append(batch, createActions...)
	callbacks = append(callbacks, createCallbacks...)
	if len(orphanIDs) > 0 {
		batch = append(batch, store.Action{Kind: store.ActionDeleteNotes, Params: map[string]any{"ids": orphanIDs}})
		callbacks = append(callbacks, deleteCallback)
	}

	if len(batch) == 0 || opts.DryRun {
		for i, cb := range callbacks {
			if i < len(batch) {
				_ = cb(store.ActionResult{})
			}
		}
		return fr, nil
	}

	results, err := cl.Multi(ctx, batch)
	if err != nil {
		return nil, ankierr.Wrap(ankierr.ErrStoreTransport, fmt.Sprintf("apply actions for %s", path), err)
	}
	for i, cb := range callbacks {
		if i >= len(results) {
			break
		}
		if err := cb(results[i]); err != nil {
			return nil, err
		}
	}

	return fr, nil
}

func resolveDeck(tx *sidecar.Tx, snap *snapshot, deckName string) (bool, error) {
	if _, err := tx.GetDeckID(deckName); err == nil {
		return true, nil
	}
	if _, ok := snap.deckIDs[deckName]; ok {
		return true, nil
	}
	return false, nil
}

// detectRename applies the heuristic in §4.6: if every existing-mapped
// note in this file previously sat in exactly one other deck (by sidecar
// lookup), and that deck isn't this file's own name, treat the file as a
// rename of that deck rather than a brand new one.
func detectRename(tx *sidecar.Tx, notes []parsedNote, snap *snapshot, deckName string) (string, bool) {
	candidates := map[string]bool{}
	for _, pn := range notes {
		if pn.key == "" {
			continue
		}
		id, err := tx.GetNoteByKey(pn.key)
		if err != nil {
			continue
		}
		if deck, ok := snap.noteDeck[id]; ok && deck != deckName {
			candidates[deck] = true
		}
	}
	if len(candidates) != 1 {
		return "", false
	}
	for deck := range candidates {
		return deck, true
	}
	return "", false
}

func withKeyField(fields map[string]string, keyFieldName, key string) map[string]string {
	out := make(map[string]string, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	out[keyFieldName] = key
	return out
}

func listMarkdownFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, ankierr.Wrap(ankierr.ErrParse, fmt.Sprintf("list markdown files in %s", dir), err)
	}
	var paths []string
	for _, e := range entries {
		if e.IsDir() || filepath.Ext(e.Name()) != ".md" {
			continue
		}
		paths = append(paths, filepath.Join(dir, e.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}
