package aitask

import (
	"context"
	"sort"

	"github.com/ankiops/ankiops/internal/ankierr"
	"github.com/ankiops/ankiops/internal/fingerprint"
	"github.com/ankiops/ankiops/internal/sidecar"
	"github.com/ankiops/ankiops/internal/store"
)

// RunOptions configures one task run.
type RunOptions struct {
	Concurrency int
	DryRun      bool
}

// Result aggregates the outcome of one task run across every matching
// note.
type Result struct {
	Updated int
	Skipped int
	Errors  []error
}

// Run applies task to every note of its target type: renders a prompt per
// note, generates a replacement value for the target field through
// provider, and writes the field back through a single batched
// update_note_fields call, mirroring the ordering and fingerprint-caching
// discipline of the import reconciler's update path.
func Run(ctx context.Context, cl store.Client, tx *sidecar.Tx, task *Task, provider Provider, opts RunOptions) (*Result, error) {
	noteIDs, err := cl.FindNotesByType(ctx, []string{task.NoteType})
	if err != nil {
		return nil, ankierr.Wrap(ankierr.ErrStoreTransport, "find notes for ai task", err)
	}
	sort.Slice(noteIDs, func(i, j int) bool { return noteIDs[i] < noteIDs[j] })

	notes, err := cl.NotesInfo(ctx, noteIDs)
	if err != nil {
		return nil, ankierr.Wrap(ankierr.ErrStoreTransport, "fetch note info for ai task", err)
	}

	result := &Result{}
	var edits []edit
	for _, id := range noteIDs {
		info := notes[id]
		prompt, err := task.RenderPrompt(info.Fields)
		if err != nil {
			result.Errors = append(result.Errors, err)
			result.Skipped++
			continue
		}
		edits = append(edits, edit{noteID: id, prompt: prompt})
	}

	if len(edits) == 0 {
		return result, nil
	}
	if opts.DryRun {
		result.Updated = len(edits)
		return result, nil
	}

	outcomes := runBatch(ctx, provider, task.Model, edits, opts.Concurrency)

	var actions []store.Action
	fieldsByNote := map[int64]map[string]string{}
	for _, o := range outcomes {
		if o.Err != nil {
			result.Errors = append(result.Errors, o.Err)
			result.Skipped++
			continue
		}
		info := notes[o.NoteID]
		fields := cloneFields(info.Fields)
		fields[task.TargetField] = o.Value
		fieldsByNote[o.NoteID] = fields
		actions = append(actions, store.Action{Kind: store.ActionUpdateNoteFields, Params: map[string]any{"id": o.NoteID, "fields": fields}})
	}

	if len(actions) == 0 {
		return result, nil
	}

	// Sort actions by note ID so the batch is applied deterministically
	// regardless of the worker pool's completion order.
	sort.Slice(actions, func(i, j int) bool {
		return actions[i].Params["id"].(int64) < actions[j].Params["id"].(int64)
	})

	results, err := cl.Multi(ctx, actions)
	if err != nil {
		return nil, ankierr.Wrap(ankierr.ErrStoreTransport, "apply ai task updates", err)
	}
	for i, r := range results {
		id := actions[i].Params["id"].(int64)
		if r.Err != nil {
			result.Errors = append(result.Errors, r.Err)
			result.Skipped++
			continue
		}
		fields := fieldsByNote[id]
		if key := keyForNote(tx, id); key != "" {
			fp := fingerprint.Compute(task.NoteType, fields)
			if err := tx.UpsertNoteFingerprints([]sidecar.NoteFingerprint{{StableKey: key, MDFp: fp, StoreFp: fp}}); err != nil {
				return nil, err
			}
		}
		result.Updated++
	}
	return result, nil
}

func cloneFields(fields map[string]string) map[string]string {
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		out[k] = v
	}
	return out
}

// keyForNote resolves a note's stable key for fingerprint bookkeeping; a
// note with no sidecar mapping yet (never synced through import/export)
// has nothing to refresh, so callers skip the fingerprint write entirely
// on an empty result.
func keyForNote(tx *sidecar.Tx, id int64) string {
	k, err := tx.GetNoteByStoreID(id)
	if err != nil {
		return ""
	}
	return k
}
