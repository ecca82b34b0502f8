package reconcile

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"

	"github.com/ankiops/ankiops/internal/ankierr"
	"github.com/ankiops/ankiops/internal/notetype"
	"github.com/ankiops/ankiops/internal/sidecar"
	"github.com/ankiops/ankiops/internal/store"
)

// modelContentHashLength matches the truncation length internal/media and
// internal/fingerprint use for their own content digests.
const modelContentHashLength = 8

// pushModelUpdates forwards each note type's CSS and card-template content
// to the store when it differs from the hash cached in note_type_state,
// creating the model on first sight and updating it on drift (§3's "CSS and
// card-template blobs ... forwarded to the store", §4.5 type-state
// caching). Builtin types carry no template payload of their own and are
// skipped.
func pushModelUpdates(ctx context.Context, reg *notetype.Registry, cl store.Client, tx *sidecar.Tx, dryRun bool) error {
	for _, schema := range reg.All() {
		if schema.Builtin() {
			continue
		}
		if schema.CSS == "" && schema.Template == "" {
			continue
		}

		hash := modelContentHash(schema.CSS, schema.Template)
		cached, err := tx.GetNoteTypeState(schema.Name)
		known := err == nil
		if known && cached == hash {
			continue
		}
		if dryRun {
			continue
		}

		kind := store.ActionCreateModel
		if known {
			kind = store.ActionUpdateModel
		}
		action := store.Action{Kind: kind, Params: map[string]any{
			"name": schema.Name, "css": schema.CSS, "template": schema.Template,
		}}

		results, err := cl.Multi(ctx, []store.Action{action})
		if err != nil {
			return ankierr.Wrap(ankierr.ErrStoreTransport, fmt.Sprintf("push model %s", schema.Name), err)
		}
		if len(results) > 0 && results[0].Err != nil {
			return ankierr.Wrap(ankierr.ErrStoreTransport, fmt.Sprintf("push model %s", schema.Name), results[0].Err)
		}
		if err := tx.SetNoteTypeState(schema.Name, hash); err != nil {
			return err
		}
	}
	return nil
}

func modelContentHash(css, template string) string {
	sum := sha256.Sum256([]byte(css + "\x00" + template))
	return hex.EncodeToString(sum[:])[:modelContentHashLength]
}
