// Package orchestrator implements the single-shot run coordinator
// (§4.10): Open opens the sidecar DB and loads the note-type registry
// once, and each per-operation entry point runs the relevant component
// inside one transaction and flushes deferred Markdown writes only
// after that transaction commits. Grounded on the teacher's
// cmd/bd/main.go PersistentPreRun/PersistentPostRun lifecycle (resolve
// paths once, open shared handles once, tear down once) generalized from
// a long-lived daemon/CLI process to a single-shot batch run.
package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/ankiops/ankiops/internal/aitask"
	"github.com/ankiops/ankiops/internal/ankierr"
	"github.com/ankiops/ankiops/internal/audit"
	"github.com/ankiops/ankiops/internal/mdfile"
	"github.com/ankiops/ankiops/internal/media"
	"github.com/ankiops/ankiops/internal/notetype"
	"github.com/ankiops/ankiops/internal/reconcile"
	"github.com/ankiops/ankiops/internal/serialize"
	"github.com/ankiops/ankiops/internal/sidecar"
	"github.com/ankiops/ankiops/internal/store"
)

// Config carries everything a run needs to locate its collection and
// shared state. All fields are resolved by the caller (typically
// cmd/ankiops, via internal/config) before Open is called.
type Config struct {
	CollectionDir string
	SidecarPath   string
	NoteTypesDir  string
	MediaDir      string
	Actor         string
	DryRun        bool
	Logger        *slog.Logger
}

// Orchestrator holds the shared handles for one process's worth of runs:
// the sidecar DB, the note-type registry, and an audit sink. It is safe
// to run multiple operations through one Orchestrator sequentially; each
// Run* method owns its own transaction and emitter.
type Orchestrator struct {
	cfg      Config
	db       *sidecar.DB
	registry *notetype.Registry
	log      *slog.Logger
	client   store.Client
}

// Open resolves the note-type registry and opens the sidecar DB. Callers
// must call Close when done.
func Open(cfg Config) (*Orchestrator, error) {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}

	reg, err := notetype.Load(cfg.NoteTypesDir)
	if err != nil {
		return nil, err
	}

	db, err := sidecar.Open(cfg.SidecarPath)
	if err != nil {
		return nil, err
	}

	return &Orchestrator{cfg: cfg, db: db, registry: reg, log: log}, nil
}

// Close releases the sidecar DB handle.
func (o *Orchestrator) Close() error {
	return o.db.Close()
}

func (o *Orchestrator) auditPath() string {
	return filepath.Join(filepath.Dir(o.cfg.SidecarPath), audit.FileName)
}

func (o *Orchestrator) recordAudit(operation, action, detail string, runErr error) {
	entry := audit.Entry{
		Timestamp: audit.Now(),
		Actor:     o.cfg.Actor,
		Operation: operation,
		Action:    action,
		Detail:    detail,
	}
	if runErr != nil {
		entry.Error = runErr.Error()
	}
	if err := audit.Append(o.auditPath(), entry); err != nil {
		o.log.Warn("audit append failed", "operation", operation, "error", err)
	}
}

// RunImport runs the import reconciler inside one transaction, flushing
// Markdown writes only after commit, per §4.10's recovery invariant.
func (o *Orchestrator) RunImport(ctx context.Context) (*reconcile.ImportResult, error) {
	em := mdfile.NewEmitter()
	var result *reconcile.ImportResult

	err := o.db.Transaction(ctx, func(tx *sidecar.Tx) error {
		var err error
		result, err = reconcile.Import(ctx, o.cfg.CollectionDir, o.registry, o.store(), tx, em, reconcile.ImportOptions{DryRun: o.cfg.DryRun})
		return err
	})
	o.recordAudit("import", "", summarizeImport(result), err)
	if err != nil {
		return nil, err
	}

	if !o.cfg.DryRun {
		if err := em.Flush(); err != nil {
			return result, ankierr.Wrap(ankierr.ErrParse, "flush import writes", err)
		}
	}
	return result, nil
}

// RunExport runs the export reconciler inside one transaction.
func (o *Orchestrator) RunExport(ctx context.Context) (*reconcile.ExportResult, error) {
	em := mdfile.NewEmitter()
	var result *reconcile.ExportResult

	err := o.db.Transaction(ctx, func(tx *sidecar.Tx) error {
		var err error
		result, err = reconcile.Export(ctx, o.cfg.CollectionDir, o.registry, o.store(), tx, em)
		return err
	})
	o.recordAudit("export", "", summarizeExport(result), err)
	if err != nil {
		return nil, err
	}

	if !o.cfg.DryRun {
		if err := em.Flush(); err != nil {
			return result, ankierr.Wrap(ankierr.ErrParse, "flush export writes", err)
		}
	}
	return result, nil
}

// RunSerialize dumps the store to a portable JSON document.
func (o *Orchestrator) RunSerialize(ctx context.Context, opts serialize.SerializeOptions) (*serialize.Document, error) {
	var doc *serialize.Document
	err := o.db.Transaction(ctx, func(tx *sidecar.Tx) error {
		var err error
		doc, err = serialize.Serialize(ctx, o.store(), o.registry, tx, time.Now().UTC().Format(time.RFC3339), opts)
		return err
	})
	o.recordAudit("serialize", "", "", err)
	return doc, err
}

// RunDeserialize writes Markdown files back from a portable JSON document.
func (o *Orchestrator) RunDeserialize(ctx context.Context, data []byte) (*serialize.DeserializeResult, error) {
	em := mdfile.NewEmitter()
	result, err := serialize.Deserialize(data, o.cfg.CollectionDir, o.registry, em)
	o.recordAudit("deserialize", "", summarizeDeserialize(result), err)
	if err != nil {
		return nil, err
	}
	if !o.cfg.DryRun {
		if err := em.Flush(); err != nil {
			return result, ankierr.Wrap(ankierr.ErrParse, "flush deserialize writes", err)
		}
	}
	return result, nil
}

// RunMediaSync pushes and pulls media in one pass (§4.8).
func (o *Orchestrator) RunMediaSync(ctx context.Context) (*media.SyncResult, error) {
	var result *media.SyncResult
	err := o.db.Transaction(ctx, func(tx *sidecar.Tx) error {
		var err error
		result, err = media.Sync(ctx, o.cfg.CollectionDir, o.cfg.MediaDir, o.store(), tx, o.cfg.DryRun)
		return err
	})
	o.recordAudit("media-sync", "", summarizeMediaSync(result), err)
	return result, err
}

// RunAITask runs one AI field-editing task across every note of its
// target type.
func (o *Orchestrator) RunAITask(ctx context.Context, task *aitask.Task, provider aitask.Provider, opts aitask.RunOptions) (*aitask.Result, error) {
	opts.DryRun = opts.DryRun || o.cfg.DryRun
	var result *aitask.Result
	err := o.db.Transaction(ctx, func(tx *sidecar.Tx) error {
		var err error
		result, err = aitask.Run(ctx, o.store(), tx, task, provider, opts)
		return err
	})
	o.recordAudit("ai-task", task.Name, summarizeAITask(result), err)
	return result, err
}

// store returns the client set by the caller via WithStore before any Run* method
// runs; the orchestrator never constructs a store transport itself (§1,
// §6 are explicit that transport is out of scope for this engine).
func (o *Orchestrator) store() store.Client {
	if o.client == nil {
		panic("orchestrator: WithStore must be called before running an operation")
	}
	return o.client
}

// WithStore attaches the store client this orchestrator's operations run
// against.
func (o *Orchestrator) WithStore(cl store.Client) *Orchestrator {
	o.client = cl
	return o
}

func summarizeImport(r *reconcile.ImportResult) string {
	if r == nil {
		return ""
	}
	var created, updated, moved, skipped, deleted int
	for _, f := range r.Files {
		created += f.Created
		updated += f.Updated
		moved += f.Moved
		skipped += f.Skipped
		deleted += f.Deleted
	}
	return fmt.Sprintf("files=%d created=%d updated=%d moved=%d skipped=%d deleted=%d", len(r.Files), created, updated, moved, skipped, deleted)
}

func summarizeExport(r *reconcile.ExportResult) string {
	if r == nil {
		return ""
	}
	return fmt.Sprintf("files=%d renames=%d orphans=%d", len(r.Files), len(r.DeckRenames), len(r.OrphanFiles))
}

func summarizeDeserialize(r *serialize.DeserializeResult) string {
	if r == nil {
		return ""
	}
	return fmt.Sprintf("files_written=%d skipped=%d", r.FilesWritten, len(r.NotesSkipped))
}

func summarizeMediaSync(r *media.SyncResult) string {
	if r == nil {
		return ""
	}
	return fmt.Sprintf("pushed=%d pulled=%d deleted=%d", r.Pushed, r.Pulled, r.Deleted)
}

func summarizeAITask(r *aitask.Result) string {
	if r == nil {
		return ""
	}
	return fmt.Sprintf("updated=%d skipped=%d errors=%d", r.Updated, r.Skipped, len(r.Errors))
}
