// Package store defines the StoreClient capability the reconciliation core
// consumes. The core never talks to the card store's RPC transport
// directly: it is handed an implementation of this interface, the way
// internal/storage.Storage is the seam the teacher's reconcilers and
// commands are written against instead of a concrete SQLite/Dolt type.
package store

import "context"

// Action is one subaction of a batched multi() RPC call (§6).
type Action struct {
	Kind   ActionKind
	Params map[string]any
}

// ActionKind enumerates the multi() subaction variants.
type ActionKind string

const (
	ActionCreateDeck       ActionKind = "create_deck"
	ActionAddNote          ActionKind = "add_note"
	ActionUpdateNoteFields ActionKind = "update_note_fields"
	ActionDeleteNotes      ActionKind = "delete_notes"
	ActionChangeDeck       ActionKind = "change_deck"
	ActionCreateModel      ActionKind = "create_model"
	ActionUpdateModel      ActionKind = "update_model"
)

// ActionResult is one per-action result slot from multi(): nil on success,
// or an error describing what went wrong with that single subaction.
type ActionResult struct {
	Value any
	Err   error
}

// NoteInfo is the store's view of one note.
type NoteInfo struct {
	ID       int64
	Type     string
	Fields   map[string]string
	CardIDs  []int64
}

// CardInfo is the store's view of one card.
type CardInfo struct {
	ID       int64
	DeckName string
}

// Client is the capability the reconciliation core consumes. Concrete
// implementations (HTTP RPC to a running card-store instance, a fake for
// tests) live outside this package/spec's scope (§1, §6): the core is
// written entirely against this interface.
type Client interface {
	// DeckNameToIDMap returns every deck the store currently knows about.
	DeckNameToIDMap(ctx context.Context) (map[string]int64, error)

	// FindNotesByType returns the IDs of all notes of the given types.
	FindNotesByType(ctx context.Context, typeNames []string) ([]int64, error)

	// NotesInfo fetches full note records for a set of IDs.
	NotesInfo(ctx context.Context, ids []int64) (map[int64]NoteInfo, error)

	// CardsInfo fetches deck placement for a set of card IDs.
	CardsInfo(ctx context.Context, ids []int64) (map[int64]CardInfo, error)

	// FindNotesByHiddenKey looks up notes whose hidden stable-key field
	// equals key, used for write-through mapping recovery.
	FindNotesByHiddenKey(ctx context.Context, key string) ([]int64, error)

	// Multi executes a batch of actions in order and returns one result
	// slot per action. Partial failure is tolerated: successful
	// subactions still take effect.
	Multi(ctx context.Context, actions []Action) ([]ActionResult, error)

	// PushMedia uploads a media file's bytes under name.
	PushMedia(ctx context.Context, name string, data []byte) error

	// PullMedia downloads a media file's bytes by name.
	PullMedia(ctx context.Context, name string) ([]byte, error)

	// MediaDirPath returns the store's own media directory, used by the
	// media sync safety check (§4.8) to refuse operating when the local
	// media directory would alias the store's.
	MediaDirPath(ctx context.Context) (string, error)
}
