// Package ankierr defines the shared error kinds used across the sync
// engine. Each kind is a sentinel that call sites wrap with operation
// context via Wrap, mirroring the storage layer's own wrapDBError
// convention.
package ankierr

import "errors"

// Sentinel error kinds, one per §7 of the reconciliation spec.
var (
	// ErrConfig indicates malformed note-type definitions, invalid task
	// YAML, or contradictory runtime options.
	ErrConfig = errors.New("config error")

	// ErrStorage indicates a sidecar database failure. Corruption
	// recovery via rename-and-reopen is not itself an error.
	ErrStorage = errors.New("storage error")

	// ErrStoreTransport indicates an RPC timeout, connection failure, or
	// HTTP 5xx talking to the card store. Retried by the caller when the
	// call is idempotent or safely repeatable.
	ErrStoreTransport = errors.New("store transport error")

	// ErrStoreProtocol indicates the store RPC returned a structurally
	// invalid response. Fatal for the current operation, not the process.
	ErrStoreProtocol = errors.New("store protocol error")

	// ErrParse indicates a Markdown block failed to parse. Fatal for
	// that file only.
	ErrParse = errors.New("parse error")

	// ErrValidation indicates a note-type invariant was violated. Fatal
	// for that note; recorded and skipped.
	ErrValidation = errors.New("validation error")

	// ErrConflict indicates a duplicate stable key across files. Aborts
	// the run before any mutation.
	ErrConflict = errors.New("conflict error")
)

// Wrap attaches operation context to a sentinel error kind, following the
// storage package's wrapDBError shape.
func Wrap(kind error, op string, cause error) error {
	if cause == nil {
		return nil
	}
	return &wrapped{op: op, kind: kind, cause: cause}
}

type wrapped struct {
	op    string
	kind  error
	cause error
}

func (w *wrapped) Error() string {
	return w.op + ": " + w.cause.Error()
}

func (w *wrapped) Unwrap() []error {
	return []error{w.kind, w.cause}
}

// Is reports whether err is (or wraps) one of the sentinel kinds above.
func Is(err, kind error) bool {
	return errors.Is(err, kind)
}
