// Package sidecar implements the transactional sidecar mapping database
// (§4.3): the bijective stable_key<->store_id registry, fingerprint
// caches, and media-sync state, following the teacher's
// internal/storage/sqlite conventions (wrapped sentinel errors, a single
// write-locked connection per transaction, chunked bulk operations).
package sidecar

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/ankiops/ankiops/internal/ankierr"
)

// maxBatchSize bounds chunked bulk operations to stay within SQLite's host
// parameter limit, per §4.3.
const maxBatchSize = 500

// DB is a handle to the sidecar database file.
type DB struct {
	path     string
	conn     *sql.DB
	activeTx *Tx
}

// Open opens (creating if necessary) the sidecar database at path. If the
// file exists but its minimal required schema cannot be read, it is
// renamed to "<path>.corrupt" and a fresh empty store is opened in its
// place; callers observe this as a normal empty state, not an error.
func Open(path string) (*DB, error) {
	db, err := openAndInit(path)
	if err == nil {
		return db, nil
	}

	if !isCorruption(err) {
		return nil, ankierr.Wrap(ankierr.ErrStorage, "open sidecar database", err)
	}

	corruptPath := path + ".corrupt"
	_ = os.Remove(corruptPath)
	if renameErr := os.Rename(path, corruptPath); renameErr != nil && !os.IsNotExist(renameErr) {
		return nil, ankierr.Wrap(ankierr.ErrStorage, "quarantine corrupt sidecar database", renameErr)
	}

	db, err = openAndInit(path)
	if err != nil {
		return nil, ankierr.Wrap(ankierr.ErrStorage, "reopen sidecar database after quarantine", err)
	}
	return db, nil
}

func openAndInit(path string) (*DB, error) {
	conn, err := sql.Open("sqlite", fmt.Sprintf("file:%s?_pragma=busy_timeout(10000)&_pragma=foreign_keys(on)", path))
	if err != nil {
		return nil, err
	}
	// A single connection serializes writes the way beginImmediateWithRetry
	// relies on one dedicated connection per transaction in the teacher's
	// sqlite package; outside-process concurrency is disallowed per §4.3.
	conn.SetMaxOpenConns(1)

	if err := initSchema(conn); err != nil {
		_ = conn.Close()
		return nil, err
	}

	return &DB{path: path, conn: conn}, nil
}

// isCorruption reports whether err looks like SQLite file corruption or an
// incompatible/unreadable schema, as opposed to a transient I/O error.
func isCorruption(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"malformed", "not a database", "disk image is malformed", "no such table", "schema"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// Close releases the underlying connection.
func (db *DB) Close() error {
	if err := db.conn.Close(); err != nil {
		return ankierr.Wrap(ankierr.ErrStorage, "close sidecar database", err)
	}
	return nil
}

// wrapDBError mirrors the teacher's wrapDBError: it attaches operation
// context and converts sql.ErrNoRows into a not-found sentinel.
func wrapDBError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return ankierr.Wrap(ankierr.ErrStorage, op, ErrNotFound)
	}
	return ankierr.Wrap(ankierr.ErrStorage, op, err)
}

// ErrNotFound indicates the requested sidecar row doesn't exist.
var ErrNotFound = errors.New("not found")

// chunk splits items into batches no larger than maxBatchSize.
func chunk[T any](items []T) [][]T {
	if len(items) == 0 {
		return nil
	}
	var out [][]T
	for len(items) > 0 {
		n := maxBatchSize
		if n > len(items) {
			n = len(items)
		}
		out = append(out, items[:n])
		items = items[n:]
	}
	return out
}

// inClause builds a "?,?,?" placeholder string and matching args slice for
// an IN (...) clause over a single already-chunked batch of keys.
func inClause[T any](batch []T) (string, []any) {
	placeholders := make([]byte, 0, len(batch)*2)
	args := make([]any, len(batch))
	for i, v := range batch {
		if i > 0 {
			placeholders = append(placeholders, ',')
		}
		placeholders = append(placeholders, '?')
		args[i] = v
	}
	return string(placeholders), args
}
