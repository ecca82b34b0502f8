package sidecar

import (
	"context"
	"database/sql"
)

// Tx is a handle scoped to one sidecar transaction. All row-level methods
// in this package take a *Tx so that every mutation happens inside the
// single enforced transaction per run (§5: "the sidecar DB is the only
// mutable shared resource; all writes are serialized inside one
// transaction per run").
type Tx struct {
	db  *DB
	raw *sql.Tx
}

// Transaction begins a transaction immediately on entry, commits on normal
// (nil-error) exit, and rolls back on any error returned by fn. Nested
// calls (fn itself calling db.Transaction) share the already-open
// transaction rather than opening a second one.
func (db *DB) Transaction(ctx context.Context, fn func(*Tx) error) error {
	if db.activeTx != nil {
		return fn(db.activeTx)
	}

	raw, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return wrapDBError("begin sidecar transaction", err)
	}

	tx := &Tx{db: db, raw: raw}
	db.activeTx = tx
	defer func() { db.activeTx = nil }()

	if err := fn(tx); err != nil {
		_ = raw.Rollback()
		return err
	}

	if err := raw.Commit(); err != nil {
		return wrapDBError("commit sidecar transaction", err)
	}
	return nil
}
