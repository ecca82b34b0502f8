package sidecar

import (
	"database/sql"
	"fmt"
)

// schemaStatements creates every sidecar table and index if missing,
// mirroring the teacher's migration files' idempotent "IF NOT EXISTS"
// style (e.g. migrations/002_external_ref_column.go's index creation).
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS notes (
		stable_key TEXT PRIMARY KEY,
		store_id   INTEGER NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS decks (
		deck_name  TEXT PRIMARY KEY,
		store_id   INTEGER NOT NULL UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS note_fingerprints (
		stable_key TEXT PRIMARY KEY REFERENCES notes(stable_key) ON DELETE CASCADE,
		md_fp      TEXT NOT NULL,
		store_fp   TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS media_fingerprints (
		logical_name TEXT PRIMARY KEY,
		mtime_ns     INTEGER NOT NULL,
		size         INTEGER NOT NULL,
		digest       TEXT NOT NULL,
		hashed_name  TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS markdown_media_state (
		md_path  TEXT PRIMARY KEY,
		mtime_ns INTEGER NOT NULL,
		size     INTEGER NOT NULL,
		refs     TEXT NOT NULL DEFAULT '[]'
	)`,
	`CREATE TABLE IF NOT EXISTS media_push_state (
		name               TEXT PRIMARY KEY,
		last_pushed_digest TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS note_type_state (
		type_name    TEXT PRIMARY KEY,
		content_hash TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS config (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_notes_store_id ON notes(store_id)`,
	`CREATE INDEX IF NOT EXISTS idx_decks_store_id ON decks(store_id)`,
}

func initSchema(conn *sql.DB) error {
	for _, stmt := range schemaStatements {
		if _, err := conn.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	// Touch every table once so a schema mismatch (e.g. a file that isn't
	// actually ours) surfaces now rather than on first real use.
	for _, table := range []string{"notes", "decks", "note_fingerprints", "media_fingerprints",
		"markdown_media_state", "media_push_state", "note_type_state", "config"} {
		if _, err := conn.Exec(fmt.Sprintf("SELECT 1 FROM %s LIMIT 1", table)); err != nil {
			return fmt.Errorf("verify schema table %s: %w", table, err)
		}
	}
	return nil
}
