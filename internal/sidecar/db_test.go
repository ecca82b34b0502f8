package sidecar

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

var errFailed = errors.New("boom")

func openTestDB(t *testing.T) *DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "sidecar.db")
	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenCreatesSchema(t *testing.T) {
	db := openTestDB(t)
	err := db.Transaction(context.Background(), func(tx *Tx) error {
		_, err := tx.AllNotes()
		return err
	})
	if err != nil {
		t.Fatalf("querying fresh db: %v", err)
	}
}

func TestOpenQuarantinesCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sidecar.db")
	if err := os.WriteFile(path, []byte("not a sqlite file at all, definitely malformed"), 0o644); err != nil {
		t.Fatal(err)
	}

	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	defer db.Close()

	if _, err := os.Stat(path + ".corrupt"); err != nil {
		t.Errorf("expected corrupt file to be quarantined at %s.corrupt: %v", path, err)
	}
}

func TestUpsertNotesLastWriteWins(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	err := db.Transaction(ctx, func(tx *Tx) error {
		return tx.UpsertNotes([]NoteMapping{
			{StableKey: "aaaaaaaaaaaa", StoreID: 1},
			{StableKey: "aaaaaaaaaaaa", StoreID: 2},
		})
	})
	if err != nil {
		t.Fatalf("UpsertNotes() error = %v", err)
	}

	err = db.Transaction(ctx, func(tx *Tx) error {
		id, err := tx.GetNoteByKey("aaaaaaaaaaaa")
		if err != nil {
			return err
		}
		if id != 2 {
			t.Errorf("store id = %d, want 2 (last write should win)", id)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("GetNoteByKey() error = %v", err)
	}
}

func TestUpsertNotesEvictsStoreIDCollision(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	err := db.Transaction(ctx, func(tx *Tx) error {
		return tx.UpsertNotes([]NoteMapping{
			{StableKey: "aaaaaaaaaaaa", StoreID: 1},
			{StableKey: "bbbbbbbbbbbb", StoreID: 2},
		})
	})
	if err != nil {
		t.Fatalf("seed UpsertNotes() error = %v", err)
	}

	// Reassign store id 2 to a new key; the old key bbbbbbbbbbbb should be evicted.
	err = db.Transaction(ctx, func(tx *Tx) error {
		return tx.UpsertNotes([]NoteMapping{
			{StableKey: "cccccccccccc", StoreID: 2},
		})
	})
	if err != nil {
		t.Fatalf("reassign UpsertNotes() error = %v", err)
	}

	err = db.Transaction(ctx, func(tx *Tx) error {
		if _, err := tx.GetNoteByKey("bbbbbbbbbbbb"); err == nil {
			t.Error("expected evicted key bbbbbbbbbbbb to be gone")
		}
		id, err := tx.GetNoteByKey("cccccccccccc")
		if err != nil {
			return err
		}
		if id != 2 {
			t.Errorf("store id = %d, want 2", id)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("verify UpsertNotes() error = %v", err)
	}
}

func TestDeleteNotesByKeyChunked(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	var pairs []NoteMapping
	var keys []string
	for i := 0; i < 1200; i++ {
		key := keyForIndex(i)
		pairs = append(pairs, NoteMapping{StableKey: key, StoreID: int64(i + 1)})
		keys = append(keys, key)
	}

	err := db.Transaction(ctx, func(tx *Tx) error {
		return tx.UpsertNotes(pairs)
	})
	if err != nil {
		t.Fatalf("seed UpsertNotes() error = %v", err)
	}

	err = db.Transaction(ctx, func(tx *Tx) error {
		return tx.DeleteNotesByKey(keys)
	})
	if err != nil {
		t.Fatalf("DeleteNotesByKey() error = %v", err)
	}

	err = db.Transaction(ctx, func(tx *Tx) error {
		remaining, err := tx.AllNotes()
		if err != nil {
			return err
		}
		if len(remaining) != 0 {
			t.Errorf("remaining notes = %d, want 0", len(remaining))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("verify delete error = %v", err)
	}
}

func keyForIndex(i int) string {
	const hexDigits = "0123456789abcdef"
	b := make([]byte, 12)
	for pos := 11; pos >= 0; pos-- {
		b[pos] = hexDigits[i%16]
		i /= 16
	}
	return string(b)
}

func TestNestedTransactionSharesOuter(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	err := db.Transaction(ctx, func(outer *Tx) error {
		return db.Transaction(ctx, func(inner *Tx) error {
			if outer != inner {
				t.Error("nested Transaction() should reuse the outer *Tx")
			}
			return inner.UpsertDecks([]DeckMapping{{DeckName: "Default", StoreID: 1}})
		})
	})
	if err != nil {
		t.Fatalf("nested Transaction() error = %v", err)
	}
}

func TestTransactionRollsBackOnError(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	wantErr := errFailed
	err := db.Transaction(ctx, func(tx *Tx) error {
		if err := tx.UpsertNotes([]NoteMapping{{StableKey: "aaaaaaaaaaaa", StoreID: 1}}); err != nil {
			return err
		}
		return wantErr
	})
	if err != wantErr {
		t.Fatalf("Transaction() error = %v, want %v", err, wantErr)
	}

	err = db.Transaction(ctx, func(tx *Tx) error {
		notes, err := tx.AllNotes()
		if err != nil {
			return err
		}
		if len(notes) != 0 {
			t.Errorf("notes after rollback = %d, want 0", len(notes))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("verify rollback error = %v", err)
	}
}
