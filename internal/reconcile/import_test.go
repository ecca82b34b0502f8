package reconcile

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ankiops/ankiops/internal/mdfile"
	"github.com/ankiops/ankiops/internal/notetype"
	"github.com/ankiops/ankiops/internal/sidecar"
	"github.com/ankiops/ankiops/internal/store"
	"github.com/ankiops/ankiops/internal/store/storetest"
)

const basicTypeYAML = `
name: Basic
fields:
  - name: Question
    prefix: "Q:"
    identifying: true
  - name: Answer
    prefix: "A:"
    identifying: true
  - name: AnkiOps Key
    key_field: true
`

func setupRegistry(t *testing.T) *notetype.Registry {
	t.Helper()
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "basic.yaml"), []byte(basicTypeYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	reg, err := notetype.Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	return reg
}

func setupSidecar(t *testing.T) *sidecar.DB {
	t.Helper()
	db, err := sidecar.Open(filepath.Join(t.TempDir(), "sidecar.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestImportCreatesNewNote(t *testing.T) {
	reg := setupRegistry(t)
	cl := storetest.New()
	db := setupSidecar(t)
	em := mdfile.NewEmitter()
	ctx := context.Background()

	collectionDir := t.TempDir()
	content := "Q: What is 2+2?\nA: 4"
	if err := os.WriteFile(filepath.Join(collectionDir, "Default.md"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	var result *ImportResult
	err := db.Transaction(ctx, func(tx *sidecar.Tx) error {
		var err error
		result, err = Import(ctx, collectionDir, reg, cl, tx, em, ImportOptions{})
		return err
	})
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}
	if err := em.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	if len(result.Files) != 1 || result.Files[0].Created != 1 {
		t.Fatalf("expected 1 created note, got %+v", result.Files)
	}
	if len(cl.Notes) != 1 {
		t.Fatalf("expected 1 note in store, got %d", len(cl.Notes))
	}

	data, err := os.ReadFile(filepath.Join(collectionDir, "Default.md"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "<!-- note_key:") {
		t.Errorf("expected key comment inserted into file, got:\n%s", data)
	}
}

func TestImportSkipsUnchangedNote(t *testing.T) {
	reg := setupRegistry(t)
	cl := storetest.New()
	db := setupSidecar(t)
	ctx := context.Background()
	collectionDir := t.TempDir()

	content := "Q: What is 2+2?\nA: 4"
	path := filepath.Join(collectionDir, "Default.md")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	em := mdfile.NewEmitter()
	err := db.Transaction(ctx, func(tx *sidecar.Tx) error {
		_, err := Import(ctx, collectionDir, reg, cl, tx, em, ImportOptions{})
		return err
	})
	if err != nil {
		t.Fatalf("first Import() error = %v", err)
	}
	if err := em.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	em2 := mdfile.NewEmitter()
	var result2 *ImportResult
	err = db.Transaction(ctx, func(tx *sidecar.Tx) error {
		var err error
		result2, err = Import(ctx, collectionDir, reg, cl, tx, em2, ImportOptions{})
		return err
	})
	if err != nil {
		t.Fatalf("second Import() error = %v", err)
	}
	if err := em2.Flush(); err != nil {
		t.Fatalf("second Flush() error = %v", err)
	}

	if result2.Files[0].Skipped != 1 {
		t.Errorf("expected second run to skip the unchanged note, got %+v", result2.Files[0])
	}
	if result2.Files[0].Created != 0 {
		t.Errorf("expected no re-creation, got %+v", result2.Files[0])
	}
}

func TestImportUpdatesDriftedContent(t *testing.T) {
	reg := setupRegistry(t)
	cl := storetest.New()
	db := setupSidecar(t)
	ctx := context.Background()
	collectionDir := t.TempDir()
	path := filepath.Join(collectionDir, "Default.md")

	if err := os.WriteFile(path, []byte("Q: What is 2+2?\nA: 4"), 0o644); err != nil {
		t.Fatal(err)
	}
	em := mdfile.NewEmitter()
	if err := db.Transaction(ctx, func(tx *sidecar.Tx) error {
		_, err := Import(ctx, collectionDir, reg, cl, tx, em, ImportOptions{})
		return err
	}); err != nil {
		t.Fatalf("first Import() error = %v", err)
	}
	if err := em.Flush(); err != nil {
		t.Fatal(err)
	}

	// Edit the answer.
	data, _ := os.ReadFile(path)
	edited := strings.ReplaceAll(string(data), "A: 4", "A: five")
	if err := os.WriteFile(path, []byte(edited), 0o644); err != nil {
		t.Fatal(err)
	}

	em2 := mdfile.NewEmitter()
	var result *ImportResult
	if err := db.Transaction(ctx, func(tx *sidecar.Tx) error {
		var err error
		result, err = Import(ctx, collectionDir, reg, cl, tx, em2, ImportOptions{})
		return err
	}); err != nil {
		t.Fatalf("second Import() error = %v", err)
	}
	if err := em2.Flush(); err != nil {
		t.Fatal(err)
	}

	if result.Files[0].Updated != 1 {
		t.Errorf("expected 1 updated note, got %+v", result.Files[0])
	}
	for _, n := range cl.Notes {
		if n.Fields["Answer"] != "five" {
			t.Errorf("expected store note updated to 'five', got %q", n.Fields["Answer"])
		}
	}
}

func TestImportDeletesOrphanNote(t *testing.T) {
	reg := setupRegistry(t)
	cl := storetest.New()
	db := setupSidecar(t)
	ctx := context.Background()
	collectionDir := t.TempDir()
	path := filepath.Join(collectionDir, "Default.md")

	if err := os.WriteFile(path, []byte("Q: Keep me?\nA: no, this will be removed"), 0o644); err != nil {
		t.Fatal(err)
	}
	em := mdfile.NewEmitter()
	if err := db.Transaction(ctx, func(tx *sidecar.Tx) error {
		_, err := Import(ctx, collectionDir, reg, cl, tx, em, ImportOptions{})
		return err
	}); err != nil {
		t.Fatalf("first Import() error = %v", err)
	}
	if err := em.Flush(); err != nil {
		t.Fatal(err)
	}
	if len(cl.Notes) != 1 {
		t.Fatalf("expected 1 note after first import, got %d", len(cl.Notes))
	}

	// Now the file no longer mentions that note at all.
	if err := os.WriteFile(path, []byte("Q: A totally different note\nA: yes"), 0o644); err != nil {
		t.Fatal(err)
	}

	em2 := mdfile.NewEmitter()
	var result *ImportResult
	if err := db.Transaction(ctx, func(tx *sidecar.Tx) error {
		var err error
		result, err = Import(ctx, collectionDir, reg, cl, tx, em2, ImportOptions{})
		return err
	}); err != nil {
		t.Fatalf("second Import() error = %v", err)
	}
	if err := em2.Flush(); err != nil {
		t.Fatal(err)
	}

	if result.Files[0].Deleted != 1 {
		t.Errorf("expected 1 deleted orphan note, got %+v", result.Files[0])
	}
}

func TestImportRejectsGlobalDuplicateKey(t *testing.T) {
	reg := setupRegistry(t)
	cl := storetest.New()
	db := setupSidecar(t)
	ctx := context.Background()
	collectionDir := t.TempDir()

	shared := "<!-- note_key: aaaaaaaaaaaa -->\nQ: one\nA: 1"
	if err := os.WriteFile(filepath.Join(collectionDir, "A.md"), []byte(shared), 0o644); err != nil {
		t.Fatal(err)
	}
	shared2 := "<!-- note_key: aaaaaaaaaaaa -->\nQ: two\nA: 2"
	if err := os.WriteFile(filepath.Join(collectionDir, "B.md"), []byte(shared2), 0o644); err != nil {
		t.Fatal(err)
	}

	em := mdfile.NewEmitter()
	err := db.Transaction(ctx, func(tx *sidecar.Tx) error {
		_, err := Import(ctx, collectionDir, reg, cl, tx, em, ImportOptions{})
		return err
	})
	if err == nil {
		t.Fatal("expected global duplicate-key error")
	}
	if len(cl.Notes) != 0 {
		t.Errorf("expected no side effects on abort, got %d notes", len(cl.Notes))
	}
}

func TestImportMovesNoteAcrossDecksWithoutDeleteRecreate(t *testing.T) {
	reg := setupRegistry(t)
	cl := storetest.New()
	db := setupSidecar(t)
	ctx := context.Background()
	collectionDir := t.TempDir()

	defaultPath := filepath.Join(collectionDir, "Default.md")
	otherPath := filepath.Join(collectionDir, "Other.md")

	keep := "Q: Keep in Default?\nA: yes"
	move := "Q: Move me?\nA: to Other"
	already := "Q: Already in Other?\nA: yes"

	if err := os.WriteFile(defaultPath, []byte(keep+mdfile.Separator+move), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(otherPath, []byte(already), 0o644); err != nil {
		t.Fatal(err)
	}

	em := mdfile.NewEmitter()
	if err := db.Transaction(ctx, func(tx *sidecar.Tx) error {
		_, err := Import(ctx, collectionDir, reg, cl, tx, em, ImportOptions{})
		return err
	}); err != nil {
		t.Fatalf("first Import() error = %v", err)
	}
	if err := em.Flush(); err != nil {
		t.Fatal(err)
	}
	if len(cl.Notes) != 3 {
		t.Fatalf("expected 3 notes after first import, got %d", len(cl.Notes))
	}

	var moveNoteID int64
	for id, n := range cl.Notes {
		if n.Fields["Question"] == "Move me?" {
			moveNoteID = id
		}
	}
	if moveNoteID == 0 {
		t.Fatal("could not find the moved note's id after first import")
	}

	// Move the "Move me?" block from Default.md into Other.md, preserving
	// its embedded key comment, so both files are reconciled against a
	// store id already claimed by the other file in this run.
	defaultData, err := os.ReadFile(defaultPath)
	if err != nil {
		t.Fatal(err)
	}
	blocks := mdfile.SplitBlocks(string(defaultData))
	if len(blocks) != 2 {
		t.Fatalf("expected 2 blocks in Default.md, got %d", len(blocks))
	}
	var keepBlock, moveBlock string
	for _, b := range blocks {
		if strings.Contains(b, "Move me?") {
			moveBlock = b
		} else {
			keepBlock = b
		}
	}
	if err := os.WriteFile(defaultPath, []byte(strings.TrimSpace(keepBlock)), 0o644); err != nil {
		t.Fatal(err)
	}
	otherData, err := os.ReadFile(otherPath)
	if err != nil {
		t.Fatal(err)
	}
	newOther := strings.TrimSpace(string(otherData)) + mdfile.Separator + strings.TrimSpace(moveBlock)
	if err := os.WriteFile(otherPath, []byte(newOther), 0o644); err != nil {
		t.Fatal(err)
	}

	em2 := mdfile.NewEmitter()
	var result *ImportResult
	if err := db.Transaction(ctx, func(tx *sidecar.Tx) error {
		var err error
		result, err = Import(ctx, collectionDir, reg, cl, tx, em2, ImportOptions{})
		return err
	}); err != nil {
		t.Fatalf("second Import() error = %v", err)
	}
	if err := em2.Flush(); err != nil {
		t.Fatal(err)
	}

	var totalCreated, totalDeleted, totalMoved int
	for _, fr := range result.Files {
		totalCreated += fr.Created
		totalDeleted += fr.Deleted
		totalMoved += fr.Moved
		if len(fr.Errors) > 0 {
			t.Errorf("unexpected errors in %s: %v", fr.Path, fr.Errors)
		}
	}
	if totalCreated != 0 {
		t.Errorf("expected no creates on a cross-deck move, got %d", totalCreated)
	}
	if totalDeleted != 0 {
		t.Errorf("expected no deletes on a cross-deck move, got %d", totalDeleted)
	}
	if totalMoved != 1 {
		t.Errorf("expected exactly 1 move, got %d", totalMoved)
	}

	if len(cl.Notes) != 3 {
		t.Fatalf("expected the same 3 notes to survive the move, got %d", len(cl.Notes))
	}
	if _, ok := cl.Notes[moveNoteID]; !ok {
		t.Fatalf("expected note %d to survive under its original id", moveNoteID)
	}
	var deckOfMoved string
	for _, cardID := range cl.NoteCards[moveNoteID] {
		deckOfMoved = cl.Cards[cardID].DeckName
	}
	if deckOfMoved != "Other" {
		t.Errorf("expected moved note's card to sit in deck Other, got %q", deckOfMoved)
	}
}

func TestExportCreatesFileForNewStoreNote(t *testing.T) {
	reg := setupRegistry(t)
	cl := storetest.New()
	db := setupSidecar(t)
	ctx := context.Background()
	collectionDir := t.TempDir()

	noteID := int64(1)
	cl.Decks["Default"] = 1
	cl.Notes[noteID] = store.NoteInfo{ID: noteID, Type: "Basic", Fields: map[string]string{"Question": "Q1", "Answer": "A1"}, CardIDs: []int64{1}}
	cl.Cards[1] = store.CardInfo{ID: 1, DeckName: "Default"}

	em := mdfile.NewEmitter()
	var result *ExportResult
	err := db.Transaction(ctx, func(tx *sidecar.Tx) error {
		var err error
		result, err = Export(ctx, collectionDir, reg, cl, tx, em)
		return err
	})
	if err != nil {
		t.Fatalf("Export() error = %v", err)
	}
	if err := em.Flush(); err != nil {
		t.Fatal(err)
	}

	if len(result.Files) != 1 || result.Files[0].Created != 1 {
		t.Fatalf("expected 1 created file entry, got %+v", result.Files)
	}
	data, err := os.ReadFile(filepath.Join(collectionDir, "Default.md"))
	if err != nil {
		t.Fatalf("expected Default.md to be written: %v", err)
	}
	if !strings.Contains(string(data), "Q1") || !strings.Contains(string(data), "A1") {
		t.Errorf("expected exported content, got:\n%s", data)
	}
}

