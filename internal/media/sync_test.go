package media

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ankiops/ankiops/internal/sidecar"
	"github.com/ankiops/ankiops/internal/store/storetest"
)

func setupSidecar(t *testing.T) *sidecar.DB {
	t.Helper()
	db, err := sidecar.Open(filepath.Join(t.TempDir(), "sidecar.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSyncRenamesAndPushesReferencedFile(t *testing.T) {
	collectionDir := t.TempDir()
	mediaDir := t.TempDir()
	cl := storetest.New()
	db := setupSidecar(t)
	ctx := context.Background()

	if err := os.WriteFile(filepath.Join(mediaDir, "cat.png"), []byte("cat-bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	mdPath := filepath.Join(collectionDir, "Default.md")
	if err := os.WriteFile(mdPath, []byte("Q: What is this?\nA: ![cat](cat.png)"), 0o644); err != nil {
		t.Fatal(err)
	}

	var result *SyncResult
	err := db.Transaction(ctx, func(tx *sidecar.Tx) error {
		var err error
		result, err = Sync(ctx, collectionDir, mediaDir, cl, tx, false)
		return err
	})
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if result.Renamed != 1 || result.Pushed != 1 {
		t.Fatalf("unexpected result: %+v", result)
	}

	entries, err := os.ReadDir(mediaDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || !strings.HasPrefix(entries[0].Name(), "cat_") {
		t.Fatalf("expected one hashed media file, got %+v", entries)
	}

	data, err := os.ReadFile(mdPath)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), entries[0].Name()) {
		t.Errorf("expected markdown to reference hashed name, got:\n%s", data)
	}
	if len(cl.Media) != 1 {
		t.Errorf("expected media pushed to store, got %+v", cl.Media)
	}
}

func TestSyncDeletesUnreferencedFile(t *testing.T) {
	collectionDir := t.TempDir()
	mediaDir := t.TempDir()
	cl := storetest.New()
	db := setupSidecar(t)
	ctx := context.Background()

	if err := os.WriteFile(filepath.Join(mediaDir, "orphan_aaaaaaaa.png"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(collectionDir, "Default.md"), []byte("Q: hi\nA: there"), 0o644); err != nil {
		t.Fatal(err)
	}

	var result *SyncResult
	err := db.Transaction(ctx, func(tx *sidecar.Tx) error {
		var err error
		result, err = Sync(ctx, collectionDir, mediaDir, cl, tx, false)
		return err
	})
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if result.Deleted != 1 {
		t.Fatalf("expected 1 deleted file, got %+v", result)
	}
	entries, _ := os.ReadDir(mediaDir)
	if len(entries) != 0 {
		t.Errorf("expected media directory empty, got %+v", entries)
	}
}

func TestSyncKeepsUnderscorePrefixedFile(t *testing.T) {
	collectionDir := t.TempDir()
	mediaDir := t.TempDir()
	cl := storetest.New()
	db := setupSidecar(t)
	ctx := context.Background()

	if err := os.WriteFile(filepath.Join(mediaDir, "_template.png"), []byte("tmpl-bytes"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(collectionDir, "Default.md"), []byte("Q: hi\nA: there"), 0o644); err != nil {
		t.Fatal(err)
	}

	err := db.Transaction(ctx, func(tx *sidecar.Tx) error {
		_, err := Sync(ctx, collectionDir, mediaDir, cl, tx, false)
		return err
	})
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}

	entries, _ := os.ReadDir(mediaDir)
	if len(entries) != 1 {
		t.Fatalf("expected underscore-prefixed file to survive, got %+v", entries)
	}
}

func TestSyncPullsMissingReferencedFile(t *testing.T) {
	collectionDir := t.TempDir()
	mediaDir := t.TempDir()
	cl := storetest.New()
	cl.Media["dog_deadbeef.png"] = []byte("dog-bytes")
	db := setupSidecar(t)
	ctx := context.Background()

	if err := os.WriteFile(filepath.Join(collectionDir, "Default.md"), []byte("Q: what\nA: ![dog](dog_deadbeef.png)"), 0o644); err != nil {
		t.Fatal(err)
	}

	var result *SyncResult
	err := db.Transaction(ctx, func(tx *sidecar.Tx) error {
		var err error
		result, err = Sync(ctx, collectionDir, mediaDir, cl, tx, false)
		return err
	})
	if err != nil {
		t.Fatalf("Sync() error = %v", err)
	}
	if result.Pulled != 1 {
		t.Fatalf("expected 1 pulled file, got %+v", result)
	}
	data, err := os.ReadFile(filepath.Join(mediaDir, "dog_deadbeef.png"))
	if err != nil {
		t.Fatalf("expected pulled file on disk: %v", err)
	}
	if string(data) != "dog-bytes" {
		t.Errorf("unexpected pulled content: %q", data)
	}
}

func TestSyncRejectsAliasedMediaDir(t *testing.T) {
	collectionDir := t.TempDir()
	mediaDir := t.TempDir()
	cl := storetest.New()
	cl.MediaDir = mediaDir
	db := setupSidecar(t)
	ctx := context.Background()

	err := db.Transaction(ctx, func(tx *sidecar.Tx) error {
		_, err := Sync(ctx, collectionDir, mediaDir, cl, tx, false)
		return err
	})
	if err == nil {
		t.Error("expected an error when local and store media directories alias")
	}
}
