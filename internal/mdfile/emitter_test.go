package mdfile

import (
	"os"
	"path/filepath"
	"testing"
)

func TestEmitterInsertsKeyAboveFirstLine(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Basic.md")
	if err := os.WriteFile(path, []byte("Q: What is 2+2?\nA: 4"), 0o644); err != nil {
		t.Fatal(err)
	}

	e := NewEmitter()
	e.QueueKeyInsertion(path, "Q: What is 2+2?", "0123456789ab")
	if err := e.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := "<!-- note_key: 0123456789ab -->\nQ: What is 2+2?\nA: 4"
	if string(data) != want {
		t.Errorf("file content = %q, want %q", string(data), want)
	}
}

func TestEmitterReplacesExistingKeyInPlace(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Basic.md")
	initial := "<!-- note_key: 0000000000aa -->\nQ: What is 2+2?\nA: 4"
	if err := os.WriteFile(path, []byte(initial), 0o644); err != nil {
		t.Fatal(err)
	}

	e := NewEmitter()
	e.QueueKeyInsertion(path, "Q: What is 2+2?", "1111111111bb")
	if err := e.Flush(); err != nil {
		t.Fatalf("Flush() error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	want := "<!-- note_key: 1111111111bb -->\nQ: What is 2+2?\nA: 4"
	if string(data) != want {
		t.Errorf("file content = %q, want %q", string(data), want)
	}
}

func TestEmitterRejectsAmbiguousAnchor(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "Basic.md")
	if err := os.WriteFile(path, []byte("Q: Same?\nA: 1"+Separator+"Q: Same?\nA: 2"), 0o644); err != nil {
		t.Fatal(err)
	}

	e := NewEmitter()
	e.QueueKeyInsertion(path, "Q: Same?", "0123456789ab")
	e.QueueKeyInsertion(path, "Q: Same?", "abcdef012345")
	if err := e.Flush(); err == nil {
		t.Fatal("expected error for ambiguous insertion anchor")
	}
}
