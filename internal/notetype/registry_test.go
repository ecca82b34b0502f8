package notetype

import (
	"os"
	"path/filepath"
	"testing"
)

func writeType(t *testing.T, dir, fileName, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, fileName), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

const basicYAML = `
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

const clozeYAML = `
name: Cloze
is_cloze: true
fields:
  - name: Text
    prefix: "Text:"
    identifying: true
  - name: AnkiOps Key
    key_field: true
`

const choiceYAML = `
name: MultipleChoice
is_choice: true
fields:
  - name: Question
    prefix: "Q:"
  - name: Choice1
    prefix: "C1:"
    identifying: true
  - name: Choice2
    prefix: "C2:"
    identifying: true
  - name: Answer
    prefix: "A:"
  - name: AnkiOps Key
    key_field: true
`

func TestLoadValidDefinitions(t *testing.T) {
	dir := t.TempDir()
	writeType(t, dir, "basic.yaml", basicYAML)
	writeType(t, dir, "cloze.yaml", clozeYAML)

	reg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(reg.All()) != 2 {
		t.Fatalf("All() = %d schemas, want 2", len(reg.All()))
	}
	if _, ok := reg.Get("Basic"); !ok {
		t.Error("expected Basic type to be loaded")
	}
}

func TestLoadRejectsDuplicateFieldName(t *testing.T) {
	dir := t.TempDir()
	writeType(t, dir, "bad.yaml", `
name: Bad
fields:
  - name: Question
    prefix: "Q:"
  - name: Question
    prefix: "Q2:"
  - name: AnkiOps Key
    key_field: true
`)
	if _, err := Load(dir); err == nil {
		t.Fatal("expected error for duplicate field name")
	}
}

func TestLoadRejectsMissingKeyField(t *testing.T) {
	dir := t.TempDir()
	writeType(t, dir, "bad.yaml", `
name: Bad
fields:
  - name: Question
    prefix: "Q:"
`)
	if _, err := Load(dir); err == nil {
		t.Fatal("expected error for missing key field")
	}
}

func TestLoadRejectsChoiceWithoutChoiceField(t *testing.T) {
	dir := t.TempDir()
	writeType(t, dir, "bad.yaml", `
name: Bad
is_choice: true
fields:
  - name: Question
    prefix: "Q:"
  - name: AnkiOps Key
    key_field: true
`)
	if _, err := Load(dir); err == nil {
		t.Fatal("expected error for is_choice type lacking a choice field")
	}
}

func TestLoadRejectsSharedIdentifyingPrefixes(t *testing.T) {
	dir := t.TempDir()
	writeType(t, dir, "basic.yaml", basicYAML)
	writeType(t, dir, "basic2.yaml", `
name: Basic2
fields:
  - name: Question
    prefix: "Q:"
    identifying: true
  - name: Answer
    prefix: "A:"
    identifying: true
  - name: AnkiOps Key
    key_field: true
`)
	if _, err := Load(dir); err == nil {
		t.Fatal("expected error for two types sharing identifying prefixes")
	}
}

func TestInferTypeUnique(t *testing.T) {
	dir := t.TempDir()
	writeType(t, dir, "basic.yaml", basicYAML)
	writeType(t, dir, "cloze.yaml", clozeYAML)
	writeType(t, dir, "choice.yaml", choiceYAML)

	reg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	name, err := reg.InferType([]string{"Q:", "A:"})
	if err != nil {
		t.Fatalf("InferType() error = %v", err)
	}
	if name != "Basic" {
		t.Errorf("InferType(Q,A) = %q, want Basic", name)
	}

	name, err = reg.InferType([]string{"Text:"})
	if err != nil {
		t.Fatalf("InferType() error = %v", err)
	}
	if name != "Cloze" {
		t.Errorf("InferType(Text) = %q, want Cloze", name)
	}
}

func TestInferTypeNoMatch(t *testing.T) {
	dir := t.TempDir()
	writeType(t, dir, "basic.yaml", basicYAML)

	reg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if _, err := reg.InferType([]string{"Nope:"}); err == nil {
		t.Fatal("expected error when no type matches")
	}
}

func TestReloadIsNoOpWhenUnchanged(t *testing.T) {
	dir := t.TempDir()
	writeType(t, dir, "basic.yaml", basicYAML)

	reg, err := Load(dir)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	before := reg.schemas["Basic"]

	if err := reg.Reload(); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}
	after := reg.schemas["Basic"]
	if before != after {
		t.Error("Reload() replaced schema despite unchanged directory signature")
	}
}
