package mdfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ankiops/ankiops/internal/ankierr"
)

// KeyInsertion is a deferred edit: insert or replace the key comment
// immediately above firstLine in path.
type KeyInsertion struct {
	Path      string
	FirstLine string
	Key       string
}

// Emitter batches Markdown file writes so they can be flushed only after
// all external state changes (store RPCs, sidecar DB transaction) have
// succeeded, per the "deferred side effects" design note (§9).
type Emitter struct {
	insertions []KeyInsertion
	fullWrites map[string]string // path -> full new content, for export
}

// NewEmitter returns an empty, ready-to-use emitter.
func NewEmitter() *Emitter {
	return &Emitter{fullWrites: map[string]string{}}
}

// QueueKeyInsertion defers inserting or replacing a key comment above
// firstLine in path.
func (e *Emitter) QueueKeyInsertion(path, firstLine, key string) {
	e.insertions = append(e.insertions, KeyInsertion{Path: path, FirstLine: firstLine, Key: key})
}

// QueueFullWrite defers writing the complete new content of a file
// (used by the export reconciler, which rewrites whole files).
func (e *Emitter) QueueFullWrite(path, content string) {
	e.fullWrites[path] = content
}

// Flush applies all queued writes. Before writing, it rejects any file
// where two new-key-bearing notes share a first line (an ambiguous
// insertion anchor), per §4.5.
func (e *Emitter) Flush() error {
	byPath := map[string][]KeyInsertion{}
	for _, ins := range e.insertions {
		byPath[ins.Path] = append(byPath[ins.Path], ins)
	}

	for path, inss := range byPath {
		if err := checkUnambiguous(inss); err != nil {
			return ankierr.Wrap(ankierr.ErrParse, fmt.Sprintf("flush key insertions for %s", path), err)
		}
	}

	for path, inss := range byPath {
		if _, fullWriteQueued := e.fullWrites[path]; fullWriteQueued {
			continue // full write supersedes insertion for this path
		}
		if err := applyInsertions(path, inss); err != nil {
			return err
		}
	}

	for path, content := range e.fullWrites {
		if err := writeFileAtomic(path, content); err != nil {
			return err
		}
	}

	e.insertions = nil
	e.fullWrites = map[string]string{}
	return nil
}

func checkUnambiguous(inss []KeyInsertion) error {
	seen := map[string]bool{}
	for _, ins := range inss {
		if seen[ins.FirstLine] {
			return fmt.Errorf("two new-key-bearing notes share first line %q", ins.FirstLine)
		}
		seen[ins.FirstLine] = true
	}
	return nil
}

func applyInsertions(path string, inss []KeyInsertion) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return ankierr.Wrap(ankierr.ErrParse, fmt.Sprintf("read %s for key insertion", path), err)
	}
	content := string(data)

	for _, ins := range inss {
		content = insertOrReplaceKey(content, ins.FirstLine, ins.Key)
	}

	return writeFileAtomic(path, content)
}

// insertOrReplaceKey places a `<!-- note_key: KEY -->` comment immediately
// above firstLine. If firstLine is already preceded by a key comment, it is
// replaced in place rather than duplicated.
func insertOrReplaceKey(content, firstLine, key string) string {
	lines := strings.Split(content, "\n")
	comment := fmt.Sprintf("<!-- note_key: %s -->", key)

	for i, line := range lines {
		if line != firstLine {
			continue
		}
		if i > 0 && keyCommentRE.MatchString(strings.TrimSpace(lines[i-1])) {
			lines[i-1] = comment
			return strings.Join(lines, "\n")
		}
		out := make([]string, 0, len(lines)+1)
		out = append(out, lines[:i]...)
		out = append(out, comment)
		out = append(out, lines[i:]...)
		return strings.Join(out, "\n")
	}
	return content
}

// writeFileAtomic writes content to a temp file in the same directory and
// renames it into place, so readers never observe a partial write.
func writeFileAtomic(path, content string) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".mdfile-*.tmp")
	if err != nil {
		return ankierr.Wrap(ankierr.ErrParse, fmt.Sprintf("create temp file for %s", path), err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath) // no-op once renamed

	if _, err := tmp.WriteString(content); err != nil {
		_ = tmp.Close()
		return ankierr.Wrap(ankierr.ErrParse, fmt.Sprintf("write temp file for %s", path), err)
	}
	if err := tmp.Close(); err != nil {
		return ankierr.Wrap(ankierr.ErrParse, fmt.Sprintf("close temp file for %s", path), err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return ankierr.Wrap(ankierr.ErrParse, fmt.Sprintf("rename temp file into %s", path), err)
	}
	return nil
}
