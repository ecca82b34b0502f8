// Package mdfile implements the Markdown parser and emitter (§4.5): block
// splitting, field extraction by registered prefix, stable-key comment
// handling, and fence-aware scanning, followed by deferred, crash-safe
// writes on the emitter side.
package mdfile

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/ankiops/ankiops/internal/ankierr"
	"github.com/ankiops/ankiops/internal/note"
	"github.com/ankiops/ankiops/internal/notetype"
)

// Separator is the fixed block-separator line per §6.
const Separator = "\n\n---\n\n"

var keyCommentRE = regexp.MustCompile(`^<!--\s*note_key:\s*([0-9a-f]{12})\s*-->$`)

// ParsedBlock is one note block as scanned from a Markdown file, before
// type inference and validation.
type ParsedBlock struct {
	Key          string            // empty if this block has no key comment
	FirstLine    string            // the first field line, used as the insertion anchor
	FieldOrder   []string          // field names in file order
	Fields       map[string]string // field name -> text
	RawPrefixes  []string          // prefixes recognized, in file order (for type inference)
}

// SplitBlocks splits file content on the fixed separator line, discarding
// empty blocks (e.g. a trailing separator).
func SplitBlocks(content string) []string {
	parts := strings.Split(content, Separator)
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			continue
		}
		out = append(out, p)
	}
	return out
}

// ParseBlock scans one block's lines for a leading key comment and then for
// registered field prefixes. Prefix recognition is suspended inside fenced
// code blocks (``` or ~~~). A duplicate prefix within a block is fatal.
func ParseBlock(block string, schema *notetype.Schema) (*ParsedBlock, error) {
	lines := strings.Split(block, "\n")

	pb := &ParsedBlock{Fields: map[string]string{}}
	start := 0

	// Optional leading key comment: skip blank lines before it, same as
	// before the first field line.
	for start < len(lines) && strings.TrimSpace(lines[start]) == "" {
		start++
	}
	if start < len(lines) {
		if m := keyCommentRE.FindStringSubmatch(strings.TrimSpace(lines[start])); m != nil {
			pb.Key = m[1]
			start++
		}
	}

	var currentField string
	var currentPrefix string
	var fence string // non-empty while inside a fenced code block
	var buf strings.Builder

	flush := func() {
		if currentField == "" {
			return
		}
		pb.Fields[currentField] = strings.TrimRight(buf.String(), "\n")
		buf.Reset()
	}

	for i := start; i < len(lines); i++ {
		line := lines[i]
		trimmed := strings.TrimSpace(line)

		if fence != "" {
			if trimmed == fence {
				fence = ""
			}
			if currentField != "" {
				buf.WriteString(line)
				buf.WriteString("\n")
			}
			continue
		}
		if trimmed == "```" || trimmed == "~~~" {
			fence = trimmed
			if currentField != "" {
				buf.WriteString(line)
				buf.WriteString("\n")
			}
			continue
		}

		if prefix, rest, ok := matchPrefix(line, schema); ok {
			if _, seen := pb.Fields[fieldNameForPrefix(schema, prefix)]; seen {
				return nil, ankierr.Wrap(ankierr.ErrParse, "parse note block",
					fmt.Errorf("duplicate field prefix %q", prefix))
			}
			flush()
			currentPrefix = prefix
			currentField = fieldNameForPrefix(schema, prefix)
			pb.FieldOrder = append(pb.FieldOrder, currentField)
			pb.RawPrefixes = append(pb.RawPrefixes, currentPrefix)
			if pb.FirstLine == "" {
				pb.FirstLine = line
			}
			buf.WriteString(rest)
			buf.WriteString("\n")
			continue
		}

		if currentField != "" {
			buf.WriteString(line)
			buf.WriteString("\n")
		}
	}
	flush()

	if len(pb.Fields) == 0 {
		return nil, ankierr.Wrap(ankierr.ErrParse, "parse note block", fmt.Errorf("no recognized fields in block"))
	}

	return pb, nil
}

func matchPrefix(line string, schema *notetype.Schema) (prefix, rest string, ok bool) {
	for _, f := range schema.Fields {
		if f.Prefix == "" {
			continue
		}
		if strings.HasPrefix(line, f.Prefix) {
			return f.Prefix, strings.TrimPrefix(strings.TrimPrefix(line, f.Prefix), " "), true
		}
	}
	return "", "", false
}

func fieldNameForPrefix(schema *notetype.Schema, prefix string) string {
	if f, ok := schema.FieldByPrefix(prefix); ok {
		return f.Name
	}
	return prefix
}

// ToNote converts a parsed block into a note.Note once its type has been
// inferred, attaching the key carrier field from the schema.
func ToNote(pb *ParsedBlock, typeName string, schema *notetype.Schema) *note.Note {
	fields := make(map[string]string, len(pb.Fields))
	for k, v := range pb.Fields {
		fields[k] = v
	}
	if kf, ok := schema.KeyField(); ok {
		fields[kf.Name] = pb.Key
	}
	return &note.Note{Key: pb.Key, TypeName: typeName, Fields: fields}
}
