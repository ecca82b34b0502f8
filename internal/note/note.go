// Package note holds the note model and the per-type validators that
// enforce §3's invariants (cloze marker presence, choice field/answer
// ranges), dispatching on note-type flags the way the teacher's validation
// package dispatches on issue type and custom status/type records.
package note

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ankiops/ankiops/internal/ankierr"
	"github.com/ankiops/ankiops/internal/notetype"
)

// Note is a tuple (stable_key?, note_type_name, fields). Key is empty only
// for newly-authored notes pending their first import.
type Note struct {
	Key      string
	TypeName string
	Fields   map[string]string
}

// clozeMarker matches {{c<digit+>::...}} cloze deletion spans.
var clozeMarker = regexp.MustCompile(`\{\{c\d+::[^}]*\}\}`)

// Validate enforces the per-type invariants for n against schema. The
// returned error, if any, wraps ankierr.ErrValidation.
func Validate(n *Note, schema *notetype.Schema) error {
	if schema.IsCloze {
		if err := validateCloze(n, schema); err != nil {
			return err
		}
	}
	if schema.IsChoice {
		if err := validateChoice(n, schema); err != nil {
			return err
		}
	}
	return nil
}

func validateCloze(n *Note, schema *notetype.Schema) error {
	for _, f := range schema.Fields {
		if f.KeyField {
			continue
		}
		text := n.Fields[f.Name]
		if clozeMarker.MatchString(text) {
			return nil
		}
	}
	return ankierr.Wrap(ankierr.ErrValidation, "validate cloze note",
		fmt.Errorf("note %q of type %q has no {{c<n>::...}} cloze marker", n.Key, schema.Name))
}

// validateChoice enforces: at least two non-empty choice fields, and an
// Answer field whose comma-separated integers fall within
// [1, max_choice_index].
func validateChoice(n *Note, schema *notetype.Schema) error {
	var choiceCount int
	for _, f := range schema.Fields {
		if f.KeyField {
			continue
		}
		if strings.Contains(strings.ToLower(f.Name), "choice") {
			if strings.TrimSpace(n.Fields[f.Name]) != "" {
				choiceCount++
			}
		}
	}
	if choiceCount < 2 {
		return ankierr.Wrap(ankierr.ErrValidation, "validate choice note",
			fmt.Errorf("note %q of type %q has %d non-empty choice fields, need >= 2", n.Key, schema.Name, choiceCount))
	}

	answer, ok := answerField(n, schema)
	if !ok {
		return ankierr.Wrap(ankierr.ErrValidation, "validate choice note",
			fmt.Errorf("note %q of type %q has no Answer field", n.Key, schema.Name))
	}

	indices, err := parseAnswerIndices(answer)
	if err != nil {
		return ankierr.Wrap(ankierr.ErrValidation, "validate choice note",
			fmt.Errorf("note %q of type %q: %w", n.Key, schema.Name, err))
	}
	for _, idx := range indices {
		if idx < 1 || idx > choiceCount {
			return ankierr.Wrap(ankierr.ErrValidation, "validate choice note",
				fmt.Errorf("note %q of type %q: answer index %d out of range [1, %d]", n.Key, schema.Name, idx, choiceCount))
		}
	}
	return nil
}

func answerField(n *Note, schema *notetype.Schema) (string, bool) {
	for _, f := range schema.Fields {
		if strings.EqualFold(f.Name, "Answer") {
			return n.Fields[f.Name], true
		}
	}
	return "", false
}

func parseAnswerIndices(answer string) ([]int, error) {
	parts := strings.Split(answer, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		v, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("answer field %q is not a comma-separated integer list", answer)
		}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("answer field is empty")
	}
	return out, nil
}
