package note

import (
	"testing"

	"github.com/ankiops/ankiops/internal/notetype"
)

func clozeSchema() *notetype.Schema {
	return &notetype.Schema{
		Name:    "Cloze",
		IsCloze: true,
		Fields: []notetype.FieldDef{
			{Name: "Text", Prefix: "Text:", Identifying: true},
			{Name: "AnkiOps Key", KeyField: true},
		},
	}
}

func choiceSchema() *notetype.Schema {
	return &notetype.Schema{
		Name:     "MultipleChoice",
		IsChoice: true,
		Fields: []notetype.FieldDef{
			{Name: "Question", Prefix: "Q:"},
			{Name: "Choice1", Prefix: "C1:", Identifying: true},
			{Name: "Choice2", Prefix: "C2:", Identifying: true},
			{Name: "Choice3", Prefix: "C3:"},
			{Name: "Answer", Prefix: "A:"},
			{Name: "AnkiOps Key", KeyField: true},
		},
	}
}

func TestValidateClozeOK(t *testing.T) {
	n := &Note{Key: "k1", TypeName: "Cloze", Fields: map[string]string{"Text": "The {{c1::answer}} is here"}}
	if err := Validate(n, clozeSchema()); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestValidateClozeMissingMarker(t *testing.T) {
	n := &Note{Key: "k1", TypeName: "Cloze", Fields: map[string]string{"Text": "no marker here"}}
	if err := Validate(n, clozeSchema()); err == nil {
		t.Fatal("expected validation error for missing cloze marker")
	}
}

func TestValidateChoiceOK(t *testing.T) {
	n := &Note{Key: "k1", TypeName: "MultipleChoice", Fields: map[string]string{
		"Question": "2+2?", "Choice1": "3", "Choice2": "4", "Choice3": "", "Answer": "2",
	}}
	if err := Validate(n, choiceSchema()); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}

func TestValidateChoiceTooFewChoices(t *testing.T) {
	n := &Note{Key: "k1", TypeName: "MultipleChoice", Fields: map[string]string{
		"Question": "2+2?", "Choice1": "3", "Answer": "1",
	}}
	if err := Validate(n, choiceSchema()); err == nil {
		t.Fatal("expected validation error for too few non-empty choice fields")
	}
}

func TestValidateChoiceAnswerOutOfRange(t *testing.T) {
	n := &Note{Key: "k1", TypeName: "MultipleChoice", Fields: map[string]string{
		"Question": "2+2?", "Choice1": "3", "Choice2": "4", "Answer": "5",
	}}
	if err := Validate(n, choiceSchema()); err == nil {
		t.Fatal("expected validation error for out-of-range answer index")
	}
}

func TestValidateChoiceMultiAnswer(t *testing.T) {
	n := &Note{Key: "k1", TypeName: "MultipleChoice", Fields: map[string]string{
		"Question": "pick two", "Choice1": "a", "Choice2": "b", "Choice3": "c", "Answer": "1, 3",
	}}
	if err := Validate(n, choiceSchema()); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}
