// Package aitask implements the AI field-editing pipeline (§9 "AI
// editor"): a registry of prompt/task definitions in the `ai.task.v1`
// schema (the source's coexisting legacy loader is a migration concern,
// not implemented here, per the spec's Open Question), a bounded
// worker pool that applies a task across a batch of notes, and the
// provider abstraction the pool calls through. Grounded on the
// teacher's internal/compact/compactor.go (batch worker pool) and
// internal/compact/haiku.go (prompt rendering, retry), generalized from
// one hardcoded issue-summarization prompt to a directory of loadable
// task definitions.
package aitask

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/ankiops/ankiops/internal/ankierr"
)

// taskSchemaVersion is the only task definition schema this engine
// understands.
const taskSchemaVersion = "ai.task.v1"

// Task describes one AI field-editing operation: which note type it
// targets, which field it overwrites, and the prompt template used to
// produce the new field value from the note's current fields.
type Task struct {
	Version     string `yaml:"version"`
	Name        string `yaml:"name"`
	NoteType    string `yaml:"note_type"`
	TargetField string `yaml:"target_field"`
	Provider    string `yaml:"provider"`
	Model       string `yaml:"model"`
	Prompt      string `yaml:"prompt"`

	tmpl *template.Template
}

// LoadTasks reads every *.yaml task definition in dir.
func LoadTasks(dir string) ([]*Task, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, ankierr.Wrap(ankierr.ErrConfig, "read ai task directory", err)
	}

	var tasks []*Task
	seen := map[string]bool{}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		task, err := loadOne(filepath.Join(dir, e.Name()))
		if err != nil {
			return nil, err
		}
		if seen[task.Name] {
			return nil, ankierr.Wrap(ankierr.ErrConfig, "load ai tasks", fmt.Errorf("duplicate task name %q", task.Name))
		}
		seen[task.Name] = true
		tasks = append(tasks, task)
	}
	return tasks, nil
}

func loadOne(path string) (*Task, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ankierr.Wrap(ankierr.ErrConfig, "read ai task definition", err)
	}

	var t Task
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, ankierr.Wrap(ankierr.ErrConfig, fmt.Sprintf("parse ai task definition %s", filepath.Base(path)), err)
	}
	if t.Version != taskSchemaVersion {
		return nil, ankierr.Wrap(ankierr.ErrConfig, "validate ai task definition",
			fmt.Errorf("%s: unsupported task schema version %q, want %q", filepath.Base(path), t.Version, taskSchemaVersion))
	}
	if t.Name == "" || t.NoteType == "" || t.TargetField == "" || t.Prompt == "" {
		return nil, ankierr.Wrap(ankierr.ErrConfig, "validate ai task definition",
			fmt.Errorf("%s: name, note_type, target_field, and prompt are all required", filepath.Base(path)))
	}

	tmpl, err := template.New(t.Name).Parse(t.Prompt)
	if err != nil {
		return nil, ankierr.Wrap(ankierr.ErrConfig, fmt.Sprintf("parse prompt template for task %s", t.Name), err)
	}
	t.tmpl = tmpl
	return &t, nil
}

// RenderPrompt substitutes a note's fields into the task's prompt
// template. Fields are exposed to the template under .Fields.
func (t *Task) RenderPrompt(fields map[string]string) (string, error) {
	var b strings.Builder
	if err := t.tmpl.Execute(&b, struct{ Fields map[string]string }{Fields: fields}); err != nil {
		return "", ankierr.Wrap(ankierr.ErrConfig, fmt.Sprintf("render prompt for task %s", t.Name), err)
	}
	return b.String(), nil
}
