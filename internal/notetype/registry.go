package notetype

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ankiops/ankiops/internal/ankierr"
)

// fileSignature is a cheap mtime+size fingerprint of a directory's
// contents, used to skip reloading when nothing has changed, following the
// teacher's filesystem-signature caching convention.
type fileSignature struct {
	modTimeNS int64
	size      int64
}

// Registry holds the loaded note-type schemas for one run.
type Registry struct {
	dir        string
	schemas    map[string]*Schema
	signatures map[string]fileSignature
}

// Load reads all *.yaml definitions (each optionally paired with a
// same-stem .css and .html template file) from dir, validates them, and
// returns a ready registry. A directory signature is cached in memory on
// the returned registry; calling Reload on it with an unchanged directory
// is a no-op that keeps the previously validated schemas.
func Load(dir string) (*Registry, error) {
	r := &Registry{dir: dir, schemas: map[string]*Schema{}, signatures: map[string]fileSignature{}}
	if err := r.reload(); err != nil {
		return nil, err
	}
	return r, nil
}

// Reload re-scans the definition directory and reloads if the filesystem
// signature changed since the last load.
func (r *Registry) Reload() error {
	return r.reload()
}

func (r *Registry) reload() error {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return ankierr.Wrap(ankierr.ErrConfig, "read note-type directory", err)
	}

	newSig := map[string]fileSignature{}
	changed := len(newSig) != len(r.signatures)
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".yaml") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			return ankierr.Wrap(ankierr.ErrConfig, "stat note-type file", err)
		}
		sig := fileSignature{modTimeNS: info.ModTime().UnixNano(), size: info.Size()}
		newSig[e.Name()] = sig
		if r.signatures[e.Name()] != sig {
			changed = true
		}
	}
	if len(newSig) != len(r.signatures) {
		changed = true
	}
	if !changed {
		return nil
	}

	schemas := map[string]*Schema{}
	for name := range newSig {
		schema, err := loadOne(r.dir, name)
		if err != nil {
			return err
		}
		if _, dup := schemas[schema.Name]; dup {
			return ankierr.Wrap(ankierr.ErrConfig, "load note types", fmt.Errorf("duplicate note type name %q", schema.Name))
		}
		schemas[schema.Name] = schema
	}

	if err := validateAll(schemas); err != nil {
		return err
	}

	r.schemas = schemas
	r.signatures = newSig
	return nil
}

func loadOne(dir, fileName string) (*Schema, error) {
	path := filepath.Join(dir, fileName)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, ankierr.Wrap(ankierr.ErrConfig, "read note-type definition", err)
	}

	var s Schema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, ankierr.Wrap(ankierr.ErrConfig, fmt.Sprintf("parse note-type definition %s", fileName), err)
	}
	if s.Name == "" {
		return nil, ankierr.Wrap(ankierr.ErrConfig, "validate note-type definition", fmt.Errorf("%s: missing name", fileName))
	}

	stem := strings.TrimSuffix(fileName, ".yaml")
	if css, err := os.ReadFile(filepath.Join(dir, stem+".css")); err == nil {
		s.CSS = string(css)
	}
	if tmpl, err := os.ReadFile(filepath.Join(dir, stem+".html")); err == nil {
		s.Template = string(tmpl)
	}

	return &s, nil
}

// validateAll enforces the cross-type invariants from §4.4.
func validateAll(schemas map[string]*Schema) error {
	reservedPrefixes := map[string]string{} // prefix -> owning builtin type
	identifyingSets := map[string]string{}  // canonical set key -> type name

	for _, s := range schemas {
		if err := validateOne(s); err != nil {
			return err
		}
		if s.Builtin() {
			for _, f := range s.Fields {
				if f.Prefix != "" {
					reservedPrefixes[f.Prefix] = s.Name
				}
			}
		}
	}

	for _, s := range schemas {
		if s.Builtin() {
			continue
		}
		for _, f := range s.Fields {
			if f.Prefix == "" {
				continue
			}
			if owner, reserved := reservedPrefixes[f.Prefix]; reserved {
				return ankierr.Wrap(ankierr.ErrConfig, "validate note types",
					fmt.Errorf("type %q reuses reserved prefix %q owned by built-in type %q", s.Name, f.Prefix, owner))
			}
		}
	}

	for _, s := range schemas {
		idKey := setKey(s.IdentifyingPrefixes())
		if idKey == "" {
			continue
		}
		if other, dup := identifyingSets[idKey]; dup && other != s.Name {
			return ankierr.Wrap(ankierr.ErrConfig, "validate note types",
				fmt.Errorf("types %q and %q share identifying-field prefixes", s.Name, other))
		}
		identifyingSets[idKey] = s.Name
	}

	return nil
}

func validateOne(s *Schema) error {
	names := map[string]bool{}
	prefixes := map[string]bool{}
	keyFieldCount := 0
	hasChoiceField := false

	for _, f := range s.Fields {
		if names[f.Name] {
			return ankierr.Wrap(ankierr.ErrConfig, "validate note type", fmt.Errorf("%s: duplicate field name %q", s.Name, f.Name))
		}
		names[f.Name] = true

		if f.Prefix != "" {
			if prefixes[f.Prefix] {
				return ankierr.Wrap(ankierr.ErrConfig, "validate note type", fmt.Errorf("%s: duplicate field prefix %q", s.Name, f.Prefix))
			}
			prefixes[f.Prefix] = true
		}

		if f.KeyField {
			keyFieldCount++
		}

		if strings.Contains(strings.ToLower(f.Name), "choice") {
			hasChoiceField = true
		}
	}

	if keyFieldCount != 1 {
		return ankierr.Wrap(ankierr.ErrConfig, "validate note type", fmt.Errorf("%s: exactly one field must be the hidden key carrier, found %d", s.Name, keyFieldCount))
	}
	if s.IsChoice && !hasChoiceField {
		return ankierr.Wrap(ankierr.ErrConfig, "validate note type", fmt.Errorf("%s: is_choice requires at least one field whose name contains \"choice\"", s.Name))
	}

	return nil
}

func setKey(set map[string]bool) string {
	if len(set) == 0 {
		return ""
	}
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return strings.Join(keys, "\x00")
}

// Get returns a loaded schema by name.
func (r *Registry) Get(name string) (*Schema, bool) {
	s, ok := r.schemas[name]
	return s, ok
}

// All returns every loaded schema, sorted by name for deterministic
// iteration order.
func (r *Registry) All() []*Schema {
	names := make([]string, 0, len(r.schemas))
	for n := range r.schemas {
		names = append(names, n)
	}
	sort.Strings(names)
	out := make([]*Schema, 0, len(names))
	for _, n := range names {
		out = append(out, r.schemas[n])
	}
	return out
}

// InferType returns the unique note type whose identifying-field prefixes
// are a superset of presentFieldPrefixes (after removing common optional
// prefixes shared across all types), minimizing the type's own field-set
// size. It returns an error if zero or multiple types match.
func (r *Registry) InferType(presentFieldPrefixes []string) (string, error) {
	common := r.commonOptionalPrefixes()
	present := map[string]bool{}
	for _, p := range presentFieldPrefixes {
		if !common[p] {
			present[p] = true
		}
	}

	var matches []*Schema
	for _, s := range r.All() {
		idSet := s.IdentifyingPrefixes()
		if isSuperset(idSet, present) {
			matches = append(matches, s)
		}
	}

	if len(matches) == 0 {
		return "", ankierr.Wrap(ankierr.ErrParse, "infer note type", fmt.Errorf("no note type matches fields %v", presentFieldPrefixes))
	}

	sort.Slice(matches, func(i, j int) bool { return len(matches[i].Fields) < len(matches[j].Fields) })
	best := len(matches[0].Fields)
	var tied []*Schema
	for _, m := range matches {
		if len(m.Fields) == best {
			tied = append(tied, m)
		}
	}
	if len(tied) != 1 {
		names := make([]string, len(tied))
		for i, m := range tied {
			names[i] = m.Name
		}
		return "", ankierr.Wrap(ankierr.ErrParse, "infer note type", fmt.Errorf("ambiguous note type for fields %v: matches %v", presentFieldPrefixes, names))
	}

	return tied[0].Name, nil
}

// commonOptionalPrefixes returns field prefixes that are never identifying
// in any loaded type: these are ignored during type inference because they
// carry no discriminating signal (e.g. a shared optional "Notes" field).
func (r *Registry) commonOptionalPrefixes() map[string]bool {
	neverIdentifying := map[string]bool{}
	everIdentifying := map[string]bool{}
	for _, s := range r.All() {
		for _, f := range s.Fields {
			if f.Prefix == "" {
				continue
			}
			if f.Identifying {
				everIdentifying[f.Prefix] = true
			} else {
				neverIdentifying[f.Prefix] = true
			}
		}
	}
	out := map[string]bool{}
	for p := range neverIdentifying {
		if !everIdentifying[p] {
			out[p] = true
		}
	}
	return out
}

func isSuperset(set, subset map[string]bool) bool {
	for k := range subset {
		if !set[k] {
			return false
		}
	}
	return true
}
