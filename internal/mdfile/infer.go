package mdfile

import (
	"github.com/ankiops/ankiops/internal/note"
	"github.com/ankiops/ankiops/internal/notetype"
)

// unionSchema builds a synthetic schema carrying every field prefix known
// to the registry, used only to scan a block for recognized prefixes
// before its note type is known.
func unionSchema(reg *notetype.Registry) *notetype.Schema {
	seen := map[string]bool{}
	u := &notetype.Schema{Name: "union"}
	for _, s := range reg.All() {
		for _, f := range s.Fields {
			if f.Prefix == "" || seen[f.Prefix] {
				continue
			}
			seen[f.Prefix] = true
			u.Fields = append(u.Fields, f)
		}
	}
	return u
}

// InferAndParse scans block against every registered prefix, infers the
// block's note type from the prefixes actually present, then reparses
// against that type's own schema so field names and the key-carrier field
// come from the correct definition (§4.4, §4.5).
func InferAndParse(block string, reg *notetype.Registry) (*ParsedBlock, string, *notetype.Schema, error) {
	scan, err := ParseBlock(block, unionSchema(reg))
	if err != nil {
		return nil, "", nil, err
	}

	typeName, err := reg.InferType(scan.RawPrefixes)
	if err != nil {
		return nil, "", nil, err
	}

	schema, _ := reg.Get(typeName)
	pb, err := ParseBlock(block, schema)
	if err != nil {
		return nil, "", nil, err
	}
	return pb, typeName, schema, nil
}

// ParseAndValidate is InferAndParse followed by note-model validation.
func ParseAndValidate(block string, reg *notetype.Registry) (*ParsedBlock, string, *note.Note, error) {
	pb, typeName, schema, err := InferAndParse(block, reg)
	if err != nil {
		return nil, "", nil, err
	}
	n := ToNote(pb, typeName, schema)
	if err := note.Validate(n, schema); err != nil {
		return nil, "", nil, err
	}
	return pb, typeName, n, nil
}
