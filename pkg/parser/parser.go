// Package parser loads winnow type-registry definitions from YAML.
//
// Registry definitions declare each type's tag, fields, and relations -
// the serializable half of a registry. Query capabilities are host
// functions and cannot come from a file; registries built here carry
// empty capability records and are meant for offline tooling: schema
// validation, plan inspection, and solver input.
//
// # Definition Format
//
//	types:
//	  - tag: Folder
//	    fields:
//	      - name: id
//	        type: Integer
//	      - name: owner_id
//	        type: Integer
//	  - tag: Document
//	    fields:
//	      - name: id
//	        type: Integer
//	      - name: folder
//	        relation:
//	          kind: one
//	          other_type: Folder
//	          my_field: folder_id
//	          other_field: id
//
// This package is the only one that touches the definition file format,
// keeping the YAML dependency out of the runtime packages.
package parser

import (
	"fmt"
	"os"

	"sigs.k8s.io/yaml"

	"github.com/pthm/winnow"
)

// File is the top-level structure of a definitions file.
type File struct {
	Types []TypeDef `json:"types"`
}

// TypeDef declares one registered type.
type TypeDef struct {
	Tag    winnow.TypeTag `json:"tag"`
	Fields []FieldDef     `json:"fields"`
}

// FieldDef declares one field: a primitive attribute (Type set) or a
// relation (Relation set).
type FieldDef struct {
	Name     string           `json:"name"`
	Type     string           `json:"type,omitempty"`
	Relation *winnow.Relation `json:"relation,omitempty"`
}

// ParseFile reads a YAML definitions file.
func ParseFile(path string) ([]TypeDef, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading definitions file: %w", err)
	}
	return Parse(content)
}

// Parse parses YAML definition content.
func Parse(content []byte) ([]TypeDef, error) {
	var f File
	if err := yaml.UnmarshalStrict(content, &f); err != nil {
		return nil, fmt.Errorf("parsing definitions: %w", err)
	}
	if len(f.Types) == 0 {
		return nil, fmt.Errorf("parsing definitions: no types declared")
	}
	return f.Types, nil
}

// BuildRegistry assembles parsed definitions into a registry with empty
// capability records. The registry builder validates the definitions as
// a whole: unique tags, unique field names, relations referencing
// registered types.
func BuildRegistry(defs []TypeDef) (*winnow.Registry, error) {
	b := winnow.NewRegistryBuilder()
	for _, def := range defs {
		fields := make([]winnow.FieldDef, 0, len(def.Fields))
		for _, f := range def.Fields {
			switch {
			case f.Relation != nil:
				fields = append(fields, winnow.Related(f.Name, *f.Relation))
			default:
				fields = append(fields, winnow.Attribute(f.Name, f.Type))
			}
		}
		b.RegisterType(def.Tag, fields, winnow.Capabilities{})
	}
	return b.Build()
}
