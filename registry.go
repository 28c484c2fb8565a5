package winnow

import (
	"context"
	"fmt"
	"sort"
)

// RelationKind distinguishes how many foreign records a relation can
// reach through its join keys.
type RelationKind string

const (
	// RelationOne links each record to at most one foreign record,
	// e.g. a document's folder via a folder_id foreign key.
	RelationOne RelationKind = "one"

	// RelationMany links each record to any number of foreign records,
	// e.g. a folder's documents.
	RelationMany RelationKind = "many"
)

// Relation declares a foreign-key-like link from a field of one
// registered type to another registered type. MyField on the declaring
// type joins to OtherField on OtherType; the solver uses the join keys
// to route cross-type constraints and to order request resolution.
//
// Example, documents stored with a folder_id column:
//
//	Relation{Kind: RelationOne, OtherType: "Folder", MyField: "folder_id", OtherField: "id"}
type Relation struct {
	Kind       RelationKind `json:"kind"`
	OtherType  TypeTag      `json:"other_type"`
	MyField    string       `json:"my_field"`
	OtherField string       `json:"other_field"`
}

// FieldSpec describes a primitive (non-relation) attribute.
type FieldSpec struct {
	// Type is an informational type name ("String", "Integer", ...).
	// The compiler does not interpret it; solvers and backends may.
	Type string `json:"type"`
}

// FieldDef declares one field of a registered type: either a primitive
// attribute (Spec set) or a relation to another type (Relation set).
// Exactly one of the two is set.
type FieldDef struct {
	Name     string
	Spec     *FieldSpec
	Relation *Relation
}

// Attribute declares a primitive field.
func Attribute(name, typ string) FieldDef {
	return FieldDef{Name: name, Spec: &FieldSpec{Type: typ}}
}

// Related declares a relation field.
func Related(name string, rel Relation) FieldDef {
	return FieldDef{Name: name, Relation: &rel}
}

// Capabilities is the explicit record of per-type query operations a
// host may supply when registering a type. Any capability may be nil;
// absence is checked before use and surfaces as ErrUnsupportedType
// rather than a crash.
type Capabilities struct {
	// BuildQuery turns structured constraints into a backend query
	// value. The compiler requires it on the root type whenever a
	// complete result must be lowered into a plan branch.
	BuildQuery func(constraints []Constraint) (any, error)

	// ExecQuery runs a query built by BuildQuery and returns the
	// matching objects.
	ExecQuery func(ctx context.Context, query any) ([]any, error)

	// CombineQuery merges two queries into one whose results are the
	// union of both. Needed only when a caller asks for a single
	// combined query over a multi-branch plan.
	CombineQuery func(a, b any) (any, error)
}

// TypeEntry is one registry record: a type tag, the type's declared
// fields in registration order, and its query capabilities.
type TypeEntry struct {
	Tag    TypeTag
	Fields []FieldDef
	Caps   Capabilities
}

// Field returns the declared field with the given name.
func (e *TypeEntry) Field(name string) (FieldDef, bool) {
	for _, f := range e.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldDef{}, false
}

// Registry is the read-only map from type tags to type entries that the
// compiler, solver, and executor consult. It is populated once through
// a RegistryBuilder and immutable afterward, so concurrent readers need
// no locking.
type Registry struct {
	entries map[TypeTag]*TypeEntry
	order   []TypeTag
}

// RegistryBuilder accumulates type registrations and validates them as
// a whole when Build is called. Forward references between types are
// allowed: a relation may name a type registered later.
type RegistryBuilder struct {
	entries map[TypeTag]*TypeEntry
	order   []TypeTag
	errs    []error
}

// NewRegistryBuilder returns an empty builder.
func NewRegistryBuilder() *RegistryBuilder {
	return &RegistryBuilder{entries: make(map[TypeTag]*TypeEntry)}
}

// RegisterType records a type with its fields and capabilities.
// Registration errors are deferred and reported by Build, so calls can
// be chained.
func (b *RegistryBuilder) RegisterType(tag TypeTag, fields []FieldDef, caps Capabilities) *RegistryBuilder {
	if tag == "" {
		b.errs = append(b.errs, fmt.Errorf("winnow: empty type tag"))
		return b
	}
	if _, dup := b.entries[tag]; dup {
		b.errs = append(b.errs, fmt.Errorf("winnow: type %q registered twice", tag))
		return b
	}

	seen := make(map[string]bool, len(fields))
	for _, f := range fields {
		if f.Name == "" {
			b.errs = append(b.errs, fmt.Errorf("winnow: type %q declares an unnamed field", tag))
		}
		if seen[f.Name] {
			b.errs = append(b.errs, fmt.Errorf("winnow: type %q declares field %q twice", tag, f.Name))
		}
		seen[f.Name] = true
		if (f.Spec == nil) == (f.Relation == nil) {
			b.errs = append(b.errs, fmt.Errorf("winnow: field %s.%s must be exactly one of attribute or relation", tag, f.Name))
		}
	}

	b.entries[tag] = &TypeEntry{Tag: tag, Fields: fields, Caps: caps}
	b.order = append(b.order, tag)
	return b
}

// Build validates all registrations together and returns the immutable
// Registry. Every relation must reference a registered type; violations
// are collected into a single error.
func (b *RegistryBuilder) Build() (*Registry, error) {
	errs := b.errs
	for _, tag := range b.order {
		for _, f := range b.entries[tag].Fields {
			if f.Relation == nil {
				continue
			}
			if _, ok := b.entries[f.Relation.OtherType]; !ok {
				errs = append(errs, fmt.Errorf("%w: relation %s.%s references %q", ErrUnregisteredType, tag, f.Name, f.Relation.OtherType))
			}
			if f.Relation.MyField == "" || f.Relation.OtherField == "" {
				errs = append(errs, fmt.Errorf("winnow: relation %s.%s is missing join fields", tag, f.Name))
			}
		}
	}
	if len(errs) > 0 {
		msg := errs[0].Error()
		for _, e := range errs[1:] {
			msg += "; " + e.Error()
		}
		return nil, fmt.Errorf("winnow: registry build failed: %s", msg)
	}

	return &Registry{entries: b.entries, order: b.order}, nil
}

// Entry returns the registry record for the given tag.
func (r *Registry) Entry(tag TypeTag) (*TypeEntry, error) {
	e, ok := r.entries[tag]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnregisteredType, tag)
	}
	return e, nil
}

// Tags returns all registered type tags in registration order.
func (r *Registry) Tags() []TypeTag {
	out := make([]TypeTag, len(r.order))
	copy(out, r.order)
	return out
}

// SerializedField is the wire form of one declared field.
type SerializedField struct {
	Type     string    `json:"type,omitempty"`
	Relation *Relation `json:"relation,omitempty"`
}

// SerializedType is the wire form of one registry entry: enough for an
// external solver to validate field references and route cross-type
// constraints without calling back into host code. Capabilities are
// host functions and never serialize.
type SerializedType struct {
	Tag        TypeTag                    `json:"tag"`
	Fields     map[string]SerializedField `json:"fields"`
	FieldOrder []string                   `json:"field_order"`
}

// RegistrySerialization is the wire-format snapshot of a registry,
// keyed by type tag.
type RegistrySerialization map[TypeTag]SerializedType

// Serialize produces the wire-format snapshot of the given tags, or of
// every registered type when no tags are passed. Unknown tags are
// skipped: the snapshot describes what the registry knows.
func (r *Registry) Serialize(tags ...TypeTag) RegistrySerialization {
	if len(tags) == 0 {
		tags = r.order
	}

	out := make(RegistrySerialization, len(tags))
	for _, tag := range tags {
		e, ok := r.entries[tag]
		if !ok {
			continue
		}
		st := SerializedType{
			Tag:        tag,
			Fields:     make(map[string]SerializedField, len(e.Fields)),
			FieldOrder: make([]string, 0, len(e.Fields)),
		}
		for _, f := range e.Fields {
			sf := SerializedField{}
			if f.Spec != nil {
				sf.Type = f.Spec.Type
			}
			if f.Relation != nil {
				rel := *f.Relation
				sf.Relation = &rel
			}
			st.Fields[f.Name] = sf
			st.FieldOrder = append(st.FieldOrder, f.Name)
		}
		out[tag] = st
	}

	return out
}

// Tags returns the serialized type tags in lexical order. The
// serialization is a map; lexical order gives solvers a deterministic
// iteration order.
func (s RegistrySerialization) Tags() []TypeTag {
	out := make([]TypeTag, 0, len(s))
	for tag := range s {
		out = append(out, tag)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
