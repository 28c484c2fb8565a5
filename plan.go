package winnow

import "fmt"

// ConstraintKind tags a structured per-field constraint inside a plan
// request.
type ConstraintKind string

const (
	// KindEq requires the field to equal the constraint value.
	KindEq ConstraintKind = "Eq"

	// KindNeq requires the field to differ from the constraint value.
	KindNeq ConstraintKind = "Neq"

	// KindIn requires the field to be a member of the constraint
	// value, which must be a list. Relation joins lower to KindIn once
	// the referenced request has been resolved.
	KindIn ConstraintKind = "In"
)

// Ref points a constraint at the resolved results of another request in
// the same branch: the constrained field must match the named field of
// some object produced by that request. Refs induce the dependency
// relation that ResolveOrder must respect.
type Ref struct {
	ResultID int    `json:"result_id"`
	Field    string `json:"field"`
}

// ConstraintValue is the right-hand side of a constraint: a concrete
// Term, or a Ref into another request's results. Exactly one is set.
type ConstraintValue struct {
	Term *Term `json:"Term,omitempty"`
	Ref  *Ref  `json:"Ref,omitempty"`
}

// Constraint is one structured per-field condition in a plan request.
type Constraint struct {
	Kind  ConstraintKind  `json:"kind"`
	Field string          `json:"field"`
	Value ConstraintValue `json:"value"`
}

// TermConstraint builds a constraint against a concrete value.
func TermConstraint(kind ConstraintKind, field string, value any) Constraint {
	t := NewTerm(value)
	return Constraint{Kind: kind, Field: field, Value: ConstraintValue{Term: &t}}
}

// RefConstraint builds a constraint against another request's results.
func RefConstraint(kind ConstraintKind, field string, ref Ref) Constraint {
	return Constraint{Kind: kind, Field: field, Value: ConstraintValue{Ref: &ref}}
}

// Matches reports whether a host object satisfies the constraint. Only
// Term-valued constraints can be matched directly; a Ref must be
// substituted by the executor before matching and is reported as
// ErrInvalidPlan here.
//
// In-memory backends (pkg/memquery, pkg/badgerquery) use Matches as
// their filter primitive.
func (c Constraint) Matches(obj any) (bool, error) {
	if c.Value.Term == nil {
		return false, fmt.Errorf("%w: unsubstituted reference on field %q", ErrInvalidPlan, c.Field)
	}

	actual, err := AttributeValue(obj, c.Field)
	if err != nil {
		return false, err
	}

	switch c.Kind {
	case KindEq:
		return equalValues(actual, c.Value.Term.Value), nil
	case KindNeq:
		return !equalValues(actual, c.Value.Term.Value), nil
	case KindIn:
		return valueIn(actual, c.Value.Term.Value)
	default:
		return false, fmt.Errorf("%w: unknown constraint kind %q", ErrInvalidPlan, c.Kind)
	}
}

// Request is one per-type fetch inside a branch: the type to query and
// the structured constraints its records must satisfy.
type Request struct {
	ClassTag    TypeTag      `json:"class_tag"`
	Constraints []Constraint `json:"constraints"`
}

// ResultSet is one branch of a plan (one alternative way authorization
// succeeds): requests keyed by id, a resolve order that schedules every
// request after the requests it depends on, and the id of the request
// whose resolved records are the branch's output.
type ResultSet struct {
	Requests     map[int]Request `json:"requests"`
	ResolveOrder []int           `json:"resolve_order"`
	ResultID     int             `json:"result_id"`
}

// FilterPlan is the compiled artifact: an ordered collection of
// independent branches combined by logical OR. A plan with zero
// branches denotes "no authorized resources". Plans are built once per
// authorization query, consumed once by an executor, and discarded.
type FilterPlan struct {
	ResultSets []ResultSet `json:"result_sets"`
}

// Empty reports whether the plan has no branches.
func (p *FilterPlan) Empty() bool {
	return len(p.ResultSets) == 0
}

// Validate checks the plan's structural invariants:
//
//   - every branch's result id names an existing request
//   - every id in a resolve order names an existing request, and every
//     request appears in the resolve order exactly once
//   - the resolve order is a valid topological order: a request with a
//     Ref constraint is scheduled after the request it references
//
// A plan that fails validation must not be handed to an executor; the
// error wraps ErrInvalidPlan.
func (p *FilterPlan) Validate() error {
	for i, rs := range p.ResultSets {
		if err := rs.validate(); err != nil {
			return fmt.Errorf("branch %d: %w", i, err)
		}
	}
	return nil
}

func (rs ResultSet) validate() error {
	if _, ok := rs.Requests[rs.ResultID]; !ok {
		return fmt.Errorf("%w: result id %d has no request", ErrInvalidPlan, rs.ResultID)
	}

	position := make(map[int]int, len(rs.ResolveOrder))
	for pos, id := range rs.ResolveOrder {
		if _, ok := rs.Requests[id]; !ok {
			return fmt.Errorf("%w: resolve order names unknown request %d", ErrInvalidPlan, id)
		}
		if _, dup := position[id]; dup {
			return fmt.Errorf("%w: request %d scheduled twice", ErrInvalidPlan, id)
		}
		position[id] = pos
	}
	for id := range rs.Requests {
		if _, ok := position[id]; !ok {
			return fmt.Errorf("%w: request %d never scheduled", ErrInvalidPlan, id)
		}
	}

	// Topological check over Ref edges: dependency before dependent.
	for id, req := range rs.Requests {
		for _, c := range req.Constraints {
			if c.Value.Ref == nil {
				continue
			}
			dep := c.Value.Ref.ResultID
			depPos, ok := position[dep]
			if !ok {
				return fmt.Errorf("%w: request %d references unknown request %d", ErrInvalidPlan, id, dep)
			}
			if dep == id {
				return fmt.Errorf("%w: request %d references itself", ErrInvalidPlan, id)
			}
			if depPos >= position[id] {
				return fmt.Errorf("%w: request %d resolved before its dependency %d", ErrInvalidPlan, id, dep)
			}
		}
	}

	return nil
}
