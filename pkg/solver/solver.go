// Package solver provides the in-process reference implementation of
// the constraint solver the filter-plan compiler delegates partial
// results to.
//
// The solver lowers each partial result - a conjunction of symbolic
// constraints over the target variable - into one plan branch: a set of
// per-type requests carrying structured field constraints, linked by
// reference constraints along declared relations, with a resolve order
// that schedules every request after the requests it depends on.
//
// The solver reasons only over the registry serialization it is handed;
// it never calls back into host code. It is deterministic: the same
// serialization and partial results always produce structurally equal
// plans.
package solver

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/pthm/winnow"
)

// Solver implements winnow.Solver.
type Solver struct{}

// New returns a solver.
func New() *Solver {
	return &Solver{}
}

// BuildFilterPlan lowers each partial result into one branch and
// returns the combined plan. Branches appear in partial-result order.
//
// Errors wrap the winnow sentinels: ErrUnregisteredType for tags
// missing from the serialization, ErrUnknownField for undeclared
// fields, ErrInvalidExpression for expressions that do not lower to
// field constraints rooted at the target variable.
func (s *Solver) BuildFilterPlan(ctx context.Context, types winnow.RegistrySerialization, partial []winnow.EvaluationResult, target winnow.Variable, root winnow.TypeTag) (*winnow.FilterPlan, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, ok := types[root]; !ok {
		return nil, fmt.Errorf("%w: root type %q not in serialization", winnow.ErrUnregisteredType, root)
	}

	sets := make([]winnow.ResultSet, 0, len(partial))
	for i, res := range partial {
		rs, err := s.lowerResult(types, res, target, root)
		if err != nil {
			return nil, fmt.Errorf("partial result %d: %w", i, err)
		}
		sets = append(sets, rs)
	}

	return &winnow.FilterPlan{ResultSets: sets}, nil
}

func (s *Solver) lowerResult(types winnow.RegistrySerialization, res winnow.EvaluationResult, target winnow.Variable, root winnow.TypeTag) (winnow.ResultSet, error) {
	binding, ok := res[target]
	if !ok {
		return winnow.ResultSet{}, fmt.Errorf("%w: %q", winnow.ErrMissingBinding, target)
	}
	if !binding.IsSymbolic() {
		return winnow.ResultSet{}, fmt.Errorf("%w: target bound to a concrete value, not an expression", winnow.ErrInvalidExpression)
	}

	expr := binding.Expression()
	if !expr.RootedAt(target) {
		return winnow.ResultSet{}, fmt.Errorf("%w: expression references variables other than %q", winnow.ErrInvalidExpression, target)
	}

	b := newBranchBuilder(types, root)
	if err := b.lower(expr); err != nil {
		return winnow.ResultSet{}, err
	}
	return b.finish()
}

// requestState accumulates one request while a branch is lowered.
// Request ids are indexes into branchBuilder.requests, so creation
// order fixes the id assignment deterministically.
type requestState struct {
	tag         winnow.TypeTag
	constraints []winnow.Constraint
}

// branchBuilder lowers one conjunction into one result set. Requests
// are deduplicated per relation path: two constraints through the same
// path constrain the same request.
type branchBuilder struct {
	types    winnow.RegistrySerialization
	root     winnow.TypeTag
	requests []requestState
	byPath   map[string]int
	deps     map[int][]int
}

func newBranchBuilder(types winnow.RegistrySerialization, root winnow.TypeTag) *branchBuilder {
	b := &branchBuilder{
		types:  types,
		root:   root,
		byPath: make(map[string]int),
		deps:   make(map[int][]int),
	}
	// The root request always exists, even for an unconstrained branch.
	b.requests = append(b.requests, requestState{tag: root})
	b.byPath[""] = 0
	return b
}

func (b *branchBuilder) lower(expr *winnow.Expression) error {
	switch expr.Operator {
	case winnow.OpAnd:
		for i := range expr.Operands {
			if err := b.lower(&expr.Operands[i]); err != nil {
				return err
			}
		}
		return nil

	case winnow.OpIsa:
		return b.lowerIsa(expr)

	case winnow.OpEq, winnow.OpNeq, winnow.OpIn:
		return b.lowerComparison(expr)

	default:
		return fmt.Errorf("%w: operator %q", winnow.ErrInvalidExpression, expr.Operator)
	}
}

// lowerIsa checks the type assertion against the serialization and
// lowers any pattern fields into equality constraints on the request
// the operand path leads to.
func (b *branchBuilder) lowerIsa(expr *winnow.Expression) error {
	if expr.Pattern == nil {
		return fmt.Errorf("%w: Isa without a pattern", winnow.ErrInvalidExpression)
	}

	id, tag, err := b.requestFor(expr.Operand.Path)
	if err != nil {
		return err
	}
	if expr.Pattern.Tag != tag {
		return fmt.Errorf("%w: %s is a %q, pattern asserts %q", winnow.ErrInvalidExpression, expr.Operand, tag, expr.Pattern.Tag)
	}

	// Sort pattern fields so constraint order is deterministic.
	names := make([]string, 0, len(expr.Pattern.Fields))
	for name := range expr.Pattern.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		sf, ok := b.types[tag].Fields[name]
		if !ok {
			return fmt.Errorf("%w: %s.%s", winnow.ErrUnknownField, tag, name)
		}
		if sf.Relation != nil {
			return fmt.Errorf("%w: pattern field %s.%s is a relation", winnow.ErrInvalidExpression, tag, name)
		}
		b.requests[id].constraints = append(b.requests[id].constraints,
			winnow.TermConstraint(winnow.KindEq, name, expr.Pattern.Fields[name].Value))
	}

	return nil
}

// lowerComparison routes the operand's field path through declared
// relations and appends the scalar constraint to the request owning the
// final segment.
func (b *branchBuilder) lowerComparison(expr *winnow.Expression) error {
	path := expr.Operand.Path
	if len(path) == 0 {
		return fmt.Errorf("%w: %s comparison against the bare variable", winnow.ErrInvalidExpression, expr.Operator)
	}
	if expr.Value == nil {
		return fmt.Errorf("%w: %s without a value", winnow.ErrInvalidExpression, expr.Operator)
	}

	id, tag, err := b.requestFor(path[:len(path)-1])
	if err != nil {
		return err
	}

	leaf := path[len(path)-1]
	sf, ok := b.types[tag].Fields[leaf]
	if !ok {
		return fmt.Errorf("%w: %s.%s", winnow.ErrUnknownField, tag, leaf)
	}
	if sf.Relation != nil {
		return fmt.Errorf("%w: %s compares against relation field %s.%s", winnow.ErrInvalidExpression, expr.Operator, tag, leaf)
	}

	var kind winnow.ConstraintKind
	switch expr.Operator {
	case winnow.OpEq:
		kind = winnow.KindEq
	case winnow.OpNeq:
		kind = winnow.KindNeq
	case winnow.OpIn:
		kind = winnow.KindIn
	}

	b.requests[id].constraints = append(b.requests[id].constraints,
		winnow.TermConstraint(kind, leaf, expr.Value.Value))
	return nil
}

// requestFor walks a relation path from the root type, creating one
// request per touched type and a reference join constraint per hop. It
// returns the id and tag of the request the path leads to.
func (b *branchBuilder) requestFor(path winnow.FieldPath) (int, winnow.TypeTag, error) {
	id, tag := 0, b.root
	var key strings.Builder

	for _, seg := range path {
		sf, ok := b.types[tag].Fields[seg]
		if !ok {
			return 0, "", fmt.Errorf("%w: %s.%s", winnow.ErrUnknownField, tag, seg)
		}
		if sf.Relation == nil {
			return 0, "", fmt.Errorf("%w: traversal through non-relation field %s.%s", winnow.ErrInvalidExpression, tag, seg)
		}
		rel := sf.Relation
		if _, ok := b.types[rel.OtherType]; !ok {
			return 0, "", fmt.Errorf("%w: relation %s.%s targets %q", winnow.ErrUnregisteredType, tag, seg, rel.OtherType)
		}

		key.WriteByte('.')
		key.WriteString(seg)
		next, exists := b.byPath[key.String()]
		if !exists {
			b.requests = append(b.requests, requestState{tag: rel.OtherType})
			next = len(b.requests) - 1
			b.byPath[key.String()] = next

			// The join: this request's records must match a record the
			// related request resolves, so it depends on that request.
			b.requests[id].constraints = append(b.requests[id].constraints,
				winnow.RefConstraint(winnow.KindIn, rel.MyField, winnow.Ref{ResultID: next, Field: rel.OtherField}))
			b.deps[id] = append(b.deps[id], next)
		}

		id, tag = next, rel.OtherType
	}

	return id, tag, nil
}

// Colors for the dependency walk; gray marks the current path, so
// revisiting a gray node is a cycle.
type color int

const (
	white color = iota
	gray
	black
)

// finish assembles the result set: requests keyed by id, and a resolve
// order computed by depth-first traversal so every request is scheduled
// after its dependencies.
func (b *branchBuilder) finish() (winnow.ResultSet, error) {
	states := make(map[int]color, len(b.requests))
	order := make([]int, 0, len(b.requests))

	var visit func(id int) error
	visit = func(id int) error {
		switch states[id] {
		case black:
			return nil
		case gray:
			return fmt.Errorf("%w: cyclic dependency through request %d", winnow.ErrInvalidPlan, id)
		}
		states[id] = gray
		for _, dep := range b.deps[id] {
			if err := visit(dep); err != nil {
				return err
			}
		}
		states[id] = black
		order = append(order, id)
		return nil
	}

	for id := range b.requests {
		if err := visit(id); err != nil {
			return winnow.ResultSet{}, err
		}
	}

	requests := make(map[int]winnow.Request, len(b.requests))
	for id, st := range b.requests {
		requests[id] = winnow.Request{ClassTag: st.tag, Constraints: st.constraints}
	}

	return winnow.ResultSet{Requests: requests, ResolveOrder: order, ResultID: 0}, nil
}
