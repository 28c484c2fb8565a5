package winnow

import (
	"context"
	"fmt"
)

// Solver lowers partial results into filter-plan branches. The compiler
// treats it as an external, trusted component: every returned branch
// must be logically equivalent to ANDing the corresponding partial
// constraint expression, and every resolve order must be a valid
// topological order over the branch's Ref dependencies.
//
// The registry serialization carries everything the solver needs to
// validate field references and route cross-type constraints without
// calling back into host code. pkg/solver provides the in-process
// reference implementation; a remote solver only needs to speak the
// plan wire format.
type Solver interface {
	BuildFilterPlan(ctx context.Context, types RegistrySerialization, partial []EvaluationResult, target Variable, root TypeTag) (*FilterPlan, error)
}

// Compiler turns classified evaluation results into a FilterPlan. It is
// a pure transformation: one call per authorization query, no internal
// concurrency, no I/O of its own (the solver may cross a process
// boundary, which is why Compile takes a context).
//
// Compilers are lightweight and safe to create per query; they hold
// only the registry and solver references.
type Compiler struct {
	registry *Registry
	solver   Solver
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithSolver replaces the solver the compiler delegates partial
// results to. Useful for substituting a remote solver or a test fake.
func WithSolver(s Solver) Option {
	return func(c *Compiler) {
		c.solver = s
	}
}

// NewCompiler creates a compiler over the given registry and solver.
// The solver may be nil when only complete results will ever be
// compiled; compiling partial results without a solver returns
// ErrNoSolver.
func NewCompiler(reg *Registry, solver Solver, opts ...Option) *Compiler {
	c := &Compiler{registry: reg, solver: solver}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile produces the filter plan for one authorization query.
//
// Partial results (plus the serialized registry, the target variable
// name, and the root class tag) are delegated to the solver, which
// returns one branch per partial result. Each complete value is lowered
// locally into one additional branch: a single request against the root
// type whose constraints equate every non-relation field with the
// corresponding attribute of the concrete object. Relation fields are
// excluded - a relation is not a scalar and the object's identity is
// already fully pinned by its attributes.
//
// The two branch collections are concatenated into a fresh plan; the
// solver's slices are never aliased. Branches are pairwise independent
// (logical OR): an executor may resolve them in any order and unions
// their results, deduplicating objects that satisfy more than one
// branch.
//
// Errors:
//
//   - ErrUnregisteredType: root is not in the registry
//   - ErrUnsupportedType: complete values present but the root type has
//     no BuildQuery capability
//   - ErrNoSolver: partial results present but no solver configured
//   - SolverError: the solver rejected the serialization or partials
//   - ErrUnknownField: a complete object is missing a declared attribute
//
// No partial plan is ever returned: compilation fully succeeds or
// fails before producing a plan.
func (c *Compiler) Compile(ctx context.Context, partial []EvaluationResult, complete []any, target Variable, root TypeTag) (*FilterPlan, error) {
	entry, err := c.registry.Entry(root)
	if err != nil {
		return nil, err
	}

	// Check capabilities up front so no work is discarded on failure.
	if len(complete) > 0 && entry.Caps.BuildQuery == nil {
		return nil, fmt.Errorf("%w: %q has no BuildQuery capability", ErrUnsupportedType, root)
	}

	var solved *FilterPlan
	if len(partial) > 0 {
		if c.solver == nil {
			return nil, ErrNoSolver
		}
		solved, err = c.solver.BuildFilterPlan(ctx, c.registry.Serialize(), partial, target, root)
		if err != nil {
			return nil, &SolverError{Err: err}
		}
		if err := solved.Validate(); err != nil {
			return nil, &SolverError{Err: err}
		}
	}

	synthesized := make([]ResultSet, 0, len(complete))
	for _, obj := range complete {
		rs, err := c.synthesizeBranch(entry, obj)
		if err != nil {
			return nil, err
		}
		synthesized = append(synthesized, rs)
	}

	branches := make([]ResultSet, 0, len(synthesized))
	if solved != nil {
		branches = append(branches, solved.ResultSets...)
	}
	branches = append(branches, synthesized...)

	return &FilterPlan{ResultSets: branches}, nil
}

// CompileResults classifies a raw result stream and compiles it in one
// step. This is the shape an authorization query uses: the evaluator's
// results go in, a plan comes out.
func (c *Compiler) CompileResults(ctx context.Context, results []EvaluationResult, target Variable, root TypeTag) (*FilterPlan, error) {
	complete, partial, err := Partition(results, target)
	if err != nil {
		return nil, err
	}
	return c.Compile(ctx, partial, complete, target, root)
}

// synthesizeBranch lowers one concrete object into a single-request
// branch: an Eq constraint per non-relation field of the root type.
func (c *Compiler) synthesizeBranch(entry *TypeEntry, obj any) (ResultSet, error) {
	var constraints []Constraint
	for _, f := range entry.Fields {
		if f.Relation != nil {
			continue
		}
		v, err := AttributeValue(obj, f.Name)
		if err != nil {
			return ResultSet{}, fmt.Errorf("reading %s.%s off complete value: %w", entry.Tag, f.Name, err)
		}
		constraints = append(constraints, TermConstraint(KindEq, f.Name, v))
	}

	return ResultSet{
		Requests: map[int]Request{
			0: {ClassTag: entry.Tag, Constraints: constraints},
		},
		ResolveOrder: []int{0},
		ResultID:     0,
	}, nil
}
