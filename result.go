package winnow

import "fmt"

// Binding is the value bound to a variable in an evaluation result:
// either a concrete host value or an unresolved constraint expression.
// Exactly one side is set; the zero Binding is invalid.
type Binding struct {
	concrete any
	symbolic *Expression
}

// Concrete binds a variable to a fully ground host value.
func Concrete(v any) Binding {
	return Binding{concrete: v}
}

// Symbolic binds a variable to an unresolved constraint expression.
func Symbolic(e *Expression) Binding {
	return Binding{symbolic: e}
}

// IsSymbolic reports whether the binding is a constraint expression.
func (b Binding) IsSymbolic() bool {
	return b.symbolic != nil
}

// Value returns the concrete host value. Only meaningful when
// IsSymbolic is false.
func (b Binding) Value() any {
	return b.concrete
}

// Expression returns the constraint expression, or nil for a concrete
// binding.
func (b Binding) Expression() *Expression {
	return b.symbolic
}

// EvaluationResult is one solution found by the policy evaluator: a
// mapping from variable name to binding. Ordering among results carries
// no semantic weight - each result is an alternative way authorization
// succeeds (logical disjunction).
type EvaluationResult map[Variable]Binding

// Partition classifies evaluation results for a single target variable
// into complete values and partial results.
//
// A result whose target binding is concrete contributes that value to
// complete. A result whose target binding is symbolic contributes a
// reduced result to partial, containing only the target variable's
// binding: other variables in the result carry no information the plan
// compiler needs and are dropped.
//
// A result that does not bind the target variable at all is an error
// (ErrMissingBinding) - the evaluator's contract is that the resource
// variable is always bound when classification runs.
//
// Partition is a pure function; results are not mutated. It holds the
// whole result set in memory: branches are order-independent but must
// all be seen before one plan can be built, so classification does not
// stream.
func Partition(results []EvaluationResult, target Variable) (complete []any, partial []EvaluationResult, err error) {
	for i, res := range results {
		binding, ok := res[target]
		if !ok {
			return nil, nil, fmt.Errorf("%w: result %d has no binding for %q", ErrMissingBinding, i, target)
		}

		if binding.IsSymbolic() {
			partial = append(partial, EvaluationResult{target: binding})
		} else {
			complete = append(complete, binding.Value())
		}
	}

	return complete, partial, nil
}
