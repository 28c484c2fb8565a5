package winnow

import (
	"errors"
	"fmt"
)

// Sentinel errors for failure modes during classification and plan
// compilation. These indicate malformed input or registry setup issues,
// not authorization denials - a denied query compiles into a plan with
// zero branches and is not an error.
//
// Use the Is*Err helper functions to check for specific errors without
// depending on wrapping depth.
var (
	// ErrMissingBinding is returned when an evaluation result does not
	// bind the target variable. The evaluator's contract is that every
	// result binds the resource variable; a result without it cannot be
	// classified as complete or partial.
	ErrMissingBinding = errors.New("winnow: result does not bind the target variable")

	// ErrUnregisteredType is returned when a compilation or execution
	// step needs a type tag that is not in the registry.
	ErrUnregisteredType = errors.New("winnow: type not registered")

	// ErrUnknownField is returned when a constraint names a field that
	// is not declared on its type, or a concrete object does not carry
	// a declared attribute.
	ErrUnknownField = errors.New("winnow: field not declared on type")

	// ErrUnsupportedType is returned when a plan needs a query
	// capability (BuildQuery, ExecQuery, CombineQuery) that the type's
	// registry entry does not supply. Callers can surface this as
	// "this type does not support authorization-based filtering".
	ErrUnsupportedType = errors.New("winnow: type does not support filter queries")

	// ErrNoSolver is returned when partial results are compiled but no
	// constraint solver was configured on the Compiler.
	ErrNoSolver = errors.New("winnow: no constraint solver configured")

	// ErrInvalidExpression is returned for constraint expressions the
	// compiler cannot lower: leaves that do not resolve to a field path
	// rooted at the target variable, or operands referencing variables
	// other than the target.
	ErrInvalidExpression = errors.New("winnow: malformed constraint expression")

	// ErrInvalidPlan is returned when a filter plan violates its own
	// invariants: a resolve order naming unknown requests, a result id
	// with no request, or a dependency resolved after its dependent.
	ErrInvalidPlan = errors.New("winnow: invalid filter plan")
)

// SolverError wraps a failure reported by the constraint solver, so
// callers can distinguish solver-origin failures from local ones.
// Solver failures are propagated unchanged; the compiler never retries.
type SolverError struct {
	Err error
}

// Error implements the error interface.
func (e *SolverError) Error() string {
	return fmt.Sprintf("winnow: solver: %v", e.Err)
}

// Unwrap returns the underlying solver error.
func (e *SolverError) Unwrap() error {
	return e.Err
}

// IsMissingBindingErr returns true if err is or wraps ErrMissingBinding.
func IsMissingBindingErr(err error) bool {
	return errors.Is(err, ErrMissingBinding)
}

// IsUnregisteredTypeErr returns true if err is or wraps ErrUnregisteredType.
func IsUnregisteredTypeErr(err error) bool {
	return errors.Is(err, ErrUnregisteredType)
}

// IsUnknownFieldErr returns true if err is or wraps ErrUnknownField.
func IsUnknownFieldErr(err error) bool {
	return errors.Is(err, ErrUnknownField)
}

// IsUnsupportedTypeErr returns true if err is or wraps ErrUnsupportedType.
func IsUnsupportedTypeErr(err error) bool {
	return errors.Is(err, ErrUnsupportedType)
}

// IsInvalidExpressionErr returns true if err is or wraps ErrInvalidExpression.
func IsInvalidExpressionErr(err error) bool {
	return errors.Is(err, ErrInvalidExpression)
}

// IsInvalidPlanErr returns true if err is or wraps ErrInvalidPlan.
func IsInvalidPlanErr(err error) bool {
	return errors.Is(err, ErrInvalidPlan)
}

// IsSolverErr returns true if err is or wraps a SolverError.
func IsSolverErr(err error) bool {
	var se *SolverError
	return errors.As(err, &se)
}
