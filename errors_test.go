package winnow_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/pthm/winnow"
)

func TestErrorHelpers(t *testing.T) {
	helpers := []struct {
		name     string
		sentinel error
		check    func(error) bool
	}{
		{"IsMissingBindingErr", winnow.ErrMissingBinding, winnow.IsMissingBindingErr},
		{"IsUnregisteredTypeErr", winnow.ErrUnregisteredType, winnow.IsUnregisteredTypeErr},
		{"IsUnknownFieldErr", winnow.ErrUnknownField, winnow.IsUnknownFieldErr},
		{"IsUnsupportedTypeErr", winnow.ErrUnsupportedType, winnow.IsUnsupportedTypeErr},
		{"IsInvalidExpressionErr", winnow.ErrInvalidExpression, winnow.IsInvalidExpressionErr},
		{"IsInvalidPlanErr", winnow.ErrInvalidPlan, winnow.IsInvalidPlanErr},
	}

	for _, h := range helpers {
		t.Run(h.name, func(t *testing.T) {
			err := fmt.Errorf("wrapped: %w", h.sentinel)
			if !h.check(err) {
				t.Errorf("%s should return true for wrapped %v", h.name, h.sentinel)
			}
			if h.check(errors.New("other error")) {
				t.Errorf("%s should return false for other errors", h.name)
			}
		})
	}
}

func TestSolverError(t *testing.T) {
	underlying := errors.New("cyclic relation")
	err := fmt.Errorf("compiling: %w", &winnow.SolverError{Err: underlying})

	if !winnow.IsSolverErr(err) {
		t.Error("IsSolverErr should return true for a wrapped SolverError")
	}
	if !errors.Is(err, underlying) {
		t.Error("SolverError should unwrap to the solver's own error")
	}
	if winnow.IsSolverErr(underlying) {
		t.Error("IsSolverErr should return false for a bare error")
	}
}

func TestSentinelErrors(t *testing.T) {
	// Verify sentinel errors have meaningful messages
	sentinels := []error{
		winnow.ErrMissingBinding,
		winnow.ErrUnregisteredType,
		winnow.ErrUnknownField,
		winnow.ErrUnsupportedType,
		winnow.ErrNoSolver,
		winnow.ErrInvalidExpression,
		winnow.ErrInvalidPlan,
	}

	for _, err := range sentinels {
		t.Run(err.Error(), func(t *testing.T) {
			if err.Error() == "" {
				t.Error("error message should not be empty")
			}
		})
	}
}
