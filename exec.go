package winnow

import (
	"context"
	"fmt"
	"reflect"
)

// Executor resolves compiled filter plans against the query
// capabilities registered for each type. It is the generic driver that
// any backend plugs into: the executor walks resolve orders and
// substitutes cross-request references; the registered BuildQuery,
// ExecQuery, and CombineQuery capabilities do all backend-specific
// work.
type Executor struct {
	registry *Registry
}

// NewExecutor creates an executor over the given registry.
func NewExecutor(reg *Registry) *Executor {
	return &Executor{registry: reg}
}

// Resolve executes every branch of the plan and returns the union of
// their results, deduplicated by object identity: a resource that
// satisfies authorization through more than one branch appears once.
//
// A plan with zero branches denotes "no authorized resources" and
// yields an empty result without error.
func (e *Executor) Resolve(ctx context.Context, plan *FilterPlan) ([]any, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}

	var out []any
	seen := make(map[any]bool)
	for i, rs := range plan.ResultSets {
		objs, err := e.resolveBranch(ctx, rs)
		if err != nil {
			return nil, fmt.Errorf("branch %d: %w", i, err)
		}
		for _, obj := range objs {
			if isComparable(obj) {
				if seen[obj] {
					continue
				}
				seen[obj] = true
			}
			out = append(out, obj)
		}
	}

	return out, nil
}

// Query builds one combined backend query for the plan's output type
// without executing it, using the root type's CombineQuery capability
// to merge branches. Intermediate (non-output) requests still execute:
// their results feed the reference constraints of the final request.
//
// Returns (nil, nil) for a plan with zero branches - there is nothing
// to query.
func (e *Executor) Query(ctx context.Context, plan *FilterPlan) (any, error) {
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	if plan.Empty() {
		return nil, nil
	}

	var combined any
	for i, rs := range plan.ResultSets {
		q, root, err := e.buildBranchQuery(ctx, rs)
		if err != nil {
			return nil, fmt.Errorf("branch %d: %w", i, err)
		}
		if i == 0 {
			combined = q
			continue
		}
		entry, err := e.registry.Entry(root)
		if err != nil {
			return nil, err
		}
		if entry.Caps.CombineQuery == nil {
			return nil, fmt.Errorf("%w: %q has no CombineQuery capability", ErrUnsupportedType, root)
		}
		combined, err = entry.Caps.CombineQuery(combined, q)
		if err != nil {
			return nil, fmt.Errorf("combining branch %d: %w", i, err)
		}
	}

	return combined, nil
}

// resolveBranch executes one branch's requests in resolve order and
// returns the records of its result request.
func (e *Executor) resolveBranch(ctx context.Context, rs ResultSet) ([]any, error) {
	resolved := make(map[int][]any, len(rs.Requests))
	for _, id := range rs.ResolveOrder {
		objs, err := e.execRequest(ctx, rs.Requests[id], resolved)
		if err != nil {
			return nil, fmt.Errorf("request %d: %w", id, err)
		}
		resolved[id] = objs
	}
	return resolved[rs.ResultID], nil
}

// buildBranchQuery executes every request except the branch's result
// request, then builds (without executing) the result request's query.
// Returns the query and the result request's class tag.
func (e *Executor) buildBranchQuery(ctx context.Context, rs ResultSet) (any, TypeTag, error) {
	resolved := make(map[int][]any, len(rs.Requests))
	for _, id := range rs.ResolveOrder {
		req := rs.Requests[id]
		if id == rs.ResultID {
			entry, caps, err := e.capabilitiesFor(req.ClassTag)
			if err != nil {
				return nil, "", err
			}
			constraints, err := substituteRefs(req.Constraints, resolved)
			if err != nil {
				return nil, "", err
			}
			q, err := caps.BuildQuery(constraints)
			if err != nil {
				return nil, "", fmt.Errorf("building query for %q: %w", entry.Tag, err)
			}
			return q, entry.Tag, nil
		}
		objs, err := e.execRequest(ctx, req, resolved)
		if err != nil {
			return nil, "", fmt.Errorf("request %d: %w", id, err)
		}
		resolved[id] = objs
	}

	// Validate guarantees the result id is scheduled.
	return nil, "", fmt.Errorf("%w: result id %d never scheduled", ErrInvalidPlan, rs.ResultID)
}

// execRequest substitutes references, builds, and executes one request.
func (e *Executor) execRequest(ctx context.Context, req Request, resolved map[int][]any) ([]any, error) {
	_, caps, err := e.capabilitiesFor(req.ClassTag)
	if err != nil {
		return nil, err
	}
	if caps.ExecQuery == nil {
		return nil, fmt.Errorf("%w: %q has no ExecQuery capability", ErrUnsupportedType, req.ClassTag)
	}

	constraints, err := substituteRefs(req.Constraints, resolved)
	if err != nil {
		return nil, err
	}

	q, err := caps.BuildQuery(constraints)
	if err != nil {
		return nil, fmt.Errorf("building query for %q: %w", req.ClassTag, err)
	}
	return caps.ExecQuery(ctx, q)
}

func (e *Executor) capabilitiesFor(tag TypeTag) (*TypeEntry, Capabilities, error) {
	entry, err := e.registry.Entry(tag)
	if err != nil {
		return nil, Capabilities{}, err
	}
	if entry.Caps.BuildQuery == nil {
		return nil, Capabilities{}, fmt.Errorf("%w: %q has no BuildQuery capability", ErrUnsupportedType, tag)
	}
	return entry, entry.Caps, nil
}

// substituteRefs replaces every Ref-valued constraint with an In
// constraint over the referenced field gathered from already-resolved
// request results. The resolve order guarantees the referenced request
// has been resolved.
func substituteRefs(constraints []Constraint, resolved map[int][]any) ([]Constraint, error) {
	out := make([]Constraint, 0, len(constraints))
	for _, c := range constraints {
		if c.Value.Ref == nil {
			out = append(out, c)
			continue
		}

		objs, ok := resolved[c.Value.Ref.ResultID]
		if !ok {
			return nil, fmt.Errorf("%w: reference to unresolved request %d", ErrInvalidPlan, c.Value.Ref.ResultID)
		}
		values := make([]any, 0, len(objs))
		for _, obj := range objs {
			v, err := AttributeValue(obj, c.Value.Ref.Field)
			if err != nil {
				return nil, err
			}
			values = append(values, v)
		}
		out = append(out, TermConstraint(KindIn, c.Field, values))
	}
	return out, nil
}

// isComparable reports whether a value can be a map key, which is what
// identity deduplication requires. Non-comparable values (slices, maps,
// structs containing them) pass through without deduplication.
func isComparable(v any) bool {
	if v == nil {
		return true
	}
	return reflect.TypeOf(v).Comparable()
}
