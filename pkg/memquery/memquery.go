// Package memquery provides winnow query capabilities over in-memory
// collections.
//
// It is the simplest backend adapter: a query is the collection plus
// the structured constraints, and execution filters the collection with
// Constraint.Matches. It backs unit tests and small fixed datasets; the
// same capability record shape scales to real storage in pkg/pgquery
// and pkg/badgerquery.
package memquery

import (
	"context"
	"fmt"
	"reflect"

	"github.com/pthm/winnow"
)

// Query is the backend query value memquery builds: one filtered scan
// per branch. CombineQuery unions branches; ExecQuery deduplicates
// across them.
type Query struct {
	branches []branch
}

type branch struct {
	objects     []any
	constraints []winnow.Constraint
}

// Provider returns capabilities that resolve requests against the given
// collection. The slice is captured, not copied: callers own it and
// must not mutate it while queries run.
func Provider(objects []any) winnow.Capabilities {
	return winnow.Capabilities{
		BuildQuery: func(constraints []winnow.Constraint) (any, error) {
			return &Query{branches: []branch{{objects: objects, constraints: constraints}}}, nil
		},
		ExecQuery:    execQuery,
		CombineQuery: combineQuery,
	}
}

// Exec runs the query and returns the matching objects, deduplicated
// by identity across branches. This is what ExecQuery does internally;
// it is exported so callers holding a combined query from
// Executor.Query can run it directly.
func (q *Query) Exec(ctx context.Context) ([]any, error) {
	return execQuery(ctx, q)
}

func execQuery(ctx context.Context, query any) ([]any, error) {
	q, err := asQuery(query)
	if err != nil {
		return nil, err
	}

	var out []any
	seen := make(map[any]bool)
	for _, br := range q.branches {
		for _, obj := range br.objects {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			ok, err := matchesAll(obj, br.constraints)
			if err != nil {
				return nil, err
			}
			if !ok {
				continue
			}
			if canDedup(obj) {
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

func combineQuery(a, b any) (any, error) {
	qa, err := asQuery(a)
	if err != nil {
		return nil, err
	}
	qb, err := asQuery(b)
	if err != nil {
		return nil, err
	}

	branches := make([]branch, 0, len(qa.branches)+len(qb.branches))
	branches = append(branches, qa.branches...)
	branches = append(branches, qb.branches...)
	return &Query{branches: branches}, nil
}

func matchesAll(obj any, constraints []winnow.Constraint) (bool, error) {
	for _, c := range constraints {
		ok, err := c.Matches(obj)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func asQuery(v any) (*Query, error) {
	q, ok := v.(*Query)
	if !ok {
		return nil, fmt.Errorf("%w: expected *memquery.Query, got %T", winnow.ErrUnsupportedType, v)
	}
	return q, nil
}

func canDedup(v any) bool {
	if v == nil {
		return true
	}
	return reflect.TypeOf(v).Comparable()
}
