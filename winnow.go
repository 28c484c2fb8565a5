// Package winnow compiles the output of an authorization policy
// evaluation into backend-agnostic filter plans.
//
// # Overview
//
// A policy evaluator answers "which resources may this actor act on"
// with a mix of two result shapes: complete results, where the resource
// variable is bound to a concrete object, and partial results, where it
// is bound to an unresolved constraint expression. winnow reconciles
// both shapes into a single FilterPlan - an OR of branches, each branch
// an ordered set of per-type requests with structured field constraints -
// that a storage adapter can execute to fetch exactly the authorized
// records, without materializing and testing every candidate.
//
// # Core Concepts
//
// Types are registered up front in a Registry, which records each type's
// fields (primitive attributes or relations to other registered types)
// and the query capabilities the host supplies for it:
//
//	reg, err := winnow.NewRegistryBuilder().
//	    RegisterType("Folder", folderFields, folderCaps).
//	    RegisterType("Document", documentFields, documentCaps).
//	    Build()
//
// Evaluation results are partitioned and compiled:
//
//	complete, partial, err := winnow.Partition(results, "resource")
//	plan, err := compiler.Compile(ctx, partial, complete, "resource", "Document")
//
// Partial results are delegated to a constraint solver (see pkg/solver
// for the in-process reference implementation); complete results are
// lowered directly into per-field equality constraints. The combined
// plan is resolved against storage by an Executor:
//
//	docs, err := winnow.NewExecutor(reg).Resolve(ctx, plan)
//
// # Backend Independence
//
// The plan never mentions a query language or storage engine. Backends
// plug in through the Capabilities record on each registry entry; see
// pkg/pgquery (PostgreSQL), pkg/memquery (in-memory collections), and
// pkg/badgerquery (BadgerDB) for adapters.
//
// # Purity
//
// Compilation is a pure, synchronous transformation: no I/O, no shared
// mutable state beyond the read-only Registry, no retries. A FilterPlan
// is either fully built or an error is returned; partial plans are never
// produced.
package winnow

// TypeTag identifies a registered host type. Tags are unique within a
// Registry and appear unchanged in serialized registries and compiled
// plans, so solvers and backends can route constraints without calling
// back into host code.
type TypeTag string

// String returns the tag itself.
func (t TypeTag) String() string {
	return string(t)
}

// Variable names an unresolved query variable, e.g. the "resource"
// variable an authorization query solves for.
type Variable string

// Term is a concrete value carried inside constraints and serialized
// registry snapshots. The wrapper keeps plan JSON unambiguous: a
// constraint value is either a Term or a Ref, never a bare host value.
type Term struct {
	Value any `json:"value"`
}

// NewTerm wraps a host value as a Term.
func NewTerm(v any) Term {
	return Term{Value: v}
}
