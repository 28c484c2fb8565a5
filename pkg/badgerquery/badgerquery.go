// Package badgerquery provides winnow query capabilities backed by
// BadgerDB.
//
// Objects are stored JSON-encoded under "tag/id" keys. A request over a
// type becomes a prefix scan of that type's keyspace with the plan's
// structured constraints applied to each decoded object. The adapter
// exists to demonstrate that a filter plan is genuinely
// backend-agnostic: the same plan that renders to SQL in pkg/pgquery
// resolves here against a key-value store.
package badgerquery

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/pthm/winnow"
)

// Store wraps a BadgerDB instance holding one keyspace per registered
// type.
type Store struct {
	db *badger.DB
}

// Open opens or creates a store at the given path.
func Open(path string) (*Store, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badgerquery: opening %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// OpenInMemory opens a store that lives entirely in memory. Useful for
// tests and ephemeral datasets.
func OpenInMemory() (*Store, error) {
	opts := badger.DefaultOptions("").WithInMemory(true)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badgerquery: opening in-memory store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put stores an object under tag/id, JSON-encoded.
func (s *Store) Put(tag winnow.TypeTag, id string, obj any) error {
	value, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("badgerquery: encoding %s/%s: %w", tag, id, err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key(tag, id), value)
	})
}

// Delete removes the object stored under tag/id.
func (s *Store) Delete(tag winnow.TypeTag, id string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		err := txn.Delete(key(tag, id))
		if err != nil && err != badger.ErrKeyNotFound {
			return err
		}
		return nil
	})
}

// DecodeFunc turns a stored JSON value back into a host object. A nil
// DecodeFunc decodes into map[string]any.
type DecodeFunc func([]byte) (any, error)

// Query is the backend query value badgerquery builds: one prefix scan
// per plan branch.
type Query struct {
	scans []scanSpec
}

type scanSpec struct {
	prefix      []byte
	decode      DecodeFunc
	constraints []winnow.Constraint
}

// Provider returns capabilities that resolve requests for one type
// against the store's keyspace.
func (s *Store) Provider(tag winnow.TypeTag, decode DecodeFunc) winnow.Capabilities {
	if decode == nil {
		decode = func(b []byte) (any, error) {
			var m map[string]any
			if err := json.Unmarshal(b, &m); err != nil {
				return nil, err
			}
			return m, nil
		}
	}

	return winnow.Capabilities{
		BuildQuery: func(constraints []winnow.Constraint) (any, error) {
			return &Query{scans: []scanSpec{{
				prefix:      key(tag, ""),
				decode:      decode,
				constraints: constraints,
			}}}, nil
		},
		ExecQuery: func(ctx context.Context, query any) ([]any, error) {
			return s.execQuery(ctx, query)
		},
		CombineQuery: combineQuery,
	}
}

func (s *Store) execQuery(ctx context.Context, query any) ([]any, error) {
	q, err := asQuery(query)
	if err != nil {
		return nil, err
	}

	var out []any
	seen := make(map[string]bool)
	err = s.db.View(func(txn *badger.Txn) error {
		for _, scan := range q.scans {
			opts := badger.DefaultIteratorOptions
			opts.Prefix = scan.prefix
			it := txn.NewIterator(opts)

			for it.Rewind(); it.ValidForPrefix(scan.prefix); it.Next() {
				if err := ctx.Err(); err != nil {
					it.Close()
					return err
				}
				// Union semantics across combined scans: each stored
				// object appears at most once.
				k := string(it.Item().Key())
				if seen[k] {
					continue
				}
				var obj any
				err := it.Item().Value(func(val []byte) error {
					var derr error
					obj, derr = scan.decode(val)
					return derr
				})
				if err != nil {
					it.Close()
					return fmt.Errorf("decoding %s: %w", it.Item().Key(), err)
				}

				ok, err := matchesAll(obj, scan.constraints)
				if err != nil {
					it.Close()
					return err
				}
				if ok {
					seen[k] = true
					out = append(out, obj)
				}
			}
			it.Close()
		}
		return nil
	})
	if err != nil {
		return nil, err
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

	scans := make([]scanSpec, 0, len(qa.scans)+len(qb.scans))
	scans = append(scans, qa.scans...)
	scans = append(scans, qb.scans...)
	return &Query{scans: scans}, nil
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
		return nil, fmt.Errorf("%w: expected *badgerquery.Query, got %T", winnow.ErrUnsupportedType, v)
	}
	return q, nil
}

func key(tag winnow.TypeTag, id string) []byte {
	return []byte(string(tag) + "/" + id)
}
