// Package pgquery provides winnow query capabilities backed by
// PostgreSQL tables.
//
// A compiled filter plan's structured constraints render into a
// parameterized SELECT; plan branches combine into a UNION. The package
// is driver-agnostic through database/sql: it works with pgx (via its
// stdlib adapter) and lib/pq alike, and accepts *sql.DB, *sql.Tx, or
// *sql.Conn through the Querier interface, so authorized fetches can
// run inside application transactions.
//
// # Basic Usage
//
//	caps := pgquery.Provider(db, "documents", []string{"id", "owner_id", "folder_id"}, scanDocument)
//	reg, _ := winnow.NewRegistryBuilder().
//	    RegisterType("Document", fields, caps).
//	    Build()
//
// Constraint fields are validated against the declared column list
// before rendering, so plan contents can never inject SQL.
package pgquery

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/pthm/winnow"
)

// ErrMissingSource is returned when the backing table does not exist.
// This usually means application migrations have not run; it is mapped
// from the PostgreSQL undefined_table error so callers can detect the
// condition without driver-specific code.
var ErrMissingSource = errors.New("pgquery: source table not found")

// IsMissingSourceErr returns true if err is or wraps ErrMissingSource.
func IsMissingSourceErr(err error) bool {
	return errors.Is(err, ErrMissingSource)
}

// PostgreSQL error codes used for error mapping.
const (
	pgUndefinedTable  = "42P01" // undefined_table
	pgUndefinedColumn = "42703" // undefined_column
)

// Querier is the subset of database/sql query methods pgquery needs.
// *sql.DB, *sql.Tx, and *sql.Conn all satisfy it.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// ScanFunc turns the current row into a host object. It must not call
// rows.Next.
type ScanFunc func(rows *sql.Rows) (any, error)

// Query is the backend query value pgquery builds: one SELECT per plan
// branch, rendered as a UNION. Callers normally never construct one;
// they receive it from BuildQuery or Executor.Query.
type Query struct {
	selects []selectSpec
	scan    ScanFunc
}

type selectSpec struct {
	table       string
	columns     []string
	constraints []winnow.Constraint
}

// SQL renders the query with sequential placeholder numbering and
// returns the statement and its arguments.
func (q *Query) SQL() (string, []any, error) {
	var sb strings.Builder
	var args []any

	for i, sel := range q.selects {
		if i > 0 {
			sb.WriteString("\nUNION\n")
		}
		if err := sel.render(&sb, &args); err != nil {
			return "", nil, err
		}
	}

	return sb.String(), args, nil
}

func (sel selectSpec) render(sb *strings.Builder, args *[]any) error {
	sb.WriteString("SELECT ")
	for i, col := range sel.columns {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(quoteIdent(col))
	}
	sb.WriteString(" FROM ")
	sb.WriteString(quoteIdent(sel.table))

	if len(sel.constraints) == 0 {
		return nil
	}
	sb.WriteString(" WHERE ")

	for i, c := range sel.constraints {
		if i > 0 {
			sb.WriteString(" AND ")
		}
		if c.Value.Term == nil {
			return fmt.Errorf("%w: unsubstituted reference on field %q", winnow.ErrInvalidPlan, c.Field)
		}

		switch c.Kind {
		case winnow.KindEq:
			*args = append(*args, c.Value.Term.Value)
			sb.WriteString(quoteIdent(c.Field))
			sb.WriteString(" = $")
			sb.WriteString(strconv.Itoa(len(*args)))
		case winnow.KindNeq:
			*args = append(*args, c.Value.Term.Value)
			sb.WriteString(quoteIdent(c.Field))
			sb.WriteString(" <> $")
			sb.WriteString(strconv.Itoa(len(*args)))
		case winnow.KindIn:
			values, err := listValues(c.Value.Term.Value)
			if err != nil {
				return err
			}
			// An empty membership list matches nothing.
			if len(values) == 0 {
				sb.WriteString("FALSE")
				continue
			}
			sb.WriteString(quoteIdent(c.Field))
			sb.WriteString(" IN (")
			for j, v := range values {
				if j > 0 {
					sb.WriteString(", ")
				}
				*args = append(*args, v)
				sb.WriteString("$")
				sb.WriteString(strconv.Itoa(len(*args)))
			}
			sb.WriteString(")")
		default:
			return fmt.Errorf("%w: unknown constraint kind %q", winnow.ErrInvalidPlan, c.Kind)
		}
	}

	return nil
}

// Provider returns capabilities that resolve requests against a table.
// columns is the full declared column list: it is both the SELECT list
// and the whitelist constraint fields are validated against.
func Provider(q Querier, table string, columns []string, scan ScanFunc) winnow.Capabilities {
	allowed := make(map[string]bool, len(columns))
	for _, col := range columns {
		allowed[col] = true
	}

	return winnow.Capabilities{
		BuildQuery: func(constraints []winnow.Constraint) (any, error) {
			for _, c := range constraints {
				if !allowed[c.Field] {
					return nil, fmt.Errorf("%w: %q is not a column of %q", winnow.ErrUnknownField, c.Field, table)
				}
			}
			return &Query{
				selects: []selectSpec{{table: table, columns: columns, constraints: constraints}},
				scan:    scan,
			}, nil
		},
		ExecQuery: func(ctx context.Context, query any) ([]any, error) {
			return execQuery(ctx, q, query)
		},
		CombineQuery: combineQuery,
	}
}

func execQuery(ctx context.Context, db Querier, query any) ([]any, error) {
	pq, err := asQuery(query)
	if err != nil {
		return nil, err
	}

	stmt, args, err := pq.SQL()
	if err != nil {
		return nil, err
	}

	rows, err := db.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var out []any
	for rows.Next() {
		obj, err := pq.scan(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		out = append(out, obj)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(err)
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

	selects := make([]selectSpec, 0, len(qa.selects)+len(qb.selects))
	selects = append(selects, qa.selects...)
	selects = append(selects, qb.selects...)
	return &Query{selects: selects, scan: qa.scan}, nil
}

func asQuery(v any) (*Query, error) {
	q, ok := v.(*Query)
	if !ok {
		return nil, fmt.Errorf("%w: expected *pgquery.Query, got %T", winnow.ErrUnsupportedType, v)
	}
	return q, nil
}

func listValues(v any) ([]any, error) {
	switch l := v.(type) {
	case []any:
		return l, nil
	case []string:
		out := make([]any, len(l))
		for i, s := range l {
			out[i] = s
		}
		return out, nil
	case []int:
		out := make([]any, len(l))
		for i, n := range l {
			out[i] = n
		}
		return out, nil
	case []int64:
		out := make([]any, len(l))
		for i, n := range l {
			out[i] = n
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%w: In constraint over non-list value %T", winnow.ErrInvalidPlan, v)
	}
}

// quoteIdent quotes a SQL identifier. Identifiers come from registry
// declarations, not user input, but quoting keeps reserved words and
// mixed-case names working.
func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// mapError maps PostgreSQL errors to package sentinels. Uses
// interface-based SQLSTATE detection so it works with both pgx and pq
// without importing either driver.
func mapError(err error) error {
	switch sqlState(err) {
	case pgUndefinedTable:
		return fmt.Errorf("%w: %v", ErrMissingSource, err)
	case pgUndefinedColumn:
		return fmt.Errorf("%w: %v", winnow.ErrUnknownField, err)
	}
	return err
}

// sqlState extracts the SQLSTATE code from a PostgreSQL error.
// Works with multiple drivers via interface detection:
//   - pgx/pgconn: SQLState() string
//   - lib/pq: Code field (via error interface)
//
// Returns empty string if the error doesn't contain a SQLSTATE.
func sqlState(err error) string {
	type sqlStateErr interface{ SQLState() string }
	var se sqlStateErr
	if errors.As(err, &se) {
		return se.SQLState()
	}

	type codeErr interface{ Code() string }
	var ce codeErr
	if errors.As(err, &ce) {
		return ce.Code()
	}

	return ""
}
