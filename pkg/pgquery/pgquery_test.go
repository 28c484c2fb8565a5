package pgquery

import (
	"database/sql"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm/winnow"
)

var docColumns = []string{"id", "owner_id", "folder_id"}

func scanNothing(rows *sql.Rows) (any, error) { return nil, nil }

func buildQuery(t *testing.T, constraints []winnow.Constraint) *Query {
	t.Helper()
	caps := Provider(nil, "documents", docColumns, scanNothing)
	q, err := caps.BuildQuery(constraints)
	require.NoError(t, err)
	return q.(*Query)
}

func TestQuerySQL_Unconstrained(t *testing.T) {
	q := buildQuery(t, nil)

	stmt, args, err := q.SQL()
	require.NoError(t, err)
	assert.Equal(t, `SELECT "id", "owner_id", "folder_id" FROM "documents"`, stmt)
	assert.Empty(t, args)
}

func TestQuerySQL_Constraints(t *testing.T) {
	q := buildQuery(t, []winnow.Constraint{
		winnow.TermConstraint(winnow.KindEq, "owner_id", 42),
		winnow.TermConstraint(winnow.KindNeq, "id", 7),
		winnow.TermConstraint(winnow.KindIn, "folder_id", []any{1, 2}),
	})

	stmt, args, err := q.SQL()
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT "id", "owner_id", "folder_id" FROM "documents" WHERE "owner_id" = $1 AND "id" <> $2 AND "folder_id" IN ($3, $4)`,
		stmt)
	assert.Equal(t, []any{42, 7, 1, 2}, args)
}

func TestQuerySQL_EmptyInMatchesNothing(t *testing.T) {
	q := buildQuery(t, []winnow.Constraint{
		winnow.TermConstraint(winnow.KindIn, "id", []any{}),
	})

	stmt, args, err := q.SQL()
	require.NoError(t, err)
	assert.Contains(t, stmt, "WHERE FALSE")
	assert.Empty(t, args)
}

func TestQuerySQL_IntSliceValues(t *testing.T) {
	q := buildQuery(t, []winnow.Constraint{
		winnow.TermConstraint(winnow.KindIn, "id", []int{3, 4}),
	})

	_, args, err := q.SQL()
	require.NoError(t, err)
	assert.Equal(t, []any{3, 4}, args)
}

func TestQuerySQL_UnionNumbersPlaceholdersSequentially(t *testing.T) {
	caps := Provider(nil, "documents", docColumns, scanNothing)
	a, err := caps.BuildQuery([]winnow.Constraint{winnow.TermConstraint(winnow.KindEq, "owner_id", 10)})
	require.NoError(t, err)
	b, err := caps.BuildQuery([]winnow.Constraint{winnow.TermConstraint(winnow.KindEq, "id", 1)})
	require.NoError(t, err)

	combined, err := caps.CombineQuery(a, b)
	require.NoError(t, err)

	stmt, args, err := combined.(*Query).SQL()
	require.NoError(t, err)
	assert.Equal(t,
		`SELECT "id", "owner_id", "folder_id" FROM "documents" WHERE "owner_id" = $1`+
			"\nUNION\n"+
			`SELECT "id", "owner_id", "folder_id" FROM "documents" WHERE "id" = $2`,
		stmt)
	assert.Equal(t, []any{10, 1}, args)
}

func TestQuerySQL_UnsubstitutedRef(t *testing.T) {
	q := buildQuery(t, []winnow.Constraint{
		winnow.RefConstraint(winnow.KindIn, "folder_id", winnow.Ref{ResultID: 1, Field: "id"}),
	})

	_, _, err := q.SQL()
	assert.True(t, winnow.IsInvalidPlanErr(err), "got: %v", err)
}

func TestBuildQuery_ColumnWhitelist(t *testing.T) {
	caps := Provider(nil, "documents", docColumns, scanNothing)

	_, err := caps.BuildQuery([]winnow.Constraint{
		winnow.TermConstraint(winnow.KindEq, `title"; DROP TABLE documents; --`, "x"),
	})
	require.Error(t, err)
	assert.True(t, winnow.IsUnknownFieldErr(err))
}

func TestQuoteIdent(t *testing.T) {
	assert.Equal(t, `"owner_id"`, quoteIdent("owner_id"))
	assert.Equal(t, `"select"`, quoteIdent("select"))
	assert.Equal(t, `"od""d"`, quoteIdent(`od"d`))
}

type fakeSQLStateErr struct{ code string }

func (e *fakeSQLStateErr) Error() string    { return "pg error " + e.code }
func (e *fakeSQLStateErr) SQLState() string { return e.code }

type fakeCodeErr struct{ code string }

func (e *fakeCodeErr) Error() string { return "pq error " + e.code }
func (e *fakeCodeErr) Code() string  { return e.code }

func TestMapError(t *testing.T) {
	t.Run("undefined table via SQLState", func(t *testing.T) {
		err := mapError(fmt.Errorf("query: %w", &fakeSQLStateErr{code: pgUndefinedTable}))
		assert.True(t, IsMissingSourceErr(err))
	})

	t.Run("undefined column via Code", func(t *testing.T) {
		err := mapError(fmt.Errorf("query: %w", &fakeCodeErr{code: pgUndefinedColumn}))
		assert.True(t, winnow.IsUnknownFieldErr(err))
	})

	t.Run("other errors pass through", func(t *testing.T) {
		orig := fmt.Errorf("connection refused")
		assert.Equal(t, orig, mapError(orig))
	})
}

func TestExecQuery_ForeignQueryValue(t *testing.T) {
	caps := Provider(nil, "documents", docColumns, scanNothing)

	_, err := caps.ExecQuery(t.Context(), "not a query")
	require.Error(t, err)
	assert.True(t, winnow.IsUnsupportedTypeErr(err))
}
