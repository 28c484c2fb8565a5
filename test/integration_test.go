package test

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm/winnow"
	"github.com/pthm/winnow/pkg/pgquery"
	"github.com/pthm/winnow/pkg/solver"
	"github.com/pthm/winnow/test/testutil"
)

type docRow struct {
	ID       int64
	OwnerID  int64
	FolderID int64
}

type folderRow struct {
	ID      int64
	OwnerID int64
}

func scanDoc(rows *sql.Rows) (any, error) {
	var d docRow
	if err := rows.Scan(&d.ID, &d.OwnerID, &d.FolderID); err != nil {
		return nil, err
	}
	return d, nil
}

func scanFolder(rows *sql.Rows) (any, error) {
	var f folderRow
	if err := rows.Scan(&f.ID, &f.OwnerID); err != nil {
		return nil, err
	}
	return f, nil
}

func buildRegistry(t *testing.T, db *sql.DB) *winnow.Registry {
	t.Helper()
	reg, err := winnow.NewRegistryBuilder().
		RegisterType("Folder", []winnow.FieldDef{
			winnow.Attribute("id", "Integer"),
			winnow.Attribute("owner_id", "Integer"),
		}, pgquery.Provider(db, "folders", []string{"id", "owner_id"}, scanFolder)).
		RegisterType("Document", []winnow.FieldDef{
			winnow.Attribute("id", "Integer"),
			winnow.Attribute("owner_id", "Integer"),
			winnow.Related("folder", winnow.Relation{
				Kind:       winnow.RelationOne,
				OtherType:  "Folder",
				MyField:    "folder_id",
				OtherField: "id",
			}),
		}, pgquery.Provider(db, "documents", []string{"id", "owner_id", "folder_id"}, scanDoc)).
		Build()
	require.NoError(t, err)
	return reg
}

func docIDs(objs []any) []int64 {
	ids := make([]int64, 0, len(objs))
	for _, obj := range objs {
		ids = append(ids, obj.(docRow).ID)
	}
	return ids
}

func TestResolve_DirectAttribute(t *testing.T) {
	db := testutil.DB(t)
	reg := buildRegistry(t, db)
	c := winnow.NewCompiler(reg, solver.New())
	exec := winnow.NewExecutor(reg)
	ctx := context.Background()

	// resource.owner_id = 42
	partial := []winnow.EvaluationResult{{
		"resource": winnow.Symbolic(winnow.And(
			winnow.Eq(winnow.Field("resource", "owner_id"), 42),
		)),
	}}

	plan, err := c.Compile(ctx, partial, nil, "resource", "Document")
	require.NoError(t, err)

	got, err := exec.Resolve(ctx, plan)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{3, 4}, docIDs(got))
}

func TestResolve_RelationHop(t *testing.T) {
	db := testutil.DB(t)
	reg := buildRegistry(t, db)
	c := winnow.NewCompiler(reg, solver.New())
	exec := winnow.NewExecutor(reg)
	ctx := context.Background()

	// resource.folder.owner_id = 42: the folder request resolves first
	// and feeds folder ids into the document query.
	partial := []winnow.EvaluationResult{{
		"resource": winnow.Symbolic(winnow.And(
			winnow.Eq(winnow.Field("resource", "folder", "owner_id"), 42),
		)),
	}}

	plan, err := c.Compile(ctx, partial, nil, "resource", "Document")
	require.NoError(t, err)

	got, err := exec.Resolve(ctx, plan)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{1, 3}, docIDs(got))
}

func TestResolve_MixedResults(t *testing.T) {
	db := testutil.DB(t)
	reg := buildRegistry(t, db)
	c := winnow.NewCompiler(reg, solver.New())
	exec := winnow.NewExecutor(reg)
	ctx := context.Background()

	// One symbolic branch (owner check) plus one concrete hit. Document 3
	// satisfies both and must appear once.
	results := []winnow.EvaluationResult{
		{"resource": winnow.Symbolic(winnow.And(
			winnow.Eq(winnow.Field("resource", "owner_id"), 42),
		))},
		{"resource": winnow.Concrete(docRow{ID: 3, OwnerID: 42, FolderID: 100})},
		{"resource": winnow.Concrete(docRow{ID: 2, OwnerID: 20, FolderID: 200})},
	}

	plan, err := c.CompileResults(ctx, results, "resource", "Document")
	require.NoError(t, err)

	got, err := exec.Resolve(ctx, plan)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{2, 3, 4}, docIDs(got))
}

func TestResolve_DeniedEverywhere(t *testing.T) {
	db := testutil.DB(t)
	reg := buildRegistry(t, db)
	c := winnow.NewCompiler(reg, solver.New())
	exec := winnow.NewExecutor(reg)
	ctx := context.Background()

	plan, err := c.Compile(ctx, nil, nil, "resource", "Document")
	require.NoError(t, err)
	assert.True(t, plan.Empty())

	got, err := exec.Resolve(ctx, plan)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestQuery_RendersUnion(t *testing.T) {
	db := testutil.DB(t)
	reg := buildRegistry(t, db)
	c := winnow.NewCompiler(reg, solver.New())
	exec := winnow.NewExecutor(reg)
	ctx := context.Background()

	partial := []winnow.EvaluationResult{
		{"resource": winnow.Symbolic(winnow.And(
			winnow.Eq(winnow.Field("resource", "owner_id"), 42),
		))},
		{"resource": winnow.Symbolic(winnow.And(
			winnow.Eq(winnow.Field("resource", "id"), 1),
		))},
	}

	plan, err := c.Compile(ctx, partial, nil, "resource", "Document")
	require.NoError(t, err)

	q, err := exec.Query(ctx, plan)
	require.NoError(t, err)
	pq, ok := q.(*pgquery.Query)
	require.True(t, ok)

	stmt, args, err := pq.SQL()
	require.NoError(t, err)
	assert.Contains(t, stmt, "UNION")
	assert.Len(t, args, 2)

	// The rendered statement runs against the live database.
	rows, err := db.QueryContext(ctx, stmt, args...)
	require.NoError(t, err)
	defer func() { _ = rows.Close() }()

	var ids []int64
	for rows.Next() {
		obj, err := scanDoc(rows)
		require.NoError(t, err)
		ids = append(ids, obj.(docRow).ID)
	}
	require.NoError(t, rows.Err())
	assert.ElementsMatch(t, []int64{1, 3, 4}, ids)
}

func TestResolve_InsideTransaction(t *testing.T) {
	db := testutil.DB(t)
	ctx := context.Background()

	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	defer func() { _ = tx.Rollback() }()

	// A row inserted in the transaction is visible to queries running
	// through the same transaction.
	_, err = tx.ExecContext(ctx, "INSERT INTO documents (id, owner_id, folder_id) VALUES (9, 42, 100)")
	require.NoError(t, err)

	reg, err := winnow.NewRegistryBuilder().
		RegisterType("Document", []winnow.FieldDef{
			winnow.Attribute("id", "Integer"),
			winnow.Attribute("owner_id", "Integer"),
		}, pgquery.Provider(tx, "documents", []string{"id", "owner_id", "folder_id"}, scanDoc)).
		Build()
	require.NoError(t, err)

	c := winnow.NewCompiler(reg, solver.New())
	exec := winnow.NewExecutor(reg)

	partial := []winnow.EvaluationResult{{
		"resource": winnow.Symbolic(winnow.And(
			winnow.Eq(winnow.Field("resource", "owner_id"), 42),
		)),
	}}
	plan, err := c.Compile(ctx, partial, nil, "resource", "Document")
	require.NoError(t, err)

	got, err := exec.Resolve(ctx, plan)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{3, 4, 9}, docIDs(got))
}

func TestResolve_MissingTable(t *testing.T) {
	db := testutil.EmptyDB(t)
	reg := buildRegistry(t, db)
	c := winnow.NewCompiler(reg, solver.New())
	exec := winnow.NewExecutor(reg)
	ctx := context.Background()

	partial := []winnow.EvaluationResult{{
		"resource": winnow.Symbolic(winnow.And(
			winnow.Eq(winnow.Field("resource", "owner_id"), 42),
		)),
	}}
	plan, err := c.Compile(ctx, partial, nil, "resource", "Document")
	require.NoError(t, err)

	_, err = exec.Resolve(ctx, plan)
	require.Error(t, err)
	assert.True(t, pgquery.IsMissingSourceErr(err), "got: %v", err)
}
