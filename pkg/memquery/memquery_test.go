package memquery

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pthm/winnow"
)

type doc struct {
	ID      int
	OwnerID int
}

func TestProvider_BuildAndExec(t *testing.T) {
	objects := []any{
		doc{ID: 1, OwnerID: 10},
		doc{ID: 2, OwnerID: 20},
		doc{ID: 3, OwnerID: 10},
	}
	caps := Provider(objects)

	q, err := caps.BuildQuery([]winnow.Constraint{
		winnow.TermConstraint(winnow.KindEq, "owner_id", 10),
	})
	require.NoError(t, err)

	got, err := caps.ExecQuery(context.Background(), q)
	require.NoError(t, err)
	assert.Equal(t, []any{objects[0], objects[2]}, got)
}

func TestProvider_ConstraintKinds(t *testing.T) {
	objects := []any{
		doc{ID: 1, OwnerID: 10},
		doc{ID: 2, OwnerID: 20},
		doc{ID: 3, OwnerID: 30},
	}
	caps := Provider(objects)

	tests := []struct {
		name        string
		constraints []winnow.Constraint
		want        []any
	}{
		{
			name:        "neq",
			constraints: []winnow.Constraint{winnow.TermConstraint(winnow.KindNeq, "owner_id", 20)},
			want:        []any{objects[0], objects[2]},
		},
		{
			name:        "in",
			constraints: []winnow.Constraint{winnow.TermConstraint(winnow.KindIn, "id", []any{1, 3})},
			want:        []any{objects[0], objects[2]},
		},
		{
			name:        "empty in matches nothing",
			constraints: []winnow.Constraint{winnow.TermConstraint(winnow.KindIn, "id", []any{})},
			want:        nil,
		},
		{
			name: "conjunction",
			constraints: []winnow.Constraint{
				winnow.TermConstraint(winnow.KindEq, "owner_id", 10),
				winnow.TermConstraint(winnow.KindEq, "id", 1),
			},
			want: []any{objects[0]},
		},
		{
			name:        "unconstrained",
			constraints: nil,
			want:        objects,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := caps.BuildQuery(tt.constraints)
			require.NoError(t, err)
			got, err := caps.ExecQuery(context.Background(), q)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestProvider_CombineDeduplicates(t *testing.T) {
	objects := []any{
		doc{ID: 1, OwnerID: 10},
		doc{ID: 2, OwnerID: 20},
	}
	caps := Provider(objects)

	a, err := caps.BuildQuery([]winnow.Constraint{winnow.TermConstraint(winnow.KindEq, "owner_id", 10)})
	require.NoError(t, err)
	b, err := caps.BuildQuery([]winnow.Constraint{winnow.TermConstraint(winnow.KindEq, "id", 1)})
	require.NoError(t, err)

	combined, err := caps.CombineQuery(a, b)
	require.NoError(t, err)

	// Document 1 satisfies both branches and must appear once.
	got, err := caps.ExecQuery(context.Background(), combined)
	require.NoError(t, err)
	assert.Equal(t, []any{objects[0]}, got)
}

func TestProvider_UnknownField(t *testing.T) {
	caps := Provider([]any{doc{ID: 1}})

	q, err := caps.BuildQuery([]winnow.Constraint{winnow.TermConstraint(winnow.KindEq, "title", "x")})
	require.NoError(t, err)

	_, err = caps.ExecQuery(context.Background(), q)
	assert.True(t, winnow.IsUnknownFieldErr(err), "got: %v", err)
}

func TestProvider_ForeignQueryValue(t *testing.T) {
	caps := Provider(nil)

	_, err := caps.ExecQuery(context.Background(), "not a query")
	require.Error(t, err)
	assert.True(t, winnow.IsUnsupportedTypeErr(err))
	assert.Contains(t, err.Error(), "string")

	_, err = caps.CombineQuery(&Query{}, 42)
	assert.True(t, winnow.IsUnsupportedTypeErr(err))
}

func TestProvider_CanceledContext(t *testing.T) {
	caps := Provider([]any{doc{ID: 1}})
	q, err := caps.BuildQuery(nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = caps.ExecQuery(ctx, q)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestQuery_Exec(t *testing.T) {
	objects := []any{doc{ID: 1, OwnerID: 10}}
	caps := Provider(objects)

	built, err := caps.BuildQuery(nil)
	require.NoError(t, err)

	got, err := built.(*Query).Exec(context.Background())
	require.NoError(t, err)
	assert.Equal(t, objects, got)
}
