package winnow_test

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"

	"github.com/pthm/winnow"
)

func TestExpression_Variables(t *testing.T) {
	expr := winnow.And(
		winnow.Eq(winnow.Field("resource", "owner_id"), 42),
		*winnow.And(
			winnow.Neq(winnow.Field("resource", "id"), 1),
			winnow.Eq(winnow.Field("actor", "id"), 7),
		),
		winnow.Eq(winnow.Field("resource", "folder", "owner_id"), 42),
	)

	got := expr.Variables()
	want := []winnow.Variable{"resource", "actor"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected first-appearance order without duplicates, got %v", got)
	}
}

func TestExpression_RootedAt(t *testing.T) {
	rooted := winnow.And(
		winnow.Eq(winnow.Field("resource", "owner_id"), 42),
		winnow.In(winnow.Field("resource", "id"), []any{1, 2}),
	)
	if !rooted.RootedAt("resource") {
		t.Error("expression over resource only should be rooted at resource")
	}
	if rooted.RootedAt("actor") {
		t.Error("expression over resource is not rooted at actor")
	}

	foreign := winnow.And(
		winnow.Eq(winnow.Field("resource", "owner_id"), 42),
		winnow.Eq(winnow.Field("actor", "id"), 7),
	)
	if foreign.RootedAt("resource") {
		t.Error("expression referencing actor is not rooted at resource")
	}

	empty := winnow.And()
	if !empty.RootedAt("resource") {
		t.Error("empty conjunction references no variables, so it is trivially rooted")
	}
}

func TestExpression_String(t *testing.T) {
	expr := winnow.And(
		winnow.Eq(winnow.Field("resource", "folder", "owner_id"), 42),
		winnow.Isa(winnow.Field("resource"), winnow.Pattern{Tag: "Document"}),
	)

	s := expr.String()
	for _, want := range []string{"And(", "Eq(resource.folder.owner_id, 42)", "Isa(resource, Document)"} {
		if !strings.Contains(s, want) {
			t.Errorf("expected %q in rendering, got %q", want, s)
		}
	}
}

func TestExpression_WireFormat(t *testing.T) {
	expr := winnow.And(
		winnow.Eq(winnow.Field("resource", "owner_id"), float64(42)),
	)

	raw, err := json.Marshal(expr)
	if err != nil {
		t.Fatalf("marshaling expression: %v", err)
	}

	// Branch-internal nodes omit the unused operand; leaves carry the
	// variable, path, and term value.
	for _, want := range []string{
		`"operator":"And"`,
		`"operator":"Eq"`,
		`"variable":"resource"`,
		`"path":["owner_id"]`,
		`"value":{"value":42}`,
	} {
		if !strings.Contains(string(raw), want) {
			t.Errorf("expected %s in wire form, got %s", want, raw)
		}
	}
	if strings.Count(string(raw), `"variable"`) != 1 {
		t.Errorf("the And node must not serialize an empty operand: %s", raw)
	}

	var back winnow.Expression
	if err := json.Unmarshal(raw, &back); err != nil {
		t.Fatalf("unmarshaling expression: %v", err)
	}
	if !reflect.DeepEqual(&back, expr) {
		t.Errorf("round trip changed the expression: %+v", back)
	}
}
