package winnow

import "fmt"

// Operator tags a node in a constraint expression tree.
type Operator string

const (
	// OpAnd holds an ordered list of child expressions, all of which
	// must hold. Disjunction has no operator: alternative ways for
	// authorization to succeed arrive as separate evaluation results.
	OpAnd Operator = "And"

	// OpIsa asserts that an operand matches a named type, optionally
	// narrowing its shape with field sub-constraints (see Pattern).
	OpIsa Operator = "Isa"

	// OpEq asserts a field equals a concrete value.
	OpEq Operator = "Eq"

	// OpNeq asserts a field differs from a concrete value.
	OpNeq Operator = "Neq"

	// OpIn asserts a field's value is a member of a concrete list.
	OpIn Operator = "In"
)

// FieldPath is a dotted attribute path rooted at a variable, e.g.
// ["folder", "owner_id"] for resource.folder.owner_id. Intermediate
// segments must be declared relations; the final segment may be any
// declared field.
type FieldPath []string

// Operand is a variable, or a field reachable from a variable through
// zero or more relation hops. Expressions handed to the compiler must
// root every operand at the query's target variable; operands over
// unrelated free variables are invalid input.
type Operand struct {
	Variable Variable  `json:"variable"`
	Path     FieldPath `json:"path,omitempty"`
}

// Pattern narrows both the type and the shape of an Isa operand: the
// operand must match the tagged type, and each named field must equal
// the given value.
type Pattern struct {
	Tag    TypeTag         `json:"tag"`
	Fields map[string]Term `json:"fields,omitempty"`
}

// Expression is a node in the symbolic constraint tree produced by the
// policy evaluator for partial results. The Operator determines which
// fields are populated:
//
//   - OpAnd: Operands
//   - OpIsa: Operand and Pattern
//   - OpEq, OpNeq, OpIn: Operand and Value
type Expression struct {
	Operator Operator     `json:"operator"`
	Operands []Expression `json:"operands,omitempty"`
	Operand  Operand      `json:"operand,omitzero"`
	Pattern  *Pattern     `json:"pattern,omitempty"`
	Value    *Term        `json:"value,omitempty"`
}

// And builds a conjunction of the given expressions.
func And(exprs ...Expression) *Expression {
	return &Expression{Operator: OpAnd, Operands: exprs}
}

// Isa builds a type-membership assertion for the operand.
func Isa(operand Operand, pattern Pattern) Expression {
	return Expression{Operator: OpIsa, Operand: operand, Pattern: &pattern}
}

// Eq builds a field-equality assertion.
func Eq(operand Operand, value any) Expression {
	t := NewTerm(value)
	return Expression{Operator: OpEq, Operand: operand, Value: &t}
}

// Neq builds a field-inequality assertion.
func Neq(operand Operand, value any) Expression {
	t := NewTerm(value)
	return Expression{Operator: OpNeq, Operand: operand, Value: &t}
}

// In builds a list-membership assertion. values is the concrete list
// the field must be drawn from.
func In(operand Operand, values []any) Expression {
	t := NewTerm(values)
	return Expression{Operator: OpIn, Operand: operand, Value: &t}
}

// Field is a convenience constructor for an operand rooted at v.
func Field(v Variable, path ...string) Operand {
	return Operand{Variable: v, Path: path}
}

// Variables returns every variable referenced anywhere in the tree, in
// first-appearance order without duplicates.
func (e *Expression) Variables() []Variable {
	seen := make(map[Variable]bool)
	var out []Variable

	var walk func(x *Expression)
	walk = func(x *Expression) {
		if x.Operand.Variable != "" && !seen[x.Operand.Variable] {
			seen[x.Operand.Variable] = true
			out = append(out, x.Operand.Variable)
		}
		for i := range x.Operands {
			walk(&x.Operands[i])
		}
	}
	walk(e)

	return out
}

// RootedAt reports whether every operand in the tree references only
// the given variable. The compiler rejects expressions that are not
// rooted at the target variable.
func (e *Expression) RootedAt(target Variable) bool {
	for _, v := range e.Variables() {
		if v != target {
			return false
		}
	}
	return true
}

// String renders the expression for logs and error messages.
func (e *Expression) String() string {
	switch e.Operator {
	case OpAnd:
		s := "And("
		for i := range e.Operands {
			if i > 0 {
				s += ", "
			}
			s += e.Operands[i].String()
		}
		return s + ")"
	case OpIsa:
		if e.Pattern != nil {
			return fmt.Sprintf("Isa(%s, %s)", e.Operand, e.Pattern.Tag)
		}
		return fmt.Sprintf("Isa(%s)", e.Operand)
	default:
		if e.Value != nil {
			return fmt.Sprintf("%s(%s, %v)", e.Operator, e.Operand, e.Value.Value)
		}
		return fmt.Sprintf("%s(%s)", e.Operator, e.Operand)
	}
}

// String renders the operand as variable.path.segments.
func (o Operand) String() string {
	s := string(o.Variable)
	for _, seg := range o.Path {
		s += "." + seg
	}
	return s
}
