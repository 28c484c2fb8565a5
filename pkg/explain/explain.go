// Package explain renders compiled filter plans as human-readable
// tables for debugging and plan inspection.
package explain

import (
	"fmt"
	"sort"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/olekukonko/tablewriter/renderer"
	"github.com/olekukonko/tablewriter/tw"

	"github.com/pthm/winnow"
)

// Formatter renders plans as markdown tables.
type Formatter struct {
	// MaxWidth is the maximum width for a rendered value.
	MaxWidth int
	// TruncateString is appended when a value is truncated.
	TruncateString string
}

// NewFormatter creates a formatter with default settings.
func NewFormatter() *Formatter {
	return &Formatter{
		MaxWidth:       60,
		TruncateString: "...",
	}
}

// Plan renders every branch of the plan. A plan with zero branches
// renders as an explicit denial marker so empty output is never
// mistaken for a rendering failure.
func (f *Formatter) Plan(p *winnow.FilterPlan) string {
	if p == nil || p.Empty() {
		return "_No branches: no authorized resources_\n"
	}

	var sb strings.Builder
	for i, rs := range p.ResultSets {
		if i > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(fmt.Sprintf("**Branch %d** (result: request %d, resolve order: %s)\n\n",
			i, rs.ResultID, formatOrder(rs.ResolveOrder)))
		sb.WriteString(f.branch(rs))
	}

	return sb.String()
}

// branch renders one result set as a table with a row per constraint.
func (f *Formatter) branch(rs winnow.ResultSet) string {
	sb := &strings.Builder{}

	alignment := make([]tw.Align, 4)
	for i := range alignment {
		alignment[i] = tw.AlignNone
	}

	table := tablewriter.NewTable(sb,
		tablewriter.WithRenderer(renderer.NewMarkdown()),
		tablewriter.WithAlignment(alignment),
		tablewriter.WithHeaderAutoFormat(tw.Off),
	)
	table.Header([]string{"request", "class", "constraint", "value"})

	ids := make([]int, 0, len(rs.Requests))
	for id := range rs.Requests {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	rows := 0
	for _, id := range ids {
		req := rs.Requests[id]
		if len(req.Constraints) == 0 {
			table.Append([]string{fmt.Sprint(id), string(req.ClassTag), "(unconstrained)", ""})
			rows++
			continue
		}
		for _, c := range req.Constraints {
			table.Append([]string{
				fmt.Sprint(id),
				string(req.ClassTag),
				fmt.Sprintf("%s %s", c.Field, c.Kind),
				f.formatValue(c.Value),
			})
			rows++
		}
	}

	table.Render()
	sb.WriteString(fmt.Sprintf("\n_%d constraint rows_\n", rows))

	return sb.String()
}

func (f *Formatter) formatValue(v winnow.ConstraintValue) string {
	var s string
	switch {
	case v.Ref != nil:
		s = fmt.Sprintf("request %d . %s", v.Ref.ResultID, v.Ref.Field)
	case v.Term != nil:
		s = fmt.Sprintf("%v", v.Term.Value)
	default:
		s = "(empty)"
	}

	if f.MaxWidth > 0 && len(s) > f.MaxWidth {
		s = s[:f.MaxWidth] + f.TruncateString
	}
	return s
}

func formatOrder(order []int) string {
	parts := make([]string, len(order))
	for i, id := range order {
		parts[i] = fmt.Sprint(id)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// Plan renders a plan with default settings.
func Plan(p *winnow.FilterPlan) string {
	return NewFormatter().Plan(p)
}
