// Package doctor provides health checks for a winnow deployment.
//
// The doctor command validates that plan compilation and execution are
// properly set up: the registry definitions parse and build, the
// database is reachable, and every table backing a registered type
// exists with the declared columns.
//
// Example usage:
//
//	d := doctor.New(db, "winnow.types.yaml", tables)
//	report, err := d.Run(ctx)
//	if err != nil {
//		log.Fatal(err)
//	}
//	report.Print(os.Stdout, true) // verbose=true
package doctor

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/pthm/winnow"
	"github.com/pthm/winnow/pkg/parser"
)

// Status represents the result of a health check.
type Status int

const (
	// StatusPass indicates the check passed.
	StatusPass Status = iota
	// StatusWarn indicates a non-critical issue.
	StatusWarn
	// StatusFail indicates a critical issue that will cause failures.
	StatusFail
)

func (s Status) String() string {
	switch s {
	case StatusPass:
		return "pass"
	case StatusWarn:
		return "warn"
	case StatusFail:
		return "fail"
	default:
		return "unknown"
	}
}

// Symbol returns a status indicator symbol for terminal output.
func (s Status) Symbol() string {
	switch s {
	case StatusPass:
		return "✓"
	case StatusWarn:
		return "⚠"
	case StatusFail:
		return "✗"
	default:
		return "?"
	}
}

// CheckResult represents the outcome of a single health check.
type CheckResult struct {
	// Category groups related checks (e.g., "Definitions", "Database").
	Category string

	// Name is a short identifier for the check.
	Name string

	// Status is the check outcome.
	Status Status

	// Message is a human-readable description of the result.
	Message string

	// Details provides additional information for verbose output.
	Details string

	// FixHint suggests how to resolve issues.
	FixHint string
}

// Report contains all health check results.
type Report struct {
	Checks []CheckResult

	// Summary counts.
	Passed   int
	Warnings int
	Errors   int
}

// AddCheck adds a check result and updates summary counts.
func (r *Report) AddCheck(check CheckResult) {
	r.Checks = append(r.Checks, check)
	switch check.Status {
	case StatusPass:
		r.Passed++
	case StatusWarn:
		r.Warnings++
	case StatusFail:
		r.Errors++
	}
}

// Print writes the report to the given writer.
func (r *Report) Print(w io.Writer, verbose bool) {
	// Group checks by category
	categories := make(map[string][]CheckResult)
	var categoryOrder []string
	for _, check := range r.Checks {
		if _, exists := categories[check.Category]; !exists {
			categoryOrder = append(categoryOrder, check.Category)
		}
		categories[check.Category] = append(categories[check.Category], check)
	}

	for _, cat := range categoryOrder {
		_, _ = fmt.Fprintf(w, "\n%s\n", cat)
		for _, check := range categories[cat] {
			_, _ = fmt.Fprintf(w, "  %s %s\n", check.Status.Symbol(), check.Message)
			if verbose && check.Details != "" {
				for _, line := range strings.Split(check.Details, "\n") {
					_, _ = fmt.Fprintf(w, "      %s\n", line)
				}
			}
			if check.Status != StatusPass && check.FixHint != "" {
				_, _ = fmt.Fprintf(w, "      Fix: %s\n", check.FixHint)
			}
		}
	}

	_, _ = fmt.Fprintf(w, "\nSummary: %d passed, %d warnings, %d errors\n",
		r.Passed, r.Warnings, r.Errors)
}

// HasErrors returns true if any check failed.
func (r *Report) HasErrors() bool {
	return r.Errors > 0
}

// Doctor performs health checks on a winnow deployment.
type Doctor struct {
	db              *sql.DB
	definitionsPath string

	// Tables maps type tags to "table:col1,col2" backing declarations,
	// as configured for the exec command.
	tables map[string]string

	// Cached data from checks (populated during Run)
	registry *winnow.Registry
}

// New creates a new Doctor instance. db may be nil, in which case all
// database checks are skipped with a warning.
func New(db *sql.DB, definitionsPath string, tables map[string]string) *Doctor {
	return &Doctor{
		db:              db,
		definitionsPath: definitionsPath,
		tables:          tables,
	}
}

// Run executes all health checks and returns a report.
func (d *Doctor) Run(ctx context.Context) (*Report, error) {
	report := &Report{}

	d.checkDefinitions(report)
	d.checkTableMappings(report)
	if err := d.checkDatabase(ctx, report); err != nil {
		return nil, fmt.Errorf("checking database: %w", err)
	}

	return report, nil
}

// checkDefinitions validates the definitions file exists, parses, and
// builds into a registry.
func (d *Doctor) checkDefinitions(report *Report) {
	if _, err := os.Stat(d.definitionsPath); err != nil {
		report.AddCheck(CheckResult{
			Category: "Definitions",
			Name:     "exists",
			Status:   StatusFail,
			Message:  fmt.Sprintf("Definitions file not found at %s", d.definitionsPath),
			FixHint:  "Create a type definitions YAML file or set definitions in winnow.yaml",
		})
		return
	}

	report.AddCheck(CheckResult{
		Category: "Definitions",
		Name:     "exists",
		Status:   StatusPass,
		Message:  fmt.Sprintf("Definitions file exists at %s", d.definitionsPath),
	})

	defs, err := parser.ParseFile(d.definitionsPath)
	if err != nil {
		report.AddCheck(CheckResult{
			Category: "Definitions",
			Name:     "parses",
			Status:   StatusFail,
			Message:  "Definitions file has syntax errors",
			Details:  err.Error(),
			FixHint:  "Fix the YAML syntax errors above",
		})
		return
	}

	report.AddCheck(CheckResult{
		Category: "Definitions",
		Name:     "parses",
		Status:   StatusPass,
		Message:  fmt.Sprintf("Definitions parse (%d types)", len(defs)),
	})

	reg, err := parser.BuildRegistry(defs)
	if err != nil {
		report.AddCheck(CheckResult{
			Category: "Definitions",
			Name:     "builds",
			Status:   StatusFail,
			Message:  "Definitions do not build into a registry",
			Details:  err.Error(),
			FixHint:  "Check for duplicate tags, duplicate fields, or relations to undeclared types",
		})
		return
	}
	d.registry = reg

	report.AddCheck(CheckResult{
		Category: "Definitions",
		Name:     "builds",
		Status:   StatusPass,
		Message:  "Registry builds",
		Details:  fmt.Sprintf("types: %s", joinTags(reg.Tags())),
	})
}

// checkTableMappings cross-references configured table mappings with
// the registry: a registered type without a table cannot be executed
// against, and a mapping for an unregistered type is dead configuration.
func (d *Doctor) checkTableMappings(report *Report) {
	if d.registry == nil {
		return
	}
	if len(d.tables) == 0 {
		report.AddCheck(CheckResult{
			Category: "Tables",
			Name:     "configured",
			Status:   StatusWarn,
			Message:  "No table mappings configured",
			FixHint:  "Add exec.tables entries to winnow.yaml to enable plan execution",
		})
		return
	}

	registered := make(map[string]bool)
	for _, tag := range d.registry.Tags() {
		registered[string(tag)] = true
	}

	for _, tag := range sortedKeys(d.tables) {
		if !registered[tag] {
			report.AddCheck(CheckResult{
				Category: "Tables",
				Name:     "mapping:" + tag,
				Status:   StatusWarn,
				Message:  fmt.Sprintf("Table mapping for %q has no registered type", tag),
				FixHint:  "Remove the mapping or declare the type in the definitions file",
			})
			continue
		}
		report.AddCheck(CheckResult{
			Category: "Tables",
			Name:     "mapping:" + tag,
			Status:   StatusPass,
			Message:  fmt.Sprintf("%s is mapped to %s", tag, d.tables[tag]),
		})
	}

	for _, tag := range d.registry.Tags() {
		if _, ok := d.tables[string(tag)]; !ok {
			report.AddCheck(CheckResult{
				Category: "Tables",
				Name:     "mapping:" + string(tag),
				Status:   StatusWarn,
				Message:  fmt.Sprintf("Registered type %q has no table mapping", tag),
				FixHint:  "Plans naming this type cannot be executed until a table is mapped",
			})
		}
	}
}

// checkDatabase verifies connectivity and that every mapped table
// exists with its declared columns.
func (d *Doctor) checkDatabase(ctx context.Context, report *Report) error {
	if d.db == nil {
		report.AddCheck(CheckResult{
			Category: "Database",
			Name:     "configured",
			Status:   StatusWarn,
			Message:  "No database configured, skipping connectivity checks",
			FixHint:  "Set database.url or discrete database fields in winnow.yaml",
		})
		return nil
	}

	if err := d.db.PingContext(ctx); err != nil {
		report.AddCheck(CheckResult{
			Category: "Database",
			Name:     "connect",
			Status:   StatusFail,
			Message:  "Cannot connect to database",
			Details:  err.Error(),
			FixHint:  "Check the database configuration and that the server is running",
		})
		return nil
	}
	report.AddCheck(CheckResult{
		Category: "Database",
		Name:     "connect",
		Status:   StatusPass,
		Message:  "Database connection OK",
	})

	for _, tag := range sortedKeys(d.tables) {
		table, columns := splitMapping(d.tables[tag])
		if err := d.checkTable(ctx, report, table, columns); err != nil {
			return err
		}
	}
	return nil
}

// checkTable verifies one backing table exists and carries the declared
// columns.
func (d *Doctor) checkTable(ctx context.Context, report *Report, table string, columns []string) error {
	rows, err := d.db.QueryContext(ctx, `
		SELECT column_name
		FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = $1
	`, table)
	if err != nil {
		return fmt.Errorf("querying columns of %s: %w", table, err)
	}
	defer func() { _ = rows.Close() }()

	present := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return fmt.Errorf("scanning column name: %w", err)
		}
		present[name] = true
	}
	if err := rows.Err(); err != nil {
		return err
	}

	if len(present) == 0 {
		report.AddCheck(CheckResult{
			Category: "Database",
			Name:     "table:" + table,
			Status:   StatusFail,
			Message:  fmt.Sprintf("Table %q does not exist", table),
			FixHint:  "Run the application migrations that create it",
		})
		return nil
	}

	var missing []string
	for _, col := range columns {
		if !present[col] {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		report.AddCheck(CheckResult{
			Category: "Database",
			Name:     "table:" + table,
			Status:   StatusFail,
			Message:  fmt.Sprintf("Table %q is missing declared columns: %s", table, strings.Join(missing, ", ")),
			FixHint:  "Align the exec.tables column list with the actual table",
		})
		return nil
	}

	report.AddCheck(CheckResult{
		Category: "Database",
		Name:     "table:" + table,
		Status:   StatusPass,
		Message:  fmt.Sprintf("Table %q exists with all declared columns", table),
	})
	return nil
}

// splitMapping splits a "table:col1,col2" mapping value.
func splitMapping(v string) (string, []string) {
	table, cols, ok := strings.Cut(v, ":")
	if !ok || cols == "" {
		return table, nil
	}
	return table, strings.Split(cols, ",")
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func joinTags(tags []winnow.TypeTag) string {
	parts := make([]string, len(tags))
	for i, t := range tags {
		parts[i] = string(t)
	}
	return strings.Join(parts, ", ")
}
