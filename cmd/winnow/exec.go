package main

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	_ "github.com/lib/pq"
	"github.com/spf13/cobra"

	"github.com/pthm/winnow"
	"github.com/pthm/winnow/internal/cli"
	"github.com/pthm/winnow/pkg/parser"
	"github.com/pthm/winnow/pkg/pgquery"
)

var execDefinitions string

var execCmd = &cobra.Command{
	Use:   "exec <plan.json>",
	Short: "Resolve a filter plan against PostgreSQL",
	Long: `Resolve a compiled filter plan against PostgreSQL and print the
authorized records as JSON lines.

Each type tag in the plan needs a table mapping in winnow.yaml:

  exec:
    tables:
      Document: "documents:id,owner_id,folder_id"
      Folder: "folders:id,owner_id"`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		content, err := os.ReadFile(args[0])
		if err != nil {
			return cli.GeneralError("reading plan", err)
		}
		var plan winnow.FilterPlan
		if err := json.Unmarshal(content, &plan); err != nil {
			return cli.GeneralError("parsing plan", err)
		}

		defs, err := parser.ParseFile(resolveString(execDefinitions, cfg.Definitions))
		if err != nil {
			return cli.DefinitionsError("parsing definitions", err)
		}

		dsn, err := cfg.DSN()
		if err != nil {
			return cli.ConfigError("resolving database", err)
		}
		db, err := sql.Open("postgres", dsn)
		if err != nil {
			return cli.DBConnectError("opening database", err)
		}
		defer db.Close()
		if err := db.PingContext(cmd.Context()); err != nil {
			return cli.DBConnectError("connecting to database", err)
		}

		reg, err := buildExecRegistry(defs, db)
		if err != nil {
			return cli.ConfigError("building registry", err)
		}

		objs, err := winnow.NewExecutor(reg).Resolve(cmd.Context(), &plan)
		if err != nil {
			return cli.GeneralError("resolving plan", err)
		}

		enc := json.NewEncoder(os.Stdout)
		for _, obj := range objs {
			if err := enc.Encode(obj); err != nil {
				return cli.GeneralError("encoding result", err)
			}
		}
		if !quiet {
			fmt.Fprintf(os.Stderr, "%d authorized records\n", len(objs))
		}

		return nil
	},
}

// buildExecRegistry attaches pgquery capabilities from the exec.tables
// config to each parsed type definition.
func buildExecRegistry(defs []parser.TypeDef, db *sql.DB) (*winnow.Registry, error) {
	b := winnow.NewRegistryBuilder()
	for _, def := range defs {
		mapping, ok := cfg.Exec.Tables[string(def.Tag)]
		if !ok {
			return nil, fmt.Errorf("no exec.tables entry for type %q", def.Tag)
		}
		table, columnList, ok := strings.Cut(mapping, ":")
		if !ok || table == "" || columnList == "" {
			return nil, fmt.Errorf("exec.tables entry for %q must be \"table:col1,col2\", got %q", def.Tag, mapping)
		}
		columns := strings.Split(columnList, ",")

		fields := make([]winnow.FieldDef, 0, len(def.Fields))
		for _, f := range def.Fields {
			if f.Relation != nil {
				fields = append(fields, winnow.Related(f.Name, *f.Relation))
			} else {
				fields = append(fields, winnow.Attribute(f.Name, f.Type))
			}
		}

		b.RegisterType(def.Tag, fields, pgquery.Provider(db, table, columns, scanRowMap(columns)))
	}
	return b.Build()
}

// scanRowMap scans any row shape into a map keyed by column name.
func scanRowMap(columns []string) pgquery.ScanFunc {
	return func(rows *sql.Rows) (any, error) {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		m := make(map[string]any, len(columns))
		for i, col := range columns {
			m[col] = values[i]
		}
		return m, nil
	}
}

func init() {
	execCmd.Flags().StringVar(&execDefinitions, "definitions", "", "path to definitions YAML file")
}
