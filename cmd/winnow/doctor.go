package main

import (
	"database/sql"
	"os"

	"github.com/spf13/cobra"

	"github.com/pthm/winnow/internal/cli"
	"github.com/pthm/winnow/internal/doctor"
)

var (
	doctorDefinitions string
	doctorVerbose     bool
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that winnow is set up correctly",
	Long: `Check that winnow is set up correctly.

Runs health checks across the deployment: the registry definitions
parse and build, the configured table mappings line up with registered
types, the database is reachable, and every mapped table exists with
its declared columns.

Exits non-zero if any check fails.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		var db *sql.DB
		if dsn, err := cfg.DSN(); err == nil {
			db, err = sql.Open("postgres", dsn)
			if err != nil {
				return cli.DBConnectError("opening database", err)
			}
			defer db.Close()
		}

		d := doctor.New(db, resolveString(doctorDefinitions, cfg.Definitions), cfg.Exec.Tables)
		report, err := d.Run(cmd.Context())
		if err != nil {
			return cli.GeneralError("running checks", err)
		}

		report.Print(os.Stdout, doctorVerbose)
		if report.HasErrors() {
			return &cli.ExitError{Code: cli.ExitGeneral, Message: "health checks failed"}
		}
		return nil
	},
}

func init() {
	doctorCmd.Flags().StringVar(&doctorDefinitions, "definitions", "", "path to definitions YAML file")
	doctorCmd.Flags().BoolVarP(&doctorVerbose, "verbose", "v", false, "show check details")
}
