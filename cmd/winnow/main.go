// Package main provides a CLI for inspecting winnow filter plans and
// registry definitions.
//
// The CLI supports:
//   - validate: Check a registry definitions YAML file
//   - explain: Render a compiled filter plan as tables
//   - exec: Resolve a filter plan against PostgreSQL
//   - doctor: Health-check the deployment end to end
//
// This tool is for offline development and debugging; applications use
// the winnow library directly.
//
// Usage:
//
//	winnow [flags] <command>
//
// Commands that need database access (exec) require database.url in
// winnow.yaml or WINNOW_DATABASE_URL.
package main

import (
	"os"

	"github.com/pthm/winnow/internal/cli"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		cli.ExitWithError(err)
	}
	os.Exit(cli.ExitSuccess)
}
