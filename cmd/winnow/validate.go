package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/pthm/winnow/internal/cli"
	"github.com/pthm/winnow/pkg/parser"
)

var validateDefinitions string

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate registry definitions",
	Long:  `Validate a registry definitions YAML file: field uniqueness, relation targets, join keys.`,
	Example: `  # Validate a specific definitions file
  winnow validate --definitions winnow.types.yaml

  # Validate using config file settings
  winnow validate`,
	RunE: func(cmd *cobra.Command, args []string) error {
		path := resolveString(validateDefinitions, cfg.Definitions)

		if _, err := os.Stat(path); err != nil {
			return cli.DefinitionsError(fmt.Sprintf("definitions not found: %s", path), nil)
		}

		defs, err := parser.ParseFile(path)
		if err != nil {
			return cli.DefinitionsError("parsing definitions", err)
		}

		if _, err := parser.BuildRegistry(defs); err != nil {
			return cli.DefinitionsError("building registry", err)
		}

		if !quiet {
			color.New(color.FgGreen).Printf("Definitions are valid. Found %d types:\n", len(defs))
			for _, def := range defs {
				relations := 0
				for _, f := range def.Fields {
					if f.Relation != nil {
						relations++
					}
				}
				fmt.Printf("  - %s (%d fields, %d relations)\n", def.Tag, len(def.Fields), relations)
			}
		}

		return nil
	},
}

func init() {
	validateCmd.Flags().StringVar(&validateDefinitions, "definitions", "", "path to definitions YAML file")
}
