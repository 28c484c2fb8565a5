package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/pthm/winnow"
	"github.com/pthm/winnow/internal/cli"
	"github.com/pthm/winnow/pkg/explain"
)

var explainValidateOnly bool

var explainCmd = &cobra.Command{
	Use:   "explain <plan.json>",
	Short: "Render a compiled filter plan",
	Long:  `Render a compiled filter plan (JSON) as tables: one per branch, with requests, constraints, and resolve order.`,
	Example: `  # Render a plan captured from a compiler run
  winnow explain plan.json

  # Only check plan invariants
  winnow explain --check plan.json`,
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

		if err := plan.Validate(); err != nil {
			color.New(color.FgRed).Fprintln(os.Stderr, "plan is invalid")
			return cli.GeneralError("validating plan", err)
		}

		if explainValidateOnly {
			if !quiet {
				color.New(color.FgGreen).Printf("Plan is valid: %d branches\n", len(plan.ResultSets))
			}
			return nil
		}

		f := explain.NewFormatter()
		if cfg.Explain.MaxWidth > 0 {
			f.MaxWidth = cfg.Explain.MaxWidth
		}
		fmt.Print(f.Plan(&plan))

		return nil
	},
}

func init() {
	explainCmd.Flags().BoolVar(&explainValidateOnly, "check", false, "only check plan invariants, do not render")
}
