package main

import (
	"github.com/spf13/cobra"

	"github.com/pthm/winnow/internal/cli"
)

var (
	// Global state set during PersistentPreRunE
	cfg        *cli.Config
	configPath string

	// Persistent flags
	cfgFile string
	quiet   bool
)

var rootCmd = &cobra.Command{
	Use:   "winnow",
	Short: "Authorization filter-plan tooling",
	Long: `winnow - Authorization filter-plan tooling

Winnow compiles authorization policy results into backend-agnostic
filter plans. This CLI validates registry definitions, renders compiled
plans, and resolves plans against PostgreSQL for debugging.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "version" {
			return nil
		}

		var err error
		cfg, configPath, err = cli.LoadConfig(cfgFile)
		if err != nil {
			return cli.ConfigError("loading configuration", err)
		}

		return nil
	},
	SilenceUsage:  true, // Don't show usage on errors
	SilenceErrors: true, // We handle errors ourselves
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: auto-discover winnow.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&quiet, "quiet", "q", false, "suppress non-error output")

	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(explainCmd)
	rootCmd.AddCommand(execCmd)
	rootCmd.AddCommand(doctorCmd)
	rootCmd.AddCommand(versionCmd)
}

// resolveString returns the first non-empty value: flag over config.
func resolveString(flagValue, configValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return configValue
}
