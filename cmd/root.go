// Package cmd wires the copilot's packages behind the steward CLI: an
// interactive chat surface, the hold-queue batch runner, and queue
// inspection and decision commands.
package cmd

import (
	"github.com/spf13/cobra"
)

var (
	flagConfig  string
	flagProject string
)

var rootCmd = &cobra.Command{
	Use:   "steward",
	Short: "Steward - a deliberating project-management copilot",
	Long: `Steward is a project-management copilot that deliberates with an
ensemble of personas before answering, and holds side-effecting actions in a
graduated-autonomy queue until trust is earned.`,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default: layered steward.yaml lookup)")
	rootCmd.PersistentFlags().StringVarP(&flagProject, "project", "p", "default", "project the command operates on")
}

func Execute() error {
	return rootCmd.Execute()
}
