// Package cmd wires the command line entrypoints of the executor service.
package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// Execute runs the root command; the process exit code reflects the result.
func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "asynctest",
		Short:         "asynctest executes automated API test tasks",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(newStartCmd())
	root.AddCommand(newVersionCmd())
	return root
}
