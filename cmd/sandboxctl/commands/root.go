// Package commands implements the sandboxctl command tree.
package commands

import (
	"github.com/spf13/cobra"
)

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sandboxctl",
		Short: "Operate a sandbox-routed worker fleet",
		Long: `sandboxctl enqueues money-transfer tasks, optionally tagged with a
routing key, and inspects the routing rules the fleet decides with.

Configuration is read from the environment and from a .env file in the
working directory, using the same variables as the worker.`,
		SilenceUsage: true,
	}

	cmd.AddCommand(NewEnqueueCmd())
	cmd.AddCommand(NewRulesCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}

// Execute runs the root command
func Execute() error {
	return NewRootCmd().Execute()
}
