// Command flowd runs the learning-flow engine: the background worker,
// schema migrations and a small operator CLI over the use cases.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version info set via ldflags at build time.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "flowd",
		Short:         "Learning-flow engine",
		Long:          "flowd assigns learning flows, processes learner interactions and watches deadlines.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newVersionCmd())
	cmd.AddCommand(newWorkerCmd())
	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newAssignCmd())
	cmd.AddCommand(newInteractCmd())
	cmd.AddCommand(newTransitionCmd())
	cmd.AddCommand(newDeleteCmd())
	cmd.AddCommand(newProgressCmd())
	cmd.AddCommand(newListCmd())
	cmd.AddCommand(newDeadlineCmd())
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "flowd %s (commit: %s, built: %s)\n", Version, Commit, Date)
		},
	}
}

func execute(cmd *cobra.Command) int {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(execute(newRootCmd()))
}
