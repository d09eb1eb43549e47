// Package cli implements the hord command line.
package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// Execute runs the root command. An interrupt cancels the running
// optimization, which still saves what was evaluated.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "hord",
		Short:        "Surrogate-based hyperparameter search (RBF + DYCORS)",
		SilenceUsage: true,
	}

	cmd.AddCommand(runCmd())
	cmd.AddCommand(historyCmd())

	return cmd
}
