// Package cmd implements the mimirctl command line: offline checks and
// resolution of rule documents, and publishing them to Redis.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rafaeljc/mimir/internal/logger"
	"github.com/rafaeljc/mimir/internal/ruledoc"
)

type rootOptions struct {
	logLevel string
}

// NewRootCmd builds the command tree. Tests build a fresh tree per case.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "mimirctl",
		Short:         "Mimir rule document tooling",
		Long:          `mimirctl validates rule documents, resolves keys against them offline and publishes them to Redis.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "warn", "log level (debug, info, warn, error)")

	root.AddCommand(
		newCheckCmd(opts),
		newResolveCmd(opts),
		newPushCmd(opts),
	)
	return root
}

// Execute runs the command tree against the process arguments.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(root.ErrOrStderr(), "Error:", err)
		return err
	}
	return nil
}

func (o *rootOptions) logger(cmd *cobra.Command) *slog.Logger {
	return logger.NewCLI(cmd.ErrOrStderr(), o.logLevel)
}

// loadFile reads and compiles a document from disk.
func loadFile(log *slog.Logger, path string) ([]byte, *ruledoc.Bundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	bundle, err := ruledoc.Load(data, ruledoc.Options{Logger: log})
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return data, bundle, nil
}
