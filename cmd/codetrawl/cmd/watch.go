package cmd

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/codetrawl/codetrawl/internal/output"
	"github.com/codetrawl/codetrawl/internal/watcher"
)

func newWatchCmd() *cobra.Command {
	var (
		rootArg string
		plain   bool
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch the project and reindex on change",
		Long: `Watch performs an initial index, then re-reconciles after every
debounced burst of filesystem changes. Branch switches are picked up on the
next change because each run re-resolves the checked-out branch.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv(rootArg, plain)
			if err != nil {
				return err
			}
			defer e.close()

			out := output.New(cmd.OutOrStdout())
			runner := e.runner(0)

			if _, err := runner.Run(cmd.Context()); err != nil {
				return err
			}
			out.Successf("Initial index complete, watching %s", e.root)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			w := watcher.New(e.root, e.cfg.Watch.Debounce, func(ctx context.Context) error {
				_, err := runner.Run(ctx)
				return err
			})
			err = w.Run(ctx)
			if errors.Is(err, context.Canceled) {
				out.Status("", "watch stopped")
				return nil
			}
			return err
		},
	}

	cmd.Flags().StringVar(&rootArg, "root", "", "Project root (default: current directory)")
	cmd.Flags().BoolVar(&plain, "plain", false, "Index without git branch metadata")

	return cmd
}
