package cmd

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/codetrawl/codetrawl/internal/lifecycle"
	"github.com/codetrawl/codetrawl/internal/mcp"
	"github.com/codetrawl/codetrawl/internal/search"
)

func newServeCmd() *cobra.Command {
	var rootArg string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve branch-scoped search over MCP (stdio)",
		Long: `Serve exposes the index to AI clients over the Model Context Protocol.
The project must already be indexed; run 'codetrawl index' first.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv(rootArg, false)
			if err != nil {
				return err
			}
			defer e.close()

			searcher := search.NewSearcher(e.store, e.embedder, e.topo)
			server, err := mcp.NewServer(searcher, e.store, lifecycle.NewQueryTracker(), e.root)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return server.Serve(ctx)
		},
	}

	cmd.Flags().StringVar(&rootArg, "root", "", "Project root (default: current directory)")
	return cmd
}
