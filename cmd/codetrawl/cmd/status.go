package cmd

import (
	"github.com/spf13/cobra"

	"github.com/codetrawl/codetrawl/internal/index"
	"github.com/codetrawl/codetrawl/internal/output"
)

func newStatusCmd() *cobra.Command {
	var rootArg string

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show index status for the project",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv(rootArg, false)
			if err != nil {
				return err
			}
			defer e.close()

			out := output.New(cmd.OutOrStdout())
			ctx := cmd.Context()

			exists, err := e.store.CollectionExists(ctx)
			if err != nil {
				return err
			}
			if !exists {
				out.Warning("No index found. Run 'codetrawl index' first.")
				return nil
			}

			info, err := e.store.CollectionInfo(ctx)
			if err != nil {
				return err
			}
			out.Statusf("📦", "collection %s: %d points, %d dimensions",
				info.Name, info.PointCount, info.VectorSize)

			mode, err := e.store.GetState(ctx, index.StateKeyMode)
			if err == nil && mode != "" {
				out.Statusf("", "index mode: %s", mode)
			}

			if e.topo != nil && e.topo.IsRepo(ctx) {
				branch, berr := e.topo.CurrentBranch(ctx)
				if berr == nil {
					out.Statusf("", "current branch: %s", branch)
					mark, merr := e.store.GetState(ctx, index.WatermarkKey(branch))
					if merr == nil && mark != "" {
						out.Statusf("", "last indexed commit: %.12s", mark)
					} else {
						out.Statusf("", "branch not yet indexed")
					}
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&rootArg, "root", "", "Project root (default: current directory)")
	return cmd
}
