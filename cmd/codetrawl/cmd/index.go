package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/codetrawl/codetrawl/internal/output"
)

func newIndexCmd() *cobra.Command {
	var (
		rootArg string
		plain   bool
		limit   int
	)

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Index the project into the vector store",
		Long: `Index reconciles the vector store against the working tree. Unchanged
files are skipped, modified files are re-embedded, and files absent from the
current branch are hidden rather than deleted, so switching back is instant.

Examples:
  codetrawl index
  codetrawl index --root ../other-project
  codetrawl index --plain`,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := newEnv(rootArg, plain)
			if err != nil {
				return err
			}
			defer e.close()

			out := output.New(cmd.OutOrStdout())
			out.Statusf("🔍", "Indexing %s", e.root)

			stats, err := e.runner(limit).Run(cmd.Context())
			if err != nil {
				return err
			}

			if stats.Branch != "" {
				out.Statusf("", "branch %s @ %.12s", stats.Branch, stats.Commit)
			}
			out.Statusf("", "scanned %d files: %d up to date, %d new, %d modified, %d deleted",
				stats.Scanned, stats.UpToDate, stats.Missing, stats.Modified, stats.Deleted)
			out.Statusf("", "chunks: %d embedded, %d revealed, %d hidden, %d unchanged",
				stats.Files.Embedded, stats.Files.Revealed, stats.Files.Hidden, stats.Files.Unchanged)
			out.Successf("Index complete in %s", stats.Duration.Round(time.Millisecond))
			return nil
		},
	}

	cmd.Flags().StringVar(&rootArg, "root", "", "Project root (default: current directory)")
	cmd.Flags().BoolVar(&plain, "plain", false, "Index without git branch metadata")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum files to process this run (0 = unlimited)")

	return cmd
}
