package cmd

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/codetrawl/codetrawl/internal/output"
	"github.com/codetrawl/codetrawl/internal/search"
)

type searchOptions struct {
	rootArg    string
	limit      int
	language   string
	pathPrefix string
	format     string
}

func newSearchCmd() *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the indexed codebase",
		Long: `Search runs a semantic query against the index, scoped to the branch
currently checked out. Content that only exists on other branches is never
returned.

Examples:
  codetrawl search "retry with backoff"
  codetrawl search "websocket handshake" --language go --limit 5
  codetrawl search "migration runner" --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(cmd, query, opts)
		},
	}

	cmd.Flags().StringVar(&opts.rootArg, "root", "", "Project root (default: current directory)")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", search.DefaultLimit, "Maximum number of results")
	cmd.Flags().StringVarP(&opts.language, "language", "l", "", "Filter by language (e.g. go, python)")
	cmd.Flags().StringVarP(&opts.pathPrefix, "path", "p", "", "Filter by path prefix")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")

	return cmd
}

func runSearch(cmd *cobra.Command, query string, opts searchOptions) error {
	e, err := newEnv(opts.rootArg, false)
	if err != nil {
		return err
	}
	defer e.close()

	searcher := search.NewSearcher(e.store, e.embedder, e.topo)
	results, err := searcher.Search(cmd.Context(), query, search.Options{
		Limit:      opts.limit,
		Language:   opts.language,
		PathPrefix: opts.pathPrefix,
	})
	if err != nil {
		return err
	}

	switch opts.format {
	case "json":
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(results)
	case "text", "":
		output.New(cmd.OutOrStdout()).Results(results)
		return nil
	default:
		return fmt.Errorf("unknown format %q (use text or json)", opts.format)
	}
}
