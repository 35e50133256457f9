package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/codetrawl/codetrawl/pkg/version"
)

func newVersionCmd() *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print the codetrawl version",
		Run: func(cmd *cobra.Command, args []string) {
			if verbose {
				info := version.Info()
				fmt.Fprintf(cmd.OutOrStdout(), "codetrawl %s\n  commit: %s\n  built:  %s\n  go:     %s\n",
					info.Version, info.Commit, info.Date, info.GoVersion)
				return
			}
			fmt.Fprintln(cmd.OutOrStdout(), version.String())
		},
	}

	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Show build details")
	return cmd
}
