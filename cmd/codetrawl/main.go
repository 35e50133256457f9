// Package main provides the entry point for the codetrawl CLI.
package main

import (
	"os"

	"github.com/codetrawl/codetrawl/cmd/codetrawl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
