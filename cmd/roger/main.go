// Package main provides the entry point for the roger CLI and MCP server.
package main

import (
	"fmt"
	"os"

	"github.com/rogercare/roger-go/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
