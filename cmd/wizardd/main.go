// Package main provides the CLI entry point for wizardd, the worker-pool
// backend behind the retrieval-augmented agent loop: it polls a task
// queue, runs "agent-run" tasks through the streaming agent loop, and
// reports results back via the callback protocol.
//
// # Basic Usage
//
// Start the worker pool and its HTTP task-queue surface:
//
//	wizardd serve --workers 4
//
// Print build information:
//
//	wizardd version
//
// # Configuration
//
// Configuration layers defaults, an optional YAML file named by
// WIZARDD_CONFIG, and WIZARDD_-prefixed environment-variable overrides
// (see internal/config.Load).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags during build.
//
//	go build -ldflags "-X main.version=v1.0.0 -X main.commit=$(git rev-parse HEAD)"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := buildRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func buildRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "wizardd",
		Short:         "Retrieval-augmented agent loop worker pool",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.AddCommand(buildServeCmd(), buildVersionCmd())
	return root
}

func buildVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Printf("wizardd %s (commit %s, built %s)\n", version, commit, date)
			return nil
		},
	}
}
