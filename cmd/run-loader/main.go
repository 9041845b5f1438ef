// ============================================================================
// Run Loader - Main Entry Point
// ============================================================================
//
// File: cmd/run-loader/main.go
// Purpose: Application entry point and CLI initialization
//
// Usage:
//   ./run-loader --help              # Show help
//   ./run-loader --version           # Show version
//   ./run-loader run                 # Start the ingestion pool
//   ./run-loader status              # View configured runs
//
// ============================================================================

package main

import (
	"fmt"
	"os"

	"github.com/ChuLiYu/run-loader/internal/cli"
)

// Build-time version injection via ldflags.
var (
	version = "1.0.0"
	commit  = "dev"
	date    = "unknown"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "Fatal error: %v\n", r)
			os.Exit(1)
		}
	}()

	rootCmd := cli.BuildCLI()
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
