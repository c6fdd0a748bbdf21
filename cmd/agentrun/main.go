// Package main provides the CLI entry point for agentrun, an interactive
// LLM agent runtime: a turn-oriented agent loop, streaming chat clients
// for Anthropic- and OpenAI-style wire protocols, and PTY/SSH-backed
// interactive shell sessions with marker-based completion detection.
//
// # Basic usage
//
// Start an interactive session:
//
//	agentrun chat --provider anthropic --workspace .
//
// Run the persisted watch-trigger daemon:
//
//	agentrun watch run --name tests --check "go test ./..." --every 1h --db ~/.agentrun/watch.db
//
// Start the local mTLS control endpoint:
//
//	agentrun control serve --certs ~/.agentrun/certs
package main

import (
	"fmt"
	"log/slog"
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
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command execution failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd creates the root command with all subcommands attached.
// Separated from main() so tests can exercise it without a live process.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "agentrun",
		Short: "agentrun - interactive LLM agent runtime",
		Long: `agentrun drives an interactive coding agent against Anthropic or OpenAI
models, with a fixed built-in tool set (run_command, view, str_replace,
create, insert, generate_code, smart_search_code) executed through a
persistent local or remote shell session.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}

	rootCmd.AddCommand(
		buildChatCmd(),
		buildWatchCmd(),
		buildControlCmd(),
	)

	return rootCmd
}
