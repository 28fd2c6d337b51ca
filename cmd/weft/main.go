// Package main provides the CLI entry point for the weft multi-channel
// AI agent runtime. Grounded on the teacher's cmd/nexus/main.go: a
// cobra root command assembled by a buildRootCmd helper (testable
// without invoking os.Exit), build-info vars injected by ldflags, and
// one buildXCmd function per subcommand group living in its own file.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

// Build information, populated by ldflags during release builds:
//
//	go build -ldflags "-X main.version=v0.1.0 -X main.commit=$(git rev-parse HEAD)"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"

	configPath string
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	rootCmd := buildRootCmd()
	if err := rootCmd.Execute(); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

// buildRootCmd assembles the root command and every subcommand group.
// Separated from main so tests can exercise the command tree without
// calling os.Exit.
func buildRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:          "weft",
		Short:        "weft - multi-channel AI agent runtime",
		Long:         `weft routes messages from chat channels through a tiered LLM pipeline, dispatches tool calls, and keeps per-agent session and memory state.`,
		Version:      fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage: true,
	}
	// Resolution precedence is CLI > env > file: the WEFT_CONFIG env var
	// moves the default, and an explicit --config flag overrides both.
	defaultConfig := os.Getenv("WEFT_CONFIG")
	if defaultConfig == "" {
		defaultConfig = "weft.yaml"
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfig, "Path to YAML or JSON configuration file")

	rootCmd.AddCommand(
		buildAgentCmd(),
		buildGatewayCmd(),
		buildStatusCmd(),
		buildChannelsCmd(),
		buildCronCmd(),
		buildSessionsCmd(),
		buildMemoryCmd(),
		buildConfigCmd(),
		buildMCPCmd(),
		buildMCPServerCmd(),
		buildOnboardCmd(),
		buildSecurityCmd(),
		buildCompletionsCmd(),
	)

	return rootCmd
}
