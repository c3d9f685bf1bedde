package cmd

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Emit debug logs")
}

var rootCmd = &cobra.Command{
	Use:   "toolgate",
	Short: "Tool-calling proxy for OpenAI-compatible backends",
	Long: `toolgate sits in front of an OpenAI-compatible API, injects tools
discovered from MCP servers, and resolves tool calls before the response
reaches the client.

Examples:
  toolgate serve                        # run the proxy
  toolgate serve --port 9000 --hybrid   # synthetic streaming enabled
  toolgate tools                        # list discovered tools`,
	CompletionOptions: cobra.CompletionOptions{DisableDefaultCmd: true},
}

var debug bool

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newLogger builds the process logger honoring --debug.
func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
