// Command redlinectl inspects and drives a redline server, and runs the
// anchoring and conflict engine offline against local files.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"redline/internal/client"
	"redline/internal/config"

	"github.com/spf13/cobra"
)

var (
	serverURL    string
	token        string
	engineConfig string
	verbose      bool
)

var rootCmd = &cobra.Command{
	Use:           "redlinectl",
	Short:         "Suggestion anchoring and review from the command line",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", envOr("REDLINE_SERVER", "http://localhost:8080"), "redline server base URL")
	rootCmd.PersistentFlags().StringVar(&token, "token", os.Getenv("REDLINE_TOKEN"), "bearer token for the server")
	rootCmd.PersistentFlags().StringVar(&engineConfig, "engine-config", os.Getenv("ENGINE_CONFIG"), "engine YAML overlay for offline commands")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging on stderr")

	rootCmd.AddCommand(anchorCmd, conflictsCmd, listCmd, statsCmd, reviewCmd, pruneCmd, tokenCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func newAPIClient() *client.Client {
	return client.New(serverURL, client.WithToken(token))
}

func loadEngine() (*config.Engine, error) {
	return config.LoadEngine(engineConfig)
}

func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
