// Package cli wires the pipeline engines into runnable subcommands.
// Every command is a single pass: it loads config, runs one engine
// against the database, logs a summary and exits.
package cli

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Sinisterchilll/cs-analytics/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "cs-analytics",
	Short: "Customer support chat sync and classification pipeline",
	Long: "cs-analytics mirrors support conversations from the chat platform\n" +
		"into Postgres and classifies customer messages by language, category\n" +
		"and routing tag. Each subcommand runs one pipeline pass.",
	SilenceUsage:  true,
	SilenceErrors: true,
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Help()
	},
}

// Execute runs the root command. Errors are logged here so main stays a
// one-liner.
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		slog.Error("run failed", "error", err)
		return err
	}
	return nil
}

func init() {
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(reconcileCmd)
	rootCmd.AddCommand(backfillCmd)
	rootCmd.AddCommand(classifyCmd)
	rootCmd.AddCommand(serveCmd)
}

// loadConfig reads the environment and installs the JSON logger before
// anything else runs.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	setupLogging(cfg.LogLevel)
	return cfg, nil
}

func setupLogging(level string) {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}
