// Package cmd contains the tuvan CLI commands.
package cmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/tuvan0/tuvan/internal/config"
	"github.com/tuvan0/tuvan/internal/log"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "tuvan",
	Short: "Tư vấn tuyển sinh - university admissions question answering",
	Long: `Tuvan answers natural-language questions about university admissions
in Vietnamese and English. Questions are routed to a pgvector knowledge
base or live web search, evidence is graded, and answers are checked for
groundedness before delivery.

Run "tuvan serve" to start the HTTP API, or "tuvan ask" for a one-shot
answer on the command line.`,
	SilenceUsage: true,
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
}

// newLogger builds the process logger honoring --verbose.
func newLogger() log.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return log.New(log.Config{Level: level})
}

// loadConfig loads and validates configuration for every command.
func loadConfig() (*config.Config, error) {
	return config.Load()
}
