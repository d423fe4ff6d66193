// Package cli implements the digest command line tool.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"video-digest/internal/platform/config"
	"video-digest/internal/platform/logger"
)

var (
	verbose    bool
	configPath string
	settings   *config.Settings
	log        *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "digest",
	Short: "Summarize YouTube videos chapter by chapter",
	Long: `Digest fetches the captions of a YouTube video, splits the transcript into
time-based chapters and summarizes each chapter with a language model.

Chapters that cannot be summarized fall back to an extract of the transcript,
so a summary is always produced when captions exist.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = config.Load()

		s, err := config.LoadSettings(configPath)
		if err != nil {
			return err
		}
		settings = s

		level := s.Server.LogLevel
		if verbose {
			level = "debug"
		}
		log = logger.NewWithWriter(cmd.ErrOrStderr(), level, "text")
		return nil
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().
		BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().
		StringVarP(&configPath, "config", "c", os.Getenv("CONFIG_FILE"), "YAML settings file")
}

func printf(w io.Writer, format string, args ...any) {
	_, _ = fmt.Fprintf(w, format, args...)
}
