package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/gdpoller-go/internal/config"
	"github.com/tonimelisma/gdpoller-go/internal/logging"
)

// version is set at build time via ldflags.
var version = "dev"

var (
	flagVerbose bool
	flagQuiet   bool
	flagPIDFile string
)

// newRootCmd builds the daemon's single command: run until signalled,
// reading settings from the positional path or the standard locations.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "gdpoller [settings.yaml]",
		Short:   "Google Drive activity poller",
		Long:    "Polls the Google Drive Activity API and fans file changes out to media-server receivers.",
		Version: version,
		Args:    cobra.MaximumNArgs(1),
		// Silence Cobra's default error/usage printing; we handle it ourselves.
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := ""
			if len(args) == 1 {
				path = args[0]
			}

			return runDaemon(cmd.Context(), path)
		},
	}

	cmd.Flags().BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	cmd.Flags().BoolVarP(&flagQuiet, "quiet", "q", false, "suppress informational output")
	cmd.Flags().StringVar(&flagPIDFile, "pidfile", "", "PID file path (guards against a second instance)")

	return cmd
}

// buildLogger creates the process logger from the settings file's logging
// section. --verbose and --quiet override the configured level because CLI
// flags always win.
func buildLogger(settings *config.Settings) *slog.Logger {
	level := settings.Logging.Level

	if flagVerbose {
		level = "debug"
	}

	if flagQuiet {
		level = "error"
	}

	return logging.New(logging.Options{
		Level:      level,
		Patterns:   settings.Logging.RedactedPatterns,
		Substitute: settings.Logging.RedactedSubstitute,
	})
}

// exitOnError prints a user-friendly error message to stderr and exits.
func exitOnError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
