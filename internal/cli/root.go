// Package cli holds the pulsetrack commands.
package cli

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lborres/pulsetrack"
	"github.com/lborres/pulsetrack/config"
)

var configPath string

func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "pulsetrack",
		Short: "PulseTrack access and notification backend",
		Long: `pulsetrack serves the authentication and notification API, runs the
notifier that turns queued requests into stored and delivered notifications,
and applies the database schema.`,
		Version:       pulsetrack.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&configPath, "config", "pulsetrack.yaml", "config file, skipped when missing")

	root.AddCommand(
		newServeCommand(),
		newNotifierCommand(),
		newMigrateCommand(),
		newSendCommand(),
		newTestMessageCommand(),
	)
	return root
}

// ExecuteContext runs the root command.
func ExecuteContext(ctx context.Context) error {
	return NewRootCommand().ExecuteContext(ctx)
}

func loadConfig() (config.Config, error) {
	return config.Load(configPath)
}

func newLogger(w io.Writer, cfg config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if strings.EqualFold(cfg.LogFormat, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}
