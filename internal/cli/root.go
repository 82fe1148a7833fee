// Package cli holds the quizgrade command tree.
package cli

import (
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/victornm/quizgrade/internal/config"
	"github.com/victornm/quizgrade/internal/server"
)

type rootFlags struct {
	configPath string
	logLevel   string
	logFormat  string
}

// Execute runs the CLI.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	f := &rootFlags{}

	cmd := &cobra.Command{
		Use:           "quizgrade",
		Short:         "Quiz sessions, submission grading and result disclosure",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadDotEnv(".env"); err != nil {
				return err
			}
			if f.configPath == "" {
				f.configPath = os.Getenv("CONFIG_PATH")
			}
			return setupLogger(f.logLevel, f.logFormat)
		},
	}

	cmd.PersistentFlags().StringVar(&f.configPath, "config", "", "path to YAML config (default $CONFIG_PATH)")
	cmd.PersistentFlags().StringVar(&f.logLevel, "log-level", "info", "debug, info, warn or error")
	cmd.PersistentFlags().StringVar(&f.logFormat, "log-format", "json", "json or text")

	cmd.AddCommand(newServeCmd(f))
	cmd.AddCommand(newMigrateCmd(f))
	cmd.AddCommand(newQuizCmd(f))
	return cmd
}

func setupLogger(level, format string) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("log level: %w", err)
	}

	opts := &slog.HandlerOptions{Level: lvl}

	var h slog.Handler
	switch strings.ToLower(format) {
	case "json":
		h = slog.NewJSONHandler(os.Stderr, opts)
	case "text":
		h = slog.NewTextHandler(os.Stderr, opts)
	default:
		return fmt.Errorf("unknown log format %q", format)
	}

	slog.SetDefault(slog.New(h))
	return nil
}

func loadConfig(f *rootFlags) (server.Config, error) {
	var c server.Config

	if f.configPath == "" {
		return c, fmt.Errorf("config path not set, use --config or CONFIG_PATH")
	}

	if err := config.Load(f.configPath, &c); err != nil {
		return c, fmt.Errorf("load config: %w", err)
	}

	return c, nil
}
