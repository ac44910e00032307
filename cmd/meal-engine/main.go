// Package main provides the meal-engine binary: the HTTP API, the terminal
// UI and one-shot planning commands for a single meal planning session.
package main

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"

	"macro-meal-engine/internal/app"
	"macro-meal-engine/internal/config"

	"github.com/spf13/cobra"
)

const (
	Version   = "0.3.0"
	BuildTime = "dev"
	appName   = "meal-engine"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// globalFlags are shared by every subcommand.
type globalFlags struct {
	configPath string
	logLevel   string
}

func rootCmd() *cobra.Command {
	var flags globalFlags

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Macro meal plan engine",
		Long: `meal-engine keeps one meal planning session: a calorie target and dietary
exclusions, set by hand or extracted from pasted client onboarding data, and a
generated daily plan of five options per meal.

Configuration comes from the environment (and an optional .env file); --config
points at a YAML file providing the base values.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	cmd.AddCommand(
		serveCmd(&flags),
		tuiCmd(&flags),
		generateCmd(&flags),
		chatCmd(&flags),
		metricsCleanupCmd(&flags),
		tokenCmd(&flags),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Printf("%s version %s (build: %s)\n", appName, Version, BuildTime)
			},
		},
	)
	return cmd
}

// load reads the configuration, applying the global flags on top.
func (f *globalFlags) load() (*config.Config, error) {
	if f.configPath != "" {
		if err := os.Setenv("MEAL_ENGINE_CONFIG", f.configPath); err != nil {
			return nil, fmt.Errorf("failed to set config path: %w", err)
		}
	}
	cfg, err := config.NewFromEnv()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if f.logLevel != "" {
		cfg.LogLevel = f.logLevel
	}
	return cfg, nil
}

func (f *globalFlags) logger(cfg *config.Config) *slog.Logger {
	logger := app.NewLogger(cfg.LogLevel, os.Stderr)
	slog.SetDefault(logger)
	return logger
}
