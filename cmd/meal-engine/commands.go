package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	"macro-meal-engine/internal/app"
	"macro-meal-engine/internal/database"
	"macro-meal-engine/internal/httpapi"
	"macro-meal-engine/internal/metrics"
	"macro-meal-engine/internal/planner"
	"macro-meal-engine/internal/tui"

	"github.com/spf13/cobra"
)

func serveCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API for one session",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			logger := flags.logger(cfg)

			engine, err := app.Open(cfg, logger)
			if err != nil {
				return err
			}
			defer engine.Close()

			server := httpapi.NewServer(cfg, engine, engine.Collector().Handler(), logger.With("component", "http"))
			defer server.Close()
			engine.Start()

			srv := &http.Server{
				Addr:              ":" + cfg.Port,
				Handler:           server.Handler(),
				ReadHeaderTimeout: 10 * time.Second,
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			errCh := make(chan error, 1)
			go func() {
				logger.Info("HTTP API listening", "port", cfg.Port, "version", Version)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("server failed: %w", err)
				}
			case <-ctx.Done():
			}

			logger.Info("Shutting down server...")
			// Event streams stay open until their clients are released.
			server.Close()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("server forced to shutdown: %w", err)
			}
			return nil
		},
	}
}

func tuiCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Run the terminal UI for one session",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}

			ui := tui.New()
			logger := app.NewLogger(cfg.LogLevel, ui.LogWriter())
			slog.SetDefault(logger)
			ui.SetLogger(logger.With("component", "tui"))

			engine, err := app.Open(cfg, logger)
			if err != nil {
				return err
			}
			defer engine.Close()
			engine.Start()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return ui.Run(ctx, engine)
		},
	}
}

func generateCmd(flags *globalFlags) *cobra.Command {
	var (
		params planner.GenerationParameters
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Generate one meal plan and print it",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			cfg.GenerateOnStart = false

			engine, err := app.Open(cfg, flags.logger(cfg))
			if err != nil {
				return err
			}
			defer engine.Close()

			plan, err := engine.GeneratePlan(cmd.Context(), params)
			if err != nil {
				return fmt.Errorf("generation failed: %w", err)
			}

			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(plan)
			}
			printPlan(cmd.OutOrStdout(), plan)
			return nil
		},
	}

	cmd.Flags().IntVar(&params.Calories, "calories", 2000, "Daily calorie target")
	cmd.Flags().StringVar(&params.Exclusions, "exclusions", "", "Dietary exclusions, free text")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the plan as JSON")
	return cmd
}

func chatCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "chat MESSAGE",
		Short: "Send one message to the intake assistant",
		Long: `Send one message to the intake assistant and print its reply along with
the generation parameters it extracted, if any. A URL is fetched and its text
is used as the message.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			cfg.GenerateOnStart = false

			engine, err := app.Open(cfg, flags.logger(cfg))
			if err != nil {
				return err
			}
			defer engine.Close()

			res, err := engine.Submit(cmd.Context(), strings.Join(args, " "))
			if err != nil {
				return fmt.Errorf("chat failed: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, res.Reply)
			if res.Params != nil {
				exclusions := res.Params.Exclusions
				if exclusions == "" {
					exclusions = "none"
				}
				fmt.Fprintf(out, "\nTarget: %d kcal, exclusions: %s\n", res.Params.Calories, exclusions)
			}
			return nil
		},
	}
}

func metricsCleanupCmd(flags *globalFlags) *cobra.Command {
	var (
		days   int
		report bool
	)

	cmd := &cobra.Command{
		Use:   "metrics-cleanup",
		Short: "Remove old usage records",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			flags.logger(cfg)

			db, err := database.NewDB(cfg.DatabasePath)
			if err != nil {
				return fmt.Errorf("failed to open usage database: %w", err)
			}
			defer db.Close()
			store := metrics.NewStore(db.SQL)

			affected, err := store.Cleanup(cmd.Context(), days)
			if err != nil {
				return fmt.Errorf("cleanup failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Successfully removed %d old metric records.\n", affected)

			if report {
				usage, err := store.GetAgentUsage(cmd.Context(), days)
				if err != nil {
					return err
				}
				printAgentUsage(cmd.OutOrStdout(), usage)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 30, "Keep records for the last N days")
	cmd.Flags().BoolVar(&report, "report", false, "Print per-agent usage of the kept records")
	return cmd
}

func tokenCmd(flags *globalFlags) *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			token, err := httpapi.MintToken(cfg.APIJWTSecret, subject, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "coach", "Token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "Token lifetime")
	return cmd
}

func printPlan(w io.Writer, plan *planner.MealPlan) {
	for _, slot := range planner.Slots {
		fmt.Fprintf(w, "%s\n", strings.ToUpper(string(slot)))
		for i, o := range plan.Options(slot) {
			fmt.Fprintf(w, "  %d. %s (%.0f kcal, P %.0fg, C %.0fg, F %.0fg)\n",
				i+1, o.Name, o.Macros.TotalCalories, o.Macros.ProteinGrams, o.Macros.CarbGrams, o.Macros.FatGrams)
			for _, ing := range o.Ingredients {
				fmt.Fprintf(w, "     - %s: %.0fg\n", ing.Item, ing.Grams)
			}
		}
		fmt.Fprintln(w)
	}
	if sum := plan.TargetDailySummary; sum != nil {
		fmt.Fprintln(w, "DAILY TARGET")
		for _, share := range planner.MacroBreakdown(*sum) {
			fmt.Fprintf(w, "  %-8s %4.0fg %5.0f kcal (target %d%%)\n", share.Name, share.Grams, share.Calories, share.TargetPercent)
		}
	}
}

func printAgentUsage(w io.Writer, usage []metrics.AgentUsage) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "AGENT\tEXECUTIONS\tTOKENS\tAVG LATENCY")
	for _, u := range usage {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%dms\n", u.AgentName, u.Executions, u.TotalTokens, u.AvgLatencyMS)
	}
	tw.Flush()
}
