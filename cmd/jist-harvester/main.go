package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Adda-Baaj/jist-harvester/internal/config"
	"github.com/Adda-Baaj/jist-harvester/internal/logger"
	"github.com/Adda-Baaj/jist-harvester/internal/server"
)

func main() {
	// Argument and flag errors surface before any command builds its own logger.
	var cli logger.Logger = logger.NopLogger{}
	if zl, err := logger.New("info", "json"); err == nil {
		cli = zl
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, newRootCmd(), cli)
	stop()
	_ = cli.Sync()
	os.Exit(code)
}

func newRootCmd() *cobra.Command {
	var envFile string

	root := &cobra.Command{
		Use:           "jist-harvester",
		Short:         "Harvest news feeds into the jist article pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading JIST_* variables")

	root.AddCommand(runCmd(&envFile), serveCmd(&envFile))
	return root
}

// execute runs root and reports a failure through log, returning the process exit code.
func execute(ctx context.Context, root *cobra.Command, log logger.Logger) int {
	cmd, err := root.ExecuteContextC(ctx)
	if err == nil {
		return 0
	}
	fields := map[string]any{"error": err.Error()}
	if cmd != nil {
		fields["command"] = cmd.CommandPath()
	}
	log.ErrorObj("command failed", "cli_error", fields)
	return 1
}

func runCmd(envFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run <feeds-file>",
		Short: "Perform one ingestion run and print its tallies",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), *envFile, args[0], func(ctx context.Context, a *app, _ *config.Config, log logger.Logger) error {
				outcome, err := a.runner.Run(ctx)
				if outcome != nil {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					if encErr := enc.Encode(outcome.Snapshot()); encErr != nil {
						log.WarnObj("print tallies failed", "print_error", map[string]any{"error": encErr.Error()})
					}
				}
				return err
			})
		},
	}
}

func serveCmd(envFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve <feeds-file>",
		Short: "Serve the run trigger, health and metrics endpoints",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), *envFile, args[0], func(ctx context.Context, a *app, cfg *config.Config, log logger.Logger) error {
				return server.New(ctx, a.runner, log).ListenAndServe(ctx, cfg.ListenAddr)
			})
		},
	}
}

// withApp loads config, builds the logger and app, runs fn and tears everything down.
func withApp(ctx context.Context, envFile, feedsPath string, fn func(context.Context, *app, *config.Config, logger.Logger) error) error {
	cfg, err := config.Load(envFile)
	if err != nil {
		return err
	}

	zl, err := logger.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return err
	}
	defer func() { _ = zl.Sync() }()

	if err := cfg.Validate(); err != nil {
		zl.ErrorObj("invalid configuration", "config_error", map[string]any{"error": err.Error()})
		return err
	}

	a, err := newApp(ctx, cfg, feedsPath, zl)
	if err != nil {
		zl.ErrorObj("startup failed", "startup_error", map[string]any{"error": err.Error()})
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			zl.WarnObj("shutdown cleanup failed", "shutdown_error", map[string]any{"error": err.Error()})
		}
	}()

	return fn(ctx, a, cfg, zl)
}
