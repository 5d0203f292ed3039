// Command creditctl runs operator tasks against the credit engine's
// infrastructure.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"creditengine/internal/app"
	"creditengine/internal/platform/config"
	"creditengine/internal/platform/logger"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "creditctl",
		Short:         "Operator tooling for the credit decision engine",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(relayCmd())
	rootCmd.AddCommand(backfillFairnessCmd())
	rootCmd.AddCommand(tokenCmd())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// setup loads configuration from the environment.
func setup() (config.Config, *slog.Logger, error) {
	cfg, err := config.FromEnv()
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger.New(cfg.Log), nil
}

// withApp builds the engine, runs fn and releases resources.
func withApp(ctx context.Context, fn func(*app.App) error) error {
	cfg, log, err := setup()
	if err != nil {
		return err
	}
	engine, err := app.New(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer func() {
		if err := engine.Close(); err != nil {
			log.Warn("failed to release resources", "error", err)
		}
	}()
	return fn(engine)
}
