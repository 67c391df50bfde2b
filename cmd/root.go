package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/grants-cli/internal/config"
	"github.com/sells-group/grants-cli/internal/tracing"
)

var (
	cfg            *config.Config
	shutdownTracer = func(context.Context) error { return nil }
)

var rootCmd = &cobra.Command{
	Use:          "grants-cli",
	Short:        "Federal grants extract ingestion",
	Long:         "Downloads the daily federal grants extract, reconciles opportunities into the catalog, and serves them over HTTP.",
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		c, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = c

		if err := config.InitLogger(cfg.Log); err != nil {
			return fmt.Errorf("init logger: %w", err)
		}

		shutdown, err := tracing.Init(cfg.Tracing)
		if err != nil {
			return fmt.Errorf("init tracing: %w", err)
		}
		shutdownTracer = shutdown

		return nil
	},
}

// finalize flushes spans and logs. It runs after every command, including
// ones whose RunE failed.
func finalize() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdownTracer(ctx); err != nil {
		zap.L().Warn("tracing shutdown", zap.Error(err))
	}
	shutdownTracer = func(context.Context) error { return nil }
	_ = zap.L().Sync()
}

func init() {
	cobra.OnFinalize(finalize)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
