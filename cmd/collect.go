package main

import (
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/grants-cli/internal/collector"
	"github.com/sells-group/grants-cli/internal/fetcher"
	"github.com/sells-group/grants-cli/internal/monitoring"
	"github.com/sells-group/grants-cli/internal/store"
)

var collectFile string

var collectCmd = &cobra.Command{
	Use:   "collect",
	Short: "Run one collection pass against the latest extract",
	Long:  "Finds the newest daily extract, reconciles every opportunity into the store, and exits non-zero when the run reports errors.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx, "collect")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		report := newCollector(st, collectFile).Run(ctx)

		alerter := monitoring.NewAlerter(cfg.Monitoring)
		alerter.SendAlerts(ctx, alerter.EvaluateReport(report))

		if !report.Success {
			for _, e := range report.Errors {
				zap.L().Error("collection error", zap.String("error", e))
			}
			return eris.Errorf("collection finished with %d error(s)", len(report.Errors))
		}
		return nil
	},
}

// newCollector wires the extract source, reconciler, and batch size from cfg.
// A non-empty file replaces the remote source.
func newCollector(st store.Store, file string) *collector.Collector {
	var source collector.ExtractSource
	if file != "" {
		source = &collector.FileExtractSource{Path: file}
	} else {
		f := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
			UserAgent:  cfg.Collector.UserAgent,
			Timeout:    time.Duration(cfg.Collector.TimeoutSecs) * time.Second,
			MaxRetries: cfg.Collector.MaxRetries,
		})
		source = collector.NewHTTPExtractSource(f, cfg.Collector.BaseURL, cfg.Collector.LookbackDays, cfg.Collector.Variants, nil)
	}

	return collector.New(source, collector.NewReconciler(st, cfg.Collector.Source), cfg.Collector.BatchSize)
}

func init() {
	collectCmd.Flags().StringVar(&collectFile, "file", "", "read a local .xml.gz extract instead of downloading")
	rootCmd.AddCommand(collectCmd)
}
