package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/grants-cli/internal/api"
	"github.com/sells-group/grants-cli/internal/collector"
	"github.com/sells-group/grants-cli/internal/monitoring"
)

var (
	servePort     int
	serveSchedule string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the grants HTTP API",
	Long:  "Serves collection and catalog endpoints. With --schedule, also runs collections in-process on a cron schedule.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx, "serve")
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		log := zap.L().With(zap.String("component", "serve"))
		coll := newCollector(st, "")
		alerter := monitoring.NewAlerter(cfg.Monitoring)
		onReport := func(ctx context.Context, r *collector.Report) {
			alerter.SendAlerts(ctx, alerter.EvaluateReport(r))
		}

		schedule := serveSchedule
		if schedule == "" {
			schedule = cfg.Server.Schedule
		}
		if schedule != "" {
			c, err := scheduleCollection(ctx, schedule, func(ctx context.Context) {
				onReport(ctx, coll.Run(ctx))
			})
			if err != nil {
				return err
			}
			defer c.Stop()
			log.Info("collection scheduled", zap.String("schedule", schedule))
		}

		if cfg.Monitoring.WebhookURL != "" {
			checker := monitoring.NewChecker(monitoring.NewSnapshotter(st), alerter, cfg.Monitoring)
			go checker.Run(ctx)
		}

		handler := api.NewHandler(st, coll, api.Options{
			CollectTimeout: time.Duration(cfg.Server.CollectTimeoutSecs) * time.Second,
			CORSOrigins:    cfg.Server.CORSOrigins,
			OnReport:       onReport,
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           handler.Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			log.Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				log.Warn("server shutdown", zap.Error(err))
			}
		}()

		log.Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().StringVar(&serveSchedule, "schedule", "", "cron spec for in-process collections, e.g. \"0 6 * * *\" (default from config)")
	rootCmd.AddCommand(serveCmd)
}
