package monitoring

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/grants-cli/internal/config"
)

// Checker runs periodic staleness checks in the background.
type Checker struct {
	snapshotter *Snapshotter
	alerter     *Alerter
	cfg         config.MonitoringConfig
}

// NewChecker creates a background staleness checker.
func NewChecker(snapshotter *Snapshotter, alerter *Alerter, cfg config.MonitoringConfig) *Checker {
	return &Checker{
		snapshotter: snapshotter,
		alerter:     alerter,
		cfg:         cfg,
	}
}

// Run starts the periodic check loop. It blocks until ctx is cancelled.
func (c *Checker) Run(ctx context.Context) {
	interval := time.Duration(c.cfg.CheckIntervalSecs) * time.Second
	if interval <= 0 {
		interval = time.Hour
	}

	log := zap.L().With(zap.String("component", "monitoring.checker"))
	log.Info("starting staleness checker",
		zap.Duration("interval", interval),
		zap.Int("stale_after_hours", c.lookbackHours()),
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("staleness checker stopped")
			return
		case <-ticker.C:
			c.Check(ctx)
		}
	}
}

// Check takes one snapshot and sends any resulting alerts. It returns the
// number of alerts triggered.
func (c *Checker) Check(ctx context.Context) int {
	log := zap.L().With(zap.String("component", "monitoring.checker"))

	snap, err := c.snapshotter.Collect(ctx, c.lookbackHours())
	if err != nil {
		log.Error("monitoring: failed to collect snapshot", zap.Error(err))
		return 0
	}

	alerts := c.alerter.Evaluate(snap)
	if len(alerts) == 0 {
		log.Debug("monitoring: no alerts triggered")
		return 0
	}

	sent := c.alerter.SendAlerts(ctx, alerts)
	log.Info("monitoring: staleness check complete",
		zap.Int("alerts_triggered", len(alerts)),
		zap.Int("alerts_sent", sent),
	)
	return len(alerts)
}

func (c *Checker) lookbackHours() int {
	if c.cfg.StaleAfterHours <= 0 {
		return 48
	}
	return c.cfg.StaleAfterHours
}
