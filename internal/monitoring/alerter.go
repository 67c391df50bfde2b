// Package monitoring raises webhook alerts for failed collections and stale data.
package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/grants-cli/internal/collector"
	"github.com/sells-group/grants-cli/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertCollectionFailure AlertType = "collection_failure"
	AlertStaleData         AlertType = "stale_data"
)

// maxAlertErrors caps how many report errors are copied into an alert.
const maxAlertErrors = 10

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter turns collection reports and freshness snapshots into alerts
// and sends them via webhook.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter creates a new Alerter with the given monitoring config.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// EvaluateReport returns an alert when the run did not succeed.
func (a *Alerter) EvaluateReport(r *collector.Report) []Alert {
	if r == nil || r.Success {
		return nil
	}

	errs := r.Errors
	if len(errs) > maxAlertErrors {
		errs = errs[:maxAlertErrors]
	}
	severity := "medium"
	if r.Processed == 0 {
		severity = "high"
	}

	return []Alert{{
		Type:     AlertCollectionFailure,
		Severity: severity,
		Message: fmt.Sprintf("Grants collection finished with %d error(s) after processing %d record(s)",
			len(r.Errors), r.Processed),
		Details: map[string]any{
			"processed":   r.Processed,
			"created":     r.Created,
			"updated":     r.Updated,
			"error_count": len(r.Errors),
			"errors":      errs,
			"extract_url": r.ExtractURL,
		},
		Timestamp: time.Now().UTC(),
	}}
}

// Evaluate checks a freshness snapshot and returns any alerts. An empty
// catalog is not considered stale.
func (a *Alerter) Evaluate(snap *Snapshot) []Alert {
	if snap.TotalOpportunities == 0 || snap.ChangesInWindow > 0 {
		return nil
	}
	return []Alert{{
		Type:     AlertStaleData,
		Severity: "high",
		Message: fmt.Sprintf("No opportunity changes recorded in the last %dh (%d opportunities stored)",
			snap.LookbackHours, snap.TotalOpportunities),
		Details: map[string]any{
			"total_opportunities": snap.TotalOpportunities,
			"lookback_hours":      snap.LookbackHours,
		},
		Timestamp: time.Now().UTC(),
	}}
}

// SendAlerts delivers alerts to the configured webhook URL.
// Returns the number of alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" || len(alerts) == 0 {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		if err := a.sendWebhook(ctx, alert); err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}

func (a *Alerter) sendWebhook(ctx context.Context, alert Alert) error {
	payload, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: marshal alert")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "monitoring: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("monitoring: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
