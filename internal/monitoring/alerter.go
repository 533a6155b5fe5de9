package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/medrag-cli/internal/config"
)

// AlertType identifies the kind of alert.
type AlertType string

const (
	AlertRunFailureRate  AlertType = "run_failure_rate"
	AlertCallFailureRate AlertType = "call_failure_rate"
	AlertCostOverrun     AlertType = "cost_overrun"
)

// Minimum sample sizes before a rate alert fires.
const (
	minFinishedRuns = 5
	minCalls        = 50
)

// Alert represents a single alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter turns a snapshot into alerts and delivers them.
type Alerter struct {
	cfg    config.MonitoringConfig
	client *http.Client
}

// NewAlerter returns an Alerter for cfg.
func NewAlerter(cfg config.MonitoringConfig) *Alerter {
	return &Alerter{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
// A zero threshold disables its check.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	add := func(t AlertType, severity, msg string, details map[string]any) {
		alerts = append(alerts, Alert{
			Type:      t,
			Severity:  severity,
			Message:   msg,
			Details:   details,
			Timestamp: time.Now().UTC(),
		})
	}
	window := fmt.Sprintf("last %dh", snap.LookbackHours)
	if snap.LookbackHours <= 0 {
		window = "all time"
	}

	finished := snap.RunsComplete + snap.RunsFailed
	if over(snap.RunFailRate, a.cfg.FailureRateThreshold) && finished >= minFinishedRuns {
		add(AlertRunFailureRate, "high",
			fmt.Sprintf("Run failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d finished, %s)",
				snap.RunFailRate*100, a.cfg.FailureRateThreshold*100, snap.RunsFailed, finished, window),
			map[string]any{
				"failure_rate": snap.RunFailRate,
				"threshold":    a.cfg.FailureRateThreshold,
				"failed":       snap.RunsFailed,
				"finished":     finished,
			})
	}

	// Failed calls become ERROR. outputs, which silently drag accuracy down.
	if over(snap.CallFailRate, a.cfg.CallFailureRateThreshold) && snap.Calls >= minCalls {
		add(AlertCallFailureRate, "medium",
			fmt.Sprintf("Model call failure rate %.1f%% exceeds threshold %.1f%% (%d of %d calls, %s)",
				snap.CallFailRate*100, a.cfg.CallFailureRateThreshold*100, snap.FailedCalls, snap.Calls, window),
			map[string]any{
				"failure_rate": snap.CallFailRate,
				"threshold":    a.cfg.CallFailureRateThreshold,
				"failed_calls": snap.FailedCalls,
				"calls":        snap.Calls,
			})
	}

	if over(snap.CostUSD, a.cfg.CostThresholdUSD) {
		add(AlertCostOverrun, "high",
			fmt.Sprintf("Estimated API cost $%.2f exceeds threshold $%.2f (%d runs, %s)",
				snap.CostUSD, a.cfg.CostThresholdUSD, snap.RunsTotal, window),
			map[string]any{
				"cost_usd":      snap.CostUSD,
				"threshold_usd": a.cfg.CostThresholdUSD,
				"runs_total":    snap.RunsTotal,
			})
	}

	return alerts
}

func over(v, threshold float64) bool { return threshold > 0 && v > threshold }

// SendAlerts posts each alert to the webhook and returns how many were
// accepted. Failures are logged and skipped.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.cfg.WebhookURL == "" {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		log := zap.L().With(zap.String("type", string(alert.Type)))
		if err := a.post(ctx, alert); err != nil {
			log.Error("monitoring: alert not delivered", zap.Error(err))
			continue
		}
		log.Info("monitoring: alert delivered", zap.String("severity", alert.Severity))
		sent++
	}
	return sent
}

func (a *Alerter) post(ctx context.Context, alert Alert) error {
	body, err := json.Marshal(alert)
	if err != nil {
		return eris.Wrap(err, "monitoring: encode alert")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return eris.Wrap(err, "monitoring: build webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "monitoring: post webhook")
	}
	defer resp.Body.Close() //nolint:errcheck
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= http.StatusBadRequest {
		return eris.Errorf("monitoring: webhook status %d", resp.StatusCode)
	}
	return nil
}
