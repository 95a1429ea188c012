// Package notify delivers crisis alerts to the external alert transport.
// All delivery is best-effort: failures are logged, never propagated into
// a turn.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/rogercare/roger-go/internal/models"
)

// Notifier sends a crisis alert to an external transport.
type Notifier interface {
	SendCrisisAlert(ctx context.Context, alert models.CrisisAlert) error
}

// LogNotifier writes alerts to the structured log. Used when no webhook
// is configured, and as the audit trail of last resort.
type LogNotifier struct {
	logger *slog.Logger
}

// NewLogNotifier creates a log-backed notifier.
func NewLogNotifier(logger *slog.Logger) *LogNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogNotifier{logger: logger}
}

// SendCrisisAlert logs the alert at WARN level. Never fails.
func (n *LogNotifier) SendCrisisAlert(_ context.Context, alert models.CrisisAlert) error {
	n.logger.Warn("crisis alert",
		"session_id", alert.SessionID,
		"crisis_type", alert.CrisisType,
		"severity", alert.Severity.String(),
		"risk_assessment", alert.RiskAssessment,
		"location_city", alert.LocationInfo.City,
	)
	return nil
}

// TimedNotifier decorates a Notifier with a per-delivery observation,
// used to feed the metrics collector from the dispatch goroutine.
type TimedNotifier struct {
	inner   Notifier
	observe func(d time.Duration, err error)
}

// NewTimedNotifier wraps inner so every delivery reports its duration and
// outcome to observe.
func NewTimedNotifier(inner Notifier, observe func(d time.Duration, err error)) *TimedNotifier {
	return &TimedNotifier{inner: inner, observe: observe}
}

// SendCrisisAlert delivers through the wrapped notifier and reports the
// result.
func (n *TimedNotifier) SendCrisisAlert(ctx context.Context, alert models.CrisisAlert) error {
	start := time.Now()
	err := n.inner.SendCrisisAlert(ctx, alert)
	n.observe(time.Since(start), err)
	return err
}

// WebhookNotifier POSTs alerts as JSON to a configured endpoint.
type WebhookNotifier struct {
	url        string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewWebhookNotifier creates a webhook-backed notifier.
func NewWebhookNotifier(url string, logger *slog.Logger) *WebhookNotifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &WebhookNotifier{
		url:        url,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     logger,
	}
}

// SendCrisisAlert POSTs the alert payload. The caller runs this off the
// turn's critical path; an error here is for the log only.
func (n *WebhookNotifier) SendCrisisAlert(ctx context.Context, alert models.CrisisAlert) error {
	body, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post alert: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("alert endpoint returned %d", resp.StatusCode)
	}

	n.logger.Info("crisis alert delivered", "session_id", alert.SessionID, "status", resp.StatusCode)
	return nil
}
