package health

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/podium-performance/funnel-cli/internal/config"
)

// Notifier delivers degraded checks to a webhook so a failing pipeline
// surfaces somewhere other than the next manual CLI run.
type Notifier struct {
	cfg    config.HealthConfig
	client *http.Client
}

// NewNotifier creates a Notifier. An empty webhook URL disables delivery.
func NewNotifier(cfg config.HealthConfig) *Notifier {
	return &Notifier{
		cfg:    cfg,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// notification is the webhook payload for one degraded check.
type notification struct {
	Check     string         `json:"check"`
	Status    Status         `json:"status"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Notify posts every warn or fail check to the configured webhook.
// Returns the number of checks successfully delivered.
func (n *Notifier) Notify(ctx context.Context, rep *Report) int {
	if n.cfg.WebhookURL == "" || rep == nil || rep.Status == StatusOK {
		return 0
	}

	sent := 0
	for _, check := range rep.Checks {
		if check.Status == StatusOK {
			continue
		}
		if err := n.sendWebhook(ctx, check, rep.CheckedAt); err != nil {
			zap.L().Error("health: failed to deliver check",
				zap.String("check", check.Name),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("health: check delivered",
			zap.String("check", check.Name),
			zap.String("status", string(check.Status)),
		)
		sent++
	}
	return sent
}

// sendWebhook posts a single check to the webhook URL.
func (n *Notifier) sendWebhook(ctx context.Context, check Check, at time.Time) error {
	payload, err := json.Marshal(notification{
		Check:     check.Name,
		Status:    check.Status,
		Message:   check.Message,
		Details:   check.Details,
		Timestamp: at,
	})
	if err != nil {
		return eris.Wrap(err, "health: marshal notification")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.WebhookURL, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "health: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "health: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("health: webhook returned status %d", resp.StatusCode)
	}
	return nil
}
