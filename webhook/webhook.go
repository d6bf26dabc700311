// Package webhook notifies an external endpoint when a run finishes.
package webhook

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/use-agent/pricewatch/config"
	"github.com/use-agent/pricewatch/models"
)

// SignatureHeader carries "sha256=<hex HMAC of the body>" when a secret is set.
const SignatureHeader = "X-Pricewatch-Signature"

// Event is the payload sent to webhook endpoints.
type Event struct {
	Type      string `json:"type"` // "run.completed"
	RunID     string `json:"run_id"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data"`
}

// Notifier delivers events with retries: 1s, 5s, then 30s apart.
type Notifier struct {
	url    string
	secret string
	client *resty.Client
}

// New returns a Notifier for cfg, or nil when no URL is configured.
func New(cfg config.WebhookConfig) *Notifier {
	if cfg.URL == "" {
		return nil
	}
	client := resty.New().
		SetTimeout(10*time.Second).
		SetHeader("Content-Type", "application/json").
		SetHeader("User-Agent", "Pricewatch-Webhook/1.0").
		SetRetryCount(3).
		SetRetryWaitTime(1*time.Second).
		SetRetryMaxWaitTime(30*time.Second).
		SetRetryAfter(backoff).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= 500 || r.StatusCode() == 429
		})
	return &Notifier{url: cfg.URL, secret: cfg.Secret, client: client}
}

var delays = []time.Duration{1 * time.Second, 5 * time.Second, 30 * time.Second}

func backoff(_ *resty.Client, r *resty.Response) (time.Duration, error) {
	attempt := 1
	if r != nil && r.Request != nil {
		attempt = r.Request.Attempt
	}
	if attempt < 1 {
		attempt = 1
	}
	if attempt > len(delays) {
		return delays[len(delays)-1], nil
	}
	return delays[attempt-1], nil
}

// RunCompleted sends a run.completed event carrying summary.
func (n *Notifier) RunCompleted(ctx context.Context, summary models.RunSummary) error {
	return n.Deliver(ctx, &Event{
		Type:      "run.completed",
		RunID:     summary.RunID,
		Timestamp: time.Now().Unix(),
		Data:      summary,
	})
}

// Deliver posts event, retrying transport errors and 5xx/429 answers.
func (n *Notifier) Deliver(ctx context.Context, event *Event) error {
	body, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("webhook: marshal event: %w", err)
	}

	req := n.client.R().SetContext(ctx).SetBody(body)
	if n.secret != "" {
		req.SetHeader(SignatureHeader, "sha256="+Sign(n.secret, body))
	}

	resp, err := req.Post(n.url)
	if err != nil {
		slog.Warn("webhook delivery failed", "url", n.url, "event", event.Type, "error", err)
		return fmt.Errorf("webhook: deliver: %w", err)
	}
	if resp.StatusCode() >= 400 {
		slog.Warn("webhook rejected",
			"url", n.url,
			"event", event.Type,
			"status", resp.StatusCode(),
			"attempts", resp.Request.Attempt,
		)
		return fmt.Errorf("webhook: endpoint returned status %d", resp.StatusCode())
	}
	slog.Info("webhook delivered",
		"url", n.url,
		"event", event.Type,
		"run_id", event.RunID,
		"attempts", resp.Request.Attempt,
	)
	return nil
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
