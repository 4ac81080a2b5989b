// Package notify posts run lifecycle events to a webhook.
//
// Payloads are JSON-encoded models.RunEvent values. When a secret is
// configured each request carries an HMAC-SHA256 signature of the body in
// X-GeniQ-Signature ("sha256=<hex>"), so receivers can verify the sender.
package notify

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"github.com/vaisu-bhut/GeniQ/pkg/models"
)

// Options configures a Webhook.
type Options struct {
	URL    string
	Secret string
	// Events limits delivery to these event types. Empty means all.
	Events         []string
	Timeout        time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
}

// Webhook delivers run events over HTTP POST with retries.
type Webhook struct {
	opts   Options
	client *http.Client
	events map[string]bool
}

// NewWebhook creates a webhook notifier. It returns nil when no URL is set,
// which the engine treats as "notifications off".
func NewWebhook(opts Options) *Webhook {
	if opts.URL == "" {
		return nil
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = time.Second
	}
	w := &Webhook{
		opts:   opts,
		client: &http.Client{Timeout: opts.Timeout},
		events: make(map[string]bool, len(opts.Events)),
	}
	for _, e := range opts.Events {
		w.events[e] = true
	}
	return w
}

// Subscribes reports whether the webhook wants events of this type.
func (w *Webhook) Subscribes(eventType string) bool {
	return len(w.events) == 0 || w.events[eventType] || w.events["*"]
}

// Notify sends ev, retrying transient failures with exponential backoff.
// 4xx answers other than 429 are not retried.
func (w *Webhook) Notify(ctx context.Context, ev models.RunEvent) error {
	if !w.Subscribes(ev.Type) {
		return nil
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}
	sig := ""
	if w.opts.Secret != "" {
		sig = "sha256=" + Sign(w.opts.Secret, body)
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = w.opts.InitialBackoff
	eb.MaxElapsedTime = time.Minute
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(w.opts.MaxAttempts-1)), ctx)

	attempt := 0
	err = backoff.Retry(func() error {
		attempt++
		return w.send(ctx, ev.Type, body, sig)
	}, policy)
	if err != nil {
		log.Warn().Err(err).Str("event", ev.Type).Str("run", ev.Run.ID).Int("attempts", attempt).Msg("Webhook notification failed")
		return fmt.Errorf("webhook failed after %d attempts: %w", attempt, err)
	}

	log.Info().Str("event", ev.Type).Str("run", ev.Run.ID).Msg("📣 Webhook notification dispatched")
	return nil
}

func (w *Webhook) send(ctx context.Context, eventType string, body []byte, sig string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.opts.URL, bytes.NewReader(body))
	if err != nil {
		return backoff.Permanent(fmt.Errorf("build webhook request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "GeniQ-Webhook/1.0")
	req.Header.Set("X-GeniQ-Event", eventType)
	if sig != "" {
		req.Header.Set("X-GeniQ-Signature", sig)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests:
		return backoff.Permanent(fmt.Errorf("webhook HTTP %d from %s", resp.StatusCode, w.opts.URL))
	default:
		return fmt.Errorf("webhook HTTP %d from %s", resp.StatusCode, w.opts.URL)
	}
}

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}
