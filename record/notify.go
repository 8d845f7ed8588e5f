package record

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Notifier posts batch outcomes to an HTTP webhook with exponential
// backoff. It is fire-and-forget from the batch's point of view; the
// caller logs a delivery failure and moves on.
type Notifier struct {
	url        string
	client     *http.Client
	maxRetries int
	log        *slog.Logger
}

// NotifierOption configures a Notifier.
type NotifierOption func(*Notifier)

// WithNotifierClient replaces the HTTP client, mainly for tests.
func WithNotifierClient(c *http.Client) NotifierOption {
	return func(n *Notifier) { n.client = c }
}

// WithNotifierRetries sets the number of retries after the first attempt.
func WithNotifierRetries(r int) NotifierOption {
	return func(n *Notifier) { n.maxRetries = r }
}

// WithNotifierLogger sets the logger.
func WithNotifierLogger(log *slog.Logger) NotifierOption {
	return func(n *Notifier) { n.log = log }
}

// NewNotifier creates a webhook notifier for url.
func NewNotifier(url string, opts ...NotifierOption) *Notifier {
	n := &Notifier{
		url:        url,
		client:     &http.Client{Timeout: 10 * time.Second},
		maxRetries: 3,
		log:        slog.Default(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

type notifyPayload struct {
	RunID      string            `json:"run_id,omitempty"`
	Stage      string            `json:"stage"`
	Folders    int               `json:"folders"`
	Failed     int               `json:"failed"`
	DurationMS int64             `json:"duration_ms"`
	Failures   map[string]string `json:"failures,omitempty"`
}

// Notify delivers the batch result, retrying with 1s, 2s, 4s... backoff
// until the webhook answers 2xx or retries run out.
func (n *Notifier) Notify(ctx context.Context, result *BatchResult) error {
	payload := notifyPayload{
		RunID:      result.RunID,
		Stage:      "record",
		Folders:    result.Processed,
		Failed:     len(result.Failures),
		DurationMS: result.DurationMS,
		Failures:   result.Failures,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("record: encode webhook payload: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= n.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(1<<uint(attempt-1)) * time.Second
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("record: build webhook request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := n.client.Do(req)
		if err != nil {
			lastErr = err
			n.log.Warn("record: webhook attempt failed", "attempt", attempt+1, "error", err)
			continue
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}
		lastErr = fmt.Errorf("webhook returned status %d", resp.StatusCode)
		n.log.Warn("record: webhook attempt rejected", "attempt", attempt+1, "status", resp.StatusCode)
	}
	return fmt.Errorf("record: all webhook retries exhausted: %w", lastErr)
}
