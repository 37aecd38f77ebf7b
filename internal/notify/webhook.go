package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const defaultAttempts = 3

// WebhookError is a non-2xx response from the webhook endpoint.
type WebhookError struct {
	StatusCode int
	Body       string
}

func (e *WebhookError) Error() string {
	return fmt.Sprintf("webhook failed: HTTP %d: %s", e.StatusCode, e.Body)
}

// IsRetryable returns true for server errors (5xx).
// Client errors (4xx) are considered permanent.
func (e *WebhookError) IsRetryable() bool {
	return e.StatusCode >= 500
}

// Webhook posts payloads as JSON to a fixed URL.
type Webhook struct {
	url        string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
	attempts   int
	backoff    time.Duration
}

func NewWebhook(url, token string, logger *slog.Logger) *Webhook {
	return &Webhook{
		url:   url,
		token: token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger:   logger,
		attempts: defaultAttempts,
		backoff:  time.Second,
	}
}

// Notify posts p, retrying network errors and 5xx responses.
func (w *Webhook) Notify(ctx context.Context, p Payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	requestID := uuid.NewString()

	var lastErr error
	for attempt := 1; attempt <= w.attempts; attempt++ {
		lastErr = w.post(ctx, body, requestID)
		if lastErr == nil {
			w.logger.Info("webhook delivered", "job_id", p.JobID, "state", p.State, "attempt", attempt)
			return nil
		}

		var whErr *WebhookError
		if errors.As(lastErr, &whErr) && !whErr.IsRetryable() {
			return lastErr
		}
		if attempt == w.attempts {
			break
		}

		w.logger.Warn("webhook attempt failed", "job_id", p.JobID, "attempt", attempt, "error", lastErr)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(w.backoff * time.Duration(attempt)):
		}
	}
	return lastErr
}

func (w *Webhook) post(ctx context.Context, body []byte, requestID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-Id", requestID)
	if w.token != "" {
		req.Header.Set("Authorization", "Bearer "+w.token)
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	return &WebhookError{StatusCode: resp.StatusCode, Body: string(respBody)}
}
