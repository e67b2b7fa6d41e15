package alert

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"time"
)

const (
	requestTimeout = 5 * time.Second
	maxRetries     = 3
)

// retryBackoff is multiplied by the attempt number between retries.
var retryBackoff = time.Second

// Send posts one event to cfg.URL. Transport errors and 5xx responses are
// retried with a linear backoff; 4xx responses are final. Cancelling ctx
// aborts both the request in flight and any backoff wait.
func (d *Dispatcher) Send(ctx context.Context, cfg AlertConfig, event AlertEvent) error {
	body, err := FormatPayload(cfg.Format, event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			wait := time.Duration(attempt) * retryBackoff
			d.logger.Debug("retrying alert delivery",
				"url", cfg.URL,
				"type", event.Type,
				"attempt", attempt+1,
				"wait", wait,
				"error", lastErr,
			)
			select {
			case <-ctx.Done():
				return fmt.Errorf("alert delivery cancelled: %w", ctx.Err())
			case <-time.After(wait):
			}
		}

		status, err := d.post(ctx, cfg, body)
		switch {
		case ctx.Err() != nil:
			return fmt.Errorf("alert delivery cancelled: %w", ctx.Err())
		case err != nil:
			lastErr = err
		case status >= 200 && status < 300:
			return nil
		case status >= 400 && status < 500:
			return fmt.Errorf("webhook rejected: HTTP %d", status)
		default:
			lastErr = fmt.Errorf("webhook server error: HTTP %d", status)
		}
	}

	return fmt.Errorf("webhook failed after %d attempts: %w", maxRetries, lastErr)
}

func (d *Dispatcher) post(ctx context.Context, cfg AlertConfig, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, cfg.URL, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range cfg.Headers {
		req.Header.Set(k, v)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, err
	}
	resp.Body.Close()
	return resp.StatusCode, nil
}
