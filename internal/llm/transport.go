package llm

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"
)

const (
	maxAttempts    = 3
	initialBackoff = 1000 * time.Millisecond
	maxBackoff     = 10000 * time.Millisecond

	// How long all callers stand down after a 429 with no Retry-After.
	defaultRateLimitWindow = 60 * time.Second
)

// RateLimitStore persists the shared upstream backoff window. A single 429
// blocks every subsequent generation attempt process-wide, not just the
// retry loop that observed it.
type RateLimitStore interface {
	BlockedUntil() (time.Time, error)
	SetBlockedUntil(t time.Time) error
}

// transport issues provider HTTP requests under the shared retry policy.
type transport struct {
	client *http.Client
	limits RateLimitStore
	logger *slog.Logger
}

func newTransport(timeout time.Duration, limits RateLimitStore) *transport {
	return &transport{
		client: &http.Client{Timeout: timeout},
		limits: limits,
		logger: slog.Default(),
	}
}

func retryableStatus(status int) bool {
	switch status {
	case http.StatusTooManyRequests, 500, 502, 503, 504:
		return true
	}
	return false
}

// checkRateLimit short-circuits before any request when a global block is
// active.
func (t *transport) checkRateLimit() error {
	if t.limits == nil {
		return nil
	}
	until, err := t.limits.BlockedUntil()
	if err != nil {
		return fmt.Errorf("reading rate-limit state: %w", err)
	}
	if !until.IsZero() && time.Now().Before(until) {
		return &RateLimitError{Until: until}
	}
	return nil
}

// do POSTs body to url with headers, retrying per policy. The caller owns
// the returned response body.
func (t *transport) do(ctx context.Context, url string, body []byte, headers map[string]string) (*http.Response, error) {
	if err := t.checkRateLimit(); err != nil {
		return nil, err
	}

	var lastStatus int
	var lastErr error
	delay := initialBackoff

	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
			if delay > maxBackoff {
				delay = maxBackoff
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range headers {
			req.Header.Set(k, v)
		}

		resp, err := t.client.Do(req)
		if err != nil {
			lastErr = err
			lastStatus = 0
			t.logger.Warn("provider request failed", "attempt", attempt+1, "error", err)
			continue
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return resp, nil
		}

		status := resp.StatusCode
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		resp.Body.Close()

		if status == http.StatusTooManyRequests {
			window := defaultRateLimitWindow
			if retryAfter > 0 {
				window = retryAfter
			}
			until := time.Now().Add(window)
			if t.limits != nil {
				if err := t.limits.SetBlockedUntil(until); err != nil {
					t.logger.Error("recording rate-limit window", "error", err)
				}
			}
			lastStatus, lastErr = status, &RateLimitError{Until: until}
		} else if retryableStatus(status) {
			lastStatus, lastErr = status, nil
		} else {
			return nil, &APIError{Status: status, Reason: reasonForStatus(status)}
		}

		// A Retry-After header overrides the computed backoff.
		if retryAfter > 0 {
			delay = retryAfter
			if delay > maxBackoff {
				delay = maxBackoff
			}
		}

		t.logger.Warn("provider returned retryable status", "attempt", attempt+1, "status", status)
	}

	if rle, ok := lastErr.(*RateLimitError); ok {
		return nil, rle
	}
	return nil, &TransportError{Status: lastStatus, Err: lastErr}
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}
	if secs, err := strconv.Atoi(header); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(header); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
