package llm

import (
	"fmt"
	"time"
)

// TransportError is a network failure or a retryable upstream status that
// survived the retry budget.
type TransportError struct {
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("upstream returned status %d", e.Status)
	}
	return fmt.Sprintf("upstream request failed: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// RateLimitError reports an active upstream rate-limit window.
type RateLimitError struct {
	Until time.Time
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry in %ds", e.RetrySeconds())
}

// RetrySeconds is the remaining wait, floored at 1 so callers always get an
// actionable number.
func (e *RateLimitError) RetrySeconds() int {
	secs := int(time.Until(e.Until).Seconds())
	if secs < 1 {
		secs = 1
	}
	return secs
}

// APIError is a non-retryable upstream rejection with a mapped
// human-readable reason.
type APIError struct {
	Status int
	Reason string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (HTTP %d)", e.Reason, e.Status)
}

func reasonForStatus(status int) string {
	switch status {
	case 400:
		return "request rejected by provider"
	case 401:
		return "invalid API key"
	case 403:
		return "access forbidden for this API key"
	case 404:
		return "endpoint or model not found"
	default:
		return fmt.Sprintf("provider error %d", status)
	}
}
