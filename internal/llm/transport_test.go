package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/jstrand/ldgen/internal/config"
)

// memLimits is an in-memory RateLimitStore.
type memLimits struct {
	mu    sync.Mutex
	until time.Time
}

func (m *memLimits) BlockedUntil() (time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.until, nil
}

func (m *memLimits) SetBlockedUntil(t time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.until = t
	return nil
}

func testProvider(baseURL string, limits RateLimitStore) *OpenAIProvider {
	return NewOpenAI(config.ProviderAccount{
		APIKey:        "test-key",
		BaseURL:       baseURL,
		Model:         "test-model",
		ContextWindow: 8000,
	}, limits)
}

func chatRequest() Request {
	return Request{
		Messages:  []Message{{Role: "user", Content: "hello"}},
		MaxTokens: 64,
	}
}

func TestRetryExhaustion(t *testing.T) {
	var calls int
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	p := testProvider(srv.URL, &memLimits{})
	_, err := p.Generate(context.Background(), chatRequest())

	var te *TransportError
	if !errors.As(err, &te) {
		t.Fatalf("err = %v, want TransportError", err)
	}
	if te.Status != http.StatusServiceUnavailable {
		t.Errorf("Status = %d, want 503", te.Status)
	}
	mu.Lock()
	defer mu.Unlock()
	if calls != maxAttempts {
		t.Errorf("calls = %d, want exactly %d", calls, maxAttempts)
	}
}

func TestNonRetryableFailsImmediately(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	p := testProvider(srv.URL, &memLimits{})
	_, err := p.Generate(context.Background(), chatRequest())

	var ae *APIError
	if !errors.As(err, &ae) {
		t.Fatalf("err = %v, want APIError", err)
	}
	if ae.Status != http.StatusUnauthorized {
		t.Errorf("Status = %d, want 401", ae.Status)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 (no retries on auth failure)", calls)
	}
}

func TestRateLimitBlocksSubsequentCalls(t *testing.T) {
	var calls int
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	limits := &memLimits{}
	p := testProvider(srv.URL, limits)

	_, err := p.Generate(context.Background(), chatRequest())
	var rle *RateLimitError
	if !errors.As(err, &rle) {
		t.Fatalf("first call err = %v, want RateLimitError", err)
	}
	if rle.RetrySeconds() <= 0 {
		t.Errorf("RetrySeconds() = %d, want positive", rle.RetrySeconds())
	}

	mu.Lock()
	after := calls
	mu.Unlock()

	// An independent second call must short-circuit on the stored window
	// without touching the network.
	_, err = p.Generate(context.Background(), chatRequest())
	if !errors.As(err, &rle) {
		t.Fatalf("second call err = %v, want RateLimitError", err)
	}
	mu.Lock()
	defer mu.Unlock()
	if calls != after {
		t.Errorf("second call hit the server (calls %d -> %d)", after, calls)
	}
}

func TestGenerateSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"choices":[{"message":{"content":"generated text"}}]}`)
	}))
	defer srv.Close()

	p := testProvider(srv.URL, &memLimits{})
	out, err := p.Generate(context.Background(), chatRequest())
	if err != nil {
		t.Fatalf("Generate() failed: %v", err)
	}
	if out != "generated text" {
		t.Errorf("out = %q", out)
	}
}

func TestGenerateStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\"Hello\"}}]}\n\n")
		fmt.Fprint(w, "data: {\"choices\":[{\"delta\":{\"content\":\" world\"}}]}\n\n")
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	p := testProvider(srv.URL, &memLimits{})
	var deltas []string
	out, err := p.GenerateStream(context.Background(), chatRequest(), func(d string) {
		deltas = append(deltas, d)
	})
	if err != nil {
		t.Fatalf("GenerateStream() failed: %v", err)
	}
	if out != "Hello world" {
		t.Errorf("accumulated = %q, want %q", out, "Hello world")
	}
	if len(deltas) != 2 {
		t.Errorf("deltas = %v, want 2 fragments", deltas)
	}
}

func TestClampOutputTokens(t *testing.T) {
	msgs := []Message{{Role: "user", Content: string(make([]byte, 7000))}}

	// 7000 chars -> ~2000 tokens; window 4000 leaves 4000-2000-500 = 1500.
	if got := clampOutputTokens(4096, 4000, msgs); got != 1499 && got != 1500 {
		t.Errorf("clamped = %d, want ~1500", got)
	}

	// Tiny window floors at the minimum.
	if got := clampOutputTokens(4096, 1000, msgs); got != minOutputTokens {
		t.Errorf("clamped = %d, want floor %d", got, minOutputTokens)
	}

	// Zero request defaults before clamping.
	if got := clampOutputTokens(0, 200000, msgs); got != 4096 {
		t.Errorf("default = %d, want 4096", got)
	}
}
