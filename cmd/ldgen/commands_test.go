package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jstrand/ldgen/internal/api"
)

type recordedRequest struct {
	Method string
	Path   string
	Body   string
	Auth   string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.requests = append(ts.requests, recordedRequest{
			Method: r.Method,
			Path:   r.URL.RequestURI(),
			Body:   body.String(),
			Auth:   r.Header.Get("Authorization"),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(404)
		w.Write([]byte(`{"error":{"message":"not found","type":"not_found"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		token:      "test-token",
		httpClient: ts.server.Client(),
	}
}

var ctx = context.Background()

func TestPageSyncRequest(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /pages": `{"id":"42","status":"saved"}`,
	})

	client := ts.client()
	req := map[string]any{
		"id":      "42",
		"title":   "About Us",
		"content": "<p>hello</p>",
	}
	resp, err := client.post(ctx, "/pages", req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result map[string]string
	if err := decodeJSON(resp, &result); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if result["status"] != "saved" {
		t.Errorf("status = %q, want saved", result["status"])
	}

	if len(ts.requests) != 1 {
		t.Fatalf("expected 1 request, got %d", len(ts.requests))
	}
	r := ts.requests[0]
	if r.Method != "POST" || r.Path != "/pages" {
		t.Errorf("request = %s %s", r.Method, r.Path)
	}
	if r.Auth != "Bearer test-token" {
		t.Errorf("auth = %q, want Bearer test-token", r.Auth)
	}

	var body map[string]any
	if err := json.Unmarshal([]byte(r.Body), &body); err != nil {
		t.Fatalf("body parse error: %v", err)
	}
	if body["id"] != "42" {
		t.Errorf("body.id = %v, want 42", body["id"])
	}
}

func TestGenerateRequestDecodesResponse(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /pages/42/schema": `{"outcome":"generated","detected_type":"LocalBusiness","content_hash":"abc","schema":"{}"}`,
	})

	client := ts.client()
	resp, err := client.post(ctx, "/pages/42/schema?force=true", nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result api.GenerateResponse
	if err := decodeJSON(resp, &result); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if result.Outcome != "generated" || result.DetectedType != "LocalBusiness" {
		t.Errorf("result = %+v", result)
	}

	if got := ts.requests[0].Path; got != "/pages/42/schema?force=true" {
		t.Errorf("path = %q", got)
	}
}

func TestDecodeJSONErrorResponse(t *testing.T) {
	ts := newTestServer(t, map[string]string{})

	client := ts.client()
	resp, err := client.get(ctx, "/pages/missing/schema")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var out map[string]any
	err = decodeJSON(resp, &out)
	if err == nil {
		t.Fatal("expected error for 404 response")
	}
	if !strings.Contains(err.Error(), "404") {
		t.Errorf("error = %q, want it to mention the status code", err.Error())
	}
}

func TestDeleteRequest(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"DELETE /pages/7/schema": `{"status":"cleared"}`,
	})

	client := ts.client()
	resp, err := client.delete(ctx, "/pages/7/schema")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var result map[string]string
	if err := decodeJSON(resp, &result); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if result["status"] != "cleared" {
		t.Errorf("status = %q, want cleared", result["status"])
	}
}

func TestConsumeGenerateStream(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte("data: {\"delta\":\"{\\\"@context\\\"\"}\n\n"))
		w.Write([]byte("data: {\"delta\":\":\\\"https://schema.org\\\"}\"}\n\n"))
		w.Write([]byte(`data: {"result":{"outcome":"generated","detected_type":"LocalBusiness","schema":"{}"}}` + "\n\n"))
		w.Write([]byte("data: [DONE]\n\n"))
	}))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := consumeGenerateStream(resp); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestConsumeGenerateStreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Write([]byte(`data: {"error":{"message":"provider unavailable","type":"api_error"}}` + "\n\n"))
	}))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := consumeGenerateStream(resp); err == nil {
		t.Error("expected error for error frame")
	}
}

func TestCountLabel(t *testing.T) {
	if got := countLabel(5, 100); got != "5" {
		t.Errorf("countLabel(5, 100) = %q", got)
	}
	if got := countLabel(100, 100); got != "100+" {
		t.Errorf("countLabel(100, 100) = %q", got)
	}
}
