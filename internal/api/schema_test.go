package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/jstrand/ldgen/internal/pipeline"
	"github.com/jstrand/ldgen/internal/store"
)

const cachedSchema = `{"@context":"https://schema.org","@type":"LocalBusiness","name":"Acme"}`

func savedPage(t *testing.T, st *store.Store, id string) {
	t.Helper()
	err := st.SavePage(store.Page{
		ID:       id,
		Title:    "Acme",
		Content:  "<p>content</p>",
		Type:     "page",
		TypeHint: "auto",
	})
	if err != nil {
		t.Fatalf("SavePage: %v", err)
	}
}

func TestGenerate_Success(t *testing.T) {
	gen := &stubGenerator{result: pipeline.Result{
		Outcome:      pipeline.OutcomeGenerated,
		Schema:       cachedSchema,
		DetectedType: "LocalBusiness",
		ContentHash:  "abc123",
	}}
	h, st := setupAppHandler(t, gen)
	savedPage(t, st, "1")

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodPost, "/pages/1/schema?force=true", "", testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body = %s", rr.Code, http.StatusOK, rr.Body.String())
	}
	if gen.lastPageID != "1" || !gen.lastOpts.Force {
		t.Errorf("generator got page=%q force=%v", gen.lastPageID, gen.lastOpts.Force)
	}

	var resp GenerateResponse
	json.NewDecoder(rr.Body).Decode(&resp)
	if resp.Outcome != "generated" || resp.DetectedType != "LocalBusiness" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestGenerate_OutcomeStatusCodes(t *testing.T) {
	cases := []struct {
		result pipeline.Result
		want   int
	}{
		{pipeline.Result{Outcome: pipeline.OutcomeCached, Schema: cachedSchema}, http.StatusOK},
		{pipeline.Result{Outcome: pipeline.OutcomeCooldown, RetryAfter: 20 * time.Second}, http.StatusTooManyRequests},
		{pipeline.Result{Outcome: pipeline.OutcomeRateLimited, RetryAfter: 60 * time.Second}, http.StatusTooManyRequests},
		{pipeline.Result{Outcome: pipeline.OutcomeContentTooShort}, http.StatusUnprocessableEntity},
		{pipeline.Result{Outcome: pipeline.OutcomeError, ErrorKind: pipeline.ErrKindProvider, Err: errors.New("boom")}, http.StatusBadGateway},
	}

	for _, tc := range cases {
		gen := &stubGenerator{result: tc.result}
		h, st := setupAppHandler(t, gen)
		savedPage(t, st, "1")

		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, authReq(http.MethodPost, "/pages/1/schema", "", testToken))
		if rr.Code != tc.want {
			t.Errorf("outcome %s: status = %d, want %d", tc.result.Outcome, rr.Code, tc.want)
		}

		var resp GenerateResponse
		json.NewDecoder(rr.Body).Decode(&resp)
		if resp.Outcome != string(tc.result.Outcome) {
			t.Errorf("outcome in body = %q, want %q", resp.Outcome, tc.result.Outcome)
		}
		if tc.result.RetryAfter > 0 && resp.RetryAfterSec < 1 {
			t.Errorf("outcome %s: retry_after_sec missing", tc.result.Outcome)
		}
	}
}

func TestGenerate_NotFound(t *testing.T) {
	gen := &stubGenerator{err: store.ErrNotFound}
	h, _ := setupAppHandler(t, gen)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodPost, "/pages/missing/schema", "", testToken))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestGenerate_AsyncQueues(t *testing.T) {
	gen := &stubGenerator{}
	h, st := setupAppHandler(t, gen)
	savedPage(t, st, "5")

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodPost, "/pages/5/schema?async=true", "", testToken))
	if rr.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want %d; body = %s", rr.Code, http.StatusAccepted, rr.Body.String())
	}

	var resp map[string]string
	json.NewDecoder(rr.Body).Decode(&resp)
	if resp["status"] != "queued" || resp["job_id"] == "" {
		t.Errorf("resp = %v", resp)
	}
	if gen.lastPageID != "" {
		t.Error("async request ran the generator synchronously")
	}

	var count int
	if err := st.DB().QueryRow(`SELECT COUNT(*) FROM jobs WHERE status = 'pending'`).Scan(&count); err != nil {
		t.Fatalf("counting jobs: %v", err)
	}
	if count != 1 {
		t.Errorf("pending jobs = %d, want 1", count)
	}
}

func TestGenerate_Stream(t *testing.T) {
	gen := &stubGenerator{result: pipeline.Result{
		Outcome: pipeline.OutcomeGenerated,
		Schema:  cachedSchema,
	}}
	h, st := setupAppHandler(t, gen)
	savedPage(t, st, "6")

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodPost, "/pages/6/schema?stream=true", "", testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("content type = %q", ct)
	}

	body := rr.Body.String()
	if !strings.Contains(body, `"result"`) {
		t.Errorf("stream missing result frame: %s", body)
	}
	if !strings.HasSuffix(strings.TrimSpace(body), "data: [DONE]") {
		t.Errorf("stream not terminated with [DONE]: %s", body)
	}
}

func TestSchemaStatus_IncludeSchema(t *testing.T) {
	gen := &stubGenerator{status: pipeline.PageStatus{Status: "ok", DetectedType: "LocalBusiness"}}
	h, st := setupAppHandler(t, gen)
	savedPage(t, st, "8")
	err := st.SaveCacheRecord(store.CacheRecord{
		PageID:      "8",
		Schema:      cachedSchema,
		ContentHash: "h",
		GeneratedAt: time.Now(),
		Status:      "ok",
	})
	if err != nil {
		t.Fatalf("SaveCacheRecord: %v", err)
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/pages/8/schema?include_schema=true", "", testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}

	var resp struct {
		Status pipeline.PageStatus `json:"status"`
		Schema json.RawMessage     `json:"schema"`
	}
	if err := json.NewDecoder(rr.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Status.PageID != "8" {
		t.Errorf("status page_id = %q", resp.Status.PageID)
	}
	if len(resp.Schema) == 0 {
		t.Error("schema not included despite include_schema=true")
	}
}

func TestClearSchema(t *testing.T) {
	h, st := setupAppHandler(t, &stubGenerator{})
	savedPage(t, st, "9")
	err := st.SaveCacheRecord(store.CacheRecord{
		PageID: "9", Schema: cachedSchema, ContentHash: "h", GeneratedAt: time.Now(), Status: "ok",
	})
	if err != nil {
		t.Fatalf("SaveCacheRecord: %v", err)
	}
	if err := st.SetCooldown("9", time.Now().Add(time.Minute)); err != nil {
		t.Fatalf("SetCooldown: %v", err)
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodDelete, "/pages/9/schema", "", testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}

	if _, err := st.GetCacheRecord("9"); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("cache record still present: err = %v", err)
	}
	if until, err := st.CooldownUntil("9"); err != nil || !until.IsZero() {
		t.Errorf("cooldown not cleared (until=%v err=%v)", until, err)
	}
}

func TestRender_EmitsScriptTag(t *testing.T) {
	h, st := setupAppHandler(t, &stubGenerator{})
	savedPage(t, st, "11")
	err := st.SaveCacheRecord(store.CacheRecord{
		PageID: "11", Schema: cachedSchema, ContentHash: "h", GeneratedAt: time.Now(), Status: "ok",
	})
	if err != nil {
		t.Fatalf("SaveCacheRecord: %v", err)
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/pages/11/render", "", testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d; body = %s", rr.Code, rr.Body.String())
	}

	body := rr.Body.String()
	if !strings.Contains(body, `<script type="application/ld+json">`) {
		t.Errorf("render output missing script tag: %s", body)
	}
	if !strings.Contains(body, "LocalBusiness") {
		t.Errorf("render output missing schema content: %s", body)
	}
	if got := rr.Header().Get("X-Inject-Placement"); got != "head" {
		t.Errorf("placement header = %q, want head", got)
	}
}

func TestRender_SuppressedForConflictingSchema(t *testing.T) {
	h, st := setupAppHandler(t, &stubGenerator{})
	err := st.SavePage(store.Page{
		ID: "12", Title: "Conflict", Content: "<p>x</p>",
		Type: "page", TypeHint: "auto", ConflictingSchema: true,
	})
	if err != nil {
		t.Fatalf("SavePage: %v", err)
	}
	err = st.SaveCacheRecord(store.CacheRecord{
		PageID: "12", Schema: cachedSchema, ContentHash: "h", GeneratedAt: time.Now(), Status: "ok",
	})
	if err != nil {
		t.Fatalf("SaveCacheRecord: %v", err)
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/pages/12/render", "", testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if body := strings.TrimSpace(rr.Body.String()); body != "" {
		t.Errorf("conflicting page rendered output: %s", body)
	}
}

func TestRender_DisabledPageType(t *testing.T) {
	h, st := setupAppHandler(t, &stubGenerator{})
	err := st.SavePage(store.Page{
		ID: "13", Title: "Attachment", Content: "<p>x</p>",
		Type: "attachment", TypeHint: "auto",
	})
	if err != nil {
		t.Fatalf("SavePage: %v", err)
	}
	err = st.SaveCacheRecord(store.CacheRecord{
		PageID: "13", Schema: cachedSchema, ContentHash: "h", GeneratedAt: time.Now(), Status: "ok",
	})
	if err != nil {
		t.Fatalf("SaveCacheRecord: %v", err)
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/pages/13/render", "", testToken))
	if body := strings.TrimSpace(rr.Body.String()); body != "" {
		t.Errorf("disabled page type rendered output: %s", body)
	}
}

func TestRender_NoCacheRecord(t *testing.T) {
	h, st := setupAppHandler(t, &stubGenerator{})
	savedPage(t, st, "14")

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/pages/14/render", "", testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if body := strings.TrimSpace(rr.Body.String()); body != "" {
		t.Errorf("ungenerated page rendered output: %s", body)
	}
}
