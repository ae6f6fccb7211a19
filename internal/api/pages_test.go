package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jstrand/ldgen/internal/pipeline"
	"github.com/jstrand/ldgen/internal/store"
)

const testToken = "test-token-12345"

type stubGenerator struct {
	result pipeline.Result
	err    error
	status pipeline.PageStatus

	lastPageID string
	lastOpts   pipeline.Options
}

func (g *stubGenerator) Generate(_ context.Context, pageID string, opts pipeline.Options) (pipeline.Result, error) {
	g.lastPageID = pageID
	g.lastOpts = opts
	if g.result.Outcome == "" && g.err == nil {
		return pipeline.Result{Outcome: pipeline.OutcomeGenerated}, nil
	}
	return g.result, g.err
}

func (g *stubGenerator) Status(_ context.Context, pageID string) (pipeline.PageStatus, error) {
	if g.err != nil {
		return pipeline.PageStatus{}, g.err
	}
	st := g.status
	st.PageID = pageID
	return st, nil
}

type stubTester struct {
	msg string
	err error
}

func (s *stubTester) TestConnection(context.Context) (string, error) { return s.msg, s.err }

func setupAppHandler(t *testing.T, gen *stubGenerator) (http.Handler, *store.Store) {
	t.Helper()
	st, err := store.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	handler := NewAppHandler(AppDeps{
		Store:           st,
		Generator:       gen,
		Tester:          &stubTester{msg: "connected"},
		Token:           testToken,
		PageTypeEnabled: func(pageType string) bool { return pageType == "page" || pageType == "post" },
		ConflictGate:    true,
		InjectInHead:    true,
	})
	return handler, st
}

func authReq(method, url, body, token string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, url, reader)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return req
}

func TestAuth_MissingToken(t *testing.T) {
	h, _ := setupAppHandler(t, &stubGenerator{})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/pages", "", ""))
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rr.Code, http.StatusUnauthorized)
	}

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/pages", "", "wrong-token"))
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("status with bad token = %d, want %d", rr.Code, http.StatusUnauthorized)
	}
}

func TestHealth_NoAuthRequired(t *testing.T) {
	h, _ := setupAppHandler(t, &stubGenerator{})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}
}

func TestSavePage_RoundTrip(t *testing.T) {
	h, st := setupAppHandler(t, &stubGenerator{})

	body := `{
		"id": "42",
		"title": "About Acme",
		"content": "<p>We fix pipes.</p>",
		"url": "https://example.com/about",
		"featured_image": "https://example.com/uploads/crew.jpg",
		"categories": ["Plumbing"],
		"tags": ["about", "team"],
		"meta": {"_elementor_data": "[{\"id\":\"a1\"}]"}
	}`
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodPost, "/pages", body, testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body = %s", rr.Code, http.StatusOK, rr.Body.String())
	}

	page, err := st.GetPage("42")
	if err != nil {
		t.Fatalf("GetPage: %v", err)
	}
	if page.Title != "About Acme" {
		t.Errorf("title = %q", page.Title)
	}
	if page.Type != "page" || page.TypeHint != "auto" {
		t.Errorf("defaults not applied: type=%q hint=%q", page.Type, page.TypeHint)
	}
	if page.FeaturedImage != "https://example.com/uploads/crew.jpg" {
		t.Errorf("featured image = %q", page.FeaturedImage)
	}
	if len(page.Categories) != 1 || len(page.Tags) != 2 {
		t.Errorf("taxonomy = %v / %v", page.Categories, page.Tags)
	}

	meta, err := st.GetAllPageMeta("42")
	if err != nil {
		t.Fatalf("GetAllPageMeta: %v", err)
	}
	if meta["_elementor_data"] == "" {
		t.Error("builder meta not persisted")
	}
}

func TestSavePage_MissingID(t *testing.T) {
	h, _ := setupAppHandler(t, &stubGenerator{})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodPost, "/pages", `{"title":"No ID"}`, testToken))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusBadRequest)
	}

	var resp map[string]map[string]string
	json.NewDecoder(rr.Body).Decode(&resp)
	if resp["error"]["type"] != "invalid_request_error" {
		t.Errorf("error type = %q", resp["error"]["type"])
	}
}

func TestGetPage_NotFound(t *testing.T) {
	h, _ := setupAppHandler(t, &stubGenerator{})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodGet, "/pages/missing", "", testToken))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusNotFound)
	}
}

func TestDeletePage(t *testing.T) {
	h, st := setupAppHandler(t, &stubGenerator{})
	if err := st.SavePage(store.Page{ID: "7", Title: "Gone soon", Type: "page", TypeHint: "auto"}); err != nil {
		t.Fatalf("SavePage: %v", err)
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodDelete, "/pages/7", "", testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", rr.Code, http.StatusOK)
	}

	if _, err := st.GetPage("7"); err == nil {
		t.Error("page still present after delete")
	}
}

func TestTestConnection(t *testing.T) {
	h, _ := setupAppHandler(t, &stubGenerator{})

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, authReq(http.MethodPost, "/test-connection", "", testToken))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d; body = %s", rr.Code, http.StatusOK, rr.Body.String())
	}

	var resp map[string]string
	json.NewDecoder(rr.Body).Decode(&resp)
	if resp["message"] != "connected" {
		t.Errorf("message = %q", resp["message"])
	}
}
