// Package api exposes the generation pipeline over HTTP: page sync from
// the CMS, schema generation (sync, streaming, or queued), status
// reporting, and render output.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jstrand/ldgen/internal/pipeline"
	"github.com/jstrand/ldgen/internal/store"
)

const maxPageBodySize = 10 << 20 // 10MB

// Generator is the slice of the pipeline the handlers need.
type Generator interface {
	Generate(ctx context.Context, pageID string, opts pipeline.Options) (pipeline.Result, error)
	Status(ctx context.Context, pageID string) (pipeline.PageStatus, error)
}

// ConnectionTester issues a minimal provider request.
type ConnectionTester interface {
	TestConnection(ctx context.Context) (string, error)
}

type AppDeps struct {
	Store     *store.Store
	Generator Generator
	Tester    ConnectionTester
	Token     string

	// PageTypeEnabled, ConflictGate and InjectInHead drive the render
	// endpoint.
	PageTypeEnabled func(string) bool
	ConflictGate    bool
	InjectInHead    bool
}

func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/pages", handleSavePage(deps))
		r.Get("/pages", handleListPages(deps))
		r.Get("/pages/{id}", handleGetPage(deps))
		r.Delete("/pages/{id}", handleDeletePage(deps))

		r.Post("/pages/{id}/schema", handleGenerate(deps))
		r.Get("/pages/{id}/schema", handleSchemaStatus(deps))
		r.Delete("/pages/{id}/schema", handleClearSchema(deps))
		r.Get("/pages/{id}/render", handleRender(deps))

		r.Post("/test-connection", handleTestConnection(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// PageRequest is the CMS-side page sync payload.
type PageRequest struct {
	ID                string            `json:"id"`
	Title             string            `json:"title"`
	Slug              string            `json:"slug"`
	Content           string            `json:"content"`
	Excerpt           string            `json:"excerpt"`
	Author            string            `json:"author"`
	Type              string            `json:"type"`
	TypeHint          string            `json:"type_hint"`
	URL               string            `json:"url"`
	FeaturedImage     string            `json:"featured_image"`
	Categories        []string          `json:"categories"`
	Tags              []string          `json:"tags"`
	ConflictingSchema bool              `json:"conflicting_schema"`
	CreatedAt         time.Time         `json:"created_at"`
	ModifiedAt        time.Time         `json:"modified_at"`
	Meta              map[string]string `json:"meta"`
}

func handleSavePage(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxPageBodySize)
		defer r.Body.Close()

		var req PageRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.ID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "id is required")
			return
		}
		if req.Type == "" {
			req.Type = "page"
		}
		if req.TypeHint == "" {
			req.TypeHint = "auto"
		}

		page := store.Page{
			ID:                req.ID,
			Title:             req.Title,
			Slug:              req.Slug,
			Content:           req.Content,
			Excerpt:           req.Excerpt,
			Author:            req.Author,
			Type:              req.Type,
			TypeHint:          req.TypeHint,
			URL:               req.URL,
			FeaturedImage:     req.FeaturedImage,
			Categories:        req.Categories,
			Tags:              req.Tags,
			ConflictingSchema: req.ConflictingSchema,
			CreatedAt:         req.CreatedAt,
			ModifiedAt:        req.ModifiedAt,
		}
		if err := deps.Store.SavePage(page); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to save page: %v", err)
			return
		}
		for key, value := range req.Meta {
			if err := deps.Store.SetPageMeta(req.ID, key, value); err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "failed to save meta %q: %v", key, err)
				return
			}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"id": req.ID, "status": "saved"})
	}
}

func handleListPages(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)

		pages, err := deps.Store.ListPages(limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list pages: %v", err)
			return
		}
		if pages == nil {
			pages = []store.Page{}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(pages)
	}
}

func handleGetPage(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		page, err := deps.Store.GetPage(id)
		if errors.Is(err, store.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "page not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get page: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(page)
	}
}

func handleDeletePage(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		err := deps.Store.DeletePage(id)
		if errors.Is(err, store.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "page not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to delete page: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "deleted"})
	}
}

func handleTestConnection(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		msg, err := deps.Tester.TestConnection(r.Context())
		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "connection test failed: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok", "message": msg})
	}
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
