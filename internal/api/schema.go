package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/jstrand/ldgen/internal/pipeline"
	"github.com/jstrand/ldgen/internal/regen"
	"github.com/jstrand/ldgen/internal/schema"
	"github.com/jstrand/ldgen/internal/store"
)

// GenerateResponse is the JSON shape of a completed generation request.
type GenerateResponse struct {
	Outcome       string `json:"outcome"`
	Schema        string `json:"schema,omitempty"`
	DetectedType  string `json:"detected_type,omitempty"`
	ContentHash   string `json:"content_hash,omitempty"`
	Source        string `json:"source,omitempty"`
	Truncated     bool   `json:"truncated,omitempty"`
	RetryAfterSec int    `json:"retry_after_sec,omitempty"`
	ErrorKind     string `json:"error_kind,omitempty"`
	Error         string `json:"error,omitempty"`
}

func generateResponse(res pipeline.Result) GenerateResponse {
	out := GenerateResponse{
		Outcome:      string(res.Outcome),
		Schema:       res.Schema,
		DetectedType: res.DetectedType,
		ContentHash:  res.ContentHash,
		Source:       string(res.Source),
		Truncated:    res.Truncated,
		ErrorKind:    string(res.ErrorKind),
	}
	if res.RetryAfter > 0 {
		out.RetryAfterSec = int(res.RetryAfter.Round(time.Second) / time.Second)
		if out.RetryAfterSec < 1 {
			out.RetryAfterSec = 1
		}
	}
	if res.Err != nil {
		out.Error = res.Err.Error()
	}
	return out
}

func handleGenerate(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		force := r.URL.Query().Get("force") == "true"

		if r.URL.Query().Get("async") == "true" {
			jobID, err := regen.Enqueue(deps.Store, id, force)
			if err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "failed to enqueue: %v", err)
				return
			}
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusAccepted)
			json.NewEncoder(w).Encode(map[string]string{"job_id": jobID, "status": "queued"})
			return
		}

		if r.URL.Query().Get("stream") == "true" {
			streamGenerate(w, r, deps, id, force)
			return
		}

		res, err := deps.Generator.Generate(r.Context(), id, pipeline.Options{Force: force})
		if errors.Is(err, store.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "page not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "generation failed: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(statusForOutcome(res.Outcome))
		json.NewEncoder(w).Encode(generateResponse(res))
	}
}

func statusForOutcome(outcome pipeline.Outcome) int {
	switch outcome {
	case pipeline.OutcomeCooldown, pipeline.OutcomeRateLimited:
		return http.StatusTooManyRequests
	case pipeline.OutcomeContentTooShort:
		return http.StatusUnprocessableEntity
	case pipeline.OutcomeError:
		return http.StatusBadGateway
	default:
		return http.StatusOK
	}
}

// streamGenerate runs a streaming generation, relaying raw model deltas as
// SSE data lines, then a final result event, then [DONE].
func streamGenerate(w http.ResponseWriter, r *http.Request, deps AppDeps, id string, force bool) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		httpError(w, http.StatusInternalServerError, "api_error", "streaming not supported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	onDelta := func(delta string) {
		payload, err := json.Marshal(map[string]string{"delta": delta})
		if err != nil {
			return
		}
		fmt.Fprintf(w, "data: %s\n\n", payload)
		flusher.Flush()
	}

	res, err := deps.Generator.Generate(r.Context(), id, pipeline.Options{Force: force, OnDelta: onDelta})
	if err != nil {
		payload, _ := json.Marshal(map[string]any{
			"error": map[string]any{"message": err.Error(), "type": "api_error"},
		})
		fmt.Fprintf(w, "data: %s\n\n", payload)
		flusher.Flush()
		return
	}

	payload, err := json.Marshal(map[string]any{"result": generateResponse(res)})
	if err == nil {
		fmt.Fprintf(w, "data: %s\n\n", payload)
		flusher.Flush()
	}
	fmt.Fprint(w, "data: [DONE]\n\n")
	flusher.Flush()
}

func handleSchemaStatus(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		status, err := deps.Generator.Status(r.Context(), id)
		if errors.Is(err, store.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "page not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get status: %v", err)
			return
		}

		out := map[string]any{"status": status}
		if r.URL.Query().Get("include_schema") == "true" {
			rec, err := deps.Store.GetCacheRecord(id)
			if err == nil && rec.Schema != "" {
				out["schema"] = json.RawMessage(rec.Schema)
			}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(out)
	}
}

func handleClearSchema(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		if err := deps.Store.DeleteCacheRecord(id); err != nil && !errors.Is(err, store.ErrNotFound) {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to clear schema: %v", err)
			return
		}
		if err := deps.Store.ClearCooldown(id); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to clear cooldown: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "cleared"})
	}
}

// handleRender returns the script tag the CMS should inject into the page,
// or an empty body when a gate suppresses output. The X-Inject-Placement
// header tells the CMS whether the tag belongs in the head or the footer.
func handleRender(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		placement := "footer"
		if deps.InjectInHead {
			placement = "head"
		}
		w.Header().Set("X-Inject-Placement", placement)

		page, err := deps.Store.GetPage(id)
		if errors.Is(err, store.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "page not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get page: %v", err)
			return
		}

		rec, err := deps.Store.GetCacheRecord(id)
		if errors.Is(err, store.ErrNotFound) {
			w.Header().Set("Content-Type", "text/html; charset=utf-8")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get schema: %v", err)
			return
		}

		tag := schema.ScriptTag(rec.Schema, schema.InjectOptions{
			PageTypeEnabled:   deps.PageTypeEnabled(page.Type),
			ConflictingSchema: page.ConflictingSchema,
			ConflictGate:      deps.ConflictGate,
		})

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, tag)
	}
}
