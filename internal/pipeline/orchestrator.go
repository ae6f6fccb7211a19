// Package pipeline runs the full generation flow for one page: content
// selection, structuring, cache gating, the analysis and generation calls,
// validation, and persistence.
package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/jstrand/ldgen/internal/analyze"
	"github.com/jstrand/ldgen/internal/composer"
	"github.com/jstrand/ldgen/internal/config"
	"github.com/jstrand/ldgen/internal/extract"
	"github.com/jstrand/ldgen/internal/llm"
	"github.com/jstrand/ldgen/internal/schema"
	"github.com/jstrand/ldgen/internal/store"
	"github.com/jstrand/ldgen/internal/structure"
)

// AnalysisMetaKey is the page-meta key holding the pass-1 classification
// for debugging, stored only when the operator opts in.
const AnalysisMetaKey = "_ldgen_analysis"

const (
	cooldownSinglePass = 30 * time.Second
	cooldownTwoPass    = 60 * time.Second

	generateTemperature = 0.2
	generateMaxTokens   = 4096
)

// Outcome classifies how a generation request ended.
type Outcome string

const (
	OutcomeCached          Outcome = "cached"
	OutcomeGenerated       Outcome = "generated"
	OutcomeCooldown        Outcome = "cooldown"
	OutcomeRateLimited     Outcome = "rate_limited"
	OutcomeContentTooShort Outcome = "content_too_short"
	OutcomeError           Outcome = "error"
)

// ErrorKind narrows OutcomeError for callers that report differently per
// failure stage.
type ErrorKind string

const (
	ErrKindAnalysis   ErrorKind = "analysis"
	ErrKindProvider   ErrorKind = "provider"
	ErrKindParse      ErrorKind = "parse"
	ErrKindValidation ErrorKind = "validation"
	ErrKindStorage    ErrorKind = "storage"
)

// Result is the outcome of one generation request.
type Result struct {
	Outcome      Outcome
	Schema       string
	DetectedType string
	ContentHash  string
	Source       extract.Source
	Truncated    bool

	// RetryAfter is set for cooldown and rate-limited outcomes.
	RetryAfter time.Duration

	ErrorKind ErrorKind
	Err       error
}

// Options tunes a single Generate call.
type Options struct {
	// Force skips the content-hash cache check. Cooldown and rate limits
	// still apply.
	Force bool

	// OnDelta, when set, switches the generation call to streaming and
	// receives each text fragment as it arrives.
	OnDelta func(string)
}

// ProviderSource resolves the active LLM provider. *llm.Registry satisfies
// it in production.
type ProviderSource interface {
	Active() (llm.Provider, error)
}

// Orchestrator owns the generation flow.
type Orchestrator struct {
	cfg       config.Config
	store     *store.Store
	extractor *extract.Extractor
	providers ProviderSource
	composer  *composer.Composer
	logger    *slog.Logger

	now func() time.Time
}

func New(cfg config.Config, st *store.Store, extractor *extract.Extractor, providers ProviderSource) *Orchestrator {
	return &Orchestrator{
		cfg:       cfg,
		store:     st,
		extractor: extractor,
		providers: providers,
		composer:  composer.New(cfg),
		logger:    slog.Default(),
		now:       time.Now,
	}
}

// Generate runs the pipeline for one page. A non-nil error is returned only
// for request-level failures (unknown page, misconfigured provider);
// everything that happens past that point is reported through the Result so
// callers can distinguish cache hits, throttling, and generation failures.
func (o *Orchestrator) Generate(ctx context.Context, pageID string, opts Options) (Result, error) {
	page, err := o.store.GetPage(pageID)
	if err != nil {
		return Result{}, fmt.Errorf("loading page %s: %w", pageID, err)
	}
	provider, err := o.providers.Active()
	if err != nil {
		return Result{}, err
	}

	unit := o.extractor.BestContent(ctx, page, o.cfg.Generation.FrontendFetch)
	structured := structure.ToStructuredText(unit.Markup)
	if utf8.RuneCountInString(structured) < o.cfg.Generation.MinContentChars {
		return Result{Outcome: OutcomeContentTooShort, Source: unit.Source}, nil
	}

	maxChars := o.cfg.Generation.MaxContentChars
	if pm := provider.MaxContentChars(); pm > 0 && pm < maxChars {
		maxChars = pm
	}
	trunc := structure.Truncate(structured, maxChars)

	meta, err := o.store.GetAllPageMeta(pageID)
	if err != nil {
		o.logger.Warn("loading page meta for fingerprint", "page_id", pageID, "error", err)
		meta = map[string]string{}
	}
	hash := Fingerprint(page, unit, meta, provider.Name(), provider.Model())

	if !opts.Force {
		cached, err := o.store.GetCacheRecord(pageID)
		if err == nil && cached.Status == "ok" && cached.Schema != "" && cached.ContentHash == hash {
			return Result{
				Outcome:      OutcomeCached,
				Schema:       cached.Schema,
				DetectedType: cached.DetectedType,
				ContentHash:  hash,
				Source:       unit.Source,
				Truncated:    cached.Truncated,
			}, nil
		}
	}

	now := o.now()
	if !opts.Force {
		if until, err := o.store.CooldownUntil(pageID); err == nil && until.After(now) {
			return Result{Outcome: OutcomeCooldown, RetryAfter: until.Sub(now)}, nil
		}
	}
	if until, err := o.store.BlockedUntil(); err == nil && until.After(now) {
		return Result{Outcome: OutcomeRateLimited, RetryAfter: until.Sub(now)}, nil
	}

	// The cooldown is armed before the network call so a hung or failed
	// request still throttles the next attempt.
	cooldown := cooldownSinglePass
	if o.cfg.Generation.TwoPass {
		cooldown = cooldownTwoPass
	}
	if err := o.store.SetCooldown(pageID, now.Add(cooldown)); err != nil {
		o.logger.Warn("setting cooldown", "page_id", pageID, "error", err)
	}

	var analysis *analyze.Result
	if o.cfg.Generation.TwoPass {
		analyzer := analyze.New(provider, o.cfg)
		analysis, err = analyzer.Analyze(ctx, page, trunc.Content)
		if err != nil {
			return o.failure(pageID, ErrKindAnalysis, err)
		}
		if o.cfg.Generation.StoreAnalysisDebug {
			o.storeAnalysisDebug(pageID, analysis)
		}
	}

	messages, err := o.composer.Messages(composer.Input{
		Page:     page,
		Analysis: analysis,
		Content:  singlePassContent(analysis, trunc.Content),
		TypeHint: page.TypeHint,
	})
	if err != nil {
		return o.failure(pageID, ErrKindProvider, err)
	}

	req := llm.Request{
		Messages:    messages,
		Temperature: generateTemperature,
		MaxTokens:   generateMaxTokens,
	}
	var raw string
	if opts.OnDelta != nil {
		raw, err = provider.GenerateStream(ctx, req, opts.OnDelta)
	} else {
		raw, err = provider.Generate(ctx, req)
	}
	if err != nil {
		return o.failure(pageID, ErrKindProvider, err)
	}

	validated, err := schema.Validate(raw)
	if err != nil {
		kind := ErrKindValidation
		var pe *schema.ParseError
		if errors.As(err, &pe) {
			kind = ErrKindParse
		}
		return o.failure(pageID, kind, err)
	}

	rec := store.CacheRecord{
		PageID:       pageID,
		Schema:       validated.JSON,
		ContentHash:  hash,
		GeneratedAt:  o.now(),
		Status:       "ok",
		DetectedType: validated.Type,
		SourceLength: trunc.OriginalLength,
		Truncated:    trunc.Truncated,
	}
	if err := o.store.SaveCacheRecord(rec); err != nil {
		return o.failure(pageID, ErrKindStorage, err)
	}

	o.logger.Info("schema generated",
		"page_id", pageID,
		"type", validated.Type,
		"source", unit.Source,
		"truncated", trunc.Truncated,
		"provider", provider.Name())

	return Result{
		Outcome:      OutcomeGenerated,
		Schema:       validated.JSON,
		DetectedType: validated.Type,
		ContentHash:  hash,
		Source:       unit.Source,
		Truncated:    trunc.Truncated,
	}, nil
}

// failure records the error against the page (keeping any previously good
// schema) and maps provider-level throttling to its own outcome.
func (o *Orchestrator) failure(pageID string, kind ErrorKind, err error) (Result, error) {
	var rle *llm.RateLimitError
	if errors.As(err, &rle) {
		return Result{
			Outcome:    OutcomeRateLimited,
			RetryAfter: time.Duration(rle.RetrySeconds()) * time.Second,
		}, nil
	}

	if markErr := o.store.MarkCacheError(pageID, err.Error()); markErr != nil {
		o.logger.Error("recording generation error", "page_id", pageID, "error", markErr)
	}
	o.logger.Warn("generation failed", "page_id", pageID, "kind", string(kind), "error", err)
	return Result{Outcome: OutcomeError, ErrorKind: kind, Err: err}, nil
}

func (o *Orchestrator) storeAnalysisDebug(pageID string, analysis *analyze.Result) {
	data, err := json.Marshal(analysis)
	if err != nil {
		return
	}
	if err := o.store.SetPageMeta(pageID, AnalysisMetaKey, string(data)); err != nil {
		o.logger.Warn("storing analysis debug meta", "page_id", pageID, "error", err)
	}
}

// singlePassContent returns the structured text only when no analysis is
// available; in two-pass mode the analysis replaces it in the prompt.
func singlePassContent(analysis *analyze.Result, content string) string {
	if analysis != nil {
		return ""
	}
	return content
}

// PageStatus is the cache and throttle state of one page.
type PageStatus struct {
	PageID        string    `json:"page_id"`
	Status        string    `json:"status"`
	DetectedType  string    `json:"detected_type,omitempty"`
	GeneratedAt   time.Time `json:"generated_at,omitempty"`
	ContentHash   string    `json:"content_hash,omitempty"`
	Stale         bool      `json:"stale"`
	CooldownUntil time.Time `json:"cooldown_until,omitempty"`
	LastError     string    `json:"last_error,omitempty"`
	SourceLength  int       `json:"source_length,omitempty"`
	Truncated     bool      `json:"truncated,omitempty"`
}

// Status reports the cache record for a page plus whether the current
// content would hash to something new.
func (o *Orchestrator) Status(ctx context.Context, pageID string) (PageStatus, error) {
	page, err := o.store.GetPage(pageID)
	if err != nil {
		return PageStatus{}, fmt.Errorf("loading page %s: %w", pageID, err)
	}

	st := PageStatus{PageID: pageID, Status: "none"}

	rec, err := o.store.GetCacheRecord(pageID)
	switch {
	case err == nil:
		st.Status = rec.Status
		st.DetectedType = rec.DetectedType
		st.GeneratedAt = rec.GeneratedAt
		st.ContentHash = rec.ContentHash
		st.LastError = rec.LastError
		st.SourceLength = rec.SourceLength
		st.Truncated = rec.Truncated
	case errors.Is(err, store.ErrNotFound):
		// no record yet
	default:
		return PageStatus{}, err
	}

	if until, err := o.store.CooldownUntil(pageID); err == nil && until.After(o.now()) {
		st.CooldownUntil = until
	}

	if st.ContentHash != "" {
		if provider, err := o.providers.Active(); err == nil {
			unit := o.extractor.BestContent(ctx, page, false)
			meta, err := o.store.GetAllPageMeta(pageID)
			if err != nil {
				meta = map[string]string{}
			}
			st.Stale = Fingerprint(page, unit, meta, provider.Name(), provider.Model()) != st.ContentHash
		}
	}

	return st, nil
}
