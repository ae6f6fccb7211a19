package analyze

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/jstrand/ldgen/internal/config"
	"github.com/jstrand/ldgen/internal/llm"
	"github.com/jstrand/ldgen/internal/schema"
	"github.com/jstrand/ldgen/internal/store"
)

const systemPrompt = `You are a content classification engine. You receive the annotated text of a web page and classify every piece of content into typed sections.

The text uses structural markers: "## heading ##", [LIST START]/[LIST END], [NUMBERED LIST START]/[NUMBERED LIST END], [TESTIMONIAL START]/[TESTIMONIAL END] with Quote:/Author:/Rating: lines, [FAQ ITEM START]/[FAQ ITEM END] with Question:/Answer: lines, and [SECTION]/[ARTICLE]/[ASIDE] region markers. Use them.

Respond with a single JSON object and nothing else:
{
  "page_type": "homepage|about|services|contact|product|blog_post|landing|other",
  "page_summary": "one or two sentences",
  "organization": {"name": "", "description": "", "industry": ""},
  "services": [{"name": "", "description": "", "position": 1}],
  "testimonials": [{"quote": "", "author_name": "", "author_title": "", "author_company": "", "rating": 5, "rating_max": 5, "position": 1}],
  "faqs": [{"question": "", "answer": "", "position": 1}],
  "team_members": [{"name": "", "role": "", "bio": "", "position": 1}],
  "products": [{"name": "", "description": "", "price": "", "position": 1}],
  "events": [{"name": "", "start_date": "", "end_date": "", "location": "", "position": 1}],
  "how_to_steps": [{"name": "", "text": "", "position": 1}],
  "contact_info": {"email": "", "phone": "", "address": ""},
  "statistics": [{"label": "", "value": "", "position": 1}],
  "item_counts": {"services": 0, "testimonials": 0, "faqs": 0, "team_members": 0, "products": 0, "events": 0, "how_to_steps": 0, "statistics": 0}
}

Rules:
- "page_type" is required. Omit any other field that has no support in the text.
- Extract EVERY item of a repeated category. If the page shows six testimonials, return six entries — do not stop after the first one.
- "position" numbers items in source order, starting at 1.
- Fill "item_counts" with the number of items you extracted per category.
- Never invent content that is not grounded in the text.`

// Payload is the user-message body for the classification request.
type Payload struct {
	Page         PagePayload    `json:"page"`
	Site         SitePayload    `json:"site"`
	TypeHint     string         `json:"typeHint"`
	BusinessData map[string]any `json:"businessData,omitempty"`
}

type PagePayload struct {
	Title   string `json:"title"`
	URL     string `json:"url,omitempty"`
	Type    string `json:"type,omitempty"`
	Content string `json:"content"`
}

type SitePayload struct {
	Name        string `json:"name,omitempty"`
	URL         string `json:"url,omitempty"`
	Description string `json:"description,omitempty"`
}

// Analyzer runs pass-1 classification against the active provider.
type Analyzer struct {
	provider llm.Provider
	cfg      config.Config
	logger   *slog.Logger
}

// New creates an Analyzer.
func New(provider llm.Provider, cfg config.Config) *Analyzer {
	return &Analyzer{provider: provider, cfg: cfg, logger: slog.Default()}
}

// Analyze classifies the prepared structured content of a page. content is
// the already-truncated structured text.
func (a *Analyzer) Analyze(ctx context.Context, page store.Page, content string) (*Result, error) {
	payload := Payload{
		Page: PagePayload{
			Title:   page.Title,
			URL:     page.URL,
			Type:    page.Type,
			Content: content,
		},
		Site: SitePayload{
			Name:        a.cfg.Site.Name,
			URL:         a.cfg.Site.URL,
			Description: a.cfg.Site.Description,
		},
		TypeHint: page.TypeHint,
	}
	if a.cfg.Business.Name != "" {
		payload.BusinessData = map[string]any{
			"name":     a.cfg.Business.Name,
			"industry": a.cfg.Business.Industry,
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshaling analysis payload: %w", err)
	}

	raw, err := a.provider.Generate(ctx, llm.Request{
		Messages: []llm.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: string(body)},
		},
		Temperature: 0.2,
		MaxTokens:   4096,
	})
	if err != nil {
		return nil, err
	}

	return parseResult(raw, a.logger)
}

// parseResult decodes the classification JSON. Failure to decode, or a
// missing page_type, is a parse error for the whole attempt.
func parseResult(raw string, logger *slog.Logger) (*Result, error) {
	value, err := schema.ExtractJSON(raw)
	if err != nil {
		return nil, err
	}
	normalized, err := json.Marshal(value)
	if err != nil {
		return nil, &schema.ParseError{Reason: fmt.Sprintf("re-serializing analysis: %v", err)}
	}

	var result Result
	if err := json.Unmarshal(normalized, &result); err != nil {
		return nil, &schema.ParseError{Reason: fmt.Sprintf("decoding analysis: %v", err)}
	}
	if result.PageType == "" {
		return nil, &schema.ParseError{Reason: "analysis missing page_type"}
	}

	// item_counts is self-reported and may be wrong; mismatches are worth a
	// log line, not a failure.
	actual := result.counts()
	for category, reported := range result.ItemCounts {
		if got, ok := actual[category]; ok && got != reported {
			logger.Warn("analysis item_counts mismatch",
				"category", category, "reported", reported, "actual", got)
		}
	}

	return &result, nil
}
