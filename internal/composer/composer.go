// Package composer assembles the generation prompt: page facts, site and
// business data, the pass-1 analysis, and a bounded schema.org property
// reference, serialized as a single JSON payload for the model.
package composer

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jstrand/ldgen/internal/analyze"
	"github.com/jstrand/ldgen/internal/config"
	"github.com/jstrand/ldgen/internal/llm"
	"github.com/jstrand/ldgen/internal/store"
)

const systemPrompt = `You are a schema.org structured data expert. Generate valid JSON-LD markup for the page described in the user message.

Rules:
- Output ONLY a single JSON object. No markdown, no code fences, no commentary.
- The root object must have "@context": "https://schema.org" and a "@graph" array.
- Give every entity in @graph an "@id" and cross-reference entities by @id instead of duplicating them.
- Use only facts present in the provided data. Never invent names, addresses, ratings, prices, dates or phone numbers.
- When an analysis section lists items (testimonials, faqs, services, team_members), include every listed item.
- Prefer the types and properties from the reference section; other valid schema.org vocabulary is allowed when the data clearly calls for it.
- Omit properties you have no data for rather than emitting empty strings.`

// dayCodes maps config weekday keys to the two-letter codes used in
// compact opening-hours notation.
var dayCodes = map[string]string{
	"monday":    "Mo",
	"tuesday":   "Tu",
	"wednesday": "We",
	"thursday":  "Th",
	"friday":    "Fr",
	"saturday":  "Sa",
	"sunday":    "Su",
}

var dayOrder = []string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"}

// Composer builds the pass-2 prompt from everything the pipeline knows
// about a page.
type Composer struct {
	site     config.SiteConfig
	business config.BusinessConfig
}

func New(cfg config.Config) *Composer {
	return &Composer{site: cfg.Site, business: cfg.Business}
}

// Input carries the per-page facts for one prompt build. Analysis is nil
// in single-pass mode, in which case Content must hold the structured
// text instead.
type Input struct {
	Page     store.Page
	Analysis *analyze.Result
	Content  string
	TypeHint string
}

// Messages produces the chat turns for the generation call.
func (c *Composer) Messages(in Input) ([]llm.Message, error) {
	payload, err := c.payload(in)
	if err != nil {
		return nil, err
	}
	body, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode prompt payload: %w", err)
	}
	return []llm.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: string(body)},
	}, nil
}

func (c *Composer) payload(in Input) (map[string]any, error) {
	detectedType := ""
	if in.Analysis != nil {
		detectedType = in.Analysis.PageType
	}

	raw := map[string]any{
		"page": map[string]any{
			"title":          in.Page.Title,
			"url":            in.Page.URL,
			"type":           in.Page.Type,
			"excerpt":        in.Page.Excerpt,
			"author":         in.Page.Author,
			"featured_image": in.Page.FeaturedImage,
			"categories":     in.Page.Categories,
			"tags":           in.Page.Tags,
			"date_created":   formatDate(in.Page.CreatedAt),
			"date_modified":  formatDate(in.Page.ModifiedAt),
		},
		"site": map[string]any{
			"name":        c.site.Name,
			"url":         c.site.URL,
			"description": c.site.Description,
		},
		"business":  c.businessData(),
		"type_hint": in.TypeHint,
		"reference": ReferenceFor(in.TypeHint, detectedType),
	}

	if in.Analysis != nil {
		analysisJSON, err := json.Marshal(in.Analysis)
		if err != nil {
			return nil, fmt.Errorf("encode analysis: %w", err)
		}
		var analysisMap map[string]any
		if err := json.Unmarshal(analysisJSON, &analysisMap); err != nil {
			return nil, fmt.Errorf("decode analysis: %w", err)
		}
		raw["analysis"] = analysisMap
	} else {
		raw["content"] = in.Content
	}

	pruned, _ := pruneEmpty(raw).(map[string]any)
	if pruned == nil {
		pruned = map[string]any{}
	}
	return pruned, nil
}

func (c *Composer) businessData() map[string]any {
	data := map[string]any{
		"name":          c.business.Name,
		"description":   c.business.Description,
		"industry":      c.business.Industry,
		"logo_url":      c.business.LogoURL,
		"email":         c.business.Email,
		"telephone":     c.business.Phone,
		"founding_date": c.business.FoundingDate,
		"social_links":  c.business.SocialLinks,
	}

	var locations []map[string]any
	for _, loc := range c.business.Locations {
		locations = append(locations, map[string]any{
			"name":        loc.Name,
			"street":      loc.Street,
			"city":        loc.City,
			"region":      loc.Region,
			"postal_code": loc.PostalCode,
			"country":     loc.Country,
			"telephone":   loc.Phone,
			"email":       loc.Email,
			"hours":       CompressHours(loc.OpeningHours),
		})
	}
	data["locations"] = locations
	return data
}

// CompressHours rewrites weekday keys to two-letter codes and merges
// consecutive days sharing a time range into spans like "Mo-Fr".
func CompressHours(hours map[string]string) map[string]string {
	if len(hours) == 0 {
		return nil
	}

	type run struct {
		start, end int
		rng        string
	}
	var runs []run
	for i, day := range dayOrder {
		rng := strings.TrimSpace(hours[day])
		if rng == "" {
			continue
		}
		if n := len(runs); n > 0 && runs[n-1].rng == rng && runs[n-1].end == i-1 {
			runs[n-1].end = i
			continue
		}
		runs = append(runs, run{start: i, end: i, rng: rng})
	}

	out := make(map[string]string, len(runs))
	for _, r := range runs {
		key := dayCodes[dayOrder[r.start]]
		if r.end > r.start {
			key += "-" + dayCodes[dayOrder[r.end]]
		}
		out[key] = r.rng
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// pruneEmpty strips empty strings, nil values, and empty containers
// recursively so the prompt never carries placeholder fields.
func pruneEmpty(v any) any {
	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			if cleaned := pruneEmpty(item); cleaned != nil {
				out[k] = cleaned
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	case map[string]string:
		if len(val) == 0 {
			return nil
		}
		return val
	case []map[string]any:
		var out []any
		for _, item := range val {
			if cleaned := pruneEmpty(item); cleaned != nil {
				out = append(out, cleaned)
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	case []any:
		var out []any
		for _, item := range val {
			if cleaned := pruneEmpty(item); cleaned != nil {
				out = append(out, cleaned)
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	case []string:
		var out []string
		for _, s := range val {
			if strings.TrimSpace(s) != "" {
				out = append(out, s)
			}
		}
		if len(out) == 0 {
			return nil
		}
		return out
	case string:
		if strings.TrimSpace(val) == "" {
			return nil
		}
		return val
	case nil:
		return nil
	default:
		return val
	}
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}
