// Package extract selects the richest raw content for a page from its
// possible sources: the stored body, the shortcode-expanded body, a page
// builder's proprietary data, or a live fetch of the published URL.
package extract

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/jstrand/ldgen/internal/store"
)

// Source tags where a ContentUnit came from.
type Source string

const (
	SourceStored   Source = "stored"
	SourceRendered Source = "rendered"
	SourceFrontend Source = "frontend-fetch"
)

// BuilderSource tags content extracted from a specific page builder.
func BuilderSource(name string) Source {
	return Source("builder:" + name)
}

// ContentUnit is raw markup plus provenance. It is recomputed per generation
// request and never persisted.
type ContentUnit struct {
	Markup string
	Source Source
}

// MetaReader is the slice of the store the extractor needs.
type MetaReader interface {
	GetAllPageMeta(pageID string) (map[string]string, error)
}

// Fetcher retrieves the rendered page over HTTP.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (string, error)
}

// Extractor computes content candidates and picks the best one.
type Extractor struct {
	meta     MetaReader
	builders []Builder
	fetcher  Fetcher
	logger   *slog.Logger
}

// New creates an Extractor with the default builder registry. fetcher may be
// nil when frontend fetching is disabled.
func New(meta MetaReader, fetcher Fetcher) *Extractor {
	return &Extractor{
		meta:     meta,
		builders: DefaultBuilders(),
		fetcher:  fetcher,
		logger:   slog.Default(),
	}
}

// BestContent computes up to four candidates and returns the one with the
// greatest plain-text length after stripping. A frontend fetch is attempted
// only when includeFrontend is set; its failure is logged and the remaining
// candidates still compete.
func (e *Extractor) BestContent(ctx context.Context, page store.Page, includeFrontend bool) ContentUnit {
	candidates := []ContentUnit{
		{Markup: page.Content, Source: SourceStored},
		{Markup: ExpandShortcodes(page.Content), Source: SourceRendered},
	}

	meta, err := e.meta.GetAllPageMeta(page.ID)
	if err != nil {
		e.logger.Warn("loading page meta", "page_id", page.ID, "error", err)
		meta = map[string]string{}
	}

	// At most one builder is assumed active; the first detection wins.
	for _, b := range e.builders {
		if !b.Detect(page, meta) {
			continue
		}
		markup, err := b.Extract(page, meta)
		if err != nil {
			e.logger.Warn("builder extraction failed", "builder", b.Name(), "page_id", page.ID, "error", err)
			break
		}
		candidates = append(candidates, ContentUnit{Markup: markup, Source: BuilderSource(b.Name())})
		break
	}

	if includeFrontend && e.fetcher != nil && page.URL != "" {
		markup, err := e.fetcher.Fetch(ctx, page.URL)
		if err != nil {
			e.logger.Warn("frontend fetch failed, falling back to stored content", "url", page.URL, "error", err)
		} else {
			candidates = append(candidates, ContentUnit{Markup: markup, Source: SourceFrontend})
		}
	}

	best := candidates[0]
	bestLen := plainLength(best.Markup)
	for _, c := range candidates[1:] {
		if l := plainLength(c.Markup); l > bestLen {
			best, bestLen = c, l
		}
	}
	return best
}

var (
	extractTagRe   = regexp.MustCompile(`(?s)<[^>]*>`)
	extractSpaceRe = regexp.MustCompile(`\s+`)
)

// plainLength measures how much actual text a markup candidate carries.
func plainLength(markup string) int {
	text := extractTagRe.ReplaceAllString(markup, " ")
	text = extractSpaceRe.ReplaceAllString(text, " ")
	return len(strings.TrimSpace(text))
}
