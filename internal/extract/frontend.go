package extract

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
)

const (
	fetchTimeout   = 20 * time.Second
	fetchUserAgent = "ldgen/1.0 (+https://github.com/jstrand/ldgen)"
	maxFetchSize   = 5 << 20 // 5MB

	// A heuristic container hit shorter than this is probably a false
	// positive (an empty <main> shell, a theme wrapper).
	minRegionTextLen = 200
)

// contentSelectors are tried in priority order when carving the main region
// out of a rendered page.
var contentSelectors = []string{
	"main",
	"article",
	"[role=main]",
	"#content",
	"#main",
	".site-content",
	".entry-content",
	".content",
}

var chromeSelectors = []string{"script", "style", "noscript", "header", "footer", "nav", "aside"}

// FrontendFetcher retrieves the published page and extracts its main
// content region.
type FrontendFetcher struct {
	client *http.Client
}

// NewFrontendFetcher creates a fetcher with a short timeout; frontend
// fetches happen inside interactive generation requests.
func NewFrontendFetcher() *FrontendFetcher {
	return &FrontendFetcher{
		client: &http.Client{Timeout: fetchTimeout},
	}
}

// Fetch GETs the URL and returns the main-content markup. The ladder is:
// prioritized container selectors, then readability extraction, then the
// body stripped of header/footer/nav/aside.
func (f *FrontendFetcher) Fetch(ctx context.Context, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", fetchUserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml")

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching %s: %w", pageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("unexpected status %d for %s", resp.StatusCode, pageURL)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchSize))
	if err != nil {
		return "", fmt.Errorf("reading response body: %w", err)
	}

	return f.extractMainRegion(string(body), pageURL)
}

func (f *FrontendFetcher) extractMainRegion(rawHTML, pageURL string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return "", fmt.Errorf("parsing HTML: %w", err)
	}

	for _, sel := range chromeSelectors {
		doc.Find(sel).Remove()
	}

	for _, sel := range contentSelectors {
		region := doc.Find(sel).First()
		if region.Length() == 0 {
			continue
		}
		if len(strings.TrimSpace(region.Text())) < minRegionTextLen {
			continue
		}
		markup, err := goquery.OuterHtml(region)
		if err != nil {
			return "", fmt.Errorf("serializing content region: %w", err)
		}
		return markup, nil
	}

	// No container heuristic produced a usable region; let readability
	// find the article.
	if parsed, err := url.Parse(pageURL); err == nil {
		parser := readability.NewParser()
		article, err := parser.Parse(strings.NewReader(rawHTML), parsed)
		if err == nil && strings.TrimSpace(article.Content) != "" {
			return article.Content, nil
		}
	}

	body := doc.Find("body")
	if body.Length() == 0 {
		return "", fmt.Errorf("no content found in %s", pageURL)
	}
	markup, err := body.Html()
	if err != nil {
		return "", fmt.Errorf("serializing body: %w", err)
	}
	return markup, nil
}
