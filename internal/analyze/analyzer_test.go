package analyze

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/jstrand/ldgen/internal/config"
	"github.com/jstrand/ldgen/internal/llm"
	"github.com/jstrand/ldgen/internal/schema"
	"github.com/jstrand/ldgen/internal/store"
)

type canned struct {
	reply string
	err   error

	lastReq llm.Request
}

func (c *canned) Name() string  { return "canned" }
func (c *canned) Model() string { return "canned-1" }

func (c *canned) Generate(_ context.Context, req llm.Request) (string, error) {
	c.lastReq = req
	return c.reply, c.err
}

func (c *canned) GenerateStream(ctx context.Context, req llm.Request, onDelta func(string)) (string, error) {
	return c.Generate(ctx, req)
}

func (c *canned) TestConnection(context.Context) (string, error) { return "ok", nil }
func (c *canned) MaxContentChars() int                           { return 100000 }

func testPage() store.Page {
	return store.Page{
		ID:       "1",
		Title:    "Our Services",
		URL:      "https://example.com/services",
		Type:     "page",
		TypeHint: "auto",
	}
}

func TestAnalyzeDecodesResult(t *testing.T) {
	provider := &canned{reply: `{
		"page_type": "services",
		"page_summary": "Plumbing services overview.",
		"services": [
			{"name": "Water heater installation", "position": 1},
			{"name": "Drain inspection", "position": 2}
		],
		"item_counts": {"services": 2}
	}`}
	a := New(provider, config.Config{Site: config.SiteConfig{Name: "Acme"}})

	res, err := a.Analyze(context.Background(), testPage(), "## Our Services ##\ncontent")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if res.PageType != "services" {
		t.Errorf("page_type = %q", res.PageType)
	}
	if len(res.Services) != 2 || res.Services[1].Name != "Drain inspection" {
		t.Errorf("services = %+v", res.Services)
	}

	if len(provider.lastReq.Messages) != 2 {
		t.Fatalf("got %d messages", len(provider.lastReq.Messages))
	}
	var payload Payload
	if err := json.Unmarshal([]byte(provider.lastReq.Messages[1].Content), &payload); err != nil {
		t.Fatalf("user message not JSON: %v", err)
	}
	if payload.Page.Title != "Our Services" || payload.Page.Content == "" {
		t.Errorf("payload page = %+v", payload.Page)
	}
}

func TestAnalyzeAcceptsFencedOutput(t *testing.T) {
	provider := &canned{reply: "Here is the classification:\n```json\n{\"page_type\":\"about\"}\n```"}
	a := New(provider, config.Config{})

	res, err := a.Analyze(context.Background(), testPage(), "content")
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if res.PageType != "about" {
		t.Errorf("page_type = %q", res.PageType)
	}
}

func TestAnalyzeMissingPageType(t *testing.T) {
	provider := &canned{reply: `{"page_summary": "no classification"}`}
	a := New(provider, config.Config{})

	_, err := a.Analyze(context.Background(), testPage(), "content")
	var pe *schema.ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want ParseError", err)
	}
	if !strings.Contains(pe.Reason, "page_type") {
		t.Errorf("reason = %q", pe.Reason)
	}
}

func TestAnalyzeUnparseableOutput(t *testing.T) {
	provider := &canned{reply: "I am unable to classify this page."}
	a := New(provider, config.Config{})

	_, err := a.Analyze(context.Background(), testPage(), "content")
	var pe *schema.ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("err = %v, want ParseError", err)
	}
}

func TestAnalyzeProviderErrorPassedThrough(t *testing.T) {
	wantErr := errors.New("upstream down")
	a := New(&canned{err: wantErr}, config.Config{})

	if _, err := a.Analyze(context.Background(), testPage(), "content"); !errors.Is(err, wantErr) {
		t.Errorf("err = %v, want %v", err, wantErr)
	}
}

func TestAnalyzeCountMismatchIsNotFatal(t *testing.T) {
	provider := &canned{reply: `{
		"page_type": "services",
		"services": [{"name": "Only one", "position": 1}],
		"item_counts": {"services": 3}
	}`}
	a := New(provider, config.Config{})

	res, err := a.Analyze(context.Background(), testPage(), "content")
	if err != nil {
		t.Fatalf("count mismatch treated as error: %v", err)
	}
	if len(res.Services) != 1 {
		t.Errorf("services = %+v", res.Services)
	}
}
