package llm

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jstrand/ldgen/internal/config"
)

const anthropicVersion = "2023-06-01"

// ClaudeProvider speaks the Anthropic messages API. System messages are
// lifted out of the message list into the top-level system field.
type ClaudeProvider struct {
	apiKey        string
	baseURL       string
	model         string
	contextWindow int
	transport     *transport
}

// NewClaude builds a provider from the account settings.
func NewClaude(acct config.ProviderAccount, limits RateLimitStore) *ClaudeProvider {
	return &ClaudeProvider{
		apiKey:        acct.APIKey,
		baseURL:       strings.TrimRight(acct.BaseURL, "/"),
		model:         acct.Model,
		contextWindow: acct.ContextWindow,
		transport:     newTransport(generateTimeout, limits),
	}
}

func (p *ClaudeProvider) Name() string  { return "claude" }
func (p *ClaudeProvider) Model() string { return p.model }

func (p *ClaudeProvider) MaxContentChars() int {
	return p.contextWindow / 2 * 7 / 2
}

type claudeRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	System      string    `json:"system,omitempty"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature,omitempty"`
	Stream      bool      `json:"stream,omitempty"`
}

type claudeResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
}

type claudeStreamEvent struct {
	Type  string `json:"type"`
	Delta struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"delta"`
}

func (p *ClaudeProvider) headers() map[string]string {
	return map[string]string{
		"x-api-key":         p.apiKey,
		"anthropic-version": anthropicVersion,
	}
}

func (p *ClaudeProvider) buildBody(req Request, stream bool) ([]byte, error) {
	var system string
	msgs := make([]Message, 0, len(req.Messages))
	for _, m := range req.Messages {
		if m.Role == "system" {
			if system != "" {
				system += "\n\n"
			}
			system += m.Content
			continue
		}
		msgs = append(msgs, m)
	}

	body := claudeRequest{
		Model:       p.model,
		MaxTokens:   clampOutputTokens(req.MaxTokens, p.contextWindow, req.Messages),
		System:      system,
		Messages:    msgs,
		Temperature: req.Temperature,
		Stream:      stream,
	}
	return json.Marshal(body)
}

func (p *ClaudeProvider) Generate(ctx context.Context, req Request) (string, error) {
	body, err := p.buildBody(req, false)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	resp, err := p.transport.do(ctx, p.baseURL+"/messages", body, p.headers())
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out claudeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}

	var text strings.Builder
	for _, block := range out.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	if text.Len() == 0 {
		return "", fmt.Errorf("response contained no text blocks")
	}
	return text.String(), nil
}

func (p *ClaudeProvider) GenerateStream(ctx context.Context, req Request, onDelta func(string)) (string, error) {
	body, err := p.buildBody(req, true)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	resp, err := p.transport.do(ctx, p.baseURL+"/messages", body, p.headers())
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var acc strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		var event claudeStreamEvent
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			continue
		}
		if event.Type != "content_block_delta" || event.Delta.Text == "" {
			continue
		}
		acc.WriteString(event.Delta.Text)
		if onDelta != nil {
			onDelta(event.Delta.Text)
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("reading stream: %w", err)
	}
	return acc.String(), nil
}

func (p *ClaudeProvider) TestConnection(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	_, err := p.Generate(ctx, Request{
		Messages:  []Message{{Role: "user", Content: "Reply with OK."}},
		MaxTokens: 8,
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("connected to %s (model %s)", p.baseURL, p.model), nil
}
