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

const generateTimeout = 60 * time.Second

// OpenAIProvider speaks the chat-completions wire format. It covers the
// OpenAI API and every compatible upstream (OpenRouter, local servers)
// via the configurable base URL.
type OpenAIProvider struct {
	apiKey        string
	baseURL       string
	model         string
	contextWindow int
	transport     *transport
}

// NewOpenAI builds a provider from the account settings.
func NewOpenAI(acct config.ProviderAccount, limits RateLimitStore) *OpenAIProvider {
	return &OpenAIProvider{
		apiKey:        acct.APIKey,
		baseURL:       strings.TrimRight(acct.BaseURL, "/"),
		model:         acct.Model,
		contextWindow: acct.ContextWindow,
		transport:     newTransport(generateTimeout, limits),
	}
}

func (p *OpenAIProvider) Name() string  { return "openai" }
func (p *OpenAIProvider) Model() string { return p.model }

// MaxContentChars reserves half the context window for input content and
// converts tokens to characters.
func (p *OpenAIProvider) MaxContentChars() int {
	return p.contextWindow / 2 * 7 / 2
}

type chatCompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
	Stream      bool      `json:"stream,omitempty"`
}

type chatCompletionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

type chatCompletionChunk struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

func (p *OpenAIProvider) headers() map[string]string {
	return map[string]string{"Authorization": "Bearer " + p.apiKey}
}

func (p *OpenAIProvider) buildBody(req Request, stream bool) ([]byte, error) {
	body := chatCompletionRequest{
		Model:       p.model,
		Messages:    req.Messages,
		Temperature: req.Temperature,
		MaxTokens:   clampOutputTokens(req.MaxTokens, p.contextWindow, req.Messages),
		Stream:      stream,
	}
	return json.Marshal(body)
}

func (p *OpenAIProvider) Generate(ctx context.Context, req Request) (string, error) {
	body, err := p.buildBody(req, false)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	resp, err := p.transport.do(ctx, p.baseURL+"/chat/completions", body, p.headers())
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out chatCompletionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decoding response: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", fmt.Errorf("response contained no choices")
	}
	return out.Choices[0].Message.Content, nil
}

// GenerateStream consumes the text/event-stream variant, forwarding each
// delta and returning the accumulated text.
func (p *OpenAIProvider) GenerateStream(ctx context.Context, req Request, onDelta func(string)) (string, error) {
	body, err := p.buildBody(req, true)
	if err != nil {
		return "", fmt.Errorf("marshaling request: %w", err)
	}

	resp, err := p.transport.do(ctx, p.baseURL+"/chat/completions", body, p.headers())
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
		if payload == "[DONE]" {
			break
		}
		var chunk chatCompletionChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			continue // tolerate keep-alives and malformed frames
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		delta := chunk.Choices[0].Delta.Content
		if delta == "" {
			continue
		}
		acc.WriteString(delta)
		if onDelta != nil {
			onDelta(delta)
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("reading stream: %w", err)
	}
	return acc.String(), nil
}

// TestConnection sends a one-word prompt with a short deadline.
func (p *OpenAIProvider) TestConnection(ctx context.Context) (string, error) {
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
