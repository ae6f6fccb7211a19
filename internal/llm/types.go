// Package llm holds the provider abstraction and HTTP transports for the
// upstream completion APIs.
package llm

import "context"

// Message is a chat message in the provider-neutral shape.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Request is a provider-neutral completion request. MaxTokens is a request,
// not a promise: the transport clamps it to fit the provider's context
// window.
type Request struct {
	Messages    []Message
	Temperature float64
	MaxTokens   int
}

// Provider is the capability set one upstream API implements.
type Provider interface {
	Name() string
	Model() string

	// Generate runs a completion and returns the raw assistant text.
	Generate(ctx context.Context, req Request) (string, error)

	// GenerateStream runs a streaming completion, forwarding each text
	// delta to onDelta as it arrives, and returns the accumulated text.
	GenerateStream(ctx context.Context, req Request, onDelta func(string)) (string, error)

	// TestConnection issues a minimal request and returns a human-readable
	// success message.
	TestConnection(ctx context.Context) (string, error)

	// MaxContentChars is the largest structured-content payload worth
	// sending for the configured model.
	MaxContentChars() int
}

const (
	// tokenCharRatio is a conservative chars-per-token estimate used for
	// input sizing. Erring low overestimates input tokens, which is the
	// safe direction.
	tokenCharRatio = 3.5

	// safetyBufferTokens absorbs estimation error plus message framing
	// overhead.
	safetyBufferTokens = 500

	// minOutputTokens is the floor below which a completion is certain to
	// truncate uselessly.
	minOutputTokens = 256
)

// estimateTokens counts input tokens for a message list with the char/3.5
// heuristic.
func estimateTokens(messages []Message) int {
	total := 0
	for _, m := range messages {
		total += int(float64(len(m.Content))/tokenCharRatio) + 1
	}
	return total
}

// clampOutputTokens bounds the requested output budget so input + output +
// safety buffer fits the context window, flooring at minOutputTokens.
func clampOutputTokens(requested, contextWindow int, messages []Message) int {
	if requested <= 0 {
		requested = 4096
	}
	available := contextWindow - estimateTokens(messages) - safetyBufferTokens
	if requested > available {
		requested = available
	}
	if requested < minOutputTokens {
		requested = minOutputTokens
	}
	return requested
}
