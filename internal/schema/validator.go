// Package schema validates LLM output as structurally sound JSON-LD and
// prepares it for injection into page markup.
package schema

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// MaxSchemaBytes caps the serialized schema size. Oversized output is
// rejected outright: truncating JSON after the fact would corrupt it.
const MaxSchemaBytes = 50 * 1024

// ValidationError reports structurally invalid JSON-LD.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return "invalid JSON-LD: " + e.Reason
}

// ParseError reports output no JSON could be extracted from.
type ParseError struct {
	Reason string
	// Excerpt is a truncated slice of the raw response for diagnosis.
	Excerpt string
}

func (e *ParseError) Error() string {
	return "unparseable LLM output: " + e.Reason
}

// Result is a validated, canonically re-serialized schema document.
type Result struct {
	JSON string
	// Type is the primary @type, detected for reporting and caching only.
	Type string
}

var (
	fencedBlockRe = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)```")
	htmlTagRe     = regexp.MustCompile(`(?s)<[^>]+>`)
	objectSpanRe  = regexp.MustCompile(`(?s)\{.*\}`)
	arraySpanRe   = regexp.MustCompile(`(?s)\[.*\]`)
)

// Validate extracts JSON from a possibly markdown-wrapped LLM response,
// checks the JSON-LD structural invariants, and re-serializes canonically.
// Stable key order is not part of the contract; valid re-parseable JSON is.
func Validate(rawText string) (Result, error) {
	value, err := ExtractJSON(rawText)
	if err != nil {
		return Result{}, err
	}

	doc, ok := value.(map[string]any)
	if !ok {
		return Result{}, &ValidationError{Reason: "root must be a JSON object"}
	}

	contextVal, ok := doc["@context"]
	if !ok {
		return Result{}, &ValidationError{Reason: "missing @context"}
	}
	if !contextResolvesToSchemaOrg(contextVal) {
		return Result{}, &ValidationError{Reason: "@context does not resolve to https://schema.org"}
	}

	if graph, present := doc["@graph"]; present {
		if _, ok := graph.([]any); !ok {
			return Result{}, &ValidationError{Reason: "@graph must be an array"}
		}
	}

	serialized, err := json.Marshal(doc)
	if err != nil {
		return Result{}, &ValidationError{Reason: fmt.Sprintf("re-serializing: %v", err)}
	}
	if len(serialized) > MaxSchemaBytes {
		return Result{}, &ValidationError{Reason: fmt.Sprintf("schema exceeds %d bytes", MaxSchemaBytes)}
	}

	return Result{JSON: string(serialized), Type: detectPrimaryType(doc)}, nil
}

// ExtractJSON pulls a JSON value out of noisy LLM text: the text as-is if
// it parses, else the content of a fenced code block, else the outermost
// {...} or [...] span.
func ExtractJSON(rawText string) (any, error) {
	// The LLM occasionally wraps output in stray markup.
	cleaned := strings.TrimSpace(htmlTagRe.ReplaceAllString(rawText, ""))
	if cleaned == "" {
		return nil, &ParseError{Reason: "empty response", Excerpt: excerpt(rawText)}
	}

	candidates := []string{cleaned}
	if m := fencedBlockRe.FindStringSubmatch(cleaned); m != nil {
		candidates = append(candidates, strings.TrimSpace(m[1]))
	}
	if m := objectSpanRe.FindString(cleaned); m != "" {
		candidates = append(candidates, m)
	}
	if m := arraySpanRe.FindString(cleaned); m != "" {
		candidates = append(candidates, m)
	}

	for _, candidate := range candidates {
		var value any
		if err := json.Unmarshal([]byte(candidate), &value); err == nil {
			return value, nil
		}
	}
	return nil, &ParseError{Reason: "no parseable JSON found", Excerpt: excerpt(rawText)}
}

func contextResolvesToSchemaOrg(v any) bool {
	switch c := v.(type) {
	case string:
		return c == "https://schema.org" || c == "http://schema.org" || c == "https://schema.org/"
	case map[string]any:
		// Expanded context objects carry a @vocab entry.
		if vocab, ok := c["@vocab"].(string); ok {
			return strings.Contains(vocab, "schema.org")
		}
	}
	return false
}

// detectPrimaryType reads @type from the root or the first @graph entry.
// Informational only; validation does not branch on it.
func detectPrimaryType(doc map[string]any) string {
	if t := typeOf(doc); t != "" {
		return t
	}
	if graph, ok := doc["@graph"].([]any); ok && len(graph) > 0 {
		if first, ok := graph[0].(map[string]any); ok {
			return typeOf(first)
		}
	}
	return ""
}

func typeOf(node map[string]any) string {
	switch t := node["@type"].(type) {
	case string:
		return t
	case []any:
		if len(t) > 0 {
			if s, ok := t[0].(string); ok {
				return s
			}
		}
	}
	return ""
}

const maxExcerptLen = 300

func excerpt(raw string) string {
	runes := []rune(raw)
	if len(runes) <= maxExcerptLen {
		return raw
	}
	return string(runes[:maxExcerptLen]) + "..."
}
