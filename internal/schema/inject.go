package schema

import (
	"encoding/json"
	"strings"
)

// InjectOptions gate whether a cached schema is rendered into page output.
type InjectOptions struct {
	// PageTypeEnabled: post-type is enabled for schema in settings.
	PageTypeEnabled bool
	// ConflictingSchema: another tool already emits schema for this page.
	ConflictingSchema bool
	// ConflictGate: whether ConflictingSchema suppresses injection.
	ConflictGate bool
}

// ScriptTag wraps validated schema JSON for page output. Returns "" when
// any gate suppresses injection or when the cached value no longer parses
// (a corrupt cache is silently dropped rather than rendered broken).
func ScriptTag(schemaJSON string, opts InjectOptions) string {
	if !opts.PageTypeEnabled {
		return ""
	}
	if opts.ConflictGate && opts.ConflictingSchema {
		return ""
	}
	trimmed := strings.TrimSpace(schemaJSON)
	if trimmed == "" || !json.Valid([]byte(trimmed)) {
		return ""
	}
	// "</script>" inside a JSON string would break out of the tag.
	safe := strings.ReplaceAll(trimmed, "</", `<\/`)
	return `<script type="application/ld+json">` + safe + `</script>`
}
