package schema

import (
	"strings"
	"testing"
)

const validSchema = `{"@context":"https://schema.org","@type":"WebPage"}`

func TestScriptTagRendersValidSchema(t *testing.T) {
	tag := ScriptTag(validSchema, InjectOptions{PageTypeEnabled: true})
	if !strings.HasPrefix(tag, `<script type="application/ld+json">`) || !strings.HasSuffix(tag, `</script>`) {
		t.Errorf("malformed tag: %q", tag)
	}
	if !strings.Contains(tag, `"@type":"WebPage"`) {
		t.Errorf("schema missing from tag: %q", tag)
	}
}

func TestScriptTagDisabledPageType(t *testing.T) {
	if tag := ScriptTag(validSchema, InjectOptions{PageTypeEnabled: false}); tag != "" {
		t.Errorf("tag rendered for disabled page type: %q", tag)
	}
}

func TestScriptTagConflictGate(t *testing.T) {
	opts := InjectOptions{PageTypeEnabled: true, ConflictingSchema: true, ConflictGate: true}
	if tag := ScriptTag(validSchema, opts); tag != "" {
		t.Errorf("tag rendered despite conflicting schema: %q", tag)
	}

	// Gate disabled: conflict is ignored.
	opts.ConflictGate = false
	if tag := ScriptTag(validSchema, opts); tag == "" {
		t.Error("tag suppressed with conflict gate off")
	}
}

func TestScriptTagInvalidJSONDropped(t *testing.T) {
	if tag := ScriptTag("{broken", InjectOptions{PageTypeEnabled: true}); tag != "" {
		t.Errorf("tag rendered for corrupt cache value: %q", tag)
	}
	if tag := ScriptTag("  ", InjectOptions{PageTypeEnabled: true}); tag != "" {
		t.Errorf("tag rendered for empty schema: %q", tag)
	}
}

func TestScriptTagEscapesCloser(t *testing.T) {
	schema := `{"@context":"https://schema.org","description":"bad </script> content"}`
	tag := ScriptTag(schema, InjectOptions{PageTypeEnabled: true})
	if strings.Contains(tag[len(`<script type="application/ld+json">`):len(tag)-len(`</script>`)], "</script>") {
		t.Errorf("unescaped closer inside tag body: %q", tag)
	}
	if !strings.Contains(tag, `<\/script>`) {
		t.Errorf("closer not escaped: %q", tag)
	}
}
