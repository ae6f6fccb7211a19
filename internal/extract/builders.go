package extract

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/jstrand/ldgen/internal/store"
)

// Builder extracts text-bearing content from one page builder's proprietary
// format. Detection is keyed on known post-meta markers; the registry is
// priority-ordered and extensible.
type Builder interface {
	Name() string
	Detect(page store.Page, meta map[string]string) bool
	Extract(page store.Page, meta map[string]string) (string, error)
}

// DefaultBuilders returns the registry in detection priority order.
func DefaultBuilders() []Builder {
	return []Builder{
		elementorBuilder{},
		beaverBuilder{},
		diviBuilder{},
		wpbakeryBuilder{},
	}
}

// builderMetaKeys are the proprietary blobs that participate in content
// fingerprinting. Builder JSON can run to megabytes, so the cache hash takes
// a digest of these rather than the raw values.
var builderMetaKeys = []string{
	"_elementor_data",
	"_fl_builder_data",
	"_et_pb_use_builder",
	"_wpb_vc_js_status",
}

// BuilderFingerprint digests the builder meta blobs present on a page.
// Returns "" when none are present.
func BuilderFingerprint(meta map[string]string) string {
	keys := make([]string, 0, len(builderMetaKeys))
	for _, k := range builderMetaKeys {
		if v, ok := meta[k]; ok && v != "" {
			keys = append(keys, k+"="+v)
		}
	}
	if len(keys) == 0 {
		return ""
	}
	sort.Strings(keys)
	sum := sha256.Sum256([]byte(strings.Join(keys, "\x00")))
	return hex.EncodeToString(sum[:])
}

// --- Elementor ---

// elementorTextKeys are the settings fields Elementor widgets store visible
// text under.
var elementorTextKeys = map[string]bool{
	"title":               true,
	"editor":              true,
	"text":                true,
	"description_text":    true,
	"title_text":          true,
	"testimonial_content": true,
	"testimonial_name":    true,
	"testimonial_job":     true,
	"tab_title":           true,
	"tab_content":         true,
	"alert_title":         true,
	"alert_description":   true,
	"caption":             true,
}

type elementorBuilder struct{}

func (elementorBuilder) Name() string { return "elementor" }

func (elementorBuilder) Detect(_ store.Page, meta map[string]string) bool {
	return meta["_elementor_data"] != ""
}

func (elementorBuilder) Extract(_ store.Page, meta map[string]string) (string, error) {
	var elements []map[string]any
	if err := json.Unmarshal([]byte(meta["_elementor_data"]), &elements); err != nil {
		return "", fmt.Errorf("parsing elementor data: %w", err)
	}
	var parts []string
	for _, el := range elements {
		walkElementorNode(el, &parts)
	}
	return strings.Join(parts, "\n\n"), nil
}

func walkElementorNode(node map[string]any, parts *[]string) {
	if settings, ok := node["settings"].(map[string]any); ok {
		// Deterministic field order regardless of map iteration.
		keys := make([]string, 0, len(settings))
		for k := range settings {
			if elementorTextKeys[k] {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		for _, k := range keys {
			if s, ok := settings[k].(string); ok && strings.TrimSpace(s) != "" {
				*parts = append(*parts, s)
			}
		}
	}
	if children, ok := node["elements"].([]any); ok {
		for _, c := range children {
			if child, ok := c.(map[string]any); ok {
				walkElementorNode(child, parts)
			}
		}
	}
}

// --- Beaver Builder ---

var beaverTextKeys = map[string]bool{
	"text":     true,
	"title":    true,
	"heading":  true,
	"content":  true,
	"subtitle": true,
}

type beaverBuilder struct{}

func (beaverBuilder) Name() string { return "beaver" }

func (beaverBuilder) Detect(_ store.Page, meta map[string]string) bool {
	return meta["_fl_builder_data"] != ""
}

func (beaverBuilder) Extract(_ store.Page, meta map[string]string) (string, error) {
	var nodes map[string]struct {
		Settings map[string]any `json:"settings"`
	}
	if err := json.Unmarshal([]byte(meta["_fl_builder_data"]), &nodes); err != nil {
		return "", fmt.Errorf("parsing beaver builder data: %w", err)
	}

	ids := make([]string, 0, len(nodes))
	for id := range nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var parts []string
	for _, id := range ids {
		settings := nodes[id].Settings
		keys := make([]string, 0, len(settings))
		for k := range settings {
			if beaverTextKeys[k] {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		for _, k := range keys {
			if s, ok := settings[k].(string); ok && strings.TrimSpace(s) != "" {
				parts = append(parts, s)
			}
		}
	}
	return strings.Join(parts, "\n\n"), nil
}

// --- Divi ---

var diviShortcodeRe = regexp.MustCompile(`\[/?et_pb_\w+(?:\s[^\]]*)?\]`)

type diviBuilder struct{}

func (diviBuilder) Name() string { return "divi" }

func (diviBuilder) Detect(_ store.Page, meta map[string]string) bool {
	return meta["_et_pb_use_builder"] == "on"
}

// Divi stores its layout as shortcode soup inside the post body; stripping
// the et_pb_ tags leaves the authored text.
func (diviBuilder) Extract(page store.Page, _ map[string]string) (string, error) {
	return diviShortcodeRe.ReplaceAllString(page.Content, "\n"), nil
}

// --- WPBakery ---

var wpbakeryShortcodeRe = regexp.MustCompile(`\[/?vc_\w+(?:\s[^\]]*)?\]`)

type wpbakeryBuilder struct{}

func (wpbakeryBuilder) Name() string { return "wpbakery" }

func (wpbakeryBuilder) Detect(page store.Page, meta map[string]string) bool {
	return meta["_wpb_vc_js_status"] == "true" || strings.Contains(page.Content, "[vc_row")
}

func (wpbakeryBuilder) Extract(page store.Page, _ map[string]string) (string, error) {
	return wpbakeryShortcodeRe.ReplaceAllString(page.Content, "\n"), nil
}
