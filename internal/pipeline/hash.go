package pipeline

import (
	"crypto/sha256"
	"encoding/hex"
	"io"
	"strings"
	"time"

	"github.com/jstrand/ldgen/internal/config"
	"github.com/jstrand/ldgen/internal/extract"
	"github.com/jstrand/ldgen/internal/store"
)

// Fingerprint computes the cache key for one generation input. Any change
// to the content, the page facts that reach the prompt, the settings
// version, or the provider/model pair produces a new hash and therefore a
// regeneration.
//
// Builder pages are fingerprinted from their raw meta blobs rather than the
// extracted text, so edits inside the builder data invalidate the cache
// even when the extraction happens to produce identical text.
func Fingerprint(page store.Page, unit extract.ContentUnit, meta map[string]string, providerName, model string) string {
	h := sha256.New()

	content := unit.Markup
	if fp := extract.BuilderFingerprint(meta); fp != "" {
		content = fp
	}

	for _, part := range []string{
		content,
		page.Title,
		page.Excerpt,
		page.ModifiedAt.UTC().Format(time.RFC3339),
		config.SettingsVersion,
		providerName,
		model,
		page.TypeHint,
		page.FeaturedImage,
		strings.Join(page.Categories, "\x1f"),
		strings.Join(page.Tags, "\x1f"),
	} {
		io.WriteString(h, part)
		h.Write([]byte{0})
	}

	return hex.EncodeToString(h.Sum(nil))
}
