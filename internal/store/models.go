package store

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Page is a piece of content the pipeline can generate schema for.
type Page struct {
	ID                string
	Title             string
	Slug              string
	Content           string
	Excerpt           string
	Author            string
	Type              string // "page", "post", ...
	TypeHint          string // "auto" or a schema.org type chosen by the editor
	URL               string
	FeaturedImage     string
	Categories        []string
	Tags              []string
	ConflictingSchema bool // another tool already emits schema for this page
	CreatedAt         time.Time
	ModifiedAt        time.Time
}

// CacheRecord holds the generated schema for one content version of a page.
// On a failed generation only Status/LastError change; Schema keeps the last
// good value.
type CacheRecord struct {
	PageID       string
	Schema       string
	ContentHash  string
	GeneratedAt  time.Time
	Status       string // "ok" or "error"
	LastError    string
	DetectedType string
	SourceLength int
	Truncated    bool
}

// Job is one entry in the deferred-regeneration queue.
type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}
