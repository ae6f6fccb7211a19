package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// SavePage inserts or replaces a page. ModifiedAt is bumped to now when zero.
func (s *Store) SavePage(p Page) error {
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.ModifiedAt.IsZero() {
		p.ModifiedAt = now
	}
	_, err := s.db.Exec(`
		INSERT INTO pages (id, title, slug, content, excerpt, author, type, type_hint, url, featured_image, categories, tags, conflicting_schema, created_at, modified_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			slug = excluded.slug,
			content = excluded.content,
			excerpt = excluded.excerpt,
			author = excluded.author,
			type = excluded.type,
			type_hint = excluded.type_hint,
			url = excluded.url,
			featured_image = excluded.featured_image,
			categories = excluded.categories,
			tags = excluded.tags,
			conflicting_schema = excluded.conflicting_schema,
			modified_at = excluded.modified_at`,
		p.ID, p.Title, p.Slug, p.Content, p.Excerpt, p.Author, p.Type, p.TypeHint, p.URL,
		p.FeaturedImage, encodeList(p.Categories), encodeList(p.Tags),
		boolToInt(p.ConflictingSchema),
		p.CreatedAt.Format(time.RFC3339), p.ModifiedAt.Format(time.RFC3339),
	)
	return err
}

// GetPage returns the page with the given id, or ErrNotFound.
func (s *Store) GetPage(id string) (Page, error) {
	var p Page
	var conflicting int
	var createdAt, modifiedAt, categories, tags string
	err := s.db.QueryRow(`
		SELECT id, title, slug, content, excerpt, author, type, type_hint, url, featured_image, categories, tags, conflicting_schema, created_at, modified_at
		FROM pages WHERE id = ?`, id,
	).Scan(&p.ID, &p.Title, &p.Slug, &p.Content, &p.Excerpt, &p.Author, &p.Type, &p.TypeHint, &p.URL, &p.FeaturedImage, &categories, &tags, &conflicting, &createdAt, &modifiedAt)
	if err == sql.ErrNoRows {
		return Page{}, ErrNotFound
	}
	if err != nil {
		return Page{}, err
	}
	p.Categories = decodeList(categories)
	p.Tags = decodeList(tags)
	p.ConflictingSchema = conflicting != 0
	if p.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
		return Page{}, fmt.Errorf("parsing created_at: %w", err)
	}
	if p.ModifiedAt, err = time.Parse(time.RFC3339, modifiedAt); err != nil {
		return Page{}, fmt.Errorf("parsing modified_at: %w", err)
	}
	return p, nil
}

// ListPages returns up to limit pages ordered by most recently modified.
func (s *Store) ListPages(limit int) ([]Page, error) {
	rows, err := s.db.Query(`
		SELECT id, title, slug, content, excerpt, author, type, type_hint, url, featured_image, categories, tags, conflicting_schema, created_at, modified_at
		FROM pages ORDER BY modified_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var pages []Page
	for rows.Next() {
		var p Page
		var conflicting int
		var createdAt, modifiedAt, categories, tags string
		if err := rows.Scan(&p.ID, &p.Title, &p.Slug, &p.Content, &p.Excerpt, &p.Author, &p.Type, &p.TypeHint, &p.URL, &p.FeaturedImage, &categories, &tags, &conflicting, &createdAt, &modifiedAt); err != nil {
			return nil, err
		}
		p.Categories = decodeList(categories)
		p.Tags = decodeList(tags)
		p.ConflictingSchema = conflicting != 0
		if p.CreatedAt, err = time.Parse(time.RFC3339, createdAt); err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		if p.ModifiedAt, err = time.Parse(time.RFC3339, modifiedAt); err != nil {
			return nil, fmt.Errorf("parsing modified_at: %w", err)
		}
		pages = append(pages, p)
	}
	return pages, rows.Err()
}

// DeletePage removes a page and, via foreign keys, its meta, cache record
// and cooldown state.
func (s *Store) DeletePage(id string) error {
	res, err := s.db.Exec(`DELETE FROM pages WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SetPageMeta upserts one meta key for a page.
func (s *Store) SetPageMeta(pageID, key, value string) error {
	_, err := s.db.Exec(`
		INSERT INTO page_meta (page_id, key, value, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT(page_id, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		pageID, key, value, time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// GetPageMeta returns the value for one meta key, or ErrNotFound.
func (s *Store) GetPageMeta(pageID, key string) (string, error) {
	var value string
	err := s.db.QueryRow("SELECT value FROM page_meta WHERE page_id = ? AND key = ?", pageID, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", ErrNotFound
	}
	return value, err
}

// GetAllPageMeta returns every meta key/value pair for a page.
func (s *Store) GetAllPageMeta(pageID string) (map[string]string, error) {
	rows, err := s.db.Query("SELECT key, value FROM page_meta WHERE page_id = ?", pageID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := make(map[string]string)
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			return nil, err
		}
		result[k] = v
	}
	return result, rows.Err()
}

// DeletePageMeta removes one meta key; missing keys are not an error.
func (s *Store) DeletePageMeta(pageID, key string) error {
	_, err := s.db.Exec("DELETE FROM page_meta WHERE page_id = ? AND key = ?", pageID, key)
	return err
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// encodeList stores a string slice as a JSON array so values may contain
// any character.
func encodeList(items []string) string {
	if len(items) == 0 {
		return "[]"
	}
	data, err := json.Marshal(items)
	if err != nil {
		return "[]"
	}
	return string(data)
}

func decodeList(raw string) []string {
	if raw == "" || raw == "[]" {
		return nil
	}
	var items []string
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil
	}
	return items
}
