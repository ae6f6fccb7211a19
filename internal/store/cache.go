package store

import (
	"database/sql"
	"fmt"
	"time"
)

// SaveCacheRecord writes a fully successful generation result, replacing any
// previous record (including previous error fields).
func (s *Store) SaveCacheRecord(rec CacheRecord) error {
	if rec.GeneratedAt.IsZero() {
		rec.GeneratedAt = time.Now().UTC()
	}
	if rec.Status == "" {
		rec.Status = "ok"
	}
	_, err := s.db.Exec(`
		INSERT INTO schema_cache (page_id, schema, content_hash, generated_at, status, last_error, detected_type, source_length, truncated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(page_id) DO UPDATE SET
			schema = excluded.schema,
			content_hash = excluded.content_hash,
			generated_at = excluded.generated_at,
			status = excluded.status,
			last_error = excluded.last_error,
			detected_type = excluded.detected_type,
			source_length = excluded.source_length,
			truncated = excluded.truncated`,
		rec.PageID, rec.Schema, rec.ContentHash, rec.GeneratedAt.Format(time.RFC3339),
		rec.Status, rec.LastError, rec.DetectedType, rec.SourceLength, boolToInt(rec.Truncated),
	)
	return err
}

// MarkCacheError records a failed attempt. The last good schema, hash and
// generation timestamp are preserved; only status and last_error change.
func (s *Store) MarkCacheError(pageID, message string) error {
	_, err := s.db.Exec(`
		INSERT INTO schema_cache (page_id, status, last_error, generated_at)
		VALUES (?, 'error', ?, '')
		ON CONFLICT(page_id) DO UPDATE SET
			status = 'error',
			last_error = excluded.last_error`,
		pageID, message,
	)
	return err
}

// GetCacheRecord returns the cache record for a page, or ErrNotFound.
func (s *Store) GetCacheRecord(pageID string) (CacheRecord, error) {
	var rec CacheRecord
	var generatedAt string
	var truncated int
	err := s.db.QueryRow(`
		SELECT page_id, schema, content_hash, generated_at, status, last_error, detected_type, source_length, truncated
		FROM schema_cache WHERE page_id = ?`, pageID,
	).Scan(&rec.PageID, &rec.Schema, &rec.ContentHash, &generatedAt, &rec.Status, &rec.LastError, &rec.DetectedType, &rec.SourceLength, &truncated)
	if err == sql.ErrNoRows {
		return CacheRecord{}, ErrNotFound
	}
	if err != nil {
		return CacheRecord{}, err
	}
	rec.Truncated = truncated != 0
	if generatedAt != "" {
		if rec.GeneratedAt, err = time.Parse(time.RFC3339, generatedAt); err != nil {
			return CacheRecord{}, fmt.Errorf("parsing generated_at: %w", err)
		}
	}
	return rec, nil
}

// DeleteCacheRecord removes the whole record for a page; missing records are
// not an error.
func (s *Store) DeleteCacheRecord(pageID string) error {
	_, err := s.db.Exec("DELETE FROM schema_cache WHERE page_id = ?", pageID)
	return err
}
