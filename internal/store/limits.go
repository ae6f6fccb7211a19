package store

import (
	"database/sql"
	"fmt"
	"time"
)

// BlockedUntil returns the global upstream rate-limit expiry. The zero time
// means no block is active.
func (s *Store) BlockedUntil() (time.Time, error) {
	var raw string
	err := s.db.QueryRow("SELECT blocked_until FROM rate_limit WHERE id = 1").Scan(&raw)
	if err == sql.ErrNoRows || (err == nil && raw == "") {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing blocked_until: %w", err)
	}
	return t, nil
}

// SetBlockedUntil records a global rate-limit window. Every generation
// attempt checks this before issuing a request, so one 429 backs off all
// callers, not just the retry loop that saw it.
func (s *Store) SetBlockedUntil(t time.Time) error {
	raw := ""
	if !t.IsZero() {
		raw = t.UTC().Format(time.RFC3339)
	}
	_, err := s.db.Exec(`
		INSERT INTO rate_limit (id, blocked_until) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET blocked_until = excluded.blocked_until`,
		raw,
	)
	return err
}

// CooldownUntil returns the per-page cooldown expiry, or the zero time when
// none is set.
func (s *Store) CooldownUntil(pageID string) (time.Time, error) {
	var raw string
	err := s.db.QueryRow("SELECT until FROM cooldowns WHERE page_id = ?", pageID).Scan(&raw)
	if err == sql.ErrNoRows {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing cooldown: %w", err)
	}
	return t, nil
}

// SetCooldown records a per-page lockout until the given time.
func (s *Store) SetCooldown(pageID string, until time.Time) error {
	_, err := s.db.Exec(`
		INSERT INTO cooldowns (page_id, until) VALUES (?, ?)
		ON CONFLICT(page_id) DO UPDATE SET until = excluded.until`,
		pageID, until.UTC().Format(time.RFC3339),
	)
	return err
}

// ClearCooldown removes the cooldown for a page; missing rows are not an error.
func (s *Store) ClearCooldown(pageID string) error {
	_, err := s.db.Exec("DELETE FROM cooldowns WHERE page_id = ?", pageID)
	return err
}
