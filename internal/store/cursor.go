package store

import (
	"context"
	"database/sql"
	"fmt"
)

// MinCursor is the fixed minimum sentinel cursor meaning "beginning of
// time". A sync starting here fetches everything.
const MinCursor = "1970-01-01T00:00:00Z"

const cursorKey = "sync_cursor"

func scopedCursorKey(scope string) string {
	if scope == "" {
		return cursorKey
	}
	return cursorKey + ":" + scope
}

// Cursor returns the persisted sync watermark for a sync target (group or
// user set). If no sync has completed for the scope, MinCursor is returned.
func (s *Store) Cursor(scope string) (string, error) {
	return s.CursorContext(context.Background(), scope)
}

// CursorContext reads the sync watermark with context support.
func (s *Store) CursorContext(ctx context.Context, scope string) (string, error) {
	var value string
	err := s.conn.QueryRowContext(ctx,
		`SELECT value FROM meta WHERE key = ?`, scopedCursorKey(scope)).Scan(&value)
	if err == sql.ErrNoRows {
		return MinCursor, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read sync cursor: %w", err)
	}
	return value, nil
}

// SetCursor persists the sync watermark for a scope. Callers must only do
// this after a full page has been applied, so an interruption can redo a
// page but never skip one.
func (s *Store) SetCursor(scope, value string) error {
	return s.SetCursorContext(context.Background(), scope, value)
}

// SetCursorContext persists the sync watermark with context support.
func (s *Store) SetCursorContext(ctx context.Context, scope, value string) error {
	query := `
	INSERT INTO meta (key, value) VALUES (?, ?)
	ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`
	if _, err := s.conn.ExecContext(ctx, query, scopedCursorKey(scope), value); err != nil {
		return fmt.Errorf("failed to persist sync cursor: %w", err)
	}
	return nil
}

// ResetCursor rewinds a scope's watermark to the beginning of time, forcing
// the next sync to re-fetch everything.
func (s *Store) ResetCursor(scope string) error {
	return s.SetCursor(scope, MinCursor)
}
