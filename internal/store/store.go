// Package store implements the local annotation mirror: a record store, a
// bidirectional tag index, and the index engine that keeps them consistent.
//
// Persistence uses embedded SQLite in EXCLUSIVE locking mode. Four logical
// namespaces map onto four tables:
//   - records: id -> serialized annotation
//   - annotation_tags: id -> delimiter-joined tag list (sentinel for "no tags")
//   - tag_annotations: tag (or sentinel) -> delimiter-joined id list
//   - meta: scalar values, currently only sync cursors
//
// The store itself offers no multi-key guarantees; atomicity across the three
// namespaces is this package's responsibility and is granted per annotation,
// one transaction per upsert/delete (a batch delete is one transaction).
//
// All mutation is expected from one logical thread of control per process;
// the exclusive writer lock makes concurrent invocations against the same
// database fail fast instead of interleaving.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
	"github.com/quincelabs/quince/internal/annotation"
)

// Store wraps the SQLite connection holding the annotation mirror.
type Store struct {
	conn *sql.DB
	path string
}

// Open creates a store at the specified path, creating parent directories
// and the schema as needed.
//
// The database is opened with WAL and an exclusive writer lock for the
// process lifetime. The caller MUST call Close() when done.
//
// Example:
//
//	st, err := store.Open(filepath.Join(dataDir, "quince.db"))
//	if err != nil {
//	    return err
//	}
//	defer st.Close()
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", fmt.Sprintf("file:%s", path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// One writer, one logical thread of control.
	conn.SetMaxOpenConns(1)

	st := &Store{
		conn: conn,
		path: path,
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA locking_mode=EXCLUSIVE",
	}
	for _, pragma := range pragmas {
		if _, err := st.conn.Exec(pragma); err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("failed to apply %s: %w", pragma, err)
		}
	}

	if err := st.initSchema(); err != nil {
		_ = st.Close()
		return nil, err
	}

	return st, nil
}

// Close closes the database connection after checkpointing the WAL.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}

	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	s.conn = nil
	return nil
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// initSchema creates the tables if they don't exist. Idempotent.
func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS records (
		id TEXT PRIMARY KEY,
		body TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS annotation_tags (
		id TEXT PRIMARY KEY,
		tags TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS tag_annotations (
		tag TEXT PRIMARY KEY,
		ids TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`

	if _, err := s.conn.Exec(schema); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}

	return nil
}

// Get retrieves a mirrored annotation by ID.
// Returns ErrAnnotationNotFound if the ID is absent.
func (s *Store) Get(id string) (*annotation.Annotation, error) {
	return s.GetContext(context.Background(), id)
}

// GetContext retrieves an annotation with context support.
func (s *Store) GetContext(ctx context.Context, id string) (*annotation.Annotation, error) {
	var body string
	err := s.conn.QueryRowContext(ctx, `SELECT body FROM records WHERE id = ?`, id).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%s: %w", id, ErrAnnotationNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read record %s: %w", id, err)
	}
	return decodeRecord(id, body)
}

// GetMany retrieves annotations for each of the given IDs, in order.
// Fails on the first missing ID.
func (s *Store) GetMany(ctx context.Context, ids []string) ([]*annotation.Annotation, error) {
	anns := make([]*annotation.Annotation, 0, len(ids))
	for _, id := range ids {
		a, err := s.GetContext(ctx, id)
		if err != nil {
			return nil, err
		}
		anns = append(anns, a)
	}
	return anns, nil
}

// All returns every mirrored annotation. The scan is finite and restartable
// by calling All again.
func (s *Store) All(ctx context.Context) ([]*annotation.Annotation, error) {
	rows, err := s.conn.QueryContext(ctx, `SELECT id, body FROM records ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to scan records: %w", err)
	}
	defer rows.Close()

	var anns []*annotation.Annotation
	for rows.Next() {
		var id, body string
		if err := rows.Scan(&id, &body); err != nil {
			return nil, fmt.Errorf("failed to scan record: %w", err)
		}
		a, err := decodeRecord(id, body)
		if err != nil {
			return nil, err
		}
		anns = append(anns, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating records: %w", err)
	}
	return anns, nil
}

// Count returns the number of mirrored annotations.
func (s *Store) Count() (int, error) {
	var count int
	err := s.conn.QueryRow(`SELECT COUNT(*) FROM records`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count records: %w", err)
	}
	return count, nil
}

// Clear removes all mirrored annotations, both tag mappings, and every sync
// cursor.
func (s *Store) Clear(ctx context.Context) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"records", "annotation_tags", "tag_annotations", "meta"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func decodeRecord(id, body string) (*annotation.Annotation, error) {
	var a annotation.Annotation
	if err := json.Unmarshal([]byte(body), &a); err != nil {
		return nil, fmt.Errorf("record %s: %v: %w", id, err, ErrCorruptIndex)
	}
	return &a, nil
}

// joinList encodes a list as a delimiter-joined index value.
func joinList(items []string) string {
	return strings.Join(items, annotation.Delimiter)
}

// splitList decodes a delimiter-joined index value.
func splitList(value string) []string {
	if value == "" {
		return nil
	}
	return strings.Split(value, annotation.Delimiter)
}
