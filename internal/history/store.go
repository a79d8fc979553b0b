// Package history persists one record per finished dictation session.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by Get and Delete for unknown ids.
var ErrNotFound = errors.New("history: record not found")

// Record is immutable once appended.
type Record struct {
	ID              string    `json:"id"`
	OriginalText    string    `json:"originalText"`
	EnhancedText    string    `json:"enhancedText"`
	Timestamp       time.Time `json:"timestamp"`
	DurationSeconds float64   `json:"durationSeconds"`
	AudioFilePath   string    `json:"audioFilePath,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
}

const schema = `
CREATE TABLE IF NOT EXISTS recordings (
	id TEXT PRIMARY KEY,
	originalText TEXT NOT NULL,
	enhancedText TEXT NOT NULL,
	timestamp REAL NOT NULL,
	durationSeconds REAL NOT NULL,
	audioFilePath TEXT NOT NULL DEFAULT '',
	createdAt REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS recordings_timestamp ON recordings(timestamp DESC);
`

// Store is the SQLite-backed history log.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path.
func Open(path string) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		dsn = fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if path == ":memory:" {
		// every pooled connection would get its own empty database
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Append inserts r. CreatedAt defaults to now and Timestamp to CreatedAt.
func (s *Store) Append(ctx context.Context, r Record) error {
	if strings.TrimSpace(r.ID) == "" {
		return fmt.Errorf("append: empty id")
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	if r.Timestamp.IsZero() {
		r.Timestamp = r.CreatedAt
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO recordings (id, originalText, enhancedText, timestamp, durationSeconds, audioFilePath, createdAt)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, r.ID, r.OriginalText, r.EnhancedText, unixFromTime(r.Timestamp), r.DurationSeconds, r.AudioFilePath, unixFromTime(r.CreatedAt))
	if err != nil {
		return fmt.Errorf("insert recording: %w", err)
	}
	return nil
}

// List returns one page of records, newest first. Pages start at 1.
func (s *Store) List(ctx context.Context, page, limit int) ([]Record, error) {
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, originalText, enhancedText, timestamp, durationSeconds, audioFilePath, createdAt
		FROM recordings
		ORDER BY timestamp DESC, id DESC
		LIMIT ? OFFSET ?
	`, limit, (page-1)*limit)
	if err != nil {
		return nil, fmt.Errorf("query recordings: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Get returns the record with id.
func (s *Store) Get(ctx context.Context, id string) (Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, originalText, enhancedText, timestamp, durationSeconds, audioFilePath, createdAt
		FROM recordings
		WHERE id = ?
	`, id)
	r, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, ErrNotFound
	}
	return r, err
}

// Delete removes the record and its archived audio file.
func (s *Store) Delete(ctx context.Context, id string) error {
	r, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM recordings WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete recording: %w", err)
	}
	if r.AudioFilePath != "" {
		if err := os.Remove(r.AudioFilePath); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove audio %s: %w", r.AudioFilePath, err)
		}
	}
	return nil
}

// Count returns the number of stored records.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM recordings`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count recordings: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (Record, error) {
	var r Record
	var ts, createdAt float64
	if err := sc.Scan(&r.ID, &r.OriginalText, &r.EnhancedText, &ts, &r.DurationSeconds, &r.AudioFilePath, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return r, err
		}
		return r, fmt.Errorf("scan recording: %w", err)
	}
	r.Timestamp = timeFromUnix(ts)
	r.CreatedAt = timeFromUnix(createdAt)
	return r, nil
}

func unixFromTime(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

func timeFromUnix(ts float64) time.Time {
	sec := int64(ts)
	nsec := int64((ts - float64(sec)) * 1e9)
	return time.Unix(sec, nsec)
}
