package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/Neural-Bridge/sql-analyst/internal/application/port/output"
)

const (
	schema = `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS completions (
		key        TEXT PRIMARY KEY,
		value      TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);`
	opTimeout = 5 * time.Second
)

var _ output.CompletionCache = (*SQLite)(nil)

// SQLite persists completions in a single table. Failures are logged and
// treated as misses; a broken cache never fails a run.
type SQLite struct {
	db     *sqlx.DB
	logger output.LoggerPort
}

func OpenSQLite(path string, logger output.LoggerPort) (*SQLite, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create cache directory: %w", err)
	}
	db, err := sqlx.Open("sqlite", path+"?_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("open cache: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize cache schema: %w", err)
	}
	return &SQLite{db: db, logger: logger}, nil
}

func (s *SQLite) Get(key string) (string, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	var value string
	err := s.db.GetContext(ctx, &value, `SELECT value FROM completions WHERE key = ?`, key)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("cache read failed", "error", err)
		}
		return "", false
	}
	return value, true
}

func (s *SQLite) Set(key, value string) {
	ctx, cancel := context.WithTimeout(context.Background(), opTimeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO completions (key, value, created_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, created_at = excluded.created_at`,
		key, value, time.Now().Unix())
	if err != nil {
		s.logger.Warn("cache write failed", "error", err)
	}
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

// Tiered reads through a fast front cache to a durable back cache and
// writes to both.
type Tiered struct {
	front output.CompletionCache
	back  output.CompletionCache
}

var _ output.CompletionCache = (*Tiered)(nil)

func NewTiered(front, back output.CompletionCache) *Tiered {
	return &Tiered{front: front, back: back}
}

func (t *Tiered) Get(key string) (string, bool) {
	if v, ok := t.front.Get(key); ok {
		return v, true
	}
	v, ok := t.back.Get(key)
	if ok {
		t.front.Set(key, v)
	}
	return v, ok
}

func (t *Tiered) Set(key, value string) {
	t.front.Set(key, value)
	t.back.Set(key, value)
}
