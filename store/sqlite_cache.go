package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteCacheSchema = `
CREATE TABLE IF NOT EXISTS kv (
	key        TEXT PRIMARY KEY,
	value      BLOB NOT NULL,
	updated_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
)`

type (
	// SQLiteCache keeps cached values in a single-table SQLite database.
	SQLiteCache struct {
		db *sql.DB
	}
)

// NewSQLiteCache opens (or creates) the database at path. Use ":memory:" in
// tests.
func NewSQLiteCache(ctx context.Context, path string) (*SQLiteCache, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("error in os.MkdirAll: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("error in sql.Open: %w", err)
	}
	// a single connection keeps :memory: databases alive and serializes writes
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf("error applying %q: %w", p, err)
		}
	}
	if _, err := db.ExecContext(ctx, sqliteCacheSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("error creating kv table: %w", err)
	}

	return &SQLiteCache{db: db}, nil
}

func (sc *SQLiteCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	var value []byte
	err := sc.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("error selecting kv: %w", err)
	}
	return value, true, nil
}

func (sc *SQLiteCache) Set(ctx context.Context, key string, value []byte) error {
	_, err := sc.db.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().Unix(),
	)
	if err != nil {
		return fmt.Errorf("error upserting kv: %w", err)
	}
	return nil
}

func (sc *SQLiteCache) Delete(ctx context.Context, key string) error {
	if _, err := sc.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("error deleting kv: %w", err)
	}
	return nil
}

func (sc *SQLiteCache) Shutdown(_ context.Context) error {
	if err := sc.db.Close(); err != nil {
		return fmt.Errorf("error closing sqlite: %w", err)
	}
	return nil
}
