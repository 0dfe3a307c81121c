package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"bookshelf/internal/storage"
)

// Store is a SQLite-backed storage.KV.
type Store struct {
	db *sql.DB
}

var _ storage.KV = (*Store)(nil)

func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("empty SQLite path")
	}

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection keeps :memory: databases alive and serializes writers.
	db.SetMaxOpenConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, err
	}

	if err := migrate(db); err != nil {
		db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

// OpenInMemory opens a private in-memory database.
func OpenInMemory() (*Store, error) {
	return Open(":memory:")
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func applyPragmas(db *sql.DB) error {
	pragma := []string{
		"PRAGMA journal_mode = WAL;",
		"PRAGMA busy_timeout = 5000;",
	}

	for _, stmt := range pragma {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("apply pragma: %w", err)
		}
	}
	return nil
}

func migrate(db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS kv_store (
	key TEXT PRIMARY KEY,
	value BLOB NOT NULL,
	version INTEGER NOT NULL,
	updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
);
`

	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, key string) (storage.Record, error) {
	var rec storage.Record
	err := s.db.QueryRowContext(ctx, `
SELECT value, version FROM kv_store WHERE key = ?
`, key).Scan(&rec.Value, &rec.Version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.Record{}, storage.ErrNotFound
		}
		return storage.Record{}, fmt.Errorf("read %q: %w", key, err)
	}
	return rec, nil
}

func (s *Store) Put(ctx context.Context, key string, value []byte, expect int64) (int64, error) {
	if value == nil {
		value = []byte{}
	}

	var (
		res sql.Result
		err error
	)
	if expect == 0 {
		res, err = s.db.ExecContext(ctx, `
INSERT INTO kv_store (key, value, version) VALUES (?, ?, 1)
ON CONFLICT(key) DO NOTHING
`, key, value)
	} else {
		res, err = s.db.ExecContext(ctx, `
UPDATE kv_store
SET value = ?, version = version + 1, updated_at = CURRENT_TIMESTAMP
WHERE key = ? AND version = ?
`, value, key, expect)
	}
	if err != nil {
		return 0, fmt.Errorf("write %q: %w", key, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("write %q: %w", key, err)
	}
	if n == 0 {
		return 0, storage.ErrConflict
	}
	return expect + 1, nil
}
