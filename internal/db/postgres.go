package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"bookshelf/internal/storage"
)

const defaultQueryTimeout = 5 * time.Second

// PostgresStore is a storage.KV on a Postgres table, for deployments where
// several server instances share one favorites database.
type PostgresStore struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

var _ storage.KV = (*PostgresStore)(nil)

func OpenPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("empty Postgres DSN")
	}

	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse Postgres DSN: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect Postgres: %w", err)
	}

	s := &PostgresStore{pool: pool, timeout: defaultQueryTimeout}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	timeoutCtx, cancel := s.withTimeout(ctx)
	defer cancel()
	return s.pool.Ping(timeoutCtx)
}

func (s *PostgresStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

func (s *PostgresStore) migrate(ctx context.Context) error {
	const schema = `
		CREATE TABLE IF NOT EXISTS kv_store (
			key TEXT PRIMARY KEY,
			value BYTEA NOT NULL,
			version BIGINT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`
	timeoutCtx, cancel := s.withTimeout(ctx)
	defer cancel()
	if _, err := s.pool.Exec(timeoutCtx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, key string) (storage.Record, error) {
	const getSQL = `SELECT value, version FROM kv_store WHERE key = $1`

	timeoutCtx, cancel := s.withTimeout(ctx)
	defer cancel()

	var rec storage.Record
	if err := s.pool.QueryRow(timeoutCtx, getSQL, key).Scan(&rec.Value, &rec.Version); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return storage.Record{}, storage.ErrNotFound
		}
		return storage.Record{}, fmt.Errorf("read %q: %w", key, err)
	}
	return rec, nil
}

func (s *PostgresStore) Put(ctx context.Context, key string, value []byte, expect int64) (int64, error) {
	const insertSQL = `
		INSERT INTO kv_store (key, value, version, updated_at)
		VALUES ($1, $2, 1, NOW())
		ON CONFLICT (key) DO NOTHING
	`
	const updateSQL = `
		UPDATE kv_store
		SET value = $2, version = version + 1, updated_at = NOW()
		WHERE key = $1 AND version = $3
	`
	if value == nil {
		value = []byte{}
	}

	timeoutCtx, cancel := s.withTimeout(ctx)
	defer cancel()

	var err error
	var affected int64
	if expect == 0 {
		tag, execErr := s.pool.Exec(timeoutCtx, insertSQL, key, value)
		affected, err = tag.RowsAffected(), execErr
	} else {
		tag, execErr := s.pool.Exec(timeoutCtx, updateSQL, key, value, expect)
		affected, err = tag.RowsAffected(), execErr
	}
	if err != nil {
		return 0, fmt.Errorf("write %q: %w", key, err)
	}
	if affected == 0 {
		return 0, storage.ErrConflict
	}
	return expect + 1, nil
}
