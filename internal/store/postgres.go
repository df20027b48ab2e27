package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS cache_stores (
    name       TEXT PRIMARY KEY,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE TABLE IF NOT EXISTS cache_entries (
    store_name TEXT NOT NULL,
    cache_key  TEXT NOT NULL,
    method     TEXT NOT NULL,
    url        TEXT NOT NULL,
    status     INTEGER NOT NULL,
    header     JSONB NOT NULL DEFAULT '{}'::jsonb,
    body       BYTEA,
    stored_at  TIMESTAMPTZ NOT NULL,
    PRIMARY KEY (store_name, cache_key)
);`

// PostgresBackend persists stores in Postgres through a pgx pool
type PostgresBackend struct {
	pool *pgxpool.Pool
}

// OpenPostgres connects to databaseURL and creates the schema if needed
func OpenPostgres(ctx context.Context, databaseURL string) (*PostgresBackend, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate postgres: %w", err)
	}
	return &PostgresBackend{pool: pool}, nil
}

func (p *PostgresBackend) CreateStore(ctx context.Context, name string) error {
	_, err := p.pool.Exec(ctx, `INSERT INTO cache_stores (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, name)
	if err != nil {
		return fmt.Errorf("create store: %w", err)
	}
	return nil
}

func (p *PostgresBackend) ListStores(ctx context.Context) ([]string, error) {
	rows, err := p.pool.Query(ctx, `SELECT name FROM cache_stores ORDER BY created_at, name`)
	if err != nil {
		return nil, fmt.Errorf("list stores: %w", err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("list stores: %w", err)
	}
	return names, nil
}

func (p *PostgresBackend) DeleteStore(ctx context.Context, name string) error {
	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM cache_entries WHERE store_name = $1`, name); err != nil {
			return fmt.Errorf("delete entries: %w", err)
		}
		if _, err := tx.Exec(ctx, `DELETE FROM cache_stores WHERE name = $1`, name); err != nil {
			return fmt.Errorf("delete store: %w", err)
		}
		return nil
	})
}

func (p *PostgresBackend) Get(ctx context.Context, storeName, key string) (*Entry, error) {
	var (
		e      Entry
		header []byte
	)
	err := p.pool.QueryRow(ctx,
		`SELECT method, url, status, header, body, stored_at
		 FROM cache_entries
		 WHERE store_name = $1 AND cache_key = $2`,
		storeName, key,
	).Scan(&e.Method, &e.URL, &e.Status, &header, &e.Body, &e.StoredAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get cache entry: %w", err)
	}
	if err := json.Unmarshal(header, &e.Header); err != nil {
		return nil, fmt.Errorf("decode header: %w", err)
	}
	return &e, nil
}

func (p *PostgresBackend) Set(ctx context.Context, storeName, key string, entry *Entry) error {
	header, err := json.Marshal(entry.Header)
	if err != nil {
		return fmt.Errorf("encode header: %w", err)
	}
	storedAt := entry.StoredAt
	if storedAt.IsZero() {
		storedAt = time.Now().UTC()
	}

	return pgx.BeginFunc(ctx, p.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx,
			`INSERT INTO cache_stores (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`, storeName,
		); err != nil {
			return fmt.Errorf("create store: %w", err)
		}
		_, err := tx.Exec(ctx,
			`INSERT INTO cache_entries (store_name, cache_key, method, url, status, header, body, stored_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			 ON CONFLICT (store_name, cache_key) DO UPDATE SET
			    method = EXCLUDED.method,
			    url = EXCLUDED.url,
			    status = EXCLUDED.status,
			    header = EXCLUDED.header,
			    body = EXCLUDED.body,
			    stored_at = EXCLUDED.stored_at`,
			storeName, key, entry.Method, entry.URL, entry.Status, header, entry.Body, storedAt,
		)
		if err != nil {
			return fmt.Errorf("put cache entry: %w", err)
		}
		return nil
	})
}

func (p *PostgresBackend) Close() error {
	p.pool.Close()
	return nil
}
