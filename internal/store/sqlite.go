package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS cache_stores (
    name       TEXT PRIMARY KEY,
    created_at INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS cache_entries (
    store_name  TEXT NOT NULL,
    cache_key   TEXT NOT NULL,
    method      TEXT NOT NULL,
    url         TEXT NOT NULL,
    status      INTEGER NOT NULL,
    header_json TEXT NOT NULL,
    body        BLOB,
    stored_at   INTEGER NOT NULL,
    PRIMARY KEY (store_name, cache_key)
);`

// SQLiteBackend persists stores in a single SQLite database file
type SQLiteBackend struct {
	sqlDB *sql.DB
}

// OpenSQLite opens (and migrates) a SQLite-backed store database
func OpenSQLite(path string) (*SQLiteBackend, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// sqlite allows a single writer
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(sqliteSchema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("migrate sqlite db: %w", err)
	}
	return &SQLiteBackend{sqlDB: sqlDB}, nil
}

func (s *SQLiteBackend) CreateStore(ctx context.Context, name string) error {
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO cache_stores (name, created_at) VALUES (?, ?) ON CONFLICT(name) DO NOTHING`,
		name, time.Now().UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("create store: %w", err)
	}
	return nil
}

func (s *SQLiteBackend) ListStores(ctx context.Context) ([]string, error) {
	rows, err := s.sqlDB.QueryContext(ctx, `SELECT name FROM cache_stores ORDER BY created_at, rowid`)
	if err != nil {
		return nil, fmt.Errorf("list stores: %w", err)
	}
	defer rows.Close() //nolint:errcheck

	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, fmt.Errorf("scan store: %w", err)
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

func (s *SQLiteBackend) DeleteStore(ctx context.Context, name string) error {
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, `DELETE FROM cache_entries WHERE store_name = ?`, name); err != nil {
		return fmt.Errorf("delete entries: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM cache_stores WHERE name = ?`, name); err != nil {
		return fmt.Errorf("delete store: %w", err)
	}
	return tx.Commit()
}

func (s *SQLiteBackend) Get(ctx context.Context, storeName, key string) (*Entry, error) {
	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT method, url, status, header_json, body, stored_at
		 FROM cache_entries
		 WHERE store_name = ? AND cache_key = ?`,
		storeName, key,
	)

	var (
		e          Entry
		headerJSON string
		storedAt   int64
	)
	if err := row.Scan(&e.Method, &e.URL, &e.Status, &headerJSON, &e.Body, &storedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get cache entry: %w", err)
	}
	if err := json.Unmarshal([]byte(headerJSON), &e.Header); err != nil {
		return nil, fmt.Errorf("decode header: %w", err)
	}
	e.StoredAt = time.UnixMilli(storedAt).UTC()
	return &e, nil
}

func (s *SQLiteBackend) Set(ctx context.Context, storeName, key string, entry *Entry) error {
	headerJSON, err := json.Marshal(entry.Header)
	if err != nil {
		return fmt.Errorf("encode header: %w", err)
	}
	storedAt := entry.StoredAt
	if storedAt.IsZero() {
		storedAt = time.Now().UTC()
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO cache_stores (name, created_at) VALUES (?, ?) ON CONFLICT(name) DO NOTHING`,
		storeName, time.Now().UTC().UnixMilli(),
	); err != nil {
		return fmt.Errorf("create store: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO cache_entries (store_name, cache_key, method, url, status, header_json, body, stored_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(store_name, cache_key) DO UPDATE SET
		    method = excluded.method,
		    url = excluded.url,
		    status = excluded.status,
		    header_json = excluded.header_json,
		    body = excluded.body,
		    stored_at = excluded.stored_at`,
		storeName, key, entry.Method, entry.URL, entry.Status, string(headerJSON), entry.Body, storedAt.UnixMilli(),
	); err != nil {
		return fmt.Errorf("put cache entry: %w", err)
	}
	return tx.Commit()
}

// Close releases the underlying SQLite connection
func (s *SQLiteBackend) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}
