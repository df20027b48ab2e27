package store

import (
	"context"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleEntry(body string) *Entry {
	return &Entry{
		Method:   http.MethodGet,
		URL:      "/api/health",
		Status:   http.StatusOK,
		Header:   http.Header{"Content-Type": []string{"application/json"}},
		Body:     []byte(body),
		StoredAt: time.UnixMilli(1700000000000).UTC(),
	}
}

// exerciseBackend runs the behaviour every backend must share
func exerciseBackend(t *testing.T, b Backend) {
	t.Helper()
	ctx := context.Background()

	_, err := b.Get(ctx, "missing-store", "GET /")
	require.True(t, errors.Is(err, ErrNotFound), "expected ErrNotFound, got %v", err)

	require.NoError(t, b.CreateStore(ctx, "kb-static-v1"))
	require.NoError(t, b.CreateStore(ctx, "kb-static-v1"), "CreateStore must be idempotent")

	// Set creates a store lazily
	require.NoError(t, b.Set(ctx, "kb-dynamic-v1", "GET /api/health", sampleEntry(`{"ok":true}`)))

	got, err := b.Get(ctx, "kb-dynamic-v1", "GET /api/health")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, got.Status)
	assert.Equal(t, "/api/health", got.URL)
	assert.Equal(t, "application/json", got.Header.Get("Content-Type"))
	assert.Equal(t, `{"ok":true}`, string(got.Body))
	assert.True(t, got.StoredAt.Equal(time.UnixMilli(1700000000000)))

	// overwrite
	require.NoError(t, b.Set(ctx, "kb-dynamic-v1", "GET /api/health", sampleEntry(`{"ok":false}`)))
	got, err = b.Get(ctx, "kb-dynamic-v1", "GET /api/health")
	require.NoError(t, err)
	assert.Equal(t, `{"ok":false}`, string(got.Body))

	// entries are scoped to their store
	_, err = b.Get(ctx, "kb-static-v1", "GET /api/health")
	assert.True(t, errors.Is(err, ErrNotFound))

	names, err := b.ListStores(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"kb-static-v1", "kb-dynamic-v1"}, names)

	require.NoError(t, b.DeleteStore(ctx, "kb-dynamic-v1"))
	require.NoError(t, b.DeleteStore(ctx, "never-existed"))

	names, err = b.ListStores(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"kb-static-v1"}, names)

	_, err = b.Get(ctx, "kb-dynamic-v1", "GET /api/health")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestMemoryBackend(t *testing.T) {
	exerciseBackend(t, NewMemoryBackend())
}

func TestFileBackend(t *testing.T) {
	b, err := NewFileBackend(t.TempDir())
	require.NoError(t, err)
	exerciseBackend(t, b)
}

func TestFileBackendRejectsUnsafeStoreNames(t *testing.T) {
	b, err := NewFileBackend(t.TempDir())
	require.NoError(t, err)

	for _, name := range []string{"", "..", "../escape", "a/b", "with space"} {
		assert.Error(t, b.CreateStore(context.Background(), name), "name %q", name)
	}
}

func TestFileBackendIgnoresStrayDirectories(t *testing.T) {
	dir := t.TempDir()
	b, err := NewFileBackend(dir)
	require.NoError(t, err)

	require.NoError(t, os.MkdirAll(filepath.Join(dir, "lost+found"), 0o700))
	require.NoError(t, b.CreateStore(context.Background(), "kb-static-v1"))

	names, err := b.ListStores(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"kb-static-v1"}, names)
}

func TestSQLiteBackend(t *testing.T) {
	b, err := OpenSQLite(filepath.Join(t.TempDir(), "cache.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	exerciseBackend(t, b)
}

func TestSQLiteBackendRequiresPath(t *testing.T) {
	_, err := OpenSQLite("  ")
	assert.Error(t, err)
}

func TestPostgresBackend(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	b, err := OpenPostgres(ctx, url)
	if err != nil {
		t.Skipf("Postgres not available: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })

	// start from a clean slate
	names, err := b.ListStores(ctx)
	require.NoError(t, err)
	for _, n := range names {
		require.NoError(t, b.DeleteStore(ctx, n))
	}
	exerciseBackend(t, b)
}

func TestRedisBackend(t *testing.T) {
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	b, err := OpenRedis(ctx, addr, "kidbuddy-test-"+time.Now().Format("150405.000000"))
	if err != nil {
		t.Skipf("Redis not available: %v", err)
	}
	t.Cleanup(func() { _ = b.Close() })
	exerciseBackend(t, b)
}
