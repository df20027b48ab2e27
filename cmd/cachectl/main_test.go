package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/briangreenhill/kidbuddy/internal/store"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func useFileBackend(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("STORE_BACKEND", "file")
	t.Setenv("STORE_DIR", dir)
	t.Setenv("CACHE_PREFIX", "kb")
	t.Setenv("CACHE_VERSION", "v2")
	t.Setenv("REDIS_ADDR", "")
	return dir
}

func TestVersion(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Equal(t, "cachectl v"+version+"\n", out)
}

func TestStoresAndPurge(t *testing.T) {
	dir := useFileBackend(t)
	b, err := store.NewFileBackend(dir)
	require.NoError(t, err)
	for _, n := range []string{"kb-static-v1", "kb-static-v2"} {
		require.NoError(t, b.CreateStore(context.Background(), n))
	}

	out, err := run(t, "stores")
	require.NoError(t, err)
	assert.Equal(t, "  kb-static-v1\n* kb-static-v2\n", out)

	out, err = run(t, "purge")
	require.NoError(t, err)
	assert.Contains(t, out, "deleted kb-static-v1")
	assert.Contains(t, out, "1 store(s) deleted")

	out, err = run(t, "stores")
	require.NoError(t, err)
	assert.Equal(t, "* kb-static-v2\n", out)
}

func TestInstall(t *testing.T) {
	dir := useFileBackend(t)
	origin := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("asset " + r.URL.Path))
	}))
	defer origin.Close()
	t.Setenv("ORIGIN_URL", origin.URL)
	t.Setenv("PRECACHE_URLS", "/,/manifest.json")

	out, err := run(t, "install")
	require.NoError(t, err)
	assert.Contains(t, out, "installed 2 entries into kb-static-v2")

	b, err := store.NewFileBackend(dir)
	require.NoError(t, err)
	e, err := b.Get(context.Background(), "kb-static-v2", "GET /manifest.json")
	require.NoError(t, err)
	assert.Equal(t, "asset /manifest.json", string(e.Body))
}

func TestSyncPostsToGateway(t *testing.T) {
	useFileBackend(t)
	var got map[string]any
	gw := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/sw/sync", r.URL.Path)
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer gw.Close()

	out, err := run(t, "sync", "--gateway", gw.URL, "--tag", "photos")
	require.NoError(t, err)
	assert.Contains(t, out, `sync "photos" sent`)
	assert.Equal(t, "photos", got["tag"])
}

func TestBadConfigFails(t *testing.T) {
	useFileBackend(t)
	t.Setenv("STORE_BACKEND", "floppy")
	_, err := run(t, "stores")
	assert.Error(t, err)
}
