package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "http://localhost:3000", cfg.OriginURL)
	assert.Equal(t, "kidbuddy", cfg.Cache.Prefix)
	assert.Equal(t, "v1", cfg.Cache.Version)
	assert.Equal(t, BackendMemory, cfg.Cache.Backend)
	assert.Equal(t, []string{"/api/ask", "/api/tts"}, cfg.Cache.NetworkFirstPaths)
	assert.Contains(t, cfg.Cache.PrecacheURLs, "/")
	assert.Contains(t, cfg.Cache.PrecacheURLs, "/manifest.json")
	assert.Contains(t, cfg.Cache.PrecacheURLs, "/favicon.ico")
	assert.Contains(t, cfg.Cache.PrecacheURLs, "/api/health")
	assert.Equal(t, "background-sync", cfg.Sync.Tag)
	assert.Zero(t, cfg.FetchTimeout)
	assert.False(t, cfg.HasRedis())
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ORIGIN_URL", "https://kids.example.com")
	t.Setenv("CACHE_VERSION", "v7")
	t.Setenv("STORE_BACKEND", "sqlite")
	t.Setenv("SQLITE_PATH", "/tmp/cache.db")
	t.Setenv("NETWORK_FIRST_PATHS", "/api/ask, /api/chat ,")
	t.Setenv("FETCH_TIMEOUT", "15s")
	t.Setenv("REDIS_ADDR", "localhost:6379")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, "v7", cfg.Cache.Version)
	assert.Equal(t, BackendSQLite, cfg.Cache.Backend)
	assert.Equal(t, []string{"/api/ask", "/api/chat"}, cfg.Cache.NetworkFirstPaths)
	assert.Equal(t, 15*time.Second, cfg.FetchTimeout)
	assert.True(t, cfg.HasRedis())
}

func TestLoadRejectsBadBackend(t *testing.T) {
	t.Setenv("STORE_BACKEND", "floppy")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "floppy")
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			OriginURL: "http://origin:3000",
			Cache:     CacheConfig{Prefix: "kb", Version: "v1", Backend: BackendMemory},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(*Config) {}, false},
		{"relative origin", func(c *Config) { c.OriginURL = "/origin" }, true},
		{"ftp origin", func(c *Config) { c.OriginURL = "ftp://origin" }, true},
		{"empty version", func(c *Config) { c.Cache.Version = " " }, true},
		{"empty prefix", func(c *Config) { c.Cache.Prefix = "" }, true},
		{"file without dir", func(c *Config) { c.Cache.Backend = BackendFile }, true},
		{"file with dir", func(c *Config) { c.Cache.Backend = BackendFile; c.Cache.Dir = "/var/cache" }, false},
		{"postgres without url", func(c *Config) { c.Cache.Backend = BackendPostgres }, true},
		{"redis without addr", func(c *Config) { c.Cache.Backend = BackendRedis }, true},
		{"negative timeout", func(c *Config) { c.FetchTimeout = -time.Second }, true},
		{"relative network-first path", func(c *Config) { c.Cache.NetworkFirstPaths = []string{"api/ask"} }, true},
		{"relative precache url", func(c *Config) { c.Cache.PrecacheURLs = []string{"manifest.json"} }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
