// Package config handles gateway configuration from environment variables
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

// Backends understood by STORE_BACKEND.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

// Config holds all gateway configuration
type Config struct {
	Port      string `env:"PORT" envDefault:"8080"`
	OriginURL string `env:"ORIGIN_URL" envDefault:"http://localhost:3000"`

	Cache CacheConfig
	Sync  SyncConfig

	// FetchTimeout bounds a single origin fetch. Zero leaves it to the transport.
	FetchTimeout time.Duration `env:"FETCH_TIMEOUT" envDefault:"0s"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`
}

// CacheConfig holds store naming and backend selection
type CacheConfig struct {
	Prefix  string `env:"CACHE_PREFIX" envDefault:"kidbuddy"`
	Version string `env:"CACHE_VERSION" envDefault:"v1"`

	Backend     string `env:"STORE_BACKEND" envDefault:"memory"`
	Dir         string `env:"STORE_DIR"`
	SQLitePath  string `env:"SQLITE_PATH" envDefault:"kidbuddy-cache.db"`
	DatabaseURL string `env:"DATABASE_URL"`

	NetworkFirstPaths []string `env:"NETWORK_FIRST_PATHS" envDefault:"/api/ask,/api/tts" envSeparator:","`
	PrecacheURLs      []string `env:"PRECACHE_URLS" envDefault:"/,/manifest.json,/favicon.ico,/api/health,/_next/static/chunks/main.js,/_next/static/css/app.css" envSeparator:","`
}

// SyncConfig holds background-sync and notification settings
type SyncConfig struct {
	RedisAddr string `env:"REDIS_ADDR"`
	Tag       string `env:"SYNC_TAG" envDefault:"background-sync"`
	Schedule  string `env:"SYNC_SCHEDULE"`
	Channel   string `env:"NOTIFY_CHANNEL" envDefault:"kidbuddy:notify"`
	Icon      string `env:"NOTIFY_ICON" envDefault:"/icons/icon-192x192.png"`
	Badge     string `env:"NOTIFY_BADGE" envDefault:"/icons/badge-72x72.png"`
}

// Load reads configuration from environment variables and validates it
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	cfg.Cache.NetworkFirstPaths = trimAll(cfg.Cache.NetworkFirstPaths)
	cfg.Cache.PrecacheURLs = trimAll(cfg.Cache.PrecacheURLs)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// HasRedis returns true if a Redis address is configured
func (c Config) HasRedis() bool {
	return c.Sync.RedisAddr != ""
}

// Validate ensures the configuration is usable
func (c Config) Validate() error {
	u, err := url.Parse(c.OriginURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("ORIGIN_URL must be an absolute http(s) URL, got %q", c.OriginURL)
	}
	if strings.TrimSpace(c.Cache.Version) == "" {
		return fmt.Errorf("CACHE_VERSION must not be empty")
	}
	if strings.TrimSpace(c.Cache.Prefix) == "" {
		return fmt.Errorf("CACHE_PREFIX must not be empty")
	}
	if c.FetchTimeout < 0 {
		return fmt.Errorf("FETCH_TIMEOUT must not be negative")
	}

	switch c.Cache.Backend {
	case BackendMemory:
	case BackendFile:
		if c.Cache.Dir == "" {
			return fmt.Errorf("STORE_DIR is required for the file backend")
		}
	case BackendSQLite:
		if c.Cache.SQLitePath == "" {
			return fmt.Errorf("SQLITE_PATH is required for the sqlite backend")
		}
	case BackendPostgres:
		if c.Cache.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres backend")
		}
	case BackendRedis:
		if c.Sync.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown STORE_BACKEND %q", c.Cache.Backend)
	}

	for _, p := range c.Cache.NetworkFirstPaths {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("NETWORK_FIRST_PATHS entries must start with '/', got %q", p)
		}
	}
	for _, p := range c.Cache.PrecacheURLs {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("PRECACHE_URLS entries must start with '/', got %q", p)
		}
	}
	return nil
}

func trimAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
