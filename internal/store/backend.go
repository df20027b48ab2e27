package store

import (
	"context"
	"fmt"

	"github.com/briangreenhill/kidbuddy/internal/config"
)

// OpenBackend builds the backend selected by cfg.Cache.Backend
func OpenBackend(ctx context.Context, cfg config.Config) (Backend, error) {
	switch cfg.Cache.Backend {
	case config.BackendMemory, "":
		return NewMemoryBackend(), nil
	case config.BackendFile:
		return NewFileBackend(cfg.Cache.Dir)
	case config.BackendSQLite:
		return OpenSQLite(cfg.Cache.SQLitePath)
	case config.BackendPostgres:
		return OpenPostgres(ctx, cfg.Cache.DatabaseURL)
	case config.BackendRedis:
		return OpenRedis(ctx, cfg.Sync.RedisAddr, cfg.Cache.Prefix)
	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.Cache.Backend)
	}
}
