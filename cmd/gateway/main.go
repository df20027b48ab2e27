// cmd/gateway/main.go
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/briangreenhill/kidbuddy/internal/config"
	"github.com/briangreenhill/kidbuddy/internal/gateway"
	"github.com/briangreenhill/kidbuddy/internal/http/routes"
	"github.com/briangreenhill/kidbuddy/internal/jobs"
	"github.com/briangreenhill/kidbuddy/internal/logging"
	"github.com/briangreenhill/kidbuddy/internal/notify"
	"github.com/briangreenhill/kidbuddy/internal/scheduler"
	"github.com/briangreenhill/kidbuddy/internal/store"
	"github.com/briangreenhill/kidbuddy/internal/strategy"
)

const installRetry = 30 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		l := logging.New("info", "json", os.Stderr)
		l.Fatal().Err(err).Msg("config")
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Stores
	backend, err := store.OpenBackend(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Str("backend", cfg.Cache.Backend).Msg("open store backend")
	}
	stores := store.NewManager(backend, logger)
	defer func() {
		if err := stores.Close(); err != nil {
			logger.Warn().Err(err).Msg("close stores")
		}
	}()

	// Gateway
	origin, err := gateway.NewOrigin(cfg.OriginURL, gateway.WithTimeout(cfg.FetchTimeout))
	if err != nil {
		logger.Fatal().Err(err).Msg("origin")
	}
	gw := gateway.New(gateway.Options{
		Stores: stores,
		Names:  store.NewNames(cfg.Cache.Prefix, cfg.Cache.Version),
		Rules:  strategy.NewRules(cfg.Cache.NetworkFirstPaths),
		Origin: origin,
		Proxy:  origin.Proxy(),
		Logger: logger,
	})
	lc := gateway.NewLifecycle(gw, cfg.Cache.PrecacheURLs)
	go startLifecycle(ctx, lc, logger)

	// Notifications
	hub := notify.NewHub(logger)
	var notifier notify.Broadcaster = hub
	var dispatcher jobs.Dispatcher
	if cfg.HasRedis() {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Sync.RedisAddr})
		defer rdb.Close() //nolint:errcheck

		relay := notify.NewRedisRelay(rdb, cfg.Sync.Channel, hub, logger)
		go func() {
			if err := relay.Run(ctx); err != nil {
				logger.Error().Err(err).Msg("relay stopped")
			}
		}()
		notifier = relay

		queue := jobs.NewQueue(cfg.Sync.RedisAddr, logger)
		defer queue.Close() //nolint:errcheck
		dispatcher = queue
	} else {
		dispatcher = jobs.NewDirect(jobs.NewSyncHandler(cfg.Sync.Tag, hub, logger))
		// with Redis the worker owns the schedule
		if cfg.Sync.Schedule != "" {
			sched, err := scheduler.New(cfg.Sync.Schedule, cfg.Sync.Tag, dispatcher, logger)
			if err != nil {
				logger.Fatal().Err(err).Msg("scheduler")
			}
			sched.Start()
			defer sched.Stop()
		}
	}

	// Router / server
	s := routes.New(routes.ServerOptions{
		Gateway:    gw,
		Lifecycle:  lc,
		Stores:     stores,
		Hub:        hub,
		Notifier:   notifier,
		Dispatcher: dispatcher,
		Direct:     origin.Proxy(),
		Cfg:        cfg,
		Logger:     logger,
	})
	srv := &http.Server{Addr: ":" + cfg.Port, Handler: s.Router, ReadHeaderTimeout: 10 * time.Second}

	go func() {
		logger.Info().Str("port", cfg.Port).Str("origin", cfg.OriginURL).Str("backend", cfg.Cache.Backend).Msg("gateway listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("listen")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down")
	hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("shutdown")
	}
}

// startLifecycle installs and activates, retrying the install until it
// succeeds. Requests are proxied straight through until then.
func startLifecycle(ctx context.Context, lc *gateway.Lifecycle, logger zerolog.Logger) {
	for {
		err := lc.Start(ctx)
		if err == nil {
			logger.Info().Msg("gateway active")
			return
		}
		logger.Error().Err(err).Dur("retry_in", installRetry).Msg("install failed")
		select {
		case <-ctx.Done():
			return
		case <-time.After(installRetry):
		}
	}
}
