package main

import (
	"os"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/briangreenhill/kidbuddy/internal/config"
	"github.com/briangreenhill/kidbuddy/internal/jobs"
	"github.com/briangreenhill/kidbuddy/internal/logging"
	"github.com/briangreenhill/kidbuddy/internal/notify"
	"github.com/briangreenhill/kidbuddy/internal/scheduler"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		l := logging.New("info", "json", os.Stderr)
		l.Fatal().Err(err).Msg("config")
	}
	logger := logging.New(cfg.LogLevel, cfg.LogFormat, os.Stdout)
	if !cfg.HasRedis() {
		logger.Fatal().Msg("REDIS_ADDR is required for the sync worker")
	}

	rdb := redis.NewClient(&redis.Options{Addr: cfg.Sync.RedisAddr})
	defer rdb.Close() //nolint:errcheck

	// publish-only: gateways subscribed to the channel deliver to their clients
	relay := notify.NewRedisRelay(rdb, cfg.Sync.Channel, nil, logger)
	handler := jobs.NewSyncHandler(cfg.Sync.Tag, relay, logger)

	if cfg.Sync.Schedule != "" {
		queue := jobs.NewQueue(cfg.Sync.RedisAddr, logger)
		defer queue.Close() //nolint:errcheck
		sched, err := scheduler.New(cfg.Sync.Schedule, cfg.Sync.Tag, queue, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("scheduler")
		}
		sched.Start()
		defer sched.Stop()
	}

	srv := asynq.NewServer(asynq.RedisClientOpt{Addr: cfg.Sync.RedisAddr}, asynq.Config{
		Concurrency:    4,
		StrictPriority: false,
		Queues: map[string]int{
			jobs.QueueSync: 10, // higher priority
			"default":      5,
		},
	})
	mux := asynq.NewServeMux()
	mux.Handle(jobs.TaskBackgroundSync, handler)

	logger.Info().Str("tag", cfg.Sync.Tag).Str("channel", cfg.Sync.Channel).Msg("worker running")
	if err := srv.Run(mux); err != nil {
		logger.Error().Err(err).Msg("worker stopped")
	}
}
