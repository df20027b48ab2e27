package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
)

// Dispatcher delivers a background-sync trigger
type Dispatcher interface {
	Dispatch(ctx context.Context, p SyncPayload) error
}

// Direct runs the handler in-process
type Direct struct {
	h *SyncHandler
}

func NewDirect(h *SyncHandler) *Direct {
	return &Direct{h: h}
}

func (d *Direct) Dispatch(ctx context.Context, p SyncPayload) error {
	d.h.Handle(ctx, p)
	return nil
}

type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

// Queue hands triggers to the sync worker through asynq
type Queue struct {
	client enqueuer
	log    zerolog.Logger
}

func NewQueue(redisAddr string, log zerolog.Logger) *Queue {
	return &Queue{
		client: asynq.NewClient(asynq.RedisClientOpt{Addr: redisAddr}),
		log:    log.With().Str("component", "dispatch").Logger(),
	}
}

func (q *Queue) Dispatch(ctx context.Context, p SyncPayload) error {
	task, err := NewSyncTask(p)
	if err != nil {
		return err
	}
	info, err := q.client.EnqueueContext(ctx, task,
		asynq.Queue(QueueSync),
		asynq.MaxRetry(3),
		asynq.Timeout(time.Minute),
	)
	if err != nil {
		return fmt.Errorf("enqueue sync: %w", err)
	}
	q.log.Info().Str("id", info.ID).Str("queue", info.Queue).Str("tag", p.Tag).Msg("sync enqueued")
	return nil
}

func (q *Queue) Close() error {
	return q.client.Close()
}
