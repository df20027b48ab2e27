package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/briangreenhill/kidbuddy/internal/metrics"
	"github.com/briangreenhill/kidbuddy/internal/notify"
)

// SyncHandler turns a tag-qualified background-sync trigger into a
// sync_request broadcast to every connected context.
type SyncHandler struct {
	tag string
	out notify.Broadcaster
	log zerolog.Logger
	now func() time.Time
}

func NewSyncHandler(tag string, out notify.Broadcaster, log zerolog.Logger) *SyncHandler {
	return &SyncHandler{
		tag: tag,
		out: out,
		log: log.With().Str("component", "sync").Logger(),
		now: time.Now,
	}
}

// Handle broadcasts a sync request when p carries the configured tag and
// returns the number of contexts reached. Other tags are ignored.
func (h *SyncHandler) Handle(ctx context.Context, p SyncPayload) int {
	if p.Tag != h.tag {
		h.log.Debug().Str("tag", p.Tag).Msg("ignoring sync for unknown tag")
		return 0
	}
	n := h.out.Broadcast(ctx, notify.SyncRequest(h.now()))
	h.log.Info().Str("tag", p.Tag).Int("reached", n).Msg("sync request relayed")
	return n
}

// ProcessTask implements asynq.Handler. Malformed payloads are dropped
// without retry.
func (h *SyncHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	p, err := ParseSyncPayload(t.Payload())
	if err != nil {
		metrics.DroppedPayloads.WithLabelValues("sync").Inc()
		h.log.Warn().Err(err).Msg("dropping sync task")
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	h.Handle(ctx, p)
	return nil
}
