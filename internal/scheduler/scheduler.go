// Package scheduler fires periodic background-sync triggers
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/briangreenhill/kidbuddy/internal/jobs"
)

// Scheduler dispatches a sync trigger on a cron schedule
type Scheduler struct {
	cron       *cron.Cron
	dispatcher jobs.Dispatcher
	tag        string
	log        zerolog.Logger
}

// New parses spec (standard five-field cron or descriptors like @every 15m)
// and registers the sync job.
func New(spec, tag string, d jobs.Dispatcher, log zerolog.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron:       cron.New(),
		dispatcher: d,
		tag:        tag,
		log:        log.With().Str("component", "scheduler").Logger(),
	}
	if _, err := s.cron.AddFunc(spec, s.trigger); err != nil {
		return nil, fmt.Errorf("schedule sync %q: %w", spec, err)
	}
	return s, nil
}

func (s *Scheduler) trigger() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	p := jobs.SyncPayload{Tag: s.tag, RequestedAt: time.Now().UnixMilli()}
	if err := s.dispatcher.Dispatch(ctx, p); err != nil {
		s.log.Warn().Err(err).Msg("scheduled sync failed")
		return
	}
	s.log.Debug().Str("tag", s.tag).Msg("scheduled sync dispatched")
}

// Start starts the scheduler
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop stops the scheduler and waits for a running trigger
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}
