package scheduler

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/briangreenhill/kidbuddy/internal/jobs"
)

type countingDispatcher struct {
	mu    sync.Mutex
	calls []jobs.SyncPayload
	err   error
}

func (c *countingDispatcher) Dispatch(_ context.Context, p jobs.SyncPayload) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, p)
	return c.err
}

func (c *countingDispatcher) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

func TestNewRejectsBadSpec(t *testing.T) {
	_, err := New("every now and then", "background-sync", &countingDispatcher{}, zerolog.Nop())
	assert.Error(t, err)
}

func TestTriggerDispatchesTaggedSync(t *testing.T) {
	d := &countingDispatcher{}
	s, err := New("@every 1h", "background-sync", d, zerolog.Nop())
	require.NoError(t, err)

	s.trigger()
	require.Equal(t, 1, d.count())
	assert.Equal(t, "background-sync", d.calls[0].Tag)
	assert.NotZero(t, d.calls[0].RequestedAt)

	d.err = errors.New("queue down")
	assert.NotPanics(t, s.trigger)
}

func TestSchedulerRuns(t *testing.T) {
	d := &countingDispatcher{}
	s, err := New("@every 1s", "background-sync", d, zerolog.Nop())
	require.NoError(t, err)

	s.Start()
	defer s.Stop()
	assert.Eventually(t, func() bool { return d.count() > 0 }, 3*time.Second, 50*time.Millisecond)
}
