package jobs

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/hibiken/asynq"

	"github.com/briangreenhill/kidbuddy/internal/notify"
)

const TaskBackgroundSync = "sync:background"

// QueueSync is the asynq queue sync triggers are enqueued on
const QueueSync = "sync"

type SyncPayload struct {
	Tag         string `json:"tag"`
	RequestedAt int64  `json:"requested_at,omitempty"`
}

func NewSyncTask(p SyncPayload) (*asynq.Task, error) {
	b, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal sync payload: %w", err)
	}
	return asynq.NewTask(TaskBackgroundSync, b), nil
}

// ParseSyncPayload decodes a sync trigger; a missing tag is malformed
func ParseSyncPayload(b []byte) (SyncPayload, error) {
	var p SyncPayload
	if err := json.Unmarshal(b, &p); err != nil {
		return SyncPayload{}, fmt.Errorf("%w: %v", notify.ErrMalformedPayload, err)
	}
	p.Tag = strings.TrimSpace(p.Tag)
	if p.Tag == "" {
		return SyncPayload{}, fmt.Errorf("%w: tag is required", notify.ErrMalformedPayload)
	}
	return p, nil
}
