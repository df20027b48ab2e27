// Package notify relays background-sync and push notifications to the
// foreground browser contexts connected to the gateway.
package notify

import (
	"context"
	"time"
)

// Message types understood by the page
const (
	TypeSyncRequest  = "sync_request"
	TypeNotification = "notification"
)

// Message is posted to every connected context
type Message struct {
	Type      string `json:"type"`
	Timestamp int64  `json:"timestamp"`
	Title     string `json:"title,omitempty"`
	Body      string `json:"body,omitempty"`
	Icon      string `json:"icon,omitempty"`
	Badge     string `json:"badge,omitempty"`
}

// SyncRequest asks every context to re-synchronize
func SyncRequest(now time.Time) Message {
	return Message{Type: TypeSyncRequest, Timestamp: now.UnixMilli()}
}

// Broadcaster delivers a message to connected contexts and reports how many
// it reached. Delivery is fire-and-forget.
type Broadcaster interface {
	Broadcast(ctx context.Context, m Message) int
}
