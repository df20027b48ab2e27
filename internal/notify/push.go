package notify

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// ErrMalformedPayload marks sync, push or relay payloads that are dropped
var ErrMalformedPayload = errors.New("malformed payload")

const (
	maxTitleLen = 120
	maxBodyLen  = 1000
)

// Push is a decoded push-notification payload
type Push struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// ParsePush decodes and validates a push payload. Both fields must be
// non-empty strings within bounds.
func ParsePush(b []byte) (Push, error) {
	var raw struct {
		Title *string `json:"title"`
		Body  *string `json:"body"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return Push{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	if raw.Title == nil || strings.TrimSpace(*raw.Title) == "" {
		return Push{}, fmt.Errorf("%w: title is required", ErrMalformedPayload)
	}
	if raw.Body == nil || strings.TrimSpace(*raw.Body) == "" {
		return Push{}, fmt.Errorf("%w: body is required", ErrMalformedPayload)
	}
	if utf8.RuneCountInString(*raw.Title) > maxTitleLen {
		return Push{}, fmt.Errorf("%w: title longer than %d characters", ErrMalformedPayload, maxTitleLen)
	}
	if utf8.RuneCountInString(*raw.Body) > maxBodyLen {
		return Push{}, fmt.Errorf("%w: body longer than %d characters", ErrMalformedPayload, maxBodyLen)
	}
	return Push{Title: *raw.Title, Body: *raw.Body}, nil
}

// Notification builds the message the page renders as a system notification
func Notification(p Push, icon, badge string) Message {
	return Message{
		Type:      TypeNotification,
		Timestamp: time.Now().UnixMilli(),
		Title:     p.Title,
		Body:      p.Body,
		Icon:      icon,
		Badge:     badge,
	}
}
