package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/briangreenhill/kidbuddy/internal/metrics"
)

// RedisRelay fans messages out over a Redis pub/sub channel so that every
// gateway instance, and the sync worker, reach all connected contexts.
type RedisRelay struct {
	rdb     *redis.Client
	channel string
	local   Broadcaster
	log     zerolog.Logger
}

// NewRedisRelay publishes on channel and, when Run is called, forwards what
// arrives there to local. local may be nil in publish-only processes.
func NewRedisRelay(rdb *redis.Client, channel string, local Broadcaster, log zerolog.Logger) *RedisRelay {
	return &RedisRelay{
		rdb:     rdb,
		channel: channel,
		local:   local,
		log:     log.With().Str("component", "relay").Str("channel", channel).Logger(),
	}
}

// Broadcast publishes m and returns the number of subscribed gateways
func (r *RedisRelay) Broadcast(ctx context.Context, m Message) int {
	b, err := json.Marshal(m)
	if err != nil {
		r.log.Error().Err(err).Msg("encode relay message")
		return 0
	}
	n, err := r.rdb.Publish(ctx, r.channel, b).Result()
	if err != nil {
		r.log.Warn().Err(err).Str("type", m.Type).Msg("relay publish failed")
		return 0
	}
	return int(n)
}

// Run forwards relayed messages to the local broadcaster until ctx is done
func (r *RedisRelay) Run(ctx context.Context) error {
	if r.local == nil {
		return errors.New("relay has no local broadcaster")
	}
	sub := r.rdb.Subscribe(ctx, r.channel)
	defer sub.Close() //nolint:errcheck

	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe %s: %w", r.channel, err)
	}
	r.log.Info().Msg("relay subscribed")

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			r.forward(ctx, []byte(msg.Payload))
		}
	}
}

func (r *RedisRelay) forward(ctx context.Context, payload []byte) {
	m, err := decodeRelayed(payload)
	if err != nil {
		metrics.DroppedPayloads.WithLabelValues("relay").Inc()
		r.log.Warn().Err(err).Msg("dropping relay message")
		return
	}
	r.local.Broadcast(ctx, m)
}

func decodeRelayed(payload []byte) (Message, error) {
	var m Message
	if err := json.Unmarshal(payload, &m); err != nil {
		return Message{}, fmt.Errorf("%w: %v", ErrMalformedPayload, err)
	}
	switch m.Type {
	case TypeSyncRequest:
	case TypeNotification:
		if m.Title == "" || m.Body == "" {
			return Message{}, fmt.Errorf("%w: notification without title or body", ErrMalformedPayload)
		}
	default:
		return Message{}, fmt.Errorf("%w: unknown message type %q", ErrMalformedPayload, m.Type)
	}
	return m, nil
}
