package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/tomvane/edgebot/internal/domain"
)

// EventBus publishes dispatcher events to a Redis stream for the alert/UI
// boundary. The stream is capped approximately so an absent consumer never
// grows it without bound.
type EventBus struct {
	rdb    *redis.Client
	stream string
	maxLen int64
}

// NewEventBus creates an EventBus writing to the given stream.
func NewEventBus(c *Client, stream string, maxLen int64) *EventBus {
	if stream == "" {
		stream = "edgebot:events"
	}
	if maxLen <= 0 {
		maxLen = 10000
	}
	return &EventBus{rdb: c.Underlying(), stream: stream, maxLen: maxLen}
}

// Publish appends one event to the stream. The event type travels as a field
// next to the caller's payload.
func (b *EventBus) Publish(ctx context.Context, event string, fields map[string]any) error {
	values := make(map[string]any, len(fields)+1)
	for k, v := range fields {
		values[k] = v
	}
	values["event"] = event

	args := &redis.XAddArgs{
		Stream: b.stream,
		MaxLen: b.maxLen,
		Approx: true,
		Values: values,
	}
	if err := b.rdb.XAdd(ctx, args).Err(); err != nil {
		return fmt.Errorf("redis: publish %s to %s: %w", event, b.stream, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.EventBus = (*EventBus)(nil)
