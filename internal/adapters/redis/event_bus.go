// Package redis carries terminal job events between the worker and API processes over Redis pub/sub.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/target/paper-digest/internal/core"
	"github.com/target/paper-digest/internal/domain/model"
)

// DefaultEventChannel is used when no channel is configured.
const DefaultEventChannel = "digest:job-events"

// EventHandler receives decoded job events.
type EventHandler func(ctx context.Context, ev model.JobEvent)

// EventBus publishes and subscribes to terminal job events.
// Pub/sub is fire-and-forget: events published while no API process listens are lost,
// which matches the best-effort contract of live channels.
type EventBus struct {
	client  redis.UniversalClient
	channel string
	logger  *slog.Logger
}

var _ core.JobEventPublisher = (*EventBus)(nil)

// NewEventBus creates an event bus on channel.
func NewEventBus(client redis.UniversalClient, channel string, logger *slog.Logger) *EventBus {
	if strings.TrimSpace(channel) == "" {
		channel = DefaultEventChannel
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &EventBus{
		client:  client,
		channel: channel,
		logger:  logger.With("component", "redis_event_bus", "channel", channel),
	}
}

// PublishJobEvent implements core.JobEventPublisher.
func (b *EventBus) PublishJobEvent(ctx context.Context, ev model.JobEvent) error {
	if ev.JobID == "" {
		return errors.New("job event without job id")
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal job event: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Subscribe forwards every event on the channel to handler until ctx is cancelled.
// It returns nil on cancellation and an error if the subscription cannot be established.
func (b *EventBus) Subscribe(ctx context.Context, handler EventHandler) error {
	if handler == nil {
		return errors.New("event handler is required")
	}

	ps := b.client.Subscribe(ctx, b.channel)
	defer func() {
		if err := ps.Close(); err != nil {
			b.logger.DebugContext(ctx, "close subscription", "error", err)
		}
	}()

	// Wait for the subscription confirmation so callers know events will be received.
	if _, err := ps.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("redis subscribe: %w", err)
	}
	b.logger.InfoContext(ctx, "subscribed to job events")

	msgs := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return errors.New("redis subscription closed")
			}
			var ev model.JobEvent
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil || ev.JobID == "" {
				b.logger.WarnContext(ctx, "dropping malformed job event", "error", err)
				continue
			}
			handler(ctx, ev)
		}
	}
}
