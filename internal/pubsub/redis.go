package pubsub

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
)

const defaultChannel = "tunehub:events"

// RedisBus fans events out to every API instance through Redis pub/sub.
type RedisBus struct {
	client  *redis.Client
	channel string
	logger  *zap.Logger
}

// NewRedisBus connects to the Redis server at url (redis://host:port/db).
func NewRedisBus(ctx context.Context, url string, logger *zap.Logger) (*RedisBus, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &RedisBus{client: client, channel: defaultChannel, logger: logger}, nil
}

func (b *RedisBus) Publish(ctx context.Context, userID, eventType string, payload interface{}) error {
	event, err := newEvent(userID, eventType, payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("publish event: %w", err)
	}
	return nil
}

func (b *RedisBus) Subscribe(ctx context.Context, h Handler) error {
	ps := b.client.Subscribe(ctx, b.channel)
	defer ps.Close()

	// wait for the subscription to be confirmed before reading messages
	if _, err := ps.Receive(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("subscribe %s: %w", b.channel, err)
	}

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				b.logger.Warn("dropping malformed event", zap.Error(err))
				continue
			}
			h(event)
		}
	}
}

func (b *RedisBus) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

func (b *RedisBus) Close() error {
	return b.client.Close()
}
