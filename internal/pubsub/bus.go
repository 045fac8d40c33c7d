package pubsub

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Event is a realtime update addressed to one user's live connections.
type Event struct {
	User    string          `json:"user"`
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// Handler receives every event published on a bus.
type Handler func(Event)

// Bus carries events between API instances. Publish satisfies
// domain.EventPublisher.
type Bus interface {
	Publish(ctx context.Context, userID, eventType string, payload interface{}) error
	// Subscribe blocks delivering events to h until ctx is cancelled.
	Subscribe(ctx context.Context, h Handler) error
	Close() error
}

func newEvent(userID, eventType string, payload interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	return Event{User: userID, Type: eventType, Payload: raw}, nil
}

// LocalBus delivers events inside one process. It is used when no Redis is
// configured and in tests.
type LocalBus struct {
	mu       sync.RWMutex
	handlers map[int]Handler
	next     int
}

func NewLocalBus() *LocalBus {
	return &LocalBus{handlers: make(map[int]Handler)}
}

func (b *LocalBus) Publish(ctx context.Context, userID, eventType string, payload interface{}) error {
	event, err := newEvent(userID, eventType, payload)
	if err != nil {
		return err
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, h := range b.handlers {
		h(event)
	}
	return nil
}

func (b *LocalBus) Subscribe(ctx context.Context, h Handler) error {
	b.mu.Lock()
	id := b.next
	b.next++
	b.handlers[id] = h
	b.mu.Unlock()

	<-ctx.Done()

	b.mu.Lock()
	delete(b.handlers, id)
	b.mu.Unlock()
	return nil
}

func (b *LocalBus) Close() error {
	return nil
}
