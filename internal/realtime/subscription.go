package realtime

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/tunehub/backend/internal/metrics"
)

// State is the lifecycle position of a Subscription.
type State int

const (
	Idle State = iota
	Loading
	Subscribed
	Unsubscribed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Subscribed:
		return "subscribed"
	case Unsubscribed:
		return "unsubscribed"
	}
	return "unknown"
}

// WatchFunc blocks delivering snapshots to fn until ctx is cancelled.
type WatchFunc[T any] func(ctx context.Context, fn func(T)) error

// Subscription owns one live listener. It must be closed by whoever opened it.
type Subscription struct {
	name   string
	logger *zap.Logger

	mu     sync.Mutex
	state  State
	err    error
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSubscription returns an Idle subscription.
func NewSubscription(name string, logger *zap.Logger) *Subscription {
	return &Subscription{name: name, logger: logger, state: Idle}
}

// Subscribe starts the listener of sub and delivers every snapshot to deliver.
// The first snapshot moves the subscription from Loading to Subscribed.
func Subscribe[T any](ctx context.Context, sub *Subscription, watch WatchFunc[T], deliver func(T)) {
	sub.mu.Lock()
	if sub.state != Idle {
		sub.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	sub.state = Loading
	sub.cancel = cancel
	sub.done = make(chan struct{})
	sub.mu.Unlock()

	metrics.SubscriptionOpened()
	go func() {
		defer close(sub.done)
		defer metrics.SubscriptionClosed()

		err := watch(ctx, func(snapshot T) {
			sub.mu.Lock()
			if sub.state == Loading {
				sub.state = Subscribed
			}
			active := sub.state == Subscribed
			sub.mu.Unlock()

			if active {
				deliver(snapshot)
			}
		})

		sub.mu.Lock()
		sub.state = Unsubscribed
		sub.err = err
		sub.mu.Unlock()

		if err != nil {
			sub.logger.Warn("subscription ended with error", zap.String("subscription", sub.name), zap.Error(err))
		}
	}()
}

func (s *Subscription) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Err returns the error the listener stopped with, if any.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Done is closed once the listener goroutine has exited. It is nil for a
// subscription that never started.
func (s *Subscription) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

// Close tears the listener down and waits for it to exit. It is safe to call
// more than once.
func (s *Subscription) Close() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	if s.state == Idle {
		s.state = Unsubscribed
	}
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done

	s.mu.Lock()
	s.state = Unsubscribed
	s.mu.Unlock()
}
