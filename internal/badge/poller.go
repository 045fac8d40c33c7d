package badge

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tunehub/backend/internal/domain"
)

// DefaultInterval is how often the unread count is refreshed.
const DefaultInterval = 5 * time.Second

// FetchFunc loads the recipient's notifications.
type FetchFunc func(ctx context.Context) ([]*domain.Notification, error)

// UpdateFunc receives the unread count after each successful poll. cue is set
// when the count grew since the previous poll.
type UpdateFunc func(unread int, cue bool)

// Poller refreshes an unread badge on a fixed interval. Its lifetime is
// bounded by Start and Stop.
type Poller struct {
	interval time.Duration
	fetch    FetchFunc
	onUpdate UpdateFunc
	logger   *zap.Logger

	mu       sync.Mutex
	cancel   context.CancelFunc
	done     chan struct{}
	last     int
	baseline bool
}

func NewPoller(interval time.Duration, fetch FetchFunc, onUpdate UpdateFunc, logger *zap.Logger) *Poller {
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &Poller{
		interval: interval,
		fetch:    fetch,
		onUpdate: onUpdate,
		logger:   logger,
	}
}

// Start polls immediately, then every interval, until Stop or ctx ends.
// Starting a running poller is a no-op.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancel != nil {
		return
	}

	ctx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.run(ctx, p.done)
}

// Stop halts polling and waits for the loop to exit.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (p *Poller) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.Poll(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.Poll(ctx)
		}
	}
}

// Poll runs one refresh. The first successful poll only sets the baseline.
func (p *Poller) Poll(ctx context.Context) {
	notifications, err := p.fetch(ctx)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			p.logger.Warn("unread poll failed", zap.Error(err))
		}
		return
	}
	if ctx.Err() != nil {
		return
	}

	unread := domain.CountUnread(notifications)

	p.mu.Lock()
	cue := p.baseline && unread > p.last
	p.last = unread
	p.baseline = true
	p.mu.Unlock()

	p.onUpdate(unread, cue)
}
