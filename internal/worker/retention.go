package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const jobTimeout = 5 * time.Minute

// NotificationPurger deletes read notifications older than a given age.
type NotificationPurger interface {
	PurgeRead(ctx context.Context, age time.Duration) (int64, error)
}

// DeviceTokenPurger deletes push tokens that were not refreshed since cutoff.
type DeviceTokenPurger interface {
	DeleteStaleDeviceTokens(ctx context.Context, cutoff time.Time) (int64, error)
}

// Retention periodically removes data nobody will look at again.
type Retention struct {
	cron          *cron.Cron
	notifications NotificationPurger
	devices       DeviceTokenPurger
	readAge       time.Duration
	tokenAge      time.Duration
	logger        *zap.Logger
}

// NewRetention schedules the cleanup on spec, a cron expression or
// descriptor such as "@every 1h". devices may be nil.
func NewRetention(spec string, notifications NotificationPurger, devices DeviceTokenPurger, readAge, tokenAge time.Duration, logger *zap.Logger) (*Retention, error) {
	r := &Retention{
		cron:          cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		notifications: notifications,
		devices:       devices,
		readAge:       readAge,
		tokenAge:      tokenAge,
		logger:        logger,
	}
	if _, err := r.cron.AddFunc(spec, func() { r.RunOnce(context.Background()) }); err != nil {
		return nil, fmt.Errorf("schedule retention %q: %w", spec, err)
	}
	return r, nil
}

func (r *Retention) Start() {
	r.cron.Start()
	r.logger.Info("Retention worker started", zap.Duration("read_age", r.readAge))
}

// Stop waits for a running cleanup to finish or ctx to end.
func (r *Retention) Stop(ctx context.Context) {
	select {
	case <-r.cron.Stop().Done():
	case <-ctx.Done():
	}
}

// RunOnce performs one cleanup pass. Failures are logged.
func (r *Retention) RunOnce(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, jobTimeout)
	defer cancel()

	deleted, err := r.notifications.PurgeRead(ctx, r.readAge)
	if err != nil {
		r.logger.Error("Failed to purge read notifications", zap.Error(err))
	} else if deleted > 0 {
		r.logger.Info("Purged read notifications", zap.Int64("count", deleted))
	}

	if r.devices == nil || r.tokenAge <= 0 {
		return
	}
	stale, err := r.devices.DeleteStaleDeviceTokens(ctx, time.Now().Add(-r.tokenAge))
	if err != nil {
		r.logger.Error("Failed to delete stale device tokens", zap.Error(err))
	} else if stale > 0 {
		r.logger.Info("Deleted stale device tokens", zap.Int64("count", stale))
	}
}
