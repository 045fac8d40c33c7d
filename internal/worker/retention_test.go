package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakePurger struct {
	ages    []time.Duration
	cutoffs []time.Time
	err     error
}

func (f *fakePurger) PurgeRead(ctx context.Context, age time.Duration) (int64, error) {
	f.ages = append(f.ages, age)
	return 2, f.err
}

func (f *fakePurger) DeleteStaleDeviceTokens(ctx context.Context, cutoff time.Time) (int64, error) {
	f.cutoffs = append(f.cutoffs, cutoff)
	return 1, nil
}

func TestRunOncePurges(t *testing.T) {
	p := &fakePurger{}
	r, err := NewRetention("@every 1h", p, p, 24*time.Hour, 48*time.Hour, zap.NewNop())
	require.NoError(t, err)

	r.RunOnce(context.Background())

	assert.Equal(t, []time.Duration{24 * time.Hour}, p.ages)
	require.Len(t, p.cutoffs, 1)
	assert.WithinDuration(t, time.Now().Add(-48*time.Hour), p.cutoffs[0], time.Minute)
}

func TestRunOnceContinuesAfterFailure(t *testing.T) {
	p := &fakePurger{err: errors.New("mongo unavailable")}
	r, err := NewRetention("@daily", p, p, time.Hour, time.Hour, zap.NewNop())
	require.NoError(t, err)

	r.RunOnce(context.Background())
	assert.Len(t, p.cutoffs, 1)
}

func TestRunOnceWithoutDevices(t *testing.T) {
	p := &fakePurger{}
	r, err := NewRetention("@daily", p, nil, time.Hour, time.Hour, zap.NewNop())
	require.NoError(t, err)

	r.RunOnce(context.Background())
	assert.Len(t, p.ages, 1)
	assert.Empty(t, p.cutoffs)
}

func TestNewRetentionRejectsBadSchedule(t *testing.T) {
	_, err := NewRetention("every now and then", &fakePurger{}, nil, time.Hour, 0, zap.NewNop())
	assert.Error(t, err)
}

func TestStartStop(t *testing.T) {
	r, err := NewRetention("@every 1h", &fakePurger{}, nil, time.Hour, 0, zap.NewNop())
	require.NoError(t, err)

	r.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	r.Stop(ctx)
	assert.NoError(t, ctx.Err())
}
