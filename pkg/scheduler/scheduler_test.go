package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fakeExpirer struct {
	calls atomic.Int32
	err   error
}

func (f *fakeExpirer) ExpireWaits(context.Context) (int, error) {
	f.calls.Add(1)

	return 2, f.err
}

type fakeSweeper struct {
	retention time.Duration
}

func (f *fakeSweeper) Sweep(_ context.Context, retention time.Duration) (int64, error) {
	f.retention = retention

	return 1, nil
}

func TestScheduler_Add(t *testing.T) {
	s := New(testLogger())
	job := func(context.Context) error { return nil }

	require.NoError(t, s.Add("a", "*/5 * * * *", job))
	require.NoError(t, s.Add("disabled", "", job))

	err := s.Add("a", "@hourly", job)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already registered")

	err = s.Add("b", "not a schedule", job)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid cron expression")

	assert.Len(t, s.entries, 1)
}

func TestScheduler_RunsJobs(t *testing.T) {
	s := New(testLogger())
	expirer := &fakeExpirer{}

	require.NoError(t, s.Add(WaitTimeoutJobName, "@every 1s", WaitTimeouts(testLogger(), expirer)))

	s.Start(t.Context())

	assert.Eventually(t, func() bool { return expirer.calls.Load() > 0 }, 3*time.Second, 50*time.Millisecond)

	s.Stop()
}

func TestScheduler_RunNow(t *testing.T) {
	s := New(testLogger(), WithJobTimeout(time.Second))

	sweeper := &fakeSweeper{}
	require.NoError(t, s.RunNow(t.Context(), RetentionJobName, Retention(sweeper, 72*time.Hour)))
	assert.Equal(t, 72*time.Hour, sweeper.retention)

	expirer := &fakeExpirer{err: errors.New("store down")}
	err := s.RunNow(t.Context(), WaitTimeoutJobName, WaitTimeouts(testLogger(), expirer))
	require.EqualError(t, err, "store down")

	err = s.RunNow(t.Context(), "slow", func(ctx context.Context) error {
		<-ctx.Done()

		return ctx.Err()
	})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
