package scheduler

import (
	"context"
	"log/slog"
	"time"
)

const (
	WaitTimeoutJobName = "wait_timeout"
	RetentionJobName   = "retention"
)

type WaitExpirer interface {
	ExpireWaits(ctx context.Context) (int, error)
}

type Sweeper interface {
	Sweep(ctx context.Context, retention time.Duration) (int64, error)
}

// WaitTimeouts moves waiting executions past their deadline along their
// timeout edges.
func WaitTimeouts(logger *slog.Logger, expirer WaitExpirer) Job {
	return func(ctx context.Context) error {
		n, err := expirer.ExpireWaits(ctx)
		if n > 0 {
			logger.InfoContext(ctx, "Expired waiting executions", "count", n)
		}

		return err
	}
}

// Retention deletes executions not updated within the retention window.
func Retention(sweeper Sweeper, retention time.Duration) Job {
	return func(ctx context.Context) error {
		_, err := sweeper.Sweep(ctx, retention)

		return err
	}
}
