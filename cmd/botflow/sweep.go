package main

import (
	"context"
	"errors"

	"github.com/dukex/botflow/pkg/scheduler"
	cli "github.com/urfave/cli/v3"
)

func NewSweepCommand() *cli.Command {
	return &cli.Command{
		Name:  "sweep",
		Usage: "Run the wait-timeout and retention sweeps once",
		Flags: scheduleFlags(),
		Action: func(ctx context.Context, command *cli.Command) error {
			app, release, err := openApp(ctx, command, "sweep")
			if err != nil {
				return err
			}
			defer release()

			s := scheduler.New(app.Logger)

			timeoutErr := s.RunNow(ctx, scheduler.WaitTimeoutJobName, scheduler.WaitTimeouts(app.Logger, app.Engine))
			retentionErr := s.RunNow(ctx, scheduler.RetentionJobName,
				scheduler.Retention(app.Executions, command.Duration("retention")))

			return errors.Join(timeoutErr, retentionErr)
		},
	}
}
