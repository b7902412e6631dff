package main

import (
	"time"

	"github.com/dukex/botflow/pkg/cmd"
	"github.com/dukex/botflow/pkg/scheduler"
	cli "github.com/urfave/cli/v3"
)

func scheduleFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "timeout-schedule",
			Usage:   "Cron expression of the wait-timeout sweep; empty disables it",
			Value:   "@every 30s",
			Sources: cli.EnvVars("TIMEOUT_SCHEDULE"),
		},
		&cli.StringFlag{
			Name:    "sweep-schedule",
			Usage:   "Cron expression of the retention sweep; empty disables it",
			Value:   "@daily",
			Sources: cli.EnvVars("SWEEP_SCHEDULE"),
		},
		&cli.DurationFlag{
			Name:    "retention",
			Usage:   "Executions not updated for this long are deleted",
			Value:   30 * 24 * time.Hour,
			Sources: cli.EnvVars("RETENTION"),
		},
	}
}

// newScheduler registers the maintenance jobs of the engine.
func newScheduler(app *cmd.App, command *cli.Command) (*scheduler.Scheduler, error) {
	s := scheduler.New(app.Logger)

	if err := s.Add(scheduler.WaitTimeoutJobName, command.String("timeout-schedule"),
		scheduler.WaitTimeouts(app.Logger, app.Engine)); err != nil {
		return nil, err
	}

	if err := s.Add(scheduler.RetentionJobName, command.String("sweep-schedule"),
		scheduler.Retention(app.Executions, command.Duration("retention"))); err != nil {
		return nil, err
	}

	return s, nil
}
