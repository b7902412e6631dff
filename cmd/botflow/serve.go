package main

import (
	"context"
	"errors"
	"time"

	"github.com/dukex/botflow/pkg/eventbus"
	cli "github.com/urfave/cli/v3"
)

const defaultPort = 9091

func NewServeCommand() *cli.Command {
	return &cli.Command{
		Name:    "serve",
		Aliases: []string{"s"},
		Usage:   "Start the HTTP API and the maintenance sweeps",
		Flags: append([]cli.Flag{
			&cli.IntFlag{
				Name:    "port",
				Aliases: []string{"p"},
				Usage:   "Port to run the API server on",
				Value:   defaultPort,
				Sources: cli.EnvVars("PORT"),
			},
			&cli.BoolFlag{
				Name:    "queue-inbound",
				Usage:   "Queue webhook events on the inbound topic instead of interpreting them inline",
				Sources: cli.EnvVars("QUEUE_INBOUND"),
			},
		}, scheduleFlags()...),
		Action: func(ctx context.Context, command *cli.Command) error {
			app, release, err := openApp(ctx, command, "api")
			if err != nil {
				return err
			}
			defer release()

			logger := app.Logger

			logger.InfoContext(ctx, "Initializing Botflow API")

			var inbound eventbus.InboundBus
			if command.Bool("queue-inbound") {
				inbound = app.Buses.Inbound
			}

			jobs, err := newScheduler(app, command)
			if err != nil {
				return err
			}

			jobs.Start(ctx)
			defer jobs.Stop()

			api := NewAPI(logger, app, inbound)
			server := api.App()

			errs := make(chan error, 1)

			go func() {
				errs <- api.Start(server, command.Int("port"))
			}()

			select {
			case err := <-errs:
				return err
			case <-ctx.Done():
			}

			logger.Info("Shutting down API")

			shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
			defer cancel()

			if err := server.ShutdownWithContext(shutdownCtx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}

			return nil
		},
	}
}
