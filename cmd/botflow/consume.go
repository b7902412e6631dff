package main

import (
	"context"
	"fmt"

	"github.com/dukex/botflow/pkg/events"
	cli "github.com/urfave/cli/v3"
)

func NewConsumeCommand() *cli.Command {
	return &cli.Command{
		Name:    "consume",
		Aliases: []string{"c"},
		Usage:   "Interpret chat events taken off the inbound topic",
		Flags:   scheduleFlags(),
		Action: func(ctx context.Context, command *cli.Command) error {
			app, release, err := openApp(ctx, command, "consumer")
			if err != nil {
				return err
			}
			defer release()

			logger := app.Logger

			app.Buses.Inbound.HandleInbound(func(ctx context.Context, event *events.InboundReceived) error {
				out, err := app.Engine.HandleEvent(ctx, event.Event)
				if err != nil {
					return err
				}

				if out.Execution != nil {
					logger.DebugContext(ctx, "Inbound event handled",
						"execution_id", out.Execution.ID,
						"status", out.Execution.Status,
						"steps", out.Steps)
				}

				return nil
			})

			if err := app.Buses.Events.Handle(events.ExecutionFailedEvent, func(ctx context.Context, event any) error {
				if failed, ok := event.(*events.ExecutionFailed); ok {
					logger.WarnContext(ctx, "Execution failed",
						"execution_id", failed.ExecutionID,
						"chat_id", failed.ChatID,
						"node_id", failed.NodeID,
						"error_kind", failed.ErrorKind,
						"error", failed.Error)
				}

				return nil
			}); err != nil {
				return fmt.Errorf("failed to register lifecycle handler: %w", err)
			}

			if err := app.Buses.Inbound.SubscribeInbound(ctx); err != nil {
				return fmt.Errorf("failed to subscribe to inbound events: %w", err)
			}

			if err := app.Buses.Events.Subscribe(ctx); err != nil {
				return fmt.Errorf("failed to subscribe to lifecycle events: %w", err)
			}

			jobs, err := newScheduler(app, command)
			if err != nil {
				return err
			}

			jobs.Start(ctx)
			defer jobs.Stop()

			logger.InfoContext(ctx, "Consumer started")

			<-ctx.Done()

			logger.Info("Consumer stopping")

			return nil
		},
	}
}
