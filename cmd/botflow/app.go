package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dukex/botflow/pkg/cmd"
	"github.com/dukex/botflow/pkg/log"
	"github.com/dukex/botflow/pkg/otelhelper"
	cli "github.com/urfave/cli/v3"
)

// openApp configures logging and tracing, then wires the application. The
// returned func releases everything in reverse order.
func openApp(ctx context.Context, command *cli.Command, module string) (*cmd.App, func(), error) {
	log.Setup(command.String("log-level"), command.String("log-format"))

	logger := log.WithModule(module)

	cfg := cmd.Config{
		DatabaseURL:   command.String("database-url"),
		EventBus:      command.String("event-bus"),
		KafkaBrokers:  command.String("kafka-brokers"),
		ConsumerGroup: module,
		RedisURL:      command.String("redis-url"),
		MaxSteps:      command.Int("max-steps"),
	}

	shutdownTracer := func(context.Context) error { return nil }

	if command.Bool("tracing") {
		tracer, shutdown, err := otelhelper.NewTracer(ctx, "botflow-"+module)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize tracer: %w", err)
		}

		cfg.Tracer = tracer
		shutdownTracer = shutdown
	}

	app, err := cmd.NewApp(ctx, logger, cfg)
	if err != nil {
		_ = shutdownTracer(ctx)

		return nil, nil, err
	}

	release := func() {
		closeCtx := context.WithoutCancel(ctx)

		if err := app.Close(closeCtx); err != nil {
			logger.Error("Failed to close application", "error", err)
		}

		if err := shutdownTracer(closeCtx); err != nil {
			slog.Error("Failed to shutdown tracer provider", "error", err)
		}
	}

	return app, release, nil
}
