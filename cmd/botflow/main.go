// Package main is the botflow command: the HTTP API, the inbound consumer,
// maintenance sweeps and flow authoring helpers.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	cli "github.com/urfave/cli/v3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := NewRootCommand().Run(ctx, os.Args); err != nil {
		_, _ = os.Stderr.WriteString(err.Error() + "\n")

		stop()
		os.Exit(1)
	}
}

func NewRootCommand() *cli.Command {
	return &cli.Command{
		Name:                  "botflow",
		Usage:                 "Run and manage chat-bot flows",
		EnableShellCompletion: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "database-url",
				Usage:   "Persistence URL (file://<dir> or postgres://...)",
				Value:   "file://./data",
				Sources: cli.EnvVars("DATABASE_URL"),
			},
			&cli.StringFlag{
				Name:    "event-bus",
				Usage:   "Event bus type (gochannel, kafka)",
				Value:   "gochannel",
				Sources: cli.EnvVars("EVENT_BUS_TYPE"),
			},
			&cli.StringFlag{
				Name:    "kafka-brokers",
				Usage:   "Comma separated Kafka brokers",
				Value:   "localhost:9092",
				Sources: cli.EnvVars("KAFKA_BROKERS"),
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Usage:   "Redis URL for the distributed session lock; empty locks in memory",
				Sources: cli.EnvVars("REDIS_URL"),
			},
			&cli.IntFlag{
				Name:    "max-steps",
				Usage:   "Maximum steps interpreted per inbound event",
				Value:   100,
				Sources: cli.EnvVars("MAX_STEPS_PER_EVENT"),
			},
			&cli.StringFlag{
				Name:    "log-level",
				Usage:   "Log level (debug, info, warn, error)",
				Value:   "info",
				Sources: cli.EnvVars("LOG_LEVEL"),
			},
			&cli.StringFlag{
				Name:    "log-format",
				Usage:   "Log format (text, json, tint)",
				Value:   "text",
				Sources: cli.EnvVars("LOG_FORMAT"),
			},
			&cli.BoolFlag{
				Name:    "tracing",
				Usage:   "Export traces over OTLP HTTP",
				Sources: cli.EnvVars("TRACING_ENABLED"),
			},
		},
		Commands: []*cli.Command{
			NewServeCommand(),
			NewConsumeCommand(),
			NewSweepCommand(),
			NewValidateCommand(),
			NewPublishCommand(),
		},
	}
}
