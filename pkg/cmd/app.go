package cmd

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dukex/botflow/pkg/engine"
	"github.com/dukex/botflow/pkg/persistence"
	"github.com/dukex/botflow/pkg/query"
	"github.com/dukex/botflow/pkg/registry"
	"github.com/dukex/botflow/pkg/services"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/trace"
)

type Config struct {
	DatabaseURL   string
	EventBus      string
	KafkaBrokers  string
	ConsumerGroup string
	RedisURL      string
	MaxSteps      int
	Tracer        trace.Tracer
}

// App is the wired object graph shared by every command.
type App struct {
	Logger      *slog.Logger
	Persistence persistence.Persistence
	Buses       *Buses
	Registry    *registry.Registry
	Engine      *engine.Engine
	Flows       *services.Flow
	Publishing  *services.Publishing
	Executions  *services.Execution

	closeLocker func() error
}

func NewApp(ctx context.Context, logger *slog.Logger, cfg Config) (*App, error) {
	p, err := NewPersistence(ctx, logger, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}

	buses, err := NewBuses(cfg.EventBus, logger, cfg.KafkaBrokers, cfg.ConsumerGroup)
	if err != nil {
		_ = p.Close(ctx)

		return nil, err
	}

	locker, closeLocker, err := NewLocker(cfg.RedisURL, logger)
	if err != nil {
		_ = buses.Close()
		_ = p.Close(ctx)

		return nil, err
	}

	clock := clockwork.NewRealClock()
	reg := NewRegistry(logger)
	queries := query.NewExecutor(logger, p.UserRepository(), buses.Messenger, clock)

	opts := []engine.Option{
		engine.WithLocker(locker),
		engine.WithPublisher(buses.Events),
		engine.WithClock(clock),
	}

	if cfg.MaxSteps > 0 {
		opts = append(opts, engine.WithMaxSteps(cfg.MaxSteps))
	}

	if cfg.Tracer != nil {
		opts = append(opts, engine.WithTracer(cfg.Tracer))
	}

	eng := engine.New(logger, p, reg, queries, opts...)

	return &App{
		Logger:      logger,
		Persistence: p,
		Buses:       buses,
		Registry:    reg,
		Engine:      eng,
		Flows:       services.NewFlow(p, reg),
		Publishing:  services.NewPublishing(logger, p, reg, eng, buses.Events),
		Executions:  services.NewExecution(logger, p, eng, clock),
		closeLocker: closeLocker,
	}, nil
}

func (a *App) Close(ctx context.Context) error {
	return errors.Join(a.Buses.Close(), a.closeLocker(), a.Persistence.Close(ctx))
}
