// Package engine interprets published flow versions one inbound chat event at
// a time. Executions are persisted after every step so that a waiting
// execution can be resumed by any process, hours or days later.
package engine

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dukex/botflow/pkg/cache"
	"github.com/dukex/botflow/pkg/eventbus"
	"github.com/dukex/botflow/pkg/graph"
	"github.com/dukex/botflow/pkg/models"
	"github.com/dukex/botflow/pkg/otelhelper"
	"github.com/dukex/botflow/pkg/persistence"
	"github.com/dukex/botflow/pkg/query"
	"github.com/dukex/botflow/pkg/session"
	"github.com/go-playground/validator/v10"
	"github.com/jonboulle/clockwork"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultMaxSteps    = 100
	DefaultCacheSize   = 256
	DefaultCacheTTL    = 5 * time.Minute
	DefaultSweepBatch  = 100
	interruptedMessage = "interrupted by trigger "
)

// Engine is safe for concurrent use. Events of one chat are serialized
// through the session locker; different chats proceed in parallel.
type Engine struct {
	logger     *slog.Logger
	versions   persistence.VersionRepository
	executions persistence.ExecutionRepository
	projects   persistence.ProjectRepository
	builder    graph.NodeBuilder
	queries    *query.Executor
	locker     session.Locker
	publisher  eventbus.EventPublisher
	tracer     trace.Tracer
	clock      clockwork.Clock
	validate   *validator.Validate
	maxSteps   int
	cacheSize  int
	cacheTTL   time.Duration

	programs *cache.Cache[string, *graph.Program]
	active   *cache.Cache[string, []*models.Version]
}

type Option func(*Engine)

func WithLocker(l session.Locker) Option {
	return func(e *Engine) { e.locker = l }
}

// WithPublisher enables lifecycle events.
func WithPublisher(p eventbus.EventPublisher) Option {
	return func(e *Engine) { e.publisher = p }
}

func WithTracer(t trace.Tracer) Option {
	return func(e *Engine) { e.tracer = t }
}

func WithClock(c clockwork.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithMaxSteps bounds the steps taken for a single inbound event.
func WithMaxSteps(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.maxSteps = n
		}
	}
}

// WithCache sizes the compiled program and active version caches.
func WithCache(size int, ttl time.Duration) Option {
	return func(e *Engine) {
		e.cacheSize = size
		e.cacheTTL = ttl
	}
}

func New(logger *slog.Logger, p persistence.Persistence, builder graph.NodeBuilder, queries *query.Executor, opts ...Option) *Engine {
	e := &Engine{
		logger:     logger.With("module", "engine"),
		versions:   p.VersionRepository(),
		executions: p.ExecutionRepository(),
		projects:   p.ProjectRepository(),
		builder:    builder,
		queries:    queries,
		locker:     session.NewMemoryLocker(),
		tracer:     otelhelper.NoopTracer(),
		clock:      clockwork.NewRealClock(),
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		maxSteps:   DefaultMaxSteps,
		cacheSize:  DefaultCacheSize,
		cacheTTL:   DefaultCacheTTL,
	}

	for _, opt := range opts {
		opt(e)
	}

	e.programs = cache.New[string, *graph.Program](e.cacheSize, 0, e.clock)
	e.active = cache.New[string, []*models.Version](e.cacheSize, e.cacheTTL, e.clock)

	return e
}

// InvalidateProject drops the cached active versions of a project. Call it
// after a publish.
func (e *Engine) InvalidateProject(projectID string) {
	e.active.Invalidate(projectID)
}

// program returns the compiled version, compiling it on first use. Versions
// are immutable, so program entries carry no TTL.
func (e *Engine) program(ctx context.Context, versionID string) (*graph.Program, error) {
	if p, ok := e.programs.Get(versionID); ok {
		return p, nil
	}

	v, err := e.versions.GetByID(ctx, versionID)
	if err != nil {
		return nil, err
	}

	p := graph.Compile(ctx, v, e.builder)
	e.programs.Set(versionID, p)

	return p, nil
}

// activeVersions lists the project's active versions in trigger precedence:
// flow creation time, then flow id.
func (e *Engine) activeVersions(ctx context.Context, projectID string) ([]*models.Version, error) {
	if vs, ok := e.active.Get(projectID); ok {
		return vs, nil
	}

	vs, err := e.versions.ActiveByProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	e.active.Set(projectID, vs)

	return vs, nil
}

func (e *Engine) projectVariables(ctx context.Context, projectID string) (map[string]any, error) {
	project, err := e.projects.GetByID(ctx, projectID)
	if err != nil {
		if errors.Is(err, persistence.ErrProjectNotFound) {
			return map[string]any{}, nil
		}

		return nil, err
	}

	return models.CopyVariables(project.Variables), nil
}

// defaults returns the declared initial values of a version's variables.
func defaults(v *models.Version) map[string]any {
	vars := make(map[string]any, len(v.Variables))

	for name, decl := range v.Variables {
		if decl.Default != nil {
			vars[name] = decl.Default
		}
	}

	return vars
}

func (e *Engine) publish(ctx context.Context, exec *models.Execution, event eventbus.Event) {
	if e.publisher == nil || event == nil {
		return
	}

	err := e.publisher.Publish(ctx, exec.ID, event)
	if err != nil {
		e.logger.WarnContext(ctx, "Failed to publish lifecycle event",
			"execution_id", exec.ID,
			"event_type", event.GetType(),
			"error", err)
	}
}
