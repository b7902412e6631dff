// Package scheduler runs the periodic maintenance jobs of the engine: the
// wait-timeout sweep and the execution retention sweep.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Job is one unit of periodic work.
type Job func(ctx context.Context) error

// Scheduler runs jobs on cron expressions. A job still running when its next
// tick fires is skipped.
type Scheduler struct {
	logger  *slog.Logger
	cron    *cron.Cron
	timeout time.Duration

	mu      sync.RWMutex
	entries map[string]cron.EntryID
	ctx     context.Context
	cancel  context.CancelFunc
}

type Option func(*Scheduler)

// WithJobTimeout bounds a single job run.
func WithJobTimeout(d time.Duration) Option {
	return func(s *Scheduler) { s.timeout = d }
}

func New(logger *slog.Logger, opts ...Option) *Scheduler {
	logger = logger.With("module", "scheduler")
	cl := cronLogger{logger}

	s := &Scheduler{
		logger:  logger,
		timeout: 5 * time.Minute,
		entries: make(map[string]cron.EntryID),
		cron: cron.New(cron.WithLogger(cl), cron.WithChain(
			cron.SkipIfStillRunning(cl),
			cron.Recover(cl),
		)),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// Add registers a named job. An empty spec disables the job.
func (s *Scheduler) Add(name, spec string, job Job) error {
	if spec == "" {
		s.logger.Info("Job is disabled, skipping", "job", name)

		return nil
	}

	if _, err := cron.ParseStandard(spec); err != nil {
		return fmt.Errorf("invalid cron expression '%s' for job %s: %w", spec, name, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.entries[name]; exists {
		return fmt.Errorf("job %s already registered", name)
	}

	id, err := s.cron.AddFunc(spec, func() { s.run(name, job) })
	if err != nil {
		return fmt.Errorf("failed to add cron job %s: %w", name, err)
	}

	s.entries[name] = id
	s.logger.Info("Added cron job", "job", name, "cron", spec, "entry_id", id)

	return nil
}

// Start launches the cron loop. Jobs run until Stop is called or ctx ends.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("Scheduler started", "jobs", len(s.entries))
}

// Stop halts the cron loop and waits for running jobs to return.
func (s *Scheduler) Stop() {
	s.mu.RLock()
	cancel := s.cancel
	s.mu.RUnlock()

	if cancel != nil {
		cancel()
	}

	<-s.cron.Stop().Done()
	s.logger.Info("Scheduler stopped")
}

// RunNow executes a registered job immediately, outside the cron loop.
func (s *Scheduler) RunNow(ctx context.Context, name string, job Job) error {
	return s.invoke(ctx, name, job)
}

func (s *Scheduler) run(name string, job Job) {
	s.mu.RLock()
	ctx := s.ctx
	s.mu.RUnlock()

	if ctx == nil {
		ctx = context.Background()
	}

	if err := s.invoke(ctx, name, job); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("Job failed", "job", name, "error", err)
	}
}

func (s *Scheduler) invoke(ctx context.Context, name string, job Job) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	started := time.Now()

	err := job(ctx)

	s.logger.Debug("Job finished", "job", name, "duration", time.Since(started), "error", err)

	return err
}

// cronLogger routes cron's own logging through slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(keysAndValues, "error", err)...)
}
