package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dukex/botflow/pkg/events"
	"github.com/dukex/botflow/pkg/models"
	"github.com/dukex/botflow/pkg/persistence"
	"github.com/dukex/botflow/pkg/protocol"
	"github.com/dukex/botflow/pkg/session"
)

// RestartOptions controls where and how a finished or stuck execution is run
// again.
type RestartOptions struct {
	// FromNodeID defaults to the node the execution stopped at.
	FromNodeID string
	// ResetVariables restores the version's declared defaults.
	ResetVariables bool
	// SkipCompleted passes through action nodes that already completed in
	// this execution without running them again.
	SkipCompleted bool
}

// locked loads an execution, takes its chat session lock and reloads it so
// that the caller sees the state no other worker is changing.
func (e *Engine) locked(ctx context.Context, id string) (*models.Execution, func(), error) {
	exec, err := e.executions.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	unlock, err := e.locker.Lock(ctx, session.Key(exec.ProjectID, exec.ChatID))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to lock chat session: %w", err)
	}

	exec, err = e.executions.GetByID(ctx, id)
	if err != nil {
		unlock()

		return nil, nil, err
	}

	return exec, unlock, nil
}

// Restart runs an execution again from a node of its own version. The chat
// session must not have another active execution.
func (e *Engine) Restart(ctx context.Context, id string, opts RestartOptions) (*Outcome, error) {
	exec, unlock, err := e.locked(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	active, err := e.executions.FindActive(ctx, exec.ProjectID, exec.ChatID)
	if err != nil && !errors.Is(err, persistence.ErrExecutionNotFound) {
		return nil, fmt.Errorf("failed to find active execution: %w", err)
	}

	if err == nil && active.ID != exec.ID {
		return nil, fmt.Errorf("%w: %s", ErrSessionBusy, active.ID)
	}

	program, err := e.program(ctx, exec.VersionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load version %s: %w", exec.VersionID, err)
	}

	from := opts.FromNodeID
	if from == "" {
		from = exec.CurrentNodeID
	}

	if _, ok := program.Node(from); !ok {
		return nil, fmt.Errorf("%w: %s", ErrNodeNotInFlow, from)
	}

	skip := map[string]bool{}

	if opts.SkipCompleted {
		steps, err := e.executions.ListSteps(ctx, exec.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to list steps: %w", err)
		}

		for _, s := range steps {
			if s.Status == models.StepStatusCompleted {
				skip[s.NodeID] = true
			}
		}
	}

	if opts.ResetVariables {
		exec.Variables = defaults(program.Version)
	}

	exec.Status = models.ExecutionStatusRunning
	exec.CurrentNodeID = from
	exec.LastError = ""
	exec.ErrorKind = ""
	exec.FinishedAt = nil
	exec.UpdatedAt = e.clock.Now().UTC()
	exec.ClearWait()

	if err := e.executions.Save(ctx, exec); err != nil {
		return nil, fmt.Errorf("failed to save execution: %w", err)
	}

	r, err := e.newRun(ctx, exec, program, nil)
	if err != nil {
		return nil, err
	}

	r.skip = skip

	e.logger.InfoContext(ctx, "Restarting execution",
		"execution_id", exec.ID,
		"from", from,
		"reset_variables", opts.ResetVariables,
		"skip_completed", opts.SkipCompleted)

	if err := e.walk(ctx, r, from); err != nil {
		return nil, err
	}

	e.announce(ctx, exec)

	return &Outcome{Execution: exec, Resumed: true, Steps: r.steps}, nil
}

// Cancel stops a running or waiting execution.
func (e *Engine) Cancel(ctx context.Context, id, reason string) (*models.Execution, error) {
	exec, unlock, err := e.locked(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if !exec.Status.IsActive() {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotActive, exec.ID, exec.Status)
	}

	if reason == "" {
		reason = "cancelled by operator"
	}

	now := e.clock.Now().UTC()

	exec.Status = models.ExecutionStatusCancelled
	exec.LastError = reason
	exec.FinishedAt = &now
	exec.UpdatedAt = now
	exec.ClearWait()

	if err := e.executions.Save(ctx, exec); err != nil {
		return nil, fmt.Errorf("failed to save execution: %w", err)
	}

	e.logger.InfoContext(ctx, "Execution cancelled", "execution_id", exec.ID, "reason", reason)
	e.publish(ctx, exec, events.NewExecutionCancelled(exec, reason))

	return exec, nil
}

// ExpireWaits moves waiting executions whose deadline has passed along their
// timeout path. It returns how many executions were expired.
func (e *Engine) ExpireWaits(ctx context.Context) (int, error) {
	now := e.clock.Now().UTC()

	stale, err := e.executions.ListExpiredWaits(ctx, now, DefaultSweepBatch)
	if err != nil {
		return 0, fmt.Errorf("failed to list expired waits: %w", err)
	}

	var (
		expired int
		errs    []error
	)

	for _, exec := range stale {
		ok, err := e.expire(ctx, exec.ID, now)
		if err != nil {
			e.logger.ErrorContext(ctx, "Failed to expire wait", "execution_id", exec.ID, "error", err)
			errs = append(errs, err)

			continue
		}

		if ok {
			expired++
		}
	}

	return expired, errors.Join(errs...)
}

func (e *Engine) expire(ctx context.Context, id string, now time.Time) (bool, error) {
	exec, unlock, err := e.locked(ctx, id)
	if err != nil {
		return false, err
	}
	defer unlock()

	// An event may have resumed the execution since it was listed.
	if exec.Status != models.ExecutionStatusWaiting || exec.WaitDeadline == nil || exec.WaitDeadline.After(now) {
		return false, nil
	}

	program, err := e.program(ctx, exec.VersionID)
	if errors.Is(err, persistence.ErrVersionNotFound) {
		_, err = e.orphan(ctx, exec, err)

		return err == nil, err
	}

	if err != nil {
		return false, fmt.Errorf("failed to load version %s: %w", exec.VersionID, err)
	}

	r, err := e.newRun(ctx, exec, program, nil)
	if err != nil {
		return false, err
	}

	c, execErr := e.resolve(r, exec.CurrentNodeID)
	if execErr != nil {
		if err := e.failAt(ctx, r, exec.CurrentNodeID, execErr); err != nil {
			return false, err
		}

		e.announce(ctx, exec)

		return true, nil
	}

	expirer, ok := c.Instance.(protocol.Expirer)
	if !ok {
		exec.WaitDeadline = nil
		exec.UpdatedAt = now

		return false, e.executions.Save(ctx, exec)
	}

	next, err := e.step(ctx, r, c, expirer.Expire, models.StepStatusCompleted)
	if err != nil {
		return false, err
	}

	if r.ignored {
		exec.WaitDeadline = nil
		exec.UpdatedAt = now

		return false, e.executions.Save(ctx, exec)
	}

	if err := e.walk(ctx, r, next); err != nil {
		return false, err
	}

	r.logger.InfoContext(ctx, "Wait expired", "node_id", c.Node.ID, "status", exec.Status)
	e.announce(ctx, exec)

	return true, nil
}
