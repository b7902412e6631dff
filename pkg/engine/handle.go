package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/dukex/botflow/pkg/events"
	"github.com/dukex/botflow/pkg/graph"
	"github.com/dukex/botflow/pkg/models"
	"github.com/dukex/botflow/pkg/otelhelper"
	"github.com/dukex/botflow/pkg/persistence"
	"github.com/dukex/botflow/pkg/protocol"
	"github.com/dukex/botflow/pkg/session"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
)

// Outcome reports what one inbound event did. An empty outcome means no
// execution was waiting and no trigger matched.
type Outcome struct {
	Execution *models.Execution
	Started   bool
	Resumed   bool
	Ignored   bool
	Reason    string
	Steps     int
}

type match struct {
	program *graph.Program
	trigger *graph.Compiled
}

// HandleEvent feeds one inbound event to the chat session it belongs to. It
// resumes the waiting execution of the session, or starts a new one when an
// active flow has a matching trigger. The returned error is reserved for
// invalid events and infrastructure failures; flow failures are recorded on
// the execution.
func (e *Engine) HandleEvent(ctx context.Context, event *models.InboundEvent) (*Outcome, error) {
	if event == nil {
		return nil, fmt.Errorf("%w: nil event", ErrInvalidEvent)
	}

	if err := e.validate.Struct(event); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidEvent, err)
	}

	if event.ReceivedAt.IsZero() {
		event.ReceivedAt = e.clock.Now().UTC()
	}

	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.handle_event",
		attribute.String(otelhelper.ProjectIDKey, event.ProjectID),
		attribute.String(otelhelper.ChatIDKey, event.ChatID),
		attribute.String(otelhelper.EventKindKey, string(event.Kind)),
	)
	defer span.End()

	unlock, err := e.locker.Lock(ctx, session.Key(event.ProjectID, event.ChatID))
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, fmt.Errorf("failed to lock chat session: %w", err)
	}
	defer unlock()

	out, err := e.handle(ctx, event)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	if out.Execution != nil {
		span.SetAttributes(
			attribute.String(otelhelper.ExecutionIDKey, out.Execution.ID),
			attribute.String(otelhelper.FlowIDKey, out.Execution.FlowID),
		)
	}

	return out, nil
}

func (e *Engine) handle(ctx context.Context, event *models.InboundEvent) (*Outcome, error) {
	exec, err := e.executions.FindActive(ctx, event.ProjectID, event.ChatID)
	if err != nil && !errors.Is(err, persistence.ErrExecutionNotFound) {
		return nil, fmt.Errorf("failed to find active execution: %w", err)
	}

	if exec == nil || err != nil {
		m, err := e.match(ctx, event, false)
		if err != nil {
			return nil, err
		}

		if m == nil {
			e.logger.DebugContext(ctx, "No trigger matched, event dropped",
				"project_id", event.ProjectID,
				"chat_id", event.ChatID,
				"kind", event.Kind)

			return &Outcome{}, nil
		}

		return e.start(ctx, m, event)
	}

	if exec.Status == models.ExecutionStatusWaiting {
		m, err := e.match(ctx, event, true)
		if err != nil {
			return nil, err
		}

		if m != nil {
			if err := e.interrupt(ctx, exec, m.trigger.Node.ID); err != nil {
				return nil, err
			}

			return e.start(ctx, m, event)
		}
	}

	return e.resume(ctx, exec, event)
}

// match finds the first trigger accepting the event across the project's
// active versions. With interrupting set only triggers allowed to cancel a
// waiting execution are considered.
func (e *Engine) match(ctx context.Context, event *models.InboundEvent, interrupting bool) (*match, error) {
	versions, err := e.activeVersions(ctx, event.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to load active versions: %w", err)
	}

	for _, v := range versions {
		program, err := e.program(ctx, v.ID)
		if err != nil {
			return nil, fmt.Errorf("failed to load version %s: %w", v.ID, err)
		}

		for _, c := range program.Triggers() {
			trigger, ok := c.Instance.(protocol.Trigger)
			if !ok || c.Err != nil {
				continue
			}

			if interrupting && !trigger.Interrupts() {
				continue
			}

			if trigger.Matches(event) {
				return &match{program: program, trigger: c}, nil
			}
		}
	}

	return nil, nil
}

func (e *Engine) start(ctx context.Context, m *match, event *models.InboundEvent) (*Outcome, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to generate execution id: %w", err)
	}

	v := m.program.Version
	now := e.clock.Now().UTC()

	exec := &models.Execution{
		ID:            id.String(),
		FlowID:        v.FlowID,
		VersionID:     v.ID,
		ProjectID:     event.ProjectID,
		UserID:        event.UserID,
		ChatID:        event.ChatID,
		Status:        models.ExecutionStatusRunning,
		CurrentNodeID: m.trigger.Node.ID,
		Variables:     defaults(v),
		StartedAt:     now,
		UpdatedAt:     now,
	}

	r, err := e.newRun(ctx, exec, m.program, event)
	if err != nil {
		return nil, err
	}

	e.logger.InfoContext(ctx, "Starting execution",
		"execution_id", exec.ID,
		"flow_id", exec.FlowID,
		"version_id", exec.VersionID,
		"chat_id", exec.ChatID,
		"trigger", m.trigger.Node.ID)

	next, nextErr := m.program.Next(m.trigger.Node.ID, models.HandleDefault)

	switch {
	case nextErr != nil:
		err = e.failAt(ctx, r, m.trigger.Node.ID, &ExecutionError{
			Kind: KindMissingEdge, Op: "start", NodeID: m.trigger.Node.ID, Err: nextErr,
		})
	case next == "":
		e.finish(exec, true, "")
		err = e.executions.Save(ctx, exec)
	default:
		exec.CurrentNodeID = next
		err = e.executions.Save(ctx, exec)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to save execution: %w", err)
	}

	e.publish(ctx, exec, events.NewExecutionStarted(exec, m.trigger.Node.ID))

	if nextErr == nil && next != "" {
		if err := e.walk(ctx, r, next); err != nil {
			return nil, err
		}
	}

	e.announce(ctx, exec)

	return &Outcome{Execution: exec, Started: true, Steps: r.steps}, nil
}

// resume hands the event to the wait node the execution is parked on. An
// execution left running by an earlier infrastructure failure is continued
// from its current node instead.
func (e *Engine) resume(ctx context.Context, exec *models.Execution, event *models.InboundEvent) (*Outcome, error) {
	program, err := e.program(ctx, exec.VersionID)
	if errors.Is(err, persistence.ErrVersionNotFound) {
		return e.orphan(ctx, exec, err)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to load version %s: %w", exec.VersionID, err)
	}

	r, err := e.newRun(ctx, exec, program, event)
	if err != nil {
		return nil, err
	}

	if exec.Status == models.ExecutionStatusRunning {
		if err := e.walk(ctx, r, exec.CurrentNodeID); err != nil {
			return nil, err
		}

		e.announce(ctx, exec)

		return &Outcome{Execution: exec, Resumed: true, Steps: r.steps}, nil
	}

	c, execErr := e.resolve(r, exec.CurrentNodeID)
	if execErr != nil {
		if err := e.failAt(ctx, r, exec.CurrentNodeID, execErr); err != nil {
			return nil, err
		}

		e.announce(ctx, exec)

		return &Outcome{Execution: exec, Steps: r.steps}, nil
	}

	waiter, ok := c.Instance.(protocol.Waiter)
	if !ok {
		err := e.failAt(ctx, r, exec.CurrentNodeID, &ExecutionError{
			Kind: KindInvalidNode, Op: "resume", NodeID: c.Node.ID, Err: fmt.Errorf("node type %s cannot wait", c.Node.Type),
		})
		if err != nil {
			return nil, err
		}

		e.announce(ctx, exec)

		return &Outcome{Execution: exec, Steps: r.steps}, nil
	}

	next, err := e.step(ctx, r, c, func(ctx context.Context, rt *protocol.Runtime) (protocol.Result, error) {
		return waiter.Resume(ctx, rt, event)
	}, models.StepStatusCompleted)
	if err != nil {
		return nil, err
	}

	if r.ignored {
		r.logger.InfoContext(ctx, "Event does not satisfy the wait",
			"node_id", c.Node.ID,
			"wait_type", exec.WaitType,
			"kind", KindWaitMismatch,
			"reason", r.reason)

		return &Outcome{Execution: exec, Ignored: true, Reason: r.reason}, nil
	}

	if err := e.walk(ctx, r, next); err != nil {
		return nil, err
	}

	e.announce(ctx, exec)

	return &Outcome{Execution: exec, Resumed: true, Steps: r.steps}, nil
}

// orphan fails an execution whose version no longer exists.
func (e *Engine) orphan(ctx context.Context, exec *models.Execution, cause error) (*Outcome, error) {
	r := &run{
		exec:   exec,
		logger: e.logger.With("execution_id", exec.ID, "chat_id", exec.ChatID),
	}

	step := e.newStep(r, exec.CurrentNodeID, nil, e.clock.Now().UTC(), models.StepStatusError)

	err := e.failStep(ctx, r, step, &ExecutionError{
		Kind: KindMissingVersion, Op: "resume", NodeID: exec.CurrentNodeID, Err: cause,
	})
	if err != nil {
		return nil, err
	}

	e.announce(ctx, exec)

	return &Outcome{Execution: exec, Steps: r.steps}, nil
}

// interrupt cancels a waiting execution in favour of a new one.
func (e *Engine) interrupt(ctx context.Context, exec *models.Execution, triggerID string) error {
	now := e.clock.Now().UTC()
	reason := interruptedMessage + triggerID

	exec.Status = models.ExecutionStatusCancelled
	exec.LastError = reason
	exec.FinishedAt = &now
	exec.UpdatedAt = now
	exec.ClearWait()

	if err := e.executions.Save(ctx, exec); err != nil {
		return fmt.Errorf("failed to cancel interrupted execution: %w", err)
	}

	e.logger.InfoContext(ctx, "Waiting execution interrupted",
		"execution_id", exec.ID,
		"chat_id", exec.ChatID,
		"trigger", triggerID)

	e.publish(ctx, exec, events.NewExecutionCancelled(exec, reason))

	return nil
}

// announce publishes the lifecycle event matching the execution status.
func (e *Engine) announce(ctx context.Context, exec *models.Execution) {
	if ev := events.For(exec); ev != nil {
		e.publish(ctx, exec, ev)
	}
}
