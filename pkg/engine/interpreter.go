package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"strings"
	"time"

	"github.com/dukex/botflow/pkg/graph"
	"github.com/dukex/botflow/pkg/models"
	"github.com/dukex/botflow/pkg/otelhelper"
	"github.com/dukex/botflow/pkg/protocol"
	"github.com/dukex/botflow/pkg/query"
	"github.com/dukex/botflow/pkg/registry"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"
)

// invoker runs one handler entry point against a runtime.
type invoker func(ctx context.Context, rt *protocol.Runtime) (protocol.Result, error)

// run is the state of one interpreter invocation for one execution.
type run struct {
	exec    *models.Execution
	program *graph.Program
	event   *models.InboundEvent
	vars    *protocol.Variables
	queries protocol.QueryRunner
	logger  *slog.Logger

	// skip holds action nodes to pass through without side effects.
	skip map[string]bool

	steps   int
	ignored bool
	reason  string
}

func (e *Engine) newRun(ctx context.Context, exec *models.Execution, program *graph.Program, event *models.InboundEvent) (*run, error) {
	project, err := e.projectVariables(ctx, exec.ProjectID)
	if err != nil {
		return nil, err
	}

	if exec.Variables == nil {
		exec.Variables = map[string]any{}
	}

	if event != nil {
		maps.DeleteFunc(exec.Variables, func(key string, _ any) bool {
			return strings.HasPrefix(key, models.EventVariablePrefix)
		})
		maps.Copy(exec.Variables, event.Variables())
	}

	s := query.Session{ProjectID: exec.ProjectID, ChatID: exec.ChatID, UserID: exec.UserID}

	r := &run{
		exec:    exec,
		program: program,
		event:   event,
		queries: e.queries.Bind(s),
		logger: e.logger.With(
			"execution_id", exec.ID,
			"flow_id", exec.FlowID,
			"chat_id", exec.ChatID,
		),
	}

	r.vars = protocol.NewVariables(exec.Variables, project, func() (map[string]any, error) {
		return e.queries.UserVariables(ctx, s)
	})

	return r, nil
}

func (r *run) runtime(c *graph.Compiled, now time.Time) *protocol.Runtime {
	return &protocol.Runtime{
		Execution: r.exec,
		Node:      c.Node,
		Event:     r.event,
		Variables: r.vars,
		Queries:   r.queries,
		Logger:    r.logger.With("node_id", c.Node.ID, "node_type", c.Node.Type),
		Now:       now,
	}
}

// walk dispatches nodes starting at nodeID until the execution suspends or
// terminates. Only infrastructure failures are returned; everything else is
// recorded on the execution.
func (e *Engine) walk(ctx context.Context, r *run, nodeID string) error {
	for nodeID != "" {
		if r.steps >= e.maxSteps {
			return e.failAt(ctx, r, nodeID, &ExecutionError{
				Kind:   KindStepLimitExceeded,
				Op:     "walk",
				NodeID: nodeID,
				Err:    fmt.Errorf("more than %d steps for one event", e.maxSteps),
			})
		}

		c, execErr := e.resolve(r, nodeID)
		if execErr != nil {
			return e.failAt(ctx, r, nodeID, execErr)
		}

		var err error

		if _, isAction := c.Instance.(protocol.Action); isAction && r.skip[nodeID] {
			nodeID, err = e.step(ctx, r, c, skip, models.StepStatusSkipped)
		} else {
			nodeID, err = e.step(ctx, r, c, func(ctx context.Context, rt *protocol.Runtime) (protocol.Result, error) {
				return dispatch(ctx, rt, c)
			}, models.StepStatusCompleted)
		}

		if err != nil {
			return err
		}
	}

	return nil
}

// resolve returns the working compiled node for an id.
func (e *Engine) resolve(r *run, nodeID string) (*graph.Compiled, *ExecutionError) {
	c, ok := r.program.Node(nodeID)
	if !ok {
		return nil, &ExecutionError{Kind: KindMissingEdge, Op: "resolve", NodeID: nodeID, Err: graph.ErrNodeNotFound}
	}

	if c.Err != nil {
		kind := KindInvalidNode
		if errors.Is(c.Err, registry.ErrUnknownNodeType) {
			kind = KindUnknownNodeType
		}

		return nil, &ExecutionError{Kind: kind, Op: "resolve", NodeID: nodeID, Err: c.Err}
	}

	return c, nil
}

func skip(_ context.Context, _ *protocol.Runtime) (protocol.Result, error) {
	return protocol.Advance(models.HandleDefault).WithData(map[string]any{"skipped": true}), nil
}

func dispatch(ctx context.Context, rt *protocol.Runtime, c *graph.Compiled) (protocol.Result, error) {
	switch n := c.Instance.(type) {
	case protocol.Condition:
		handle, err := n.Evaluate(ctx, rt)
		if err != nil {
			return protocol.Result{}, err
		}

		return protocol.Advance(handle), nil
	case protocol.Action:
		return n.Execute(ctx, rt)
	case protocol.FlowControl:
		return n.Enter(ctx, rt)
	case protocol.Trigger:
		// A trigger reached by an edge is a pass-through.
		return protocol.Advance(models.HandleDefault), nil
	default:
		return protocol.Result{}, fmt.Errorf("node type %s implements no capability", c.Node.Type)
	}
}

// step invokes one handler inside its own span and settles the result.
func (e *Engine) step(ctx context.Context, r *run, c *graph.Compiled, invoke invoker, status models.StepStatus) (string, error) {
	ctx, span := otelhelper.StartSpan(ctx, e.tracer, "engine.step",
		attribute.String(otelhelper.ExecutionIDKey, r.exec.ID),
		attribute.String(otelhelper.NodeIDKey, c.Node.ID),
		attribute.String(otelhelper.NodeTypeKey, c.Node.Type),
	)
	defer span.End()

	started := e.clock.Now().UTC()

	res, runErr := invoke(ctx, r.runtime(c, started))
	if runErr != nil {
		otelhelper.SetError(span, runErr)

		// The execution stays at this node, in its last saved state, and
		// is continued by the next event.
		if errors.Is(runErr, protocol.ErrUserVariables) {
			return "", fmt.Errorf("node %s of execution %s: %w", c.Node.ID, r.exec.ID, runErr)
		}
	}

	next, err := e.settle(ctx, r, c, res, runErr, e.newStep(r, c.Node.ID, c.Node, started, status))
	if err != nil {
		otelhelper.SetError(span, err)
	}

	span.SetAttributes(attribute.Int(otelhelper.StepIndexKey, r.exec.StepCount))

	return next, err
}

// settle applies a handler result to the execution, records the step and
// returns the next node to dispatch, "" when the walk stops here.
func (e *Engine) settle(ctx context.Context, r *run, c *graph.Compiled, res protocol.Result, runErr error, step *models.StepLog) (string, error) {
	exec := r.exec
	nodeID := c.Node.ID

	if runErr != nil {
		return e.followError(ctx, r, nodeID, runErr, step)
	}

	if res.Kind == protocol.ResultIgnore && exec.Status == models.ExecutionStatusWaiting {
		r.ignored = true
		r.reason = res.Message

		return "", nil
	}

	maps.Copy(exec.Variables, res.Variables)

	step.Data = res.Data
	step.Message = res.Message

	switch res.Kind {
	case protocol.ResultSuspend:
		exec.Status = models.ExecutionStatusWaiting
		exec.CurrentNodeID = nodeID
		exec.WaitType = res.WaitType
		exec.WaitPayload = res.WaitPayload
		exec.WaitDeadline = res.Deadline

		return "", e.record(ctx, r, step)
	case protocol.ResultTerminate:
		exec.CurrentNodeID = nodeID
		e.finish(exec, res.Success, res.Message)

		return "", e.record(ctx, r, step)
	}

	next := res.Target
	if next != "" {
		if _, ok := r.program.Node(next); !ok {
			return "", e.failStep(ctx, r, step, &ExecutionError{
				Kind: KindMissingEdge, Op: "jump", NodeID: nodeID, Err: fmt.Errorf("%w: %s", graph.ErrNodeNotFound, next),
			})
		}
	} else {
		var err error

		next, err = r.program.Next(nodeID, res.Handle)
		if err != nil {
			return "", e.failStep(ctx, r, step, &ExecutionError{Kind: KindMissingEdge, Op: "advance", NodeID: nodeID, Err: err})
		}
	}

	step.Handle = res.Handle
	exec.ClearWait()

	if next == "" {
		exec.CurrentNodeID = nodeID
		e.finish(exec, true, "")

		return "", e.record(ctx, r, step)
	}

	exec.Status = models.ExecutionStatusRunning
	exec.CurrentNodeID = next

	return next, e.record(ctx, r, step)
}

// followError takes the node's error edge when one is connected; otherwise
// the failure is fatal to the execution.
func (e *Engine) followError(ctx context.Context, r *run, nodeID string, cause error, step *models.StepLog) (string, error) {
	if r.program.HasEdge(nodeID, models.HandleError) {
		next, err := r.program.Next(nodeID, models.HandleError)
		if err == nil {
			r.exec.Variables["error.message"] = cause.Error()
			r.exec.Variables["error.node_id"] = nodeID
			r.exec.Status = models.ExecutionStatusRunning
			r.exec.CurrentNodeID = next
			r.exec.ClearWait()

			step.Status = models.StepStatusError
			step.Handle = models.HandleError
			step.Message = cause.Error()

			r.logger.WarnContext(ctx, "Action failed, following error edge", "node_id", nodeID, "error", cause)

			return next, e.record(ctx, r, step)
		}
	}

	return "", e.failStep(ctx, r, step, &ExecutionError{Kind: KindActionFailure, Op: "dispatch", NodeID: nodeID, Err: cause})
}

func (e *Engine) newStep(r *run, nodeID string, node *models.Node, started time.Time, status models.StepStatus) *models.StepLog {
	step := &models.StepLog{
		ID:          ulid.Make().String(),
		ExecutionID: r.exec.ID,
		NodeID:      nodeID,
		Status:      status,
		StartedAt:   started,
	}

	if node != nil {
		step.NodeType = node.Type
		step.NodeLabel = node.Label()
	}

	return step
}

// record assigns the next step index and persists step and execution
// together.
func (e *Engine) record(ctx context.Context, r *run, step *models.StepLog) error {
	now := e.clock.Now().UTC()

	r.exec.StepCount++
	r.exec.UpdatedAt = now

	step.Index = r.exec.StepCount
	step.FinishedAt = now
	step.Variables = models.CopyVariables(r.exec.Variables)

	err := e.executions.SaveStep(ctx, r.exec, step)
	if err != nil {
		return fmt.Errorf("failed to record step %d of execution %s: %w", step.Index, r.exec.ID, err)
	}

	r.steps++

	r.logger.DebugContext(ctx, "Step recorded",
		"step", step.Index,
		"node_id", step.NodeID,
		"node_type", step.NodeType,
		"status", step.Status,
		"execution_status", r.exec.Status)

	return nil
}

// failAt fails the execution at a node that could not be dispatched.
func (e *Engine) failAt(ctx context.Context, r *run, nodeID string, cause *ExecutionError) error {
	var node *models.Node
	if c, ok := r.program.Node(nodeID); ok {
		node = c.Node
	}

	r.exec.CurrentNodeID = nodeID

	return e.failStep(ctx, r, e.newStep(r, nodeID, node, e.clock.Now().UTC(), models.StepStatusError), cause)
}

func (e *Engine) failStep(ctx context.Context, r *run, step *models.StepLog, cause *ExecutionError) error {
	now := e.clock.Now().UTC()

	step.Status = models.StepStatusError
	step.Message = cause.Error()

	r.exec.Status = models.ExecutionStatusFailed
	r.exec.LastError = cause.Error()
	r.exec.ErrorKind = string(cause.Kind)
	r.exec.FinishedAt = &now
	r.exec.ClearWait()

	r.logger.ErrorContext(ctx, "Execution failed",
		"node_id", cause.NodeID,
		"error_kind", cause.Kind,
		"error", cause.Err)

	return e.record(ctx, r, step)
}

func (e *Engine) finish(exec *models.Execution, success bool, message string) {
	now := e.clock.Now().UTC()

	exec.FinishedAt = &now
	exec.ClearWait()

	if success {
		exec.Status = models.ExecutionStatusCompleted

		return
	}

	if message == "" {
		message = "terminated as failure"
	}

	exec.Status = models.ExecutionStatusFailed
	exec.LastError = message
}
