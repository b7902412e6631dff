package protocol

import (
	"time"

	"github.com/dukex/botflow/pkg/models"
)

// ResultKind tells the interpreter what to do after a node ran.
type ResultKind int

const (
	ResultAdvance ResultKind = iota
	ResultSuspend
	ResultTerminate
	ResultIgnore
)

func (k ResultKind) String() string {
	switch k {
	case ResultAdvance:
		return "advance"
	case ResultSuspend:
		return "suspend"
	case ResultTerminate:
		return "terminate"
	case ResultIgnore:
		return "ignore"
	default:
		return "unknown"
	}
}

// Result is what a handler hands back to the interpreter.
type Result struct {
	Kind ResultKind

	// Handle selects the outgoing edge on advance.
	Handle string
	// Target bypasses edge resolution and jumps straight to a node id.
	Target string

	WaitType    models.WaitType
	WaitPayload map[string]any
	Deadline    *time.Time

	Success bool
	Message string

	// Variables are merged into the execution's local bag.
	Variables map[string]any
	// Data is recorded on the step log.
	Data map[string]any
}

// Advance follows the edge with the given handle ("" for the default edge).
func Advance(handle string) Result {
	return Result{Kind: ResultAdvance, Handle: handle}
}

// Jump continues at an explicit node.
func Jump(target string) Result {
	return Result{Kind: ResultAdvance, Target: target}
}

// Suspend parks the execution until the next matching event or the deadline.
func Suspend(waitType models.WaitType, payload map[string]any, deadline *time.Time) Result {
	return Result{Kind: ResultSuspend, WaitType: waitType, WaitPayload: payload, Deadline: deadline}
}

// Complete terminates the execution successfully.
func Complete(message string) Result {
	return Result{Kind: ResultTerminate, Success: true, Message: message}
}

// Fail terminates the execution as failed.
func Fail(message string) Result {
	return Result{Kind: ResultTerminate, Success: false, Message: message}
}

// Ignore leaves a waiting execution untouched.
func Ignore(reason string) Result {
	return Result{Kind: ResultIgnore, Message: reason}
}

// WithVariables attaches local variable updates.
func (r Result) WithVariables(vars map[string]any) Result {
	if len(vars) == 0 {
		return r
	}

	if r.Variables == nil {
		r.Variables = make(map[string]any, len(vars))
	}

	for k, v := range vars {
		r.Variables[k] = v
	}

	return r
}

// WithData attaches step log data.
func (r Result) WithData(data map[string]any) Result {
	r.Data = data

	return r
}
