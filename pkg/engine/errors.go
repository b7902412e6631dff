package engine

import (
	"errors"
	"fmt"
)

// Kind classifies why an execution failed or an event was rejected.
type Kind string

const (
	KindUnknownNodeType   Kind = "unknown_node_type"
	KindInvalidNode       Kind = "invalid_node"
	KindMissingEdge       Kind = "missing_edge"
	KindMissingVersion    Kind = "missing_version"
	KindStepLimitExceeded Kind = "step_limit_exceeded"
	KindActionFailure     Kind = "action_failure"
	KindWaitMismatch      Kind = "wait_mismatch"
)

var (
	ErrInvalidEvent  = errors.New("invalid inbound event")
	ErrNotActive     = errors.New("execution is not active")
	ErrSessionBusy   = errors.New("chat session has another active execution")
	ErrNodeNotInFlow = errors.New("node does not exist in the execution's version")
)

// ExecutionError is the cause recorded on a failed execution.
type ExecutionError struct {
	Kind   Kind
	Op     string
	NodeID string
	Err    error
}

func (e *ExecutionError) Error() string {
	if e.NodeID == "" {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}

	return fmt.Sprintf("%s: %s at node %s: %v", e.Op, e.Kind, e.NodeID, e.Err)
}

func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// KindOf returns the kind of an execution error anywhere in the chain.
func KindOf(err error) (Kind, bool) {
	var execErr *ExecutionError
	if errors.As(err, &execErr) {
		return execErr.Kind, true
	}

	return "", false
}
