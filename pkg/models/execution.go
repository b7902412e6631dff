package models

import "time"

// ExecutionStatus is the lifecycle state of an execution.
type ExecutionStatus string

const (
	ExecutionStatusRunning   ExecutionStatus = "running"
	ExecutionStatusWaiting   ExecutionStatus = "waiting"
	ExecutionStatusCompleted ExecutionStatus = "completed"
	ExecutionStatusFailed    ExecutionStatus = "failed"
	ExecutionStatusCancelled ExecutionStatus = "cancelled"
)

// IsActive reports whether an execution still owns its chat session.
func (s ExecutionStatus) IsActive() bool {
	return s == ExecutionStatusRunning || s == ExecutionStatusWaiting
}

// IsTerminal reports whether no further step may be taken.
func (s ExecutionStatus) IsTerminal() bool {
	return s == ExecutionStatusCompleted || s == ExecutionStatusFailed || s == ExecutionStatusCancelled
}

// WaitType is the kind of inbound input a suspended execution expects.
type WaitType string

const (
	WaitTypeNone     WaitType = ""
	WaitTypeContact  WaitType = "contact"
	WaitTypeText     WaitType = "text"
	WaitTypeCallback WaitType = "callback"
	WaitTypeDelay    WaitType = "delay"
)

// Execution is one persisted, resumable run of a version for a chat.
//
// CurrentNodeID is the node to dispatch next while running, the wait node while
// waiting and the last visited node once terminal.
type Execution struct {
	ID            string          `json:"id"`
	FlowID        string          `json:"flow_id"`
	VersionID     string          `json:"version_id"`
	ProjectID     string          `json:"project_id"`
	UserID        string          `json:"user_id,omitempty"`
	ChatID        string          `json:"chat_id"`
	Status        ExecutionStatus `json:"status"`
	CurrentNodeID string          `json:"current_node_id"`
	WaitType      WaitType        `json:"wait_type,omitempty"`
	WaitPayload   map[string]any  `json:"wait_payload,omitempty"`
	WaitDeadline  *time.Time      `json:"wait_deadline,omitempty"`
	Variables     map[string]any  `json:"variables"`
	StepCount     int             `json:"step_count"`
	LastError     string          `json:"last_error,omitempty"`
	ErrorKind     string          `json:"error_kind,omitempty"`
	StartedAt     time.Time       `json:"started_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	FinishedAt    *time.Time      `json:"finished_at,omitempty"`
}

// ClearWait drops every wait-related field.
func (e *Execution) ClearWait() {
	e.WaitType = WaitTypeNone
	e.WaitPayload = nil
	e.WaitDeadline = nil
}

// StepStatus is the outcome recorded for one visited node.
type StepStatus string

const (
	StepStatusCompleted StepStatus = "completed"
	StepStatusError     StepStatus = "error"
	StepStatusSkipped   StepStatus = "skipped"
)

// StepLog is an append-only record of one node visit.
type StepLog struct {
	ID          string         `json:"id"`
	ExecutionID string         `json:"execution_id"`
	Index       int            `json:"index"`
	NodeID      string         `json:"node_id"`
	NodeType    string         `json:"node_type"`
	NodeLabel   string         `json:"node_label"`
	Status      StepStatus     `json:"status"`
	Handle      string         `json:"handle,omitempty"`
	Message     string         `json:"message,omitempty"`
	Data        map[string]any `json:"data,omitempty"`
	Variables   map[string]any `json:"variables,omitempty"`
	StartedAt   time.Time      `json:"started_at"`
	FinishedAt  time.Time      `json:"finished_at"`
}

// CopyVariables returns a shallow copy of a variable bag, never nil.
func CopyVariables(in map[string]any) map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}

	return out
}
