// Package events defines the messages exchanged over the event bus: execution
// lifecycle notifications and inbound chat events.
package events

import (
	"time"

	"github.com/dukex/botflow/pkg/models"
	"github.com/google/uuid"
)

type EventType string

// Kafka topics.
const (
	Topic         = "botflow.events"   // Lifecycle notifications
	InboundTopic  = "botflow.inbound"  // Chat events waiting to be interpreted
	OutboundTopic = "botflow.outbound" // Messages for the chat transport to deliver
)

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"

const (
	ExecutionStartedEvent   EventType = "execution.started"
	ExecutionWaitingEvent   EventType = "execution.waiting"
	ExecutionCompletedEvent EventType = "execution.completed"
	ExecutionFailedEvent    EventType = "execution.failed"
	ExecutionCancelledEvent EventType = "execution.cancelled"
	FlowPublishedEvent      EventType = "flow.published"
	InboundReceivedEvent    EventType = "inbound.received"
	MessageOutboundEvent    EventType = "message.outbound"
)

type BaseEvent struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Timestamp time.Time      `json:"timestamp"`
	ProjectID string         `json:"project_id"`
	FlowID    string         `json:"flow_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

func NewBaseEvent(eventType EventType, projectID, flowID string) BaseEvent {
	return BaseEvent{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		ProjectID: projectID,
		FlowID:    flowID,
		Metadata:  make(map[string]any),
	}
}

// ExecutionEvent carries the identity of the execution it reports on.
type ExecutionEvent struct {
	BaseEvent

	ExecutionID string `json:"execution_id"`
	VersionID   string `json:"version_id"`
	ChatID      string `json:"chat_id"`
	NodeID      string `json:"node_id,omitempty"`
	StepCount   int    `json:"step_count"`
}

func newExecutionEvent(eventType EventType, e *models.Execution) ExecutionEvent {
	return ExecutionEvent{
		BaseEvent:   NewBaseEvent(eventType, e.ProjectID, e.FlowID),
		ExecutionID: e.ID,
		VersionID:   e.VersionID,
		ChatID:      e.ChatID,
		NodeID:      e.CurrentNodeID,
		StepCount:   e.StepCount,
	}
}

type ExecutionStarted struct {
	ExecutionEvent

	TriggerNodeID string `json:"trigger_node_id,omitempty"`
}

func (e ExecutionStarted) GetType() EventType {
	return ExecutionStartedEvent
}

func NewExecutionStarted(e *models.Execution, triggerNodeID string) *ExecutionStarted {
	return &ExecutionStarted{ExecutionEvent: newExecutionEvent(ExecutionStartedEvent, e), TriggerNodeID: triggerNodeID}
}

type ExecutionWaiting struct {
	ExecutionEvent

	WaitType models.WaitType `json:"wait_type"`
	Deadline *time.Time      `json:"deadline,omitempty"`
}

func (e ExecutionWaiting) GetType() EventType {
	return ExecutionWaitingEvent
}

func NewExecutionWaiting(e *models.Execution) *ExecutionWaiting {
	return &ExecutionWaiting{
		ExecutionEvent: newExecutionEvent(ExecutionWaitingEvent, e),
		WaitType:       e.WaitType,
		Deadline:       e.WaitDeadline,
	}
}

type ExecutionCompleted struct {
	ExecutionEvent

	Duration time.Duration `json:"duration"`
}

func (e ExecutionCompleted) GetType() EventType {
	return ExecutionCompletedEvent
}

func NewExecutionCompleted(e *models.Execution) *ExecutionCompleted {
	return &ExecutionCompleted{ExecutionEvent: newExecutionEvent(ExecutionCompletedEvent, e), Duration: duration(e)}
}

type ExecutionFailed struct {
	ExecutionEvent

	ErrorKind string        `json:"error_kind,omitempty"`
	Error     string        `json:"error"`
	Duration  time.Duration `json:"duration"`
}

func (e ExecutionFailed) GetType() EventType {
	return ExecutionFailedEvent
}

func NewExecutionFailed(e *models.Execution) *ExecutionFailed {
	return &ExecutionFailed{
		ExecutionEvent: newExecutionEvent(ExecutionFailedEvent, e),
		ErrorKind:      e.ErrorKind,
		Error:          e.LastError,
		Duration:       duration(e),
	}
}

type ExecutionCancelled struct {
	ExecutionEvent

	Reason string `json:"reason,omitempty"`
}

func (e ExecutionCancelled) GetType() EventType {
	return ExecutionCancelledEvent
}

func NewExecutionCancelled(e *models.Execution, reason string) *ExecutionCancelled {
	return &ExecutionCancelled{ExecutionEvent: newExecutionEvent(ExecutionCancelledEvent, e), Reason: reason}
}

type FlowPublished struct {
	BaseEvent

	VersionID string `json:"version_id"`
	Number    int    `json:"number"`
}

func (e FlowPublished) GetType() EventType {
	return FlowPublishedEvent
}

func NewFlowPublished(v *models.Version) *FlowPublished {
	return &FlowPublished{
		BaseEvent: NewBaseEvent(FlowPublishedEvent, v.ProjectID, v.FlowID),
		VersionID: v.ID,
		Number:    v.Number,
	}
}

// InboundReceived wraps a chat event handed from a transport to the engine.
type InboundReceived struct {
	BaseEvent

	Event *models.InboundEvent `json:"event"`
}

func (e InboundReceived) GetType() EventType {
	return InboundReceivedEvent
}

func NewInboundReceived(event *models.InboundEvent) *InboundReceived {
	return &InboundReceived{BaseEvent: NewBaseEvent(InboundReceivedEvent, event.ProjectID, ""), Event: event}
}

// MessageOutbound asks the chat transport to deliver a message.
type MessageOutbound struct {
	BaseEvent

	Message *models.OutboundMessage `json:"message"`
}

func (e MessageOutbound) GetType() EventType {
	return MessageOutboundEvent
}

func NewMessageOutbound(msg *models.OutboundMessage) *MessageOutbound {
	return &MessageOutbound{BaseEvent: NewBaseEvent(MessageOutboundEvent, msg.ProjectID, ""), Message: msg}
}

// Typed is implemented by every event of this package.
type Typed interface {
	GetType() EventType
}

// For returns the lifecycle event matching the execution's status, or nil
// for a running execution.
func For(e *models.Execution) Typed {
	switch e.Status {
	case models.ExecutionStatusWaiting:
		return NewExecutionWaiting(e)
	case models.ExecutionStatusCompleted:
		return NewExecutionCompleted(e)
	case models.ExecutionStatusFailed:
		return NewExecutionFailed(e)
	case models.ExecutionStatusCancelled:
		return NewExecutionCancelled(e, e.LastError)
	default:
		return nil
	}
}

func duration(e *models.Execution) time.Duration {
	if e.FinishedAt == nil {
		return 0
	}

	return e.FinishedAt.Sub(e.StartedAt)
}
