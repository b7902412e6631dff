// Package testutil provides test data builders and utilities for testing.
package testutil

import (
	"fmt"
	"time"

	"github.com/dukex/botflow/pkg/models"
	"github.com/google/uuid"
)

// CreateTestNode creates a node of the given type with its config block set.
func CreateTestNode(id, nodeType string, config map[string]any, overrides ...func(*models.Node)) *models.Node {
	if config == nil {
		config = map[string]any{}
	}

	node := &models.Node{
		ID:   id,
		Type: nodeType,
		Data: models.NodeData{
			Label:  id,
			Config: map[string]map[string]any{nodeType: config},
		},
	}

	for _, override := range overrides {
		override(node)
	}

	return node
}

// WithValidation sets input bounds on a node.
func WithValidation(b models.Bounds) func(*models.Node) {
	return func(n *models.Node) {
		n.Data.Validation = &b
	}
}

// Connect creates a connection; the id is derived from its endpoints.
func Connect(source, target string, handle ...string) *models.Connection {
	h := ""
	if len(handle) > 0 {
		h = handle[0]
	}

	return &models.Connection{
		ID:           fmt.Sprintf("%s-%s-%s", source, h, target),
		Source:       source,
		Target:       target,
		SourceHandle: h,
	}
}

// CreateTestFlow creates a draft flow with default values that can be overridden.
func CreateTestFlow(overrides ...func(*models.Flow)) *models.Flow {
	now := time.Now().UTC()
	flow := &models.Flow{
		ID:        uuid.New().String(),
		ProjectID: "project-1",
		Name:      "Test Flow",
		Status:    models.FlowStatusDraft,
		Variables: map[string]models.VariableDecl{},
		CreatedAt: now,
		UpdatedAt: now,
	}

	for _, override := range overrides {
		override(flow)
	}

	return flow
}

// WithGraph sets entry node, nodes and connections.
func WithGraph(entry string, nodes []*models.Node, conns ...*models.Connection) func(*models.Flow) {
	return func(f *models.Flow) {
		f.EntryNodeID = entry
		f.Nodes = nodes
		f.Connections = conns
	}
}

// WithProject sets the owning project.
func WithProject(projectID string) func(*models.Flow) {
	return func(f *models.Flow) {
		f.ProjectID = projectID
	}
}

// WithVariable declares a flow variable with a default value.
func WithVariable(name string, def any) func(*models.Flow) {
	return func(f *models.Flow) {
		f.Variables[name] = models.VariableDecl{Default: def}
	}
}

// LinearFlow is /start -> send_message -> end.
func LinearFlow(overrides ...func(*models.Flow)) *models.Flow {
	return CreateTestFlow(append([]func(*models.Flow){WithGraph("start",
		[]*models.Node{
			CreateTestNode("start", models.NodeTypeTriggerCommand, map[string]any{"command": "/start"}),
			CreateTestNode("hello", models.NodeTypeSendMessage, map[string]any{"text": "Welcome {event.first_name}!"}),
			CreateTestNode("done", models.NodeTypeEnd, nil),
		},
		Connect("start", "hello"),
		Connect("hello", "done"),
	)}, overrides...)...)
}

// WaitContactFlow is /start -> wait_contact -> save phone -> end.
func WaitContactFlow(overrides ...func(*models.Flow)) *models.Flow {
	return CreateTestFlow(append([]func(*models.Flow){WithGraph("start",
		[]*models.Node{
			CreateTestNode("start", models.NodeTypeTriggerCommand, map[string]any{"command": "start"}),
			CreateTestNode("ask", models.NodeTypeWaitContact, nil),
			CreateTestNode("thanks", models.NodeTypeSendMessage, map[string]any{"text": "Thanks, {contact.phone_number}"}),
		},
		Connect("start", "ask"),
		Connect("ask", "thanks"),
	)}, overrides...)...)
}

// ConditionFlow branches on amount > 100 into "big" or "small" messages.
func ConditionFlow(overrides ...func(*models.Flow)) *models.Flow {
	return CreateTestFlow(append([]func(*models.Flow){WithGraph("start",
		[]*models.Node{
			CreateTestNode("start", models.NodeTypeTriggerCommand, map[string]any{"command": "start"}),
			CreateTestNode("check", models.NodeTypeCondition, map[string]any{"expression": "amount > 100"}),
			CreateTestNode("big", models.NodeTypeSendMessage, map[string]any{"text": "big {amount}"}),
			CreateTestNode("small", models.NodeTypeSendMessage, map[string]any{"text": "small {amount}"}),
		},
		Connect("start", "check"),
		Connect("check", "big", models.HandleTrue),
		Connect("check", "small", models.HandleFalse),
	)}, overrides...)...)
}

// Event builds an inbound event for a chat.
func Event(projectID, chatID string, kind models.EventKind, text string) *models.InboundEvent {
	return &models.InboundEvent{
		ProjectID:  projectID,
		ChatID:     chatID,
		UserID:     chatID,
		Kind:       kind,
		Text:       text,
		ReceivedAt: time.Now().UTC(),
	}
}

// ContactEvent builds a contact-sharing event.
func ContactEvent(projectID, chatID, phone string) *models.InboundEvent {
	ev := Event(projectID, chatID, models.EventKindContact, "")
	ev.Contact = &models.Contact{PhoneNumber: phone, UserID: chatID}

	return ev
}
