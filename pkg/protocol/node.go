// Package protocol defines the interfaces and contracts for pluggable nodes.
package protocol

import (
	"context"

	"github.com/dukex/botflow/pkg/models"
)

// NodeFactory creates node instances and provides metadata about the node type.
type NodeFactory interface {
	// Create decodes the node's config into a typed instance
	Create(ctx context.Context, node *models.Node) (Node, error)

	// ID returns the node type this factory handles, e.g. "flow.condition"
	ID() string

	// Name returns the human-readable name for this node type
	Name() string

	// Description returns a description of what this node does
	Description() string

	// Category returns the single capability instances implement
	Category() models.CategoryType

	// Schema returns the JSON schema for configuring this node
	Schema() map[string]any
}

// Node is a compiled graph node. Every instance also implements exactly one
// of Trigger, Condition, Action or FlowControl.
type Node interface {
	ID() string
	Type() string

	// Handles declares the outgoing edge labels the node understands.
	Handles() Handles
}

// Handles lists the outgoing labels of a node. Required labels must be
// connected before publish; optional ones may be.
type Handles struct {
	Required []string
	Optional []string
}

// Declared reports whether the label is known to the node.
func (h Handles) Declared(label string) bool {
	for _, l := range h.Required {
		if l == label {
			return true
		}
	}

	for _, l := range h.Optional {
		if l == label {
			return true
		}
	}

	return false
}

// Trigger decides whether an inbound event starts a new execution.
type Trigger interface {
	Node
	Matches(event *models.InboundEvent) bool

	// Interrupts reports whether a match may cancel a waiting execution.
	Interrupts() bool
}

// Condition picks the outgoing handle from the merged variables.
type Condition interface {
	Node
	Evaluate(ctx context.Context, rt *Runtime) (string, error)
}

// Action performs side effects through the query executor.
type Action interface {
	Node
	Execute(ctx context.Context, rt *Runtime) (Result, error)
}

// FlowControl steers the interpreter without touching domain state.
type FlowControl interface {
	Node
	Enter(ctx context.Context, rt *Runtime) (Result, error)
}

// Waiter is a flow control node that suspends and later consumes an event.
// Resume returns an Ignore result when the event does not fit the wait.
type Waiter interface {
	FlowControl
	Resume(ctx context.Context, rt *Runtime, event *models.InboundEvent) (Result, error)
}

// Expirer is implemented by nodes whose wait may pass its deadline.
type Expirer interface {
	Expire(ctx context.Context, rt *Runtime) (Result, error)
}

// Referencer is implemented by nodes that point at other nodes by id, outside
// of the connection list.
type Referencer interface {
	References() []string
}
