// Package models defines the core node-based bot flow models for graph execution
package models

import "strings"

// CategoryType represents the capability a node implements.
type CategoryType string

const (
	CategoryTypeTrigger     CategoryType = "trigger"   // Decides whether an inbound event starts a flow
	CategoryTypeCondition   CategoryType = "condition" // Picks an outgoing handle from the variable bag
	CategoryTypeAction      CategoryType = "action"    // Side effects: queries, messages, variables
	CategoryTypeFlowControl CategoryType = "flow"      // Waits, delays, jumps, sub-flows, end
)

// Built-in node types.
const (
	NodeTypeTriggerCommand  = "trigger.command"
	NodeTypeTriggerKeyword  = "trigger.keyword"
	NodeTypeTriggerCallback = "trigger.callback"
	NodeTypeTriggerEntry    = "trigger.entry"

	NodeTypeCondition = "flow.condition"
	NodeTypeSwitch    = "flow.switch"

	NodeTypeSendMessage    = "action.send_message"
	NodeTypeDatabaseQuery  = "action.database_query"
	NodeTypeSetVariable    = "action.set_variable"
	NodeTypeRequestContact = "action.request_contact"

	NodeTypeWaitContact  = "flow.wait_contact"
	NodeTypeWaitText     = "flow.wait_text"
	NodeTypeWaitCallback = "flow.wait_callback"
	NodeTypeDelay        = "flow.delay"
	NodeTypeJump         = "flow.jump"
	NodeTypeSubflow      = "flow.subflow"
	NodeTypeEnd          = "flow.end"
)

// Well-known connection handles.
const (
	HandleDefault  = ""
	HandleTrue     = "true"
	HandleFalse    = "false"
	HandleError    = "error"
	HandleTimeout  = "timeout"
	HandleFallback = "fallback"
	HandleElse     = "default"
)

// Connection is a directed edge between two nodes, optionally tagged with the
// outgoing handle of the source node.
type Connection struct {
	ID           string `json:"id"`
	Source       string `json:"source"                  validate:"required"`
	Target       string `json:"target"                  validate:"required"`
	SourceHandle string `json:"source_handle,omitempty"`
}

// Bounds constrains user input collected by wait nodes.
type Bounds struct {
	MinLength *int     `json:"min_length,omitempty"`
	MaxLength *int     `json:"max_length,omitempty"`
	Pattern   string   `json:"pattern,omitempty"`
	Min       *float64 `json:"min,omitempty"`
	Max       *float64 `json:"max,omitempty"`
}

// NodeData is the authoring payload of a node. Config is keyed by node type so
// that an editor can keep settings for several types while the author switches
// between them; only the entry matching Node.Type is used.
type NodeData struct {
	Label      string                    `json:"label"`
	Config     map[string]map[string]any `json:"config,omitempty"`
	Validation *Bounds                   `json:"validation,omitempty"`
}

// Node represents a node instance in a flow.
type Node struct {
	ID        string   `json:"id"                   validate:"required"`
	Type      string   `json:"type"                 validate:"required"`
	Data      NodeData `json:"data"`
	PositionX int      `json:"position_x,omitempty"`
	PositionY int      `json:"position_y,omitempty"`
}

// Settings returns the config block for the node's own type.
func (n *Node) Settings() map[string]any {
	if n.Data.Config == nil {
		return map[string]any{}
	}

	cfg, ok := n.Data.Config[n.Type]
	if !ok || cfg == nil {
		return map[string]any{}
	}

	return cfg
}

// Category derives the capability from the type prefix.
func (n *Node) Category() CategoryType {
	switch {
	case strings.HasPrefix(n.Type, "trigger."):
		return CategoryTypeTrigger
	case strings.HasPrefix(n.Type, "action."):
		return CategoryTypeAction
	case n.Type == NodeTypeCondition || n.Type == NodeTypeSwitch:
		return CategoryTypeCondition
	default:
		return CategoryTypeFlowControl
	}
}

func (n *Node) IsTriggerNode() bool {
	return n.Category() == CategoryTypeTrigger
}

// Label returns the display label, falling back to the id.
func (n *Node) Label() string {
	if n.Data.Label != "" {
		return n.Data.Label
	}

	return n.ID
}

// Clone returns a deep copy of the node's authoring payload.
func (n *Node) Clone() *Node {
	cp := *n
	if n.Data.Config != nil {
		cp.Data.Config = make(map[string]map[string]any, len(n.Data.Config))
		for typ, cfg := range n.Data.Config {
			inner := make(map[string]any, len(cfg))
			for k, v := range cfg {
				inner[k] = v
			}

			cp.Data.Config[typ] = inner
		}
	}

	if n.Data.Validation != nil {
		b := *n.Data.Validation
		cp.Data.Validation = &b
	}

	return &cp
}
