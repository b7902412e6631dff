package control

import (
	"context"

	"github.com/dukex/botflow/pkg/models"
	"github.com/dukex/botflow/pkg/protocol"
)

// JumpNodeFactory creates JumpNode instances.
type JumpNodeFactory struct{}

func NewJumpNodeFactory() protocol.NodeFactory { return &JumpNodeFactory{} }

func (f *JumpNodeFactory) Create(_ context.Context, node *models.Node) (protocol.Node, error) {
	return NewJumpNode(node)
}

func (f *JumpNodeFactory) ID() string                    { return models.NodeTypeJump }
func (f *JumpNodeFactory) Name() string                  { return "Go To" }
func (f *JumpNodeFactory) Description() string           { return "Continues the flow at another node" }
func (f *JumpNodeFactory) Category() models.CategoryType { return models.CategoryTypeFlowControl }

func (f *JumpNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{"target": map[string]any{"type": "string", "minLength": 1}},
		"required":   []string{"target"},
	}
}

// SubflowNodeFactory creates SubflowNode instances.
type SubflowNodeFactory struct{}

func NewSubflowNodeFactory() protocol.NodeFactory { return &SubflowNodeFactory{} }

func (f *SubflowNodeFactory) Create(_ context.Context, node *models.Node) (protocol.Node, error) {
	return NewSubflowNode(node)
}

func (f *SubflowNodeFactory) ID() string                    { return models.NodeTypeSubflow }
func (f *SubflowNodeFactory) Name() string                  { return "Sub-flow" }
func (f *SubflowNodeFactory) Description() string           { return "References another flow; recorded on the step log" }
func (f *SubflowNodeFactory) Category() models.CategoryType { return models.CategoryTypeFlowControl }

func (f *SubflowNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{"flow_id": map[string]any{"type": "string", "minLength": 1}},
		"required":   []string{"flow_id"},
	}
}

// EndNodeFactory creates EndNode instances.
type EndNodeFactory struct{}

func NewEndNodeFactory() protocol.NodeFactory { return &EndNodeFactory{} }

func (f *EndNodeFactory) Create(_ context.Context, node *models.Node) (protocol.Node, error) {
	return NewEndNode(node)
}

func (f *EndNodeFactory) ID() string                    { return models.NodeTypeEnd }
func (f *EndNodeFactory) Name() string                  { return "End" }
func (f *EndNodeFactory) Description() string           { return "Finishes the execution as completed or failed" }
func (f *EndNodeFactory) Category() models.CategoryType { return models.CategoryTypeFlowControl }

func (f *EndNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"status":  map[string]any{"type": "string", "enum": []string{"success", "failure"}},
			"message": map[string]any{"type": "string"},
		},
	}
}
