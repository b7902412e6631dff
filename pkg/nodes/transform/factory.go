package transform

import (
	"context"

	"github.com/dukex/botflow/pkg/models"
	"github.com/dukex/botflow/pkg/protocol"
)

// SetVariableNodeFactory creates SetVariableNode instances.
type SetVariableNodeFactory struct{}

// NewSetVariableNodeFactory creates a new factory instance.
func NewSetVariableNodeFactory() protocol.NodeFactory {
	return &SetVariableNodeFactory{}
}

func (f *SetVariableNodeFactory) Create(_ context.Context, node *models.Node) (protocol.Node, error) {
	return NewSetVariableNode(node)
}

func (f *SetVariableNodeFactory) ID() string {
	return models.NodeTypeSetVariable
}

func (f *SetVariableNodeFactory) Name() string {
	return "Set Variable"
}

func (f *SetVariableNodeFactory) Category() models.CategoryType {
	return models.CategoryTypeAction
}

func (f *SetVariableNodeFactory) Description() string {
	return "Assigns local variables from templates, expressions or numeric increments."
}

func (f *SetVariableNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"values": map[string]any{
				"type":        "object",
				"description": "Variable name to value; strings may contain placeholders",
			},
			"expressions": map[string]any{
				"type":                 "object",
				"additionalProperties": map[string]any{"type": "string"},
				"examples":             []map[string]any{{"total": "price * quantity"}},
			},
			"increments": map[string]any{
				"type":                 "object",
				"additionalProperties": map[string]any{"type": "number"},
			},
		},
		"minProperties": 1,
	}
}
