package switchnode

import (
	"context"

	"github.com/dukex/botflow/pkg/models"
	"github.com/dukex/botflow/pkg/protocol"
)

// SwitchNodeFactory creates SwitchNode instances.
type SwitchNodeFactory struct{}

// NewSwitchNodeFactory creates a new factory instance.
func NewSwitchNodeFactory() protocol.NodeFactory {
	return &SwitchNodeFactory{}
}

func (f *SwitchNodeFactory) Create(_ context.Context, node *models.Node) (protocol.Node, error) {
	return NewSwitchNode(node)
}

func (f *SwitchNodeFactory) ID() string {
	return models.NodeTypeSwitch
}

func (f *SwitchNodeFactory) Name() string {
	return "Switch"
}

func (f *SwitchNodeFactory) Category() models.CategoryType {
	return models.CategoryTypeCondition
}

func (f *SwitchNodeFactory) Description() string {
	return "Routes to the first case that matches; falls back to the default path."
}

func (f *SwitchNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"value": map[string]any{
				"type":        "string",
				"description": "Expression whose result is compared with each case value",
			},
			"cases": map[string]any{
				"type":     "array",
				"minItems": 1,
				"items": map[string]any{
					"type": "object",
					"properties": map[string]any{
						"handle":     map[string]any{"type": "string", "minLength": 1},
						"expression": map[string]any{"type": "string"},
						"value":      map[string]any{},
					},
					"required": []string{"handle"},
				},
			},
		},
		"required": []string{"cases"},
	}
}
