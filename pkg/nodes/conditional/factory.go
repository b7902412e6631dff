package conditional

import (
	"context"

	"github.com/dukex/botflow/pkg/models"
	"github.com/dukex/botflow/pkg/protocol"
)

// ConditionalNodeFactory creates ConditionalNode instances.
type ConditionalNodeFactory struct{}

// NewConditionalNodeFactory creates a new factory instance.
func NewConditionalNodeFactory() protocol.NodeFactory {
	return &ConditionalNodeFactory{}
}

// Create creates a new ConditionalNode instance.
func (f *ConditionalNodeFactory) Create(_ context.Context, node *models.Node) (protocol.Node, error) {
	return NewConditionalNode(node)
}

// ID returns the factory ID.
func (f *ConditionalNodeFactory) ID() string {
	return models.NodeTypeCondition
}

// Name returns the factory name.
func (f *ConditionalNodeFactory) Name() string {
	return "Condition"
}

// Category returns the node capability.
func (f *ConditionalNodeFactory) Category() models.CategoryType {
	return models.CategoryTypeCondition
}

// Description returns the factory description.
func (f *ConditionalNodeFactory) Description() string {
	return "Evaluates an expression over the flow variables and routes to the true or false path."
}

// Schema returns the JSON schema for Condition node configuration.
func (f *ConditionalNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"expression": map[string]any{
				"type":        "string",
				"minLength":   1,
				"description": "Boolean expression. Local variables are top-level, computed user variables live under user, project variables under project.",
				"examples": []string{
					`amount > 100`,
					`user.balance >= 500 && user.referral_count > 0`,
					`event.text == "yes"`,
				},
			},
		},
		"required": []string{"expression"},
	}
}
