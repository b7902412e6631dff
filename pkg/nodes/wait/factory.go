package wait

import (
	"context"

	"github.com/dukex/botflow/pkg/models"
	"github.com/dukex/botflow/pkg/protocol"
)

func optionProperties(saveAsDefault string) map[string]any {
	return map[string]any{
		"timeout_seconds": map[string]any{
			"type":        "integer",
			"minimum":     0,
			"description": "Resume along the timeout handle when no input arrives in time",
		},
		"on_mismatch": map[string]any{
			"type":    "string",
			"enum":    []string{MismatchIgnore, MismatchFallback},
			"default": MismatchIgnore,
		},
		"reprompt": map[string]any{
			"type":        "string",
			"description": "Message sent when the input does not fit and on_mismatch is ignore",
		},
		"save_as": map[string]any{
			"type":    "string",
			"default": saveAsDefault,
			"pattern": "^[A-Za-z_][A-Za-z0-9_]*$",
		},
	}
}

// ContactNodeFactory creates ContactNode instances.
type ContactNodeFactory struct{}

func NewContactNodeFactory() protocol.NodeFactory { return &ContactNodeFactory{} }

func (f *ContactNodeFactory) Create(_ context.Context, node *models.Node) (protocol.Node, error) {
	return NewContactNode(node)
}

func (f *ContactNodeFactory) ID() string                    { return models.NodeTypeWaitContact }
func (f *ContactNodeFactory) Name() string                  { return "Wait for Contact" }
func (f *ContactNodeFactory) Category() models.CategoryType { return models.CategoryTypeFlowControl }

func (f *ContactNodeFactory) Description() string {
	return "Suspends the flow until the user shares a contact card"
}

func (f *ContactNodeFactory) Schema() map[string]any {
	return map[string]any{"type": "object", "properties": optionProperties("contact")}
}

// TextNodeFactory creates TextNode instances.
type TextNodeFactory struct{}

func NewTextNodeFactory() protocol.NodeFactory { return &TextNodeFactory{} }

func (f *TextNodeFactory) Create(_ context.Context, node *models.Node) (protocol.Node, error) {
	return NewTextNode(node)
}

func (f *TextNodeFactory) ID() string                    { return models.NodeTypeWaitText }
func (f *TextNodeFactory) Name() string                  { return "Wait for Text" }
func (f *TextNodeFactory) Category() models.CategoryType { return models.CategoryTypeFlowControl }

func (f *TextNodeFactory) Description() string {
	return "Suspends the flow until the user replies with text that passes the validation bounds"
}

func (f *TextNodeFactory) Schema() map[string]any {
	return map[string]any{"type": "object", "properties": optionProperties("input")}
}

// CallbackNodeFactory creates CallbackNode instances.
type CallbackNodeFactory struct{}

func NewCallbackNodeFactory() protocol.NodeFactory { return &CallbackNodeFactory{} }

func (f *CallbackNodeFactory) Create(_ context.Context, node *models.Node) (protocol.Node, error) {
	return NewCallbackNode(node)
}

func (f *CallbackNodeFactory) ID() string                    { return models.NodeTypeWaitCallback }
func (f *CallbackNodeFactory) Name() string                  { return "Wait for Button" }
func (f *CallbackNodeFactory) Category() models.CategoryType { return models.CategoryTypeFlowControl }

func (f *CallbackNodeFactory) Description() string {
	return "Suspends the flow until an inline button is pressed"
}

func (f *CallbackNodeFactory) Schema() map[string]any {
	props := optionProperties("choice")
	props["values"] = map[string]any{"type": "array", "items": map[string]any{"type": "string", "minLength": 1}}
	props["route"] = map[string]any{
		"type":        "boolean",
		"description": "Use the pressed value as the outgoing handle",
	}

	return map[string]any{"type": "object", "properties": props}
}

// DelayNodeFactory creates DelayNode instances.
type DelayNodeFactory struct{}

func NewDelayNodeFactory() protocol.NodeFactory { return &DelayNodeFactory{} }

func (f *DelayNodeFactory) Create(_ context.Context, node *models.Node) (protocol.Node, error) {
	return NewDelayNode(node)
}

func (f *DelayNodeFactory) ID() string                    { return models.NodeTypeDelay }
func (f *DelayNodeFactory) Name() string                  { return "Delay" }
func (f *DelayNodeFactory) Category() models.CategoryType { return models.CategoryTypeFlowControl }

func (f *DelayNodeFactory) Description() string {
	return "Pauses the flow for a number of seconds"
}

func (f *DelayNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"seconds": map[string]any{"type": "integer", "minimum": 1},
		},
		"required": []string{"seconds"},
	}
}
