package message

import (
	"context"

	"github.com/dukex/botflow/pkg/models"
	"github.com/dukex/botflow/pkg/protocol"
)

// SendMessageNodeFactory creates SendMessageNode instances.
type SendMessageNodeFactory struct{}

func NewSendMessageNodeFactory() protocol.NodeFactory {
	return &SendMessageNodeFactory{}
}

func (f *SendMessageNodeFactory) Create(_ context.Context, node *models.Node) (protocol.Node, error) {
	return NewSendMessageNode(node)
}

func (f *SendMessageNodeFactory) ID() string                    { return models.NodeTypeSendMessage }
func (f *SendMessageNodeFactory) Name() string                  { return "Send Message" }
func (f *SendMessageNodeFactory) Category() models.CategoryType { return models.CategoryTypeAction }

func (f *SendMessageNodeFactory) Description() string {
	return "Sends a text message to the chat. Supports {namespace.key} placeholders and inline buttons."
}

func (f *SendMessageNodeFactory) Schema() map[string]any {
	button := map[string]any{
		"type": "object",
		"properties": map[string]any{
			"text":          map[string]any{"type": "string", "minLength": 1},
			"callback_data": map[string]any{"type": "string"},
			"url":           map[string]any{"type": "string"},
		},
		"required": []string{"text"},
	}

	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"text": map[string]any{
				"type":      "string",
				"minLength": 1,
				"examples":  []string{"Hi {event.first_name}! Your balance is {user.balance}."},
			},
			"buttons": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "array", "items": button},
			},
		},
		"required": []string{"text"},
	}
}

// RequestContactNodeFactory creates RequestContactNode instances.
type RequestContactNodeFactory struct{}

func NewRequestContactNodeFactory() protocol.NodeFactory {
	return &RequestContactNodeFactory{}
}

func (f *RequestContactNodeFactory) Create(_ context.Context, node *models.Node) (protocol.Node, error) {
	return NewRequestContactNode(node)
}

func (f *RequestContactNodeFactory) ID() string                    { return models.NodeTypeRequestContact }
func (f *RequestContactNodeFactory) Name() string                  { return "Request Contact" }
func (f *RequestContactNodeFactory) Category() models.CategoryType { return models.CategoryTypeAction }

func (f *RequestContactNodeFactory) Description() string {
	return "Sends a prompt with a share-contact button. Pair it with a wait for contact node."
}

func (f *RequestContactNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"text":        map[string]any{"type": "string", "minLength": 1},
			"button_text": map[string]any{"type": "string"},
		},
		"required": []string{"text"},
	}
}
