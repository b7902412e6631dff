package trigger

import (
	"context"

	"github.com/dukex/botflow/pkg/models"
	"github.com/dukex/botflow/pkg/protocol"
)

var interruptProperty = map[string]any{
	"type":        "boolean",
	"description": "Whether a match cancels a waiting execution of the same chat and starts over",
	"default":     false,
}

// CommandTriggerNodeFactory creates CommandTriggerNode instances.
type CommandTriggerNodeFactory struct{}

// NewCommandTriggerNodeFactory creates a new command trigger node factory.
func NewCommandTriggerNodeFactory() protocol.NodeFactory {
	return &CommandTriggerNodeFactory{}
}

func (f *CommandTriggerNodeFactory) Create(_ context.Context, node *models.Node) (protocol.Node, error) {
	return NewCommandTriggerNode(node)
}

func (f *CommandTriggerNodeFactory) ID() string                    { return models.NodeTypeTriggerCommand }
func (f *CommandTriggerNodeFactory) Name() string                  { return "Command Trigger" }
func (f *CommandTriggerNodeFactory) Category() models.CategoryType { return models.CategoryTypeTrigger }

func (f *CommandTriggerNodeFactory) Description() string {
	return "Starts the flow when the user sends a slash command such as /start"
}

func (f *CommandTriggerNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"command": map[string]any{
				"type":        "string",
				"description": "Command name, with or without the leading slash",
				"minLength":   1,
				"examples":    []string{"/start", "help"},
			},
			"aliases": map[string]any{
				"type":  "array",
				"items": map[string]any{"type": "string"},
			},
			"interrupt": interruptProperty,
		},
		"required": []string{"command"},
	}
}

// KeywordTriggerNodeFactory creates KeywordTriggerNode instances.
type KeywordTriggerNodeFactory struct{}

// NewKeywordTriggerNodeFactory creates a new keyword trigger node factory.
func NewKeywordTriggerNodeFactory() protocol.NodeFactory {
	return &KeywordTriggerNodeFactory{}
}

func (f *KeywordTriggerNodeFactory) Create(_ context.Context, node *models.Node) (protocol.Node, error) {
	return NewKeywordTriggerNode(node)
}

func (f *KeywordTriggerNodeFactory) ID() string                    { return models.NodeTypeTriggerKeyword }
func (f *KeywordTriggerNodeFactory) Name() string                  { return "Keyword Trigger" }
func (f *KeywordTriggerNodeFactory) Category() models.CategoryType { return models.CategoryTypeTrigger }

func (f *KeywordTriggerNodeFactory) Description() string {
	return "Starts the flow when a text message matches one of the keywords"
}

func (f *KeywordTriggerNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"keywords": map[string]any{
				"type":     "array",
				"minItems": 1,
				"items":    map[string]any{"type": "string", "minLength": 1},
			},
			"mode": map[string]any{
				"type":    "string",
				"enum":    []string{KeywordModeExact, KeywordModeContains, KeywordModeGlob},
				"default": KeywordModeExact,
			},
			"interrupt": interruptProperty,
		},
		"required": []string{"keywords"},
	}
}

// CallbackTriggerNodeFactory creates CallbackTriggerNode instances.
type CallbackTriggerNodeFactory struct{}

// NewCallbackTriggerNodeFactory creates a new callback trigger node factory.
func NewCallbackTriggerNodeFactory() protocol.NodeFactory {
	return &CallbackTriggerNodeFactory{}
}

func (f *CallbackTriggerNodeFactory) Create(_ context.Context, node *models.Node) (protocol.Node, error) {
	return NewCallbackTriggerNode(node)
}

func (f *CallbackTriggerNodeFactory) ID() string                    { return models.NodeTypeTriggerCallback }
func (f *CallbackTriggerNodeFactory) Name() string                  { return "Callback Trigger" }
func (f *CallbackTriggerNodeFactory) Category() models.CategoryType { return models.CategoryTypeTrigger }

func (f *CallbackTriggerNodeFactory) Description() string {
	return "Starts the flow when an inline button with matching callback data is pressed"
}

func (f *CallbackTriggerNodeFactory) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"data": map[string]any{"type": "string", "minLength": 1},
			"mode": map[string]any{
				"type":    "string",
				"enum":    []string{CallbackModeExact, CallbackModePrefix},
				"default": CallbackModeExact,
			},
			"interrupt": interruptProperty,
		},
		"required": []string{"data"},
	}
}

// EntryTriggerNodeFactory creates EntryTriggerNode instances.
type EntryTriggerNodeFactory struct{}

// NewEntryTriggerNodeFactory creates a new entry trigger node factory.
func NewEntryTriggerNodeFactory() protocol.NodeFactory {
	return &EntryTriggerNodeFactory{}
}

func (f *EntryTriggerNodeFactory) Create(_ context.Context, node *models.Node) (protocol.Node, error) {
	return NewEntryTriggerNode(node), nil
}

func (f *EntryTriggerNodeFactory) ID() string                    { return models.NodeTypeTriggerEntry }
func (f *EntryTriggerNodeFactory) Name() string                  { return "Entry" }
func (f *EntryTriggerNodeFactory) Category() models.CategoryType { return models.CategoryTypeTrigger }

func (f *EntryTriggerNodeFactory) Description() string {
	return "Matches any event; used as the start of linear flows"
}

func (f *EntryTriggerNodeFactory) Schema() map[string]any {
	return map[string]any{"type": "object"}
}
