// Package trigger provides trigger node implementations that decide which
// inbound chat events start a flow.
package trigger

import (
	"errors"
	"strings"

	"github.com/dukex/botflow/pkg/models"
	"github.com/dukex/botflow/pkg/protocol"
	"github.com/gobwas/glob"
)

const (
	KeywordModeExact    = "exact"
	KeywordModeContains = "contains"
	KeywordModeGlob     = "glob"

	CallbackModeExact  = "exact"
	CallbackModePrefix = "prefix"
)

var triggerHandles = protocol.Handles{Required: []string{models.HandleDefault}}

// CommandTriggerNode matches slash commands such as /start.
type CommandTriggerNode struct {
	protocol.Base
	commands  []string
	interrupt bool
}

// CommandTriggerConfig defines the configuration for command trigger nodes.
type CommandTriggerConfig struct {
	Command   string   `json:"command"`
	Aliases   []string `json:"aliases"`
	Interrupt bool     `json:"interrupt"`
}

// NewCommandTriggerNode creates a new command trigger node.
func NewCommandTriggerNode(node *models.Node) (*CommandTriggerNode, error) {
	var cfg CommandTriggerConfig
	if err := protocol.DecodeConfig(node, &cfg); err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.Command) == "" {
		return nil, errors.New("command is required")
	}

	commands := make([]string, 0, 1+len(cfg.Aliases))
	for _, c := range append([]string{cfg.Command}, cfg.Aliases...) {
		commands = append(commands, normalizeCommand(c))
	}

	return &CommandTriggerNode{Base: protocol.NewBase(node), commands: commands, interrupt: cfg.Interrupt}, nil
}

func (n *CommandTriggerNode) Handles() protocol.Handles { return triggerHandles }
func (n *CommandTriggerNode) Interrupts() bool          { return n.interrupt }

func (n *CommandTriggerNode) Matches(event *models.InboundEvent) bool {
	name, _ := event.Command()
	if name == "" {
		return false
	}

	for _, c := range n.commands {
		if c == name {
			return true
		}
	}

	return false
}

func normalizeCommand(c string) string {
	return strings.ToLower(strings.TrimPrefix(strings.TrimSpace(c), "/"))
}

// KeywordTriggerNode matches free text messages.
type KeywordTriggerNode struct {
	protocol.Base
	keywords  []string
	globs     []glob.Glob
	mode      string
	interrupt bool
}

// KeywordTriggerConfig defines the configuration for keyword trigger nodes.
type KeywordTriggerConfig struct {
	Keywords  []string `json:"keywords"`
	Mode      string   `json:"mode"`
	Interrupt bool     `json:"interrupt"`
}

// NewKeywordTriggerNode creates a new keyword trigger node. Matching is
// case-insensitive in every mode.
func NewKeywordTriggerNode(node *models.Node) (*KeywordTriggerNode, error) {
	cfg := KeywordTriggerConfig{Mode: KeywordModeExact}
	if err := protocol.DecodeConfig(node, &cfg); err != nil {
		return nil, err
	}

	if len(cfg.Keywords) == 0 {
		return nil, errors.New("at least one keyword is required")
	}

	n := &KeywordTriggerNode{Base: protocol.NewBase(node), mode: cfg.Mode, interrupt: cfg.Interrupt}

	for _, kw := range cfg.Keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		n.keywords = append(n.keywords, kw)

		if cfg.Mode == KeywordModeGlob {
			g, err := glob.Compile(kw)
			if err != nil {
				return nil, errors.New("invalid glob pattern '" + kw + "': " + err.Error())
			}

			n.globs = append(n.globs, g)
		}
	}

	switch cfg.Mode {
	case KeywordModeExact, KeywordModeContains, KeywordModeGlob:
	default:
		return nil, errors.New("unsupported keyword mode '" + cfg.Mode + "'")
	}

	return n, nil
}

func (n *KeywordTriggerNode) Handles() protocol.Handles { return triggerHandles }
func (n *KeywordTriggerNode) Interrupts() bool          { return n.interrupt }

func (n *KeywordTriggerNode) Matches(event *models.InboundEvent) bool {
	if event.Kind != models.EventKindText {
		return false
	}

	text := strings.ToLower(strings.TrimSpace(event.Text))

	switch n.mode {
	case KeywordModeGlob:
		for _, g := range n.globs {
			if g.Match(text) {
				return true
			}
		}
	case KeywordModeContains:
		for _, kw := range n.keywords {
			if strings.Contains(text, kw) {
				return true
			}
		}
	default:
		for _, kw := range n.keywords {
			if text == kw {
				return true
			}
		}
	}

	return false
}

// CallbackTriggerNode matches inline button callbacks.
type CallbackTriggerNode struct {
	protocol.Base
	data      string
	mode      string
	interrupt bool
}

// CallbackTriggerConfig defines the configuration for callback trigger nodes.
type CallbackTriggerConfig struct {
	Data      string `json:"data"`
	Mode      string `json:"mode"`
	Interrupt bool   `json:"interrupt"`
}

// NewCallbackTriggerNode creates a new callback trigger node.
func NewCallbackTriggerNode(node *models.Node) (*CallbackTriggerNode, error) {
	cfg := CallbackTriggerConfig{Mode: CallbackModeExact}
	if err := protocol.DecodeConfig(node, &cfg); err != nil {
		return nil, err
	}

	if cfg.Data == "" {
		return nil, errors.New("data is required")
	}

	if cfg.Mode != CallbackModeExact && cfg.Mode != CallbackModePrefix {
		return nil, errors.New("unsupported callback mode '" + cfg.Mode + "'")
	}

	return &CallbackTriggerNode{Base: protocol.NewBase(node), data: cfg.Data, mode: cfg.Mode, interrupt: cfg.Interrupt}, nil
}

func (n *CallbackTriggerNode) Handles() protocol.Handles { return triggerHandles }
func (n *CallbackTriggerNode) Interrupts() bool          { return n.interrupt }

func (n *CallbackTriggerNode) Matches(event *models.InboundEvent) bool {
	if event.Kind != models.EventKindCallback {
		return false
	}

	if n.mode == CallbackModePrefix {
		return strings.HasPrefix(event.CallbackData, n.data)
	}

	return event.CallbackData == n.data
}

// EntryTriggerNode accepts any event; it is used by linear onboarding flows.
type EntryTriggerNode struct {
	protocol.Base
}

func NewEntryTriggerNode(node *models.Node) *EntryTriggerNode {
	return &EntryTriggerNode{Base: protocol.NewBase(node)}
}

func (n *EntryTriggerNode) Handles() protocol.Handles           { return triggerHandles }
func (n *EntryTriggerNode) Interrupts() bool                    { return false }
func (n *EntryTriggerNode) Matches(_ *models.InboundEvent) bool { return true }
