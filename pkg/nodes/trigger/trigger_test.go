package trigger

import (
	"testing"

	"github.com/dukex/botflow/pkg/models"
)

func node(typ string, cfg map[string]any) *models.Node {
	return &models.Node{ID: "t1", Type: typ, Data: models.NodeData{Config: map[string]map[string]any{typ: cfg}}}
}

func TestCommandTriggerNode_Matches(t *testing.T) {
	n, err := NewCommandTriggerNode(node(models.NodeTypeTriggerCommand, map[string]any{
		"command": "/start",
		"aliases": []any{"begin"},
	}))
	if err != nil {
		t.Fatalf("Failed to create node: %v", err)
	}

	cases := []struct {
		event *models.InboundEvent
		want  bool
	}{
		{&models.InboundEvent{Kind: models.EventKindCommand, Text: "/start"}, true},
		{&models.InboundEvent{Kind: models.EventKindCommand, Text: "/START ref_42"}, true},
		{&models.InboundEvent{Kind: models.EventKindCommand, Text: "/begin"}, true},
		{&models.InboundEvent{Kind: models.EventKindCommand, Text: "/help"}, false},
		{&models.InboundEvent{Kind: models.EventKindText, Text: "/start"}, false},
	}

	for _, tc := range cases {
		if got := n.Matches(tc.event); got != tc.want {
			t.Errorf("Matches(%q) = %v, want %v", tc.event.Text, got, tc.want)
		}
	}

	if n.Interrupts() {
		t.Error("Expected interrupt to default to false")
	}
}

func TestCommandTriggerNode_MissingCommand(t *testing.T) {
	_, err := NewCommandTriggerNode(node(models.NodeTypeTriggerCommand, map[string]any{}))
	if err == nil {
		t.Fatal("Expected error when command is missing")
	}
}

func TestKeywordTriggerNode_Modes(t *testing.T) {
	tests := []struct {
		name string
		cfg  map[string]any
		text string
		want bool
	}{
		{"exact hit", map[string]any{"keywords": []any{"Bonus"}}, "bonus", true},
		{"exact miss", map[string]any{"keywords": []any{"bonus"}}, "my bonus", false},
		{"contains", map[string]any{"keywords": []any{"bonus"}, "mode": "contains"}, "What is my BONUS?", true},
		{"glob", map[string]any{"keywords": []any{"promo*"}, "mode": "glob"}, "PROMO2025", true},
		{"glob miss", map[string]any{"keywords": []any{"promo?"}, "mode": "glob"}, "promo2025", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := NewKeywordTriggerNode(node(models.NodeTypeTriggerKeyword, tt.cfg))
			if err != nil {
				t.Fatalf("Failed to create node: %v", err)
			}

			got := n.Matches(&models.InboundEvent{Kind: models.EventKindText, Text: tt.text})
			if got != tt.want {
				t.Errorf("Matches(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}

func TestKeywordTriggerNode_InvalidMode(t *testing.T) {
	_, err := NewKeywordTriggerNode(node(models.NodeTypeTriggerKeyword, map[string]any{
		"keywords": []any{"x"},
		"mode":     "regex",
	}))
	if err == nil {
		t.Fatal("Expected error for unsupported mode")
	}
}

func TestCallbackTriggerNode_Matches(t *testing.T) {
	n, err := NewCallbackTriggerNode(node(models.NodeTypeTriggerCallback, map[string]any{
		"data":      "buy:",
		"mode":      "prefix",
		"interrupt": true,
	}))
	if err != nil {
		t.Fatalf("Failed to create node: %v", err)
	}

	if !n.Matches(&models.InboundEvent{Kind: models.EventKindCallback, CallbackData: "buy:42"}) {
		t.Error("Expected prefix match")
	}

	if n.Matches(&models.InboundEvent{Kind: models.EventKindCallback, CallbackData: "sell:42"}) {
		t.Error("Expected no match")
	}

	if !n.Interrupts() {
		t.Error("Expected interrupt flag to be set")
	}
}

func TestEntryTriggerNode_MatchesEverything(t *testing.T) {
	n := NewEntryTriggerNode(node(models.NodeTypeTriggerEntry, nil))
	if !n.Matches(&models.InboundEvent{Kind: models.EventKindContact}) {
		t.Error("Expected entry trigger to match")
	}
}
