package registry

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/dukex/botflow/pkg/models"
	"github.com/dukex/botflow/pkg/protocol"
)

func newRegistry() *Registry {
	r := NewRegistry(slog.Default())
	r.RegisterDefaultNodes()

	return r
}

func TestRegisterDefaultNodes(t *testing.T) {
	registry := newRegistry()

	expectedNodes := []string{
		models.NodeTypeTriggerCommand, models.NodeTypeTriggerKeyword, models.NodeTypeTriggerCallback, models.NodeTypeTriggerEntry,
		models.NodeTypeCondition, models.NodeTypeSwitch,
		models.NodeTypeSendMessage, models.NodeTypeRequestContact, models.NodeTypeDatabaseQuery, models.NodeTypeSetVariable,
		models.NodeTypeWaitContact, models.NodeTypeWaitText, models.NodeTypeWaitCallback, models.NodeTypeDelay,
		models.NodeTypeJump, models.NodeTypeSubflow, models.NodeTypeEnd,
	}

	availableNodes := registry.GetAvailableNodes()
	if len(availableNodes) != len(expectedNodes) {
		t.Errorf("Expected %d nodes, got %d", len(expectedNodes), len(availableNodes))
	}

	for _, expectedType := range expectedNodes {
		if !registry.Has(expectedType) {
			t.Errorf("Expected node type '%s' not found in registry", expectedType)
		}
	}

	for _, info := range registry.NodeTypes() {
		if info.Category != (&models.Node{Type: info.Type}).Category() {
			t.Errorf("Type %s declares category %s", info.Type, info.Category)
		}
	}
}

func TestCreateNode_Capabilities(t *testing.T) {
	registry := newRegistry()

	node, err := registry.CreateNode(context.Background(), &models.Node{
		ID:   "start",
		Type: models.NodeTypeTriggerCommand,
		Data: models.NodeData{Config: map[string]map[string]any{models.NodeTypeTriggerCommand: {"command": "start"}}},
	})
	if err != nil {
		t.Fatalf("Failed to create node: %v", err)
	}

	if _, ok := node.(protocol.Trigger); !ok {
		t.Errorf("Expected a trigger, got %T", node)
	}

	if node.ID() != "start" || node.Type() != models.NodeTypeTriggerCommand {
		t.Errorf("Unexpected identity %s/%s", node.ID(), node.Type())
	}
}

func TestCreateNode_UnknownType(t *testing.T) {
	_, err := newRegistry().CreateNode(context.Background(), &models.Node{ID: "x", Type: "action.http_request"})
	if !errors.Is(err, ErrUnknownNodeType) {
		t.Fatalf("Expected ErrUnknownNodeType, got %v", err)
	}
}

func TestCreateNode_SchemaViolation(t *testing.T) {
	_, err := newRegistry().CreateNode(context.Background(), &models.Node{
		ID:   "q",
		Type: models.NodeTypeDatabaseQuery,
		Data: models.NodeData{Config: map[string]map[string]any{models.NodeTypeDatabaseQuery: {"query": "drop_tables"}}},
	})
	if !errors.Is(err, ErrInvalidNodeConfig) {
		t.Fatalf("Expected ErrInvalidNodeConfig, got %v", err)
	}
}

func TestCreateNode_ConstructorError(t *testing.T) {
	_, err := newRegistry().CreateNode(context.Background(), &models.Node{
		ID:   "cond",
		Type: models.NodeTypeCondition,
		Data: models.NodeData{Config: map[string]map[string]any{models.NodeTypeCondition: {"expression": "a >"}}},
	})
	if !errors.Is(err, ErrInvalidNodeConfig) {
		t.Fatalf("Expected ErrInvalidNodeConfig, got %v", err)
	}
}
