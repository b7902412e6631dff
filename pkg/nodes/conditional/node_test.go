package conditional

import (
	"context"
	"errors"
	"testing"

	"github.com/dukex/botflow/pkg/models"
	"github.com/dukex/botflow/pkg/protocol"
)

func newNode(t *testing.T, expression string) *ConditionalNode {
	t.Helper()

	n, err := NewConditionalNode(&models.Node{
		ID:   "cond",
		Type: models.NodeTypeCondition,
		Data: models.NodeData{Config: map[string]map[string]any{
			models.NodeTypeCondition: {"expression": expression},
		}},
	})
	if err != nil {
		t.Fatalf("Failed to create node: %v", err)
	}

	return n
}

func newRuntime(local map[string]any, user map[string]any) *protocol.Runtime {
	return &protocol.Runtime{
		Variables: protocol.NewVariables(local, map[string]any{"min": 10}, func() (map[string]any, error) {
			return user, nil
		}),
	}
}

func TestConditionalNode_Branches(t *testing.T) {
	n := newNode(t, "amount > 100")

	tests := []struct {
		amount any
		want   string
	}{
		{150, models.HandleTrue},
		{50, models.HandleFalse},
		{150.5, models.HandleTrue},
	}

	for _, tt := range tests {
		got, err := n.Evaluate(context.Background(), newRuntime(map[string]any{"amount": tt.amount}, nil))
		if err != nil {
			t.Fatalf("Evaluate failed: %v", err)
		}

		if got != tt.want {
			t.Errorf("amount=%v: got %s, want %s", tt.amount, got, tt.want)
		}
	}
}

func TestConditionalNode_Namespaces(t *testing.T) {
	n := newNode(t, "user.balance >= project.min && event.kind == 'text'")

	got, err := n.Evaluate(context.Background(), newRuntime(
		map[string]any{"event.kind": "text"},
		map[string]any{"balance": 12},
	))
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}

	if got != models.HandleTrue {
		t.Errorf("Expected true, got %s", got)
	}
}

func TestConditionalNode_MissingVariableIsError(t *testing.T) {
	n := newNode(t, "amount > 100")

	if _, err := n.Evaluate(context.Background(), newRuntime(map[string]any{}, nil)); err == nil {
		t.Fatal("Expected comparison against an undefined variable to fail")
	}
}

func TestNewConditionalNode_InvalidExpression(t *testing.T) {
	_, err := NewConditionalNode(&models.Node{
		ID:   "cond",
		Type: models.NodeTypeCondition,
		Data: models.NodeData{Config: map[string]map[string]any{
			models.NodeTypeCondition: {"expression": "amount >"},
		}},
	})
	if err == nil {
		t.Fatal("Expected compile error")
	}
}

func TestConditionalNode_Handles(t *testing.T) {
	n := newNode(t, "true")
	h := n.Handles()

	if !h.Declared(models.HandleTrue) || !h.Declared(models.HandleFalse) || !h.Declared(models.HandleError) {
		t.Errorf("Unexpected handles: %+v", h)
	}

	if h.Declared(models.HandleDefault) {
		t.Error("Condition must not accept an unlabeled edge")
	}
}

func TestConditionalNode_UserVariablesUnavailable(t *testing.T) {
	n := newNode(t, "user.balance > min")

	rt := &protocol.Runtime{
		Variables: protocol.NewVariables(nil, nil, func() (map[string]any, error) {
			return nil, errors.New("db down")
		}),
	}

	_, err := n.Evaluate(context.Background(), rt)
	if !errors.Is(err, protocol.ErrUserVariables) {
		t.Fatalf("Expected ErrUserVariables, got %v", err)
	}
}
