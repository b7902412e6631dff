// Package conditional provides the true/false branching node.
package conditional

import (
	"context"
	"errors"
	"fmt"

	"github.com/dukex/botflow/pkg/models"
	"github.com/dukex/botflow/pkg/protocol"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// ConditionalNode evaluates a boolean expression against the merged variables
// and routes to the true or false handle.
type ConditionalNode struct {
	protocol.Base
	expression string
	program    *vm.Program
}

// ConditionalConfig defines the configuration for conditional nodes.
type ConditionalConfig struct {
	Expression string `json:"expression"`
}

// NewConditionalNode creates a new conditional branching node.
func NewConditionalNode(node *models.Node) (*ConditionalNode, error) {
	var cfg ConditionalConfig
	if err := protocol.DecodeConfig(node, &cfg); err != nil {
		return nil, err
	}

	if cfg.Expression == "" {
		return nil, errors.New("missing required field 'expression'")
	}

	program, err := Compile(cfg.Expression)
	if err != nil {
		return nil, err
	}

	return &ConditionalNode{Base: protocol.NewBase(node), expression: cfg.Expression, program: program}, nil
}

// Compile compiles a boolean predicate. Unknown identifiers evaluate to nil.
func Compile(expression string) (*vm.Program, error) {
	program, err := expr.Compile(expression, expr.AsBool(), expr.AllowUndefinedVariables())
	if err != nil {
		return nil, fmt.Errorf("invalid expression '%s': %w", expression, err)
	}

	return program, nil
}

// Check runs a compiled predicate against an environment.
func Check(program *vm.Program, env map[string]any) (bool, error) {
	out, err := expr.Run(program, env)
	if err != nil {
		return false, err
	}

	b, ok := out.(bool)
	if !ok {
		return false, fmt.Errorf("expression returned %T, expected bool", out)
	}

	return b, nil
}

func (n *ConditionalNode) Handles() protocol.Handles {
	return protocol.Handles{
		Required: []string{models.HandleTrue, models.HandleFalse},
		Optional: []string{models.HandleError},
	}
}

// Evaluate returns "true" or "false".
func (n *ConditionalNode) Evaluate(_ context.Context, rt *protocol.Runtime) (string, error) {
	env, err := rt.Variables.Env()
	if err != nil {
		return "", err
	}

	ok, err := Check(n.program, env)
	if err != nil {
		return "", fmt.Errorf("condition '%s': %w", n.expression, err)
	}

	if ok {
		return models.HandleTrue, nil
	}

	return models.HandleFalse, nil
}
