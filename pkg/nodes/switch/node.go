// Package switchnode provides the multi-way branching node.
package switchnode

import (
	"context"
	"errors"
	"fmt"

	"github.com/dukex/botflow/pkg/models"
	"github.com/dukex/botflow/pkg/nodes/conditional"
	"github.com/dukex/botflow/pkg/protocol"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
)

// SwitchNode routes to the first matching case handle, or to "default".
//
// A case either carries a boolean expression, or a value that is compared with
// the node-level value expression.
type SwitchNode struct {
	protocol.Base
	value *vm.Program
	cases []compiledCase
}

// SwitchCase represents a single case in the switch statement.
type SwitchCase struct {
	Handle     string `json:"handle"`
	Expression string `json:"expression,omitempty"`
	Value      any    `json:"value,omitempty"`
}

// SwitchConfig defines the configuration for switch nodes.
type SwitchConfig struct {
	Value string       `json:"value,omitempty"`
	Cases []SwitchCase `json:"cases"`
}

type compiledCase struct {
	handle    string
	predicate *vm.Program
	value     any
}

// NewSwitchNode creates a new switch node.
func NewSwitchNode(node *models.Node) (*SwitchNode, error) {
	var cfg SwitchConfig
	if err := protocol.DecodeConfig(node, &cfg); err != nil {
		return nil, err
	}

	if len(cfg.Cases) == 0 {
		return nil, errors.New("at least one case is required")
	}

	n := &SwitchNode{Base: protocol.NewBase(node)}

	if cfg.Value != "" {
		program, err := expr.Compile(cfg.Value, expr.AllowUndefinedVariables())
		if err != nil {
			return nil, fmt.Errorf("invalid value expression '%s': %w", cfg.Value, err)
		}

		n.value = program
	}

	seen := map[string]bool{models.HandleElse: true}

	for i, c := range cfg.Cases {
		if c.Handle == "" {
			return nil, fmt.Errorf("case %d missing 'handle'", i)
		}

		if seen[c.Handle] {
			return nil, fmt.Errorf("case %d reuses handle '%s'", i, c.Handle)
		}

		seen[c.Handle] = true
		cc := compiledCase{handle: c.Handle, value: c.Value}

		switch {
		case c.Expression != "":
			program, err := conditional.Compile(c.Expression)
			if err != nil {
				return nil, fmt.Errorf("case %d: %w", i, err)
			}

			cc.predicate = program
		case n.value == nil:
			return nil, fmt.Errorf("case %d needs an 'expression' when the switch has no 'value'", i)
		}

		n.cases = append(n.cases, cc)
	}

	return n, nil
}

func (n *SwitchNode) Handles() protocol.Handles {
	required := make([]string, 0, len(n.cases)+1)
	for _, c := range n.cases {
		required = append(required, c.handle)
	}

	return protocol.Handles{
		Required: append(required, models.HandleElse),
		Optional: []string{models.HandleError},
	}
}

// Evaluate returns the handle of the first matching case.
func (n *SwitchNode) Evaluate(_ context.Context, rt *protocol.Runtime) (string, error) {
	env, err := rt.Variables.Env()
	if err != nil {
		return "", err
	}

	var subject any

	if n.value != nil {
		out, err := expr.Run(n.value, env)
		if err != nil {
			return "", fmt.Errorf("switch value: %w", err)
		}

		subject = out
	}

	for _, c := range n.cases {
		if c.predicate != nil {
			ok, err := conditional.Check(c.predicate, env)
			if err != nil {
				return "", fmt.Errorf("case '%s': %w", c.handle, err)
			}

			if ok {
				return c.handle, nil
			}

			continue
		}

		if fmt.Sprint(subject) == fmt.Sprint(c.value) {
			return c.handle, nil
		}
	}

	return models.HandleElse, nil
}
