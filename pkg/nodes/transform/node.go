// Package transform provides the node that assigns local flow variables.
package transform

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/dukex/botflow/pkg/models"
	"github.com/dukex/botflow/pkg/protocol"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/spf13/cast"
)

// SetVariableNode assigns templated values, expression results and numeric
// increments to local variables. Assignments run in that order.
type SetVariableNode struct {
	protocol.Base
	values      map[string]any
	expressions map[string]*vm.Program
	increments  map[string]float64
}

// SetVariableConfig defines the configuration for set variable nodes.
type SetVariableConfig struct {
	Values      map[string]any     `json:"values,omitempty"`
	Expressions map[string]string  `json:"expressions,omitempty"`
	Increments  map[string]float64 `json:"increments,omitempty"`
}

// NewSetVariableNode creates a new set variable node.
func NewSetVariableNode(node *models.Node) (*SetVariableNode, error) {
	var cfg SetVariableConfig
	if err := protocol.DecodeConfig(node, &cfg); err != nil {
		return nil, err
	}

	if len(cfg.Values)+len(cfg.Expressions)+len(cfg.Increments) == 0 {
		return nil, errors.New("at least one of 'values', 'expressions' or 'increments' is required")
	}

	n := &SetVariableNode{
		Base:        protocol.NewBase(node),
		values:      cfg.Values,
		expressions: make(map[string]*vm.Program, len(cfg.Expressions)),
		increments:  cfg.Increments,
	}

	for name, code := range cfg.Expressions {
		program, err := expr.Compile(code, expr.AllowUndefinedVariables())
		if err != nil {
			return nil, fmt.Errorf("expression for '%s': %w", name, err)
		}

		n.expressions[name] = program
	}

	return n, nil
}

func (n *SetVariableNode) Handles() protocol.Handles {
	return protocol.Handles{Optional: []string{models.HandleDefault, models.HandleError}}
}

func (n *SetVariableNode) Execute(_ context.Context, rt *protocol.Runtime) (protocol.Result, error) {
	updates := make(map[string]any, len(n.values)+len(n.expressions)+len(n.increments))
	r := rt.Variables.Renderer()

	for name, value := range n.values {
		updates[name] = r.RenderAny(value)
	}

	if len(n.expressions) > 0 {
		env, err := rt.Variables.Env()
		if err != nil {
			return protocol.Result{}, err
		}

		for _, name := range sortedKeys(n.expressions) {
			out, err := expr.Run(n.expressions[name], env)
			if err != nil {
				return protocol.Result{}, fmt.Errorf("expression for '%s': %w", name, err)
			}

			updates[name] = out
		}
	}

	for name, delta := range n.increments {
		current, ok := updates[name]
		if !ok {
			current, _ = r.Lookup(name)
		}

		updates[name] = increment(current, delta)
	}

	if err := r.Err(); err != nil {
		return protocol.Result{}, err
	}

	return protocol.Advance(models.HandleDefault).
		WithVariables(updates).
		WithData(map[string]any{"assigned": sortedKeys(updates)}), nil
}

// increment keeps integers integral when both sides are whole numbers.
func increment(current any, delta float64) any {
	base := cast.ToFloat64(current)
	sum := base + delta

	if sum == float64(int64(sum)) && base == float64(int64(base)) {
		return int64(sum)
	}

	return sum
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	return keys
}
