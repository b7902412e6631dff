// Package control provides jump, sub-flow and end nodes.
package control

import (
	"context"
	"errors"

	"github.com/dukex/botflow/pkg/models"
	"github.com/dukex/botflow/pkg/protocol"
)

// JumpNode continues at another node of the same flow.
type JumpNode struct {
	protocol.Base
	target string
}

func NewJumpNode(node *models.Node) (*JumpNode, error) {
	var cfg struct {
		Target string `json:"target"`
	}
	if err := protocol.DecodeConfig(node, &cfg); err != nil {
		return nil, err
	}

	if cfg.Target == "" {
		return nil, errors.New("missing required field 'target'")
	}

	if cfg.Target == node.ID {
		return nil, errors.New("jump target must differ from the node itself")
	}

	return &JumpNode{Base: protocol.NewBase(node), target: cfg.Target}, nil
}

func (n *JumpNode) Handles() protocol.Handles { return protocol.Handles{} }
func (n *JumpNode) References() []string      { return []string{n.target} }

func (n *JumpNode) Enter(_ context.Context, _ *protocol.Runtime) (protocol.Result, error) {
	return protocol.Jump(n.target).WithData(map[string]any{"target": n.target}), nil
}

// SubflowNode records the referenced flow and continues. Nested execution of
// the referenced flow is not performed.
type SubflowNode struct {
	protocol.Base
	flowID string
}

func NewSubflowNode(node *models.Node) (*SubflowNode, error) {
	var cfg struct {
		FlowID string `json:"flow_id"`
	}
	if err := protocol.DecodeConfig(node, &cfg); err != nil {
		return nil, err
	}

	if cfg.FlowID == "" {
		return nil, errors.New("missing required field 'flow_id'")
	}

	return &SubflowNode{Base: protocol.NewBase(node), flowID: cfg.FlowID}, nil
}

func (n *SubflowNode) Handles() protocol.Handles {
	return protocol.Handles{Optional: []string{models.HandleDefault}}
}

func (n *SubflowNode) Enter(_ context.Context, _ *protocol.Runtime) (protocol.Result, error) {
	return protocol.Advance(models.HandleDefault).WithData(map[string]any{"subflow_id": n.flowID}), nil
}

// EndNode terminates the execution.
type EndNode struct {
	protocol.Base
	failure bool
	message string
}

func NewEndNode(node *models.Node) (*EndNode, error) {
	var cfg struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}
	if err := protocol.DecodeConfig(node, &cfg); err != nil {
		return nil, err
	}

	switch cfg.Status {
	case "", "success", "failure":
	default:
		return nil, errors.New("status must be 'success' or 'failure'")
	}

	return &EndNode{Base: protocol.NewBase(node), failure: cfg.Status == "failure", message: cfg.Message}, nil
}

func (n *EndNode) Handles() protocol.Handles { return protocol.Handles{} }

func (n *EndNode) Enter(_ context.Context, rt *protocol.Runtime) (protocol.Result, error) {
	msg, err := rt.Render(n.message)
	if err != nil {
		return protocol.Result{}, err
	}

	if n.failure {
		return protocol.Fail(msg), nil
	}

	return protocol.Complete(msg), nil
}
