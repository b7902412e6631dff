package wait

import (
	"context"
	"slices"

	"github.com/dukex/botflow/pkg/models"
	"github.com/dukex/botflow/pkg/protocol"
)

// CallbackNode waits for an inline button press. With route set, the callback
// data itself selects the outgoing handle.
type CallbackNode struct {
	protocol.Base
	Options
	values []string
	route  bool
}

// CallbackConfig defines the configuration for wait-for-callback nodes.
type CallbackConfig struct {
	Options
	Values []string `json:"values,omitempty"`
	Route  bool     `json:"route,omitempty"`
}

// NewCallbackNode creates a new wait-for-callback node.
func NewCallbackNode(node *models.Node) (*CallbackNode, error) {
	cfg := CallbackConfig{Options: Options{SaveAs: "choice"}}
	if err := decode(node, &cfg, &cfg.Options); err != nil {
		return nil, err
	}

	if cfg.Route && len(cfg.Values) == 0 {
		return nil, errRouteWithoutValues
	}

	return &CallbackNode{Base: protocol.NewBase(node), Options: cfg.Options, values: cfg.Values, route: cfg.Route}, nil
}

func (n *CallbackNode) Handles() protocol.Handles {
	if n.route {
		h := n.handles()
		h.Required = append(h.Required, n.values...)
		h.Optional = nil

		return h
	}

	return n.handles()
}

func (n *CallbackNode) Enter(_ context.Context, rt *protocol.Runtime) (protocol.Result, error) {
	extra := map[string]any{}
	if len(n.values) > 0 {
		extra["values"] = n.values
	}

	return protocol.Suspend(models.WaitTypeCallback, n.payload(extra), n.deadline(rt.Now)), nil
}

func (n *CallbackNode) Resume(ctx context.Context, rt *protocol.Runtime, event *models.InboundEvent) (protocol.Result, error) {
	if event.Kind != models.EventKindCallback {
		return n.mismatch(ctx, rt, "expected callback, got "+string(event.Kind))
	}

	if len(n.values) > 0 && !slices.Contains(n.values, event.CallbackData) {
		return n.mismatch(ctx, rt, "unexpected callback data "+event.CallbackData)
	}

	handle := models.HandleDefault
	if n.route {
		handle = event.CallbackData
	}

	return protocol.Advance(handle).WithVariables(map[string]any{n.SaveAs: event.CallbackData}), nil
}
