package wait

import (
	"context"
	"errors"
	"time"

	"github.com/dukex/botflow/pkg/models"
	"github.com/dukex/botflow/pkg/protocol"
)

var errRouteWithoutValues = errors.New("route requires values")

// DelayNode parks the execution for a fixed time. Inbound events are ignored
// until the sweep resumes it along the default edge.
type DelayNode struct {
	protocol.Base
	seconds int
}

// DelayConfig defines the configuration for delay nodes.
type DelayConfig struct {
	Seconds int `json:"seconds"`
}

// NewDelayNode creates a new delay node.
func NewDelayNode(node *models.Node) (*DelayNode, error) {
	var cfg DelayConfig
	if err := protocol.DecodeConfig(node, &cfg); err != nil {
		return nil, err
	}

	if cfg.Seconds <= 0 {
		return nil, errors.New("seconds must be positive")
	}

	return &DelayNode{Base: protocol.NewBase(node), seconds: cfg.Seconds}, nil
}

func (n *DelayNode) Handles() protocol.Handles {
	return protocol.Handles{Optional: []string{models.HandleDefault}}
}

func (n *DelayNode) Enter(_ context.Context, rt *protocol.Runtime) (protocol.Result, error) {
	until := rt.Now.Add(time.Duration(n.seconds) * time.Second)

	return protocol.Suspend(models.WaitTypeDelay, map[string]any{"seconds": n.seconds}, &until), nil
}

func (n *DelayNode) Resume(_ context.Context, _ *protocol.Runtime, _ *models.InboundEvent) (protocol.Result, error) {
	return protocol.Ignore("delay in progress"), nil
}

func (n *DelayNode) Expire(_ context.Context, _ *protocol.Runtime) (protocol.Result, error) {
	return protocol.Advance(models.HandleDefault), nil
}
