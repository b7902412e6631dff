package wait

import (
	"context"

	"github.com/dukex/botflow/pkg/models"
	"github.com/dukex/botflow/pkg/protocol"
)

// ContactNode waits for a shared contact card.
type ContactNode struct {
	protocol.Base
	Options
}

// NewContactNode creates a new wait-for-contact node.
func NewContactNode(node *models.Node) (*ContactNode, error) {
	n := &ContactNode{Base: protocol.NewBase(node), Options: Options{SaveAs: "contact"}}
	if err := decode(node, &n.Options, &n.Options); err != nil {
		return nil, err
	}

	return n, nil
}

func (n *ContactNode) Handles() protocol.Handles { return n.handles() }

func (n *ContactNode) Enter(_ context.Context, rt *protocol.Runtime) (protocol.Result, error) {
	return protocol.Suspend(models.WaitTypeContact, n.payload(nil), n.deadline(rt.Now)), nil
}

func (n *ContactNode) Resume(ctx context.Context, rt *protocol.Runtime, event *models.InboundEvent) (protocol.Result, error) {
	if event.Kind != models.EventKindContact || event.Contact == nil {
		return n.mismatch(ctx, rt, "expected contact, got "+string(event.Kind))
	}

	c := event.Contact

	return protocol.Advance(models.HandleDefault).WithVariables(map[string]any{
		n.SaveAs: map[string]any{
			"phone_number": c.PhoneNumber,
			"first_name":   c.FirstName,
			"last_name":    c.LastName,
			"user_id":      c.UserID,
		},
	}), nil
}
