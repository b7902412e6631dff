package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/dukex/botflow/pkg/models"
)

// DecodeConfig decodes the node's own config block into a typed struct.
func DecodeConfig(node *models.Node, out any) error {
	raw, err := json.Marshal(node.Settings())
	if err != nil {
		return fmt.Errorf("node %s: encode config: %w", node.ID, err)
	}

	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("node %s: decode %s config: %w", node.ID, node.Type, err)
	}

	return nil
}

// Base carries the identity shared by every node instance.
type Base struct {
	NodeID   string
	NodeType string
}

func (b Base) ID() string   { return b.NodeID }
func (b Base) Type() string { return b.NodeType }

// NewBase returns the identity of a node.
func NewBase(node *models.Node) Base {
	return Base{NodeID: node.ID, NodeType: node.Type}
}
