package control

import (
	"context"
	"testing"

	"github.com/dukex/botflow/pkg/models"
	"github.com/dukex/botflow/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ctrlNode(typ string, cfg map[string]any) *models.Node {
	return &models.Node{ID: "c", Type: typ, Data: models.NodeData{Config: map[string]map[string]any{typ: cfg}}}
}

func TestJumpNode(t *testing.T) {
	n, err := NewJumpNode(ctrlNode(models.NodeTypeJump, map[string]any{"target": "menu"}))
	require.NoError(t, err)

	res, err := n.Enter(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "menu", res.Target)
	assert.Equal(t, []string{"menu"}, n.References())

	_, err = NewJumpNode(ctrlNode(models.NodeTypeJump, map[string]any{"target": "c"}))
	require.Error(t, err)
}

func TestSubflowNode(t *testing.T) {
	n, err := NewSubflowNode(ctrlNode(models.NodeTypeSubflow, map[string]any{"flow_id": "f-2"}))
	require.NoError(t, err)

	res, err := n.Enter(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, protocol.ResultAdvance, res.Kind)
	assert.Equal(t, "f-2", res.Data["subflow_id"])
}

func TestEndNode(t *testing.T) {
	rt := &protocol.Runtime{Variables: protocol.NewVariables(map[string]any{"reason": "blocked"}, nil, nil)}

	ok, err := NewEndNode(ctrlNode(models.NodeTypeEnd, nil))
	require.NoError(t, err)

	res, err := ok.Enter(context.Background(), rt)
	require.NoError(t, err)
	assert.Equal(t, protocol.ResultTerminate, res.Kind)
	assert.True(t, res.Success)

	fail, err := NewEndNode(ctrlNode(models.NodeTypeEnd, map[string]any{"status": "failure", "message": "user {reason}"}))
	require.NoError(t, err)

	res, err = fail.Enter(context.Background(), rt)
	require.NoError(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, "user blocked", res.Message)

	_, err = NewEndNode(ctrlNode(models.NodeTypeEnd, map[string]any{"status": "maybe"}))
	require.Error(t, err)
}
