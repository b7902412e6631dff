package query

import (
	"context"
	"errors"
	"testing"

	"github.com/dukex/botflow/pkg/mocks"
	"github.com/dukex/botflow/pkg/models"
	"github.com/dukex/botflow/pkg/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func queryNode(t *testing.T, cfg map[string]any) *DatabaseQueryNode {
	t.Helper()

	n, err := NewDatabaseQueryNode(&models.Node{
		ID:   "q",
		Type: models.NodeTypeDatabaseQuery,
		Data: models.NodeData{Config: map[string]map[string]any{models.NodeTypeDatabaseQuery: cfg}},
	})
	require.NoError(t, err)

	return n
}

func TestDatabaseQueryNode_SavesResult(t *testing.T) {
	queries := &mocks.MockQueryRunner{}
	queries.On("Run", mock.Anything, models.QueryAddBonus, map[string]any{
		"amount": 100,
		"reason": "welcome for c1",
	}).Return(map[string]any{"balance": int64(100)}, nil)

	n := queryNode(t, map[string]any{
		"query":   models.QueryAddBonus,
		"params":  map[string]any{"amount": "{bonus}", "reason": "welcome for {event.chat_id}"},
		"save_as": "grant",
	})

	rt := &protocol.Runtime{
		Variables: protocol.NewVariables(map[string]any{"bonus": 100, "event.chat_id": "c1"}, nil, nil),
		Queries:   queries,
	}

	res, err := n.Execute(context.Background(), rt)
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"grant": map[string]any{"balance": int64(100)}}, res.Variables)
	queries.AssertExpectations(t)
}

func TestDatabaseQueryNode_Failure(t *testing.T) {
	queries := &mocks.MockQueryRunner{}
	queries.On("Run", mock.Anything, models.QuerySpendBonus, map[string]any{}).Return(nil, errors.New("insufficient balance"))

	n := queryNode(t, map[string]any{"query": models.QuerySpendBonus})

	_, err := n.Execute(context.Background(), &protocol.Runtime{Variables: protocol.NewVariables(nil, nil, nil), Queries: queries})
	require.EqualError(t, err, "insufficient balance")
}
