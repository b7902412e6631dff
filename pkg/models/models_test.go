package models

import (
	"errors"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConnection_Validation_MissingFields(t *testing.T) {
	testCases := []struct {
		name       string
		connection *Connection
		fieldName  string
	}{
		{
			name:       "missing source",
			connection: &Connection{ID: "c1", Target: "n2"},
			fieldName:  "Source",
		},
		{
			name:       "missing target",
			connection: &Connection{ID: "c1", Source: "n1"},
			fieldName:  "Target",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := validator.New().Struct(tc.connection)
			require.Error(t, err)

			var validationErrors validator.ValidationErrors
			require.True(t, errors.As(err, &validationErrors))
			assert.Equal(t, tc.fieldName, validationErrors[0].Field())
			assert.Equal(t, "required", validationErrors[0].Tag())
		})
	}
}

func TestNode_Settings(t *testing.T) {
	node := &Node{
		ID:   "n1",
		Type: NodeTypeSendMessage,
		Data: NodeData{Config: map[string]map[string]any{
			NodeTypeSendMessage: {"text": "hi"},
			NodeTypeSetVariable: {"name": "x"},
		}},
	}

	assert.Equal(t, map[string]any{"text": "hi"}, node.Settings())

	node.Type = NodeTypeEnd
	assert.Empty(t, node.Settings())
}

func TestNode_Category(t *testing.T) {
	cases := map[string]CategoryType{
		NodeTypeTriggerCommand: CategoryTypeTrigger,
		NodeTypeSendMessage:    CategoryTypeAction,
		NodeTypeCondition:      CategoryTypeCondition,
		NodeTypeSwitch:         CategoryTypeCondition,
		NodeTypeWaitContact:    CategoryTypeFlowControl,
		NodeTypeEnd:            CategoryTypeFlowControl,
	}

	for typ, want := range cases {
		n := &Node{ID: "x", Type: typ}
		assert.Equal(t, want, n.Category(), typ)
	}
}

func TestFlow_Snapshot_IsIndependent(t *testing.T) {
	flow := &Flow{
		ID:          "flow-1",
		ProjectID:   "p1",
		EntryNodeID: "start",
		Nodes: []*Node{{
			ID:   "start",
			Type: NodeTypeTriggerCommand,
			Data: NodeData{Config: map[string]map[string]any{NodeTypeTriggerCommand: {"command": "start"}}},
		}},
		Connections: []*Connection{{ID: "c1", Source: "start", Target: "end"}},
		Variables:   map[string]VariableDecl{"amount": {Default: 1}},
	}

	version := flow.Snapshot()
	flow.Nodes[0].Data.Config[NodeTypeTriggerCommand]["command"] = "help"
	flow.Connections[0].Target = "other"
	flow.Variables["amount"] = VariableDecl{Default: 2}

	assert.Equal(t, "flow-1", version.FlowID)
	assert.Equal(t, "start", version.EntryNodeID)
	assert.Equal(t, "start", version.Nodes[0].Settings()["command"])
	assert.Equal(t, "end", version.Connections[0].Target)
	assert.Equal(t, 1, version.Variables["amount"].Default)
	assert.False(t, version.IsActive)
}

func TestInboundEvent_Command(t *testing.T) {
	ev := &InboundEvent{Kind: EventKindCommand, Text: "/Start@my_bot ref123 extra"}
	name, args := ev.Command()
	assert.Equal(t, "start", name)
	assert.Equal(t, []string{"ref123", "extra"}, args)

	text := &InboundEvent{Kind: EventKindText, Text: "/start"}
	name, args = text.Command()
	assert.Empty(t, name)
	assert.Nil(t, args)
}

func TestInboundEvent_Validation(t *testing.T) {
	validate := validator.New(validator.WithRequiredStructEnabled())

	ok := &InboundEvent{ProjectID: "p", ChatID: "c", Kind: EventKindContact, Contact: &Contact{PhoneNumber: "+1"}}
	require.NoError(t, validate.Struct(ok))

	missingContact := &InboundEvent{ProjectID: "p", ChatID: "c", Kind: EventKindContact}
	require.Error(t, validate.Struct(missingContact))

	badKind := &InboundEvent{ProjectID: "p", ChatID: "c", Kind: "sticker"}
	require.Error(t, validate.Struct(badKind))
}

func TestBalance(t *testing.T) {
	now := time.Date(2025, 1, 10, 0, 0, 0, 0, time.UTC)
	created := now.Add(-48 * time.Hour)
	past := now.Add(-time.Hour)
	soon := now.Add(3 * 24 * time.Hour)
	later := now.Add(30 * 24 * time.Hour)

	txs := []*BonusTransaction{
		{Amount: 100, CreatedAt: created},
		{Amount: 50, ExpiresAt: &past, CreatedAt: created},
		{Amount: 30, ExpiresAt: &soon, CreatedAt: created},
		{Amount: 20, ExpiresAt: &later, CreatedAt: created},
		{Amount: -40, CreatedAt: now.Add(-30 * time.Minute)},
	}

	// The spend came after the 50 expired, so it draws from the 30 and then
	// from the 20.
	assert.Equal(t, int64(110), Balance(txs, now))
	assert.Equal(t, int64(0), ExpiringWithin(txs, now, 7*24*time.Hour))
	assert.Equal(t, int64(0), Balance([]*BonusTransaction{{Amount: -5}}, now))
}

func TestBalance_SpendDrawsSoonestExpiryFirst(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	short := start.Add(24 * time.Hour)
	long := start.Add(10 * 24 * time.Hour)

	txs := []*BonusTransaction{
		{Amount: 100, CreatedAt: start},
		{Amount: 40, ExpiresAt: &long, CreatedAt: start},
		{Amount: 30, ExpiresAt: &short, CreatedAt: start},
		{Amount: -50, CreatedAt: start.Add(time.Hour)},
	}

	at := start.Add(2 * time.Hour)
	assert.Equal(t, int64(120), Balance(txs, at))
	assert.Equal(t, int64(20), ExpiringWithin(txs, at, 30*24*time.Hour))

	// The short grant was fully spent, so its expiry costs nothing.
	assert.Equal(t, int64(120), Balance(txs, start.Add(48*time.Hour)))
	assert.Equal(t, int64(100), Balance(txs, start.Add(11*24*time.Hour)))
}

func TestBalance_SpentGrantExpiringDoesNotEatLaterGrants(t *testing.T) {
	start := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	expires := start.Add(24 * time.Hour)

	txs := []*BonusTransaction{
		{Amount: 100, ExpiresAt: &expires, CreatedAt: start},
		{Amount: -100, CreatedAt: start},
	}

	assert.Equal(t, int64(0), Balance(txs, start))
	assert.Equal(t, int64(0), ExpiringWithin(txs, start, 7*24*time.Hour))

	later := start.Add(48 * time.Hour)
	txs = append(txs, &BonusTransaction{Amount: 50, CreatedAt: later})

	assert.Equal(t, int64(50), Balance(txs, later))
}

func TestExecutionStatus(t *testing.T) {
	assert.True(t, ExecutionStatusWaiting.IsActive())
	assert.True(t, ExecutionStatusRunning.IsActive())
	assert.False(t, ExecutionStatusCompleted.IsActive())
	assert.True(t, ExecutionStatusCancelled.IsTerminal())
	assert.False(t, ExecutionStatusWaiting.IsTerminal())
}
