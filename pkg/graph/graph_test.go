package graph_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/dukex/botflow/pkg/graph"
	"github.com/dukex/botflow/pkg/models"
	"github.com/dukex/botflow/pkg/registry"
	"github.com/dukex/botflow/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRegistry() *registry.Registry {
	r := registry.NewRegistry(slog.Default())
	r.RegisterDefaultNodes()

	return r
}

func codes(problems []graph.Problem, sev graph.Severity) []string {
	var out []string

	for _, p := range problems {
		if p.Severity == sev {
			out = append(out, p.Code)
		}
	}

	return out
}

func TestValidate_CleanFlows(t *testing.T) {
	for name, flow := range map[string]*models.Flow{
		"linear":    testutil.LinearFlow(),
		"wait":      testutil.WaitContactFlow(),
		"condition": testutil.ConditionFlow(),
	} {
		t.Run(name, func(t *testing.T) {
			problems := graph.Validate(context.Background(), graph.FromFlow(flow), newRegistry())
			assert.Empty(t, problems)
		})
	}
}

func TestValidate_DanglingConnection(t *testing.T) {
	flow := testutil.LinearFlow()
	flow.Connections = append(flow.Connections, testutil.Connect("hello", "ghost", "error"))

	problems := graph.Validate(context.Background(), graph.FromFlow(flow), newRegistry())
	assert.True(t, graph.HasErrors(problems))
	assert.Contains(t, codes(problems, graph.SeverityError), graph.CodeDanglingEdge)
}

func TestValidate_MissingRequiredHandle(t *testing.T) {
	flow := testutil.ConditionFlow()
	flow.Connections = flow.Connections[:2]

	problems := graph.Validate(context.Background(), graph.FromFlow(flow), newRegistry())
	require.True(t, graph.HasErrors(problems))

	var found bool

	for _, p := range graph.Errors(problems) {
		if p.Code == graph.CodeMissingHandle && p.NodeID == "check" {
			found = true
		}
	}

	assert.True(t, found, "expected missing false handle on check: %+v", problems)
	assert.Contains(t, codes(problems, graph.SeverityWarning), graph.CodeUnreachable)
}

func TestValidate_StructuralErrors(t *testing.T) {
	flow := testutil.CreateTestFlow(testutil.WithGraph("missing",
		[]*models.Node{
			testutil.CreateTestNode("a", models.NodeTypeSendMessage, map[string]any{"text": "x"}),
			testutil.CreateTestNode("a", models.NodeTypeSendMessage, map[string]any{"text": "y"}),
			testutil.CreateTestNode("b", "action.unknown", nil),
			testutil.CreateTestNode("j", models.NodeTypeJump, map[string]any{"target": "nowhere"}),
		},
		testutil.Connect("a", "b"),
		testutil.Connect("a", "j"),
	))

	errs := codes(graph.Validate(context.Background(), graph.FromFlow(flow), newRegistry()), graph.SeverityError)

	assert.Contains(t, errs, graph.CodeMissingEntry)
	assert.Contains(t, errs, graph.CodeNoTrigger)
	assert.Contains(t, errs, graph.CodeDuplicateNode)
	assert.Contains(t, errs, graph.CodeInvalidNode)
	assert.Contains(t, errs, graph.CodeAmbiguousEdge)
	assert.Contains(t, errs, graph.CodeBadReference)
}

func TestValidate_Cycles(t *testing.T) {
	flow := testutil.CreateTestFlow(testutil.WithGraph("start",
		[]*models.Node{
			testutil.CreateTestNode("start", models.NodeTypeTriggerCommand, map[string]any{"command": "start"}),
			testutil.CreateTestNode("loop", models.NodeTypeSetVariable, map[string]any{"increments": map[string]any{"n": 1}}),
			testutil.CreateTestNode("back", models.NodeTypeJump, map[string]any{"target": "loop"}),
		},
		testutil.Connect("start", "loop"),
		testutil.Connect("loop", "back"),
	))

	problems := graph.Validate(context.Background(), graph.FromFlow(flow), newRegistry())
	assert.False(t, graph.HasErrors(problems))
	assert.Contains(t, codes(problems, graph.SeverityWarning), graph.CodeCycleWithoutWait)

	flow.Connections = append(flow.Connections, testutil.Connect("loop", "start", "error"))
	problems = graph.Validate(context.Background(), graph.FromFlow(flow), newRegistry())
	assert.Contains(t, codes(problems, graph.SeverityError), graph.CodeTriggerCycle)
}

func TestValidate_UndeclaredHandleWarning(t *testing.T) {
	flow := testutil.LinearFlow()
	flow.Nodes = append(flow.Nodes, testutil.CreateTestNode("after", models.NodeTypeEnd, nil))
	flow.Connections = append(flow.Connections, testutil.Connect("done", "after"))

	problems := graph.Validate(context.Background(), graph.FromFlow(flow), newRegistry())
	assert.False(t, graph.HasErrors(problems))
	assert.Contains(t, codes(problems, graph.SeverityWarning), graph.CodeUndeclaredHandle)
}

func TestProgram_Next(t *testing.T) {
	flow := testutil.ConditionFlow()
	flow.Connections = append(flow.Connections, testutil.Connect("big", "small"), testutil.Connect("big", "check"))

	version := flow.Snapshot()
	program := graph.Compile(context.Background(), version, newRegistry())

	next, err := program.Next("check", models.HandleTrue)
	require.NoError(t, err)
	assert.Equal(t, "big", next)

	next, err = program.Next("small", models.HandleDefault)
	require.NoError(t, err)
	assert.Empty(t, next, "unconnected default handle is a leaf")

	_, err = program.Next("small", models.HandleError)
	assert.True(t, errors.Is(err, graph.ErrMissingEdge))

	_, err = program.Next("big", models.HandleDefault)
	assert.True(t, errors.Is(err, graph.ErrAmbiguousEdge))

	require.Len(t, program.Triggers(), 1)
	assert.Equal(t, "start", program.Triggers()[0].Node.ID)
}

func TestCompile_KeepsBrokenNodes(t *testing.T) {
	flow := testutil.LinearFlow()
	flow.Nodes[1].Type = "action.removed"

	program := graph.Compile(context.Background(), flow.Snapshot(), newRegistry())

	c, ok := program.Node("hello")
	require.True(t, ok)
	assert.ErrorIs(t, c.Err, registry.ErrUnknownNodeType)

	c, ok = program.Node("start")
	require.True(t, ok)
	assert.NoError(t, c.Err)
}

func TestDecodeFlowYAML(t *testing.T) {
	doc := []byte(`
project_id: p1
name: Onboarding
entry_node_id: start
nodes:
  - id: start
    type: trigger.command
    data:
      label: Start
      config:
        trigger.command:
          command: /start
  - id: hello
    type: action.send_message
    data:
      config:
        action.send_message:
          text: "Hi {event.first_name}"
connections:
  - id: c1
    source: start
    target: hello
variables:
  amount:
    default: 10
`)

	flow, err := graph.DecodeFlowFile("onboarding.yaml", doc)
	require.NoError(t, err)
	assert.Equal(t, "Onboarding", flow.Name)
	require.Len(t, flow.Nodes, 2)
	assert.Equal(t, "/start", flow.Nodes[0].Settings()["command"])
	assert.Equal(t, float64(10), flow.Variables["amount"].Default)

	problems := graph.Validate(context.Background(), graph.FromFlow(flow), newRegistry())
	assert.False(t, graph.HasErrors(problems), "%+v", problems)

	_, err = graph.DecodeFlowFile("bad.json", []byte(`{"nodes": [], "bogus": 1}`))
	require.Error(t, err)
}
