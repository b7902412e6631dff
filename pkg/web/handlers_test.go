package web_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/dukex/botflow/pkg/engine"
	"github.com/dukex/botflow/pkg/eventbus"
	"github.com/dukex/botflow/pkg/mocks"
	"github.com/dukex/botflow/pkg/models"
	"github.com/dukex/botflow/pkg/persistence"
	"github.com/dukex/botflow/pkg/persistence/file"
	"github.com/dukex/botflow/pkg/query"
	"github.com/dukex/botflow/pkg/registry"
	"github.com/dukex/botflow/pkg/services"
	"github.com/dukex/botflow/pkg/testutil"
	"github.com/dukex/botflow/pkg/web"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type testAPI struct {
	app   *fiber.App
	store persistence.Persistence
	bus   *mocks.MockEventBus
}

func setupTestApp(t *testing.T, inbound eventbus.InboundBus) *testAPI {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	store := file.NewPersistence(t.TempDir())
	clock := clockwork.NewFakeClockAt(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))

	reg := registry.NewRegistry(logger)
	reg.RegisterDefaultNodes()

	messenger := &mocks.MockMessenger{}
	messenger.On("Send", mock.Anything, mock.Anything).Return(nil)

	bus := &mocks.MockEventBus{}
	bus.On("Publish", mock.Anything, mock.Anything, mock.Anything).Return(nil)

	eng := engine.New(logger, store, reg, query.NewExecutor(logger, store.UserRepository(), messenger, clock),
		engine.WithClock(clock), engine.WithPublisher(bus))

	handlers := web.NewAPIHandlers(
		services.NewFlow(store, reg),
		services.NewPublishing(logger, store, reg, eng, bus),
		services.NewExecution(logger, store, eng, clock),
		validator.New(validator.WithRequiredStructEnabled()),
		reg,
		eng,
		inbound,
	)

	app := fiber.New()
	handlers.Register(app)

	return &testAPI{app: app, store: store, bus: bus}
}

func (a *testAPI) do(t *testing.T, method, path string, body any) (int, []byte) {
	t.Helper()

	var reader io.Reader

	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)

		reader = bytes.NewReader(payload)
	}

	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.app.Test(req)
	require.NoError(t, err)

	defer func() {
		err := resp.Body.Close()
		if err != nil {
			t.Logf("Failed to close response body: %v", err)
		}
	}()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	return resp.StatusCode, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(data, &v), string(data))

	return v
}

func createRequest(flow *models.Flow) web.CreateFlowRequest {
	return web.CreateFlowRequest{
		ProjectID:   flow.ProjectID,
		Name:        flow.Name,
		EntryNodeID: flow.EntryNodeID,
		Nodes:       flow.Nodes,
		Connections: flow.Connections,
		Variables:   flow.Variables,
	}
}

func TestAPIHandlers_HealthCheck(t *testing.T) {
	api := setupTestApp(t, nil)

	status, body := api.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "healthy", decode[map[string]any](t, body)["status"])

	status, body = api.do(t, http.MethodGet, "/node-types", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.NotEmpty(t, decode[[]models.NodeTypeInfo](t, body))
}

func TestAPIHandlers_FlowLifecycle(t *testing.T) {
	api := setupTestApp(t, nil)

	status, body := api.do(t, http.MethodPost, "/flows", createRequest(testutil.LinearFlow()))
	require.Equal(t, http.StatusCreated, status, string(body))

	created := decode[models.Flow](t, body)
	assert.NotEmpty(t, created.ID)
	assert.Equal(t, models.FlowStatusDraft, created.Status)

	name := "Renamed flow"
	status, body = api.do(t, http.MethodPatch, "/flows/"+created.ID, web.UpdateFlowRequest{Name: &name})
	require.Equal(t, http.StatusOK, status, string(body))
	assert.Equal(t, name, decode[models.Flow](t, body).Name)
	assert.Len(t, decode[models.Flow](t, body).Nodes, 3)

	status, body = api.do(t, http.MethodPost, "/flows/"+created.ID+"/validate", nil)
	require.Equal(t, http.StatusOK, status)
	assert.True(t, decode[web.ValidationResponse](t, body).Valid)

	status, body = api.do(t, http.MethodPost, "/flows/"+created.ID+"/publish", nil)
	require.Equal(t, http.StatusCreated, status, string(body))

	version := decode[models.Version](t, body)
	assert.Equal(t, 1, version.Number)
	api.bus.AssertCalled(t, "Publish", mock.Anything, mock.Anything, mock.Anything)

	status, body = api.do(t, http.MethodGet, "/flows/"+created.ID+"/versions", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Len(t, decode[[]models.Version](t, body), 1)

	status, body = api.do(t, http.MethodGet, "/flows/"+created.ID+"/versions/active", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, version.ID, decode[models.Version](t, body).ID)

	status, body = api.do(t, http.MethodGet, "/flows?project_id=project-1", nil)
	require.Equal(t, http.StatusOK, status)
	assert.InDelta(t, 1, decode[map[string]any](t, body)["total_count"], 0)

	status, _ = api.do(t, http.MethodDelete, "/flows/"+created.ID, nil)
	assert.Equal(t, http.StatusNoContent, status)

	status, body = api.do(t, http.MethodGet, "/flows/"+created.ID, nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, string(body), "flow_not_found")
}

func TestAPIHandlers_CreateFlow_Validation(t *testing.T) {
	api := setupTestApp(t, nil)

	status, body := api.do(t, http.MethodPost, "/flows", web.CreateFlowRequest{ProjectID: "project-1"})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Contains(t, string(body), "Name")

	req := httptest.NewRequest(http.MethodPost, "/flows", bytes.NewReader([]byte("{nope")))
	req.Header.Set("Content-Type", "application/json")

	resp, err := api.app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.NoError(t, resp.Body.Close())
}

func TestAPIHandlers_PublishInvalidFlow(t *testing.T) {
	api := setupTestApp(t, nil)

	broken := testutil.LinearFlow(func(f *models.Flow) {
		f.Connections = append(f.Connections, testutil.Connect("hello", "ghost"))
	})

	status, body := api.do(t, http.MethodPost, "/flows/inspect", createRequest(broken))
	require.Equal(t, http.StatusOK, status)

	inspected := decode[web.ValidationResponse](t, body)
	assert.False(t, inspected.Valid)
	assert.NotEmpty(t, inspected.Problems)

	status, body = api.do(t, http.MethodPost, "/flows", createRequest(broken))
	require.Equal(t, http.StatusCreated, status, string(body))

	status, body = api.do(t, http.MethodPost, "/flows/"+decode[models.Flow](t, body).ID+"/publish", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, status, string(body))

	problem := decode[map[string]any](t, body)
	assert.Equal(t, "flow_invalid", problem["type"])
	assert.NotEmpty(t, problem["problems"])
}

func (a *testAPI) publish(t *testing.T, flow *models.Flow) {
	t.Helper()

	status, body := a.do(t, http.MethodPost, "/flows", createRequest(flow))
	require.Equal(t, http.StatusCreated, status, string(body))

	status, body = a.do(t, http.MethodPost, "/flows/"+decode[models.Flow](t, body).ID+"/publish", nil)
	require.Equal(t, http.StatusCreated, status, string(body))
}

func TestAPIHandlers_InboundAndExecutions(t *testing.T) {
	api := setupTestApp(t, nil)
	api.publish(t, testutil.WaitContactFlow())

	status, body := api.do(t, http.MethodPost, "/inbound", testutil.Event("project-1", "chat-1", models.EventKindCommand, "/start"))
	require.Equal(t, http.StatusOK, status, string(body))

	started := decode[web.InboundResponse](t, body)
	assert.True(t, started.Started)
	assert.Equal(t, models.ExecutionStatusWaiting, started.Status)

	status, body = api.do(t, http.MethodGet, "/executions?project_id=project-1&status=waiting", nil)
	require.Equal(t, http.StatusOK, status, string(body))
	assert.Len(t, decode[services.ListExecutionsResponse](t, body).Executions, 1)

	status, body = api.do(t, http.MethodGet, "/executions/"+started.ExecutionID, nil)
	require.Equal(t, http.StatusOK, status)

	detail := decode[services.ExecutionDetail](t, body)
	assert.Equal(t, "ask", detail.Execution.CurrentNodeID)
	assert.NotEmpty(t, detail.Steps)

	status, body = api.do(t, http.MethodPost, "/executions/"+started.ExecutionID+"/cancel", web.CancelExecutionRequest{Reason: "support took over"})
	require.Equal(t, http.StatusOK, status, string(body))

	cancelled := decode[models.Execution](t, body)
	assert.Equal(t, models.ExecutionStatusCancelled, cancelled.Status)
	assert.Equal(t, "support took over", cancelled.LastError)

	status, body = api.do(t, http.MethodPost, "/executions/"+started.ExecutionID+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, status, string(body))

	status, body = api.do(t, http.MethodPost, "/executions/"+started.ExecutionID+"/restart", services.RestartRequest{FromNodeID: "ask"})
	require.Equal(t, http.StatusOK, status, string(body))
	assert.Equal(t, models.ExecutionStatusWaiting, decode[services.ExecutionDetail](t, body).Execution.Status)

	status, _ = api.do(t, http.MethodPost, "/executions/"+started.ExecutionID+"/restart", services.RestartRequest{FromNodeID: "nowhere"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, body = api.do(t, http.MethodGet, "/executions/missing", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Contains(t, string(body), "execution_not_found")

	status, _ = api.do(t, http.MethodGet, "/executions?started_after=yesterday", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestAPIHandlers_ReceiveEvent_Invalid(t *testing.T) {
	api := setupTestApp(t, nil)

	status, _ := api.do(t, http.MethodPost, "/inbound", models.InboundEvent{ChatID: "chat-1", Kind: models.EventKindText})
	assert.Equal(t, http.StatusBadRequest, status)

	status, body := api.do(t, http.MethodPost, "/inbound", testutil.Event("project-1", "chat-1", models.EventKindText, "hi"))
	require.Equal(t, http.StatusOK, status)
	assert.Empty(t, decode[web.InboundResponse](t, body).ExecutionID)
}

func TestAPIHandlers_ReceiveEvent_Queued(t *testing.T) {
	inbound := &mocks.MockInboundBus{}
	inbound.On("PublishInbound", mock.Anything, mock.Anything).Return(nil).Once()
	inbound.On("PublishInbound", mock.Anything, mock.Anything).Return(errors.New("broker down")).Once()

	api := setupTestApp(t, inbound)
	event := testutil.Event("project-1", "chat-1", models.EventKindCommand, "/start")

	status, body := api.do(t, http.MethodPost, "/inbound", event)
	require.Equal(t, http.StatusAccepted, status)
	assert.True(t, decode[web.InboundResponse](t, body).Queued)

	status, _ = api.do(t, http.MethodPost, "/inbound", event)
	assert.Equal(t, http.StatusInternalServerError, status)

	inbound.AssertNumberOfCalls(t, "PublishInbound", 2)
}
