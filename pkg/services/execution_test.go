package services

import (
	"testing"
	"time"

	"github.com/dukex/botflow/pkg/engine"
	"github.com/dukex/botflow/pkg/mocks"
	"github.com/dukex/botflow/pkg/models"
	"github.com/dukex/botflow/pkg/persistence"
	"github.com/dukex/botflow/pkg/persistence/file"
	"github.com/dukex/botflow/pkg/query"
	"github.com/dukex/botflow/pkg/testutil"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type executionFixture struct {
	service *Execution
	engine  *engine.Engine
	store   persistence.Persistence
	clock   *clockwork.FakeClock
}

func setupExecution(t *testing.T) *executionFixture {
	t.Helper()

	logger := testLogger()
	store := file.NewPersistence(t.TempDir())
	clock := clockwork.NewFakeClockAt(time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC))

	messenger := &mocks.MockMessenger{}
	messenger.On("Send", mock.Anything, mock.Anything).Return(nil)

	reg := testRegistry()
	eng := engine.New(logger, store, reg, query.NewExecutor(logger, store.UserRepository(), messenger, clock), engine.WithClock(clock))

	publishing := NewPublishing(logger, store, reg, eng, nil)

	for _, flow := range []*models.Flow{testutil.LinearFlow(), testutil.WaitContactFlow(func(f *models.Flow) {
		f.Nodes[0].Data.Config[models.NodeTypeTriggerCommand]["command"] = "contact"
	})} {
		require.NoError(t, store.FlowRepository().Save(t.Context(), flow))

		_, err := publishing.Publish(t.Context(), flow.ID)
		require.NoError(t, err)
	}

	return &executionFixture{
		service: NewExecution(logger, store, eng, clock),
		engine:  eng,
		store:   store,
		clock:   clock,
	}
}

func (f *executionFixture) run(t *testing.T, chatID, command string) *models.Execution {
	t.Helper()

	out, err := f.engine.HandleEvent(t.Context(), testutil.Event("project-1", chatID, models.EventKindCommand, command))
	require.NoError(t, err)
	require.NotNil(t, out.Execution)

	return out.Execution
}

func TestExecution_List(t *testing.T) {
	f := setupExecution(t)
	ctx := t.Context()

	first := f.run(t, "chat-1", "/start")
	f.clock.Advance(time.Minute)
	f.run(t, "chat-2", "/start")
	f.clock.Advance(time.Minute)
	waiting := f.run(t, "chat-3", "/contact")

	res, err := f.service.List(ctx, ListExecutionsRequest{ProjectID: "project-1"})
	require.NoError(t, err)
	require.Len(t, res.Executions, 3)
	assert.Equal(t, waiting.ID, res.Executions[0].ID, "newest first")

	status := models.ExecutionStatusWaiting

	res, err = f.service.List(ctx, ListExecutionsRequest{Status: &status})
	require.NoError(t, err)
	require.Len(t, res.Executions, 1)
	assert.Equal(t, "chat-3", res.Executions[0].ChatID)

	res, err = f.service.List(ctx, ListExecutionsRequest{FlowID: first.FlowID, Search: " chat-1 "})
	require.NoError(t, err)
	require.Len(t, res.Executions, 1)
	assert.Equal(t, first.ID, res.Executions[0].ID)

	after := first.StartedAt.Add(30 * time.Second)

	res, err = f.service.List(ctx, ListExecutionsRequest{StartedAfter: &after, Limit: 1})
	require.NoError(t, err)
	assert.Len(t, res.Executions, 1)
	assert.Equal(t, int64(2), res.TotalCount)
	assert.True(t, res.HasNextPage)
}

func TestExecution_List_InvalidRequest(t *testing.T) {
	f := setupExecution(t)

	bogus := models.ExecutionStatus("paused")

	_, err := f.service.List(t.Context(), ListExecutionsRequest{Status: &bogus})
	require.ErrorIs(t, err, ErrInvalidStatus)

	now := f.clock.Now()
	earlier := now.Add(-time.Hour)

	_, err = f.service.List(t.Context(), ListExecutionsRequest{StartedAfter: &now, StartedBefore: &earlier})
	require.ErrorIs(t, err, ErrInvalidDateRange)
	assert.True(t, IsValidationError(err))
}

func TestExecution_Get(t *testing.T) {
	f := setupExecution(t)

	exec := f.run(t, "chat-1", "/start")

	detail, err := f.service.Get(t.Context(), exec.ID)
	require.NoError(t, err)

	assert.Equal(t, models.ExecutionStatusCompleted, detail.Execution.Status)
	require.Len(t, detail.Steps, 2)
	assert.Equal(t, 1, detail.Steps[0].Index)
	assert.Equal(t, 2, detail.Steps[1].Index)

	_, err = f.service.Get(t.Context(), "missing")
	assert.True(t, persistence.IsNotFound(err))
}

func TestExecution_RestartAndCancel(t *testing.T) {
	f := setupExecution(t)
	ctx := t.Context()

	waiting := f.run(t, "chat-1", "/contact")

	_, err := f.service.Restart(ctx, waiting.ID, RestartRequest{FromNodeID: "nowhere"})
	require.ErrorIs(t, err, ErrNodeNotInVersion)
	assert.True(t, IsValidationError(err))

	cancelled, err := f.service.Cancel(ctx, waiting.ID, "  operator  ")
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusCancelled, cancelled.Status)
	assert.Equal(t, "operator", cancelled.LastError)

	_, err = f.service.Cancel(ctx, waiting.ID, "")
	assert.True(t, IsConflictError(err))

	detail, err := f.service.Restart(ctx, waiting.ID, RestartRequest{FromNodeID: "ask"})
	require.NoError(t, err)
	assert.Equal(t, models.ExecutionStatusWaiting, detail.Execution.Status)
	assert.Len(t, detail.Steps, 2)

	f.run(t, "chat-2", "/contact")

	_, err = f.service.Cancel(ctx, detail.Execution.ID, "")
	require.NoError(t, err)

	other := f.run(t, "chat-1", "/contact")
	assert.NotEqual(t, waiting.ID, other.ID)

	_, err = f.service.Restart(ctx, waiting.ID, RestartRequest{})
	assert.True(t, IsConflictError(err))
}

func TestExecution_Sweep(t *testing.T) {
	f := setupExecution(t)
	ctx := t.Context()

	old := f.run(t, "chat-1", "/start")
	f.clock.Advance(48 * time.Hour)
	recent := f.run(t, "chat-2", "/start")

	_, err := f.service.Sweep(ctx, 0)
	require.ErrorIs(t, err, ErrInvalidRetention)

	deleted, err := f.service.Sweep(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = f.service.Get(ctx, old.ID)
	assert.True(t, persistence.IsNotFound(err))

	_, err = f.service.Get(ctx, recent.ID)
	require.NoError(t, err)
}
