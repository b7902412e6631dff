package postgresql_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/dukex/botflow/pkg/models"
	"github.com/dukex/botflow/pkg/persistence"
	"github.com/dukex/botflow/pkg/persistence/postgresql"
	"github.com/dukex/botflow/pkg/testutil"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

var postgresContainer *postgres.PostgresContainer

func dropDb(ctx context.Context, t *testing.T, databaseURL string) {
	t.Helper()

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	// Drop tables in reverse dependency order (children first, parents last)
	for _, table := range []string{
		"bonus_transactions", "users", "execution_steps", "executions",
		"flow_versions", "flows", "projects", "schema_migrations",
	} {
		_, err = db.ExecContext(ctx, "DROP TABLE IF EXISTS "+table+" CASCADE")
		require.NoError(t, err)
	}

	err = db.Close()
	require.NoError(t, err)
}

func setupTestDB(t *testing.T) (*postgresql.Persistence, context.Context, string) {
	t.Helper()

	if testing.Short() {
		t.Skip("Skipping PostgreSQL test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)

	if postgresContainer == nil || !postgresContainer.IsRunning() {
		var err error

		postgresContainer, err = postgres.Run(ctx,
			"postgres:16-alpine",
			postgres.WithDatabase("botflow_test"),
			postgres.WithUsername("botflow"),
			postgres.WithPassword("botflow"),
			postgres.BasicWaitStrategies(),
		)
		require.NoError(t, err)
	}

	databaseURL, err := postgresContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	dropDb(ctx, t, databaseURL)

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	p, err := postgresql.NewPersistence(ctx, logger, databaseURL)
	require.NoError(t, err)

	t.Cleanup(func() {
		dropDb(ctx, t, databaseURL)

		err = p.Close(ctx)
		require.NoError(t, err)

		cancel()
	})

	return p, ctx, databaseURL
}

func TestNewPersistence_Migrations(t *testing.T) {
	p, ctx, databaseURL := setupTestDB(t)

	require.NoError(t, p.HealthCheck(ctx))

	db, err := sql.Open("postgres", databaseURL)
	require.NoError(t, err)

	defer func() {
		err := db.Close()
		require.NoError(t, err)
	}()

	for _, table := range []string{"flows", "flow_versions", "executions", "execution_steps", "users", "bonus_transactions"} {
		var exists bool

		err = db.QueryRowContext(ctx, `SELECT EXISTS (SELECT FROM
information_schema.tables WHERE table_name = $1)`, table).Scan(&exists)
		require.NoError(t, err)
		assert.True(t, exists, "%s table should exist", table)
	}

	var version int

	err = db.QueryRowContext(ctx, "SELECT MAX(version) FROM schema_migrations").Scan(&version)
	require.NoError(t, err)
	assert.Equal(t, 3, version)
}

func TestFlowRepository_RoundTrip(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	flow := testutil.LinearFlow()
	flow.ID = ""
	flow.Variables = map[string]models.VariableDecl{"amount": {Type: "number", Default: 10.0}}

	require.NoError(t, p.FlowRepository().Save(ctx, flow))
	assert.NotEmpty(t, flow.ID)

	got, err := p.FlowRepository().GetByID(ctx, flow.ID)
	require.NoError(t, err)
	assert.Equal(t, flow.Name, got.Name)
	assert.Equal(t, flow.EntryNodeID, got.EntryNodeID)
	require.Len(t, got.Nodes, 3)
	assert.Equal(t, "start", got.Nodes[0].ID)
	assert.Equal(t, "/start", got.Nodes[0].Settings()["command"])
	assert.Len(t, got.Connections, 2)
	assert.Equal(t, 10.0, got.Variables["amount"].Default)

	result, err := p.FlowRepository().List(ctx, persistence.ListFlowsOptions{ProjectID: flow.ProjectID})
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.TotalCount)

	require.NoError(t, p.FlowRepository().Delete(ctx, flow.ID))

	_, err = p.FlowRepository().GetByID(ctx, flow.ID)
	assert.ErrorIs(t, err, persistence.ErrFlowNotFound)
}

func TestVersionRepository_ConcurrentPublishKeepsOneActive(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	flow := testutil.LinearFlow()
	require.NoError(t, p.FlowRepository().Save(ctx, flow))

	var wg sync.WaitGroup

	for range 5 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			assert.NoError(t, p.VersionRepository().Publish(ctx, flow.Snapshot()))
		}()
	}

	wg.Wait()

	versions, err := p.VersionRepository().ListByFlow(ctx, flow.ID)
	require.NoError(t, err)
	require.Len(t, versions, 5)

	active := 0

	for i, v := range versions {
		assert.Equal(t, 5-i, v.Number)

		if v.IsActive {
			active++
		}
	}

	assert.Equal(t, 1, active)

	current, err := p.VersionRepository().ActiveByProject(ctx, flow.ProjectID)
	require.NoError(t, err)
	require.Len(t, current, 1)
	assert.Equal(t, 5, current[0].Number)

	err = p.VersionRepository().Publish(ctx, &models.Version{FlowID: "missing"})
	assert.ErrorIs(t, err, persistence.ErrFlowNotFound)
}

func TestExecutionRepository_Lifecycle(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.ExecutionRepository()
	now := time.Now().UTC().Truncate(time.Millisecond)
	deadline := now.Add(-time.Minute)

	exec := &models.Execution{
		ID:            "exec-1",
		FlowID:        "flow-1",
		VersionID:     "version-1",
		ProjectID:     "project-1",
		ChatID:        "chat-42",
		Status:        models.ExecutionStatusWaiting,
		CurrentNodeID: "ask",
		WaitType:      models.WaitTypeContact,
		WaitPayload:   map[string]any{"save_as": "contact"},
		WaitDeadline:  &deadline,
		Variables:     map[string]any{"amount": 150.0},
		StepCount:     1,
		StartedAt:     now,
		UpdatedAt:     now,
	}

	step := &models.StepLog{
		ID:          "step-1",
		ExecutionID: exec.ID,
		Index:       1,
		NodeID:      "ask",
		NodeType:    models.NodeTypeWaitContact,
		Status:      models.StepStatusCompleted,
		Variables:   exec.Variables,
		StartedAt:   now,
		FinishedAt:  now,
	}

	require.NoError(t, repo.SaveStep(ctx, exec, step))

	active, err := repo.FindActive(ctx, "project-1", "chat-42")
	require.NoError(t, err)
	assert.Equal(t, models.WaitTypeContact, active.WaitType)
	assert.Equal(t, "contact", active.WaitPayload["save_as"])
	assert.Equal(t, 150.0, active.Variables["amount"])
	require.NotNil(t, active.WaitDeadline)

	expired, err := repo.ListExpiredWaits(ctx, now, 10)
	require.NoError(t, err)
	require.Len(t, expired, 1)

	// A second live execution for the same chat violates the session index.
	dup := *exec
	dup.ID = "exec-2"
	assert.Error(t, repo.Save(ctx, &dup))

	finished := now.Add(time.Second)
	exec.Status = models.ExecutionStatusCompleted
	exec.ClearWait()
	exec.FinishedAt = &finished
	exec.StepCount = 2
	require.NoError(t, repo.SaveStep(ctx, exec, &models.StepLog{
		ID: "step-2", ExecutionID: exec.ID, Index: 2, NodeID: "thanks", Status: models.StepStatusCompleted,
		StartedAt: finished, FinishedAt: finished,
	}))

	_, err = repo.FindActive(ctx, "project-1", "chat-42")
	assert.True(t, errors.Is(err, persistence.ErrExecutionNotFound))

	steps, err := repo.ListSteps(ctx, exec.ID)
	require.NoError(t, err)
	require.Len(t, steps, 2)
	assert.Equal(t, 150.0, steps[0].Variables["amount"])

	status := models.ExecutionStatusCompleted
	result, err := repo.List(ctx, persistence.ListExecutionsOptions{FlowID: "flow-1", Status: &status, Search: "CHAT-4"})
	require.NoError(t, err)
	require.Len(t, result.Executions, 1)

	deleted, err := repo.DeleteOlderThan(ctx, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	steps, err = repo.ListSteps(ctx, exec.ID)
	require.NoError(t, err)
	assert.Empty(t, steps)
}

func TestUserRepository_BonusRules(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.UserRepository()
	now := time.Now().UTC()

	user := &models.User{ProjectID: "project-1", ChannelID: "chat-1", FirstName: "Ana"}
	require.NoError(t, repo.Create(ctx, user))

	err := repo.Create(ctx, &models.User{ProjectID: "project-1", ChannelID: "chat-1"})
	assert.ErrorIs(t, err, persistence.ErrUserAlreadyExists)

	created, err := repo.AddBonus(ctx, &models.BonusTransaction{UserID: user.ID, Amount: 100, IdempotencyKey: "welcome"})
	require.NoError(t, err)
	assert.True(t, created)

	created, err = repo.AddBonus(ctx, &models.BonusTransaction{UserID: user.ID, Amount: 100, IdempotencyKey: "welcome"})
	require.NoError(t, err)
	assert.False(t, created)

	var wg sync.WaitGroup

	for i := range 20 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_ = repo.SpendBonus(ctx, &models.BonusTransaction{
				UserID: user.ID, Amount: -10, Reason: fmt.Sprintf("spend-%d", i),
			}, now)
		}()
	}

	wg.Wait()

	txs, err := repo.ListBonus(ctx, user.ID)
	require.NoError(t, err)
	assert.Len(t, txs, 11)
	assert.Equal(t, int64(0), models.Balance(txs, now))

	err = repo.SpendBonus(ctx, &models.BonusTransaction{UserID: user.ID, Amount: -1}, now)
	assert.ErrorIs(t, err, persistence.ErrInsufficientBalance)

	user.Phone = "+5511999999999"
	require.NoError(t, repo.Update(ctx, user))

	got, err := repo.GetByChannel(ctx, "project-1", "chat-1")
	require.NoError(t, err)
	assert.Equal(t, "+5511999999999", got.Phone)

	require.NoError(t, repo.Create(ctx, &models.User{ProjectID: "project-1", ChannelID: "chat-2", ReferrerID: user.ID}))

	count, err := repo.CountReferrals(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestUserRepository_SpentGrantExpiryKeepsLaterGrants(t *testing.T) {
	p, ctx, _ := setupTestDB(t)
	repo := p.UserRepository()
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	expires := start.Add(24 * time.Hour)

	user := &models.User{ProjectID: "project-1", ChannelID: "chat-1"}
	require.NoError(t, repo.Create(ctx, user))

	_, err := repo.AddBonus(ctx, &models.BonusTransaction{UserID: user.ID, Amount: 100, ExpiresAt: &expires, CreatedAt: start})
	require.NoError(t, err)
	require.NoError(t, repo.SpendBonus(ctx, &models.BonusTransaction{UserID: user.ID, Amount: -100}, start))

	later := start.Add(48 * time.Hour)

	_, err = repo.AddBonus(ctx, &models.BonusTransaction{UserID: user.ID, Amount: 50, CreatedAt: later})
	require.NoError(t, err)

	txs, err := repo.ListBonus(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(50), models.Balance(txs, later))

	require.NoError(t, repo.SpendBonus(ctx, &models.BonusTransaction{UserID: user.ID, Amount: -50}, later))

	err = repo.SpendBonus(ctx, &models.BonusTransaction{UserID: user.ID, Amount: -1}, later)
	assert.ErrorIs(t, err, persistence.ErrInsufficientBalance)
}

func TestProjectRepository_RoundTrip(t *testing.T) {
	p, ctx, _ := setupTestDB(t)

	project := &models.Project{ID: "project-1", Name: "Coffee", Variables: map[string]any{"shop": "Central"}}
	require.NoError(t, p.ProjectRepository().Save(ctx, project))

	got, err := p.ProjectRepository().GetByID(ctx, "project-1")
	require.NoError(t, err)
	assert.Equal(t, "Central", got.Variables["shop"])

	_, err = p.ProjectRepository().GetByID(ctx, "nope")
	assert.ErrorIs(t, err, persistence.ErrProjectNotFound)
}
