package file

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/dukex/botflow/pkg/models"
	"github.com/dukex/botflow/pkg/persistence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPersistence(t *testing.T) {
	// Test with regular path
	p := NewPersistence("/tmp/test")
	fp := p.(*Persistence)
	assert.Equal(t, "/tmp/test", fp.store.root)

	// Test with file:// prefix
	p = NewPersistence("file:///tmp/test")
	fp = p.(*Persistence)
	assert.Equal(t, "/tmp/test", fp.store.root)
}

func TestPersistence_HealthCheck(t *testing.T) {
	assert.NoError(t, NewPersistence(t.TempDir()).HealthCheck(t.Context()))
	assert.Error(t, NewPersistence(filepath.Join(t.TempDir(), "missing")).HealthCheck(t.Context()))
	assert.NoError(t, NewPersistence("./test-data").Close(t.Context()))
}

func TestValidateID(t *testing.T) {
	for _, id := range []string{"", "../etc/passwd", "a/b", `a\b`, ".."} {
		err := validateID(id)
		assert.ErrorIs(t, err, persistence.ErrInvalidID, id)
	}

	assert.NoError(t, validateID("0190f7e2-flow"))
}

func TestFlowRepository_SaveGetDelete(t *testing.T) {
	p := NewPersistence(t.TempDir())
	repo := p.FlowRepository()

	flow := &models.Flow{ProjectID: "project-1", Name: "Onboarding"}

	require.NoError(t, repo.Save(t.Context(), flow))
	assert.NotEmpty(t, flow.ID)
	assert.Equal(t, models.FlowStatusDraft, flow.Status)
	assert.False(t, flow.CreatedAt.IsZero())

	got, err := repo.GetByID(t.Context(), flow.ID)
	require.NoError(t, err)
	assert.Equal(t, "Onboarding", got.Name)

	require.NoError(t, p.VersionRepository().Publish(t.Context(), flow.Snapshot()))

	require.NoError(t, repo.Delete(t.Context(), flow.ID))

	_, err = repo.GetByID(t.Context(), flow.ID)
	assert.ErrorIs(t, err, persistence.ErrFlowNotFound)

	versions, err := p.VersionRepository().ListByFlow(t.Context(), flow.ID)
	require.NoError(t, err)
	assert.Empty(t, versions)

	err = repo.Delete(t.Context(), flow.ID)
	assert.ErrorIs(t, err, persistence.ErrFlowNotFound)
}

func TestFlowRepository_List(t *testing.T) {
	repo := NewPersistence(t.TempDir()).FlowRepository()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := range 5 {
		project := "project-a"
		if i%2 == 1 {
			project = "project-b"
		}

		flow := &models.Flow{
			ID:        fmt.Sprintf("flow-%d", i),
			ProjectID: project,
			Name:      fmt.Sprintf("flow %d", i),
			CreatedAt: base.Add(time.Duration(i) * time.Hour),
		}
		require.NoError(t, repo.Save(t.Context(), flow))
	}

	result, err := repo.List(t.Context(), persistence.ListFlowsOptions{ProjectID: "project-a", Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), result.TotalCount)
	assert.True(t, result.HasNextPage)
	require.Len(t, result.Flows, 2)
	assert.Equal(t, "flow-4", result.Flows[0].ID)
	assert.Equal(t, "flow-2", result.Flows[1].ID)

	result, err = repo.List(t.Context(), persistence.ListFlowsOptions{ProjectID: "project-a", Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.False(t, result.HasNextPage)
	require.Len(t, result.Flows, 1)
	assert.Equal(t, "flow-0", result.Flows[0].ID)

	result, err = repo.List(t.Context(), persistence.ListFlowsOptions{Offset: 50})
	require.NoError(t, err)
	assert.Empty(t, result.Flows)
	assert.Equal(t, int64(5), result.TotalCount)
}

func TestVersionRepository_PublishKeepsOneActive(t *testing.T) {
	p := NewPersistence(t.TempDir())
	flow := &models.Flow{ID: "flow-1", ProjectID: "project-1", Name: "Flow one"}
	require.NoError(t, p.FlowRepository().Save(t.Context(), flow))

	versions := p.VersionRepository()

	for range 3 {
		require.NoError(t, versions.Publish(t.Context(), flow.Snapshot()))
	}

	list, err := versions.ListByFlow(t.Context(), "flow-1")
	require.NoError(t, err)
	require.Len(t, list, 3)

	active := 0

	for _, v := range list {
		if v.IsActive {
			active++
		}
	}

	assert.Equal(t, 1, active)
	assert.Equal(t, 3, list[0].Number)
	assert.True(t, list[0].IsActive)

	current, err := versions.Active(t.Context(), "flow-1")
	require.NoError(t, err)
	assert.Equal(t, list[0].ID, current.ID)

	_, err = versions.Active(t.Context(), "unknown")
	assert.ErrorIs(t, err, persistence.ErrVersionNotFound)
}

func TestVersionRepository_ActiveByProjectOrder(t *testing.T) {
	p := NewPersistence(t.TempDir())
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	newer := &models.Flow{ID: "newer", ProjectID: "project-1", Name: "Newer", CreatedAt: base.Add(time.Hour)}
	older := &models.Flow{ID: "older", ProjectID: "project-1", Name: "Older", CreatedAt: base}
	other := &models.Flow{ID: "other", ProjectID: "project-2", Name: "Other", CreatedAt: base}

	for _, f := range []*models.Flow{newer, older, other} {
		require.NoError(t, p.FlowRepository().Save(t.Context(), f))
		require.NoError(t, p.VersionRepository().Publish(t.Context(), f.Snapshot()))
	}

	active, err := p.VersionRepository().ActiveByProject(t.Context(), "project-1")
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, "older", active[0].FlowID)
	assert.Equal(t, "newer", active[1].FlowID)
}

func newExecution(id, chatID string, status models.ExecutionStatus, started time.Time) *models.Execution {
	return &models.Execution{
		ID:        id,
		FlowID:    "flow-1",
		ProjectID: "project-1",
		ChatID:    chatID,
		Status:    status,
		Variables: map[string]any{},
		StartedAt: started,
		UpdatedAt: started,
	}
}

func TestExecutionRepository_StepsAndActive(t *testing.T) {
	repo := NewPersistence(t.TempDir()).ExecutionRepository()
	now := time.Now().UTC()

	_, err := repo.FindActive(t.Context(), "project-1", "chat-1")
	require.ErrorIs(t, err, persistence.ErrExecutionNotFound)

	exec := newExecution("exec-1", "chat-1", models.ExecutionStatusRunning, now)

	for i := 1; i <= 3; i++ {
		exec.StepCount = i
		step := &models.StepLog{ID: fmt.Sprintf("step-%d", i), ExecutionID: exec.ID, Index: i, NodeID: "n", Status: models.StepStatusCompleted}
		require.NoError(t, repo.SaveStep(t.Context(), exec, step))
	}

	// Replaying an index overwrites the step.
	require.NoError(t, repo.SaveStep(t.Context(), exec, &models.StepLog{ID: "step-3b", ExecutionID: exec.ID, Index: 3}))

	steps, err := repo.ListSteps(t.Context(), exec.ID)
	require.NoError(t, err)
	require.Len(t, steps, 3)
	assert.Equal(t, []int{1, 2, 3}, []int{steps[0].Index, steps[1].Index, steps[2].Index})
	assert.Equal(t, "step-3b", steps[2].ID)

	active, err := repo.FindActive(t.Context(), "project-1", "chat-1")
	require.NoError(t, err)
	assert.Equal(t, 3, active.StepCount)

	exec.Status = models.ExecutionStatusCompleted
	require.NoError(t, repo.Save(t.Context(), exec))

	_, err = repo.FindActive(t.Context(), "project-1", "chat-1")
	assert.ErrorIs(t, err, persistence.ErrExecutionNotFound)
}

func TestExecutionRepository_ListFilters(t *testing.T) {
	repo := NewPersistence(t.TempDir()).ExecutionRepository()
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Save(t.Context(), newExecution("exec-a", "chat-100", models.ExecutionStatusCompleted, base)))
	require.NoError(t, repo.Save(t.Context(), newExecution("exec-b", "chat-200", models.ExecutionStatusWaiting, base.Add(time.Hour))))
	require.NoError(t, repo.Save(t.Context(), newExecution("exec-c", "chat-300", models.ExecutionStatusFailed, base.Add(2*time.Hour))))

	result, err := repo.List(t.Context(), persistence.ListExecutionsOptions{FlowID: "flow-1"})
	require.NoError(t, err)
	require.Len(t, result.Executions, 3)
	assert.Equal(t, "exec-c", result.Executions[0].ID)

	status := models.ExecutionStatusWaiting
	result, err = repo.List(t.Context(), persistence.ListExecutionsOptions{Status: &status})
	require.NoError(t, err)
	require.Len(t, result.Executions, 1)
	assert.Equal(t, "exec-b", result.Executions[0].ID)

	after := base.Add(30 * time.Minute)
	result, err = repo.List(t.Context(), persistence.ListExecutionsOptions{StartedAfter: &after})
	require.NoError(t, err)
	assert.Len(t, result.Executions, 2)

	result, err = repo.List(t.Context(), persistence.ListExecutionsOptions{Search: "CHAT-2"})
	require.NoError(t, err)
	require.Len(t, result.Executions, 1)
	assert.Equal(t, "exec-b", result.Executions[0].ID)
}

func TestExecutionRepository_ExpiredWaitsAndRetention(t *testing.T) {
	root := t.TempDir()
	repo := NewPersistence(root).ExecutionRepository()
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	due := now.Add(-time.Minute)
	later := now.Add(time.Hour)

	waiting := newExecution("exec-due", "chat-1", models.ExecutionStatusWaiting, now)
	waiting.WaitDeadline = &due
	pending := newExecution("exec-later", "chat-2", models.ExecutionStatusWaiting, now)
	pending.WaitDeadline = &later

	require.NoError(t, repo.Save(t.Context(), waiting))
	require.NoError(t, repo.Save(t.Context(), pending))

	expired, err := repo.ListExpiredWaits(t.Context(), now, 10)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, "exec-due", expired[0].ID)

	old := newExecution("exec-old", "chat-3", models.ExecutionStatusCompleted, now.AddDate(0, 0, -40))
	require.NoError(t, repo.SaveStep(t.Context(), old, &models.StepLog{ID: "s1", ExecutionID: old.ID, Index: 1}))

	deleted, err := repo.DeleteOlderThan(t.Context(), now.AddDate(0, 0, -30))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	_, err = os.Stat(filepath.Join(root, "steps", "exec-old"))
	assert.True(t, os.IsNotExist(err))

	_, err = repo.GetByID(t.Context(), "exec-old")
	assert.ErrorIs(t, err, persistence.ErrExecutionNotFound)
}

func TestUserRepository_BonusLedger(t *testing.T) {
	repo := NewPersistence(t.TempDir()).UserRepository()
	now := time.Now().UTC()

	user := &models.User{ProjectID: "project-1", ChannelID: "chat-1", FirstName: "Ana"}
	require.NoError(t, repo.Create(t.Context(), user))

	err := repo.Create(t.Context(), &models.User{ProjectID: "project-1", ChannelID: "chat-1"})
	assert.ErrorIs(t, err, persistence.ErrUserAlreadyExists)

	found, err := repo.GetByChannel(t.Context(), "project-1", "chat-1")
	require.NoError(t, err)
	assert.Equal(t, user.ID, found.ID)

	created, err := repo.AddBonus(t.Context(), &models.BonusTransaction{UserID: user.ID, Amount: 100, IdempotencyKey: "welcome"})
	require.NoError(t, err)
	assert.True(t, created)

	created, err = repo.AddBonus(t.Context(), &models.BonusTransaction{UserID: user.ID, Amount: 100, IdempotencyKey: "welcome"})
	require.NoError(t, err)
	assert.False(t, created)

	err = repo.SpendBonus(t.Context(), &models.BonusTransaction{UserID: user.ID, Amount: -150}, now)
	assert.ErrorIs(t, err, persistence.ErrInsufficientBalance)

	require.NoError(t, repo.SpendBonus(t.Context(), &models.BonusTransaction{UserID: user.ID, Amount: -60}, now))

	txs, err := repo.ListBonus(t.Context(), user.ID)
	require.NoError(t, err)
	assert.Len(t, txs, 2)
	assert.Equal(t, int64(40), models.Balance(txs, now))

	require.NoError(t, repo.Create(t.Context(), &models.User{ProjectID: "project-1", ChannelID: "chat-2", ReferrerID: user.ID}))

	referrals, err := repo.CountReferrals(t.Context(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), referrals)
}

func TestUserRepository_ConcurrentSpendNeverNegative(t *testing.T) {
	repo := NewPersistence(t.TempDir()).UserRepository()
	now := time.Now().UTC()

	user := &models.User{ProjectID: "project-1", ChannelID: "chat-1"}
	require.NoError(t, repo.Create(t.Context(), user))

	_, err := repo.AddBonus(t.Context(), &models.BonusTransaction{UserID: user.ID, Amount: 50})
	require.NoError(t, err)

	var wg sync.WaitGroup

	for range 10 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_ = repo.SpendBonus(t.Context(), &models.BonusTransaction{UserID: user.ID, Amount: -10}, now)
		}()
	}

	wg.Wait()

	txs, err := repo.ListBonus(t.Context(), user.ID)
	require.NoError(t, err)
	assert.Len(t, txs, 6)
	assert.Equal(t, int64(0), models.Balance(txs, now))
}

func TestUserRepository_SpentGrantExpiryKeepsLaterGrants(t *testing.T) {
	repo := NewPersistence(t.TempDir()).UserRepository()
	start := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	expires := start.Add(24 * time.Hour)

	user := &models.User{ProjectID: "project-1", ChannelID: "chat-1"}
	require.NoError(t, repo.Create(t.Context(), user))

	_, err := repo.AddBonus(t.Context(), &models.BonusTransaction{UserID: user.ID, Amount: 100, ExpiresAt: &expires, CreatedAt: start})
	require.NoError(t, err)
	require.NoError(t, repo.SpendBonus(t.Context(), &models.BonusTransaction{UserID: user.ID, Amount: -100}, start))

	later := start.Add(48 * time.Hour)

	_, err = repo.AddBonus(t.Context(), &models.BonusTransaction{UserID: user.ID, Amount: 50, CreatedAt: later})
	require.NoError(t, err)

	txs, err := repo.ListBonus(t.Context(), user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(50), models.Balance(txs, later))

	require.NoError(t, repo.SpendBonus(t.Context(), &models.BonusTransaction{UserID: user.ID, Amount: -50}, later))

	err = repo.SpendBonus(t.Context(), &models.BonusTransaction{UserID: user.ID, Amount: -1}, later)
	assert.ErrorIs(t, err, persistence.ErrInsufficientBalance)
}
