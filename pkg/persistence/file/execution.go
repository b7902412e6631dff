package file

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dukex/botflow/pkg/models"
	"github.com/dukex/botflow/pkg/persistence"
)

const (
	executionsDir = "executions"
	stepsDir      = "steps"
)

// ExecutionRepository handles execution and step log file operations.
// Steps live in one directory per execution, one file per step index.
type ExecutionRepository struct {
	store *store
}

func stepKind(executionID string) string {
	return filepath.Join(stepsDir, executionID)
}

func stepName(index int) string {
	return fmt.Sprintf("%08d", index)
}

func (er *ExecutionRepository) GetByID(_ context.Context, id string) (*models.Execution, error) {
	er.store.mu.RLock()
	defer er.store.mu.RUnlock()

	var execution models.Execution

	found, err := er.store.read(executionsDir, id, &execution)
	if err != nil {
		return nil, persistence.NewExecutionError("GetByID", id, err)
	}

	if !found {
		return nil, persistence.NewExecutionError("GetByID", id, persistence.ErrExecutionNotFound)
	}

	return &execution, nil
}

func (er *ExecutionRepository) FindActive(_ context.Context, projectID, chatID string) (*models.Execution, error) {
	er.store.mu.RLock()
	defer er.store.mu.RUnlock()

	all, err := readAll[models.Execution](er.store, executionsDir)
	if err != nil {
		return nil, persistence.NewExecutionError("FindActive", "", err)
	}

	var latest *models.Execution

	for _, e := range all {
		if e.ProjectID != projectID || e.ChatID != chatID || !e.Status.IsActive() {
			continue
		}

		if latest == nil || e.StartedAt.After(latest.StartedAt) {
			latest = e
		}
	}

	if latest == nil {
		return nil, persistence.NewExecutionError("FindActive", "", persistence.ErrExecutionNotFound)
	}

	return latest, nil
}

func (er *ExecutionRepository) Save(_ context.Context, execution *models.Execution) error {
	er.store.mu.Lock()
	defer er.store.mu.Unlock()

	err := er.store.write(executionsDir, execution.ID, execution)
	if err != nil {
		return persistence.NewExecutionError("Save", execution.ID, err)
	}

	return nil
}

// SaveStep writes the step before the execution. A step file is keyed by its
// index, so replaying an interrupted write overwrites instead of duplicating.
func (er *ExecutionRepository) SaveStep(_ context.Context, execution *models.Execution, step *models.StepLog) error {
	er.store.mu.Lock()
	defer er.store.mu.Unlock()

	err := validateID(execution.ID)
	if err != nil {
		return persistence.NewExecutionError("SaveStep", execution.ID, err)
	}

	err = er.store.write(stepKind(execution.ID), stepName(step.Index), step)
	if err != nil {
		return persistence.NewExecutionError("SaveStep", execution.ID, err)
	}

	err = er.store.write(executionsDir, execution.ID, execution)
	if err != nil {
		return persistence.NewExecutionError("SaveStep", execution.ID, err)
	}

	return nil
}

func (er *ExecutionRepository) ListSteps(_ context.Context, executionID string) ([]*models.StepLog, error) {
	er.store.mu.RLock()
	defer er.store.mu.RUnlock()

	err := validateID(executionID)
	if err != nil {
		return nil, persistence.NewExecutionError("ListSteps", executionID, err)
	}

	steps, err := readAll[models.StepLog](er.store, stepKind(executionID))
	if err != nil {
		return nil, persistence.NewExecutionError("ListSteps", executionID, err)
	}

	sort.Slice(steps, func(i, j int) bool { return steps[i].Index < steps[j].Index })

	return steps, nil
}

func (er *ExecutionRepository) List(_ context.Context, opts persistence.ListExecutionsOptions) (*persistence.ExecutionListResult, error) {
	er.store.mu.RLock()
	defer er.store.mu.RUnlock()

	all, err := readAll[models.Execution](er.store, executionsDir)
	if err != nil {
		return nil, persistence.NewExecutionError("List", "", err)
	}

	search := strings.ToLower(opts.Search)
	filtered := make([]*models.Execution, 0, len(all))

	for _, e := range all {
		if !matches(e, opts, search) {
			continue
		}

		filtered = append(filtered, e)
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].StartedAt.After(filtered[j].StartedAt)
	})

	executions, hasNext := page(filtered, opts.Limit, opts.Offset)

	return &persistence.ExecutionListResult{
		Executions:  executions,
		TotalCount:  int64(len(filtered)),
		HasNextPage: hasNext,
	}, nil
}

func matches(e *models.Execution, opts persistence.ListExecutionsOptions, search string) bool {
	switch {
	case opts.ProjectID != "" && e.ProjectID != opts.ProjectID:
		return false
	case opts.FlowID != "" && e.FlowID != opts.FlowID:
		return false
	case opts.Status != nil && e.Status != *opts.Status:
		return false
	case opts.StartedAfter != nil && e.StartedAt.Before(*opts.StartedAfter):
		return false
	case opts.StartedBefore != nil && e.StartedAt.After(*opts.StartedBefore):
		return false
	}

	if search == "" {
		return true
	}

	for _, field := range []string{e.ID, e.ChatID, e.UserID} {
		if strings.Contains(strings.ToLower(field), search) {
			return true
		}
	}

	return false
}

func (er *ExecutionRepository) ListExpiredWaits(_ context.Context, now time.Time, limit int) ([]*models.Execution, error) {
	er.store.mu.RLock()
	defer er.store.mu.RUnlock()

	all, err := readAll[models.Execution](er.store, executionsDir)
	if err != nil {
		return nil, persistence.NewExecutionError("ListExpiredWaits", "", err)
	}

	expired := make([]*models.Execution, 0)

	for _, e := range all {
		if e.Status == models.ExecutionStatusWaiting && e.WaitDeadline != nil && !e.WaitDeadline.After(now) {
			expired = append(expired, e)
		}
	}

	sort.Slice(expired, func(i, j int) bool {
		return expired[i].WaitDeadline.Before(*expired[j].WaitDeadline)
	})

	if limit > 0 && len(expired) > limit {
		expired = expired[:limit]
	}

	return expired, nil
}

func (er *ExecutionRepository) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	er.store.mu.Lock()
	defer er.store.mu.Unlock()

	all, err := readAll[models.Execution](er.store, executionsDir)
	if err != nil {
		return 0, persistence.NewExecutionError("DeleteOlderThan", "", err)
	}

	var deleted int64

	for _, e := range all {
		if !e.UpdatedAt.Before(cutoff) {
			continue
		}

		err := os.RemoveAll(filepath.Join(er.store.root, stepKind(e.ID)))
		if err != nil {
			return deleted, persistence.NewExecutionError("DeleteOlderThan", e.ID, err)
		}

		err = er.store.remove(executionsDir, e.ID)
		if err != nil {
			return deleted, persistence.NewExecutionError("DeleteOlderThan", e.ID, err)
		}

		deleted++
	}

	return deleted, nil
}
