package services

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/dukex/botflow/pkg/engine"
	"github.com/dukex/botflow/pkg/models"
	"github.com/dukex/botflow/pkg/persistence"
	"github.com/jonboulle/clockwork"
)

// ExecutionEngine is the part of the engine operators drive.
type ExecutionEngine interface {
	Restart(ctx context.Context, id string, opts engine.RestartOptions) (*engine.Outcome, error)
	Cancel(ctx context.Context, id, reason string) (*models.Execution, error)
}

// Execution serves the monitoring and recovery operations.
type Execution struct {
	logger      *slog.Logger
	persistence persistence.Persistence
	engine      ExecutionEngine
	clock       clockwork.Clock
}

func NewExecution(logger *slog.Logger, persistence persistence.Persistence, engine ExecutionEngine, clock clockwork.Clock) *Execution {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	return &Execution{
		logger:      logger.With("module", "executions"),
		persistence: persistence,
		engine:      engine,
		clock:       clock,
	}
}

// ListExecutionsRequest filters executions. Search matches execution, chat
// and user ids.
type ListExecutionsRequest struct {
	ProjectID     string
	FlowID        string
	Status        *models.ExecutionStatus
	StartedAfter  *time.Time
	StartedBefore *time.Time
	Search        string
	Limit         int
	Offset        int
}

type ListExecutionsResponse struct {
	Executions  []*models.Execution `json:"executions"`
	TotalCount  int64               `json:"total_count"`
	HasNextPage bool                `json:"has_next_page"`
}

// ExecutionDetail is an execution with its ordered step history.
type ExecutionDetail struct {
	Execution *models.Execution  `json:"execution"`
	Steps     []*models.StepLog `json:"steps"`
}

// RestartRequest mirrors engine.RestartOptions for API callers.
type RestartRequest struct {
	FromNodeID     string `json:"from_node_id,omitempty"`
	ResetVariables bool   `json:"reset_variables,omitempty"`
	SkipCompleted  bool   `json:"skip_completed,omitempty"`
}

// List returns executions newest first.
func (e *Execution) List(ctx context.Context, req ListExecutionsRequest) (*ListExecutionsResponse, error) {
	if err := e.validateListExecutionsRequest(&req); err != nil {
		return nil, err
	}

	result, err := e.persistence.ExecutionRepository().List(ctx, persistence.ListExecutionsOptions{
		ProjectID:     req.ProjectID,
		FlowID:        req.FlowID,
		Status:        req.Status,
		StartedAfter:  req.StartedAfter,
		StartedBefore: req.StartedBefore,
		Search:        req.Search,
		Limit:         req.Limit,
		Offset:        req.Offset,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}

	return &ListExecutionsResponse{
		Executions:  result.Executions,
		TotalCount:  result.TotalCount,
		HasNextPage: result.HasNextPage,
	}, nil
}

func (e *Execution) validateListExecutionsRequest(req *ListExecutionsRequest) error {
	req.Limit = persistence.NormalizeLimit(req.Limit)
	req.Search = strings.TrimSpace(req.Search)

	if req.Offset < 0 {
		req.Offset = 0
	}

	if req.Status != nil {
		allowed := []models.ExecutionStatus{
			models.ExecutionStatusRunning,
			models.ExecutionStatusWaiting,
			models.ExecutionStatusCompleted,
			models.ExecutionStatusFailed,
			models.ExecutionStatusCancelled,
		}

		if !slices.Contains(allowed, *req.Status) {
			return NewValidationError(
				"validateListExecutionsRequest",
				"INVALID_STATUS",
				fmt.Sprintf("invalid status '%s'", *req.Status),
				ErrInvalidStatus,
			)
		}
	}

	if req.StartedAfter != nil && req.StartedBefore != nil && req.StartedBefore.Before(*req.StartedAfter) {
		return NewValidationError(
			"validateListExecutionsRequest",
			"INVALID_DATE_RANGE",
			"started_before must not be earlier than started_after",
			ErrInvalidDateRange,
		)
	}

	return nil
}

// Get returns an execution with its full step history.
func (e *Execution) Get(ctx context.Context, id string) (*ExecutionDetail, error) {
	exec, err := e.persistence.ExecutionRepository().GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	steps, err := e.persistence.ExecutionRepository().ListSteps(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list steps: %w", err)
	}

	return &ExecutionDetail{Execution: exec, Steps: steps}, nil
}

// Restart resumes forward execution from a chosen node.
func (e *Execution) Restart(ctx context.Context, id string, req RestartRequest) (*ExecutionDetail, error) {
	_, err := e.engine.Restart(ctx, id, engine.RestartOptions{
		FromNodeID:     strings.TrimSpace(req.FromNodeID),
		ResetVariables: req.ResetVariables,
		SkipCompleted:  req.SkipCompleted,
	})
	if err != nil {
		return nil, err
	}

	return e.Get(ctx, id)
}

// Cancel stops a running or waiting execution.
func (e *Execution) Cancel(ctx context.Context, id, reason string) (*models.Execution, error) {
	return e.engine.Cancel(ctx, id, strings.TrimSpace(reason))
}

// Sweep deletes executions, with their steps, not updated within the
// retention window.
func (e *Execution) Sweep(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, ErrInvalidRetention
	}

	cutoff := e.clock.Now().UTC().Add(-retention)

	deleted, err := e.persistence.ExecutionRepository().DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep executions: %w", err)
	}

	e.logger.InfoContext(ctx, "Retention sweep finished", "cutoff", cutoff, "deleted", deleted)

	return deleted, nil
}
