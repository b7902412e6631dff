package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/botflow/pkg/models"
	"github.com/dukex/botflow/pkg/persistence"
)

// ExecutionRepository handles execution and step log database operations.
type ExecutionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewExecutionRepository creates a new execution repository.
func NewExecutionRepository(db *sql.DB, logger *slog.Logger) *ExecutionRepository {
	return &ExecutionRepository{db: db, logger: logger}
}

const executionColumns = `
			id
		  , flow_id
		  , version_id
		  , project_id
		  , user_id
		  , chat_id
		  , status
		  , current_node_id
		  , wait_type
		  , wait_payload
		  , wait_deadline
		  , variables
		  , step_count
		  , last_error
		  , error_kind
		  , started_at
		  , updated_at
		  , finished_at`

const upsertExecution = `
		INSERT INTO executions (id, flow_id, version_id, project_id, user_id, chat_id, status,
			current_node_id, wait_type, wait_payload, wait_deadline, variables, step_count,
			last_error, error_kind, started_at, updated_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (id) DO UPDATE SET
			user_id = EXCLUDED.user_id,
			status = EXCLUDED.status,
			current_node_id = EXCLUDED.current_node_id,
			wait_type = EXCLUDED.wait_type,
			wait_payload = EXCLUDED.wait_payload,
			wait_deadline = EXCLUDED.wait_deadline,
			variables = EXCLUDED.variables,
			step_count = EXCLUDED.step_count,
			last_error = EXCLUDED.last_error,
			error_kind = EXCLUDED.error_kind,
			updated_at = EXCLUDED.updated_at,
			finished_at = EXCLUDED.finished_at
`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func saveExecution(ctx context.Context, db execer, e *models.Execution) error {
	waitPayload, err := json.Marshal(e.WaitPayload)
	if err != nil {
		return fmt.Errorf("failed to marshal wait payload: %w", err)
	}

	variables, err := json.Marshal(models.CopyVariables(e.Variables))
	if err != nil {
		return fmt.Errorf("failed to marshal variables: %w", err)
	}

	_, err = db.ExecContext(ctx, upsertExecution,
		e.ID,
		e.FlowID,
		e.VersionID,
		e.ProjectID,
		e.UserID,
		e.ChatID,
		e.Status,
		e.CurrentNodeID,
		e.WaitType,
		waitPayload,
		e.WaitDeadline,
		variables,
		e.StepCount,
		e.LastError,
		e.ErrorKind,
		e.StartedAt,
		e.UpdatedAt,
		e.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save execution: %w", err)
	}

	return nil
}

func (r *ExecutionRepository) GetByID(ctx context.Context, id string) (*models.Execution, error) {
	row := r.db.QueryRowContext(ctx, "SELECT"+executionColumns+" FROM executions WHERE id = $1", id)

	execution, err := scanExecution(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewExecutionError("GetByID", id, persistence.ErrExecutionNotFound)
		}

		return nil, persistence.NewExecutionError("GetByID", id, fmt.Errorf("failed to scan execution: %w", err))
	}

	return execution, nil
}

func (r *ExecutionRepository) FindActive(ctx context.Context, projectID, chatID string) (*models.Execution, error) {
	query := "SELECT" + executionColumns + `
		FROM executions
		WHERE project_id = $1 AND chat_id = $2 AND status IN ('running', 'waiting')
		ORDER BY started_at DESC
		LIMIT 1`

	execution, err := scanExecution(r.db.QueryRowContext(ctx, query, projectID, chatID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewExecutionError("FindActive", "", persistence.ErrExecutionNotFound)
		}

		return nil, persistence.NewExecutionError("FindActive", "", fmt.Errorf("failed to scan execution: %w", err))
	}

	return execution, nil
}

func (r *ExecutionRepository) Save(ctx context.Context, execution *models.Execution) error {
	err := saveExecution(ctx, r.db, execution)
	if err != nil {
		return persistence.NewExecutionError("Save", execution.ID, err)
	}

	return nil
}

// SaveStep inserts the step and upserts the execution in one transaction.
// Replaying an index replaces the stored step.
func (r *ExecutionRepository) SaveStep(ctx context.Context, execution *models.Execution, step *models.StepLog) error {
	data, err := json.Marshal(step.Data)
	if err != nil {
		return persistence.NewExecutionError("SaveStep", execution.ID, fmt.Errorf("failed to marshal step data: %w", err))
	}

	variables, err := json.Marshal(step.Variables)
	if err != nil {
		return persistence.NewExecutionError("SaveStep", execution.ID, fmt.Errorf("failed to marshal step variables: %w", err))
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	err = saveExecution(ctx, tx, execution)
	if err != nil {
		return persistence.NewExecutionError("SaveStep", execution.ID, err)
	}

	query := `
		INSERT INTO execution_steps (execution_id, idx, id, node_id, node_type, node_label,
			status, handle, message, data, variables, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (execution_id, idx) DO UPDATE SET
			id = EXCLUDED.id,
			node_id = EXCLUDED.node_id,
			node_type = EXCLUDED.node_type,
			node_label = EXCLUDED.node_label,
			status = EXCLUDED.status,
			handle = EXCLUDED.handle,
			message = EXCLUDED.message,
			data = EXCLUDED.data,
			variables = EXCLUDED.variables,
			started_at = EXCLUDED.started_at,
			finished_at = EXCLUDED.finished_at
	`

	_, err = tx.ExecContext(ctx, query,
		execution.ID,
		step.Index,
		step.ID,
		step.NodeID,
		step.NodeType,
		step.NodeLabel,
		step.Status,
		step.Handle,
		step.Message,
		data,
		variables,
		step.StartedAt,
		step.FinishedAt,
	)
	if err != nil {
		return persistence.NewExecutionError("SaveStep", execution.ID, fmt.Errorf("failed to insert step: %w", err))
	}

	err = tx.Commit()
	if err != nil {
		return persistence.NewExecutionError("SaveStep", execution.ID, fmt.Errorf("failed to commit: %w", err))
	}

	return nil
}

func (r *ExecutionRepository) ListSteps(ctx context.Context, executionID string) ([]*models.StepLog, error) {
	query := `
		SELECT
			execution_id
		  , idx
		  , id
		  , node_id
		  , node_type
		  , node_label
		  , status
		  , handle
		  , message
		  , data
		  , variables
		  , started_at
		  , finished_at
		FROM execution_steps
		WHERE execution_id = $1
		ORDER BY idx ASC
	`

	rows, err := r.db.QueryContext(ctx, query, executionID)
	if err != nil {
		return nil, persistence.NewExecutionError("ListSteps", executionID, fmt.Errorf("failed to query steps: %w", err))
	}

	defer closeRows(ctx, r.logger, rows)

	steps := make([]*models.StepLog, 0)

	for rows.Next() {
		var (
			step            models.StepLog
			data, variables []byte
		)

		err := rows.Scan(
			&step.ExecutionID,
			&step.Index,
			&step.ID,
			&step.NodeID,
			&step.NodeType,
			&step.NodeLabel,
			&step.Status,
			&step.Handle,
			&step.Message,
			&data,
			&variables,
			&step.StartedAt,
			&step.FinishedAt,
		)
		if err != nil {
			return nil, persistence.NewExecutionError("ListSteps", executionID, fmt.Errorf("failed to scan step: %w", err))
		}

		err = errors.Join(
			unmarshalColumn(data, &step.Data, "data"),
			unmarshalColumn(variables, &step.Variables, "variables"),
		)
		if err != nil {
			return nil, persistence.NewExecutionError("ListSteps", executionID, err)
		}

		steps = append(steps, &step)
	}

	err = rows.Err()
	if err != nil {
		return nil, persistence.NewExecutionError("ListSteps", executionID, fmt.Errorf("error iterating steps: %w", err))
	}

	return steps, nil
}

// List filters executions; search is a case-insensitive substring match on
// the execution, chat and user ids.
func (r *ExecutionRepository) List(ctx context.Context, opts persistence.ListExecutionsOptions) (*persistence.ExecutionListResult, error) {
	limit := persistence.NormalizeLimit(opts.Limit)
	offset := max(opts.Offset, 0)

	var status any
	if opts.Status != nil {
		status = string(*opts.Status)
	}

	args := []any{
		opts.ProjectID,
		opts.FlowID,
		status,
		opts.StartedAfter,
		opts.StartedBefore,
		opts.Search,
	}

	where := `
		WHERE ($1::text = '' OR project_id = $1)
		  AND ($2::text = '' OR flow_id = $2)
		  AND ($3::text IS NULL OR status = $3)
		  AND ($4::timestamptz IS NULL OR started_at >= $4)
		  AND ($5::timestamptz IS NULL OR started_at <= $5)
		  AND ($6::text = '' OR id ILIKE '%' || $6 || '%' OR chat_id ILIKE '%' || $6 || '%' OR user_id ILIKE '%' || $6 || '%')`

	var total int64

	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM executions"+where, args...).Scan(&total)
	if err != nil {
		return nil, persistence.NewExecutionError("List", "", fmt.Errorf("failed to count executions: %w", err))
	}

	query := "SELECT" + executionColumns + " FROM executions" + where + `
		ORDER BY started_at DESC
		LIMIT $7 OFFSET $8`

	executions, err := r.query(ctx, "List", query, append(args, limit, offset)...)
	if err != nil {
		return nil, err
	}

	return &persistence.ExecutionListResult{
		Executions:  executions,
		TotalCount:  total,
		HasNextPage: int64(offset+len(executions)) < total,
	}, nil
}

func (r *ExecutionRepository) ListExpiredWaits(ctx context.Context, now time.Time, limit int) ([]*models.Execution, error) {
	if limit <= 0 {
		limit = persistence.MaxListLimit
	}

	query := "SELECT" + executionColumns + `
		FROM executions
		WHERE status = 'waiting' AND wait_deadline IS NOT NULL AND wait_deadline <= $1
		ORDER BY wait_deadline ASC
		LIMIT $2`

	return r.query(ctx, "ListExpiredWaits", query, now, limit)
}

func (r *ExecutionRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, "DELETE FROM executions WHERE updated_at < $1", cutoff)
	if err != nil {
		return 0, persistence.NewExecutionError("DeleteOlderThan", "", fmt.Errorf("failed to delete executions: %w", err))
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, persistence.NewExecutionError("DeleteOlderThan", "", err)
	}

	return deleted, nil
}

func (r *ExecutionRepository) query(ctx context.Context, op, query string, args ...any) ([]*models.Execution, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, persistence.NewExecutionError(op, "", fmt.Errorf("failed to query executions: %w", err))
	}

	defer closeRows(ctx, r.logger, rows)

	executions := make([]*models.Execution, 0)

	for rows.Next() {
		execution, err := scanExecution(rows)
		if err != nil {
			return nil, persistence.NewExecutionError(op, "", fmt.Errorf("failed to scan execution: %w", err))
		}

		executions = append(executions, execution)
	}

	err = rows.Err()
	if err != nil {
		return nil, persistence.NewExecutionError(op, "", fmt.Errorf("error iterating executions: %w", err))
	}

	return executions, nil
}

func scanExecution(row scanner) (*models.Execution, error) {
	var (
		execution              models.Execution
		waitPayload, variables []byte
	)

	err := row.Scan(
		&execution.ID,
		&execution.FlowID,
		&execution.VersionID,
		&execution.ProjectID,
		&execution.UserID,
		&execution.ChatID,
		&execution.Status,
		&execution.CurrentNodeID,
		&execution.WaitType,
		&waitPayload,
		&execution.WaitDeadline,
		&variables,
		&execution.StepCount,
		&execution.LastError,
		&execution.ErrorKind,
		&execution.StartedAt,
		&execution.UpdatedAt,
		&execution.FinishedAt,
	)
	if err != nil {
		return nil, err
	}

	// Initialize maps to avoid nil pointer dereferences
	execution.Variables = make(map[string]any)

	err = errors.Join(
		unmarshalColumn(waitPayload, &execution.WaitPayload, "wait payload"),
		unmarshalColumn(variables, &execution.Variables, "variables"),
	)
	if err != nil {
		return nil, err
	}

	if execution.Variables == nil {
		execution.Variables = make(map[string]any)
	}

	return &execution, nil
}
