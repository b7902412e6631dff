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
	"github.com/google/uuid"
)

// FlowRepository handles flow-related database operations. Nodes and
// connections are stored as JSON documents and decoded into typed models on load.
type FlowRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewFlowRepository creates a new flow repository.
func NewFlowRepository(db *sql.DB, logger *slog.Logger) *FlowRepository {
	return &FlowRepository{db: db, logger: logger}
}

const flowColumns = `
			id
		  , project_id
		  , name
		  , description
		  , status
		  , entry_node_id
		  , nodes
		  , connections
		  , variables
		  , settings
		  , created_at
		  , updated_at`

// List returns paginated and filtered flows, newest first.
func (r *FlowRepository) List(ctx context.Context, opts persistence.ListFlowsOptions) (*persistence.FlowListResult, error) {
	limit := persistence.NormalizeLimit(opts.Limit)
	offset := max(opts.Offset, 0)

	var status any
	if opts.Status != nil {
		status = string(*opts.Status)
	}

	where := `
		WHERE ($1::text = '' OR project_id = $1)
		  AND ($2::text IS NULL OR status = $2)`

	var total int64

	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM flows"+where, opts.ProjectID, status).Scan(&total)
	if err != nil {
		return nil, persistence.NewFlowError("List", "", fmt.Errorf("failed to count flows: %w", err))
	}

	query := "SELECT" + flowColumns + " FROM flows" + where + `
		ORDER BY created_at DESC
		LIMIT $3 OFFSET $4`

	rows, err := r.db.QueryContext(ctx, query, opts.ProjectID, status, limit, offset)
	if err != nil {
		return nil, persistence.NewFlowError("List", "", fmt.Errorf("failed to query flows: %w", err))
	}

	defer closeRows(ctx, r.logger, rows)

	flows := make([]*models.Flow, 0)

	for rows.Next() {
		flow, err := scanFlow(rows)
		if err != nil {
			return nil, persistence.NewFlowError("List", "", fmt.Errorf("failed to scan flow: %w", err))
		}

		flows = append(flows, flow)
	}

	err = rows.Err()
	if err != nil {
		return nil, persistence.NewFlowError("List", "", fmt.Errorf("error iterating flows: %w", err))
	}

	return &persistence.FlowListResult{
		Flows:       flows,
		TotalCount:  total,
		HasNextPage: int64(offset+len(flows)) < total,
	}, nil
}

func (r *FlowRepository) GetByID(ctx context.Context, id string) (*models.Flow, error) {
	row := r.db.QueryRowContext(ctx, "SELECT"+flowColumns+" FROM flows WHERE id = $1", id)

	flow, err := scanFlow(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewFlowError("GetByID", id, persistence.ErrFlowNotFound)
		}

		return nil, persistence.NewFlowError("GetByID", id, fmt.Errorf("failed to scan flow: %w", err))
	}

	return flow, nil
}

// Save saves a flow to the database.
func (r *FlowRepository) Save(ctx context.Context, flow *models.Flow) error {
	now := time.Now().UTC()

	if flow.CreatedAt.IsZero() {
		flow.CreatedAt = now
	}

	if flow.Status == "" {
		flow.Status = models.FlowStatusDraft
	}

	flow.UpdatedAt = now

	if flow.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate flow ID: %w", err)
		}

		flow.ID = id.String()
	}

	nodes, connections, variables, settings, err := marshalGraph(flow.Nodes, flow.Connections, flow.Variables, flow.Settings)
	if err != nil {
		return persistence.NewFlowError("Save", flow.ID, err)
	}

	query := `
		INSERT INTO flows (id, project_id, name, description, status, entry_node_id,
			nodes, connections, variables, settings, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			project_id = EXCLUDED.project_id,
			name = EXCLUDED.name,
			description = EXCLUDED.description,
			status = EXCLUDED.status,
			entry_node_id = EXCLUDED.entry_node_id,
			nodes = EXCLUDED.nodes,
			connections = EXCLUDED.connections,
			variables = EXCLUDED.variables,
			settings = EXCLUDED.settings,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.db.ExecContext(ctx, query,
		flow.ID,
		flow.ProjectID,
		flow.Name,
		flow.Description,
		flow.Status,
		flow.EntryNodeID,
		nodes,
		connections,
		variables,
		settings,
		flow.CreatedAt,
		flow.UpdatedAt,
	)
	if err != nil {
		return persistence.NewFlowError("Save", flow.ID, fmt.Errorf("failed to save flow: %w", err))
	}

	return nil
}

// Delete removes a flow; its versions are removed by cascade.
func (r *FlowRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM flows WHERE id = $1", id)
	if err != nil {
		return persistence.NewFlowError("Delete", id, fmt.Errorf("failed to delete flow: %w", err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return persistence.NewFlowError("Delete", id, err)
	}

	if affected == 0 {
		return persistence.NewFlowError("Delete", id, persistence.ErrFlowNotFound)
	}

	return nil
}

func marshalGraph(nodes []*models.Node, conns []*models.Connection, vars map[string]models.VariableDecl, settings map[string]any) ([]byte, []byte, []byte, []byte, error) {
	if nodes == nil {
		nodes = make([]*models.Node, 0)
	}

	if conns == nil {
		conns = make([]*models.Connection, 0)
	}

	nodesJSON, err := json.Marshal(nodes)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to marshal nodes: %w", err)
	}

	connsJSON, err := json.Marshal(conns)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to marshal connections: %w", err)
	}

	varsJSON, err := json.Marshal(vars)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to marshal variables: %w", err)
	}

	settingsJSON, err := json.Marshal(settings)
	if err != nil {
		return nil, nil, nil, nil, fmt.Errorf("failed to marshal settings: %w", err)
	}

	return nodesJSON, connsJSON, varsJSON, settingsJSON, nil
}

func scanFlow(row scanner) (*models.Flow, error) {
	var (
		flow                              models.Flow
		nodes, conns, variables, settings []byte
	)

	err := row.Scan(
		&flow.ID,
		&flow.ProjectID,
		&flow.Name,
		&flow.Description,
		&flow.Status,
		&flow.EntryNodeID,
		&nodes,
		&conns,
		&variables,
		&settings,
		&flow.CreatedAt,
		&flow.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	err = errors.Join(
		unmarshalColumn(nodes, &flow.Nodes, "nodes"),
		unmarshalColumn(conns, &flow.Connections, "connections"),
		unmarshalColumn(variables, &flow.Variables, "variables"),
		unmarshalColumn(settings, &flow.Settings, "settings"),
	)
	if err != nil {
		return nil, err
	}

	return &flow, nil
}

// VersionRepository handles version-related database operations.
type VersionRepository struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewVersionRepository creates a new version repository.
func NewVersionRepository(db *sql.DB, logger *slog.Logger) *VersionRepository {
	return &VersionRepository{db: db, logger: logger}
}

const versionColumns = `
			v.id
		  , v.flow_id
		  , v.project_id
		  , v.number
		  , v.entry_node_id
		  , v.nodes
		  , v.connections
		  , v.variables
		  , v.settings
		  , v.is_active
		  , v.created_at`

// Publish locks the flow row, then deactivates the current version and inserts
// the new active one in a single transaction.
func (r *VersionRepository) Publish(ctx context.Context, version *models.Version) error {
	if version.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("failed to generate version ID: %w", err)
		}

		version.ID = id.String()
	}

	if version.CreatedAt.IsZero() {
		version.CreatedAt = time.Now().UTC()
	}

	nodes, connections, variables, settings, err := marshalGraph(version.Nodes, version.Connections, version.Variables, version.Settings)
	if err != nil {
		return persistence.NewVersionError("Publish", version.ID, err)
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

	var flowID string

	err = tx.QueryRowContext(ctx, "SELECT id FROM flows WHERE id = $1 FOR UPDATE", version.FlowID).Scan(&flowID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return persistence.NewVersionError("Publish", version.ID, persistence.ErrFlowNotFound)
		}

		return persistence.NewVersionError("Publish", version.ID, fmt.Errorf("failed to lock flow: %w", err))
	}

	var number int

	err = tx.QueryRowContext(ctx, "SELECT COALESCE(MAX(number), 0) FROM flow_versions WHERE flow_id = $1", flowID).Scan(&number)
	if err != nil {
		return persistence.NewVersionError("Publish", version.ID, fmt.Errorf("failed to read version number: %w", err))
	}

	_, err = tx.ExecContext(ctx, "UPDATE flow_versions SET is_active = false WHERE flow_id = $1 AND is_active", flowID)
	if err != nil {
		return persistence.NewVersionError("Publish", version.ID, fmt.Errorf("failed to deactivate versions: %w", err))
	}

	query := `
		INSERT INTO flow_versions (id, flow_id, project_id, number, entry_node_id,
			nodes, connections, variables, settings, is_active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, true, $10)
	`

	_, err = tx.ExecContext(ctx, query,
		version.ID,
		version.FlowID,
		version.ProjectID,
		number+1,
		version.EntryNodeID,
		nodes,
		connections,
		variables,
		settings,
		version.CreatedAt,
	)
	if err != nil {
		return persistence.NewVersionError("Publish", version.ID, fmt.Errorf("failed to insert version: %w", err))
	}

	err = tx.Commit()
	if err != nil {
		return persistence.NewVersionError("Publish", version.ID, fmt.Errorf("failed to commit: %w", err))
	}

	version.Number = number + 1
	version.IsActive = true

	return nil
}

func (r *VersionRepository) GetByID(ctx context.Context, id string) (*models.Version, error) {
	row := r.db.QueryRowContext(ctx, "SELECT"+versionColumns+" FROM flow_versions v WHERE v.id = $1", id)

	version, err := scanVersion(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewVersionError("GetByID", id, persistence.ErrVersionNotFound)
		}

		return nil, persistence.NewVersionError("GetByID", id, fmt.Errorf("failed to scan version: %w", err))
	}

	return version, nil
}

func (r *VersionRepository) ListByFlow(ctx context.Context, flowID string) ([]*models.Version, error) {
	return r.query(ctx, "ListByFlow",
		"SELECT"+versionColumns+" FROM flow_versions v WHERE v.flow_id = $1 ORDER BY v.number DESC", flowID)
}

func (r *VersionRepository) Active(ctx context.Context, flowID string) (*models.Version, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT"+versionColumns+" FROM flow_versions v WHERE v.flow_id = $1 AND v.is_active", flowID)

	version, err := scanVersion(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, persistence.NewVersionError("Active", "", persistence.ErrVersionNotFound)
		}

		return nil, persistence.NewVersionError("Active", "", fmt.Errorf("failed to scan version: %w", err))
	}

	return version, nil
}

func (r *VersionRepository) ActiveByProject(ctx context.Context, projectID string) ([]*models.Version, error) {
	query := "SELECT" + versionColumns + `
		FROM flow_versions v
		JOIN flows f ON f.id = v.flow_id
		WHERE v.project_id = $1 AND v.is_active
		ORDER BY f.created_at ASC, f.id ASC
	`

	return r.query(ctx, "ActiveByProject", query, projectID)
}

func (r *VersionRepository) query(ctx context.Context, op, query string, args ...any) ([]*models.Version, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, persistence.NewVersionError(op, "", fmt.Errorf("failed to query versions: %w", err))
	}

	defer closeRows(ctx, r.logger, rows)

	versions := make([]*models.Version, 0)

	for rows.Next() {
		version, err := scanVersion(rows)
		if err != nil {
			return nil, persistence.NewVersionError(op, "", fmt.Errorf("failed to scan version: %w", err))
		}

		versions = append(versions, version)
	}

	err = rows.Err()
	if err != nil {
		return nil, persistence.NewVersionError(op, "", fmt.Errorf("error iterating versions: %w", err))
	}

	return versions, nil
}

func scanVersion(row scanner) (*models.Version, error) {
	var (
		version                           models.Version
		nodes, conns, variables, settings []byte
	)

	err := row.Scan(
		&version.ID,
		&version.FlowID,
		&version.ProjectID,
		&version.Number,
		&version.EntryNodeID,
		&nodes,
		&conns,
		&variables,
		&settings,
		&version.IsActive,
		&version.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	err = errors.Join(
		unmarshalColumn(nodes, &version.Nodes, "nodes"),
		unmarshalColumn(conns, &version.Connections, "connections"),
		unmarshalColumn(variables, &version.Variables, "variables"),
		unmarshalColumn(settings, &version.Settings, "settings"),
	)
	if err != nil {
		return nil, err
	}

	return &version, nil
}
