// Package postgresql provides PostgreSQL persistence implementation for flows, versions and executions.
package postgresql

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/dukex/botflow/pkg/persistence"
	"github.com/dukex/botflow/pkg/persistence/sqlbase"
)

// Persistence implements the persistence layer for PostgreSQL.
type Persistence struct {
	db     *sql.DB
	logger *slog.Logger

	flowRepo      *FlowRepository
	versionRepo   *VersionRepository
	executionRepo *ExecutionRepository
	projectRepo   *ProjectRepository
	userRepo      *UserRepository
}

// NewPersistence creates a new PostgreSQL persistence layer.
func NewPersistence(ctx context.Context, logger *slog.Logger, databaseURL string) (*Persistence, error) {
	database, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to PostgreSQL database: %w", err)
	}

	err = database.PingContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	migrationManager := sqlbase.NewMigrationManager(logger, database, migrations())

	postgres := &Persistence{
		db:            database,
		logger:        logger,
		flowRepo:      NewFlowRepository(database, logger),
		versionRepo:   NewVersionRepository(database, logger),
		executionRepo: NewExecutionRepository(database, logger),
		projectRepo:   NewProjectRepository(database),
		userRepo:      NewUserRepository(database, logger),
	}

	// Run migrations on initialization
	err = migrationManager.RunMigrations(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return postgres, nil
}

// Close closes the database connection.
func (p *Persistence) Close(ctx context.Context) error {
	if p.db != nil {
		err := p.db.Close()
		if err != nil {
			return fmt.Errorf("failed to close database connection: %w", err)
		}
	}

	return nil
}

// HealthCheck verifies the database connection is healthy.
func (p *Persistence) HealthCheck(ctx context.Context) error {
	err := p.db.PingContext(ctx)
	if err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	return nil
}

func (p *Persistence) FlowRepository() persistence.FlowRepository           { return p.flowRepo }
func (p *Persistence) VersionRepository() persistence.VersionRepository     { return p.versionRepo }
func (p *Persistence) ExecutionRepository() persistence.ExecutionRepository { return p.executionRepo }
func (p *Persistence) ProjectRepository() persistence.ProjectRepository     { return p.projectRepo }
func (p *Persistence) UserRepository() persistence.UserRepository           { return p.userRepo }

type scanner interface {
	Scan(dest ...any) error
}

// closeRows closes a result set, logging a failure instead of masking the query result.
func closeRows(ctx context.Context, logger *slog.Logger, rows *sql.Rows) {
	err := rows.Close()
	if err != nil {
		logger.ErrorContext(ctx, "failed to close rows", "error", err)
	}
}

func unmarshalColumn(data []byte, v any, column string) error {
	if data == nil {
		return nil
	}

	err := json.Unmarshal(data, v)
	if err != nil {
		return fmt.Errorf("failed to unmarshal %s: %w", column, err)
	}

	return nil
}
