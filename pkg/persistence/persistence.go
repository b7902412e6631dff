// Package persistence provides data storage abstraction layer for flows, versions and executions.
package persistence

import (
	"context"
	"time"

	"github.com/dukex/botflow/pkg/models"
)

type Persistence interface {
	FlowRepository() FlowRepository
	VersionRepository() VersionRepository
	ExecutionRepository() ExecutionRepository
	ProjectRepository() ProjectRepository
	UserRepository() UserRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// FlowRepository stores authoring-time flows.
type FlowRepository interface {
	List(ctx context.Context, opts ListFlowsOptions) (*FlowListResult, error)
	GetByID(ctx context.Context, id string) (*models.Flow, error)
	Save(ctx context.Context, flow *models.Flow) error
	Delete(ctx context.Context, id string) error
}

// VersionRepository stores immutable published snapshots.
type VersionRepository interface {
	// Publish numbers the version (max+1 per flow), marks it active and
	// deactivates every other version of the same flow in one operation.
	Publish(ctx context.Context, version *models.Version) error
	GetByID(ctx context.Context, id string) (*models.Version, error)
	ListByFlow(ctx context.Context, flowID string) ([]*models.Version, error)
	Active(ctx context.Context, flowID string) (*models.Version, error)
	// ActiveByProject returns the active versions of a project ordered by the
	// creation time of their flows.
	ActiveByProject(ctx context.Context, projectID string) ([]*models.Version, error)
}

// ExecutionRepository stores executions and their step logs.
type ExecutionRepository interface {
	GetByID(ctx context.Context, id string) (*models.Execution, error)
	// FindActive returns the running or waiting execution of a chat session.
	FindActive(ctx context.Context, projectID, chatID string) (*models.Execution, error)
	Save(ctx context.Context, execution *models.Execution) error
	// SaveStep appends the step and persists the execution atomically.
	SaveStep(ctx context.Context, execution *models.Execution, step *models.StepLog) error
	ListSteps(ctx context.Context, executionID string) ([]*models.StepLog, error)
	List(ctx context.Context, opts ListExecutionsOptions) (*ExecutionListResult, error)
	ListExpiredWaits(ctx context.Context, now time.Time, limit int) ([]*models.Execution, error)
	// DeleteOlderThan removes executions last updated before cutoff, with their steps.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type ProjectRepository interface {
	GetByID(ctx context.Context, id string) (*models.Project, error)
	Save(ctx context.Context, project *models.Project) error
}

// UserRepository stores chat users and their bonus ledger.
type UserRepository interface {
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByChannel(ctx context.Context, projectID, channelID string) (*models.User, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error

	// AddBonus appends a grant. A transaction whose idempotency key already
	// exists for the user is not stored again and false is returned.
	AddBonus(ctx context.Context, tx *models.BonusTransaction) (bool, error)
	// SpendBonus appends a negative transaction unless the active balance at
	// now is lower than the amount spent.
	SpendBonus(ctx context.Context, tx *models.BonusTransaction, now time.Time) error
	ListBonus(ctx context.Context, userID string) ([]*models.BonusTransaction, error)
	CountReferrals(ctx context.Context, userID string) (int64, error)
}

// ListFlowsOptions filters and paginates flows.
type ListFlowsOptions struct {
	ProjectID string
	Status    *models.FlowStatus
	Limit     int
	Offset    int
}

type FlowListResult struct {
	Flows       []*models.Flow `json:"flows"`
	TotalCount  int64          `json:"total_count"`
	HasNextPage bool           `json:"has_next_page"`
}

// ListExecutionsOptions filters and paginates executions. Search matches the
// execution, chat or user id as a substring.
type ListExecutionsOptions struct {
	ProjectID     string
	FlowID        string
	Status        *models.ExecutionStatus
	StartedAfter  *time.Time
	StartedBefore *time.Time
	Search        string
	Limit         int
	Offset        int
}

type ExecutionListResult struct {
	Executions  []*models.Execution `json:"executions"`
	TotalCount  int64               `json:"total_count"`
	HasNextPage bool                `json:"has_next_page"`
}

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// NormalizeLimit applies the default and maximum page size.
func NormalizeLimit(limit int) int {
	if limit <= 0 || limit > MaxListLimit {
		return DefaultListLimit
	}

	return limit
}
