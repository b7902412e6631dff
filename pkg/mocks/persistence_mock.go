package mocks

import (
	"context"
	"time"

	"github.com/dukex/botflow/pkg/models"
	"github.com/dukex/botflow/pkg/persistence"
	"github.com/stretchr/testify/mock"
)

// MockPersistence is a mock implementation of persistence.Persistence that
// hands out the embedded repository mocks.
type MockPersistence struct {
	mock.Mock

	Flows      *MockFlowRepository
	Versions   *MockVersionRepository
	Executions *MockExecutionRepository
	Projects   *MockProjectRepository
	Users      *MockUserRepository
}

// NewMockPersistence creates a MockPersistence with empty repository mocks.
func NewMockPersistence() *MockPersistence {
	return &MockPersistence{
		Flows:      &MockFlowRepository{},
		Versions:   &MockVersionRepository{},
		Executions: &MockExecutionRepository{},
		Projects:   &MockProjectRepository{},
		Users:      &MockUserRepository{},
	}
}

func (m *MockPersistence) FlowRepository() persistence.FlowRepository           { return m.Flows }
func (m *MockPersistence) VersionRepository() persistence.VersionRepository     { return m.Versions }
func (m *MockPersistence) ExecutionRepository() persistence.ExecutionRepository { return m.Executions }
func (m *MockPersistence) ProjectRepository() persistence.ProjectRepository     { return m.Projects }
func (m *MockPersistence) UserRepository() persistence.UserRepository           { return m.Users }

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

// MockFlowRepository is a mock implementation of persistence.FlowRepository.
type MockFlowRepository struct {
	mock.Mock
}

func (m *MockFlowRepository) List(ctx context.Context, opts persistence.ListFlowsOptions) (*persistence.FlowListResult, error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*persistence.FlowListResult), args.Error(1)
}

func (m *MockFlowRepository) GetByID(ctx context.Context, id string) (*models.Flow, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Flow), args.Error(1)
}

func (m *MockFlowRepository) Save(ctx context.Context, flow *models.Flow) error {
	args := m.Called(ctx, flow)

	return args.Error(0)
}

func (m *MockFlowRepository) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)

	return args.Error(0)
}

// MockVersionRepository is a mock implementation of persistence.VersionRepository.
type MockVersionRepository struct {
	mock.Mock
}

func (m *MockVersionRepository) Publish(ctx context.Context, version *models.Version) error {
	args := m.Called(ctx, version)

	return args.Error(0)
}

func (m *MockVersionRepository) GetByID(ctx context.Context, id string) (*models.Version, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Version), args.Error(1)
}

func (m *MockVersionRepository) ListByFlow(ctx context.Context, flowID string) ([]*models.Version, error) {
	args := m.Called(ctx, flowID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Version), args.Error(1)
}

func (m *MockVersionRepository) Active(ctx context.Context, flowID string) (*models.Version, error) {
	args := m.Called(ctx, flowID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Version), args.Error(1)
}

func (m *MockVersionRepository) ActiveByProject(ctx context.Context, projectID string) ([]*models.Version, error) {
	args := m.Called(ctx, projectID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Version), args.Error(1)
}

// MockExecutionRepository is a mock implementation of persistence.ExecutionRepository.
type MockExecutionRepository struct {
	mock.Mock
}

func (m *MockExecutionRepository) GetByID(ctx context.Context, id string) (*models.Execution, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Execution), args.Error(1)
}

func (m *MockExecutionRepository) FindActive(ctx context.Context, projectID, chatID string) (*models.Execution, error) {
	args := m.Called(ctx, projectID, chatID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Execution), args.Error(1)
}

func (m *MockExecutionRepository) Save(ctx context.Context, execution *models.Execution) error {
	args := m.Called(ctx, execution)

	return args.Error(0)
}

func (m *MockExecutionRepository) SaveStep(ctx context.Context, execution *models.Execution, step *models.StepLog) error {
	args := m.Called(ctx, execution, step)

	return args.Error(0)
}

func (m *MockExecutionRepository) ListSteps(ctx context.Context, executionID string) ([]*models.StepLog, error) {
	args := m.Called(ctx, executionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.StepLog), args.Error(1)
}

func (m *MockExecutionRepository) List(ctx context.Context, opts persistence.ListExecutionsOptions) (*persistence.ExecutionListResult, error) {
	args := m.Called(ctx, opts)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*persistence.ExecutionListResult), args.Error(1)
}

func (m *MockExecutionRepository) ListExpiredWaits(ctx context.Context, now time.Time, limit int) ([]*models.Execution, error) {
	args := m.Called(ctx, now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.Execution), args.Error(1)
}

func (m *MockExecutionRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	args := m.Called(ctx, cutoff)

	return args.Get(0).(int64), args.Error(1)
}

// MockProjectRepository is a mock implementation of persistence.ProjectRepository.
type MockProjectRepository struct {
	mock.Mock
}

func (m *MockProjectRepository) GetByID(ctx context.Context, id string) (*models.Project, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Project), args.Error(1)
}

func (m *MockProjectRepository) Save(ctx context.Context, project *models.Project) error {
	args := m.Called(ctx, project)

	return args.Error(0)
}

// MockUserRepository is a mock implementation of persistence.UserRepository.
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserRepository) GetByChannel(ctx context.Context, projectID, channelID string) (*models.User, error) {
	args := m.Called(ctx, projectID, channelID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserRepository) Create(ctx context.Context, user *models.User) error {
	args := m.Called(ctx, user)

	return args.Error(0)
}

func (m *MockUserRepository) Update(ctx context.Context, user *models.User) error {
	args := m.Called(ctx, user)

	return args.Error(0)
}

func (m *MockUserRepository) AddBonus(ctx context.Context, tx *models.BonusTransaction) (bool, error) {
	args := m.Called(ctx, tx)

	return args.Bool(0), args.Error(1)
}

func (m *MockUserRepository) SpendBonus(ctx context.Context, tx *models.BonusTransaction, now time.Time) error {
	args := m.Called(ctx, tx, now)

	return args.Error(0)
}

func (m *MockUserRepository) ListBonus(ctx context.Context, userID string) ([]*models.BonusTransaction, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]*models.BonusTransaction), args.Error(1)
}

func (m *MockUserRepository) CountReferrals(ctx context.Context, userID string) (int64, error) {
	args := m.Called(ctx, userID)

	return args.Get(0).(int64), args.Error(1)
}
