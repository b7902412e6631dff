package mocks

import (
	"context"

	"github.com/dukex/botflow/pkg/models"
	"github.com/stretchr/testify/mock"
)

// MockQueryRunner is a mock implementation of protocol.QueryRunner.
type MockQueryRunner struct {
	mock.Mock
}

func (m *MockQueryRunner) Run(ctx context.Context, name string, params map[string]any) (map[string]any, error) {
	args := m.Called(ctx, name, params)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(map[string]any), args.Error(1)
}

// MockMessenger is a mock implementation of query.Messenger.
type MockMessenger struct {
	mock.Mock
}

func (m *MockMessenger) Send(ctx context.Context, msg *models.OutboundMessage) error {
	args := m.Called(ctx, msg)

	return args.Error(0)
}
