// Package mocks provides testify mock implementations of the engine's
// consumed interfaces.
package mocks

import (
	"context"

	"github.com/approvio/approvio/pkg/notification"
	"github.com/stretchr/testify/mock"
)

// MockNotifier is a mock implementation of notification.Notifier.
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Notify(ctx context.Context, assigneeID string, stepCtx notification.StepContext) error {
	args := m.Called(ctx, assigneeID, stepCtx)

	return args.Error(0)
}
