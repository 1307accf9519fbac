package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/p2pmarket/marketd/internal/domain/notification"
)

// MockSink is a mock implementation of notification.Sink
type MockSink struct {
	mock.Mock
}

func (m *MockSink) Publish(ctx context.Context, n *notification.Notification) error {
	args := m.Called(ctx, n)
	return args.Error(0)
}
