package testutils

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/ava-labs/pubsub-dispatcher/pkg/pubsub"
)

// MockClient is a mock implementation of pubsub.Client for testing
type MockClient struct {
	mock.Mock
}

// Publish mocks the Publish method
func (m *MockClient) Publish(ctx context.Context, batch []pubsub.Publication) error {
	args := m.Called(ctx, batch)
	return args.Error(0)
}
