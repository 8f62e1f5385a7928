package mocks

import (
	"github.com/stretchr/testify/mock"

	"github.com/bnema/ocistore/internal/domain"
)

// MockEventPublisher is a mock implementation of out.EventPublisher
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(eventType domain.EventType, payload any) error {
	args := m.Called(eventType, payload)
	return args.Error(0)
}
