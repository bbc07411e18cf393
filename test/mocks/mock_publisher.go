package mocks

import (
	"context"
	"sync"

	"github.com/kevin07696/payment-engine/internal/domain"
)

// MockPublisher records published payment events.
type MockPublisher struct {
	mu     sync.Mutex
	Events []*domain.PaymentEvent
	Err    error
}

// NewMockPublisher creates a new mock publisher
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

// Publish implements ports.EventPublisher
func (m *MockPublisher) Publish(_ context.Context, event *domain.PaymentEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, event)
	return m.Err
}

// Types returns the published event types in order.
func (m *MockPublisher) Types() []domain.PaymentEventType {
	m.mu.Lock()
	defer m.mu.Unlock()
	types := make([]domain.PaymentEventType, 0, len(m.Events))
	for _, e := range m.Events {
		types = append(types, e.Type)
	}
	return types
}
