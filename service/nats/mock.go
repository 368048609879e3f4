package nats

import (
	"context"
	"sync"
)

// MockPublisher is a mock implementation of Publisher for testing.
type MockPublisher struct {
	mu               sync.RWMutex
	updatedEvents    []*LedgerUpdatedEvent
	annotationEvents []*AnnotationSavedEvent
	publishError     error
	closed           bool
}

// NewMockPublisher creates a new mock publisher for testing.
func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

// PublishLedgerUpdated records the event and returns any configured error.
func (m *MockPublisher) PublishLedgerUpdated(ctx context.Context, event *LedgerUpdatedEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.publishError != nil {
		return m.publishError
	}
	m.updatedEvents = append(m.updatedEvents, event)
	return nil
}

// PublishAnnotationSaved records the event and returns any configured error.
func (m *MockPublisher) PublishAnnotationSaved(ctx context.Context, event *AnnotationSavedEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.publishError != nil {
		return m.publishError
	}
	m.annotationEvents = append(m.annotationEvents, event)
	return nil
}

// Close marks the publisher as closed.
func (m *MockPublisher) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// GetLedgerUpdatedEvents returns all published ledger updated events.
func (m *MockPublisher) GetLedgerUpdatedEvents() []*LedgerUpdatedEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]*LedgerUpdatedEvent, len(m.updatedEvents))
	copy(events, m.updatedEvents)
	return events
}

// GetAnnotationSavedEvents returns all published annotation saved events.
func (m *MockPublisher) GetAnnotationSavedEvents() []*AnnotationSavedEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()

	events := make([]*AnnotationSavedEvent, len(m.annotationEvents))
	copy(events, m.annotationEvents)
	return events
}

// GetPublishedEventCount returns the number of published events of any kind.
func (m *MockPublisher) GetPublishedEventCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.updatedEvents) + len(m.annotationEvents)
}

// SetPublishError configures the mock to fail every publish.
func (m *MockPublisher) SetPublishError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.publishError = err
}

// Reset clears all published events and errors.
func (m *MockPublisher) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updatedEvents = nil
	m.annotationEvents = nil
	m.publishError = nil
	m.closed = false
}

// IsClosed returns whether the publisher has been closed.
func (m *MockPublisher) IsClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}
