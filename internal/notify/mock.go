package notify

import (
	"context"
	"sync"
)

// Published records a single published update.
type Published struct {
	Event   string
	Payload any
}

// MockPublisher records all publishes for test assertions.
type MockPublisher struct {
	mu     sync.Mutex
	events []Published
	closed bool
	err    error // if set, Publish returns this error
}

func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

func (m *MockPublisher) Publish(_ context.Context, event string, payload any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, Published{Event: event, Payload: payload})
	return nil
}

func (m *MockPublisher) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Events returns a copy of all published updates.
func (m *MockPublisher) Events() []Published {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Published, len(m.events))
	copy(out, m.events)
	return out
}

// EventsNamed returns published updates matching event.
func (m *MockPublisher) EventsNamed(event string) []Published {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Published
	for _, e := range m.events {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

// SetError causes all subsequent Publish calls to return err.
// Pass nil to clear.
func (m *MockPublisher) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}
