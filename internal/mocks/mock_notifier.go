package mocks

import (
	"context"
	"sync"

	"github.com/hexpgame/hexcron/internal/message_broaker"
)

// MockNotifier records every event it receives.
type MockNotifier struct {
	NotifyFunc func(ctx context.Context, event message_broaker.Event) error

	mu     sync.Mutex
	events []message_broaker.Event
}

func (m *MockNotifier) Notify(ctx context.Context, event message_broaker.Event) error {
	m.mu.Lock()
	m.events = append(m.events, event)
	m.mu.Unlock()
	if m.NotifyFunc != nil {
		return m.NotifyFunc(ctx, event)
	}
	return nil
}

func (m *MockNotifier) Events() []message_broaker.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]message_broaker.Event(nil), m.events...)
}

// OfType returns the recorded events with the given type.
func (m *MockNotifier) OfType(eventType string) []message_broaker.Event {
	var out []message_broaker.Event
	for _, e := range m.Events() {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}
