// internal/testutil/bus.go
package testutil

import (
	"sync"

	"github.com/netwarden/backend/internal/realtime"
)

// PublishedEvent is one captured bus publication.
type PublishedEvent struct {
	Topic realtime.Topic
	Type  string
	Data  interface{}
}

// RecordingBus captures publications so tests can assert on push behavior
// without a running hub.
type RecordingBus struct {
	mu     sync.Mutex
	events []PublishedEvent
}

func (b *RecordingBus) Publish(topic realtime.Topic, eventType string, data interface{}) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, PublishedEvent{Topic: topic, Type: eventType, Data: data})
}

// Events returns a copy of everything published so far.
func (b *RecordingBus) Events() []PublishedEvent {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]PublishedEvent, len(b.events))
	copy(out, b.events)
	return out
}

// EventsOfType filters captured publications by event type.
func (b *RecordingBus) EventsOfType(eventType string) []PublishedEvent {
	var out []PublishedEvent
	for _, e := range b.Events() {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}

// Reset clears captured publications.
func (b *RecordingBus) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = nil
}
