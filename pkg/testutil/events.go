package testutil

import (
	"sync"

	"github.com/dyluth/dbuilder/pkg/events"
)

// EventRecorder collects lifecycle events emitted on a bus
type EventRecorder struct {
	mu     sync.Mutex
	events []events.Event
}

// RecordEvents subscribes a new recorder to every event on bus
func RecordEvents(bus *events.Bus) *EventRecorder {
	r := &EventRecorder{}
	bus.Subscribe(func(e events.Event) {
		r.mu.Lock()
		r.events = append(r.events, e)
		r.mu.Unlock()
	})
	return r
}

// Events returns a copy of the recorded events
func (r *EventRecorder) Events() []events.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]events.Event(nil), r.events...)
}

// Names returns the recorded event names in emission order
func (r *EventRecorder) Names() []events.Name {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]events.Name, 0, len(r.events))
	for _, e := range r.events {
		names = append(names, e.Name)
	}
	return names
}

// Count returns how many events named name were recorded
func (r *EventRecorder) Count(name events.Name) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Name == name {
			n++
		}
	}
	return n
}

// Data returns the payloads of all Data events
func (r *EventRecorder) Data() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, e := range r.events {
		if e.Name == events.Data {
			out = append(out, e.Data)
		}
	}
	return out
}
