// Package events carries orchestration lifecycle events from an orchestrator
// to its subscribers.
//
// Delivery is synchronous and at-most-once: an event reaches the handlers that
// are subscribed at the moment it is emitted and is never buffered for
// subscribers that arrive later.
package events

import (
	"slices"
	"sync"
	"time"
)

// Name identifies a lifecycle event
type Name string

const (
	// Download is a build progress heartbeat, it carries no payload
	Download Name = "download"
	// Complete is emitted once the image build stream has finished
	Complete Name = "complete"
	// Run is emitted after the container was created
	Run Name = "run"
	// Data carries one chunk of container output in Event.Data
	Data Name = "data"
	// StoppedAndRemoved is emitted after a stale container was stopped and removed
	StoppedAndRemoved Name = "stopped and removed"
	// Error carries the failure in Event.Err
	Error Name = "error"
)

// Names lists every event name in the order they usually occur.
var Names = []Name{Download, Complete, StoppedAndRemoved, Run, Data, Error}

// Event is a single lifecycle notification
type Event struct {
	Name Name
	Data string
	Err  error
	Time time.Time
}

// Handler receives events. Handlers run on the emitting goroutine and must not block.
type Handler func(Event)

type subscription struct {
	handler Handler
	names   map[Name]struct{}
}

func (s subscription) wants(name Name) bool {
	if len(s.names) == 0 {
		return true
	}
	_, ok := s.names[name]
	return ok
}

// Bus fans events out to subscribers
type Bus struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]subscription
	now    func() time.Time
}

// NewBus creates an empty bus
func NewBus() *Bus {
	return &Bus{
		subs: make(map[int]subscription),
		now:  time.Now,
	}
}

// Subscribe registers handler for the given event names, or for every event
// when no names are passed. The returned function removes the subscription.
func (b *Bus) Subscribe(handler Handler, names ...Name) (unsubscribe func()) {
	sub := subscription{handler: handler}
	if len(names) > 0 {
		sub.names = make(map[Name]struct{}, len(names))
		for _, n := range names {
			sub.names[n] = struct{}{}
		}
	}

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = sub
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
		})
	}
}

// Emit delivers an event to the current subscribers
func (b *Bus) Emit(name Name, data string) {
	b.publish(Event{Name: name, Data: data})
}

// EmitError delivers an Error event carrying err
func (b *Bus) EmitError(err error) {
	ev := Event{Name: Error, Err: err}
	if err != nil {
		ev.Data = err.Error()
	}
	b.publish(ev)
}

func (b *Bus) publish(ev Event) {
	ev.Time = b.now()

	// Snapshot under the lock so handlers may subscribe or unsubscribe.
	b.mu.RLock()
	ids := make([]int, 0, len(b.subs))
	for id := range b.subs {
		ids = append(ids, id)
	}
	handlers := make([]Handler, 0, len(ids))
	slices.Sort(ids)
	for _, id := range ids {
		if sub := b.subs[id]; sub.wants(ev.Name) {
			handlers = append(handlers, sub.handler)
		}
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		h(ev)
	}
}

// Subscribers returns the number of active subscriptions
func (b *Bus) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
