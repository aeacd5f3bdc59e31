package events

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_DeliversToAllSubscribers(t *testing.T) {
	bus := NewBus()

	var first, second []Name
	bus.Subscribe(func(e Event) { first = append(first, e.Name) })
	bus.Subscribe(func(e Event) { second = append(second, e.Name) })

	bus.Emit(Complete, "")
	bus.Emit(Run, "")

	assert.Equal(t, []Name{Complete, Run}, first)
	assert.Equal(t, []Name{Complete, Run}, second)
}

func TestBus_FiltersByName(t *testing.T) {
	bus := NewBus()

	var got []Event
	bus.Subscribe(func(e Event) { got = append(got, e) }, Data)

	bus.Emit(Run, "")
	bus.Emit(Data, "hello")
	bus.Emit(Download, "")

	require.Len(t, got, 1)
	assert.Equal(t, Data, got[0].Name)
	assert.Equal(t, "hello", got[0].Data)
}

func TestBus_NoReplayForLateSubscribers(t *testing.T) {
	bus := NewBus()
	bus.Emit(Complete, "")

	var got []Event
	bus.Subscribe(func(e Event) { got = append(got, e) })

	assert.Empty(t, got)
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus()

	count := 0
	unsubscribe := bus.Subscribe(func(Event) { count++ })
	bus.Emit(Download, "")
	unsubscribe()
	unsubscribe() // second call is a no-op
	bus.Emit(Download, "")

	assert.Equal(t, 1, count)
	assert.Equal(t, 0, bus.Subscribers())
}

func TestBus_HandlerMayUnsubscribeItself(t *testing.T) {
	bus := NewBus()

	count := 0
	var unsubscribe func()
	unsubscribe = bus.Subscribe(func(Event) {
		count++
		unsubscribe()
	})

	bus.Emit(Data, "a")
	bus.Emit(Data, "b")

	assert.Equal(t, 1, count)
}

func TestBus_EmitError(t *testing.T) {
	bus := NewBus()
	fixed := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	bus.now = func() time.Time { return fixed }

	var got Event
	bus.Subscribe(func(e Event) { got = e })

	boom := errors.New("boom")
	bus.EmitError(boom)

	assert.Equal(t, Error, got.Name)
	assert.Equal(t, "boom", got.Data)
	assert.ErrorIs(t, got.Err, boom)
	assert.Equal(t, fixed, got.Time)
}

func TestBus_ConcurrentEmit(t *testing.T) {
	bus := NewBus()

	var mu sync.Mutex
	count := 0
	bus.Subscribe(func(Event) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			bus.Emit(Data, "x")
		}()
	}
	wg.Wait()

	assert.Equal(t, 20, count)
}
