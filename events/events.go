package events

import "sync"

// Dispatcher receives adapter events for out-of-band fan-out. No delivery
// guarantee is assumed by the adapter.
type Dispatcher interface {
	Dispatch(event interface{})
}

// NopDispatcher discards every event.
type NopDispatcher struct{}

// Dispatch implements Dispatcher.
func (NopDispatcher) Dispatch(interface{}) {}

// Bus is a minimal synchronous publish/subscribe dispatcher. Subscribers
// run in registration order on the dispatching goroutine.
type Bus struct {
	mu   sync.RWMutex
	subs []func(interface{})
}

// NewBus creates an empty event bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers a handler for all dispatched events.
func (b *Bus) Subscribe(fn func(event interface{})) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, fn)
}

// Dispatch implements Dispatcher.
func (b *Bus) Dispatch(event interface{}) {
	b.mu.RLock()
	subs := b.subs
	b.mu.RUnlock()

	for _, fn := range subs {
		fn(event)
	}
}
