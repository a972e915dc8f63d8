// Package signal is a tiny in-process broadcast bus for payload-less named
// events such as the cart reset emitted on logout.
package signal

import "sync"

// CartReset is broadcast by collaborators when the session is torn down
// (logout or similar). Listeners clear local cart state.
const CartReset = "cart-reset"

// Bus delivers named signals to every current subscriber.
type Bus struct {
	mu       sync.RWMutex
	handlers map[string]map[int]func()
	next     int
}

// NewBus returns an empty Bus.
func NewBus() *Bus {
	return &Bus{handlers: make(map[string]map[int]func())}
}

// Subscribe registers fn for name and returns a function that removes it.
func (b *Bus) Subscribe(name string, fn func()) (unsubscribe func()) {
	b.mu.Lock()
	id := b.next
	b.next++
	if b.handlers[name] == nil {
		b.handlers[name] = make(map[int]func())
	}
	b.handlers[name][id] = fn
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.handlers[name], id)
			b.mu.Unlock()
		})
	}
}

// Publish calls every handler subscribed to name synchronously and returns
// how many were called.
func (b *Bus) Publish(name string) int {
	b.mu.RLock()
	handlers := make([]func(), 0, len(b.handlers[name]))
	for _, fn := range b.handlers[name] {
		handlers = append(handlers, fn)
	}
	b.mu.RUnlock()

	for _, fn := range handlers {
		fn()
	}
	return len(handlers)
}
