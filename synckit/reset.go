package synckit

import (
	"sync"

	"github.com/c0deZ3R0/go-cart-sync/cart"
	"github.com/c0deZ3R0/go-cart-sync/logging"
	"github.com/c0deZ3R0/go-cart-sync/signal"
)

// ResetListener clears the local cart when signal.CartReset is broadcast.
// It never talks to the remote store.
type ResetListener struct {
	bus    *signal.Bus
	store  *cart.Store
	logger *logging.Logger

	mu          sync.Mutex
	unsubscribe func()
}

// NewResetListener creates a listener; call Start to subscribe.
func NewResetListener(bus *signal.Bus, store *cart.Store, logger *logging.Logger) *ResetListener {
	if logger == nil {
		logger = logging.WithComponent(logging.Component("reset"))
	}
	return &ResetListener{bus: bus, store: store, logger: logger}
}

// Start subscribes to the bus. Calling it twice is a no-op.
func (l *ResetListener) Start() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.unsubscribe != nil {
		return
	}
	l.unsubscribe = l.bus.Subscribe(signal.CartReset, l.handle)
}

// Stop unsubscribes from the bus.
func (l *ResetListener) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.unsubscribe != nil {
		l.unsubscribe()
		l.unsubscribe = nil
	}
}

func (l *ResetListener) handle() {
	l.store.Dispatch(cart.Clear{})
	l.logger.Debug("Cart reset signal received, local cart cleared")
}
