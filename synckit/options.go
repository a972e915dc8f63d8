package synckit

import (
	"github.com/c0deZ3R0/go-cart-sync/cart"
	"github.com/c0deZ3R0/go-cart-sync/logging"
	"github.com/c0deZ3R0/go-cart-sync/signal"
)

// Option configures an Engine in NewEngine.
type Option func(*Engine)

// WithLogger sets the engine logger. The merge coordinator and reset
// listener derive theirs from it.
func WithLogger(logger *logging.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m MetricsCollector) Option {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithBus sets the signal bus the reset listener subscribes to. Without it
// the engine creates a private bus, reachable through Engine.Bus.
func WithBus(bus *signal.Bus) Option {
	return func(e *Engine) {
		if bus != nil {
			e.bus = bus
		}
	}
}

// WithStore sets the local cart store, e.g. one shared with a UI layer.
func WithStore(store *cart.Store) Option {
	return func(e *Engine) {
		if store != nil {
			e.store = store
		}
	}
}
