package sse

import (
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/c0deZ3R0/go-cart-sync/logging"
)

// Broadcaster is an http.Handler streaming named events to every
// connected client. Clients are keyed by a caller-chosen scope, e.g. the
// user a reset concerns; an empty scope receives every event.
type Broadcaster struct {
	// Scope extracts the client's scope from its request.
	Scope func(r *http.Request) string

	// KeepAlive is the interval of comment lines keeping idle streams open.
	KeepAlive time.Duration

	Logger *logging.Logger

	mu      sync.Mutex
	clients map[chan string]string
}

// NewBroadcaster creates a Broadcaster.
func NewBroadcaster(scope func(r *http.Request) string, logger *logging.Logger) *Broadcaster {
	if logger == nil {
		logger = logging.Default()
	}
	return &Broadcaster{
		Scope:     scope,
		KeepAlive: 15 * time.Second,
		Logger:    logger.WithComponent(logging.Component(component)),
		clients:   make(map[chan string]string),
	}
}

// Publish sends event to every client in scope and returns how many were
// reached. Slow clients miss events rather than block the publisher.
func (b *Broadcaster) Publish(scope, event string) int {
	msg := formatEvent(event, "")

	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for ch, s := range b.clients {
		if scope != "" && s != "" && s != scope {
			continue
		}
		select {
		case ch <- msg:
			n++
		default:
			b.Logger.Warn("Dropping event for slow client", slog.String("event", event))
		}
	}
	return n
}

// Clients returns the number of connected clients.
func (b *Broadcaster) Clients() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	scope := ""
	if b.Scope != nil {
		scope = b.Scope(r)
	}
	b.ServeScoped(w, r, scope)
}

// ServeScoped streams events for scope until the client goes away.
func (b *Broadcaster) ServeScoped(w http.ResponseWriter, r *http.Request, scope string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	ch := make(chan string, 8)
	b.mu.Lock()
	b.clients[ch] = scope
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		delete(b.clients, ch)
		b.mu.Unlock()
	}()

	keepAlive := b.KeepAlive
	if keepAlive <= 0 {
		keepAlive = 15 * time.Second
	}
	ticker := time.NewTicker(keepAlive)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-ch:
			fmt.Fprint(w, msg)
			flusher.Flush()
		case <-ticker.C:
			fmt.Fprint(w, ": keep-alive\n\n")
			flusher.Flush()
		}
	}
}
