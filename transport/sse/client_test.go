package sse

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c0deZ3R0/go-cart-sync/errors"
	"github.com/c0deZ3R0/go-cart-sync/identity"
	"github.com/c0deZ3R0/go-cart-sync/logging"
	"github.com/c0deZ3R0/go-cart-sync/signal"
)

func countResets(bus *signal.Bus) *int32 {
	var n int32
	bus.Subscribe(signal.CartReset, func() { atomic.AddInt32(&n, 1) })
	return &n
}

func TestResetSource_PublishesCartResetEvents(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "text/event-stream", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, ": hello\n\n")
		fmt.Fprint(w, "event: cart-reset\ndata: {}\n\n")
		fmt.Fprint(w, "event: price-changed\ndata: {\"bundle_id\": 3}\n\n")
		fmt.Fprint(w, "data: no event name\n\n")
		fmt.Fprint(w, "event: cart-reset\n\n")
	}))
	defer server.Close()

	bus := signal.NewBus()
	resets := countResets(bus)
	src := NewResetSource(server.URL, bus, nil)
	src.Logger = logging.Discard()

	require.NoError(t, src.Subscribe(context.Background()))
	assert.Equal(t, int32(2), atomic.LoadInt32(resets))
}

func TestResetSource_SendsIdentity(t *testing.T) {
	var got http.Header
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Clone()
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	creds := &identity.StaticCredential{}
	creds.Set("user-token")
	src := NewResetSource(server.URL, signal.NewBus(), nil)
	src.Logger = logging.Discard()
	src.Identity = identity.NewResolver(identity.NewMemoryKV(), creds)

	require.NoError(t, src.Subscribe(context.Background()))
	assert.Equal(t, "Bearer user-token", got.Get("Authorization"))
	assert.Empty(t, got.Get(identity.DefaultGuestHeader))
}

func TestResetSource_ErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	src := NewResetSource(server.URL, signal.NewBus(), nil)
	err := src.Subscribe(context.Background())
	require.Error(t, err)
	assert.Equal(t, errors.KindRemote, errors.KindOf(err))
	assert.Equal(t, http.StatusServiceUnavailable, errors.StatusCode(err))
}

func TestResetSource_RunReconnects(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		attempts++
		attempt := attempts
		mu.Unlock()

		if attempt <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "retry: 10\nevent: cart-reset\n\n")
	}))
	defer server.Close()

	bus := signal.NewBus()
	received := make(chan struct{}, 1)
	bus.Subscribe(signal.CartReset, func() {
		select {
		case received <- struct{}{}:
		default:
		}
	})

	src := NewResetSource(server.URL, bus, nil)
	src.Logger = logging.Discard()
	src.RetryWait = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- src.Run(ctx) }()

	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("reset was not received after reconnecting")
	}
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func TestBroadcaster_EndToEnd(t *testing.T) {
	b := NewBroadcaster(func(r *http.Request) string { return r.URL.Query().Get("user") }, logging.Discard())
	server := httptest.NewServer(b)
	defer server.Close()

	bus := signal.NewBus()
	received := make(chan struct{}, 4)
	bus.Subscribe(signal.CartReset, func() { received <- struct{}{} })

	src := NewResetSource(server.URL+"?user=u1", bus, nil)
	src.Logger = logging.Discard()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- src.Subscribe(ctx) }()

	require.Eventually(t, func() bool { return b.Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, 0, b.Publish("u2", signal.CartReset), "other users' resets are not delivered")
	assert.Equal(t, 1, b.Publish("u1", signal.CartReset))

	select {
	case <-received:
	case <-time.After(2 * time.Second):
		t.Fatal("reset was not delivered")
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Subscribe did not return after cancellation")
	}
	require.Eventually(t, func() bool { return b.Clients() == 0 }, 2*time.Second, 10*time.Millisecond)
}
