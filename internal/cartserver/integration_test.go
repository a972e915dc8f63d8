package cartserver_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c0deZ3R0/go-cart-sync/cart"
	"github.com/c0deZ3R0/go-cart-sync/errors"
	"github.com/c0deZ3R0/go-cart-sync/identity"
	"github.com/c0deZ3R0/go-cart-sync/internal/cartserver"
	"github.com/c0deZ3R0/go-cart-sync/logging"
	"github.com/c0deZ3R0/go-cart-sync/synckit"
	"github.com/c0deZ3R0/go-cart-sync/transport/httptransport"
	"github.com/c0deZ3R0/go-cart-sync/transport/sse"
)

type stack struct {
	server   *cartserver.Server
	http     *httptest.Server
	kv       *identity.MemoryKV
	tokens   *httptransport.TokenManager
	resolver *identity.Resolver
	engine   *synckit.Engine

	failPatch atomic.Bool
}

func newStack(t *testing.T) *stack {
	t.Helper()
	s := &stack{server: cartserver.New(cartserver.Config{Logger: logging.Discard(), KeepAlive: 50 * time.Millisecond})}

	handler := s.server.Handler()
	s.http = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPatch && s.failPatch.Load() {
			http.Error(w, `{"error":"boom","code":"INTERNAL"}`, http.StatusInternalServerError)
			return
		}
		handler.ServeHTTP(w, r)
	}))
	t.Cleanup(s.http.Close)

	s.kv = identity.NewMemoryKV()
	s.tokens = httptransport.NewTokenManager(s.kv, httptransport.WithTokenLogger(logging.Discard()))
	s.resolver = identity.NewResolver(s.kv, s.tokens)

	client, err := httptransport.NewClientWithLogger(s.http.URL, s.resolver, nil, nil, logging.Discard())
	require.NoError(t, err)

	s.engine, err = synckit.NewEngine(client, s.resolver, synckit.WithLogger(logging.Discard()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.engine.Close() })
	return s
}

func bundle(id cart.BundleID, price string, qty int) cart.Item {
	return cart.Item{ID: id, Title: "bundle", Price: cart.MustDecimal(price), Quantity: qty}
}

func quantityOf(s cart.State, id cart.BundleID) int {
	it, _ := s.Find(id)
	return it.Quantity
}

func TestEndToEnd_GuestThenLoginMergesOnce(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	require.True(t, s.engine.Start(ctx).OK())

	res := s.engine.Add(ctx, bundle(1, "12.90", 2), synckit.Impact{})
	require.True(t, res.OK(), "add failed: %v", res.Err)
	line, ok := res.State.Find(1)
	require.True(t, ok)
	assert.True(t, line.ServerItemID.Known())
	assert.Equal(t, "Ferme du Lac", line.ProducerName)

	guest, err := s.resolver.GuestToken(ctx)
	require.NoError(t, err)
	assert.Len(t, s.server.Store().Cart(cartserver.Owner{Guest: guest}), 1)

	// the user already has one of the same bundle on the server
	require.NoError(t, s.server.Store().AddLine(cartserver.Owner{User: "alice"}, cartserver.LineInput{BundleID: 1, Quantity: 1}))
	require.NoError(t, s.tokens.SetCredential(ctx, "alice"))

	res = s.engine.Reload(ctx)
	require.True(t, res.OK(), "reload failed: %v", res.Err)
	assert.Equal(t, 3, quantityOf(res.State, 1))
	assert.Empty(t, s.server.Store().Cart(cartserver.Owner{Guest: guest}))

	// a later guest line is not folded in again during the same session
	require.NoError(t, s.server.Store().AddLine(cartserver.Owner{Guest: guest}, cartserver.LineInput{BundleID: 2, Quantity: 1}))
	res = s.engine.Reload(ctx)
	require.True(t, res.OK())
	assert.Equal(t, 1, res.State.Len())
	assert.Len(t, s.server.Store().Cart(cartserver.Owner{Guest: guest}), 1)

	res = s.engine.UpdateQuantity(ctx, 1, 5, synckit.Impact{})
	require.True(t, res.OK(), "update failed: %v", res.Err)
	assert.Equal(t, 5, s.server.Store().Cart(cartserver.Owner{User: "alice"})[0].Quantity)

	res = s.engine.RemoveFromCart(ctx, 1)
	require.True(t, res.OK(), "remove failed: %v", res.Err)
	assert.Empty(t, s.server.Store().Cart(cartserver.Owner{User: "alice"}))
}

func TestEndToEnd_UpdateRollsBackOnServerError(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	require.True(t, s.engine.Add(ctx, bundle(2, "18.50", 2), synckit.Impact{}).OK())
	s.failPatch.Store(true)

	res := s.engine.UpdateQuantity(ctx, 2, 4, synckit.Impact{})
	require.True(t, res.Failed())
	assert.Equal(t, synckit.RecoveryRolledBack, res.Recovery)
	assert.Equal(t, errors.KindRemote, errors.KindOf(res.Err))
	assert.Equal(t, 2, quantityOf(res.State, 2))
	assert.Equal(t, 2, quantityOf(s.engine.State(), 2))
}

func TestEndToEnd_LogoutStreamsReset(t *testing.T) {
	s := newStack(t)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	require.NoError(t, s.tokens.SetCredential(ctx, "alice"))
	require.True(t, s.engine.Start(ctx).OK())
	require.True(t, s.engine.Add(ctx, bundle(3, "6.20", 1), synckit.Impact{}).OK())
	require.Equal(t, 1, s.engine.State().Len())

	source := sse.NewResetSource(s.http.URL+"/events/", s.engine.Bus(), s.http.Client())
	source.Identity = s.resolver
	source.RetryWait = 10 * time.Millisecond
	source.Logger = logging.Discard()
	go func() { _ = source.Run(ctx) }()

	require.Eventually(t, func() bool { return s.server.Broadcaster().Clients() == 1 }, 2*time.Second, 10*time.Millisecond)

	req, err := http.NewRequest(http.MethodPost, s.http.URL+"/auth/logout/", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer alice")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	require.Eventually(t, func() bool { return s.engine.State().Len() == 0 }, 2*time.Second, 10*time.Millisecond)

	// the server cart is untouched; only the local copy was reset
	assert.Len(t, s.server.Store().Cart(cartserver.Owner{User: "alice"}), 1)
}
