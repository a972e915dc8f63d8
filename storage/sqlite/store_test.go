package sqlite

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/c0deZ3R0/go-cart-sync/identity"
	"github.com/c0deZ3R0/go-cart-sync/logging"
)

func openTestKV(t *testing.T) (*KV, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "cart.db")
	cfg := DefaultConfig(path)
	cfg.Logger = logging.Discard()
	kv, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { kv.Close() })
	return kv, path
}

func TestKV_GetSetDelete(t *testing.T) {
	ctx := context.Background()
	kv, _ := openTestKV(t)

	_, err := kv.Get(ctx, "missing")
	assert.ErrorIs(t, err, identity.ErrNotFound)

	require.NoError(t, kv.Set(ctx, "access_token", "a"))
	require.NoError(t, kv.Set(ctx, "access_token", "b"))
	v, err := kv.Get(ctx, "access_token")
	require.NoError(t, err)
	assert.Equal(t, "b", v)

	require.NoError(t, kv.Delete(ctx, "access_token"))
	require.NoError(t, kv.Delete(ctx, "access_token"))
	_, err = kv.Get(ctx, "access_token")
	assert.ErrorIs(t, err, identity.ErrNotFound)
}

func TestKV_GetOrCreateKeepsFirstValue(t *testing.T) {
	ctx := context.Background()
	kv, _ := openTestKV(t)

	first, err := kv.GetOrCreate(ctx, identity.GuestTokenKey, "one")
	require.NoError(t, err)
	second, err := kv.GetOrCreate(ctx, identity.GuestTokenKey, "two")
	require.NoError(t, err)

	assert.Equal(t, "one", first)
	assert.Equal(t, "one", second)
}

func TestKV_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cart.db")

	kv1, err := Open(path)
	require.NoError(t, err)
	token, err := identity.NewResolver(kv1, nil).GuestToken(ctx)
	require.NoError(t, err)
	require.NoError(t, kv1.Close())

	kv2, err := Open(path)
	require.NoError(t, err)
	defer kv2.Close()
	again, err := identity.NewResolver(kv2, nil).GuestToken(ctx)
	require.NoError(t, err)

	assert.Equal(t, token, again)
}

// Two handles on one file stand in for two processes (e.g. browser tabs)
// racing to create the guest token.
func TestKV_ConcurrentGuestTokenCreationAcrossHandles(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cart.db")

	handles := make([]*KV, 2)
	for i := range handles {
		kv, err := Open(path)
		require.NoError(t, err)
		defer kv.Close()
		handles[i] = kv
	}

	var wg sync.WaitGroup
	tokens := make([]string, 10)
	for i := range tokens {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tok, err := identity.NewResolver(handles[i%2], nil).GuestToken(ctx)
			assert.NoError(t, err)
			tokens[i] = tok
		}(i)
	}
	wg.Wait()

	for _, tok := range tokens {
		assert.Equal(t, tokens[0], tok)
	}
}

func TestKV_Closed(t *testing.T) {
	kv, _ := openTestKV(t)
	require.NoError(t, kv.Close())
	require.NoError(t, kv.Close())

	_, err := kv.Get(context.Background(), "k")
	assert.ErrorIs(t, err, ErrStoreClosed)
	assert.ErrorIs(t, kv.Set(context.Background(), "k", "v"), ErrStoreClosed)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)

	_, err = New(&Config{})
	assert.Error(t, err)

	_, err = New(&Config{DataSourceName: ":memory:", TableName: "kv; DROP TABLE x"})
	assert.Error(t, err)

	kv, err := New(&Config{DataSourceName: ":memory:", Logger: logging.Discard()})
	require.NoError(t, err)
	defer kv.Close()
	require.NoError(t, kv.Set(context.Background(), "k", "v"))
}
