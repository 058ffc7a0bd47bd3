package auth

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStateStore(t *testing.T, store StateStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("consumes once", func(t *testing.T) {
		state := newStateToken()
		created := time.Now().UTC().Truncate(time.Second)
		require.NoError(t, store.Save(ctx, state, StateData{CodeVerifier: "verifier", CreatedAt: created}, time.Minute))

		data, err := store.Consume(ctx, state)
		require.NoError(t, err)
		assert.Equal(t, "verifier", data.CodeVerifier)
		assert.True(t, created.Equal(data.CreatedAt))

		_, err = store.Consume(ctx, state)
		assert.ErrorIs(t, err, ErrInvalidState)
	})

	t.Run("rejects unknown and empty states", func(t *testing.T) {
		_, err := store.Consume(ctx, "unknown")
		assert.ErrorIs(t, err, ErrInvalidState)

		_, err = store.Consume(ctx, "")
		assert.ErrorIs(t, err, ErrInvalidState)

		assert.ErrorIs(t, store.Save(ctx, "", StateData{}, time.Minute), ErrInvalidState)
	})

	t.Run("does not overwrite an existing state", func(t *testing.T) {
		state := newStateToken()
		require.NoError(t, store.Save(ctx, state, StateData{CodeVerifier: "first"}, time.Minute))
		assert.Error(t, store.Save(ctx, state, StateData{CodeVerifier: "second"}, time.Minute))

		data, err := store.Consume(ctx, state)
		require.NoError(t, err)
		assert.Equal(t, "first", data.CodeVerifier)
	})

	t.Run("concurrent consumers see the state once", func(t *testing.T) {
		state := newStateToken()
		require.NoError(t, store.Save(ctx, state, StateData{}, time.Minute))

		var wins atomic.Int32
		var wg sync.WaitGroup
		for i := 0; i < 16; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := store.Consume(ctx, state); err == nil {
					wins.Add(1)
				}
			}()
		}
		wg.Wait()
		assert.Equal(t, int32(1), wins.Load())
	})
}

func TestMemoryStateStore(t *testing.T) {
	store := NewMemoryStateStore(time.Minute)
	testStateStore(t, store)

	t.Run("expires", func(t *testing.T) {
		state := newStateToken()
		require.NoError(t, store.Save(context.Background(), state, StateData{}, 10*time.Millisecond))
		time.Sleep(50 * time.Millisecond)

		_, err := store.Consume(context.Background(), state)
		assert.ErrorIs(t, err, ErrInvalidState)
	})
}

func TestRedisStateStore(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := NewRedisStateStore(client, "")
	testStateStore(t, store)

	t.Run("uses the key prefix", func(t *testing.T) {
		state := newStateToken()
		require.NoError(t, store.Save(context.Background(), state, StateData{CodeVerifier: "v"}, time.Minute))
		assert.True(t, mr.Exists("lineauth:state:"+state))
		assert.Equal(t, time.Minute, mr.TTL("lineauth:state:"+state))

		_, err := store.Consume(context.Background(), state)
		require.NoError(t, err)
		assert.False(t, mr.Exists("lineauth:state:"+state))
	})

	t.Run("expires", func(t *testing.T) {
		state := newStateToken()
		require.NoError(t, store.Save(context.Background(), state, StateData{}, time.Minute))
		mr.FastForward(2 * time.Minute)

		_, err := store.Consume(context.Background(), state)
		assert.ErrorIs(t, err, ErrInvalidState)
	})

	t.Run("rejects corrupt entries", func(t *testing.T) {
		require.NoError(t, mr.Set("lineauth:state:corrupt", "not-json"))

		_, err := store.Consume(context.Background(), "corrupt")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrInvalidState)
	})

	t.Run("reports connection failures", func(t *testing.T) {
		down := NewRedisStateStore(redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1}), "")

		_, err := down.Consume(context.Background(), "state")
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrInvalidState)
		assert.Error(t, down.Save(context.Background(), "state", StateData{}, time.Minute))
	})
}

func TestRedisStateStoreLive(t *testing.T) {
	addr := os.Getenv("LINEAUTH_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("LINEAUTH_TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	require.NoError(t, client.Ping(context.Background()).Err())

	testStateStore(t, NewRedisStateStore(client, "lineauth:test:state:"))
}
