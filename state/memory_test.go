package state

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
)

func TestMemoryManager(t *testing.T) {
	t.Run("New memory manager", func(t *testing.T) {
		mockClock := clock.NewMock()
		manager, cleanup := newMemoryManagerWithClock(mockClock)
		defer cleanup()

		assert.NotNil(t, manager)
		assert.NotNil(t, manager.requests)
		assert.NotNil(t, manager.cache)
	})

	t.Run("CountRequest sliding window", func(t *testing.T) {
		mockClock := clock.NewMock()
		manager, cleanup := newMemoryManagerWithClock(mockClock)
		defer cleanup()

		ctx := context.Background()
		window := time.Minute

		count, err := manager.CountRequest(ctx, "ip:10.0.0.1", window)
		assert.NoError(t, err)
		assert.Equal(t, int64(1), count)

		count, err = manager.CountRequest(ctx, "ip:10.0.0.1", window)
		assert.NoError(t, err)
		assert.Equal(t, int64(2), count)

		// A different client counts independently.
		count, err = manager.CountRequest(ctx, "ip:10.0.0.2", window)
		assert.NoError(t, err)
		assert.Equal(t, int64(1), count)

		// Old requests fall out of the window.
		mockClock.Add(window + time.Second)
		count, err = manager.CountRequest(ctx, "ip:10.0.0.1", window)
		assert.NoError(t, err)
		assert.Equal(t, int64(1), count)
	})

	t.Run("CountRequest partial expiry", func(t *testing.T) {
		mockClock := clock.NewMock()
		manager, cleanup := newMemoryManagerWithClock(mockClock)
		defer cleanup()

		ctx := context.Background()
		window := time.Minute

		for i := 0; i < 3; i++ {
			_, err := manager.CountRequest(ctx, "user:alice", window)
			assert.NoError(t, err)
			mockClock.Add(25 * time.Second)
		}

		// Requests at t=0 and t=25s have expired at t=75s; only t=50s and
		// the new one remain.
		count, err := manager.CountRequest(ctx, "user:alice", window)
		assert.NoError(t, err)
		assert.Equal(t, int64(2), count)
	})

	t.Run("Cache save and load", func(t *testing.T) {
		mockClock := clock.NewMock()
		manager, cleanup := newMemoryManagerWithClock(mockClock)
		defer cleanup()

		ctx := context.Background()

		err := manager.SaveCache(ctx, "flag", []byte("emergency"), time.Minute)
		assert.NoError(t, err)

		value, err := manager.LoadCache(ctx, "flag")
		assert.NoError(t, err)
		assert.Equal(t, []byte("emergency"), value)
	})

	t.Run("Cache expiry", func(t *testing.T) {
		mockClock := clock.NewMock()
		manager, cleanup := newMemoryManagerWithClock(mockClock)
		defer cleanup()

		ctx := context.Background()

		err := manager.SaveCache(ctx, "flag", []byte("emergency"), time.Minute)
		assert.NoError(t, err)

		mockClock.Add(time.Minute + time.Second)

		value, err := manager.LoadCache(ctx, "flag")
		assert.NoError(t, err)
		assert.Nil(t, value)
	})

	t.Run("Cache miss returns nil", func(t *testing.T) {
		mockClock := clock.NewMock()
		manager, cleanup := newMemoryManagerWithClock(mockClock)
		defer cleanup()

		value, err := manager.LoadCache(context.Background(), "missing")
		assert.NoError(t, err)
		assert.Nil(t, value)
	})

	t.Run("Cleanup prunes stale entries", func(t *testing.T) {
		mockClock := clock.NewMock()
		manager, cleanup := newMemoryManagerWithClock(mockClock)
		defer cleanup()

		ctx := context.Background()
		_, err := manager.CountRequest(ctx, "ip:10.0.0.1", time.Minute)
		assert.NoError(t, err)
		err = manager.SaveCache(ctx, "flag", []byte("x"), time.Minute)
		assert.NoError(t, err)

		// Cleanup runs every 5 minutes; after an idle hour both the request
		// history and the cache entry are gone.
		mockClock.Add(time.Hour + 6*time.Minute)

		manager.requestsMu.Lock()
		assert.Empty(t, manager.requests)
		manager.requestsMu.Unlock()

		manager.cacheMu.RLock()
		assert.Empty(t, manager.cache)
		manager.cacheMu.RUnlock()
	})

	t.Run("Concurrent counting", func(t *testing.T) {
		mockClock := clock.NewMock()
		manager, cleanup := newMemoryManagerWithClock(mockClock)
		defer cleanup()

		ctx := context.Background()
		done := make(chan struct{})
		for i := 0; i < 10; i++ {
			go func(i int) {
				defer func() { done <- struct{}{} }()
				for j := 0; j < 100; j++ {
					_, err := manager.CountRequest(ctx, fmt.Sprintf("ip:10.0.0.%d", i%3), time.Minute)
					assert.NoError(t, err)
				}
			}(i)
		}
		for i := 0; i < 10; i++ {
			<-done
		}
	})
}
