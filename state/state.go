package state

import (
	"context"
	"time"
)

type Manager interface {
	// Records one request under the given key and returns the number of
	// requests observed within the sliding window, the new one included.
	CountRequest(ctx context.Context, key string, window time.Duration) (int64, error)

	// Saves the cache for a given key with a given duration.
	SaveCache(ctx context.Context, key string, value []byte, duration time.Duration) error

	// Loads the cache for a given key. Returns nil without error on a miss.
	LoadCache(ctx context.Context, key string) ([]byte, error)
}
