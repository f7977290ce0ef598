package state

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

type cacheEntry struct {
	value []byte

	// Expiry time in unix nanoseconds.
	expiry int64
}

type MemoryManager struct {
	// Key (scope:client) -> request timestamps in unix nanoseconds,
	// oldest first. Pruned against the window on every count.
	requests   map[string][]int64
	requestsMu sync.Mutex

	// Any string key -> cache entry
	cache   map[string]*cacheEntry
	cacheMu sync.RWMutex

	// Clock interface for time-related operations. Must use this to avoid
	// flakiness in tests.
	clock clock.Clock
}

func NewMemoryManager() (*MemoryManager, func()) {
	return newMemoryManagerWithClock(clock.New())
}

func newMemoryManagerWithClock(clk clock.Clock) (*MemoryManager, func()) {
	m := &MemoryManager{
		requests: make(map[string][]int64),
		cache:    make(map[string]*cacheEntry),
		clock:    clk,
	}
	stop := m.startCleanup(5 * time.Minute)
	return m, stop
}

func (m *MemoryManager) CountRequest(
	ctx context.Context, key string, window time.Duration,
) (int64, error) {
	now := m.clock.Now().UnixNano()
	cutoff := now - window.Nanoseconds()

	m.requestsMu.Lock()
	defer m.requestsMu.Unlock()

	timestamps := m.requests[key]
	pruned := timestamps[:0]
	for _, ts := range timestamps {
		if ts > cutoff {
			pruned = append(pruned, ts)
		}
	}
	pruned = append(pruned, now)
	m.requests[key] = pruned
	return int64(len(pruned)), nil
}

func (m *MemoryManager) SaveCache(
	ctx context.Context, key string, value []byte, duration time.Duration,
) error {
	m.cacheMu.Lock()
	defer m.cacheMu.Unlock()

	m.cache[key] = &cacheEntry{
		value:  value,
		expiry: m.clock.Now().UnixNano() + duration.Nanoseconds(),
	}
	return nil
}

func (m *MemoryManager) LoadCache(
	ctx context.Context, key string,
) ([]byte, error) {
	m.cacheMu.RLock()
	defer m.cacheMu.RUnlock()

	entry, exists := m.cache[key]
	if !exists || entry.expiry <= m.clock.Now().UnixNano() {
		return nil, nil
	}
	return entry.value, nil
}

func (m *MemoryManager) cleanup() {
	now := m.clock.Now().UnixNano()

	m.requestsMu.Lock()
	for key, timestamps := range m.requests {
		if len(timestamps) == 0 || timestamps[len(timestamps)-1] <= now-time.Hour.Nanoseconds() {
			delete(m.requests, key)
		}
	}
	m.requestsMu.Unlock()

	m.cacheMu.Lock()
	for key, entry := range m.cache {
		if entry.expiry <= now {
			delete(m.cache, key)
		}
	}
	m.cacheMu.Unlock()
}

func (m *MemoryManager) startCleanup(interval time.Duration) func() {
	ticker := m.clock.Ticker(interval)
	done := make(chan bool)

	go func() {
		for {
			select {
			case <-ticker.C:
				m.cleanup()
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()

	return func() {
		close(done)
	}
}
