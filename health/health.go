package health

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

type Status string

const (
	StatusUnknown   Status = "unknown"
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

const (
	// Consecutive probe failures before a provider is marked unhealthy.
	unhealthyThreshold = 3

	// Successful probes slower than this mark the provider degraded.
	degradedLatencyMs = 2000

	// Samples older than this no longer count towards availability.
	sampleRetention = 24 * time.Hour
)

// Prober checks one provider endpoint. Implementations must honor the
// context deadline.
type Prober interface {
	Probe(ctx context.Context, providerID string) (latencyMs int64, err error)
}

// ProberFunc adapts a function to the Prober interface.
type ProberFunc func(ctx context.Context, providerID string) (int64, error)

func (f ProberFunc) Probe(ctx context.Context, providerID string) (int64, error) {
	return f(ctx, providerID)
}

type sample struct {
	at        time.Time
	healthy   bool
	latencyMs int64
}

type providerState struct {
	status              Status
	consecutiveFailures int
	samples             []sample
	lastChecked         time.Time
}

// Snapshot is an immutable view of one provider's health, safe to hand to
// the scorer while probes keep running.
type Snapshot struct {
	ProviderID          string    `json:"provider_id"`
	Status              Status    `json:"status"`
	AvailabilityPct     float64   `json:"availability_pct"`
	HealthyRate         float64   `json:"healthy_rate"`
	AvgLatencyMs        float64   `json:"avg_latency_ms"`
	SampleCount         int       `json:"sample_count"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastChecked         time.Time `json:"last_checked"`
}

// StatusCallback is invoked on every status transition. Callbacks run in
// their own goroutine; a slow callback never blocks probing.
type StatusCallback func(providerID string, from Status, to Status)

type Monitor struct {
	mutex     sync.RWMutex
	providers map[string]*providerState

	prober       Prober
	probeTimeout time.Duration

	callbacks   []StatusCallback
	callbacksMu sync.RWMutex

	clock  clock.Clock
	logger *zap.SugaredLogger
}

func NewMonitor(prober Prober, probeTimeout time.Duration, logger *zap.SugaredLogger) *Monitor {
	return newMonitorWithClock(prober, probeTimeout, logger, clock.New())
}

func newMonitorWithClock(prober Prober, probeTimeout time.Duration, logger *zap.SugaredLogger, clk clock.Clock) *Monitor {
	return &Monitor{
		providers:    make(map[string]*providerState),
		prober:       prober,
		probeTimeout: probeTimeout,
		clock:        clk,
		logger:       logger,
	}
}

// Track registers a provider for monitoring. Tracking is idempotent; a
// tracked provider starts out unknown.
func (m *Monitor) Track(providerID string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, exists := m.providers[providerID]; !exists {
		m.providers[providerID] = &providerState{status: StatusUnknown}
	}
}

// OnStatusChange registers a callback for status transitions.
func (m *Monitor) OnStatusChange(callback StatusCallback) {
	m.callbacksMu.Lock()
	defer m.callbacksMu.Unlock()
	m.callbacks = append(m.callbacks, callback)
}

// RecordSample feeds one observation into the state machine. Outcomes
// reported by the routing engine and probe results go through the same path.
func (m *Monitor) RecordSample(providerID string, healthy bool, latencyMs int64) {
	now := m.clock.Now()

	m.mutex.Lock()
	state, exists := m.providers[providerID]
	if !exists {
		state = &providerState{status: StatusUnknown}
		m.providers[providerID] = state
	}

	state.samples = append(state.samples, sample{at: now, healthy: healthy, latencyMs: latencyMs})
	state.lastChecked = now
	pruneSamples(state, now)

	previous := state.status
	if healthy {
		state.consecutiveFailures = 0
		if latencyMs >= degradedLatencyMs {
			state.status = StatusDegraded
		} else {
			state.status = StatusHealthy
		}
	} else {
		state.consecutiveFailures++
		if state.consecutiveFailures >= unhealthyThreshold {
			state.status = StatusUnhealthy
		} else {
			state.status = StatusDegraded
		}
	}
	current := state.status
	m.mutex.Unlock()

	if previous != current {
		m.logger.Infow("provider status changed",
			"provider", providerID, "from", previous, "to", current)
		m.notify(providerID, previous, current)
	}
}

func (m *Monitor) notify(providerID string, from Status, to Status) {
	m.callbacksMu.RLock()
	callbacks := make([]StatusCallback, len(m.callbacks))
	copy(callbacks, m.callbacks)
	m.callbacksMu.RUnlock()

	for _, callback := range callbacks {
		go callback(providerID, from, to)
	}
}

func pruneSamples(state *providerState, now time.Time) {
	cutoff := now.Add(-sampleRetention)
	kept := state.samples[:0]
	for _, s := range state.samples {
		if s.at.After(cutoff) {
			kept = append(kept, s)
		}
	}
	state.samples = kept
}

// GetSnapshot returns the current view of one provider. Unknown providers
// report zero samples and 100% availability.
func (m *Monitor) GetSnapshot(providerID string) Snapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.snapshotLocked(providerID)
}

func (m *Monitor) snapshotLocked(providerID string) Snapshot {
	snapshot := Snapshot{
		ProviderID:      providerID,
		Status:          StatusUnknown,
		AvailabilityPct: 100,
	}
	state, exists := m.providers[providerID]
	if !exists {
		return snapshot
	}

	snapshot.Status = state.status
	snapshot.ConsecutiveFailures = state.consecutiveFailures
	snapshot.LastChecked = state.lastChecked
	snapshot.SampleCount = len(state.samples)
	if len(state.samples) == 0 {
		return snapshot
	}

	healthyCount := 0
	var latencySum int64
	for _, s := range state.samples {
		if s.healthy {
			healthyCount++
			latencySum += s.latencyMs
		}
	}
	snapshot.AvailabilityPct = float64(healthyCount) / float64(len(state.samples)) * 100
	snapshot.HealthyRate = float64(healthyCount) / float64(len(state.samples))
	if healthyCount > 0 {
		snapshot.AvgLatencyMs = float64(latencySum) / float64(healthyCount)
	}
	return snapshot
}

// Snapshots returns the current view of every tracked provider.
func (m *Monitor) Snapshots() map[string]Snapshot {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	snapshots := make(map[string]Snapshot, len(m.providers))
	for providerID := range m.providers {
		snapshots[providerID] = m.snapshotLocked(providerID)
	}
	return snapshots
}

// AvailableProviders returns tracked providers that are healthy or degraded.
func (m *Monitor) AvailableProviders() []string {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	var available []string
	for providerID, state := range m.providers {
		if state.status == StatusHealthy || state.status == StatusDegraded {
			available = append(available, providerID)
		}
	}
	return available
}

// CheckAll probes every tracked provider concurrently, each under its own
// timeout, and feeds the results into the state machine.
func (m *Monitor) CheckAll(ctx context.Context) {
	m.mutex.RLock()
	providerIDs := make([]string, 0, len(m.providers))
	for providerID := range m.providers {
		providerIDs = append(providerIDs, providerID)
	}
	m.mutex.RUnlock()

	var wg sync.WaitGroup
	for _, providerID := range providerIDs {
		wg.Add(1)
		go func(providerID string) {
			defer wg.Done()
			m.probe(ctx, providerID)
		}(providerID)
	}
	wg.Wait()
}

// ForceCheck probes a single provider immediately and returns the fresh
// snapshot.
func (m *Monitor) ForceCheck(ctx context.Context, providerID string) Snapshot {
	m.Track(providerID)
	m.probe(ctx, providerID)
	return m.GetSnapshot(providerID)
}

func (m *Monitor) probe(ctx context.Context, providerID string) {
	probeCtx, cancel := context.WithTimeout(ctx, m.probeTimeout)
	defer cancel()

	latencyMs, err := m.prober.Probe(probeCtx, providerID)
	if err != nil {
		m.logger.Warnw("health probe failed", "provider", providerID, "error", err)
		m.RecordSample(providerID, false, 0)
		return
	}
	m.RecordSample(providerID, true, latencyMs)
}

// Start launches the periodic check loop. The returned stop function halts
// the loop; in-flight probes finish on their own.
func (m *Monitor) Start(ctx context.Context, interval time.Duration) func() {
	ticker := m.clock.Ticker(interval)
	done := make(chan bool)

	go func() {
		for {
			select {
			case <-ticker.C:
				m.CheckAll(ctx)
			case <-done:
				ticker.Stop()
				return
			case <-ctx.Done():
				ticker.Stop()
				return
			}
		}
	}()

	return func() {
		close(done)
	}
}
