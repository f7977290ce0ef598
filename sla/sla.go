package sla

import (
	"fmt"
	"math"
	"sort"
	"sync"

	"go.uber.org/zap"
)

// Samples kept per (provider, model) pair. Old samples roll off so the p95
// tracks current behavior, not history.
const maxSamples = 100

// Compliance is the result of checking one (provider, model) pair against a
// latency target.
type Compliance struct {
	Compliant     bool    `json:"compliant"`
	CurrentP95    float64 `json:"current_p95"`
	DataAvailable bool    `json:"data_available"`
}

// Monitor keeps rolling latency samples per (provider, model) pair and
// answers p95 compliance questions.
type Monitor struct {
	mutex sync.RWMutex

	// Key "provider:model" -> most recent samples, oldest first.
	samples map[string][]float64

	logger *zap.SugaredLogger
}

func NewMonitor(logger *zap.SugaredLogger) *Monitor {
	return &Monitor{
		samples: make(map[string][]float64),
		logger:  logger,
	}
}

func sampleKey(providerID string, model string) string {
	return fmt.Sprintf("%s:%s", providerID, model)
}

// RecordLatency adds one observed latency in milliseconds.
func (m *Monitor) RecordLatency(providerID string, model string, latencyMs float64) {
	key := sampleKey(providerID, model)

	m.mutex.Lock()
	defer m.mutex.Unlock()

	samples := append(m.samples[key], latencyMs)
	if len(samples) > maxSamples {
		samples = samples[len(samples)-maxSamples:]
	}
	m.samples[key] = samples
}

// P95 returns the 95th percentile latency for the pair. The second return
// value is false when no samples exist.
func (m *Monitor) P95(providerID string, model string) (float64, bool) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	samples := m.samples[sampleKey(providerID, model)]
	if len(samples) == 0 {
		return 0, false
	}

	sorted := make([]float64, len(samples))
	copy(sorted, samples)
	sort.Float64s(sorted)

	index := int(math.Ceil(0.95*float64(len(sorted)))) - 1
	if index < 0 {
		index = 0
	}
	return sorted[index], true
}

// CheckCompliance compares the current p95 against the target. Pairs with
// no samples report data_available=false and are never compliant.
func (m *Monitor) CheckCompliance(providerID string, model string, targetMs float64) Compliance {
	p95, ok := m.P95(providerID, model)
	if !ok {
		return Compliance{}
	}
	return Compliance{
		Compliant:     p95 <= targetMs,
		CurrentP95:    p95,
		DataAvailable: true,
	}
}

// Score converts a compliance check into a scoring contribution. Compliant
// pairs earn a flat bonus; violations are penalized in proportion to how far
// the p95 overruns the target, floored at -20. The second return value is
// false when there is no data to judge, so the caller can substitute a
// health-derived estimate.
func Score(compliance Compliance, targetMs float64) (float64, bool) {
	if !compliance.DataAvailable || targetMs <= 0 {
		return 0, false
	}
	if compliance.Compliant {
		return 20, true
	}
	overrun := compliance.CurrentP95 / targetMs
	return math.Max(-20, 10-(overrun-1)*15), true
}
