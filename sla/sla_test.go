package sla

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func newTestMonitor() *Monitor {
	return NewMonitor(zap.NewNop().Sugar())
}

func TestP95(t *testing.T) {
	t.Run("no samples", func(t *testing.T) {
		monitor := newTestMonitor()
		_, ok := monitor.P95("openai", "gpt-4o")
		assert.False(t, ok)
	})

	t.Run("single sample", func(t *testing.T) {
		monitor := newTestMonitor()
		monitor.RecordLatency("openai", "gpt-4o", 120)

		p95, ok := monitor.P95("openai", "gpt-4o")
		assert.True(t, ok)
		assert.Equal(t, 120.0, p95)
	})

	t.Run("p95 over a spread", func(t *testing.T) {
		monitor := newTestMonitor()
		for i := 1; i <= 100; i++ {
			monitor.RecordLatency("openai", "gpt-4o", float64(i*10))
		}

		p95, ok := monitor.P95("openai", "gpt-4o")
		assert.True(t, ok)
		assert.Equal(t, 950.0, p95)
	})

	t.Run("pairs are independent", func(t *testing.T) {
		monitor := newTestMonitor()
		monitor.RecordLatency("openai", "gpt-4o", 100)
		monitor.RecordLatency("openai", "gpt-4o-mini", 999)

		p95, ok := monitor.P95("openai", "gpt-4o")
		assert.True(t, ok)
		assert.Equal(t, 100.0, p95)
	})

	t.Run("old samples roll off", func(t *testing.T) {
		monitor := newTestMonitor()
		// Fill the window with slow samples, then push them all out.
		for i := 0; i < maxSamples; i++ {
			monitor.RecordLatency("openai", "gpt-4o", 5000)
		}
		for i := 0; i < maxSamples; i++ {
			monitor.RecordLatency("openai", "gpt-4o", 100)
		}

		p95, ok := monitor.P95("openai", "gpt-4o")
		assert.True(t, ok)
		assert.Equal(t, 100.0, p95)
	})
}

func TestCheckCompliance(t *testing.T) {
	t.Run("no data", func(t *testing.T) {
		monitor := newTestMonitor()
		compliance := monitor.CheckCompliance("openai", "gpt-4o", 1000)

		assert.False(t, compliance.DataAvailable)
		assert.False(t, compliance.Compliant)
	})

	t.Run("compliant when p95 within target", func(t *testing.T) {
		monitor := newTestMonitor()
		monitor.RecordLatency("openai", "gpt-4o", 400)

		compliance := monitor.CheckCompliance("openai", "gpt-4o", 1000)
		assert.True(t, compliance.DataAvailable)
		assert.True(t, compliance.Compliant)
		assert.Equal(t, 400.0, compliance.CurrentP95)
	})

	t.Run("violation when p95 over target", func(t *testing.T) {
		monitor := newTestMonitor()
		monitor.RecordLatency("openai", "gpt-4o", 1500)

		compliance := monitor.CheckCompliance("openai", "gpt-4o", 1000)
		assert.True(t, compliance.DataAvailable)
		assert.False(t, compliance.Compliant)
	})

	t.Run("exactly on target is compliant", func(t *testing.T) {
		monitor := newTestMonitor()
		monitor.RecordLatency("openai", "gpt-4o", 1000)

		compliance := monitor.CheckCompliance("openai", "gpt-4o", 1000)
		assert.True(t, compliance.Compliant)
	})
}

func TestScore(t *testing.T) {
	t.Run("no data delegates to caller", func(t *testing.T) {
		_, ok := Score(Compliance{}, 1000)
		assert.False(t, ok)
	})

	t.Run("compliant earns flat bonus", func(t *testing.T) {
		score, ok := Score(Compliance{Compliant: true, CurrentP95: 500, DataAvailable: true}, 1000)
		assert.True(t, ok)
		assert.Equal(t, 20.0, score)
	})

	t.Run("mild overrun earns small positive", func(t *testing.T) {
		// 1.2x overrun: 10 - 0.2*15 = 7.
		score, ok := Score(Compliance{CurrentP95: 1200, DataAvailable: true}, 1000)
		assert.True(t, ok)
		assert.InDelta(t, 7.0, score, 1e-9)
	})

	t.Run("severe overrun floors at minus twenty", func(t *testing.T) {
		score, ok := Score(Compliance{CurrentP95: 10000, DataAvailable: true}, 1000)
		assert.True(t, ok)
		assert.Equal(t, -20.0, score)
	})
}
