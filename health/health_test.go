package health

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func okProber(latencyMs int64) Prober {
	return ProberFunc(func(ctx context.Context, providerID string) (int64, error) {
		return latencyMs, nil
	})
}

func failingProber() Prober {
	return ProberFunc(func(ctx context.Context, providerID string) (int64, error) {
		return 0, fmt.Errorf("connection refused")
	})
}

func newTestMonitor(prober Prober) (*Monitor, *clock.Mock) {
	mockClock := clock.NewMock()
	monitor := newMonitorWithClock(prober, 5*time.Second, zap.NewNop().Sugar(), mockClock)
	return monitor, mockClock
}

func TestStatusTransitions(t *testing.T) {
	t.Run("unknown to healthy on fast success", func(t *testing.T) {
		monitor, _ := newTestMonitor(okProber(100))
		monitor.Track("openai")

		monitor.RecordSample("openai", true, 100)
		assert.Equal(t, StatusHealthy, monitor.GetSnapshot("openai").Status)
	})

	t.Run("unknown to degraded on slow success", func(t *testing.T) {
		monitor, _ := newTestMonitor(okProber(3000))
		monitor.Track("openai")

		monitor.RecordSample("openai", true, 3000)
		assert.Equal(t, StatusDegraded, monitor.GetSnapshot("openai").Status)
	})

	t.Run("exactly threshold latency is degraded", func(t *testing.T) {
		monitor, _ := newTestMonitor(okProber(2000))
		monitor.Track("openai")

		monitor.RecordSample("openai", true, 2000)
		assert.Equal(t, StatusDegraded, monitor.GetSnapshot("openai").Status)
	})

	t.Run("unhealthy only after three consecutive failures", func(t *testing.T) {
		monitor, _ := newTestMonitor(failingProber())
		monitor.Track("openai")

		monitor.RecordSample("openai", false, 0)
		monitor.RecordSample("openai", false, 0)
		assert.Equal(t, StatusDegraded, monitor.GetSnapshot("openai").Status)

		monitor.RecordSample("openai", false, 0)
		assert.Equal(t, StatusUnhealthy, monitor.GetSnapshot("openai").Status)
	})

	t.Run("success resets consecutive failures", func(t *testing.T) {
		monitor, _ := newTestMonitor(okProber(100))
		monitor.Track("openai")

		monitor.RecordSample("openai", false, 0)
		monitor.RecordSample("openai", false, 0)
		monitor.RecordSample("openai", true, 100)
		assert.Equal(t, 0, monitor.GetSnapshot("openai").ConsecutiveFailures)

		// Two more failures degrade but do not trip the threshold again.
		monitor.RecordSample("openai", false, 0)
		monitor.RecordSample("openai", false, 0)
		assert.Equal(t, StatusDegraded, monitor.GetSnapshot("openai").Status)
	})

	t.Run("single success recovers unhealthy provider", func(t *testing.T) {
		monitor, _ := newTestMonitor(okProber(100))
		monitor.Track("openai")

		for i := 0; i < 3; i++ {
			monitor.RecordSample("openai", false, 0)
		}
		require.Equal(t, StatusUnhealthy, monitor.GetSnapshot("openai").Status)

		monitor.RecordSample("openai", true, 100)
		assert.Equal(t, StatusHealthy, monitor.GetSnapshot("openai").Status)
	})
}

func TestAvailability(t *testing.T) {
	t.Run("no samples means 100 percent", func(t *testing.T) {
		monitor, _ := newTestMonitor(okProber(100))
		monitor.Track("openai")

		snapshot := monitor.GetSnapshot("openai")
		assert.Equal(t, 100.0, snapshot.AvailabilityPct)
		assert.Equal(t, 0, snapshot.SampleCount)
	})

	t.Run("ratio of healthy samples", func(t *testing.T) {
		monitor, _ := newTestMonitor(okProber(100))
		monitor.Track("openai")

		monitor.RecordSample("openai", true, 100)
		monitor.RecordSample("openai", true, 200)
		monitor.RecordSample("openai", false, 0)
		monitor.RecordSample("openai", true, 300)

		snapshot := monitor.GetSnapshot("openai")
		assert.Equal(t, 75.0, snapshot.AvailabilityPct)
		assert.Equal(t, 0.75, snapshot.HealthyRate)
		assert.Equal(t, 200.0, snapshot.AvgLatencyMs)
		assert.Equal(t, 4, snapshot.SampleCount)
	})

	t.Run("samples expire after retention window", func(t *testing.T) {
		monitor, mockClock := newTestMonitor(okProber(100))
		monitor.Track("openai")

		monitor.RecordSample("openai", false, 0)
		mockClock.Add(25 * time.Hour)
		monitor.RecordSample("openai", true, 100)

		snapshot := monitor.GetSnapshot("openai")
		assert.Equal(t, 1, snapshot.SampleCount)
		assert.Equal(t, 100.0, snapshot.AvailabilityPct)
	})
}

func TestCallbacks(t *testing.T) {
	t.Run("fires on transition only", func(t *testing.T) {
		monitor, _ := newTestMonitor(okProber(100))
		monitor.Track("openai")

		type transition struct{ from, to Status }
		changes := make(chan transition, 10)
		monitor.OnStatusChange(func(providerID string, from Status, to Status) {
			changes <- transition{from, to}
		})

		monitor.RecordSample("openai", true, 100)
		select {
		case change := <-changes:
			assert.Equal(t, transition{StatusUnknown, StatusHealthy}, change)
		case <-time.After(time.Second):
			t.Fatal("expected status change callback")
		}

		// Same status again: no callback.
		monitor.RecordSample("openai", true, 150)
		select {
		case <-changes:
			t.Fatal("unexpected callback without transition")
		case <-time.After(50 * time.Millisecond):
		}
	})

	t.Run("slow callback does not block recording", func(t *testing.T) {
		monitor, _ := newTestMonitor(okProber(100))
		monitor.Track("openai")

		blocked := make(chan struct{})
		monitor.OnStatusChange(func(providerID string, from Status, to Status) {
			<-blocked
		})

		done := make(chan struct{})
		go func() {
			monitor.RecordSample("openai", true, 100)
			monitor.RecordSample("openai", false, 0)
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("recording blocked on callback")
		}
		close(blocked)
	})
}

func TestProbing(t *testing.T) {
	t.Run("check all probes every tracked provider", func(t *testing.T) {
		monitor, _ := newTestMonitor(okProber(100))
		monitor.Track("openai")
		monitor.Track("ollama")

		monitor.CheckAll(context.Background())

		assert.Equal(t, StatusHealthy, monitor.GetSnapshot("openai").Status)
		assert.Equal(t, StatusHealthy, monitor.GetSnapshot("ollama").Status)
	})

	t.Run("probe failure records unhealthy sample", func(t *testing.T) {
		monitor, _ := newTestMonitor(failingProber())
		monitor.Track("openai")

		for i := 0; i < 3; i++ {
			monitor.CheckAll(context.Background())
		}
		assert.Equal(t, StatusUnhealthy, monitor.GetSnapshot("openai").Status)
	})

	t.Run("force check tracks and probes", func(t *testing.T) {
		monitor, _ := newTestMonitor(okProber(42))

		snapshot := monitor.ForceCheck(context.Background(), "fresh")
		assert.Equal(t, StatusHealthy, snapshot.Status)
		assert.Equal(t, 1, snapshot.SampleCount)
	})

	t.Run("available providers excludes unhealthy", func(t *testing.T) {
		monitor, _ := newTestMonitor(okProber(100))
		monitor.Track("good")
		monitor.Track("slow")
		monitor.Track("bad")
		monitor.Track("fresh")

		monitor.RecordSample("good", true, 100)
		monitor.RecordSample("slow", true, 3000)
		for i := 0; i < 3; i++ {
			monitor.RecordSample("bad", false, 0)
		}

		available := monitor.AvailableProviders()
		assert.ElementsMatch(t, []string{"good", "slow"}, available)
	})
}

func TestStartLoop(t *testing.T) {
	probes := make(chan string, 10)
	prober := ProberFunc(func(ctx context.Context, providerID string) (int64, error) {
		probes <- providerID
		return 100, nil
	})
	monitor, mockClock := newTestMonitor(prober)
	monitor.Track("openai")

	stop := monitor.Start(context.Background(), time.Minute)
	defer stop()

	mockClock.Add(time.Minute)
	select {
	case providerID := <-probes:
		assert.Equal(t, "openai", providerID)
	case <-time.After(time.Second):
		t.Fatal("expected a probe after one interval")
	}
}
