package audit

import (
	"fmt"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLog(t *testing.T) {
	t.Run("append stamps timestamp", func(t *testing.T) {
		mockClock := clock.NewMock()
		mockClock.Set(time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC))
		log := newLogWithClock(10, mockClock)

		log.Append(Record{RequestID: "r1", Capability: "chat", Outcome: "decision"})

		records := log.Recent(0)
		require.Len(t, records, 1)
		assert.Equal(t, mockClock.Now(), records[0].Timestamp)
	})

	t.Run("recent returns newest first", func(t *testing.T) {
		log := NewLog(10)
		for i := 0; i < 5; i++ {
			log.Append(Record{RequestID: fmt.Sprintf("r%d", i)})
		}

		records := log.Recent(3)
		require.Len(t, records, 3)
		assert.Equal(t, "r4", records[0].RequestID)
		assert.Equal(t, "r3", records[1].RequestID)
		assert.Equal(t, "r2", records[2].RequestID)
	})

	t.Run("ring drops oldest when full", func(t *testing.T) {
		log := NewLog(3)
		for i := 0; i < 5; i++ {
			log.Append(Record{RequestID: fmt.Sprintf("r%d", i)})
		}

		assert.Equal(t, 3, log.Len())
		records := log.Recent(0)
		require.Len(t, records, 3)
		assert.Equal(t, "r4", records[0].RequestID)
		assert.Equal(t, "r2", records[2].RequestID)
	})

	t.Run("limit larger than count returns all", func(t *testing.T) {
		log := NewLog(10)
		log.Append(Record{RequestID: "only"})

		records := log.Recent(100)
		assert.Len(t, records, 1)
	})

	t.Run("zero capacity is clamped", func(t *testing.T) {
		log := NewLog(0)
		log.Append(Record{RequestID: "a"})
		log.Append(Record{RequestID: "b"})
		assert.Equal(t, 1, log.Len())
		assert.Equal(t, "b", log.Recent(0)[0].RequestID)
	})
}
