package audit

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Record is one routing decision kept for inspection.
type Record struct {
	RequestID    string            `json:"request_id"`
	Capability   string            `json:"capability"`
	Requirements map[string]string `json:"requirements,omitempty"`
	Provider     string            `json:"provider,omitempty"`
	Model        string            `json:"model,omitempty"`
	Outcome      string            `json:"outcome"`
	Fallback     bool              `json:"fallback,omitempty"`
	Reason       string            `json:"reason,omitempty"`
	Timestamp    time.Time         `json:"timestamp"`
}

// Log is a bounded in-memory ring of routing records. When full, the
// oldest record is dropped.
type Log struct {
	mutex    sync.RWMutex
	records  []Record
	start    int
	count    int
	capacity int
	clock    clock.Clock
}

func NewLog(capacity int) *Log {
	return newLogWithClock(capacity, clock.New())
}

func newLogWithClock(capacity int, clk clock.Clock) *Log {
	if capacity <= 0 {
		capacity = 1
	}
	return &Log{
		records:  make([]Record, capacity),
		capacity: capacity,
		clock:    clk,
	}
}

// Append stamps and stores a record.
func (l *Log) Append(record Record) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	record.Timestamp = l.clock.Now()
	position := (l.start + l.count) % l.capacity
	l.records[position] = record
	if l.count < l.capacity {
		l.count++
	} else {
		l.start = (l.start + 1) % l.capacity
	}
}

// Recent returns up to limit records, newest first.
func (l *Log) Recent(limit int) []Record {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	if limit <= 0 || limit > l.count {
		limit = l.count
	}
	records := make([]Record, 0, limit)
	for i := 0; i < limit; i++ {
		position := (l.start + l.count - 1 - i) % l.capacity
		records = append(records, l.records[position])
	}
	return records
}

// Len returns the number of stored records.
func (l *Log) Len() int {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	return l.count
}
