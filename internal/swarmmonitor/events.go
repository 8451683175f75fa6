package swarmmonitor

import (
	"container/ring"
	"sync"
	"time"
)

const logRingSize = 500

// LogEntry is one container/service event line kept for the dashboard's
// recent-activity view.
type LogEntry struct {
	Timestamp time.Time
	Source    string
	Message   string
}

// LogRing is a fixed-capacity circular buffer of recent log entries; once
// full, the oldest entry is overwritten rather than growing unbounded.
type LogRing struct {
	mu   sync.Mutex
	ring *ring.Ring
}

func NewLogRing() *LogRing {
	return &LogRing{ring: ring.New(logRingSize)}
}

func (r *LogRing) Add(entry LogEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ring.Value = entry
	r.ring = r.ring.Next()
}

// Recent returns up to logRingSize entries, oldest first.
func (r *LogRing) Recent() []LogEntry {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []LogEntry
	r.ring.Do(func(v interface{}) {
		if v == nil {
			return
		}
		out = append(out, v.(LogEntry))
	})
	return out
}
