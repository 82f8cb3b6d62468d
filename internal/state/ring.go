package state

import "time"

// LogEntry is one user-visible log line.
type LogEntry struct {
	Time    time.Time
	Message string
}

// logRing is a fixed-capacity ring of log entries. Once full, each push
// overwrites the oldest entry.
// Not safe for concurrent use; the Store lock guards it.
type logRing struct {
	buf      []LogEntry
	capacity int
	head     int // next write position
	count    int
}

func newLogRing(capacity int) *logRing {
	return &logRing{
		buf:      make([]LogEntry, capacity),
		capacity: capacity,
	}
}

func (r *logRing) push(e LogEntry) {
	r.buf[r.head] = e
	r.head = (r.head + 1) % r.capacity
	if r.count < r.capacity {
		r.count++
	}
}

// newestFirst returns a copy of the entries, most recent first.
func (r *logRing) newestFirst() []LogEntry {
	if r.count == 0 {
		return nil
	}
	out := make([]LogEntry, r.count)
	for i := 0; i < r.count; i++ {
		out[i] = r.buf[(r.head-1-i+r.capacity)%r.capacity]
	}
	return out
}
