package logging

import (
	"sync"
	"time"
)

// LogEntry is one log record kept for the API.
type LogEntry struct {
	Seq        uint64         `json:"seq"`
	Timestamp  time.Time      `json:"timestamp"`
	Level      string         `json:"level"`
	Module     string         `json:"module"`
	CameraID   string         `json:"camera_id,omitempty"`
	Message    string         `json:"message"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// RingBuffer keeps the most recent log entries. Entries are numbered with a
// sequence that keeps increasing after old entries are overwritten.
type RingBuffer struct {
	mu    sync.RWMutex
	slots []LogEntry
	next  uint64 // seq of the next entry
}

// NewRingBuffer creates a buffer holding at most size entries.
func NewRingBuffer(size int) *RingBuffer {
	if size < 1 {
		size = 1
	}
	return &RingBuffer{slots: make([]LogEntry, size), next: 1}
}

// Write stores entry and returns its sequence number.
func (rb *RingBuffer) Write(entry LogEntry) uint64 {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	entry.Seq = rb.next
	rb.slots[rb.next%uint64(len(rb.slots))] = entry
	rb.next++
	return entry.Seq
}

// Since returns the retained entries with a sequence number greater than seq,
// oldest first. Since(0) returns everything.
func (rb *RingBuffer) Since(seq uint64) []LogEntry {
	return rb.Filter(seq, nil)
}

// Filter returns retained entries newer than seq for which keep reports true.
// A nil keep accepts every entry.
func (rb *RingBuffer) Filter(seq uint64, keep func(LogEntry) bool) []LogEntry {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	size := uint64(len(rb.slots))
	first := uint64(1)
	if rb.next > size {
		first = rb.next - size
	}
	if seq+1 > first {
		first = seq + 1
	}

	var out []LogEntry
	for s := first; s < rb.next; s++ {
		e := rb.slots[s%size]
		if keep == nil || keep(e) {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of retained entries.
func (rb *RingBuffer) Len() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return int(min(rb.next-1, uint64(len(rb.slots))))
}
