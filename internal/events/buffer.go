package events

import "sync"

// RingBuffer keeps the most recent events. Every event added gets the next
// sequence number, starting at 1, so readers can resume with Since.
type RingBuffer struct {
	mu     sync.RWMutex
	events []Event
	total  int64
}

func NewRingBuffer(size int) *RingBuffer {
	return &RingBuffer{events: make([]Event, size)}
}

// Add stores e and returns it with its sequence number set.
func (rb *RingBuffer) Add(e Event) Event {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	rb.total++
	e.Seq = rb.total
	rb.events[(rb.total-1)%int64(len(rb.events))] = e
	return e
}

// held returns how many events are currently kept.
func (rb *RingBuffer) held() int {
	return int(min(rb.total, int64(len(rb.events))))
}

// Last returns up to n of the newest events, oldest first. n <= 0 returns
// everything held.
func (rb *RingBuffer) Last(n int) []Event {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	if n <= 0 {
		n = rb.held()
	}
	return rb.from(rb.total - int64(n) + 1)
}

// Snapshot returns every event held, oldest first.
func (rb *RingBuffer) Snapshot() []Event {
	return rb.Last(0)
}

// Since returns the held events with a sequence number above seq. Events
// already overwritten are gone; callers can spot the gap from the first
// sequence number returned.
func (rb *RingBuffer) Since(seq int64) []Event {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.from(seq + 1)
}

// from copies the events from sequence number first onward. Callers hold
// the lock.
func (rb *RingBuffer) from(first int64) []Event {
	first = max(first, rb.total-int64(rb.held())+1)
	out := make([]Event, 0, max(rb.total-first+1, 0))
	for seq := first; seq <= rb.total; seq++ {
		out = append(out, rb.events[(seq-1)%int64(len(rb.events))])
	}
	return out
}

// Total returns how many events have ever been added, including ones that
// have since been overwritten.
func (rb *RingBuffer) Total() int64 {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.total
}

// Clear drops all buffered events and resets the sequence.
func (rb *RingBuffer) Clear() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.events = make([]Event, len(rb.events))
	rb.total = 0
}
