package session

import "sync/atomic"

// SeqClock stamps accepted edits with increasing sequence numbers.
// testutil.DeterministicClock satisfies it.
type SeqClock interface {
	Next() int64
	Current() int64
}

// Clock is the default monotonic logical clock.
//
// Sequence numbers order edits within a session; they are never derived
// from wall time, so replaying the same edits yields the same numbers.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
type Clock struct {
	seq atomic.Int64
}

// NewClock creates a new clock starting at 0.
func NewClock() *Clock {
	return &Clock{}
}

// Next returns the next sequence number and increments the clock.
func (c *Clock) Next() int64 {
	return c.seq.Add(1)
}

// Current returns the current sequence number without incrementing.
func (c *Clock) Current() int64 {
	return c.seq.Load()
}
