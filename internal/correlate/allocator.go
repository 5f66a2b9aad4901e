package correlate

import "sync/atomic"

// Allocator issues request identifiers for one session. Identifiers are
// strictly monotonically increasing starting at 1 and are never reused.
//
// Overflow policy: the counter is an int64, which at one request per
// microsecond takes on the order of 10^5 years to exhaust, so no wraparound
// handling is attempted. Each session gets its own allocator, so counters
// never leak across concurrent harness runs.
type Allocator struct {
	last atomic.Int64
}

// NewAllocator creates an allocator whose first identifier is 1
func NewAllocator() *Allocator {
	return &Allocator{}
}

// Next returns a fresh identifier strictly greater than all previously
// issued identifiers for this session.
func (a *Allocator) Next() int64 {
	return a.last.Add(1)
}
