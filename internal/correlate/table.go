package correlate

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"curlsp.dev/conformance/internal/log"
	"curlsp.dev/conformance/internal/rpc"
)

// ErrSessionTerminated fails every still-pending request when the session is
// torn down, instead of leaving them to time out individually.
var ErrSessionTerminated = errors.New("session terminated")

// DuplicateIDError indicates an attempt to register an identifier that
// already has a pending entry. This is allocator misuse and fatal.
type DuplicateIDError struct {
	ID int64
}

// Error implements the error interface
func (e *DuplicateIDError) Error() string {
	return fmt.Sprintf("request id %d already has a pending entry", e.ID)
}

// UnmatchedResponseError indicates a response whose identifier the table
// never issued or has already resolved. A server protocol violation or a
// harness bug; recovered locally.
type UnmatchedResponseError struct {
	ID  int64
	Raw json.RawMessage
}

// Error implements the error interface
func (e *UnmatchedResponseError) Error() string {
	return fmt.Sprintf("response for unknown or already-resolved id %d", e.ID)
}

// TimeoutError indicates no response arrived for a request within its
// budget. It fails only the awaiting operation; other in-flight requests are
// unaffected.
type TimeoutError struct {
	ID     int64
	Method string
	After  time.Duration
}

// Error implements the error interface
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout after %s waiting for response to %s (id %d)", e.After, e.Method, e.ID)
}

// Outcome is the settled result of one request: the server's result payload
// or the error that completed the entry (server-reported, timeout, or
// session teardown). Exactly one of the two is meaningful.
type Outcome struct {
	Result json.RawMessage
	Err    error
}

type pending struct {
	id       int64
	method   string
	issuedAt time.Time
	done     chan Outcome
	timer    *time.Timer
}

// Table correlates in-flight request identifiers with their waiters. Each
// entry completes exactly once: by a matching response, by its timeout, or
// by FailAll, whichever fires first. Lookup, removal, and completion happen
// under one lock so a response is never matched against a torn intermediate
// state.
type Table struct {
	mu      sync.Mutex
	entries map[int64]*pending
	closed  bool
}

// NewTable creates an empty correlation table
func NewTable() *Table {
	return &Table{entries: make(map[int64]*pending)}
}

// Register creates a pending entry for id and returns a channel that settles
// when the matching response arrives, the timeout elapses, or the table is
// failed wholesale. Registering an id that is already pending is a
// programmer error and returns DuplicateIDError.
func (t *Table) Register(id int64, method string, timeout time.Duration) (<-chan Outcome, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.closed {
		return nil, ErrSessionTerminated
	}
	if _, exists := t.entries[id]; exists {
		return nil, &DuplicateIDError{ID: id}
	}

	p := &pending{
		id:       id,
		method:   method,
		issuedAt: time.Now(),
		done:     make(chan Outcome, 1),
	}
	p.timer = time.AfterFunc(timeout, func() {
		t.expire(id, timeout)
	})
	t.entries[id] = p
	return p.done, nil
}

// Resolve matches a response against its pending entry, removes the entry,
// and completes the waiter with the response's result or error. A response
// for an id with no entry yields UnmatchedResponseError: the id was either
// never issued or already resolved, and the two are indistinguishable here.
func (t *Table) Resolve(msg rpc.Message) error {
	if msg.ID == nil {
		return &UnmatchedResponseError{Raw: msg.Result}
	}
	id := *msg.ID

	t.mu.Lock()
	p, ok := t.entries[id]
	if !ok {
		t.mu.Unlock()
		raw := msg.Result
		if msg.Error != nil {
			raw, _ = json.Marshal(msg.Error)
		}
		return &UnmatchedResponseError{ID: id, Raw: raw}
	}
	delete(t.entries, id)
	t.mu.Unlock()

	p.timer.Stop()
	if msg.Error != nil {
		p.done <- Outcome{Err: msg.Error}
	} else {
		p.done <- Outcome{Result: msg.Result}
	}
	return nil
}

// FailAll removes every pending entry and completes it with err, wrapped so
// callers can still match ErrSessionTerminated. Subsequent Registers fail.
func (t *Table) FailAll(err error) {
	t.mu.Lock()
	drained := make([]*pending, 0, len(t.entries))
	for id, p := range t.entries {
		drained = append(drained, p)
		delete(t.entries, id)
	}
	t.closed = true
	t.mu.Unlock()

	for _, p := range drained {
		p.timer.Stop()
		p.done <- Outcome{Err: fmt.Errorf("%s (id %d): %w", p.method, p.id, err)}
	}
}

// Fail completes a single pending entry with err, for callers whose send
// failed after registration. Returns false if the id was not pending.
func (t *Table) Fail(id int64, err error) bool {
	t.mu.Lock()
	p, ok := t.entries[id]
	if ok {
		delete(t.entries, id)
	}
	t.mu.Unlock()

	if !ok {
		return false
	}
	p.timer.Stop()
	p.done <- Outcome{Err: err}
	return true
}

// Len returns the number of currently pending entries
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// expire completes an entry with TimeoutError if it is still pending. The id
// stays spent: a late response for it will be unmatched.
func (t *Table) expire(id int64, after time.Duration) {
	t.mu.Lock()
	p, ok := t.entries[id]
	if ok {
		delete(t.entries, id)
	}
	t.mu.Unlock()

	if !ok {
		// Resolved between the timer firing and the lock; exactly-once
		// completion already happened.
		return
	}
	log.Warn("Request %s (id %d) timed out after %s", p.method, p.id, after)
	p.done <- Outcome{Err: &TimeoutError{ID: p.id, Method: p.method, After: after}}
}
