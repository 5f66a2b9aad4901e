package session

import (
	"encoding/json"
	"fmt"
	"sync"
)

// State is the client-side protocol lifecycle state
type State int

const (
	// Unstarted means no initialize request has been sent yet
	Unstarted State = iota
	// Initializing means initialize was sent and its response is pending
	Initializing
	// Initialized means the handshake completed; feature messages are legal
	Initialized
	// ShuttingDown means the shutdown request was sent
	ShuttingDown
	// Terminated is the terminal state; the server process is gone
	Terminated
)

// String returns a human-readable name for the state
func (s State) String() string {
	switch s {
	case Unstarted:
		return "unstarted"
	case Initializing:
		return "initializing"
	case Initialized:
		return "initialized"
	case ShuttingDown:
		return "shutting-down"
	case Terminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// IllegalStateError indicates a protocol step was issued out of order. It is
// a driver bug and fatal to the current scenario. The check fires before any
// bytes reach the channel, so a rejected step has no partial side effects.
type IllegalStateError struct {
	State State
	Op    string
}

// Error implements the error interface
func (e *IllegalStateError) Error() string {
	return fmt.Sprintf("cannot %s while session is %s", e.Op, e.State)
}

// Machine tracks the client-side session lifecycle and rejects operations
// that are illegal for the current state. LSP forbids feature requests
// before the initialize handshake completes; encoding that here turns an
// ordering bug into an immediate localized failure instead of a hung test.
type Machine struct {
	mu           sync.Mutex
	state        State
	capabilities json.RawMessage
}

// NewMachine creates a machine in the Unstarted state
func NewMachine() *Machine {
	return &Machine{state: Unstarted}
}

// State returns the current state
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// BeginInitialize records that the initialize request is being sent.
// Legal only from Unstarted.
func (m *Machine) BeginInitialize() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Unstarted {
		return &IllegalStateError{State: m.state, Op: "send initialize"}
	}
	m.state = Initializing
	return nil
}

// CompleteInitialize records the initialize response and captures the
// server's capabilities, which are read-only for the rest of the session.
// Legal only from Initializing.
func (m *Machine) CompleteInitialize(capabilities json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Initializing {
		return &IllegalStateError{State: m.state, Op: "complete initialize"}
	}
	m.capabilities = capabilities
	m.state = Initialized
	return nil
}

// NotifyInitialized records that the initialized notification is being sent.
// Idempotent while Initialized; illegal anywhere else.
func (m *Machine) NotifyInitialized() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Initialized {
		return &IllegalStateError{State: m.state, Op: "send initialized"}
	}
	return nil
}

// CheckSend gates any other outbound request or notification. Legal only
// while Initialized.
func (m *Machine) CheckSend(method string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != Initialized {
		return &IllegalStateError{State: m.state, Op: "send " + method}
	}
	return nil
}

// Shutdown transitions toward teardown and returns the resulting state:
// Initialized moves to ShuttingDown (the shutdown request should follow);
// Unstarted, Initializing, and ShuttingDown drop straight to Terminated;
// Terminated is a no-op.
func (m *Machine) Shutdown() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.state {
	case Initialized:
		m.state = ShuttingDown
	case Terminated:
		// no-op
	default:
		m.state = Terminated
	}
	return m.state
}

// Terminate forces the terminal state. Safe to call repeatedly.
func (m *Machine) Terminate() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = Terminated
}

// Capabilities returns the server capabilities captured by the initialize
// response, or nil before the handshake completes.
func (m *Machine) Capabilities() json.RawMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.capabilities
}
