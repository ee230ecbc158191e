// Package fsm holds the connection lifecycle state machine for a voice
// session.
package fsm

import (
	"fmt"
	"sync"
)

// State describes the connection lifecycle of a client session.
type State string

const (
	StateIdle          State = "idle"
	StateConnecting    State = "connecting"
	StateConnected     State = "connected"
	StateDisconnecting State = "disconnecting"
)

// allowed lists the legal forward transitions. An abrupt connection loss may
// drop any active state straight back to idle.
var allowed = map[State][]State{
	StateIdle:          {StateConnecting},
	StateConnecting:    {StateConnected, StateDisconnecting, StateIdle},
	StateConnected:     {StateDisconnecting, StateIdle},
	StateDisconnecting: {StateIdle},
}

// Machine is a lightweight deterministic lifecycle machine with a transient
// interrupted flag that only holds while connected.
type Machine struct {
	mu          sync.RWMutex
	state       State
	interrupted bool
}

// New creates a machine in the idle state.
func New() *Machine {
	return &Machine{state: StateIdle}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Is reports whether the current state is one of the given states.
func (m *Machine) Is(states ...State) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, s := range states {
		if m.state == s {
			return true
		}
	}
	return false
}

// Transition moves to the target state, rejecting illegal edges.
func (m *Machine) Transition(to State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, next := range allowed[m.state] {
		if next == to {
			m.apply(to)
			return nil
		}
	}
	return fmt.Errorf("illegal transition %s -> %s", m.state, to)
}

// Force sets the state unconditionally. Used when a terminal network event
// collapses the session regardless of where it was.
func (m *Machine) Force(state State) error {
	switch state {
	case StateIdle, StateConnecting, StateConnected, StateDisconnecting:
	default:
		return fmt.Errorf("invalid state: %s", state)
	}
	m.mu.Lock()
	m.apply(state)
	m.mu.Unlock()
	return nil
}

// MarkInterrupted raises the transient interrupted flag. Only meaningful
// while connected; otherwise it is ignored.
func (m *Machine) MarkInterrupted() {
	m.mu.Lock()
	if m.state == StateConnected {
		m.interrupted = true
	}
	m.mu.Unlock()
}

// ClearInterrupted lowers the flag, returning whether it was raised.
func (m *Machine) ClearInterrupted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	was := m.interrupted
	m.interrupted = false
	return was
}

// Interrupted reports the transient flag.
func (m *Machine) Interrupted() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.interrupted
}

// apply assumes m.mu is held.
func (m *Machine) apply(state State) {
	m.state = state
	if state != StateConnected {
		m.interrupted = false
	}
}
