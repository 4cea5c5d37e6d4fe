// Package session drives one streaming translation session from an audio
// source to its outcome.
package session

import (
	"errors"
	"fmt"
	"sync"
)

// State represents the lifecycle state of a session.
type State int

const (
	// StateIdle - Nothing has happened yet.
	StateIdle State = iota
	// StateOpening - Source and session are being established.
	StateOpening
	// StateStreaming - Chunks are being forwarded in sequence order.
	StateStreaming
	// StateDraining - End of input signalled, waiting for outstanding results.
	StateDraining
	// StateClosed - Session completed and released.
	StateClosed
	// StateFailed - Session abandoned after an error. Terminal.
	StateFailed
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateOpening:
		return "OPENING"
	case StateStreaming:
		return "STREAMING"
	case StateDraining:
		return "DRAINING"
	case StateClosed:
		return "CLOSED"
	case StateFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// IsTerminal returns true if the state is terminal (CLOSED or FAILED).
func (s State) IsTerminal() bool {
	return s == StateClosed || s == StateFailed
}

// ErrInvalidTransition is returned for a transition the lifecycle does not allow.
var ErrInvalidTransition = errors.New("invalid session state transition")

// next lists the single forward transition allowed from each state.
var next = map[State]State{
	StateIdle:      StateOpening,
	StateOpening:   StateStreaming,
	StateStreaming: StateDraining,
	StateDraining:  StateClosed,
}

// Lifecycle manages the state machine for a single session.
// Thread-safe for concurrent access.
//
// State transitions:
//
//	IDLE → OPENING → STREAMING → DRAINING → CLOSED
//	  │       │          │           │
//	  └───────┴──────────┴───────────┴── Fail() ──→ FAILED
type Lifecycle struct {
	mu     sync.RWMutex
	unitId string
	state  State
}

// NewLifecycle creates a new session lifecycle in IDLE state.
func NewLifecycle(unitId string) *Lifecycle {
	return &Lifecycle{
		unitId: unitId,
		state:  StateIdle,
	}
}

// UnitId returns the unit the session runs.
func (l *Lifecycle) UnitId() string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.unitId
}

// State returns the current state.
func (l *Lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// Advance moves to the given state if it is the next forward state.
func (l *Lifecycle) Advance(to State) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if want, ok := next[l.state]; !ok || want != to {
		return fmt.Errorf("%w: %v → %v", ErrInvalidTransition, l.state, to)
	}
	l.state = to
	return nil
}

// Fail transitions the session to FAILED state.
// Returns true if the session failed now, false if it was already terminal.
func (l *Lifecycle) Fail() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state.IsTerminal() {
		return false
	}
	l.state = StateFailed
	return true
}
