package engine

import (
	"fmt"
	"sync"
)

// SessionState is the lifecycle state of an agent session.
type SessionState string

const (
	StateIdle         SessionState = "idle"
	StateThinking     SessionState = "thinking"
	StateActing       SessionState = "acting"
	StateError        SessionState = "error"
	StateShuttingDown SessionState = "shutting_down"
	StateShutdown     SessionState = "shutdown"
)

var allowedTransitions = map[SessionState][]SessionState{
	StateIdle:         {StateThinking, StateShuttingDown},
	StateThinking:     {StateActing, StateIdle, StateError, StateShuttingDown},
	StateActing:       {StateIdle, StateError, StateShuttingDown},
	StateError:        {StateIdle, StateShuttingDown},
	StateShuttingDown: {StateShutdown},
	StateShutdown:     nil,
}

// ErrBusy is returned by Begin when an operation is already running.
var ErrBusy = &Error{Kind: KindInvalidInput, Reasons: []string{"session already has an active operation"}}

// StateMachine guards session state transitions and allows at most one
// active operation at a time.
type StateMachine struct {
	mu    sync.Mutex
	state SessionState
}

// NewStateMachine returns a machine in the idle state.
func NewStateMachine() *StateMachine {
	return &StateMachine{state: StateIdle}
}

// Current returns the current state.
func (m *StateMachine) Current() SessionState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Begin moves idle (or error) to thinking. It fails if another operation is
// active or the session is shut down.
func (m *StateMachine) Begin() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.state {
	case StateIdle:
	case StateError:
		m.state = StateIdle
	case StateShuttingDown, StateShutdown:
		return Errorf(KindInvalidInput, "session is %s", m.state)
	default:
		return ErrBusy
	}
	m.state = StateThinking
	return nil
}

// Transition moves to the next state if the edge is allowed.
func (m *StateMachine) Transition(to SessionState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, next := range allowedTransitions[m.state] {
		if next == to {
			m.state = to
			return nil
		}
	}
	return fmt.Errorf("invalid state transition %s -> %s", m.state, to)
}

// Finish ends an operation: idle on success, error on failure. It is a no-op
// once shutdown has started.
func (m *StateMachine) Finish(failed bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == StateShuttingDown || m.state == StateShutdown {
		return
	}
	if failed {
		m.state = StateError
		return
	}
	m.state = StateIdle
}

// ShuttingDown reports whether shutdown has begun.
func (m *StateMachine) ShuttingDown() bool {
	s := m.Current()
	return s == StateShuttingDown || s == StateShutdown
}
