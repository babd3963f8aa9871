package render

import (
	"fmt"
	"sync"
)

// State is the lifecycle state of an Editor
type State string

const (
	StateIdle       State = "idle"
	StatePreparing  State = "preparing"
	StateRunning    State = "running"
	StateCompleting State = "completing"
	StateCancelled  State = "cancelled"
	StateFailed     State = "failed"
)

// transitions lists the states reachable from each state
var transitions = map[State][]State{
	StateIdle: {
		StatePreparing,
	},
	StatePreparing: {
		StateRunning,
		StateFailed,
		StateCancelled,
	},
	StateRunning: {
		StateCompleting,
		StateFailed,
		StateCancelled,
	},
	StateCompleting: {
		StateIdle,
		StateFailed,
	},
	StateCancelled: {
		StateIdle,
	},
	StateFailed: {
		StateIdle,
	},
}

// StateTransitionError is returned for a transition the table does not allow
type StateTransitionError struct {
	SessionID string
	From      State
	To        State
}

func (e *StateTransitionError) Error() string {
	return fmt.Sprintf("invalid state transition for session %s: %s -> %s", e.SessionID, e.From, e.To)
}

type stateMachine struct {
	mu    sync.Mutex
	state State
	// sessionID is the session currently holding the machine, for errors
	sessionID string
	onChange  func(from, to State)
}

func newStateMachine() *stateMachine {
	return &stateMachine{state: StateIdle}
}

func (m *stateMachine) current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// transition moves to the next state if the table allows it
func (m *stateMachine) transition(to State) error {
	m.mu.Lock()
	from := m.state
	if !allowed(from, to) {
		id := m.sessionID
		m.mu.Unlock()
		return &StateTransitionError{SessionID: id, From: from, To: to}
	}
	m.state = to
	if to == StateIdle {
		m.sessionID = ""
	}
	onChange := m.onChange
	m.mu.Unlock()

	if onChange != nil {
		onChange(from, to)
	}
	return nil
}

// acquire claims an idle machine for a session
func (m *stateMachine) acquire(sessionID string) error {
	m.mu.Lock()
	if m.state != StateIdle {
		from := m.state
		m.mu.Unlock()
		return &StateTransitionError{SessionID: sessionID, From: from, To: StatePreparing}
	}
	m.sessionID = sessionID
	m.mu.Unlock()
	return m.transition(StatePreparing)
}

func allowed(from, to State) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}
