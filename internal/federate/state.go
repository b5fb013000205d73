// Package federate implements the federate operating-mode state machine
// (spec §4.6) and the Ticket behind the requestTimeAsync/requestTimeComplete
// pattern. The registration, send/receive and query calls are methods of
// internal/core.Core, not of this package.
package federate

import (
	"sync"

	"github.com/timmyreynolds/HELICS/internal/herrors"
)

// Mode is one of the federate operating-mode state machine's states.
type Mode int

const (
	Created Mode = iota
	Initializing
	Executing
	Finalize
	ErrorState
)

func (m Mode) String() string {
	switch m {
	case Created:
		return "CREATED"
	case Initializing:
		return "INITIALIZING"
	case Executing:
		return "EXECUTING"
	case Finalize:
		return "FINALIZE"
	case ErrorState:
		return "ERROR_STATE"
	default:
		return "UNKNOWN"
	}
}

// allowed lists the transitions valid from each mode (spec §4.6 diagram).
// ERROR_STATE and FINALIZE are terminal except that finalize/disconnect are
// always permitted idempotently from any state (spec §7).
var allowed = map[Mode]map[Mode]bool{
	Created:      {Initializing: true, Finalize: true, ErrorState: true},
	Initializing: {Executing: true, Finalize: true, ErrorState: true},
	Executing:    {Finalize: true, ErrorState: true},
	Finalize:     {Finalize: true},
	ErrorState:   {ErrorState: true, Finalize: true},
}

// StateMachine guards one federate's operating mode. It is owned by the
// federate's Core and mutated only from the command thread; State() may be
// read from any goroutine.
type StateMachine struct {
	mu   sync.RWMutex
	mode Mode
}

// NewStateMachine returns a machine starting in CREATED.
func NewStateMachine() *StateMachine {
	return &StateMachine{mode: Created}
}

// State returns the current mode.
func (s *StateMachine) State() Mode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.mode
}

// Transition moves to target if the transition is permitted, else returns
// InvalidState. disconnect/finalize callers should use Finalize() instead,
// since that path must always succeed idempotently per spec §7.
func (s *StateMachine) Transition(target Mode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode == target {
		return nil
	}
	if !allowed[s.mode][target] {
		return herrors.NewInvalidState("cannot transition from %s to %s", s.mode, target)
	}
	s.mode = target
	return nil
}

// Finalize always succeeds, idempotently moving to FINALIZE regardless of
// current mode, per the "disconnect/finalize always succeed" rule.
func (s *StateMachine) Finalize() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = Finalize
}

// EnterErrorState transitions to ERROR_STATE from any non-terminal mode.
func (s *StateMachine) EnterErrorState() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode == Finalize {
		return
	}
	s.mode = ErrorState
}

// RequireMode returns InvalidState unless the federate is currently in one
// of the permitted modes — used to gate public API calls like send()
// (spec §7 example: "send in CREATED").
func (s *StateMachine) RequireMode(permitted ...Mode) error {
	s.mu.RLock()
	current := s.mode
	s.mu.RUnlock()
	for _, m := range permitted {
		if current == m {
			return nil
		}
	}
	return herrors.NewInvalidState("operation not permitted in mode %s", current)
}
