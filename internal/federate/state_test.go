package federate

import "testing"

func TestInitialModeIsCreated(t *testing.T) {
	s := NewStateMachine()
	if s.State() != Created {
		t.Fatalf("expected CREATED, got %s", s.State())
	}
}

func TestValidTransitionSequence(t *testing.T) {
	s := NewStateMachine()
	if err := s.Transition(Initializing); err != nil {
		t.Fatalf("CREATED -> INITIALIZING: %v", err)
	}
	if err := s.Transition(Executing); err != nil {
		t.Fatalf("INITIALIZING -> EXECUTING: %v", err)
	}
	if err := s.Transition(Finalize); err != nil {
		t.Fatalf("EXECUTING -> FINALIZE: %v", err)
	}
}

func TestInvalidTransitionRejected(t *testing.T) {
	s := NewStateMachine()
	if err := s.Transition(Executing); err == nil {
		t.Fatalf("expected InvalidState going CREATED -> EXECUTING directly")
	}
}

func TestFinalizeIsIdempotentFromAnyState(t *testing.T) {
	s := NewStateMachine()
	s.Finalize()
	if s.State() != Finalize {
		t.Fatalf("expected FINALIZE, got %s", s.State())
	}
	s.Finalize()
	if s.State() != Finalize {
		t.Fatalf("expected FINALIZE to remain terminal, got %s", s.State())
	}
}

func TestGlobalErrorTransitionsFromAnyNonTerminalState(t *testing.T) {
	s := NewStateMachine()
	s.Transition(Initializing)
	s.EnterErrorState()
	if s.State() != ErrorState {
		t.Fatalf("expected ERROR_STATE, got %s", s.State())
	}
}

func TestErrorStateDoesNotOverrideFinalize(t *testing.T) {
	s := NewStateMachine()
	s.Finalize()
	s.EnterErrorState()
	if s.State() != Finalize {
		t.Fatalf("expected FINALIZE to remain terminal over ERROR_STATE, got %s", s.State())
	}
}

func TestRequireModeFailsFast(t *testing.T) {
	s := NewStateMachine()
	if err := s.RequireMode(Executing); err == nil {
		t.Fatalf("expected InvalidState since federate is CREATED, not EXECUTING")
	}
	if err := s.RequireMode(Created, Initializing); err != nil {
		t.Fatalf("expected CREATED to satisfy RequireMode(CREATED, INITIALIZING): %v", err)
	}
}
