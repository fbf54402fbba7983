package transport

import (
	"testing"
	"time"
)

func TestConnectionStatePhaseTransitions(t *testing.T) {
	c := NewConnectionState(time.Minute)
	if c.Phase() != PhaseHandshaking {
		t.Fatalf("initial phase = %v, want Handshaking", c.Phase())
	}

	if err := c.Transition(PhaseEstablished); err != nil {
		t.Fatalf("Handshaking -> Established: %v", err)
	}
	if err := c.Transition(PhaseClosing); err != nil {
		t.Fatalf("Established -> Closing: %v", err)
	}
	if err := c.Transition(PhaseClosed); err != nil {
		t.Fatalf("Closing -> Closed: %v", err)
	}
	if err := c.Transition(PhaseEstablished); err == nil {
		t.Fatalf("Closed -> Established should be rejected")
	}
}

func TestConnectionStateFatalFromAnyOpenPhase(t *testing.T) {
	for _, start := range []Phase{PhaseHandshaking, PhaseEstablished, PhaseClosing} {
		c := &ConnectionState{phase: start}
		if err := c.Transition(PhaseFailed); err != nil {
			t.Fatalf("%v -> Failed rejected: %v", start, err)
		}
	}
}
