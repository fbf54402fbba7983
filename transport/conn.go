package transport

import (
	"fmt"
	"time"
)

// Phase is a connection's position in its lifecycle state machine.
type Phase int

const (
	PhaseHandshaking Phase = iota
	PhaseEstablished
	PhaseClosing
	PhaseClosed
	PhaseFailed
)

func (p Phase) String() string {
	switch p {
	case PhaseHandshaking:
		return "Handshaking"
	case PhaseEstablished:
		return "Established"
	case PhaseClosing:
		return "Closing"
	case PhaseClosed:
		return "Closed"
	case PhaseFailed:
		return "Failed"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// ErrInvalidTransition reports an attempted phase transition that the
// state machine does not permit.
type ErrInvalidTransition struct {
	From, To Phase
}

func (e *ErrInvalidTransition) Error() string {
	return fmt.Sprintf("transport: invalid phase transition %s -> %s", e.From, e.To)
}

// ConnectionState owns the phase state machine plus the timing
// subsystems (RTT estimator, pacer, retransmit controller, migration
// validator) for one connection. It never references back to its owning
// Session; callers pass whatever context a method needs as an argument.
type ConnectionState struct {
	phase Phase

	RTT        *RttEstimator
	Pacer      *FramePacer
	Retransmit *RetransmitController
	Migration  *MigrationValidator
}

func NewConnectionState(maxAddressAge time.Duration) *ConnectionState {
	rtt := NewRttEstimator()
	return &ConnectionState{
		phase:      PhaseHandshaking,
		RTT:        rtt,
		Pacer:      NewFramePacer(),
		Retransmit: NewRetransmitController(rtt.RTO()),
		Migration:  NewMigrationValidator(maxAddressAge),
	}
}

// Phase returns the connection's current lifecycle phase.
func (c *ConnectionState) Phase() Phase { return c.phase }

// transitions enumerates every phase edge the state machine permits.
var transitions = map[Phase]map[Phase]bool{
	PhaseHandshaking: {PhaseEstablished: true, PhaseFailed: true, PhaseClosed: true},
	PhaseEstablished: {PhaseClosing: true, PhaseFailed: true},
	PhaseClosing:     {PhaseClosed: true, PhaseFailed: true},
	PhaseClosed:      {},
	PhaseFailed:      {},
}

// Transition moves the connection to to, returning ErrInvalidTransition
// if the edge is not permitted. Fatal conditions must always target
// PhaseFailed, never skip straight to Closed.
func (c *ConnectionState) Transition(to Phase) error {
	if !transitions[c.phase][to] {
		return &ErrInvalidTransition{From: c.phase, To: to}
	}
	c.phase = to
	return nil
}
