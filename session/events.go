package session

import (
	"net/netip"

	"github.com/nomadproto/nomad/primitives"
)

// Event is anything the orchestrator surfaces to the host between
// Poll/HandleDatagram calls. The host drains them with Session.Events.
type Event interface{ isEvent() }

// Connected fires once the handshake completes and the session reaches
// PhaseEstablished.
type Connected struct {
	RemoteStatic primitives.Key
}

// StateUpdated fires whenever an inbound diff advances the local view of
// the peer's state. No event is emitted for the initial state.
type StateUpdated[S any] struct {
	State S
}

// RemoteAddressChanged fires when the migration validator accepts a new
// validated endpoint for the peer.
type RemoteAddressChanged struct {
	Old, New netip.AddrPort
}

// Closed fires once a graceful close completes (the Close frame was
// acknowledged, or we accepted the peer's).
type Closed struct{}

// Failed fires exactly once, immediately before the session is
// abandoned, carrying the fatal condition that caused it.
type Failed struct {
	Reason error
}

func (Connected) isEvent()           {}
func (StateUpdated[S]) isEvent()     {}
func (RemoteAddressChanged) isEvent() {}
func (Closed) isEvent()              {}
func (Failed) isEvent()              {}
