package session

import "errors"

// Silent-drop conditions surfaced by the orchestrator's own dispatch
// logic, layered on top of the ones cryptosession and transport already
// define. Never turn these into a host-visible event; count and drop.
var (
	ErrWrongPhaseForFrame = errors.New("session: frame type not valid in current phase")
)

// Configuration errors: rejected at open/accept, never at runtime.
var (
	ErrUnsupportedProtocolVersion = errors.New("session: unsupported protocol version")
	ErrStateTypeMismatch          = errors.New("session: peer's state type id does not match ours")
	ErrMalformedHandshakePayload  = errors.New("session: malformed handshake payload")
)

// ErrNotEstablished is returned by operations that only make sense once
// a session has completed its handshake.
var ErrNotEstablished = errors.New("session: not established")
