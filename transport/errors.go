package transport

import "errors"

// Silent-drop errors: a parser error of these kinds must never generate
// a response. Callers increment a counter, then continue.
var (
	ErrFrameTooSmall    = errors.New("transport: frame smaller than minimum size")
	ErrUnknownFrameType = errors.New("transport: unknown or malformed frame type")
	ErrReservedFlagsSet = errors.New("transport: reserved flag bits set")
	ErrUnknownSession   = errors.New("transport: unknown session id")
)

// Fatal errors: force the connection to Failed.
var (
	ErrMaxRetransmitsExceeded = errors.New("transport: retransmit limit exceeded")
	ErrDeadPeer               = errors.New("transport: no frame received within dead-peer timeout")
)
