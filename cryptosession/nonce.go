package cryptosession

import "github.com/nomadproto/nomad/primitives"

// Direction selects which half of the nonce space a frame belongs to:
// each direction has an independent counter space within an epoch,
// which is what lets both peers encrypt concurrently without
// coordinating counters.
type Direction byte

const (
	InitiatorToResponder Direction = 0x00
	ResponderToInitiator Direction = 0x01
)

// BuildNonce constructs the 24-byte XChaCha20-Poly1305 nonce:
// epoch(4 LE) || direction(1) || 11 zero bytes || counter(8 LE).
//
// For epoch=1, direction=InitiatorToResponder, counter=42 this must
// produce exactly:
//
//	01 00 00 00 00 00 00 00 00 00 00 00 00 00 00 00 2A 00 00 00 00 00 00 00
func BuildNonce(epoch uint32, direction Direction, counter uint64) [primitives.NonceSize]byte {
	var nonce [primitives.NonceSize]byte
	primitives.PutUint32LE(nonce[0:4], epoch)
	nonce[4] = byte(direction)
	// nonce[5:16] stays zero.
	primitives.PutUint64LE(nonce[16:24], counter)
	return nonce
}

// BuildAAD constructs the 16-byte additional authenticated data shared by
// Data, Rekey, and Close frames: frame_type(1) || flags(1) ||
// session_id(6) || counter(8 LE). This is exactly the frame's
// authenticated header, passed in verbatim as AAD.
//
// For frame_type=0x03, flags=0x01, session_id=01 02 03 04 05 06,
// counter=42 this must produce exactly:
//
//	03 01 01 02 03 04 05 06 2A 00 00 00 00 00 00 00
func BuildAAD(frameType, flags byte, sessionID primitives.SessionID, counter uint64) [primitives.AADSize]byte {
	var aad [primitives.AADSize]byte
	aad[0] = frameType
	aad[1] = flags
	copy(aad[2:8], sessionID[:])
	primitives.PutUint64LE(aad[8:16], counter)
	return aad
}
