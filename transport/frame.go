// Package transport implements the wire frame codec and per-connection
// timing state: RTT estimation, pacing, retransmission, and address
// migration validation.
package transport

import (
	"fmt"

	"github.com/nomadproto/nomad/primitives"
)

// FrameType is the 1-byte frame discriminant at offset 0 of every
// datagram.
type FrameType byte

const (
	FrameHandshakeInit FrameType = 0x01
	FrameHandshakeResp FrameType = 0x02
	FrameData          FrameType = 0x03
	FrameRekey         FrameType = 0x04
	FrameClose         FrameType = 0x05
)

func (t FrameType) String() string {
	switch t {
	case FrameHandshakeInit:
		return "HandshakeInit"
	case FrameHandshakeResp:
		return "HandshakeResp"
	case FrameData:
		return "Data"
	case FrameRekey:
		return "Rekey"
	case FrameClose:
		return "Close"
	default:
		return fmt.Sprintf("FrameType(0x%02x)", byte(t))
	}
}

// Flag bits for Data/Rekey/Close frames. Bits 2-7 are reserved; a
// nonzero reserved bit rejects the whole frame.
const (
	FlagAckOnly      byte = 0x01
	FlagHasExtension byte = 0x02
	flagReservedMask byte = 0xFC
)

// Header sizes, by frame type.
const (
	HandshakeInitFixedSize = 1 + 1 + 2 + 32 + 48 // type, reserved, version, e, encrypted static
	HandshakeRespFixedSize = 1 + 1 + 6 + 32       // type, reserved, session_id, e
	AuthenticatedHeaderSize = 1 + 1 + 6 + 8        // type, flags, session_id, counter
	DataPayloadHeaderSize   = 4 + 4 + 2            // timestamp, timestamp_echo, payload_length
	RekeyPlaintextSize      = 32 + 4               // peer_ephemeral_public, timestamp
	ClosePlaintextSize      = 8                    // final_ack
)

// PeekFrameType reads the frame type byte without otherwise interpreting
// the datagram. Used by the connection layer to route before the
// session id is known to be valid.
func PeekFrameType(data []byte) (FrameType, error) {
	if len(data) < 1 {
		return 0, ErrFrameTooSmall
	}
	return FrameType(data[0]), nil
}

// HandshakeInitFrame is the wire layout of a type-0x01 frame:
//
//	+0  type=0x01
//	+1  reserved=0x00
//	+2  protocol_version (2 LE)
//	+4  initiator_ephemeral_public (32)
//	+36 encrypted_initiator_static (48 = 32 + 16 tag)
//	+84 encrypted_payload (>= 16)
type HandshakeInitFrame struct {
	ProtocolVersion            uint16
	InitiatorEphemeralPublic   primitives.Key
	EncryptedInitiatorStatic   []byte // 48 bytes
	EncryptedPayload           []byte
}

func (f *HandshakeInitFrame) Marshal() ([]byte, error) {
	if len(f.EncryptedInitiatorStatic) != 48 {
		return nil, fmt.Errorf("transport: handshake init encrypted static must be 48 bytes, got %d", len(f.EncryptedInitiatorStatic))
	}
	if len(f.EncryptedPayload) < 16 {
		return nil, fmt.Errorf("transport: handshake init encrypted payload must be at least 16 bytes, got %d", len(f.EncryptedPayload))
	}

	buf := make([]byte, HandshakeInitFixedSize+len(f.EncryptedPayload))
	buf[0] = byte(FrameHandshakeInit)
	buf[1] = 0x00
	primitives.PutUint16LE(buf[2:4], f.ProtocolVersion)
	copy(buf[4:36], f.InitiatorEphemeralPublic[:])
	copy(buf[36:84], f.EncryptedInitiatorStatic)
	copy(buf[84:], f.EncryptedPayload)
	return buf, nil
}

func UnmarshalHandshakeInit(data []byte) (*HandshakeInitFrame, error) {
	if len(data) < HandshakeInitFixedSize+16 {
		return nil, ErrFrameTooSmall
	}
	if FrameType(data[0]) != FrameHandshakeInit {
		return nil, ErrUnknownFrameType
	}

	f := &HandshakeInitFrame{}
	f.ProtocolVersion = primitives.Uint16LE(data[2:4])
	copy(f.InitiatorEphemeralPublic[:], data[4:36])
	f.EncryptedInitiatorStatic = append([]byte(nil), data[36:84]...)
	f.EncryptedPayload = append([]byte(nil), data[84:]...)
	return f, nil
}

// HandshakeRespFrame is the wire layout of a type-0x02 frame:
//
//	+0  type=0x02
//	+1  reserved=0x00
//	+2  session_id (6, in clear)
//	+8  responder_ephemeral_public (32)
//	+40 encrypted_payload (>= 16)
type HandshakeRespFrame struct {
	SessionID                primitives.SessionID
	ResponderEphemeralPublic primitives.Key
	EncryptedPayload         []byte
}

func (f *HandshakeRespFrame) Marshal() ([]byte, error) {
	if len(f.EncryptedPayload) < 16 {
		return nil, fmt.Errorf("transport: handshake response encrypted payload must be at least 16 bytes, got %d", len(f.EncryptedPayload))
	}

	buf := make([]byte, HandshakeRespFixedSize+len(f.EncryptedPayload))
	buf[0] = byte(FrameHandshakeResp)
	buf[1] = 0x00
	copy(buf[2:8], f.SessionID[:])
	copy(buf[8:40], f.ResponderEphemeralPublic[:])
	copy(buf[40:], f.EncryptedPayload)
	return buf, nil
}

func UnmarshalHandshakeResp(data []byte) (*HandshakeRespFrame, error) {
	if len(data) < HandshakeRespFixedSize+16 {
		return nil, ErrFrameTooSmall
	}
	if FrameType(data[0]) != FrameHandshakeResp {
		return nil, ErrUnknownFrameType
	}

	f := &HandshakeRespFrame{}
	copy(f.SessionID[:], data[2:8])
	copy(f.ResponderEphemeralPublic[:], data[8:40])
	f.EncryptedPayload = append([]byte(nil), data[40:]...)
	return f, nil
}

// AuthenticatedHeader is the 16-byte header shared by Data, Rekey, and
// Close frames, used verbatim as the AEAD's additional authenticated
// data (see cryptosession.BuildAAD, which this must stay byte-identical
// to).
type AuthenticatedHeader struct {
	Type      FrameType
	Flags     byte
	SessionID primitives.SessionID
	Counter   uint64
}

func (h *AuthenticatedHeader) Marshal() []byte {
	buf := make([]byte, AuthenticatedHeaderSize)
	buf[0] = byte(h.Type)
	buf[1] = h.Flags
	copy(buf[2:8], h.SessionID[:])
	primitives.PutUint64LE(buf[8:16], h.Counter)
	return buf
}

// UnmarshalAuthenticatedHeader parses the header and validates the
// reserved flag bits and frame type, returning the silent-drop sentinel
// errors the caller must never turn into a response.
func UnmarshalAuthenticatedHeader(data []byte) (*AuthenticatedHeader, []byte, error) {
	if len(data) < AuthenticatedHeaderSize+primitives.TagSize {
		return nil, nil, ErrFrameTooSmall
	}

	h := &AuthenticatedHeader{Type: FrameType(data[0]), Flags: data[1]}
	switch h.Type {
	case FrameData, FrameRekey, FrameClose:
	default:
		return nil, nil, ErrUnknownFrameType
	}
	if h.Flags&flagReservedMask != 0 {
		return nil, nil, ErrReservedFlagsSet
	}

	copy(h.SessionID[:], data[2:8])
	h.Counter = primitives.Uint64LE(data[8:16])
	ciphertext := data[AuthenticatedHeaderSize:]
	return h, ciphertext, nil
}

// DataPayloadHeader is the 10-byte header prepended to every Data
// frame's plaintext, ahead of the sync engine's own message bytes.
type DataPayloadHeader struct {
	Timestamp     uint32 // sender's clock in ms (session fills it with the low 32 bits of Unix ms)
	TimestampEcho uint32
	PayloadLength uint16
}

func (h *DataPayloadHeader) Marshal() []byte {
	buf := make([]byte, DataPayloadHeaderSize)
	primitives.PutUint32LE(buf[0:4], h.Timestamp)
	primitives.PutUint32LE(buf[4:8], h.TimestampEcho)
	primitives.PutUint16LE(buf[8:10], h.PayloadLength)
	return buf
}

func UnmarshalDataPayloadHeader(data []byte) (*DataPayloadHeader, []byte, error) {
	if len(data) < DataPayloadHeaderSize {
		return nil, nil, ErrFrameTooSmall
	}
	h := &DataPayloadHeader{
		Timestamp:     primitives.Uint32LE(data[0:4]),
		TimestampEcho: primitives.Uint32LE(data[4:8]),
		PayloadLength: primitives.Uint16LE(data[8:10]),
	}
	rest := data[DataPayloadHeaderSize:]
	if int(h.PayloadLength) > len(rest) {
		return nil, nil, ErrFrameTooSmall
	}
	return h, rest[:h.PayloadLength], nil
}

// RekeyPlaintext is the decrypted body of a Rekey frame: the sender's
// fresh ephemeral public key and a millisecond timestamp.
type RekeyPlaintext struct {
	PeerEphemeralPublic primitives.Key
	Timestamp           uint32
}

func (p *RekeyPlaintext) Marshal() []byte {
	buf := make([]byte, RekeyPlaintextSize)
	copy(buf[0:32], p.PeerEphemeralPublic[:])
	primitives.PutUint32LE(buf[32:36], p.Timestamp)
	return buf
}

func UnmarshalRekeyPlaintext(data []byte) (*RekeyPlaintext, error) {
	if len(data) != RekeyPlaintextSize {
		return nil, fmt.Errorf("transport: rekey plaintext must be %d bytes, got %d", RekeyPlaintextSize, len(data))
	}
	p := &RekeyPlaintext{Timestamp: primitives.Uint32LE(data[32:36])}
	copy(p.PeerEphemeralPublic[:], data[0:32])
	return p, nil
}

// ClosePlaintext is the decrypted body of a Close frame: the highest
// state version the sender has acknowledged.
type ClosePlaintext struct {
	FinalAck uint64
}

func (p *ClosePlaintext) Marshal() []byte {
	buf := make([]byte, ClosePlaintextSize)
	primitives.PutUint64LE(buf, p.FinalAck)
	return buf
}

func UnmarshalClosePlaintext(data []byte) (*ClosePlaintext, error) {
	if len(data) != ClosePlaintextSize {
		return nil, fmt.Errorf("transport: close plaintext must be %d bytes, got %d", ClosePlaintextSize, len(data))
	}
	return &ClosePlaintext{FinalAck: primitives.Uint64LE(data)}, nil
}
