// Package syncengine turns application-state changes into wire messages,
// applies received messages back to application state via a bound
// statecontract.Contract, and tracks what the peer has seen.
package syncengine

import (
	"fmt"

	"github.com/nomadproto/nomad/primitives"
)

// Message is the sync-message wire layout carried inside a Data frame's
// plaintext, immediately after the frame's own payload header:
//
//	sender_state_num(8 LE) ‖ acked_state_num(8 LE) ‖ base_state_num(8 LE)
//	‖ diff_length(4 LE) ‖ diff_bytes
//
// Ack-only is indicated by diff_length == 0 AND the frame's ACK_ONLY
// flag.
type Message struct {
	SenderStateNum uint64
	AckedStateNum  uint64
	BaseStateNum   uint64
	Diff           []byte
}

const messageHeaderSize = 8 + 8 + 8 + 4

func (m *Message) Marshal() []byte {
	buf := make([]byte, messageHeaderSize+len(m.Diff))
	primitives.PutUint64LE(buf[0:8], m.SenderStateNum)
	primitives.PutUint64LE(buf[8:16], m.AckedStateNum)
	primitives.PutUint64LE(buf[16:24], m.BaseStateNum)
	primitives.PutUint32LE(buf[24:28], uint32(len(m.Diff)))
	copy(buf[28:], m.Diff)
	return buf
}

func UnmarshalMessage(data []byte) (*Message, error) {
	if len(data) < messageHeaderSize {
		return nil, fmt.Errorf("syncengine: message shorter than header (%d bytes)", len(data))
	}
	m := &Message{
		SenderStateNum: primitives.Uint64LE(data[0:8]),
		AckedStateNum:  primitives.Uint64LE(data[8:16]),
		BaseStateNum:   primitives.Uint64LE(data[16:24]),
	}
	diffLen := primitives.Uint32LE(data[24:28])
	rest := data[messageHeaderSize:]
	if uint64(len(rest)) < uint64(diffLen) {
		return nil, fmt.Errorf("syncengine: message declares diff length %d, only %d bytes available", diffLen, len(rest))
	}
	m.Diff = append([]byte(nil), rest[:diffLen]...)
	return m, nil
}

// IsAckOnly reports whether the message carries no diff, the condition
// under which the frame's ACK_ONLY flag must also be set.
func (m *Message) IsAckOnly() bool { return len(m.Diff) == 0 }
