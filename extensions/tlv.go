// Package extensions implements the handshake TLV registry: encoding
// and decoding of extension type-length-value records carried inside
// the encrypted handshake payloads, and typed decode hooks for the
// extensions this repository understands. Unknown types round-trip as
// opaque TLVs and are ignored by negotiation, per the reserved-range
// contract below.
package extensions

import (
	"encoding/binary"
	"fmt"
)

// Type is the 2-byte ext_type field of a TLV record.
type Type uint16

// Reserved type ranges. A type outside all three is still accepted and
// carried as opaque data; these ranges only describe who is expected to
// mint types in them.
const (
	CoreRangeStart         Type = 0x0001
	CoreRangeEnd           Type = 0x00FF
	ApplicationRangeStart  Type = 0x0100
	ApplicationRangeEnd    Type = 0x0FFF
	ExperimentalRangeStart Type = 0xF000
	ExperimentalRangeEnd   Type = 0xFFFF
)

// TLV is one decoded extension record: `ext_type(2 LE) || length(2 LE)
// || value`.
type TLV struct {
	Type  Type
	Value []byte
}

// EncodeTLVs concatenates a list of TLVs in order.
func EncodeTLVs(tlvs []TLV) []byte {
	size := 0
	for _, t := range tlvs {
		size += 4 + len(t.Value)
	}
	buf := make([]byte, 0, size)
	for _, t := range tlvs {
		var header [4]byte
		binary.LittleEndian.PutUint16(header[0:2], uint16(t.Type))
		binary.LittleEndian.PutUint16(header[2:4], uint16(len(t.Value)))
		buf = append(buf, header[:]...)
		buf = append(buf, t.Value...)
	}
	return buf
}

// DecodeTLVs parses a concatenated TLV byte string. It never rejects an
// unrecognized type; that classification is the caller's job, not the
// codec's.
func DecodeTLVs(data []byte) ([]TLV, error) {
	var out []TLV
	for len(data) > 0 {
		if len(data) < 4 {
			return nil, fmt.Errorf("extensions: truncated TLV header, %d bytes left", len(data))
		}
		typ := Type(binary.LittleEndian.Uint16(data[0:2]))
		length := binary.LittleEndian.Uint16(data[2:4])
		data = data[4:]
		if int(length) > len(data) {
			return nil, fmt.Errorf("extensions: TLV type 0x%04x declares length %d, only %d bytes left", typ, length, len(data))
		}
		out = append(out, TLV{Type: typ, Value: append([]byte(nil), data[:length]...)})
		data = data[length:]
	}
	return out, nil
}

// Find returns the first TLV of the given type, if present.
func Find(tlvs []TLV, typ Type) (TLV, bool) {
	for _, t := range tlvs {
		if t.Type == typ {
			return t, true
		}
	}
	return TLV{}, false
}
