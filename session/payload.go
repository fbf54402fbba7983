package session

import (
	"fmt"

	"github.com/nomadproto/nomad/extensions"
)

// encodeInitPayload lays out the Handshake Init plaintext: a one-byte
// length-prefixed state type identifier followed by the concatenated
// extension TLVs the initiator offers.
func encodeInitPayload(stateTypeID string, tlvs []extensions.TLV) ([]byte, error) {
	if len(stateTypeID) == 0 || len(stateTypeID) > 255 {
		return nil, fmt.Errorf("session: state type id length must be 1-255, got %d", len(stateTypeID))
	}
	buf := make([]byte, 0, 1+len(stateTypeID)+64)
	buf = append(buf, byte(len(stateTypeID)))
	buf = append(buf, stateTypeID...)
	buf = append(buf, extensions.EncodeTLVs(tlvs)...)
	return buf, nil
}

func decodeInitPayload(data []byte) (stateTypeID string, tlvs []extensions.TLV, err error) {
	if len(data) < 1 {
		return "", nil, ErrMalformedHandshakePayload
	}
	n := int(data[0])
	if len(data) < 1+n {
		return "", nil, ErrMalformedHandshakePayload
	}
	stateTypeID = string(data[1 : 1+n])
	tlvs, err = extensions.DecodeTLVs(data[1+n:])
	if err != nil {
		return "", nil, fmt.Errorf("%w: %v", ErrMalformedHandshakePayload, err)
	}
	return stateTypeID, tlvs, nil
}

// ackOK / ackRejected are the Handshake Response's one-byte status,
// ahead of the negotiated extension TLVs.
const (
	ackOK       byte = 0x00
	ackRejected byte = 0x01
)

func encodeRespPayload(status byte, tlvs []extensions.TLV) []byte {
	buf := make([]byte, 0, 1+32)
	buf = append(buf, status)
	buf = append(buf, extensions.EncodeTLVs(tlvs)...)
	return buf
}

func decodeRespPayload(data []byte) (status byte, tlvs []extensions.TLV, err error) {
	if len(data) < 1 {
		return 0, nil, ErrMalformedHandshakePayload
	}
	tlvs, err = extensions.DecodeTLVs(data[1:])
	if err != nil {
		return 0, nil, fmt.Errorf("%w: %v", ErrMalformedHandshakePayload, err)
	}
	return data[0], tlvs, nil
}
