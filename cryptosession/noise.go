package cryptosession

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/flynn/noise"
	"golang.org/x/crypto/hkdf"

	"github.com/nomadproto/nomad/primitives"
)

// cipherSuite fixes Noise_IK_25519_ChaChaPoly_BLAKE2s. The suite is never
// negotiated — changing it is a protocol version bump, not a runtime
// option.
var cipherSuite = noise.NewCipherSuite(noise.DH25519, noise.CipherChaChaPoly, noise.HashBLAKE2s)

func (kp *StaticKeypair) noiseDHKey() noise.DHKey {
	return noise.DHKey{Private: kp.Private[:], Public: kp.Public[:]}
}

// HandshakeResult is everything a completed Noise_IK handshake yields:
// the transcript hash and the two derived key material sets needed for
// the session.
type HandshakeResult struct {
	HandshakeHash primitives.Hash
	InitiatorKey  primitives.Key
	ResponderKey  primitives.Key
	RekeyAuthKey  primitives.Key
	RemoteStatic  primitives.Key
}

// InitiatorHandshake drives the client side of Noise_IK: one write, one
// read, one set of emitted keys.
type InitiatorHandshake struct {
	hs           *noise.HandshakeState
	local        *StaticKeypair
	remoteStatic primitives.Key
}

// NewInitiatorHandshake starts a handshake toward a known responder
// static public key, as required by the IK pattern (the initiator must
// already know the responder's static key).
func NewInitiatorHandshake(local *StaticKeypair, remoteStatic primitives.Key) (*InitiatorHandshake, error) {
	hs, err := noise.NewHandshakeState(noise.Config{
		CipherSuite:   cipherSuite,
		Random:        rand.Reader,
		Pattern:       noise.HandshakeIK,
		Initiator:     true,
		StaticKeypair: local.noiseDHKey(),
		PeerStatic:    remoteStatic[:],
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}
	return &InitiatorHandshake{hs: hs, local: local, remoteStatic: remoteStatic}, nil
}

// WriteMessage1 produces the Handshake Init encrypted payload (-> e, es,
// s, ss). The caller wraps the returned bytes in the Handshake Init wire
// frame.
func (i *InitiatorHandshake) WriteMessage1(payload []byte) ([]byte, error) {
	msg, _, _, err := i.hs.WriteMessage(nil, payload)
	if err != nil {
		return nil, fmt.Errorf("%w: write message 1: %v", ErrHandshakeFailed, err)
	}
	return msg, nil
}

// ReadMessage2 consumes the Handshake Response (<- e, ee, se) and, on
// success, finalizes the handshake and derives session keys.
func (i *InitiatorHandshake) ReadMessage2(msg []byte) ([]byte, *HandshakeResult, error) {
	payload, cs1, cs2, err := i.hs.ReadMessage(nil, msg)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: read message 2: %v", ErrHandshakeFailed, err)
	}
	if cs1 == nil || cs2 == nil {
		return nil, nil, ErrHandshakeNotComplete
	}
	result, err := i.deriveResult()
	if err != nil {
		return nil, nil, err
	}
	return payload, result, nil
}

func (i *InitiatorHandshake) deriveResult() (*HandshakeResult, error) {
	return deriveHandshakeResult(i.hs.ChannelBinding(), i.local, i.remoteStatic)
}

// ResponderHandshake drives the server side of Noise_IK.
type ResponderHandshake struct {
	hs    *noise.HandshakeState
	local *StaticKeypair
}

// NewResponderHandshake starts a handshake awaiting the initiator's first
// message. The responder's own static key is known in advance; the
// initiator's static key is learned while processing message 1.
func NewResponderHandshake(local *StaticKeypair) (*ResponderHandshake, error) {
	hs, err := noise.NewHandshakeState(noise.Config{
		CipherSuite:   cipherSuite,
		Random:        rand.Reader,
		Pattern:       noise.HandshakeIK,
		Initiator:     false,
		StaticKeypair: local.noiseDHKey(),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHandshakeFailed, err)
	}
	return &ResponderHandshake{hs: hs, local: local}, nil
}

// ReadMessage1 consumes the Handshake Init and returns its decrypted
// payload (the state type identifier and extension TLVs) plus the
// initiator's now-known static public key.
func (r *ResponderHandshake) ReadMessage1(msg []byte) ([]byte, primitives.Key, error) {
	payload, _, _, err := r.hs.ReadMessage(nil, msg)
	if err != nil {
		var zero primitives.Key
		return nil, zero, fmt.Errorf("%w: read message 1: %v", ErrHandshakeFailed, err)
	}
	var remoteStatic primitives.Key
	copy(remoteStatic[:], r.hs.PeerStatic())
	return payload, remoteStatic, nil
}

// WriteMessage2 produces the Handshake Response and, since IK completes
// in two messages, finalizes the handshake and derives session keys.
func (r *ResponderHandshake) WriteMessage2(payload []byte, remoteStatic primitives.Key) ([]byte, *HandshakeResult, error) {
	msg, cs1, cs2, err := r.hs.WriteMessage(nil, payload)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: write message 2: %v", ErrHandshakeFailed, err)
	}
	if cs1 == nil || cs2 == nil {
		return nil, nil, ErrHandshakeNotComplete
	}
	result, err := deriveHandshakeResult(r.hs.ChannelBinding(), r.local, remoteStatic)
	if err != nil {
		return nil, nil, err
	}
	return msg, result, nil
}

// deriveHandshakeResult implements the post-handshake key schedule: the
// two session keys come from the Noise transcript hash; the rekey
// authentication key comes from the independent static-static DH, giving
// it a lifetime distinct from (and outliving) any single epoch's session
// keys.
func deriveHandshakeResult(handshakeHash []byte, local *StaticKeypair, remoteStatic primitives.Key) (*HandshakeResult, error) {
	var hash primitives.Hash
	copy(hash[:], handshakeHash)

	okm := make([]byte, 64)
	if _, err := io.ReadFull(hkdf.Expand(sha256.New, hash[:], primitives.InfoSessionKeys), okm); err != nil {
		return nil, fmt.Errorf("derive session keys: %w", err)
	}

	result := &HandshakeResult{HandshakeHash: hash, RemoteStatic: remoteStatic}
	copy(result.InitiatorKey[:], okm[:32])
	copy(result.ResponderKey[:], okm[32:])

	sdh, err := staticDH(local, remoteStatic)
	if err != nil {
		return nil, fmt.Errorf("static dh for rekey auth key: %w", err)
	}
	defer sdh.Scrub()

	rekeyAuth := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.Expand(sha256.New, sdh[:], primitives.InfoRekeyAuth), rekeyAuth); err != nil {
		return nil, fmt.Errorf("derive rekey auth key: %w", err)
	}
	copy(result.RekeyAuthKey[:], rekeyAuth)

	return result, nil
}
