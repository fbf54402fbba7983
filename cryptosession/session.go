package cryptosession

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"time"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"

	"github.com/nomadproto/nomad/primitives"
)

// Role distinguishes which side of the Noise_IK handshake a CryptoSession
// was built from; it fixes which derived key is "send" vs "recv" and
// which nonce direction byte the session uses when encrypting.
type Role byte

const (
	RoleInitiator Role = iota
	RoleResponder
)

// CryptoSession holds current send/recv keys, epoch, send counter,
// replay window, the old-keys retention slot, and the stable rekey
// authentication key. One CryptoSession backs exactly one Session for
// its entire lifetime, rekeying in place.
type CryptoSession struct {
	role Role

	sendDirection Direction
	recvDirection Direction

	epoch      uint32
	epochStart time.Time

	sendKey primitives.Key
	recvKey primitives.Key

	sendCipher cipher.AEAD
	recvCipher cipher.AEAD

	sendCounter uint64
	replay      *ReplayWindow

	oldRecvKey    primitives.Key
	oldRecvCipher cipher.AEAD
	oldEpoch      uint32
	oldValid      bool
	oldExpiresAt  time.Time

	rekeyAuthKey primitives.Key
}

// NewFromHandshake builds the post-handshake CryptoSession from a
// completed Noise_IK exchange: the initiator treats initiator_key as
// send and responder_key as recv; the responder's roles are swapped.
func NewFromHandshake(role Role, result *HandshakeResult) (*CryptoSession, error) {
	cs := &CryptoSession{
		role:         role,
		epoch:        0,
		epochStart:   time.Now(),
		replay:       NewReplayWindow(),
		rekeyAuthKey: result.RekeyAuthKey,
	}

	switch role {
	case RoleInitiator:
		cs.sendKey = result.InitiatorKey
		cs.recvKey = result.ResponderKey
		cs.sendDirection = InitiatorToResponder
		cs.recvDirection = ResponderToInitiator
	case RoleResponder:
		cs.sendKey = result.ResponderKey
		cs.recvKey = result.InitiatorKey
		cs.sendDirection = ResponderToInitiator
		cs.recvDirection = InitiatorToResponder
	default:
		return nil, fmt.Errorf("cryptosession: unknown role %d", role)
	}

	var err error
	cs.sendCipher, err = newAEAD(cs.sendKey)
	if err != nil {
		return nil, err
	}
	cs.recvCipher, err = newAEAD(cs.recvKey)
	if err != nil {
		return nil, err
	}
	return cs, nil
}

func newAEAD(key primitives.Key) (cipher.AEAD, error) {
	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, fmt.Errorf("cryptosession: build XChaCha20-Poly1305: %w", err)
	}
	return aead, nil
}

// Encrypt consumes the next send counter, builds the nonce and AAD, and
// seals plaintext. It returns the counter it used so the caller can
// place it in the frame header.
func (cs *CryptoSession) Encrypt(frameType, flags byte, sessionID primitives.SessionID, plaintext []byte) (ciphertext []byte, counter uint64, err error) {
	if cs.sendCounter == primitives.RejectAfterMessages {
		return nil, 0, ErrCounterExhaustion
	}
	counter = cs.sendCounter
	cs.sendCounter++

	nonce := BuildNonce(cs.epoch, cs.sendDirection, counter)
	aad := BuildAAD(frameType, flags, sessionID, counter)
	ciphertext = cs.sendCipher.Seal(nil, nonce[:], plaintext, aad[:])
	return ciphertext, counter, nil
}

// Decrypt runs in a fixed order: replay check first (cheap, no AEAD
// touched), then current-epoch AEAD, then — only if that fails and an
// unexpired old key exists — the previous epoch's key. A replay or an
// auth failure on both keys must be treated by the caller as a
// silent-drop condition, never surfaced as a host-visible event.
func (cs *CryptoSession) Decrypt(frameType, flags byte, sessionID primitives.SessionID, counter uint64, ciphertext []byte) ([]byte, error) {
	if err := cs.replay.Check(counter); err != nil {
		return nil, err
	}

	nonce := BuildNonce(cs.epoch, cs.recvDirection, counter)
	aad := BuildAAD(frameType, flags, sessionID, counter)
	if plaintext, err := cs.recvCipher.Open(nil, nonce[:], ciphertext, aad[:]); err == nil {
		cs.replay.Accept(counter)
		return plaintext, nil
	}

	if cs.oldValid && time.Now().Before(cs.oldExpiresAt) {
		oldNonce := BuildNonce(cs.oldEpoch, cs.recvDirection, counter)
		if plaintext, err := cs.oldRecvCipher.Open(nil, oldNonce[:], ciphertext, aad[:]); err == nil {
			// Old epoch has its own counter space; do not touch the
			// current epoch's replay window.
			return plaintext, nil
		}
	}

	return nil, ErrAuthenticationFailed
}

// ShouldRekey reports whether either soft rekey trigger has been
// reached: 120s since epoch start, or 2^60 messages sent this epoch.
func (cs *CryptoSession) ShouldRekey(now time.Time) bool {
	return now.Sub(cs.epochStart) >= primitives.RekeyAfterDuration || cs.sendCounter >= primitives.RekeyAfterMessages
}

// KeysExpired reports the hard fatal ceiling: the current epoch's keys
// have been in service for more than 180s without a successful rekey.
func (cs *CryptoSession) KeysExpired(now time.Time) bool {
	return now.Sub(cs.epochStart) > primitives.KeysExpireAfter
}

// Epoch returns the current epoch number.
func (cs *CryptoSession) Epoch() uint32 { return cs.epoch }

// RekeyDeadline returns the instant ShouldRekey's wall-clock trigger
// fires, for a host's timer wheel. It does not account for the
// message-count trigger, which has no fixed deadline to report.
func (cs *CryptoSession) RekeyDeadline() time.Time {
	return cs.epochStart.Add(primitives.RekeyAfterDuration)
}

// HardExpiryDeadline returns the instant KeysExpired becomes true, for a
// host's timer wheel.
func (cs *CryptoSession) HardExpiryDeadline() time.Time {
	return cs.epochStart.Add(primitives.KeysExpireAfter)
}

// OldKeyExpiryDeadline returns when the retained previous-epoch key
// becomes unusable, or the zero time if there is none retained.
func (cs *CryptoSession) OldKeyExpiryDeadline() (time.Time, bool) {
	if !cs.oldValid {
		return time.Time{}, false
	}
	return cs.oldExpiresAt, true
}

// RekeyEphemeral is the fresh ephemeral X25519 keypair one side of a
// rekey generates and exchanges via an encrypted Rekey frame.
type RekeyEphemeral struct {
	Private primitives.Key
	Public  primitives.Key
}

// GenerateRekeyEphemeral creates a new ephemeral keypair for a rekey
// round. It must never be reused across rekeys: forward secrecy depends
// on each epoch transition consuming a fresh ephemeral secret.
func GenerateRekeyEphemeral() (*RekeyEphemeral, error) {
	e := &RekeyEphemeral{}
	if _, err := rand.Read(e.Private[:]); err != nil {
		return nil, fmt.Errorf("generate rekey ephemeral: %w", err)
	}
	e.Private[0] &= 248
	e.Private[31] &= 127
	e.Private[31] |= 64

	pub, err := curve25519.X25519(e.Private[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("compute rekey ephemeral public: %w", err)
	}
	copy(e.Public[:], pub)
	return e, nil
}

// Scrub zeroes the ephemeral private key once it has been consumed.
func (e *RekeyEphemeral) Scrub() {
	if e == nil {
		return
	}
	e.Private.Scrub()
}

// CompleteRekey finishes a rekey round once both ephemeral public keys
// are known: it computes ephemeral_dh, retires the current keys into the
// 5s retention slot, advances the epoch, resets the send counter and
// replay window, and derives the new epoch's keys combining ephemeral_dh
// (forward secrecy) with the stable rekey_auth_key (post-compromise
// security).
func (cs *CryptoSession) CompleteRekey(local *RekeyEphemeral, remoteEphemeralPublic primitives.Key) error {
	if cs.epoch == primitives.MaxEpoch {
		return ErrEpochExhaustion
	}

	dhOut, err := curve25519.X25519(local.Private[:], remoteEphemeralPublic[:])
	if err != nil {
		return fmt.Errorf("cryptosession: rekey ephemeral dh: %w", err)
	}
	var ephemeralDH primitives.Key
	copy(ephemeralDH[:], dhOut)
	defer ephemeralDH.Scrub()

	cs.retireCurrentKeys()

	newEpoch := cs.epoch + 1

	prk := make([]byte, 64)
	copy(prk[:32], ephemeralDH[:])
	copy(prk[32:], cs.rekeyAuthKey[:])
	defer zeroBytes(prk)

	info := make([]byte, len(primitives.RekeyInfoPrefix)+4)
	copy(info, primitives.RekeyInfoPrefix)
	primitives.PutUint32LE(info[len(primitives.RekeyInfoPrefix):], newEpoch)

	okm := make([]byte, 64)
	if _, err := io.ReadFull(hkdf.Expand(sha256.New, prk, info), okm); err != nil {
		return fmt.Errorf("cryptosession: derive rekey session keys: %w", err)
	}
	defer zeroBytes(okm)

	var newInitiatorKey, newResponderKey primitives.Key
	copy(newInitiatorKey[:], okm[:32])
	copy(newResponderKey[:], okm[32:])

	switch cs.role {
	case RoleInitiator:
		cs.sendKey = newInitiatorKey
		cs.recvKey = newResponderKey
	case RoleResponder:
		cs.sendKey = newResponderKey
		cs.recvKey = newInitiatorKey
	}

	cs.sendCipher, err = newAEAD(cs.sendKey)
	if err != nil {
		return err
	}
	cs.recvCipher, err = newAEAD(cs.recvKey)
	if err != nil {
		return err
	}

	cs.epoch = newEpoch
	cs.epochStart = time.Now()
	cs.sendCounter = 0
	cs.replay.Reset()

	return nil
}

// retireCurrentKeys moves the about-to-be-replaced recv key into the
// old-keys slot so frames still in flight under the outgoing epoch
// remain decryptable for the retention window. The send key is scrubbed
// immediately: once the epoch advances we never encrypt under it again.
func (cs *CryptoSession) retireCurrentKeys() {
	cs.oldRecvKey = cs.recvKey
	cs.oldRecvCipher = cs.recvCipher
	cs.oldEpoch = cs.epoch
	cs.oldValid = true
	cs.oldExpiresAt = time.Now().Add(primitives.OldKeyRetention)

	cs.sendKey.Scrub()
}

// ExpireOldKeys zeroes the retained previous-epoch key once its
// retention window has elapsed. Safe to call repeatedly; a no-op once
// expired.
func (cs *CryptoSession) ExpireOldKeys(now time.Time) {
	if cs.oldValid && !now.Before(cs.oldExpiresAt) {
		cs.oldRecvKey.Scrub()
		cs.oldRecvCipher = nil
		cs.oldValid = false
	}
}

// Close scrubs all live key material. Call on session teardown.
func (cs *CryptoSession) Close() {
	cs.sendKey.Scrub()
	cs.recvKey.Scrub()
	cs.oldRecvKey.Scrub()
	cs.rekeyAuthKey.Scrub()
}

func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
