package cryptosession

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/curve25519"

	"github.com/nomadproto/nomad/primitives"
)

// StaticKeypair is an endpoint's long-term X25519 identity. It outlives
// any single session. The host application generates or loads this once
// and hands it to every Session constructed afterwards.
type StaticKeypair struct {
	Private primitives.Key
	Public  primitives.Key
}

// GenerateStaticKeypair creates a new random X25519 identity keypair,
// with standard Curve25519 clamping applied to the private scalar.
func GenerateStaticKeypair() (*StaticKeypair, error) {
	kp := &StaticKeypair{}
	if _, err := rand.Read(kp.Private[:]); err != nil {
		return nil, fmt.Errorf("generate static private key: %w", err)
	}
	kp.Private[0] &= 248
	kp.Private[31] &= 127
	kp.Private[31] |= 64

	pub, err := curve25519.X25519(kp.Private[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("compute static public key: %w", err)
	}
	copy(kp.Public[:], pub)
	return kp, nil
}

// StaticKeypairFromPrivate rebuilds a keypair from a previously generated
// and persisted private key (e.g. loaded by a host from disk).
func StaticKeypairFromPrivate(private primitives.Key) (*StaticKeypair, error) {
	pub, err := curve25519.X25519(private[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("compute static public key: %w", err)
	}
	kp := &StaticKeypair{Private: private}
	copy(kp.Public[:], pub)
	return kp, nil
}

// Scrub zeroes the private key. Call on session/handshake teardown.
func (kp *StaticKeypair) Scrub() {
	if kp == nil {
		return
	}
	kp.Private.Scrub()
}

// staticDH computes DH(local.Private, remotePublic), rejecting an
// all-zero result: a low-order point would otherwise silently degrade
// security.
func staticDH(local *StaticKeypair, remotePublic primitives.Key) (primitives.Key, error) {
	var shared primitives.Key

	out, err := curve25519.X25519(local.Private[:], remotePublic[:])
	if err != nil {
		return shared, fmt.Errorf("X25519: %w", err)
	}

	allZero := true
	for _, b := range out {
		if b != 0 {
			allZero = false
			break
		}
	}
	if allZero {
		return shared, ErrZeroSharedSecret
	}

	copy(shared[:], out)
	return shared, nil
}
