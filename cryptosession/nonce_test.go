package cryptosession

import (
	"bytes"
	"testing"

	"github.com/nomadproto/nomad/primitives"
)

func TestBuildNonceVector(t *testing.T) {
	nonce := BuildNonce(1, InitiatorToResponder, 42)
	want := []byte{
		0x01, 0x00, 0x00, 0x00,
		0x00,
		0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
		0x2A, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	}
	if !bytes.Equal(nonce[:], want) {
		t.Fatalf("nonce = % x, want % x", nonce[:], want)
	}
}

func TestBuildAADVector(t *testing.T) {
	sid := primitives.SessionID{0x01, 0x02, 0x03, 0x04, 0x05, 0x06}
	aad := BuildAAD(0x03, 0x01, sid, 42)
	want := []byte{
		0x03, 0x01,
		0x01, 0x02, 0x03, 0x04, 0x05, 0x06,
		0x2A, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00,
	}
	if !bytes.Equal(aad[:], want) {
		t.Fatalf("aad = % x, want % x", aad[:], want)
	}
}

func TestBuildNonceDirectionByte(t *testing.T) {
	n := BuildNonce(0, ResponderToInitiator, 0)
	if n[4] != 0x01 {
		t.Fatalf("direction byte = %#x, want 0x01", n[4])
	}
}
