// Package primitives holds the fixed-size byte containers, little-endian
// codecs, and protocol constants shared by every other NOMAD package.
package primitives

import "time"

// Sizes of the fixed cryptographic quantities used throughout the protocol.
const (
	// KeySize is the size of a session key, a static private/public key
	// half, and a rekey authentication key — all X25519/ChaCha keys.
	KeySize = 32

	// SessionIDSize is the size of the responder-assigned session
	// identifier carried in the clear on Handshake Response and in the
	// AEAD AAD of every post-handshake frame.
	SessionIDSize = 6

	// NonceSize is the XChaCha20-Poly1305 nonce size used for every
	// post-handshake AEAD operation.
	NonceSize = 24

	// TagSize is the Poly1305 authentication tag size.
	TagSize = 16

	// AADSize is the size of the additional authenticated data bound to
	// every post-handshake frame: frame_type(1) || flags(1) ||
	// session_id(6) || counter(8).
	AADSize = 16

	// HandshakeHashSize is the size of the Noise transcript hash.
	HandshakeHashSize = 32

	// ReplayWindowBits is the width of the sliding anti-replay bitmap.
	ReplayWindowBits = 2048
)

// Counter, epoch, and message limits, and the fatal conditions that
// follow from exhausting them.
const (
	// RejectAfterMessages is the send-counter value at which encryption
	// within a single epoch is refused (CounterExhaustion); the value
	// itself is never used as a counter.
	RejectAfterMessages uint64 = (1 << 64) - 1

	// MaxEpoch is the largest epoch value; exhausting it is fatal
	// (EpochExhaustion).
	MaxEpoch uint32 = (1 << 32) - 1

	// RekeyAfterMessages is the soft per-epoch message count that
	// triggers a rekey.
	RekeyAfterMessages uint64 = 1 << 60

	// RekeyAfterDuration is the soft per-epoch wall-clock age that
	// triggers a rekey.
	RekeyAfterDuration = 120 * time.Second

	// OldKeyRetention bounds how long a rekeyed-out key remains usable
	// for decrypting frames still in flight under the previous epoch.
	OldKeyRetention = 5 * time.Second

	// KeysExpireAfter is the hard ceiling past which retained keys are
	// fatal to keep around at all.
	KeysExpireAfter = 180 * time.Second
)

// RTT estimator constants (RFC 6298).
const (
	RTOAlpha       = 0.125 // α
	RTOBeta        = 0.25  // β
	RTOClockGranularity = 100 * time.Millisecond
	RTOMin         = 100 * time.Millisecond
	RTOMax         = 60 * time.Second
	RTOK           = 4
)

// Pacer and keepalive timing constants.
const (
	PacerMinInterval       = 20 * time.Millisecond
	PacerMinRate           = time.Second / 50
	PacerCollectionInterval = 8 * time.Millisecond
	PacerDelayedAckMax     = 100 * time.Millisecond
	KeepaliveInterval      = 25 * time.Second
	KeepaliveRecvWindow    = 60 * time.Second
	DeadPeerTimeout        = 60 * time.Second
)

// Retransmission constants.
const (
	MaxRetransmits = 10
)

// Migration validator constants.
const (
	AntiAmplificationFactor = 3
	SubnetMigrationInterval = 1 * time.Second
)

// Sync engine constants.
const (
	// DuplicateBitmapBits is the width of the ordered duplicate-detection
	// bitmap; versions this far or further behind the top are treated as
	// seen (conservative duplicate classification).
	DuplicateBitmapBits = 64
)

// HKDF info strings. Keep as []byte to avoid repeated conversion at
// every call site.
var (
	InfoSessionKeys = []byte("nomad v1 session keys")
	InfoRekeyAuth   = []byte("nomad v1 rekey auth")
)

// RekeyInfoPrefix is the prefix of the rekey KDF info string; the epoch
// (little-endian uint32) is appended by the caller.
var RekeyInfoPrefix = []byte("nomad v1 rekey")

// NoisePattern is the fixed, non-negotiated Noise handshake pattern name.
const NoisePattern = "Noise_IK_25519_ChaChaPoly_BLAKE2s"

// ProtocolVersion is the fixed protocol_version field of Handshake Init.
const ProtocolVersion uint16 = 0x0001
