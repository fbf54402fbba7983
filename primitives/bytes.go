package primitives

// Key is a zeroizing 32-byte container for session keys, static private
// keys, and rekey authentication keys. Scrub clears the array it is
// called on in place; a Key copied by value (as several package APIs
// return it) is a separate array that Scrub on the original does not
// reach.
type Key [KeySize]byte

// Scrub overwrites the key with zeros. Call it when a key slot is
// replaced or the owning session is destroyed.
func (k *Key) Scrub() {
	if k == nil {
		return
	}
	for i := range k {
		k[i] = 0
	}
}

// SessionID is the 6-byte responder-assigned session identifier.
type SessionID [SessionIDSize]byte

// Hash is a 32-byte Noise transcript hash.
type Hash [HandshakeHashSize]byte
