package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
)

// HandshakeNonceSize is the wire size of a handshake nonce in bytes.
const HandshakeNonceSize = 32

// HandshakeNonce is a fixed-length random value generated once per handshake
// attempt and bound into every signature produced during that attempt.
type HandshakeNonce [HandshakeNonceSize]byte

// GenerateHandshakeNonce creates a fresh handshake nonce from the system
// entropy source.
func GenerateHandshakeNonce() (HandshakeNonce, error) {
	var nonce HandshakeNonce
	if _, err := rand.Read(nonce[:]); err != nil {
		return HandshakeNonce{}, fmt.Errorf("entropy source failure: %w", err)
	}
	return nonce, nil
}

// Equal compares two handshake nonces in constant time.
func (n HandshakeNonce) Equal(other HandshakeNonce) bool {
	return subtle.ConstantTimeCompare(n[:], other[:]) == 1
}
