package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"errors"
	"fmt"
)

// SignatureSize is the size of an Ed25519 signature in bytes.
const SignatureSize = ed25519.SignatureSize

// Signature represents an Ed25519 signature.
type Signature [SignatureSize]byte

// SigningKeyPair holds an Ed25519 signing seed and its verify key.
type SigningKeyPair struct {
	Public [32]byte
	Seed   [32]byte
}

// GenerateSigningKeyPair creates a new random Ed25519 signing key pair.
// Like GenerateKeyPair, an error here indicates entropy-source failure and
// is fatal to the caller.
func GenerateSigningKeyPair() (*SigningKeyPair, error) {
	var seed [32]byte
	if _, err := rand.Read(seed[:]); err != nil {
		return nil, fmt.Errorf("entropy source failure: %w", err)
	}

	private := ed25519.NewKeyFromSeed(seed[:])

	kp := &SigningKeyPair{Seed: seed}
	copy(kp.Public[:], private[32:])
	ZeroBytes(seed[:])
	ZeroBytes(private)

	return kp, nil
}

// Wipe erases the signing seed.
func (kp *SigningKeyPair) Wipe() {
	if kp == nil {
		return
	}
	ZeroBytes(kp.Seed[:])
}

// Sign creates an Ed25519 signature for a message using the signing seed.
func Sign(message []byte, seed [32]byte) (Signature, error) {
	if len(message) == 0 {
		return Signature{}, errors.New("empty message")
	}

	private := ed25519.NewKeyFromSeed(seed[:])
	signatureBytes := ed25519.Sign(private, message)
	ZeroBytes(private)

	var signature Signature
	copy(signature[:], signatureBytes)

	return signature, nil
}

// Verify checks if a signature is valid for a message and public key.
// Acceptance and rejection take the same code path inside crypto/ed25519,
// so the decision is constant-time with respect to the signature bytes.
func Verify(message []byte, signature Signature, publicKey [32]byte) (bool, error) {
	if len(message) == 0 {
		return false, errors.New("empty message")
	}

	return ed25519.Verify(publicKey[:], message, signature[:]), nil
}
