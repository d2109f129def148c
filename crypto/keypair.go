// Package crypto implements the cryptographic primitives for beamlink sessions.
//
// This package handles ephemeral key generation, ECDH key agreement, session
// key derivation, authenticated encryption, and signatures using Curve25519,
// Ed25519, HKDF-SHA256, and XChaCha20-Poly1305 through Go's x/crypto packages.
// It holds no protocol state; every function is safe for concurrent use.
//
// Example:
//
//	keys, err := crypto.GenerateKeyPair()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Println("Public key:", hex.EncodeToString(keys.Public[:]))
package crypto

import (
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/curve25519"
)

// KeyPair represents an ephemeral Curve25519 key pair used for one handshake
// attempt. The private half must be wiped with WipeKeyPair once the session
// keys have been derived.
type KeyPair struct {
	Public  [32]byte
	Private [32]byte
}

// GenerateKeyPair creates a new random Curve25519 key pair.
//
// Failure here means the entropy source is broken and is fatal to the caller;
// it is never retried internally.
func GenerateKeyPair() (*KeyPair, error) {
	var private [32]byte
	if _, err := rand.Read(private[:]); err != nil {
		return nil, fmt.Errorf("entropy source failure: %w", err)
	}

	public, err := curve25519.X25519(private[:], curve25519.Basepoint)
	if err != nil {
		ZeroBytes(private[:])
		return nil, fmt.Errorf("failed to derive public key: %w", err)
	}

	keyPair := &KeyPair{Private: private}
	copy(keyPair.Public[:], public)
	ZeroBytes(private[:])

	return keyPair, nil
}

// FromSecretKey creates a key pair from an existing private key.
func FromSecretKey(secretKey [32]byte) (*KeyPair, error) {
	if isZeroKey(secretKey) {
		return nil, errors.New("invalid secret key: all zeros")
	}

	public, err := curve25519.X25519(secretKey[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("failed to derive public key: %w", err)
	}

	keyPair := &KeyPair{Private: secretKey}
	copy(keyPair.Public[:], public)

	return keyPair, nil
}

// isZeroKey checks if a key consists of all zeros.
func isZeroKey(key [32]byte) bool {
	var acc byte
	for _, b := range key {
		acc |= b
	}
	return acc == 0
}
