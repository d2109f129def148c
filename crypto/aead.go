package crypto

import (
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// NonceSize is the size of an XChaCha20-Poly1305 nonce in bytes.
const NonceSize = chacha20poly1305.NonceSizeX

// Nonce is a random value used once per encryption.
type Nonce [NonceSize]byte

// ErrAuthenticationFailed indicates an authentication tag mismatch, a
// truncated ciphertext, or any other condition under which decryption must
// fail closed. Plaintext is never returned alongside it.
var ErrAuthenticationFailed = errors.New("authentication failed")

// Maximum message size (1MB to prevent excessive memory usage)
const MaxMessageSize = 1024 * 1024

// GenerateNonce creates a cryptographically secure random AEAD nonce.
func GenerateNonce() (Nonce, error) {
	var nonce Nonce
	if _, err := rand.Read(nonce[:]); err != nil {
		return Nonce{}, fmt.Errorf("entropy source failure: %w", err)
	}
	return nonce, nil
}

// Encrypt encrypts a message with XChaCha20-Poly1305 authenticated
// encryption. The additional data is authenticated but not encrypted.
func Encrypt(key [32]byte, nonce Nonce, plaintext, additionalData []byte) ([]byte, error) {
	if len(plaintext) == 0 {
		return nil, errors.New("empty message")
	}
	if len(plaintext) > MaxMessageSize {
		return nil, errors.New("message too large")
	}

	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, fmt.Errorf("cipher initialization failed: %w", err)
	}

	return aead.Seal(nil, nonce[:], plaintext, additionalData), nil
}

// Decrypt decrypts a message with XChaCha20-Poly1305. Any tampering with the
// ciphertext, nonce, or additional data yields ErrAuthenticationFailed.
func Decrypt(key [32]byte, nonce Nonce, ciphertext, additionalData []byte) ([]byte, error) {
	if len(ciphertext) < chacha20poly1305.Overhead {
		return nil, ErrAuthenticationFailed
	}

	aead, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, fmt.Errorf("cipher initialization failed: %w", err)
	}

	plaintext, err := aead.Open(nil, nonce[:], ciphertext, additionalData)
	if err != nil {
		return nil, ErrAuthenticationFailed
	}

	return plaintext, nil
}
