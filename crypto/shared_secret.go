package crypto

import (
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/curve25519"
)

// ErrInvalidPeerKey indicates the peer public key is not a usable curve
// point. The key is rejected outright, never coerced onto the curve.
var ErrInvalidPeerKey = errors.New("invalid peer public key")

// DeriveSharedSecret computes a shared secret between two parties using
// Elliptic Curve Diffie-Hellman (ECDH) on Curve25519.
//
// Peer keys that produce an all-zero shared secret (low-order points) are
// rejected with ErrInvalidPeerKey.
func DeriveSharedSecret(peerPublicKey, privateKey [32]byte) ([32]byte, error) {
	logrus.WithFields(logrus.Fields{
		"function":        "DeriveSharedSecret",
		"peer_key_prefix": fmt.Sprintf("%x", peerPublicKey[:8]),
	}).Debug("Computing shared secret using ECDH")

	// Work on copies so the caller's key material is never modified.
	var publicKeyCopy [32]byte
	var privateKeyCopy [32]byte
	copy(publicKeyCopy[:], peerPublicKey[:])
	copy(privateKeyCopy[:], privateKey[:])

	sharedSecret, err := curve25519.X25519(privateKeyCopy[:], publicKeyCopy[:])
	if err != nil {
		ZeroBytes(privateKeyCopy[:])
		logrus.WithFields(logrus.Fields{
			"function": "DeriveSharedSecret",
		}).Warn("X25519 computation rejected peer key")
		return [32]byte{}, fmt.Errorf("%w: %v", ErrInvalidPeerKey, err)
	}

	// X25519 with any of the known low-order points yields all zeros.
	var acc byte
	for _, b := range sharedSecret {
		acc |= b
	}
	if acc == 0 {
		ZeroBytes(privateKeyCopy[:])
		ZeroBytes(sharedSecret)
		return [32]byte{}, fmt.Errorf("%w: low-order point", ErrInvalidPeerKey)
	}

	var result [32]byte
	copy(result[:], sharedSecret)

	// Wipe the key copy and the intermediate secret before returning.
	ZeroBytes(privateKeyCopy[:])
	ZeroBytes(sharedSecret)

	return result, nil
}
