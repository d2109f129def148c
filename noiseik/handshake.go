// Package noiseik implements the authenticated re-establishment handshake
// used on the fallback path. When a long-range session degrades, the peer's
// identity is already authenticated, so the short-range re-initiation runs a
// Noise IK handshake: the initiator knows the responder's static public key
// and the pattern provides mutual authentication and forward secrecy in one
// round trip.
package noiseik

import (
	"crypto/rand"
	"errors"
	"fmt"

	"github.com/flynn/noise"

	"github.com/beamlink/beamlink/crypto"
)

var (
	// ErrHandshakeNotComplete indicates the handshake is still in progress.
	ErrHandshakeNotComplete = errors.New("handshake not complete")
	// ErrHandshakeComplete indicates the handshake already finished.
	ErrHandshakeComplete = errors.New("handshake already complete")
)

// Role defines whether we initiate or respond.
type Role uint8

const (
	// Initiator starts the re-establishment and knows the peer's static key.
	Initiator Role = iota
	// Responder answers a re-establishment attempt.
	Responder
)

// Handshake runs the Noise IK pattern for session re-establishment.
type Handshake struct {
	role       Role
	state      *noise.HandshakeState
	sendCipher *noise.CipherState
	recvCipher *noise.CipherState
	complete   bool
}

// New creates a re-establishment handshake. staticPriv is our long-lived
// Curve25519 private key; peerPub is the authenticated peer static key,
// required for the initiator and ignored for the responder.
func New(staticPriv [32]byte, peerPub []byte, role Role) (*Handshake, error) {
	if role == Initiator && len(peerPub) != 32 {
		return nil, fmt.Errorf("initiator requires the peer static key (32 bytes), got %d", len(peerPub))
	}

	keyPair, err := crypto.FromSecretKey(staticPriv)
	if err != nil {
		return nil, fmt.Errorf("failed to derive static keypair: %w", err)
	}

	staticKey := noise.DHKey{
		Private: make([]byte, 32),
		Public:  make([]byte, 32),
	}
	copy(staticKey.Private, keyPair.Private[:])
	copy(staticKey.Public, keyPair.Public[:])
	crypto.WipeKeyPair(keyPair)

	config := noise.Config{
		CipherSuite:   noise.NewCipherSuite(noise.DH25519, noise.CipherChaChaPoly, noise.HashSHA256),
		Random:        rand.Reader,
		Pattern:       noise.HandshakeIK,
		Initiator:     role == Initiator,
		StaticKeypair: staticKey,
	}
	if role == Initiator {
		config.PeerStatic = make([]byte, 32)
		copy(config.PeerStatic, peerPub)
	}

	hs := &Handshake{role: role}
	hs.state, err = noise.NewHandshakeState(config)
	if err != nil {
		return nil, fmt.Errorf("failed to create handshake state: %w", err)
	}

	return hs, nil
}

// WriteMessage produces the next handshake message. For the initiator it
// creates the opening message; for the responder it consumes the received
// message and creates the reply. Returns the bytes to send and whether the
// handshake is now complete on this side.
func (hs *Handshake) WriteMessage(payload, received []byte) ([]byte, bool, error) {
	if hs.complete {
		return nil, false, ErrHandshakeComplete
	}

	if hs.role == Initiator {
		message, send, recv, err := hs.state.WriteMessage(nil, payload)
		if err != nil {
			return nil, false, fmt.Errorf("initiator write failed: %w", err)
		}
		// Cipher states exist now but the initiator completes only
		// after reading the responder's reply.
		hs.sendCipher = send
		hs.recvCipher = recv
		return message, false, nil
	}

	if received == nil {
		return nil, false, errors.New("responder requires the received message")
	}
	if _, _, _, err := hs.state.ReadMessage(nil, received); err != nil {
		return nil, false, fmt.Errorf("responder read failed: %w", err)
	}

	message, send, recv, err := hs.state.WriteMessage(nil, payload)
	if err != nil {
		return nil, false, fmt.Errorf("responder write failed: %w", err)
	}
	hs.sendCipher = send
	hs.recvCipher = recv
	hs.complete = true

	return message, true, nil
}

// ReadMessage consumes the responder's reply on the initiating side and
// completes the handshake.
func (hs *Handshake) ReadMessage(message []byte) ([]byte, bool, error) {
	if hs.complete {
		return nil, false, ErrHandshakeComplete
	}
	if hs.role != Initiator {
		return nil, false, errors.New("only the initiator reads reply messages")
	}

	payload, recv, send, err := hs.state.ReadMessage(nil, message)
	if err != nil {
		return nil, false, fmt.Errorf("initiator read reply failed: %w", err)
	}
	hs.recvCipher = recv
	hs.sendCipher = send
	hs.complete = true

	return payload, true, nil
}

// IsComplete reports whether cipher states are available.
func (hs *Handshake) IsComplete() bool { return hs.complete }

// CipherStates returns the send and receive cipher states after a completed
// handshake.
func (hs *Handshake) CipherStates() (*noise.CipherState, *noise.CipherState, error) {
	if !hs.complete {
		return nil, nil, ErrHandshakeNotComplete
	}
	if hs.sendCipher == nil || hs.recvCipher == nil {
		return nil, nil, errors.New("cipher states not available")
	}
	return hs.sendCipher, hs.recvCipher, nil
}

// RemoteStaticKey returns the peer's static public key after completion.
// The fallback manager compares it against the snapshotted peer identity.
func (hs *Handshake) RemoteStaticKey() ([]byte, error) {
	if !hs.complete {
		return nil, ErrHandshakeNotComplete
	}

	remote := hs.state.PeerStatic()
	if len(remote) == 0 {
		return nil, errors.New("remote static key not available")
	}

	key := make([]byte, len(remote))
	copy(key, remote)
	return key, nil
}
