package crypto

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// SessionKeySize is the size in bytes of every derived subkey.
const SessionKeySize = 32

// Context labels for subkey derivation. Distinct labels guarantee the
// derived subkeys are cryptographically independent. Traffic keys are
// labeled by direction, not by endpoint, so both peers derive the same two
// keys and disagree only on which one they send under.
const (
	ContextInitiatorTraffic = "beamlink-traffic-i2r-v1"
	ContextResponderTraffic = "beamlink-traffic-r2i-v1"
	ContextAuthentication   = "beamlink-authentication-v1"
	ContextRotation         = "beamlink-rotation-v1"
)

// DeriveSessionKey derives a single 32-byte subkey from a shared secret using
// HKDF-SHA256. The derivation is deterministic on identical inputs; different
// context labels yield independent subkeys.
func DeriveSessionKey(sharedSecret [32]byte, salt []byte, context string) ([32]byte, error) {
	var key [32]byte

	hk := hkdf.New(sha256.New, sharedSecret[:], salt, []byte(context))
	if _, err := io.ReadFull(hk, key[:]); err != nil {
		return [32]byte{}, fmt.Errorf("session key derivation failed: %w", err)
	}

	return key, nil
}

// ChannelKeys holds one endpoint's subkeys for an established channel. Send
// on one endpoint equals Receive on its peer, never the reverse, so an
// endpoint cannot be fed its own outbound frames.
type ChannelKeys struct {
	Send           [32]byte
	Receive        [32]byte
	Authentication [32]byte
}

// DeriveChannelKeys expands a shared secret into the two directional traffic
// keys plus the authentication key. Both peers derive bit-identical key
// material; the initiator flag selects which traffic key this endpoint
// sends under.
func DeriveChannelKeys(sharedSecret [32]byte, salt []byte, initiator bool) (*ChannelKeys, error) {
	i2r, err := DeriveSessionKey(sharedSecret, salt, ContextInitiatorTraffic)
	if err != nil {
		return nil, err
	}
	r2i, err := DeriveSessionKey(sharedSecret, salt, ContextResponderTraffic)
	if err != nil {
		ZeroBytes(i2r[:])
		return nil, err
	}
	authKey, err := DeriveSessionKey(sharedSecret, salt, ContextAuthentication)
	if err != nil {
		ZeroBytes(i2r[:])
		ZeroBytes(r2i[:])
		return nil, err
	}

	ck := &ChannelKeys{Authentication: authKey}
	if initiator {
		ck.Send, ck.Receive = i2r, r2i
	} else {
		ck.Send, ck.Receive = r2i, i2r
	}
	return ck, nil
}

// NextGeneration derives the successor key generation. Each subkey is
// derived from its current value under a fixed rotation label, so two peers
// rotating at the same point stay paired: one side's next Send is still the
// other's next Receive.
func (ck *ChannelKeys) NextGeneration(salt []byte) (*ChannelKeys, error) {
	send, err := DeriveSessionKey(ck.Send, salt, ContextRotation)
	if err != nil {
		return nil, err
	}
	recv, err := DeriveSessionKey(ck.Receive, salt, ContextRotation)
	if err != nil {
		ZeroBytes(send[:])
		return nil, err
	}
	auth, err := DeriveSessionKey(ck.Authentication, salt, ContextRotation)
	if err != nil {
		ZeroBytes(send[:])
		ZeroBytes(recv[:])
		return nil, err
	}
	return &ChannelKeys{Send: send, Receive: recv, Authentication: auth}, nil
}

// Wipe erases the key material held by the ChannelKeys.
func (ck *ChannelKeys) Wipe() {
	if ck == nil {
		return
	}
	ZeroBytes(ck.Send[:])
	ZeroBytes(ck.Receive[:])
	ZeroBytes(ck.Authentication[:])
}
