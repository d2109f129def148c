package protocol

import (
	"sync"
	"time"

	"github.com/beamlink/beamlink/channel"
	"github.com/beamlink/beamlink/crypto"
	"github.com/beamlink/beamlink/params"
)

// Session is the unit of a secured relationship between two endpoints. It is
// owned exclusively by the engine; exactly one logical task drives its
// transitions at a time, serialized on the session mutex. Concurrent
// attempts block and the loser observes the already-applied result.
type Session struct {
	mu sync.Mutex

	id    string
	mode  Mode
	state State

	// True on the side that produced the offer. Selects which directional
	// traffic key the endpoint sends under.
	initiator bool

	// Ephemeral handshake material, wiped on establishment or error.
	dhKeys   *crypto.KeyPair
	signKeys *crypto.SigningKeyPair
	nonce    crypto.HandshakeNonce

	// Peer identity, fixed once the handshake payload verifies.
	peerDHPublic  [32]byte
	peerVerifyKey [32]byte
	peerKnown     bool

	// Derived session key material.
	keys         *crypto.ChannelKeys
	lastRotation time.Time

	// Message sequence counters. Outbound increments by exactly one per
	// successfully encrypted message; inbound tracks the last accepted
	// number for replay rejection.
	sendSeq uint32
	recvSeq uint32

	// Parameter set snapshotted at initiation. A mid-handshake tier
	// change does not alter an in-flight attempt.
	set params.ParameterSet

	// Long-range sessions own one pending observation slot.
	pending *channel.Pending

	createdAt    time.Time
	lastActivity time.Time

	// Closed exactly once when the channel establishes.
	established chan struct{}
}

// ID returns the opaque session identifier.
func (s *Session) ID() string { return s.id }

// Mode returns the protocol mode the session was initiated with.
func (s *Session) Mode() Mode { return s.mode }

// State returns the session's current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ParameterSet returns the security parameters snapshotted at initiation.
func (s *Session) ParameterSet() params.ParameterSet { return s.set }

// PeerVerifyKey returns the authenticated peer signing key, valid once the
// handshake completed.
func (s *Session) PeerVerifyKey() ([32]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.peerVerifyKey, s.peerKnown
}

// touch records activity for inactivity accounting. Caller holds s.mu.
func (s *Session) touch(now time.Time) {
	s.lastActivity = now
}

// wipeLocked erases all key material. Caller holds s.mu. Safe to call more
// than once; wiped fields are simply zeroed again.
func (s *Session) wipeLocked() {
	if s.dhKeys != nil {
		_ = crypto.WipeKeyPair(s.dhKeys)
		s.dhKeys = nil
	}
	if s.signKeys != nil {
		s.signKeys.Wipe()
		s.signKeys = nil
	}
	if s.keys != nil {
		s.keys.Wipe()
		s.keys = nil
	}
	crypto.ZeroBytes(s.nonce[:])
	if s.pending != nil {
		s.pending.Clear()
	}
}

// failLocked transitions the session to StateError and wipes keys. Caller
// holds s.mu. A session already terminal in error stays there.
func (s *Session) failLocked() {
	s.state = StateError
	s.wipeLocked()
}

// markEstablishedLocked flips the state and releases waiters. Caller holds
// s.mu.
func (s *Session) markEstablishedLocked(state State) {
	s.state = state
	select {
	case <-s.established:
		// already closed
	default:
		close(s.established)
	}
}

// Snapshot is the preserved cryptographic state of a session, taken by the
// fallback manager before a mode transition.
type Snapshot struct {
	SessionID     string
	Mode          Mode
	State         State
	PeerDHPublic  [32]byte
	PeerVerifyKey [32]byte
	PeerKnown     bool
	TakenAt       time.Time
}

// Snapshot captures the session's identity and peer-authentication state.
// Session keys themselves are not exported; the fallback path performs a
// fresh authenticated handshake against the preserved peer identity.
func (s *Session) Snapshot(now time.Time) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		SessionID:     s.id,
		Mode:          s.mode,
		State:         s.state,
		PeerDHPublic:  s.peerDHPublic,
		PeerVerifyKey: s.peerVerifyKey,
		PeerKnown:     s.peerKnown,
		TakenAt:       now,
	}
}
