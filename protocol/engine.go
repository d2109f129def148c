package protocol

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/beamlink/beamlink/channel"
	"github.com/beamlink/beamlink/crypto"
	"github.com/beamlink/beamlink/params"
)

// Options configures a protocol engine.
type Options struct {
	// InactivityTimeout is the duration after which a non-terminal
	// session is force-transitioned to StateError and its keys wiped.
	InactivityTimeout time.Duration
	// ForwardWindow is the tolerated gap of skipped inbound sequence
	// numbers before a message is rejected as out of window.
	ForwardWindow uint32
	// TimeProvider supplies the clock; nil selects the wall clock.
	TimeProvider crypto.TimeProvider
}

// NewDefaultOptions returns the default engine configuration.
func NewDefaultOptions() *Options {
	return &Options{
		InactivityTimeout: 2 * time.Minute,
		ForwardWindow:     32,
	}
}

// Engine is the handshake and session state machine. It owns the session
// arena and is the single entry point for the transport collaborators.
type Engine struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	tierMu sync.RWMutex
	tier   params.Tier

	nonces    *crypto.NonceLedger
	validator *channel.Validator

	callbackMu sync.RWMutex
	callback   EventCallback

	opts         *Options
	timeProvider crypto.TimeProvider
	logger       *logrus.Logger
}

// NewEngine creates a protocol engine. Pass nil options for defaults.
func NewEngine(opts *Options) *Engine {
	if opts == nil {
		opts = NewDefaultOptions()
	}
	tp := opts.TimeProvider
	if tp == nil {
		tp = crypto.DefaultTimeProvider{}
	}

	return &Engine{
		sessions:     make(map[string]*Session),
		tier:         params.TierStandard,
		nonces:       crypto.NewNonceLedgerWithTimeProvider(tp),
		validator:    channel.NewValidator(),
		opts:         opts,
		timeProvider: tp,
		logger:       logrus.StandardLogger(),
	}
}

// SetRiskTier updates the current risk tier. Sessions initiated afterwards
// resolve their parameter set from it; in-flight handshakes keep the set
// snapshotted at initiation.
func (e *Engine) SetRiskTier(tier params.Tier) {
	e.tierMu.Lock()
	e.tier = tier
	e.tierMu.Unlock()

	e.logger.WithFields(logrus.Fields{
		"function": "SetRiskTier",
		"tier":     tier,
	}).Info("Risk tier updated")
}

// RiskTier returns the current risk tier.
func (e *Engine) RiskTier() params.Tier {
	e.tierMu.RLock()
	defer e.tierMu.RUnlock()
	return e.tier
}

// OnEvent registers the callback receiving lifecycle events.
func (e *Engine) OnEvent(cb EventCallback) {
	e.callbackMu.Lock()
	e.callback = cb
	e.callbackMu.Unlock()
}

// Validator exposes the engine's coupled-channel validator, shared with the
// transport collaborator for direct pair decisions.
func (e *Engine) Validator() *channel.Validator { return e.validator }

func (e *Engine) emit(t EventType, sessionID, outcome string) {
	e.callbackMu.RLock()
	cb := e.callback
	e.callbackMu.RUnlock()
	if cb != nil {
		cb(Event{
			Type:      t,
			SessionID: sessionID,
			Timestamp: e.timeProvider.Now(),
			Outcome:   outcome,
		})
	}
}

// lookup fetches a live session.
func (e *Engine) lookup(sessionID string) (*Session, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
	}
	return s, nil
}

// newSession allocates handshake material for a fresh attempt.
func (e *Engine) newSession(mode Mode, sessionID string) (*Session, error) {
	nonce, err := crypto.GenerateHandshakeNonce()
	if err != nil {
		return nil, err
	}
	dhKeys, err := crypto.GenerateKeyPair()
	if err != nil {
		return nil, err
	}
	signKeys, err := crypto.GenerateSigningKeyPair()
	if err != nil {
		crypto.WipeKeyPair(dhKeys)
		return nil, err
	}

	now := e.timeProvider.Now()
	s := &Session{
		id:           sessionID,
		mode:         mode,
		state:        StateIdle,
		dhKeys:       dhKeys,
		signKeys:     signKeys,
		nonce:        nonce,
		set:          params.Resolve(e.RiskTier()),
		createdAt:    now,
		lastActivity: now,
		lastRotation: now,
		established:  make(chan struct{}),
	}
	if mode == ModeLongRange {
		s.pending = channel.NewPending(sessionID)
	}
	return s, nil
}

// InitiateHandshake starts a handshake attempt and returns the new session
// identifier together with the signed offer payload to transmit.
//
// Short-range sessions move to StateAwaitingPeerPublicKey. Long-range
// sessions remain StateIdle until the channel validator reports a matched,
// in-window, cross-verified observation pair via SubmitObservation.
func (e *Engine) InitiateHandshake(mode Mode) (string, []byte, error) {
	sessionID := uuid.NewString()

	s, err := e.newSession(mode, sessionID)
	if err != nil {
		return "", nil, fmt.Errorf("handshake initiation: %w", err)
	}
	s.initiator = true

	offer := &HandshakePayload{
		Kind:      kindOffer,
		SessionID: sessionID,
		Nonce:     s.nonce,
		Timestamp: e.timeProvider.Now().Unix(),
		DHPublic:  s.dhKeys.Public,
		VerifyKey: s.signKeys.Public,
	}
	if err := offer.SignWith(s.signKeys.Seed); err != nil {
		s.mu.Lock()
		s.wipeLocked()
		s.mu.Unlock()
		return "", nil, err
	}
	wire, err := offer.Marshal()
	if err != nil {
		return "", nil, err
	}

	if mode == ModeShortRange {
		s.state = StateAwaitingPeerPublicKey
	}

	e.mu.Lock()
	e.sessions[sessionID] = s
	e.mu.Unlock()

	e.logger.WithFields(logrus.Fields{
		"function":   "InitiateHandshake",
		"session_id": sessionID,
		"mode":       mode.String(),
	}).Info("Handshake initiated")
	e.emit(EventHandshakeInitiated, sessionID, mode.String())

	return sessionID, wire, nil
}

// AcceptHandshake processes a peer's offer on the responding side. It
// creates a responder session under the offer's session identifier, derives
// the session keys, and returns the signed response payload echoing the
// offer nonce.
func (e *Engine) AcceptHandshake(offerWire []byte) (string, []byte, error) {
	offer, err := ParseHandshakePayload(offerWire)
	if err != nil {
		return "", nil, err
	}
	if offer.Kind != kindOffer {
		return "", nil, fmt.Errorf("%w: expected offer", ErrMalformedPayload)
	}

	// A nonce accepted once must never be accepted again.
	if !e.nonces.CheckAndStore(offer.Nonce, offer.Timestamp) {
		return "", nil, ErrNonceReplayed
	}

	valid, err := offer.VerifySignature()
	if err != nil {
		return "", nil, err
	}
	if !valid {
		return "", nil, ErrSignatureInvalid
	}

	s, err := e.newSession(ModeShortRange, offer.SessionID)
	if err != nil {
		return "", nil, fmt.Errorf("handshake accept: %w", err)
	}
	// The responder adopts the initiator's nonce; its locally generated
	// one is discarded.
	crypto.ZeroBytes(s.nonce[:])
	s.nonce = offer.Nonce

	if err := e.deriveLocked(s, offer.DHPublic, offer.VerifyKey); err != nil {
		s.mu.Lock()
		s.wipeLocked()
		s.mu.Unlock()
		return "", nil, err
	}

	response := &HandshakePayload{
		Kind:      kindResponse,
		SessionID: s.id,
		Nonce:     offer.Nonce,
		Timestamp: e.timeProvider.Now().Unix(),
		DHPublic:  s.dhKeys.Public,
		VerifyKey: s.signKeys.Public,
	}
	if err := response.SignWith(s.signKeys.Seed); err != nil {
		s.mu.Lock()
		s.wipeLocked()
		s.mu.Unlock()
		return "", nil, err
	}
	wire, err := response.Marshal()
	if err != nil {
		return "", nil, err
	}

	s.state = StateKeysExchanged

	e.mu.Lock()
	e.sessions[s.id] = s
	e.mu.Unlock()

	e.logger.WithFields(logrus.Fields{
		"function":   "AcceptHandshake",
		"session_id": s.id,
	}).Info("Handshake offer accepted")
	e.emit(EventHandshakeInitiated, s.id, "responder")

	return s.id, wire, nil
}

// deriveLocked computes the shared secret and session keys against the
// peer's public keys, wiping the ephemeral private key afterwards. The
// session is not yet in the arena or the caller holds its mutex.
func (e *Engine) deriveLocked(s *Session, peerDH, peerVerify [32]byte) error {
	shared, err := crypto.DeriveSharedSecret(peerDH, s.dhKeys.Private)
	if err != nil {
		return err
	}

	keys, err := crypto.DeriveChannelKeys(shared, s.nonce[:], s.initiator)
	crypto.ZeroBytes(shared[:])
	if err != nil {
		return err
	}

	s.keys = keys
	s.peerDHPublic = peerDH
	s.peerVerifyKey = peerVerify
	s.peerKnown = true

	// The ephemeral private key has served its purpose.
	_ = crypto.WipeKeyPair(s.dhKeys)

	return nil
}

// SubmitPeerPayload processes the peer's response on the initiating side:
// verifies the signature over the echoed nonce, derives the shared secret
// and session keys, and moves the session to StateKeysExchanged.
//
// A malformed payload is rejected with the session unchanged. A nonce
// mismatch or signature failure transitions the session to StateError.
func (e *Engine) SubmitPeerPayload(sessionID string, payload []byte) error {
	s, err := e.lookup(sessionID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateAwaitingPeerPublicKey {
		return fmt.Errorf("%w: submit_peer_payload in %s", ErrInvalidStateTransition, s.state)
	}

	response, err := ParseHandshakePayload(payload)
	if err != nil {
		// Malformed input rejects without mutating the session.
		return err
	}
	if response.Kind != kindResponse || response.SessionID != sessionID {
		return fmt.Errorf("%w: response does not address this session", ErrMalformedPayload)
	}

	if !response.Nonce.Equal(s.nonce) {
		s.failLocked()
		e.logger.WithFields(logrus.Fields{
			"function":   "SubmitPeerPayload",
			"session_id": sessionID,
		}).Warn("Peer echoed a foreign nonce")
		return ErrNonceMismatch
	}

	valid, err := response.VerifySignature()
	if err != nil || !valid {
		s.failLocked()
		e.logger.WithFields(logrus.Fields{
			"function":   "SubmitPeerPayload",
			"session_id": sessionID,
		}).Warn("Peer signature over echoed nonce invalid")
		return ErrSignatureInvalid
	}

	if err := e.deriveLocked(s, response.DHPublic, response.VerifyKey); err != nil {
		s.failLocked()
		return err
	}

	s.state = StateKeysExchanged
	s.touch(e.timeProvider.Now())

	return nil
}

// BuildAck produces the key-confirmation frame for a session in
// StateKeysExchanged. Receiving and verifying it on the other side completes
// the handshake.
func (e *Engine) BuildAck(sessionID string) ([]byte, error) {
	s, err := e.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// An established responder may still confirm back to the initiator.
	if s.state != StateKeysExchanged && !s.state.Established() {
		return nil, fmt.Errorf("%w: build_ack in %s", ErrInvalidStateTransition, s.state)
	}

	nonce, err := crypto.GenerateNonce()
	if err != nil {
		return nil, err
	}

	frame := &MessageFrame{Kind: kindAck, SessionID: sessionID, Sequence: 0, Nonce: nonce}
	ciphertext, err := crypto.Encrypt(s.keys.Send, nonce, []byte("channel-confirm"), frame.header())
	if err != nil {
		return nil, err
	}
	frame.Ciphertext = ciphertext

	return frame.Marshal()
}

// SubmitAck verifies a received key-confirmation frame and completes the
// handshake: StateKeysExchanged moves to StateSecureChannelEstablished.
// A frame that fails authentication transitions the session to StateError.
func (e *Engine) SubmitAck(sessionID string, ack []byte) error {
	s, err := e.lookup(sessionID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateKeysExchanged {
		return fmt.Errorf("%w: ack_received in %s", ErrInvalidStateTransition, s.state)
	}

	frame, err := ParseMessageFrame(ack)
	if err != nil {
		return err
	}
	if frame.Kind != kindAck || frame.SessionID != sessionID {
		return fmt.Errorf("%w: not an ack for this session", ErrMalformedPayload)
	}

	// Confirmation must arrive under the peer's send key, proving the peer
	// holds the paired directional key, not an echo of our own.
	plaintext, err := crypto.Decrypt(s.keys.Receive, frame.Nonce, frame.Ciphertext, frame.header())
	if err != nil {
		s.failLocked()
		return fmt.Errorf("ack verification: %w", err)
	}
	crypto.ZeroBytes(plaintext)

	s.markEstablishedLocked(StateSecureChannelEstablished)
	s.touch(e.timeProvider.Now())

	e.logger.WithFields(logrus.Fields{
		"function":   "SubmitAck",
		"session_id": sessionID,
	}).Info("Secure channel established")
	e.emit(EventHandshakeCompleted, sessionID, StateSecureChannelEstablished.String())

	return nil
}

// SubmitObservation feeds one coupled-channel observation into a long-range
// handshake. When the cross-channel pair completes, the validator decides;
// a Coupled result carries the session from StateIdle directly to
// StateLongRangeSecureChannel, any rejection keeps it StateIdle and returns
// ErrCouplingFailed.
func (e *Engine) SubmitObservation(sessionID string, obs *channel.Observation) error {
	s, err := e.lookup(sessionID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mode != ModeLongRange || s.state != StateIdle {
		return fmt.Errorf("%w: submit_observation in %s/%s", ErrInvalidStateTransition, s.mode, s.state)
	}

	complete, err := s.pending.Put(obs)
	if err != nil {
		return err
	}
	s.touch(e.timeProvider.Now())
	if !complete {
		return nil
	}

	a, b := s.pending.Take()
	result, err := e.validator.ValidatePair(a, b, s.set)
	if err != nil {
		return err
	}
	if result != channel.Coupled {
		e.logger.WithFields(logrus.Fields{
			"function":   "SubmitObservation",
			"session_id": sessionID,
			"result":     result.String(),
		}).Warn("Coupling rejected")
		e.emit(EventCouplingRejected, sessionID, result.String())
		return fmt.Errorf("%w: %s", ErrCouplingFailed, result)
	}

	// One of the coupled payloads carries the peer's handshake response.
	response := findHandshakeResponse(a, b)
	if response == nil {
		e.emit(EventCouplingRejected, sessionID, "no-handshake-payload")
		return fmt.Errorf("%w: coupled pair carried no handshake payload", ErrCouplingFailed)
	}

	if !response.Nonce.Equal(s.nonce) {
		s.failLocked()
		return ErrNonceMismatch
	}
	valid, err := response.VerifySignature()
	if err != nil || !valid {
		s.failLocked()
		return ErrSignatureInvalid
	}
	if err := e.deriveLocked(s, response.DHPublic, response.VerifyKey); err != nil {
		s.failLocked()
		return err
	}

	s.markEstablishedLocked(StateLongRangeSecureChannel)
	s.touch(e.timeProvider.Now())

	e.logger.WithFields(logrus.Fields{
		"function":   "SubmitObservation",
		"session_id": sessionID,
	}).Info("Long-range secure channel established")
	e.emit(EventHandshakeCompleted, sessionID, StateLongRangeSecureChannel.String())

	return nil
}

// findHandshakeResponse extracts the handshake response payload carried by
// one of the coupled observations.
func findHandshakeResponse(observations ...*channel.Observation) *HandshakePayload {
	for _, obs := range observations {
		if obs == nil {
			continue
		}
		p, err := ParseHandshakePayload(obs.Payload)
		if err == nil && p.Kind == kindResponse {
			return p
		}
	}
	return nil
}

// GetState returns the session's current state.
func (e *Engine) GetState(sessionID string) (State, error) {
	s, err := e.lookup(sessionID)
	if err != nil {
		return StateError, err
	}
	return s.State(), nil
}

// EncryptOutbound encrypts a message on an established channel. The sequence
// number increments by exactly one per successful call, starting at 1, and
// is bound into the authenticated frame header.
func (e *Engine) EncryptOutbound(sessionID string, plaintext []byte) ([]byte, error) {
	s, err := e.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.state.Established() {
		return nil, fmt.Errorf("%w: state %s", ErrNotEstablished, s.state)
	}

	nonce, err := crypto.GenerateNonce()
	if err != nil {
		return nil, err
	}

	frame := &MessageFrame{
		Kind:      kindData,
		SessionID: sessionID,
		Sequence:  s.sendSeq + 1,
		Nonce:     nonce,
	}
	ciphertext, err := crypto.Encrypt(s.keys.Send, nonce, plaintext, frame.header())
	if err != nil {
		return nil, err
	}
	frame.Ciphertext = ciphertext

	wire, err := frame.Marshal()
	if err != nil {
		return nil, err
	}

	// Counter advances only after the message is fully produced.
	s.sendSeq++
	s.touch(e.timeProvider.Now())

	return wire, nil
}

// DecryptInbound authenticates and decrypts a received message. Messages at
// or below the last accepted sequence number, or beyond the forward
// tolerance window, are rejected as replays without decryption.
func (e *Engine) DecryptInbound(sessionID string, wire []byte) ([]byte, error) {
	s, err := e.lookup(sessionID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.state.Established() {
		return nil, fmt.Errorf("%w: state %s", ErrNotEstablished, s.state)
	}

	frame, err := ParseMessageFrame(wire)
	if err != nil {
		return nil, err
	}
	if frame.Kind != kindData || frame.SessionID != sessionID {
		return nil, fmt.Errorf("%w: not a data frame for this session", ErrMalformedPayload)
	}

	if frame.Sequence <= s.recvSeq {
		return nil, fmt.Errorf("%w: sequence %d at or below %d", ErrReplayDetected, frame.Sequence, s.recvSeq)
	}
	if frame.Sequence > s.recvSeq+e.opts.ForwardWindow {
		return nil, fmt.Errorf("%w: sequence %d beyond window", ErrSequenceOutOfWindow, frame.Sequence)
	}

	// The receive key belongs to the opposite direction, so a frame this
	// endpoint sealed itself never authenticates here.
	plaintext, err := crypto.Decrypt(s.keys.Receive, frame.Nonce, frame.Ciphertext, frame.header())
	if err != nil {
		return nil, err
	}

	s.recvSeq = frame.Sequence
	s.touch(e.timeProvider.Now())

	return plaintext, nil
}

// RotateKeys derives a fresh key generation for an established session from
// the current keys. Both peers must rotate at the same point in the message
// stream; the rotation interval of the session's parameter set says when.
func (e *Engine) RotateKeys(sessionID string) error {
	s, err := e.lookup(sessionID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.state.Established() {
		return fmt.Errorf("%w: state %s", ErrNotEstablished, s.state)
	}

	next, err := s.keys.NextGeneration(s.nonce[:])
	if err != nil {
		return err
	}
	s.keys.Wipe()
	s.keys = next
	s.lastRotation = e.timeProvider.Now()

	e.logger.WithFields(logrus.Fields{
		"function":   "RotateKeys",
		"session_id": sessionID,
	}).Info("Session keys rotated")

	return nil
}

// RotationDue reports whether the session's keys have outlived the rotation
// interval of its parameter set.
func (e *Engine) RotationDue(sessionID string) (bool, error) {
	s, err := e.lookup(sessionID)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return params.RotationDue(s.set, s.lastRotation, e.timeProvider.Now()), nil
}

// TeardownSession destroys a session, wiping its key material. It is
// idempotent: tearing down an unknown or already destroyed session is a
// no-op.
func (e *Engine) TeardownSession(sessionID string) error {
	e.mu.Lock()
	s, ok := e.sessions[sessionID]
	if ok {
		delete(e.sessions, sessionID)
	}
	e.mu.Unlock()

	if !ok {
		return nil
	}

	s.mu.Lock()
	e.nonces.Release(s.nonce)
	s.wipeLocked()
	s.state = StateError
	s.mu.Unlock()

	e.logger.WithFields(logrus.Fields{
		"function":   "TeardownSession",
		"session_id": sessionID,
	}).Info("Session torn down")
	e.emit(EventSessionTornDown, sessionID, "explicit")

	return nil
}

// Abort fails the session in place: StateError, keys wiped, handshake nonce
// released. Unlike TeardownSession the session record stays queryable so the
// caller can observe the failed state. Aborting a terminal session is a
// no-op.
func (e *Engine) Abort(sessionID string) error {
	s, err := e.lookup(sessionID)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if !s.state.Terminal() {
		e.nonces.Release(s.nonce)
		s.failLocked()
	}
	s.mu.Unlock()

	e.logger.WithFields(logrus.Fields{
		"function":   "Abort",
		"session_id": sessionID,
	}).Warn("Session aborted")
	return nil
}

// NotifyFallback records a fallback decision against the session, emitting
// the fallback-triggered event to the registered callback.
func (e *Engine) NotifyFallback(sessionID, outcome string) {
	e.emit(EventFallbackTriggered, sessionID, outcome)
}

// ExpireIdleSessions force-transitions every non-terminal session that has
// exceeded the inactivity timeout to StateError, wiping its keys. Also drops
// pending long-range observations older than the session's correlation
// window. Returns the number of sessions expired. Intended to be driven
// periodically by the embedding application.
func (e *Engine) ExpireIdleSessions() int {
	now := e.timeProvider.Now()

	e.mu.RLock()
	candidates := make([]*Session, 0, len(e.sessions))
	for _, s := range e.sessions {
		candidates = append(candidates, s)
	}
	e.mu.RUnlock()

	expired := 0
	for _, s := range candidates {
		s.mu.Lock()
		if s.pending != nil {
			if n := s.pending.ExpireOlderThan(now.Add(-s.set.CorrelationWindow)); n > 0 {
				e.logger.WithFields(logrus.Fields{
					"function":   "ExpireIdleSessions",
					"session_id": s.id,
					"dropped":    n,
				}).Debug("Stale pending observations dropped")
			}
		}
		if !s.state.Terminal() && now.Sub(s.lastActivity) > e.opts.InactivityTimeout {
			s.failLocked()
			expired++
			e.logger.WithFields(logrus.Fields{
				"function":   "ExpireIdleSessions",
				"session_id": s.id,
			}).Warn("Session expired from inactivity")
		}
		s.mu.Unlock()
	}
	return expired
}

// AwaitEstablished blocks until the session establishes or the caller's
// context expires. Expiry is a normal, non-fatal outcome: the session is
// transitioned to StateError, its keys wiped, and ErrSessionExpired
// returned.
func (e *Engine) AwaitEstablished(ctx context.Context, sessionID string) error {
	s, err := e.lookup(sessionID)
	if err != nil {
		return err
	}

	select {
	case <-s.established:
		return nil
	case <-ctx.Done():
		s.mu.Lock()
		if !s.state.Terminal() {
			s.failLocked()
		}
		s.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrSessionExpired, ctx.Err())
	}
}

// Sessions returns the identifiers of all live sessions.
func (e *Engine) Sessions() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ids := make([]string, 0, len(e.sessions))
	for id := range e.sessions {
		ids = append(ids, id)
	}
	return ids
}

// SnapshotSession captures the preserved cryptographic state of a session
// for a fallback transition.
func (e *Engine) SnapshotSession(sessionID string) (Snapshot, error) {
	s, err := e.lookup(sessionID)
	if err != nil {
		return Snapshot{}, err
	}
	return s.Snapshot(e.timeProvider.Now()), nil
}
