package protocol

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beamlink/beamlink/channel"
	"github.com/beamlink/beamlink/crypto"
)

// completeShortRange runs a full short-range handshake between two engines
// and returns the session identifiers on each side.
func completeShortRange(t *testing.T, initiator, responder *Engine) (string, string) {
	t.Helper()

	sessionID, offer, err := initiator.InitiateHandshake(ModeShortRange)
	require.NoError(t, err)

	respID, response, err := responder.AcceptHandshake(offer)
	require.NoError(t, err)
	require.Equal(t, sessionID, respID, "responder adopts the initiator's session identifier")

	require.NoError(t, initiator.SubmitPeerPayload(sessionID, response))

	ack, err := initiator.BuildAck(sessionID)
	require.NoError(t, err)
	require.NoError(t, responder.SubmitAck(respID, ack))

	// The responder confirms back so the initiator completes too.
	respAck, err := responder.BuildAck(respID)
	require.NoError(t, err)
	require.NoError(t, initiator.SubmitAck(sessionID, respAck))

	return sessionID, respID
}

func TestShortRangeHandshake(t *testing.T) {
	initiator := NewEngine(nil)
	responder := NewEngine(nil)

	sessionID, respID := completeShortRange(t, initiator, responder)

	state, err := initiator.GetState(sessionID)
	require.NoError(t, err)
	assert.Equal(t, StateSecureChannelEstablished, state)

	state, err = responder.GetState(respID)
	require.NoError(t, err)
	assert.Equal(t, StateSecureChannelEstablished, state)
}

func TestHandshakeDerivesPairedKeys(t *testing.T) {
	initiator := NewEngine(nil)
	responder := NewEngine(nil)

	sessionID, respID := completeShortRange(t, initiator, responder)

	sInit, err := initiator.lookup(sessionID)
	require.NoError(t, err)
	sResp, err := responder.lookup(respID)
	require.NoError(t, err)

	assert.Equal(t, sInit.keys.Send, sResp.keys.Receive,
		"initiator send key must be the responder receive key")
	assert.Equal(t, sInit.keys.Receive, sResp.keys.Send,
		"responder send key must be the initiator receive key")
	assert.NotEqual(t, sInit.keys.Send, sInit.keys.Receive,
		"the two traffic directions must use independent keys")
	assert.Equal(t, sInit.keys.Authentication, sResp.keys.Authentication,
		"independently derived authentication keys must be bit-identical")
}

func TestDecryptInboundRejectsReflectedFrame(t *testing.T) {
	initiator := NewEngine(nil)
	responder := NewEngine(nil)

	sessionID, respID := completeShortRange(t, initiator, responder)

	wire, err := initiator.EncryptOutbound(sessionID, []byte("secret order"))
	require.NoError(t, err)

	// Echoing the frame back at its sender must not authenticate.
	_, err = initiator.DecryptInbound(sessionID, wire)
	require.Error(t, err)
	assert.ErrorIs(t, err, crypto.ErrAuthenticationFailed)

	// The genuine recipient still accepts it.
	plaintext, err := responder.DecryptInbound(respID, wire)
	require.NoError(t, err)
	assert.Equal(t, []byte("secret order"), plaintext)
}

func TestSignatureBitFlipForcesError(t *testing.T) {
	initiator := NewEngine(nil)
	responder := NewEngine(nil)

	sessionID, offer, err := initiator.InitiateHandshake(ModeShortRange)
	require.NoError(t, err)

	_, response, err := responder.AcceptHandshake(offer)
	require.NoError(t, err)

	// A single bit flip in the signature must force StateError.
	tampered := append([]byte(nil), response...)
	tampered[len(tampered)-1] ^= 0x01

	err = initiator.SubmitPeerPayload(sessionID, tampered)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSignatureInvalid)

	state, err := initiator.GetState(sessionID)
	require.NoError(t, err)
	assert.Equal(t, StateError, state)
}

func TestNonceMismatchForcesError(t *testing.T) {
	initiator := NewEngine(nil)
	responder := NewEngine(nil)

	sessionID, offer, err := initiator.InitiateHandshake(ModeShortRange)
	require.NoError(t, err)

	_, response, err := responder.AcceptHandshake(offer)
	require.NoError(t, err)

	// Rebuild the response with a foreign nonce, properly re-signed, so
	// only the nonce check can reject it.
	parsed, err := ParseHandshakePayload(response)
	require.NoError(t, err)

	foreign, err := crypto.GenerateHandshakeNonce()
	require.NoError(t, err)
	signer, err := crypto.GenerateSigningKeyPair()
	require.NoError(t, err)

	parsed.Nonce = foreign
	parsed.VerifyKey = signer.Public
	require.NoError(t, parsed.SignWith(signer.Seed))
	forged, err := parsed.Marshal()
	require.NoError(t, err)

	err = initiator.SubmitPeerPayload(sessionID, forged)
	assert.ErrorIs(t, err, ErrNonceMismatch)

	state, err := initiator.GetState(sessionID)
	require.NoError(t, err)
	assert.Equal(t, StateError, state)
}

func TestOfferNonceSingleUse(t *testing.T) {
	initiator := NewEngine(nil)
	responder := NewEngine(nil)

	_, offer, err := initiator.InitiateHandshake(ModeShortRange)
	require.NoError(t, err)

	_, _, err = responder.AcceptHandshake(offer)
	require.NoError(t, err)

	// Replaying the same offer must be rejected before key generation.
	_, _, err = responder.AcceptHandshake(offer)
	assert.ErrorIs(t, err, ErrNonceReplayed)
}

func TestInvalidStateTransitions(t *testing.T) {
	engine := NewEngine(nil)

	sessionID, _, err := engine.InitiateHandshake(ModeShortRange)
	require.NoError(t, err)

	t.Run("ack before keys exchanged", func(t *testing.T) {
		err := engine.SubmitAck(sessionID, []byte{0, 1})
		assert.ErrorIs(t, err, ErrInvalidStateTransition)
	})

	t.Run("encrypt before established", func(t *testing.T) {
		_, err := engine.EncryptOutbound(sessionID, []byte("too early"))
		assert.ErrorIs(t, err, ErrNotEstablished)
	})

	t.Run("observation on short-range session", func(t *testing.T) {
		err := engine.SubmitObservation(sessionID, &channel.Observation{SessionID: sessionID})
		assert.ErrorIs(t, err, ErrInvalidStateTransition)
	})

	t.Run("rejection leaves state unchanged", func(t *testing.T) {
		state, err := engine.GetState(sessionID)
		require.NoError(t, err)
		assert.Equal(t, StateAwaitingPeerPublicKey, state)
	})
}

func TestMalformedPayloadRejectedBeforeCrypto(t *testing.T) {
	engine := NewEngine(nil)
	sessionID, _, err := engine.InitiateHandshake(ModeShortRange)
	require.NoError(t, err)

	tests := []struct {
		name    string
		payload []byte
	}{
		{"empty", nil},
		{"truncated", make([]byte, 10)},
		{"wrong version", append([]byte{0xFF, 0xFF}, make([]byte, 200)...)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := engine.SubmitPeerPayload(sessionID, tt.payload)
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrMalformedPayload)

			// Malformed input must not mutate the session.
			state, err := engine.GetState(sessionID)
			require.NoError(t, err)
			assert.Equal(t, StateAwaitingPeerPublicKey, state)
		})
	}
}

func TestSequenceNumbering(t *testing.T) {
	initiator := NewEngine(nil)
	responder := NewEngine(nil)
	sessionID, respID := completeShortRange(t, initiator, responder)

	// After N encryptions the next message carries sequence N+1,
	// starting at 1.
	const n = 5
	var frames [][]byte
	for i := 1; i <= n; i++ {
		wire, err := initiator.EncryptOutbound(sessionID, []byte("message"))
		require.NoError(t, err)
		frame, err := ParseMessageFrame(wire)
		require.NoError(t, err)
		assert.Equal(t, uint32(i), frame.Sequence)
		frames = append(frames, wire)
	}

	// Deliver in order.
	for _, wire := range frames {
		_, err := responder.DecryptInbound(respID, wire)
		require.NoError(t, err)
	}

	// Replaying message N after N+1 was accepted is rejected before
	// decryption.
	_, err := responder.DecryptInbound(respID, frames[n-1])
	assert.ErrorIs(t, err, ErrReplayDetected)

	_, err = responder.DecryptInbound(respID, frames[0])
	assert.ErrorIs(t, err, ErrReplayDetected)
}

func TestSequenceForwardWindow(t *testing.T) {
	opts := NewDefaultOptions()
	opts.ForwardWindow = 4
	initiator := NewEngine(opts)
	responder := NewEngine(opts)
	sessionID, respID := completeShortRange(t, initiator, responder)

	// Skip ahead within the window: allowed.
	var last []byte
	for i := 0; i < 3; i++ {
		wire, err := initiator.EncryptOutbound(sessionID, []byte("m"))
		require.NoError(t, err)
		last = wire
	}
	_, err := responder.DecryptInbound(respID, last)
	require.NoError(t, err, "gap within forward window is tolerated")

	// A message far beyond the window is rejected without decryption.
	for i := 0; i < 10; i++ {
		last, err = initiator.EncryptOutbound(sessionID, []byte("m"))
		require.NoError(t, err)
	}
	_, err = responder.DecryptInbound(respID, last)
	assert.ErrorIs(t, err, ErrSequenceOutOfWindow)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	initiator := NewEngine(nil)
	responder := NewEngine(nil)
	sessionID, respID := completeShortRange(t, initiator, responder)

	plaintext := []byte("mission manifest segment 7")
	wire, err := initiator.EncryptOutbound(sessionID, plaintext)
	require.NoError(t, err)
	assert.NotContains(t, string(wire), string(plaintext))

	decrypted, err := responder.DecryptInbound(respID, wire)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decrypted)
}

func TestTeardownIdempotent(t *testing.T) {
	engine := NewEngine(nil)
	sessionID, _, err := engine.InitiateHandshake(ModeShortRange)
	require.NoError(t, err)

	require.NoError(t, engine.TeardownSession(sessionID))
	// Calling it twice never double-frees key material.
	require.NoError(t, engine.TeardownSession(sessionID))

	_, err = engine.GetState(sessionID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestAbortKeepsSessionQueryable(t *testing.T) {
	engine := NewEngine(nil)
	sessionID, _, err := engine.InitiateHandshake(ModeShortRange)
	require.NoError(t, err)

	require.NoError(t, engine.Abort(sessionID))
	state, err := engine.GetState(sessionID)
	require.NoError(t, err)
	assert.Equal(t, StateError, state)

	// Aborting again is a no-op, and unknown sessions still error.
	require.NoError(t, engine.Abort(sessionID))
	assert.ErrorIs(t, engine.Abort("missing"), ErrSessionNotFound)
}

func TestLongRangeCoupledHandshake(t *testing.T) {
	initiator := NewEngine(nil)
	responder := NewEngine(nil)

	sessionID, offer, err := initiator.InitiateHandshake(ModeLongRange)
	require.NoError(t, err)

	state, err := initiator.GetState(sessionID)
	require.NoError(t, err)
	require.Equal(t, StateIdle, state, "long-range session rests idle until coupling")

	_, response, err := responder.AcceptHandshake(offer)
	require.NoError(t, err)

	obsA, obsB := makeCoupledObservations(t, sessionID, response, 0)

	require.NoError(t, initiator.SubmitObservation(sessionID, obsA))
	require.NoError(t, initiator.SubmitObservation(sessionID, obsB))

	state, err = initiator.GetState(sessionID)
	require.NoError(t, err)
	assert.Equal(t, StateLongRangeSecureChannel, state)
}

// makeCoupledObservations wraps a handshake response in a valid coupled
// observation pair: the optical channel carries the response payload, the
// acoustic channel carries an auth frame, digests cross-bound, skewNanos
// apart.
func makeCoupledObservations(t *testing.T, sessionID string, response []byte, skewNanos int64) (*channel.Observation, *channel.Observation) {
	t.Helper()

	signer, err := crypto.GenerateSigningKeyPair()
	require.NoError(t, err)

	authFrame := []byte("acoustic-auth-frame")
	base := time.Now().UnixNano()

	obsA := &channel.Observation{
		Channel:        channel.ChannelOptical,
		SessionID:      sessionID,
		TimestampNanos: base,
		Payload:        response,
		Digest:         crypto.Fingerprint(authFrame),
		SignerKey:      signer.Public,
		Usable:         true,
	}
	obsB := &channel.Observation{
		Channel:        channel.ChannelAcoustic,
		SessionID:      sessionID,
		TimestampNanos: base + skewNanos,
		Payload:        authFrame,
		Digest:         crypto.Fingerprint(response),
		SignerKey:      signer.Public,
		Usable:         true,
	}
	require.NoError(t, channel.SignObservation(obsA, signer.Seed))
	require.NoError(t, channel.SignObservation(obsB, signer.Seed))

	return obsA, obsB
}

func TestLongRangeCouplingRejectedStaysIdle(t *testing.T) {
	initiator := NewEngine(nil)
	responder := NewEngine(nil)

	sessionID, offer, err := initiator.InitiateHandshake(ModeLongRange)
	require.NoError(t, err)
	_, response, err := responder.AcceptHandshake(offer)
	require.NoError(t, err)

	// Skew far beyond any tier's correlation window.
	obsA, obsB := makeCoupledObservations(t, sessionID, response, (500 * time.Millisecond).Nanoseconds())

	require.NoError(t, initiator.SubmitObservation(sessionID, obsA))
	err = initiator.SubmitObservation(sessionID, obsB)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCouplingFailed)

	state, err := initiator.GetState(sessionID)
	require.NoError(t, err)
	assert.Equal(t, StateIdle, state, "rejection keeps the engine idle")
}

func TestEventsEmitted(t *testing.T) {
	initiator := NewEngine(nil)
	responder := NewEngine(nil)

	var events []Event
	initiator.OnEvent(func(ev Event) { events = append(events, ev) })

	sessionID, respID := completeShortRange(t, initiator, responder)
	require.Equal(t, sessionID, respID)

	require.NoError(t, initiator.TeardownSession(sessionID))

	var types []EventType
	for _, ev := range events {
		assert.Equal(t, sessionID, ev.SessionID)
		assert.False(t, ev.Timestamp.IsZero())
		types = append(types, ev.Type)
	}
	assert.Equal(t, []EventType{EventHandshakeInitiated, EventHandshakeCompleted, EventSessionTornDown}, types)
}

func TestAwaitEstablishedTimeout(t *testing.T) {
	engine := NewEngine(nil)
	sessionID, _, err := engine.InitiateHandshake(ModeShortRange)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err = engine.AwaitEstablished(ctx, sessionID)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSessionExpired)

	// Timeout expiry is a normal, non-fatal transition to StateError.
	state, err := engine.GetState(sessionID)
	require.NoError(t, err)
	assert.Equal(t, StateError, state)
}

func TestExpireIdleSessions(t *testing.T) {
	opts := NewDefaultOptions()
	opts.InactivityTimeout = 10 * time.Millisecond
	engine := NewEngine(opts)

	sessionID, _, err := engine.InitiateHandshake(ModeShortRange)
	require.NoError(t, err)

	time.Sleep(25 * time.Millisecond)
	assert.Equal(t, 1, engine.ExpireIdleSessions())

	state, err := engine.GetState(sessionID)
	require.NoError(t, err)
	assert.Equal(t, StateError, state)

	// Terminal sessions are not expired again.
	assert.Equal(t, 0, engine.ExpireIdleSessions())
}

func TestConcurrentSessionsIsolated(t *testing.T) {
	engine := NewEngine(nil)

	first, _, err := engine.InitiateHandshake(ModeShortRange)
	require.NoError(t, err)
	second, _, err := engine.InitiateHandshake(ModeLongRange)
	require.NoError(t, err)

	require.NotEqual(t, first, second)

	stateFirst, err := engine.GetState(first)
	require.NoError(t, err)
	stateSecond, err := engine.GetState(second)
	require.NoError(t, err)

	assert.Equal(t, StateAwaitingPeerPublicKey, stateFirst)
	assert.Equal(t, StateIdle, stateSecond)

	require.NoError(t, engine.TeardownSession(first))
	_, err = engine.GetState(second)
	assert.NoError(t, err, "teardown of one session must not affect another")
}

func TestRotateKeys(t *testing.T) {
	initiator := NewEngine(nil)
	responder := NewEngine(nil)
	sessionID, respID := completeShortRange(t, initiator, responder)

	due, err := initiator.RotationDue(sessionID)
	require.NoError(t, err)
	assert.False(t, due, "fresh session is not due for rotation")

	// Rotate both sides; traffic must still flow.
	require.NoError(t, initiator.RotateKeys(sessionID))
	require.NoError(t, responder.RotateKeys(respID))

	wire, err := initiator.EncryptOutbound(sessionID, []byte("after rotation"))
	require.NoError(t, err)
	plaintext, err := responder.DecryptInbound(respID, wire)
	require.NoError(t, err)
	assert.Equal(t, []byte("after rotation"), plaintext)
}
