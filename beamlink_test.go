package beamlink

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beamlink/beamlink/channel"
	"github.com/beamlink/beamlink/crypto"
	"github.com/beamlink/beamlink/fallback"
	"github.com/beamlink/beamlink/params"
	"github.com/beamlink/beamlink/protocol"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	opts := NewOptions()
	opts.HousekeepingInterval = 0
	mgr, err := New(opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Close() })
	return mgr
}

// completeShortRange drives a full offer/response/ack exchange between two
// managers and returns both session identifiers.
func completeShortRange(t *testing.T, initiator, responder *Manager) (string, string) {
	t.Helper()

	initID, offer, err := initiator.InitiateHandshake(protocol.ModeShortRange)
	require.NoError(t, err)

	respID, response, err := responder.AcceptHandshake(offer)
	require.NoError(t, err)
	require.NoError(t, initiator.SubmitPeerPayload(initID, response))

	ack, err := initiator.BuildAck(initID)
	require.NoError(t, err)
	require.NoError(t, responder.SubmitAck(respID, ack))

	ack, err = responder.BuildAck(respID)
	require.NoError(t, err)
	require.NoError(t, initiator.SubmitAck(initID, ack))

	return initID, respID
}

func TestManagerShortRangeSession(t *testing.T) {
	alice := newTestManager(t)
	bob := newTestManager(t)

	aliceID, bobID := completeShortRange(t, alice, bob)

	state, err := alice.GetState(aliceID)
	require.NoError(t, err)
	assert.Equal(t, protocol.StateSecureChannelEstablished, state)
	state, err = bob.GetState(bobID)
	require.NoError(t, err)
	assert.Equal(t, protocol.StateSecureChannelEstablished, state)

	wire, err := alice.EncryptOutbound(aliceID, []byte("over the beam"))
	require.NoError(t, err)
	plaintext, err := bob.DecryptInbound(bobID, wire)
	require.NoError(t, err)
	assert.Equal(t, []byte("over the beam"), plaintext)
}

// establishLongRange brings the initiating manager to a long-range secure
// channel using a coupled observation pair carrying the peer's response.
func establishLongRange(t *testing.T, initiator, responder *Manager) string {
	t.Helper()

	sessionID, offer, err := initiator.InitiateHandshake(protocol.ModeLongRange)
	require.NoError(t, err)
	_, response, err := responder.AcceptHandshake(offer)
	require.NoError(t, err)

	signer, err := crypto.GenerateSigningKeyPair()
	require.NoError(t, err)

	authFrame := []byte("acoustic-auth-frame")
	base := time.Now().UnixNano()

	optical := &channel.Observation{
		Channel:        channel.ChannelOptical,
		SessionID:      sessionID,
		TimestampNanos: base,
		Payload:        response,
		Digest:         crypto.Fingerprint(authFrame),
		SignerKey:      signer.Public,
		Usable:         true,
	}
	acoustic := &channel.Observation{
		Channel:        channel.ChannelAcoustic,
		SessionID:      sessionID,
		TimestampNanos: base + 40*int64(time.Millisecond),
		Payload:        authFrame,
		Digest:         crypto.Fingerprint(response),
		SignerKey:      signer.Public,
		Usable:         true,
	}
	require.NoError(t, channel.SignObservation(optical, signer.Seed))
	require.NoError(t, channel.SignObservation(acoustic, signer.Seed))

	require.NoError(t, initiator.SubmitObservation(sessionID, optical))
	require.NoError(t, initiator.SubmitObservation(sessionID, acoustic))

	state, err := initiator.GetState(sessionID)
	require.NoError(t, err)
	require.Equal(t, protocol.StateLongRangeSecureChannel, state)
	return sessionID
}

func TestSubmitHealthSampleTriggersFallback(t *testing.T) {
	opts := NewOptions()
	opts.HousekeepingInterval = 0
	opts.Fallback = fallback.Config{
		Threshold:        0.4,
		ConsecutiveCount: 2,
	}
	alice, err := New(opts)
	require.NoError(t, err)
	defer alice.Close()
	bob := newTestManager(t)

	sessionID := establishLongRange(t, alice, bob)

	var events []protocol.EventType
	alice.OnEvent(func(ev protocol.Event) {
		events = append(events, ev.Type)
	})

	tr, err := alice.SubmitHealthSample(sessionID, 0.9)
	require.NoError(t, err)
	assert.Nil(t, tr)
	tr, err = alice.SubmitHealthSample(sessionID, 0.3)
	require.NoError(t, err)
	assert.Nil(t, tr)
	tr, err = alice.SubmitHealthSample(sessionID, 0.2)
	require.NoError(t, err)
	require.NotNil(t, tr, "fallback triggers exactly on the third sample")
	assert.Equal(t, fallback.ActionReestablish, tr.Action)
	assert.Equal(t, sessionID, tr.FromSession)
	assert.NotEmpty(t, tr.NewSession)
	assert.NotEmpty(t, tr.Offer)

	// The degraded session is gone; the replacement is live and short-range.
	_, err = alice.GetState(sessionID)
	assert.ErrorIs(t, err, protocol.ErrSessionNotFound)
	state, err := alice.GetState(tr.NewSession)
	require.NoError(t, err)
	assert.Equal(t, protocol.StateAwaitingPeerPublicKey, state)

	assert.Contains(t, events, protocol.EventHandshakeInitiated)
	assert.Contains(t, events, protocol.EventFallbackTriggered)
	assert.Contains(t, events, protocol.EventSessionTornDown)

	// A sample after the trigger targets a dead session.
	_, err = alice.SubmitHealthSample(sessionID, 0.1)
	assert.Error(t, err)
}

func TestSubmitHealthSampleRejectsShortRange(t *testing.T) {
	alice := newTestManager(t)
	bob := newTestManager(t)
	aliceID, _ := completeShortRange(t, alice, bob)

	_, err := alice.SubmitHealthSample(aliceID, 0.1)
	assert.ErrorIs(t, err, ErrNotLongRange)
}

func TestSubmitHealthSampleUnknownSession(t *testing.T) {
	mgr := newTestManager(t)
	_, err := mgr.SubmitHealthSample("no-such-session", 0.5)
	assert.ErrorIs(t, err, protocol.ErrSessionNotFound)
}

func TestManagerRiskTier(t *testing.T) {
	mgr := newTestManager(t)
	assert.Equal(t, params.TierStandard, mgr.RiskTier())
	mgr.SetRiskTier(params.TierHostile)
	assert.Equal(t, params.TierHostile, mgr.RiskTier())
}

func TestManagerTeardownSession(t *testing.T) {
	alice := newTestManager(t)
	bob := newTestManager(t)
	aliceID, _ := completeShortRange(t, alice, bob)

	require.NoError(t, alice.TeardownSession(aliceID))
	_, err := alice.GetState(aliceID)
	assert.ErrorIs(t, err, protocol.ErrSessionNotFound)
}

func TestManagerAbort(t *testing.T) {
	alice := newTestManager(t)
	bob := newTestManager(t)
	aliceID, _ := completeShortRange(t, alice, bob)

	require.NoError(t, alice.Abort(aliceID))
	state, err := alice.GetState(aliceID)
	require.NoError(t, err, "aborted sessions stay queryable")
	assert.Equal(t, protocol.StateError, state)

	_, err = alice.EncryptOutbound(aliceID, []byte("x"))
	assert.Error(t, err)
}

func TestManagerCloseIdempotent(t *testing.T) {
	mgr, err := New(nil)
	require.NoError(t, err)

	_, _, err = mgr.InitiateHandshake(protocol.ModeShortRange)
	require.NoError(t, err)

	assert.True(t, mgr.IsRunning())
	require.NoError(t, mgr.Close())
	assert.False(t, mgr.IsRunning())
	assert.Empty(t, mgr.Sessions())
	require.NoError(t, mgr.Close())
}
