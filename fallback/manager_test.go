package fallback

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/beamlink/beamlink/crypto"
	"github.com/beamlink/beamlink/protocol"
)

// fakeControl records the calls the manager makes against the engine.
type fakeControl struct {
	snapshot protocol.Snapshot
	snapErr  error

	initiated  int
	tornDown   []string
	notified   []string
	newSession string
	offer      []byte
}

func (f *fakeControl) SnapshotSession(sessionID string) (protocol.Snapshot, error) {
	if f.snapErr != nil {
		return protocol.Snapshot{}, f.snapErr
	}
	snap := f.snapshot
	snap.SessionID = sessionID
	return snap, nil
}

func (f *fakeControl) InitiateHandshake(mode protocol.Mode) (string, []byte, error) {
	f.initiated++
	return f.newSession, f.offer, nil
}

func (f *fakeControl) TeardownSession(sessionID string) error {
	f.tornDown = append(f.tornDown, sessionID)
	return nil
}

func (f *fakeControl) NotifyFallback(sessionID, outcome string) {
	f.notified = append(f.notified, sessionID+":"+outcome)
}

func knownPeerControl() *fakeControl {
	peerKeys, err := crypto.GenerateKeyPair()
	if err != nil {
		panic(err)
	}
	return &fakeControl{
		snapshot: protocol.Snapshot{
			Mode:         protocol.ModeLongRange,
			State:        protocol.StateLongRangeSecureChannel,
			PeerDHPublic: peerKeys.Public,
			PeerKnown:    true,
		},
		newSession: "session-replacement",
		offer:      []byte("replacement-offer"),
	}
}

func TestObserveTriggersAfterConsecutiveBadSamples(t *testing.T) {
	control := knownPeerControl()
	mgr, err := NewManager("session-degraded", control, Config{
		Threshold:        0.4,
		ConsecutiveCount: 2,
	})
	require.NoError(t, err)

	// A good first sample must not count toward the trigger.
	scores := []float64{0.9, 0.3, 0.2, 0.1}
	var transitions []*Transition
	for _, score := range scores {
		tr, err := mgr.Observe(score)
		require.NoError(t, err)
		transitions = append(transitions, tr)
	}

	assert.Nil(t, transitions[0])
	assert.Nil(t, transitions[1])
	require.NotNil(t, transitions[2], "fallback must trigger exactly on the third sample")
	assert.Nil(t, transitions[3], "samples after the trigger are ignored")

	tr := transitions[2]
	assert.Equal(t, ActionReestablish, tr.Action)
	assert.Equal(t, "session-degraded", tr.FromSession)
	assert.Equal(t, "session-replacement", tr.NewSession)
	assert.Equal(t, []byte("replacement-offer"), tr.Offer)
	assert.True(t, mgr.Triggered())

	assert.Equal(t, 1, control.initiated)
	assert.Equal(t, []string{"session-degraded"}, control.tornDown)
	assert.Equal(t, []string{"session-degraded:reestablish"}, control.notified)
}

func TestObserveGoodSampleResetsCounter(t *testing.T) {
	control := knownPeerControl()
	mgr, err := NewManager("session-1", control, Config{
		Threshold:        0.4,
		ConsecutiveCount: 2,
	})
	require.NoError(t, err)

	// Bad samples never accumulate across a recovery.
	for _, score := range []float64{0.1, 0.9, 0.1, 0.9, 0.1} {
		tr, err := mgr.Observe(score)
		require.NoError(t, err)
		assert.Nil(t, tr)
	}
	assert.False(t, mgr.Triggered())
	assert.Equal(t, 0, control.initiated)
}

func TestObserveBoundaryScoreCountsAsHealthy(t *testing.T) {
	control := knownPeerControl()
	mgr, err := NewManager("session-1", control, Config{
		Threshold:        0.4,
		ConsecutiveCount: 1,
	})
	require.NoError(t, err)

	tr, err := mgr.Observe(0.4)
	require.NoError(t, err)
	assert.Nil(t, tr, "score equal to the threshold is not below it")
}

func TestObserveClampsOutOfRangeScores(t *testing.T) {
	control := knownPeerControl()
	mgr, err := NewManager("session-1", control, Config{
		Threshold:        0.4,
		ConsecutiveCount: 2,
	})
	require.NoError(t, err)

	tr, err := mgr.Observe(2.5)
	require.NoError(t, err)
	assert.Nil(t, tr)
	assert.False(t, mgr.Triggered())

	_, err = mgr.Observe(-3.0)
	require.NoError(t, err)
	tr, err = mgr.Observe(-0.5)
	require.NoError(t, err)
	require.NotNil(t, tr, "clamped negative scores count as bad samples")
}

func TestTriggerAbortsWhenPeerUnknown(t *testing.T) {
	control := &fakeControl{
		snapshot: protocol.Snapshot{
			Mode:  protocol.ModeLongRange,
			State: protocol.StateLongRangeSecureChannel,
		},
	}
	mgr, err := NewManager("session-orphan", control, Config{
		Threshold:        0.5,
		ConsecutiveCount: 1,
	})
	require.NoError(t, err)

	tr, err := mgr.Observe(0.1)
	require.NoError(t, err)
	require.NotNil(t, tr)

	assert.Equal(t, ActionAbort, tr.Action)
	assert.Empty(t, tr.NewSession)
	assert.Nil(t, tr.Offer)
	assert.Equal(t, 0, control.initiated, "abort must not open a replacement session")
	assert.Equal(t, []string{"session-orphan"}, control.tornDown)
	assert.Equal(t, []string{"session-orphan:abort"}, control.notified)
}

func TestTriggerPrimesNoiseResumeWithLocalStaticKey(t *testing.T) {
	localKeys, err := crypto.GenerateKeyPair()
	require.NoError(t, err)

	control := knownPeerControl()
	mgr, err := NewManager("session-1", control, Config{
		Threshold:        0.5,
		ConsecutiveCount: 1,
		LocalStaticKey:   &localKeys.Private,
	})
	require.NoError(t, err)

	tr, err := mgr.Observe(0.0)
	require.NoError(t, err)
	require.NotNil(t, tr)
	require.NotNil(t, tr.Resume, "known peer plus local static key primes the resume path")

	msg, _, err := tr.Resume.WriteMessage(nil, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, msg)
}

func TestTriggerInvokesCallback(t *testing.T) {
	control := knownPeerControl()
	mgr, err := NewManager("session-1", control, Config{
		Threshold:        0.5,
		ConsecutiveCount: 1,
	})
	require.NoError(t, err)

	var got *Transition
	mgr.OnTransition(func(tr Transition) {
		got = &tr
	})

	_, err = mgr.Observe(0.1)
	require.NoError(t, err)

	require.NotNil(t, got)
	assert.Equal(t, ActionReestablish, got.Action)
	assert.Equal(t, "session-1", got.FromSession)
	assert.WithinDuration(t, time.Now(), got.Timestamp, 5*time.Second)
}

func TestObserveSnapshotFailurePropagates(t *testing.T) {
	control := knownPeerControl()
	control.snapErr = errors.New("session vanished")
	mgr, err := NewManager("session-1", control, Config{
		Threshold:        0.5,
		ConsecutiveCount: 1,
	})
	require.NoError(t, err)

	_, err = mgr.Observe(0.1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session vanished")
}

func TestNewManagerRejectsInvalidConfig(t *testing.T) {
	control := knownPeerControl()

	tests := []struct {
		name string
		cfg  Config
	}{
		{"zero threshold", Config{Threshold: 0, ConsecutiveCount: 2}},
		{"threshold above one", Config{Threshold: 1.5, ConsecutiveCount: 2}},
		{"zero consecutive count", Config{Threshold: 0.4, ConsecutiveCount: 0}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewManager("session-1", control, tt.cfg)
			assert.Error(t, err)
		})
	}

	_, err := NewManager("session-1", nil, NewDefaultConfig())
	assert.Error(t, err)
}
