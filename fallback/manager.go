// Package fallback implements controlled degradation of long-range sessions.
//
// A manager watches the periodic channel-health score for one active
// long-range session. When the score stays below a configured threshold for
// a configured number of consecutive samples, it snapshots the session's
// cryptographic state, instructs the protocol engine to re-initiate in
// short-range mode reusing the authenticated peer identity, or aborts when
// no fallback path exists. Recovery never auto-escalates: re-entering
// long-range mode requires a fresh, explicit handshake.
package fallback

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/beamlink/beamlink/crypto"
	"github.com/beamlink/beamlink/noiseik"
	"github.com/beamlink/beamlink/protocol"
)

// Action is the outcome of a triggered fallback.
type Action uint8

const (
	// ActionReestablish means a short-range replacement session was
	// initiated against the authenticated peer identity.
	ActionReestablish Action = iota
	// ActionAbort means no fallback path existed and the session was
	// torn down.
	ActionAbort
)

// String returns a human-readable action name.
func (a Action) String() string {
	if a == ActionAbort {
		return "abort"
	}
	return "reestablish"
}

// SessionControl is the slice of the protocol engine the manager drives.
type SessionControl interface {
	SnapshotSession(sessionID string) (protocol.Snapshot, error)
	InitiateHandshake(mode protocol.Mode) (string, []byte, error)
	TeardownSession(sessionID string) error
	NotifyFallback(sessionID, outcome string)
}

// Transition describes one completed fallback.
type Transition struct {
	// FromSession is the degraded long-range session.
	FromSession string
	// NewSession is the short-range replacement, empty on abort.
	NewSession string
	// Offer is the replacement session's handshake offer, nil on abort.
	Offer []byte
	// Resume is a primed Noise IK initiator bound to the snapshotted
	// peer identity, available when the manager holds a local static
	// key. May be nil; the explicit offer always works.
	Resume *noiseik.Handshake
	// Snapshot is the preserved cryptographic state.
	Snapshot  protocol.Snapshot
	Action    Action
	Timestamp time.Time
}

// TransitionCallback receives the emitted transition event.
type TransitionCallback func(Transition)

// Config parameterizes one manager.
type Config struct {
	// Threshold is the health score below which a sample counts as bad.
	Threshold float64
	// ConsecutiveCount is how many consecutive bad samples trigger the
	// fallback.
	ConsecutiveCount int
	// LocalStaticKey, when set, enables the Noise IK resume path.
	LocalStaticKey *[32]byte
	// TimeProvider supplies the clock; nil selects the wall clock.
	TimeProvider crypto.TimeProvider
}

// NewDefaultConfig returns the default fallback configuration.
func NewDefaultConfig() Config {
	return Config{
		Threshold:        0.4,
		ConsecutiveCount: 3,
	}
}

// Manager consumes health samples for one long-range session.
type Manager struct {
	mu sync.Mutex

	sessionID string
	cfg       Config
	control   SessionControl

	belowCount int
	triggered  bool

	callback     TransitionCallback
	timeProvider crypto.TimeProvider
	logger       *logrus.Logger
}

// NewManager creates a fallback manager for one active long-range session.
func NewManager(sessionID string, control SessionControl, cfg Config) (*Manager, error) {
	if control == nil {
		return nil, errors.New("nil session control")
	}
	if cfg.Threshold <= 0 || cfg.Threshold > 1 {
		return nil, fmt.Errorf("threshold %v outside (0,1]", cfg.Threshold)
	}
	if cfg.ConsecutiveCount < 1 {
		return nil, fmt.Errorf("consecutive count %d below 1", cfg.ConsecutiveCount)
	}

	tp := cfg.TimeProvider
	if tp == nil {
		tp = crypto.DefaultTimeProvider{}
	}

	return &Manager{
		sessionID:    sessionID,
		cfg:          cfg,
		control:      control,
		timeProvider: tp,
		logger:       logrus.StandardLogger(),
	}, nil
}

// OnTransition registers the callback receiving the transition event.
func (m *Manager) OnTransition(cb TransitionCallback) {
	m.mu.Lock()
	m.callback = cb
	m.mu.Unlock()
}

// Triggered reports whether the manager has already fallen back.
func (m *Manager) Triggered() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.triggered
}

// Observe consumes one periodic health sample in [0,1]. Out-of-range scores
// are clamped. Returns the transition when this sample triggered the
// fallback, nil otherwise. After a trigger further samples are ignored;
// recovery requires a fresh explicit handshake.
func (m *Manager) Observe(score float64) (*Transition, error) {
	if score < 0 {
		score = 0
	} else if score > 1 {
		score = 1
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.triggered {
		return nil, nil
	}

	if score >= m.cfg.Threshold {
		m.belowCount = 0
		return nil, nil
	}

	m.belowCount++
	m.logger.WithFields(logrus.Fields{
		"function":    "Observe",
		"session_id":  m.sessionID,
		"score":       score,
		"below_count": m.belowCount,
	}).Debug("Channel health below threshold")

	if m.belowCount < m.cfg.ConsecutiveCount {
		return nil, nil
	}

	transition, err := m.triggerLocked()
	if err != nil {
		return nil, err
	}
	return transition, nil
}

// triggerLocked runs the fallback. Caller holds m.mu.
func (m *Manager) triggerLocked() (*Transition, error) {
	m.triggered = true

	snapshot, err := m.control.SnapshotSession(m.sessionID)
	if err != nil {
		return nil, fmt.Errorf("snapshot before fallback: %w", err)
	}

	transition := &Transition{
		FromSession: m.sessionID,
		Snapshot:    snapshot,
		Timestamp:   m.timeProvider.Now(),
	}

	if snapshot.PeerKnown {
		newID, offer, err := m.control.InitiateHandshake(protocol.ModeShortRange)
		if err != nil {
			return nil, fmt.Errorf("short-range re-initiation: %w", err)
		}
		transition.Action = ActionReestablish
		transition.NewSession = newID
		transition.Offer = offer

		if m.cfg.LocalStaticKey != nil {
			resume, err := noiseik.New(*m.cfg.LocalStaticKey, snapshot.PeerDHPublic[:], noiseik.Initiator)
			if err != nil {
				m.logger.WithFields(logrus.Fields{
					"function":   "triggerLocked",
					"session_id": m.sessionID,
				}).Warn("Noise IK resume unavailable, explicit offer only")
			} else {
				transition.Resume = resume
			}
		}
	} else {
		transition.Action = ActionAbort
	}

	m.control.NotifyFallback(m.sessionID, transition.Action.String())
	if err := m.control.TeardownSession(m.sessionID); err != nil {
		return nil, fmt.Errorf("teardown of degraded session: %w", err)
	}

	m.logger.WithFields(logrus.Fields{
		"function":    "triggerLocked",
		"session_id":  m.sessionID,
		"action":      transition.Action.String(),
		"new_session": transition.NewSession,
	}).Info("Fallback triggered")

	if m.callback != nil {
		m.callback(*transition)
	}

	return transition, nil
}
