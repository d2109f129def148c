package beamlink

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/beamlink/beamlink/channel"
	"github.com/beamlink/beamlink/fallback"
	"github.com/beamlink/beamlink/params"
	"github.com/beamlink/beamlink/protocol"
)

// ErrNotLongRange indicates a health sample for a session that is not an
// established long-range channel.
var ErrNotLongRange = errors.New("session is not a long-range channel")

// Options contains configuration options for creating a Manager.
type Options struct {
	// Engine configures the underlying protocol engine; nil for defaults.
	Engine *protocol.Options

	// Fallback configures the per-session degradation managers.
	Fallback fallback.Config

	// StaticKey, when set, enables the Noise IK resume path on fallback.
	StaticKey *[32]byte

	// HousekeepingInterval is how often idle sessions are expired.
	// Zero disables the background sweeper.
	HousekeepingInterval time.Duration
}

// NewOptions returns the default Manager configuration.
func NewOptions() *Options {
	return &Options{
		Engine:               protocol.NewDefaultOptions(),
		Fallback:             fallback.NewDefaultConfig(),
		HousekeepingInterval: 30 * time.Second,
	}
}

// Manager is the root instance. It owns the protocol engine, the coupled
// channel validator, and one fallback manager per active long-range session.
type Manager struct {
	engine  *protocol.Engine
	options *Options

	fallbackMu sync.Mutex
	fallbacks  map[string]*fallback.Manager

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	logger  *logrus.Logger
	running bool
	runMu   sync.Mutex
}

// New creates a Manager with the given options. Pass nil for defaults.
func New(options *Options) (*Manager, error) {
	if options == nil {
		options = NewOptions()
	}

	ctx, cancel := context.WithCancel(context.Background())
	m := &Manager{
		engine:    protocol.NewEngine(options.Engine),
		options:   options,
		fallbacks: make(map[string]*fallback.Manager),
		ctx:       ctx,
		cancel:    cancel,
		logger:    logrus.StandardLogger(),
		running:   true,
	}

	if options.HousekeepingInterval > 0 {
		m.wg.Add(1)
		go m.housekeep(options.HousekeepingInterval)
	}

	return m, nil
}

// housekeep expires idle sessions on a fixed interval until shutdown.
func (m *Manager) housekeep(interval time.Duration) {
	defer m.wg.Done()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.ctx.Done():
			return
		case <-ticker.C:
			if n := m.engine.ExpireIdleSessions(); n > 0 {
				m.logger.WithFields(logrus.Fields{
					"function": "housekeep",
					"expired":  n,
				}).Info("Idle sessions expired")
			}
		}
	}
}

// OnEvent registers the callback receiving session lifecycle events.
func (m *Manager) OnEvent(cb protocol.EventCallback) {
	m.engine.OnEvent(cb)
}

// SetRiskTier updates the risk tier used for sessions initiated afterwards.
func (m *Manager) SetRiskTier(tier params.Tier) {
	m.engine.SetRiskTier(tier)
}

// RiskTier returns the current risk tier.
func (m *Manager) RiskTier() params.Tier {
	return m.engine.RiskTier()
}

// Validator exposes the coupled-channel validator for transport
// collaborators that make direct pair decisions.
func (m *Manager) Validator() *channel.Validator {
	return m.engine.Validator()
}

// InitiateHandshake opens a new session in the given mode and returns its
// identifier plus the offer payload to transmit to the peer.
func (m *Manager) InitiateHandshake(mode protocol.Mode) (string, []byte, error) {
	return m.engine.InitiateHandshake(mode)
}

// AcceptHandshake processes a received offer and returns the responder
// session identifier plus the response payload to transmit back.
func (m *Manager) AcceptHandshake(offer []byte) (string, []byte, error) {
	return m.engine.AcceptHandshake(offer)
}

// SubmitPeerPayload feeds a received handshake payload into the session.
func (m *Manager) SubmitPeerPayload(sessionID string, payload []byte) error {
	return m.engine.SubmitPeerPayload(sessionID, payload)
}

// BuildAck produces the confirmation payload completing the handshake.
func (m *Manager) BuildAck(sessionID string) ([]byte, error) {
	return m.engine.BuildAck(sessionID)
}

// SubmitAck processes the peer's confirmation payload.
func (m *Manager) SubmitAck(sessionID string, ack []byte) error {
	return m.engine.SubmitAck(sessionID, ack)
}

// SubmitObservation feeds one signed channel observation into a long-range
// handshake. The session establishes once a coupled pair validates.
func (m *Manager) SubmitObservation(sessionID string, obs *channel.Observation) error {
	return m.engine.SubmitObservation(sessionID, obs)
}

// GetState returns the session's current state.
func (m *Manager) GetState(sessionID string) (protocol.State, error) {
	return m.engine.GetState(sessionID)
}

// AwaitEstablished blocks until the session establishes, fails, or the
// context expires.
func (m *Manager) AwaitEstablished(ctx context.Context, sessionID string) error {
	return m.engine.AwaitEstablished(ctx, sessionID)
}

// EncryptOutbound seals plaintext for the established session.
func (m *Manager) EncryptOutbound(sessionID string, plaintext []byte) ([]byte, error) {
	return m.engine.EncryptOutbound(sessionID, plaintext)
}

// DecryptInbound opens a received message frame for the established session.
func (m *Manager) DecryptInbound(sessionID string, wire []byte) ([]byte, error) {
	return m.engine.DecryptInbound(sessionID, wire)
}

// RotateKeys re-derives the session keys. Both peers rotate at the agreed
// interval; RotationDue reports when that is.
func (m *Manager) RotateKeys(sessionID string) error {
	return m.engine.RotateKeys(sessionID)
}

// RotationDue reports whether the session's key rotation interval elapsed.
func (m *Manager) RotationDue(sessionID string) (bool, error) {
	return m.engine.RotationDue(sessionID)
}

// Sessions lists the identifiers of all live sessions.
func (m *Manager) Sessions() []string {
	return m.engine.Sessions()
}

// SubmitHealthSample feeds one periodic channel-health score in [0,1] for
// an established long-range session. When sustained degradation triggers a
// fallback, the resulting transition is returned; nil otherwise.
func (m *Manager) SubmitHealthSample(sessionID string, score float64) (*fallback.Transition, error) {
	m.fallbackMu.Lock()
	mgr, ok := m.fallbacks[sessionID]
	if !ok {
		snap, err := m.engine.SnapshotSession(sessionID)
		if err != nil {
			m.fallbackMu.Unlock()
			return nil, err
		}
		if snap.Mode != protocol.ModeLongRange || !snap.State.Established() {
			m.fallbackMu.Unlock()
			return nil, ErrNotLongRange
		}
		cfg := m.options.Fallback
		cfg.LocalStaticKey = m.options.StaticKey
		mgr, err = fallback.NewManager(sessionID, m.engine, cfg)
		if err != nil {
			m.fallbackMu.Unlock()
			return nil, err
		}
		m.fallbacks[sessionID] = mgr
	}
	m.fallbackMu.Unlock()

	transition, err := mgr.Observe(score)
	if err != nil {
		return nil, err
	}
	if transition != nil {
		m.fallbackMu.Lock()
		delete(m.fallbacks, sessionID)
		m.fallbackMu.Unlock()
	}
	return transition, nil
}

// Abort fails the session in place, wiping its key material but keeping the
// record queryable in StateError.
func (m *Manager) Abort(sessionID string) error {
	return m.engine.Abort(sessionID)
}

// TeardownSession terminates the session and wipes its key material.
func (m *Manager) TeardownSession(sessionID string) error {
	m.fallbackMu.Lock()
	delete(m.fallbacks, sessionID)
	m.fallbackMu.Unlock()
	return m.engine.TeardownSession(sessionID)
}

// IsRunning reports whether the manager has not been shut down.
func (m *Manager) IsRunning() bool {
	m.runMu.Lock()
	defer m.runMu.Unlock()
	return m.running
}

// Close tears down all live sessions and stops background work. Idempotent.
func (m *Manager) Close() error {
	m.runMu.Lock()
	if !m.running {
		m.runMu.Unlock()
		return nil
	}
	m.running = false
	m.runMu.Unlock()

	m.cancel()
	m.wg.Wait()

	for _, id := range m.engine.Sessions() {
		if err := m.engine.TeardownSession(id); err != nil {
			m.logger.WithFields(logrus.Fields{
				"function":   "Close",
				"session_id": id,
				"error":      err,
			}).Warn("Teardown during shutdown failed")
		}
	}

	m.fallbackMu.Lock()
	m.fallbacks = make(map[string]*fallback.Manager)
	m.fallbackMu.Unlock()

	m.logger.WithFields(logrus.Fields{
		"function": "Close",
	}).Info("Manager shut down")
	return nil
}
