package channel

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/beamlink/beamlink/crypto"
	"github.com/beamlink/beamlink/params"
)

// Result is the outcome of a coupled-pair validation.
type Result uint8

const (
	// Coupled means the two observations represent one live physical event.
	Coupled Result = iota
	// RejectedUnusable means a quality flag disqualified an observation.
	RejectedUnusable
	// RejectedSignatureInvalid means at least one signature failed to verify.
	RejectedSignatureInvalid
	// RejectedOutOfWindow means the timestamps exceed the correlation window.
	RejectedOutOfWindow
	// RejectedCrossBindingFailed means a digest does not match the other
	// channel's payload.
	RejectedCrossBindingFailed
	// RejectedReplayed means the pair was already consumed by an earlier
	// decision.
	RejectedReplayed
	// RejectedMismatched means the observations do not belong together
	// (same channel or different sessions).
	RejectedMismatched
)

// String returns a human-readable result name.
func (r Result) String() string {
	switch r {
	case Coupled:
		return "coupled"
	case RejectedUnusable:
		return "rejected:unusable"
	case RejectedSignatureInvalid:
		return "rejected:signature-invalid"
	case RejectedOutOfWindow:
		return "rejected:out-of-window"
	case RejectedCrossBindingFailed:
		return "rejected:cross-binding-failed"
	case RejectedReplayed:
		return "rejected:replayed"
	case RejectedMismatched:
		return "rejected:mismatched"
	default:
		return "unknown"
	}
}

// Metrics counts validation outcomes.
type Metrics struct {
	SuccessfulValidations    uint64
	SignatureFailures        uint64
	TemporalCouplingFailures uint64
	CrossBindingFailures     uint64
	ReplayedPairs            uint64
	UnusableObservations     uint64
}

// Validator decides whether two observations from independent channels are
// one coupled physical event. It is safe for concurrent use; each in-flight
// handshake owns its own pending slot (see Pending).
type Validator struct {
	mu       sync.Mutex
	consumed map[[32]byte]struct{}
	metrics  Metrics
	logger   *logrus.Logger
}

// NewValidator creates a channel validator with an empty consumed-pair set.
func NewValidator() *Validator {
	return &Validator{
		consumed: make(map[[32]byte]struct{}),
		logger:   logrus.StandardLogger(),
	}
}

// pairKey derives an order-independent identity for a pair of observations.
func pairKey(a, b *Observation) [32]byte {
	// Canonical ordering so (a,b) and (b,a) key identically.
	first, second := a, b
	if first.Channel > second.Channel {
		first, second = second, first
	}

	h := sha256.New()
	h.Write(first.Digest[:])
	h.Write(second.Digest[:])
	var ts [16]byte
	binary.BigEndian.PutUint64(ts[:8], uint64(first.TimestampNanos))
	binary.BigEndian.PutUint64(ts[8:], uint64(second.TimestampNanos))
	h.Write(ts[:])
	h.Write([]byte(first.SessionID))

	var key [32]byte
	copy(key[:], h.Sum(nil))
	return key
}

// ValidatePair runs the coupling decision for two observations under the
// given parameter set.
//
// Order of checks: usability, replay of a consumed pair, structural
// mismatch, signatures, correlation window, cross-binding. On success the
// pair is consumed irreversibly; a matched pair can never be reused for a
// second decision.
func (v *Validator) ValidatePair(a, b *Observation, set params.ParameterSet) (Result, error) {
	if a == nil || b == nil {
		return RejectedMismatched, errors.New("nil observation")
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	log := v.logger.WithFields(logrus.Fields{
		"function":   "ValidatePair",
		"session_id": a.SessionID,
		"channel_a":  a.Channel.String(),
		"channel_b":  b.Channel.String(),
		"window_ms":  set.CorrelationWindow.Milliseconds(),
	})

	if !a.Usable || !b.Usable {
		v.metrics.UnusableObservations++
		log.Warn("Observation rejected by quality flag")
		return RejectedUnusable, nil
	}

	key := pairKey(a, b)
	if _, seen := v.consumed[key]; seen {
		v.metrics.ReplayedPairs++
		log.Warn("Coupling replay: pair already consumed")
		return RejectedReplayed, nil
	}

	if a.Channel == b.Channel || a.SessionID != b.SessionID {
		log.Warn("Observations do not form a cross-channel pair")
		return RejectedMismatched, nil
	}

	for _, obs := range []*Observation{a, b} {
		valid, err := crypto.Verify(obs.SignedMessage(), obs.Signature, obs.SignerKey)
		if err != nil {
			return RejectedSignatureInvalid, fmt.Errorf("observation signature check: %w", err)
		}
		if !valid {
			v.metrics.SignatureFailures++
			log.WithField("channel", obs.Channel.String()).Warn("Observation signature invalid")
			return RejectedSignatureInvalid, nil
		}
	}

	delta := a.TimestampNanos - b.TimestampNanos
	if delta < 0 {
		delta = -delta
	}
	if delta > set.CorrelationWindow.Nanoseconds() {
		v.metrics.TemporalCouplingFailures++
		log.WithField("delta_ms", delta/1e6).Warn("Observations outside correlation window")
		return RejectedOutOfWindow, nil
	}

	if a.Digest != crypto.Fingerprint(b.Payload) || b.Digest != crypto.Fingerprint(a.Payload) {
		v.metrics.CrossBindingFailures++
		log.Warn("Cross-binding digest mismatch")
		return RejectedCrossBindingFailed, nil
	}

	// Consume the pair. Irreversible by construction: the key stays in the
	// set for the lifetime of the validator.
	v.consumed[key] = struct{}{}
	v.metrics.SuccessfulValidations++
	log.Info("Observation pair coupled")

	return Coupled, nil
}

// Snapshot returns a copy of the validation counters.
func (v *Validator) Snapshot() Metrics {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.metrics
}
