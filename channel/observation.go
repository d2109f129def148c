// Package channel implements the coupled-channel validator.
//
// Long-range sessions are authenticated by two independent physical beams
// carrying one logical event. The validator consumes signed observations from
// both channels and decides whether they represent a single, live, un-relayed
// transmission: signatures must verify, the timestamps must fall within the
// tier's correlation window, and each channel's digest must cross-bind to the
// other channel's payload. A matched pair is consumed irreversibly so it can
// never authenticate a second session.
//
// The two channels are independently clocked; timestamps are caller-supplied
// local time. The correlation window, not clock synchronization, is the
// security control.
package channel

import (
	"encoding/binary"

	"github.com/beamlink/beamlink/crypto"
)

// ChannelID identifies one of the physical transport beams.
type ChannelID uint8

const (
	// ChannelAcoustic is the ultrasonic beam.
	ChannelAcoustic ChannelID = iota + 1
	// ChannelOptical is the modulated light beam.
	ChannelOptical
	// ChannelVisual is the rendered visual code.
	ChannelVisual
)

// String returns a human-readable channel name.
func (c ChannelID) String() string {
	switch c {
	case ChannelAcoustic:
		return "acoustic"
	case ChannelOptical:
		return "optical"
	case ChannelVisual:
		return "visual"
	default:
		return "unknown"
	}
}

// Observation records one physical transmission event on one channel, as
// reported by the transport collaborator.
type Observation struct {
	// Channel is the beam the event was observed on.
	Channel ChannelID
	// SessionID ties the observation to one in-flight handshake.
	SessionID string
	// TimestampNanos is the transmitting timestamp in local nanoseconds.
	// Trusted-enough local time; see the package comment.
	TimestampNanos int64
	// Payload is the raw transmitted content.
	Payload []byte
	// Digest is the content digest carried on this channel. For a coupled
	// pair it must equal the fingerprint of the other channel's payload.
	Digest [crypto.FingerprintSize]byte
	// Signature covers (digest, timestamp, session identifier).
	Signature crypto.Signature
	// SignerKey is the Ed25519 key the signature is checked against.
	SignerKey [32]byte
	// Usable is the externally supplied quality flag. Unusable
	// observations are rejected before any cryptographic work.
	Usable bool
}

// SignedMessage returns the byte string the observation signature covers:
// digest, big-endian timestamp, session identifier.
func (o *Observation) SignedMessage() []byte {
	msg := make([]byte, 0, crypto.FingerprintSize+8+len(o.SessionID))
	msg = append(msg, o.Digest[:]...)
	msg = binary.BigEndian.AppendUint64(msg, uint64(o.TimestampNanos))
	msg = append(msg, o.SessionID...)
	return msg
}

// SignObservation produces the signature for an outbound observation.
func SignObservation(o *Observation, seed [32]byte) error {
	sig, err := crypto.Sign(o.SignedMessage(), seed)
	if err != nil {
		return err
	}
	o.Signature = sig
	return nil
}
