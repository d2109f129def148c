// Package protocol implements the beamlink handshake and session state
// machine. It orchestrates the crypto engine and, for long-range sessions,
// the coupled-channel validator, and is the single entry point used by the
// transport collaborators.
//
// All state is scoped to a session and destroyed with it; the engine holds
// an arena of sessions keyed by session identifier with per-entry exclusive
// access. The engine itself performs no I/O and no blocking waits; callers
// supply timeouts through contexts.
package protocol

// State is the position of a session in the handshake state machine.
type State uint8

const (
	// StateIdle is the initial state and the resting state of a
	// long-range session awaiting channel coupling.
	StateIdle State = iota
	// StateAwaitingPeerPublicKey means the short-range offer is out and
	// the peer's payload has not yet arrived.
	StateAwaitingPeerPublicKey
	// StateKeysExchanged means session keys are derived and the channel
	// awaits acknowledgement.
	StateKeysExchanged
	// StateSecureChannelEstablished is the short-range terminal state.
	StateSecureChannelEstablished
	// StateLongRangeSecureChannel is the long-range terminal state,
	// reached directly from StateIdle after a coupled validation.
	StateLongRangeSecureChannel
	// StateError is reachable from any state; keys are wiped on entry.
	StateError
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingPeerPublicKey:
		return "awaiting_peer_public_key"
	case StateKeysExchanged:
		return "keys_exchanged"
	case StateSecureChannelEstablished:
		return "secure_channel_established"
	case StateLongRangeSecureChannel:
		return "long_range_secure_channel"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

// Established reports whether the state carries an active secure channel.
func (s State) Established() bool {
	return s == StateSecureChannelEstablished || s == StateLongRangeSecureChannel
}

// Terminal reports whether the state ends the handshake lifecycle.
func (s State) Terminal() bool {
	return s.Established() || s == StateError
}

// Mode selects the protocol variant for a session.
type Mode uint8

const (
	// ModeShortRange is the three-step nonce-echo handshake.
	ModeShortRange Mode = iota
	// ModeLongRange authenticates through a coupled channel pair.
	ModeLongRange
)

// String returns a human-readable mode name.
func (m Mode) String() string {
	if m == ModeLongRange {
		return "long_range"
	}
	return "short_range"
}
