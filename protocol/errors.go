package protocol

import "errors"

// Protocol errors are recovered locally by rejecting the input; the session
// escalates to StateError only where noted. Cryptographic errors always fail
// closed. No error carries key material or plaintext, only a symbolic kind
// and the session identifier at the call site.
var (
	// ErrInvalidStateTransition indicates an operation undefined for the
	// session's current state. The session is left unchanged.
	ErrInvalidStateTransition = errors.New("invalid state transition")

	// ErrMalformedPayload indicates a wire field outside its declared
	// length or range, rejected before any cryptographic verification.
	ErrMalformedPayload = errors.New("malformed payload")

	// ErrSignatureInvalid indicates the peer's signature over the echoed
	// nonce failed to verify.
	ErrSignatureInvalid = errors.New("peer signature invalid")

	// ErrNonceMismatch indicates the peer echoed a nonce that does not
	// match this handshake attempt.
	ErrNonceMismatch = errors.New("handshake nonce mismatch")

	// ErrNonceReplayed indicates a handshake nonce that was accepted once
	// before.
	ErrNonceReplayed = errors.New("handshake nonce replayed")

	// ErrCouplingFailed indicates the channel validator rejected the
	// observation pair; the session stays idle and the caller may retry
	// with a fresh nonce.
	ErrCouplingFailed = errors.New("channel coupling failed")

	// ErrReplayDetected indicates an inbound sequence number at or below
	// the last accepted one, rejected without decryption.
	ErrReplayDetected = errors.New("replayed message detected")

	// ErrSequenceOutOfWindow indicates an inbound sequence number beyond
	// the forward tolerance window, rejected without decryption.
	ErrSequenceOutOfWindow = errors.New("sequence number out of window")

	// ErrSessionNotFound indicates an unknown or already destroyed
	// session identifier.
	ErrSessionNotFound = errors.New("session not found")

	// ErrSessionExpired indicates the session exceeded its inactivity
	// limit and was force-transitioned to StateError.
	ErrSessionExpired = errors.New("session expired")

	// ErrNotEstablished indicates message traffic on a channel that is
	// not yet established.
	ErrNotEstablished = errors.New("secure channel not established")
)
