package protocol

import "time"

// EventType classifies the lifecycle events emitted for the audit
// collaborator. Events carry only the session identifier, a timestamp, and a
// symbolic outcome; never key material or payload contents.
type EventType uint8

const (
	// EventHandshakeInitiated fires when a handshake attempt starts.
	EventHandshakeInitiated EventType = iota
	// EventHandshakeCompleted fires when a secure channel establishes.
	EventHandshakeCompleted
	// EventCouplingRejected fires when the channel validator rejects an
	// observation pair.
	EventCouplingRejected
	// EventFallbackTriggered fires when a long-range session downgrades.
	EventFallbackTriggered
	// EventSessionTornDown fires on explicit teardown.
	EventSessionTornDown
)

// String returns a human-readable event name.
func (t EventType) String() string {
	switch t {
	case EventHandshakeInitiated:
		return "handshake-initiated"
	case EventHandshakeCompleted:
		return "handshake-completed"
	case EventCouplingRejected:
		return "coupling-rejected"
	case EventFallbackTriggered:
		return "fallback-triggered"
	case EventSessionTornDown:
		return "session-torn-down"
	default:
		return "unknown"
	}
}

// Event is one emitted lifecycle record.
type Event struct {
	Type      EventType
	SessionID string
	Timestamp time.Time
	Outcome   string
}

// EventCallback receives emitted events. Callbacks run synchronously on the
// emitting goroutine and must not block.
type EventCallback func(Event)
