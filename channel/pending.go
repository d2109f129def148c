package channel

import (
	"errors"
	"sync"
	"time"
)

// ErrSlotOccupied indicates a second observation arrived for a channel that
// already holds a pending observation for this handshake.
var ErrSlotOccupied = errors.New("pending observation slot occupied")

// Pending holds the at-most-two pending observations for one in-flight
// long-range handshake, one per channel. The slot is exclusive to its
// handshake; concurrent handshakes never share one.
type Pending struct {
	mu        sync.Mutex
	sessionID string
	byChannel map[ChannelID]*Observation
}

// NewPending creates an empty pending slot bound to a session.
func NewPending(sessionID string) *Pending {
	return &Pending{
		sessionID: sessionID,
		byChannel: make(map[ChannelID]*Observation, 2),
	}
}

// SessionID returns the handshake the slot belongs to.
func (p *Pending) SessionID() string { return p.sessionID }

// Put stores an observation and reports whether a cross-channel pair is now
// complete. Observations for a session other than the slot's are rejected.
func (p *Pending) Put(obs *Observation) (complete bool, err error) {
	if obs == nil {
		return false, errors.New("nil observation")
	}
	if obs.SessionID != p.sessionID {
		return false, errors.New("observation belongs to a different session")
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if _, exists := p.byChannel[obs.Channel]; exists {
		return false, ErrSlotOccupied
	}
	p.byChannel[obs.Channel] = obs

	return len(p.byChannel) == 2, nil
}

// Take removes and returns the stored pair. Returns nils when the pair is
// incomplete. After Take the slot is empty and may be reused within the same
// handshake attempt.
func (p *Pending) Take() (a, b *Observation) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.byChannel) != 2 {
		return nil, nil
	}
	for ch, obs := range p.byChannel {
		if a == nil {
			a = obs
		} else {
			b = obs
		}
		delete(p.byChannel, ch)
	}
	return a, b
}

// ExpireOlderThan discards pending observations whose timestamps are older
// than the given cutoff, returning how many were dropped. Called when the
// correlation window for the handshake lapses.
func (p *Pending) ExpireOlderThan(cutoff time.Time) int {
	p.mu.Lock()
	defer p.mu.Unlock()

	dropped := 0
	cutoffNanos := cutoff.UnixNano()
	for ch, obs := range p.byChannel {
		if obs.TimestampNanos < cutoffNanos {
			delete(p.byChannel, ch)
			dropped++
		}
	}
	return dropped
}

// Clear discards any pending observations without residue leaking into a
// later attempt.
func (p *Pending) Clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for ch := range p.byChannel {
		delete(p.byChannel, ch)
	}
}
