package crypto

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// NonceLedger records handshake nonces that have already been accepted so a
// nonce accepted once by a peer is never accepted again.
//
// The ledger keeps a map of used nonces with their expiry timestamps and
// sweeps expired entries on each insertion. Entries live only as long as a
// handshake could plausibly still be replayed; the ledger is purely
// in-memory and scoped to the process.
//
// Example usage:
//
//	ledger := crypto.NewNonceLedger()
//	if ledger.CheckAndStore(nonce, time.Now().Unix()) {
//	    // fresh nonce, proceed with verification
//	} else {
//	    // replayed nonce, reject before any cryptographic work
//	}
//
// The ledger is safe for concurrent use.
type NonceLedger struct {
	mu           sync.Mutex
	nonces       map[HandshakeNonce]int64 // nonce -> expiry timestamp
	window       time.Duration
	timeProvider TimeProvider
	logger       *logrus.Logger
}

// defaultNonceWindow covers the 5 minute handshake window plus a minute of
// forward clock drift.
const defaultNonceWindow = 6 * time.Minute

// NewNonceLedger creates an in-memory nonce ledger with the default
// retention window.
func NewNonceLedger() *NonceLedger {
	return NewNonceLedgerWithTimeProvider(nil)
}

// NewNonceLedgerWithTimeProvider creates a nonce ledger with a custom
// TimeProvider. Pass nil to use the default wall clock.
func NewNonceLedgerWithTimeProvider(timeProvider TimeProvider) *NonceLedger {
	if timeProvider == nil {
		timeProvider = DefaultTimeProvider{}
	}

	return &NonceLedger{
		nonces:       make(map[HandshakeNonce]int64),
		window:       defaultNonceWindow,
		timeProvider: timeProvider,
		logger:       logrus.StandardLogger(),
	}
}

// CheckAndStore checks whether the nonce was already accepted and records it
// if not. Returns true if the nonce is new, false if a replay was detected.
func (nl *NonceLedger) CheckAndStore(nonce HandshakeNonce, timestamp int64) bool {
	nl.mu.Lock()
	defer nl.mu.Unlock()

	nl.sweepLocked()

	if _, exists := nl.nonces[nonce]; exists {
		nl.logger.WithFields(logrus.Fields{
			"nonce_prefix": fmt.Sprintf("%x", nonce[:8]),
			"timestamp":    timestamp,
		}).Warn("Replay detected: handshake nonce already used")
		return false
	}

	nl.nonces[nonce] = timestamp + int64(nl.window.Seconds())
	return true
}

// Release forgets a nonce that belonged to a cancelled handshake so its
// memory does not accumulate. A released nonce is still a fresh value and
// may legitimately never be seen again.
func (nl *NonceLedger) Release(nonce HandshakeNonce) {
	nl.mu.Lock()
	defer nl.mu.Unlock()
	delete(nl.nonces, nonce)
}

// Len reports the number of nonces currently retained.
func (nl *NonceLedger) Len() int {
	nl.mu.Lock()
	defer nl.mu.Unlock()
	return len(nl.nonces)
}

// sweepLocked drops entries whose retention window has passed.
// Caller must hold nl.mu.
func (nl *NonceLedger) sweepLocked() {
	now := nl.timeProvider.Now().Unix()
	for nonce, expiry := range nl.nonces {
		if expiry < now {
			delete(nl.nonces, nonce)
		}
	}
}
