// Package memory provides an in-memory ledger implementation (for testing/dev).
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/warp/payout-engine/engine"
)

// =============================================================================
// MEMORY LEDGER - In-memory implementation (for testing/dev)
// =============================================================================

// Ledger keeps records in a slice. Implements engine.Ledger and
// engine.DedupLedger. FailNextAppend lets tests inject exactly one append
// failure to exercise the reconciliation-gap path.
type Ledger struct {
	mu           sync.RWMutex
	records      []engine.LedgerRecord
	fingerprints map[string]bool
	nextSeq      int64

	FailNextAppend error
}

func New() *Ledger {
	return &Ledger{fingerprints: make(map[string]bool)}
}

// Append assigns the next sequence and stores the record.
func (l *Ledger) Append(_ context.Context, rec engine.LedgerRecord) (engine.LedgerRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.FailNextAppend; err != nil {
		l.FailNextAppend = nil
		return engine.LedgerRecord{}, err
	}
	if rec.Fingerprint != "" && l.fingerprints[rec.Fingerprint] {
		return engine.LedgerRecord{}, engine.ErrAlreadyPaid
	}

	rec.Sequence = l.nextSeq
	l.nextSeq++
	if rec.PaidAt.IsZero() {
		rec.PaidAt = time.Now().UTC()
	}
	l.records = append(l.records, rec)
	if rec.Fingerprint != "" {
		l.fingerprints[rec.Fingerprint] = true
	}
	return rec, nil
}

// AlreadyPaid reports whether the fingerprint has been recorded.
func (l *Ledger) AlreadyPaid(_ context.Context, fingerprint string) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.fingerprints[fingerprint], nil
}

// Records returns a copy of all records in append order.
func (l *Ledger) Records() []engine.LedgerRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]engine.LedgerRecord, len(l.records))
	copy(out, l.records)
	return out
}
