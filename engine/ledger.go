/*
ledger.go - Append-only payout ledger

PURPOSE:
  The Ledger is the audit trail of money that actually moved. Every
  successful executor call produces exactly one record here, before the
  next timesheet entry is processed.

CRITICAL INVARIANTS:
  1. APPEND-ONLY: No Update, No Delete. EVER.
  2. TRUTHFUL: A record exists if and only if the executor confirmed the
     transfer. A failed payment attempt leaves no trace here.
  3. ORDERED: Sequence numbers are assigned at write time, monotonically,
     under mutual exclusion inside the store.
  4. ATOMIC: Either the full record is durably stored or none of it is.

WHY APPEND-ONLY?
  - Audit: the ledger must explain every cent that left the account
  - Compliance: payout records are immutable by regulation
  - Correctness: no partial update can corrupt history

DEDUP (optional capability):
  Stores that persist payment fingerprints additionally implement
  DedupLedger. The driver discovers the capability by type assertion and
  checks AlreadyPaid before invoking the executor, which makes the whole
  check-then-pay-then-append sequence idempotent across re-runs. Stores
  without the capability (the plain CSV file) simply skip the check.

SEE ALSO:
  - store/csvledger: base tabular-file implementation
  - store/sqlite:    dedup-capable implementation with run history
  - store/memory:    test double
*/
package engine

import "context"

// Ledger persists completed payments.
//
// INVARIANTS:
//   - Append-only: no update, no delete.
//   - Append assigns the record's sequence number and returns the fully
//     populated record.
//   - Appends are atomic and serialized by the implementation.
type Ledger interface {
	// Append durably stores a record for a payment that already succeeded.
	// The Sequence field of the argument is ignored; the store assigns it.
	Append(ctx context.Context, rec LedgerRecord) (LedgerRecord, error)
}

// DedupLedger is an optional capability of Ledger implementations that
// persist payment fingerprints.
type DedupLedger interface {
	// AlreadyPaid reports whether a record with this fingerprint exists.
	AlreadyPaid(ctx context.Context, fingerprint string) (bool, error)
}
