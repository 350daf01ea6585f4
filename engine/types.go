/*
Package engine contains the payout reconciliation core.

PURPOSE:
  This package holds the domain types and algorithms that decide which
  timesheet entries are payable, what each one is worth, and how completed
  payments are recorded. It has no I/O of its own: rate directories, the
  timesheet provider, the payment gateway, and the ledger store are all
  collaborators passed in behind interfaces.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money / Hours: exact decimal quantities (never floats)
  - RateEntry: a worker's pay rate and payment receiver
  - TimesheetEntry: one recorded block of worked time
  - LedgerRecord: one completed payment, as persisted
  - Outcome / Report: per-entry and per-batch reconciliation results

DESIGN PRINCIPLES:
  1. Precision: decimal.Decimal end to end; rounding is a wire concern
  2. Type Safety: WorkerID and ReceiverID cannot be mixed up
  3. Read-only inputs: timesheets and rates are never mutated by the engine
  4. Auditability: every outcome carries a machine-readable reason

SEE ALSO:
  - reconcile.go: The driver that produces outcomes from a batch
  - ledger.go: Append-only persistence interface
  - errors.go: Error taxonomy
*/
package engine

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

// WorkerID identifies a worker in the time-tracking provider.
type WorkerID string

// ReceiverID identifies the payment destination for a worker. It is opaque
// to the engine and only ever handed to the payment executor and the ledger.
type ReceiverID string

// =============================================================================
// QUANTITIES - exact decimals
// =============================================================================

// Money is a monetary amount in a single implicit currency.
type Money = decimal.Decimal

// Hours is a duration expressed in decimal hours.
type Hours = decimal.Decimal

var secondsPerHour = decimal.NewFromInt(3600)

// MustMoney parses a decimal literal for tests and fixtures.
func MustMoney(s string) Money {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(fmt.Sprintf("bad money literal %q: %v", s, err))
	}
	return d
}

// =============================================================================
// RATE DIRECTORY ENTRY
// =============================================================================

// RateEntry maps a worker to its hourly rate and payment receiver.
// Loaded once per run from the rate directory; immutable for the run.
type RateEntry struct {
	WorkerID   WorkerID
	Rate       Money // currency units per hour, non-negative
	ReceiverID ReceiverID
}

// RateDirectory looks up the rate entry for a worker. Implemented by
// rates.Directory; defined here so the driver does not depend on the loader.
type RateDirectory interface {
	Lookup(id WorkerID) (RateEntry, bool)
}

// =============================================================================
// TIMESHEET ENTRY
// =============================================================================

// TimesheetEntry is one recorded block of worked time. Entries are
// constructed and validated at the provider boundary; the engine treats
// them as read-only facts.
type TimesheetEntry struct {
	WorkerID  WorkerID
	Duration  int64 // wall-clock seconds worked, non-negative
	StartedAt time.Time
	EndedAt   time.Time
}

// Fingerprint returns a stable identity for the payment this entry would
// produce: the same worker and the same shift always hash the same,
// regardless of when or how often reconciliation runs. Dedup-capable
// ledger stores key on this to prevent double payment across runs.
func (e TimesheetEntry) Fingerprint() string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s",
		e.WorkerID,
		e.StartedAt.UTC().Format(time.RFC3339),
		e.EndedAt.UTC().Format(time.RFC3339),
	)
	return hex.EncodeToString(h.Sum(nil))
}

// =============================================================================
// LEDGER RECORD - one completed payment
// =============================================================================

// LedgerRecord is the persisted form of one completed payment.
//
// Sequence, ReceiverID, Hours and Amount are the canonical audit columns.
// WorkerID, Fingerprint and PaidAt are carried by stores that support
// richer auditing and cross-run dedup; the CSV store persists only the
// canonical four.
type LedgerRecord struct {
	Sequence    int64
	ReceiverID  ReceiverID
	Hours       Hours
	Amount      Money
	WorkerID    WorkerID
	Fingerprint string
	PaidAt      time.Time
}

// =============================================================================
// OUTCOMES - per-entry reconciliation results
// =============================================================================

type OutcomeStatus string

const (
	StatusPaid    OutcomeStatus = "paid"
	StatusSkipped OutcomeStatus = "skipped"
	StatusFailed  OutcomeStatus = "failed"
)

// Machine-readable reasons attached to skipped/failed outcomes.
const (
	ReasonDurationExceedsCap = "duration_exceeds_cap"
	ReasonAlreadyPaid        = "already_paid"
	ReasonUnknownWorker      = "unknown_worker"
	ReasonPaymentFailed      = "payment_execution_failed"
)

// Outcome is the transient result of reconciling one timesheet entry.
// It is consumed immediately to build the report; it is never persisted.
type Outcome struct {
	Status     OutcomeStatus
	Reason     string // set for skipped/failed
	WorkerID   WorkerID
	ReceiverID ReceiverID // set once the rate lookup succeeded
	Amount     Money      // set for paid
	Hours      Hours      // set for paid
	Detail     string     // underlying error text, for operators
}

// =============================================================================
// REPORT - per-batch summary
// =============================================================================

// Failure describes one entry that could not be paid, with enough context
// for an operator to chase it down.
type Failure struct {
	WorkerID   WorkerID   `json:"worker_id"`
	ReceiverID ReceiverID `json:"receiver_id,omitempty"`
	Reason     string     `json:"reason"`
	Detail     string     `json:"detail,omitempty"`
}

// Gap describes the most dangerous state the engine can reach: the
// executor confirmed that money moved but the ledger append failed, so
// the payment is unrecorded. Gaps demand manual follow-up and are
// reported separately from ordinary failures.
type Gap struct {
	WorkerID   WorkerID   `json:"worker_id"`
	ReceiverID ReceiverID `json:"receiver_id"`
	Amount     Money      `json:"amount"`
	Hours      Hours      `json:"hours"`
	Detail     string     `json:"detail"`
}

// Report summarises one reconciliation run.
type Report struct {
	Paid     int       `json:"paid"`
	Skipped  int       `json:"skipped"`
	Failed   int       `json:"failed"`
	Failures []Failure `json:"failures,omitempty"`
	Gaps     []Gap     `json:"gaps,omitempty"`
	Outcomes []Outcome `json:"-"`
}
