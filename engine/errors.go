/*
errors.go - Centralized error types for the payout engine

PURPOSE:
  All engine error types in one place. Collaborator packages wrap these
  with additional context; callers classify with errors.Is / errors.As.

ERROR CATEGORIES:
  1. Fatal errors    - Abort the whole run before any money moves
                       (a malformed rate source poisons every calculation)
  2. Per-entry errors - Isolate to one timesheet entry's Failed outcome;
                       the batch always continues
  3. Gap errors      - Money moved but the ledger write failed; surfaced
                       loudly in the report, never retried

USAGE:
  if errors.Is(err, engine.ErrMalformedRateSource) { os.Exit(1) }

  var unknown *engine.UnknownWorkerError
  if errors.As(err, &unknown) { ... unknown.WorkerID ... }
*/
package engine

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrMalformedRateSource is returned when the rate directory cannot be
	// parsed. Fatal: no payment may be attempted without trusted rates.
	ErrMalformedRateSource = errors.New("malformed rate source")

	// ErrUnknownWorker is returned when a timesheet's worker has no rate
	// directory entry. Per-entry: a data-integrity problem with one entry,
	// never silently skipped and never fatal to the batch.
	ErrUnknownWorker = errors.New("unknown worker")

	// ErrPaymentExecutionFailed is returned when the payment executor did
	// not confirm that money moved. Per-entry; no ledger side effect.
	ErrPaymentExecutionFailed = errors.New("payment execution failed")

	// ErrLedgerWriteFailed is returned when a ledger append did not complete.
	ErrLedgerWriteFailed = errors.New("ledger write failed")

	// ErrAlreadyPaid is returned by dedup-capable stores when a record with
	// the same payment fingerprint already exists.
	ErrAlreadyPaid = errors.New("payment already recorded")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// MalformedRateSourceError reports where in the rate source parsing failed.
type MalformedRateSourceError struct {
	Line   int
	Column string
	Err    error
}

func (e *MalformedRateSourceError) Error() string {
	if e.Column != "" {
		return fmt.Sprintf("rate source line %d, column %q: %v", e.Line, e.Column, e.Err)
	}
	return fmt.Sprintf("rate source line %d: %v", e.Line, e.Err)
}

func (e *MalformedRateSourceError) Unwrap() error { return ErrMalformedRateSource }

// UnknownWorkerError identifies the worker missing from the rate directory.
type UnknownWorkerError struct {
	WorkerID WorkerID
}

func (e *UnknownWorkerError) Error() string {
	return fmt.Sprintf("no rate entry for worker %q", e.WorkerID)
}

func (e *UnknownWorkerError) Unwrap() error { return ErrUnknownWorker }

// ReconciliationGapError is the money-moved-but-unrecorded state: the
// executor reported success and the subsequent ledger append failed.
type ReconciliationGapError struct {
	WorkerID   WorkerID
	ReceiverID ReceiverID
	Amount     Money
	Err        error
}

func (e *ReconciliationGapError) Error() string {
	return fmt.Sprintf("RECONCILIATION GAP: paid %s to receiver %q (worker %q) but ledger append failed: %v",
		e.Amount, e.ReceiverID, e.WorkerID, e.Err)
}

func (e *ReconciliationGapError) Unwrap() error { return ErrLedgerWriteFailed }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsFatal returns true if the error must abort the run before any payment.
func IsFatal(err error) bool {
	return errors.Is(err, ErrMalformedRateSource)
}

// IsPerEntry returns true if the error isolates to a single entry's
// Failed outcome.
func IsPerEntry(err error) bool {
	return errors.Is(err, ErrUnknownWorker) ||
		errors.Is(err, ErrPaymentExecutionFailed)
}
