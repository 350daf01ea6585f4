/*
reconcile.go - The reconciliation driver

PURPOSE:
  Orchestrates one batch: for each timesheet entry, in input order,
  eligibility -> dedup check -> rate lookup -> calculate -> pay -> ledger
  append. Emits a report of paid/skipped/failed outcomes.

FAILURE ISOLATION (the central property):
  One bad worker or one failed transfer must never block payment to the
  rest of the batch. Per-entry errors are recorded and the loop continues;
  the run always completes and always produces a report.

THE ONE RULE THAT MATTERS:
  The ledger only ever reflects money that actually moved. No append
  before the executor confirms, and exactly one append after it does.
  If that append fails, the run does NOT pretend the payment failed -
  it reports a reconciliation gap for manual follow-up.

ORDERING:
  Entries are processed strictly one at a time, in the order given (the
  upstream fetch sorts by start time; the driver does not re-sort).
  Sequence assignment therefore needs no locking here; stores still
  serialize appends internally in case a future driver parallelizes.
*/
package engine

import (
	"context"
	"log"
)

// Executor moves money to a receiver. A nil return means the transfer was
// confirmed; any error (including a context timeout surfaced by the
// implementation) means it was not, and the entry fails without touching
// the ledger.
type Executor interface {
	Pay(ctx context.Context, receiver ReceiverID, amount Money) error
}

// Reconciler drives reconciliation runs. Construct with NewReconciler;
// all collaborators are explicit, nothing is global.
type Reconciler struct {
	executor    Executor
	ledger      Ledger
	eligibility EligibilityPolicy
}

// NewReconciler wires a driver from its collaborators.
func NewReconciler(executor Executor, ledger Ledger, eligibility EligibilityPolicy) *Reconciler {
	return &Reconciler{
		executor:    executor,
		ledger:      ledger,
		eligibility: eligibility,
	}
}

// Run reconciles one batch of timesheet entries against the rate
// directory. It never aborts on a per-entry failure; the returned error is
// reserved for future fatal conditions and is nil in the current design.
func (r *Reconciler) Run(ctx context.Context, rates RateDirectory, timesheets []TimesheetEntry) (*Report, error) {
	report := &Report{}
	dedup, _ := r.ledger.(DedupLedger)

	for _, entry := range timesheets {
		outcome, gap := r.reconcileOne(ctx, rates, dedup, entry)
		report.Outcomes = append(report.Outcomes, outcome)
		if gap != nil {
			report.Gaps = append(report.Gaps, *gap)
		}

		switch outcome.Status {
		case StatusPaid:
			report.Paid++
		case StatusSkipped:
			report.Skipped++
		case StatusFailed:
			report.Failed++
			report.Failures = append(report.Failures, Failure{
				WorkerID:   outcome.WorkerID,
				ReceiverID: outcome.ReceiverID,
				Reason:     outcome.Reason,
				Detail:     outcome.Detail,
			})
		}
	}

	log.Printf("[reconcile] run complete: paid=%d skipped=%d failed=%d gaps=%d",
		report.Paid, report.Skipped, report.Failed, len(report.Gaps))
	return report, nil
}

func (r *Reconciler) reconcileOne(ctx context.Context, rates RateDirectory, dedup DedupLedger, entry TimesheetEntry) (Outcome, *Gap) {
	// 1. Eligibility. Skipped entries never reach the calculator, the
	//    executor, or the ledger.
	if !r.eligibility.Payable(entry) {
		return Outcome{
			Status:   StatusSkipped,
			Reason:   ReasonDurationExceedsCap,
			WorkerID: entry.WorkerID,
		}, nil
	}

	// 2. Cross-run dedup, when the store supports it. A dedup store error
	//    fails safe: without a trustworthy answer we must not pay.
	if dedup != nil {
		paid, err := dedup.AlreadyPaid(ctx, entry.Fingerprint())
		if err != nil {
			return Outcome{
				Status:   StatusFailed,
				Reason:   ReasonPaymentFailed,
				WorkerID: entry.WorkerID,
				Detail:   "dedup check: " + err.Error(),
			}, nil
		}
		if paid {
			return Outcome{
				Status:   StatusSkipped,
				Reason:   ReasonAlreadyPaid,
				WorkerID: entry.WorkerID,
			}, nil
		}
	}

	// 3. Rate lookup. Absence is a data-integrity failure for this entry,
	//    never a silent skip and never fatal to the batch.
	rate, ok := rates.Lookup(entry.WorkerID)
	if !ok {
		err := &UnknownWorkerError{WorkerID: entry.WorkerID}
		log.Printf("[reconcile] %v", err)
		return Outcome{
			Status:   StatusFailed,
			Reason:   ReasonUnknownWorker,
			WorkerID: entry.WorkerID,
			Detail:   err.Error(),
		}, nil
	}

	amount, hours := Calculate(rate, entry)

	// 4. Execute the transfer. No ledger entry for a failed attempt.
	if err := r.executor.Pay(ctx, rate.ReceiverID, amount); err != nil {
		log.Printf("[reconcile] payment failed for worker %q receiver %q: %v",
			entry.WorkerID, rate.ReceiverID, err)
		return Outcome{
			Status:     StatusFailed,
			Reason:     ReasonPaymentFailed,
			WorkerID:   entry.WorkerID,
			ReceiverID: rate.ReceiverID,
			Detail:     err.Error(),
		}, nil
	}

	// 5. Money moved. Record it before touching the next entry.
	return r.recordPayment(ctx, entry, rate, amount, hours)
}

// recordPayment appends the ledger record for a confirmed transfer. An
// append failure here is the most dangerous state in the engine: money
// moved but is unrecorded. It is reported as a gap, not as a Failed
// outcome, so operators cannot mistake it for a payment that needs
// re-attempting.
func (r *Reconciler) recordPayment(ctx context.Context, entry TimesheetEntry, rate RateEntry, amount Money, hours Hours) (Outcome, *Gap) {
	_, err := r.ledger.Append(ctx, LedgerRecord{
		ReceiverID:  rate.ReceiverID,
		Hours:       hours,
		Amount:      amount,
		WorkerID:    entry.WorkerID,
		Fingerprint: entry.Fingerprint(),
	})
	if err != nil {
		gapErr := &ReconciliationGapError{
			WorkerID:   entry.WorkerID,
			ReceiverID: rate.ReceiverID,
			Amount:     amount,
			Err:        err,
		}
		log.Printf("[reconcile] ERROR %v", gapErr)
		// The payment DID happen. Count it as paid and flag the gap.
		outcome := Outcome{
			Status:     StatusPaid,
			WorkerID:   entry.WorkerID,
			ReceiverID: rate.ReceiverID,
			Amount:     amount,
			Hours:      hours,
			Detail:     gapErr.Error(),
		}
		return outcome, &Gap{
			WorkerID:   entry.WorkerID,
			ReceiverID: rate.ReceiverID,
			Amount:     amount,
			Hours:      hours,
			Detail:     err.Error(),
		}
	}

	return Outcome{
		Status:     StatusPaid,
		WorkerID:   entry.WorkerID,
		ReceiverID: rate.ReceiverID,
		Amount:     amount,
		Hours:      hours,
	}, nil
}
