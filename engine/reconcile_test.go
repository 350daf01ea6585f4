package engine_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payout-engine/engine"
	"github.com/warp/payout-engine/payment"
	"github.com/warp/payout-engine/store/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type fakeDirectory map[engine.WorkerID]engine.RateEntry

func (d fakeDirectory) Lookup(id engine.WorkerID) (engine.RateEntry, bool) {
	e, ok := d[id]
	return e, ok
}

func standardRates() fakeDirectory {
	return fakeDirectory{
		"W1": {WorkerID: "W1", Rate: engine.MustMoney("20.0"), ReceiverID: "R1"},
		"W2": {WorkerID: "W2", Rate: engine.MustMoney("35.5"), ReceiverID: "R2"},
	}
}

func entry(worker engine.WorkerID, durationSeconds int64) engine.TimesheetEntry {
	start := time.Date(2026, time.August, 30, 9, 0, 0, 0, time.UTC)
	return engine.TimesheetEntry{
		WorkerID:  worker,
		Duration:  durationSeconds,
		StartedAt: start,
		EndedAt:   start.Add(time.Duration(durationSeconds) * time.Second),
	}
}

// appendOnly hides the memory ledger's dedup capability, modelling the
// base tabular-file store.
type appendOnly struct{ inner *memory.Ledger }

func (a appendOnly) Append(ctx context.Context, rec engine.LedgerRecord) (engine.LedgerRecord, error) {
	return a.inner.Append(ctx, rec)
}

// =============================================================================
// HAPPY PATH
// =============================================================================

func TestRun_OneHourPaid(t *testing.T) {
	// GIVEN: W1 at rate 20.0 with receiver R1, one 1-hour entry
	// WHEN: The executor succeeds
	// THEN: Paid(amount=20, hours=1, receiver=R1) and exactly one ledger record

	ledger := memory.New()
	executor := &payment.Stub{}
	r := engine.NewReconciler(executor, ledger, engine.DefaultEligibility())

	report, err := r.Run(context.Background(), standardRates(), []engine.TimesheetEntry{entry("W1", 3600)})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Paid)
	assert.Equal(t, 0, report.Skipped)
	assert.Equal(t, 0, report.Failed)

	records := ledger.Records()
	require.Len(t, records, 1)
	assert.Equal(t, engine.ReceiverID("R1"), records[0].ReceiverID)
	assert.True(t, records[0].Hours.Equal(engine.MustMoney("1")), "hours = %s", records[0].Hours)
	assert.True(t, records[0].Amount.Equal(engine.MustMoney("20")), "amount = %s", records[0].Amount)

	require.Len(t, report.Outcomes, 1)
	outcome := report.Outcomes[0]
	assert.Equal(t, engine.StatusPaid, outcome.Status)
	assert.Equal(t, engine.ReceiverID("R1"), outcome.ReceiverID)
	assert.True(t, outcome.Amount.Equal(engine.MustMoney("20")))
	assert.True(t, outcome.Hours.Equal(engine.MustMoney("1")))
}

func TestRun_LedgerWritesMatchPaidOutcomes(t *testing.T) {
	// GIVEN: A mixed batch - payable, over-cap, unknown worker, failing receiver
	// WHEN: The batch runs
	// THEN: #ledger records == #Paid outcomes, exactly

	ledger := memory.New()
	executor := &payment.Stub{
		FailReceivers: map[engine.ReceiverID]error{"R2": errors.New("card declined")},
	}
	r := engine.NewReconciler(executor, ledger, engine.DefaultEligibility())

	batch := []engine.TimesheetEntry{
		entry("W1", 3600),  // paid
		entry("W1", 28801), // skipped: over cap
		entry("W9", 1800),  // failed: unknown worker
		entry("W2", 7200),  // failed: executor rejects R2
	}

	report, err := r.Run(context.Background(), standardRates(), batch)
	require.NoError(t, err)

	assert.Equal(t, 1, report.Paid)
	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, 2, report.Failed)
	assert.Len(t, ledger.Records(), report.Paid)
}

// =============================================================================
// ELIGIBILITY
// =============================================================================

func TestRun_OverCapEntrySkipped(t *testing.T) {
	// GIVEN: An entry of 28801 seconds (just over 8 hours)
	// WHEN: The batch runs
	// THEN: Skipped, zero executor calls, zero ledger writes

	ledger := memory.New()
	executor := &payment.Stub{}
	r := engine.NewReconciler(executor, ledger, engine.DefaultEligibility())

	report, err := r.Run(context.Background(), standardRates(), []engine.TimesheetEntry{entry("W1", 28801)})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Skipped)
	assert.Equal(t, engine.ReasonDurationExceedsCap, report.Outcomes[0].Reason)
	assert.Empty(t, executor.Calls(), "executor must not be invoked for skipped entries")
	assert.Empty(t, ledger.Records())
}

func TestRun_ExactlyAtCapIsPayable(t *testing.T) {
	ledger := memory.New()
	executor := &payment.Stub{}
	r := engine.NewReconciler(executor, ledger, engine.DefaultEligibility())

	report, err := r.Run(context.Background(), standardRates(), []engine.TimesheetEntry{entry("W1", 8*3600)})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Paid)
}

func TestRun_ConfigurableCap(t *testing.T) {
	// GIVEN: A deployment that caps entries at 4 hours
	// WHEN: A 5-hour entry arrives
	// THEN: Skipped under the tuned policy

	ledger := memory.New()
	executor := &payment.Stub{}
	policy := engine.EligibilityPolicy{MaxEntryDuration: 4 * time.Hour}
	r := engine.NewReconciler(executor, ledger, policy)

	report, err := r.Run(context.Background(), standardRates(), []engine.TimesheetEntry{entry("W1", 5*3600)})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Skipped)
	assert.Empty(t, executor.Calls())
}

// =============================================================================
// FAILURE ISOLATION
// =============================================================================

func TestRun_UnknownWorkerFailsEntryNotBatch(t *testing.T) {
	// GIVEN: W9 has no rate entry, followed by a valid W1 entry
	// WHEN: The batch runs
	// THEN: W9 fails with unknown_worker, no ledger write, W1 is still paid

	ledger := memory.New()
	executor := &payment.Stub{}
	r := engine.NewReconciler(executor, ledger, engine.DefaultEligibility())

	report, err := r.Run(context.Background(), standardRates(), []engine.TimesheetEntry{
		entry("W9", 1800),
		entry("W1", 3600),
	})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 1, report.Paid)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, engine.WorkerID("W9"), report.Failures[0].WorkerID)
	assert.Equal(t, engine.ReasonUnknownWorker, report.Failures[0].Reason)

	records := ledger.Records()
	require.Len(t, records, 1)
	assert.Equal(t, engine.ReceiverID("R1"), records[0].ReceiverID)
}

func TestRun_ExecutorFailureLeavesNoLedgerTrace(t *testing.T) {
	// GIVEN: A valid, eligible entry whose transfer is rejected
	// WHEN: The batch runs
	// THEN: Failed(payment_execution_failed), zero ledger writes, run completes

	ledger := memory.New()
	executor := &payment.Stub{Err: errors.New("gateway timeout")}
	r := engine.NewReconciler(executor, ledger, engine.DefaultEligibility())

	report, err := r.Run(context.Background(), standardRates(), []engine.TimesheetEntry{entry("W1", 3600)})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Failed)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, engine.ReasonPaymentFailed, report.Failures[0].Reason)
	assert.Equal(t, engine.ReceiverID("R1"), report.Failures[0].ReceiverID)
	assert.Contains(t, report.Failures[0].Detail, "gateway timeout")
	assert.Empty(t, ledger.Records(), "no ledger entry for a failed execution attempt")
}

func TestRun_EmptyBatch(t *testing.T) {
	ledger := memory.New()
	r := engine.NewReconciler(&payment.Stub{}, ledger, engine.DefaultEligibility())

	report, err := r.Run(context.Background(), standardRates(), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Paid+report.Skipped+report.Failed)
}

// =============================================================================
// CROSS-RUN IDEMPOTENCY (dedup-capable store)
// =============================================================================

func TestRun_RerunAfterPartialFailureOnlyPaysTheRest(t *testing.T) {
	// GIVEN: First run pays W1 but W2's transfer fails
	// WHEN: The same batch re-runs after the executor is fixed
	// THEN: Only W2 is paid the second time; W1 is skipped as already paid

	ledger := memory.New()
	batch := []engine.TimesheetEntry{
		entry("W1", 3600),
		entry("W2", 3600),
	}

	broken := &payment.Stub{
		FailReceivers: map[engine.ReceiverID]error{"R2": errors.New("outage")},
	}
	r1 := engine.NewReconciler(broken, ledger, engine.DefaultEligibility())
	report1, err := r1.Run(context.Background(), standardRates(), batch)
	require.NoError(t, err)
	require.Equal(t, 1, report1.Paid)
	require.Equal(t, 1, report1.Failed)

	fixed := &payment.Stub{}
	r2 := engine.NewReconciler(fixed, ledger, engine.DefaultEligibility())
	report2, err := r2.Run(context.Background(), standardRates(), batch)
	require.NoError(t, err)

	assert.Equal(t, 1, report2.Paid)
	assert.Equal(t, 1, report2.Skipped)
	require.Len(t, report2.Outcomes, 2)
	assert.Equal(t, engine.ReasonAlreadyPaid, report2.Outcomes[0].Reason)

	// W1 was paid exactly once across both runs.
	require.Len(t, fixed.Calls(), 1)
	assert.Equal(t, engine.ReceiverID("R2"), fixed.Calls()[0].Receiver)
	assert.Len(t, ledger.Records(), 2)
}

func TestRun_WithoutDedupStoreRerunPaysAgain(t *testing.T) {
	// GIVEN: A store without the dedup capability (the base CSV design)
	// WHEN: The same batch runs twice
	// THEN: The payment is executed twice - the documented base-design gap

	inner := memory.New()
	ledger := appendOnly{inner: inner}
	executor := &payment.Stub{}
	r := engine.NewReconciler(executor, ledger, engine.DefaultEligibility())

	batch := []engine.TimesheetEntry{entry("W1", 3600)}
	_, err := r.Run(context.Background(), standardRates(), batch)
	require.NoError(t, err)
	_, err = r.Run(context.Background(), standardRates(), batch)
	require.NoError(t, err)

	assert.Len(t, executor.Calls(), 2)
}

// =============================================================================
// RECONCILIATION GAP
// =============================================================================

func TestRun_AppendFailureAfterPaymentIsReportedAsGap(t *testing.T) {
	// GIVEN: The executor succeeds but the ledger append fails
	// WHEN: The batch runs
	// THEN: The payment counts as paid, a gap is reported, and the run continues

	ledger := memory.New()
	ledger.FailNextAppend = errors.New("disk full")
	executor := &payment.Stub{}
	r := engine.NewReconciler(executor, ledger, engine.DefaultEligibility())

	report, err := r.Run(context.Background(), standardRates(), []engine.TimesheetEntry{
		entry("W1", 3600),
		entry("W2", 3600),
	})
	require.NoError(t, err)

	assert.Equal(t, 2, report.Paid, "money moved for both entries")
	require.Len(t, report.Gaps, 1)
	gap := report.Gaps[0]
	assert.Equal(t, engine.WorkerID("W1"), gap.WorkerID)
	assert.Equal(t, engine.ReceiverID("R1"), gap.ReceiverID)
	assert.True(t, gap.Amount.Equal(engine.MustMoney("20")))
	assert.Contains(t, gap.Detail, "disk full")

	// Only the second entry made it into the ledger.
	require.Len(t, ledger.Records(), 1)
	assert.Equal(t, engine.ReceiverID("R2"), ledger.Records()[0].ReceiverID)
}

// =============================================================================
// ORDERING
// =============================================================================

func TestRun_SequencesFollowInputOrder(t *testing.T) {
	// GIVEN: Three payable entries in upstream order
	// WHEN: The batch runs
	// THEN: Ledger sequences are assigned in that order, gap-free

	ledger := memory.New()
	executor := &payment.Stub{}
	r := engine.NewReconciler(executor, ledger, engine.DefaultEligibility())

	base := time.Date(2026, time.August, 30, 8, 0, 0, 0, time.UTC)
	var batch []engine.TimesheetEntry
	for i := 0; i < 3; i++ {
		start := base.Add(time.Duration(i) * time.Hour)
		batch = append(batch, engine.TimesheetEntry{
			WorkerID:  "W1",
			Duration:  600,
			StartedAt: start,
			EndedAt:   start.Add(10 * time.Minute),
		})
	}

	_, err := r.Run(context.Background(), standardRates(), batch)
	require.NoError(t, err)

	records := ledger.Records()
	require.Len(t, records, 3)
	for i, rec := range records {
		assert.Equal(t, int64(i), rec.Sequence)
	}
}
