package sqlite_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/payout-engine/engine"
	"github.com/warp/payout-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func payout(worker, receiver, fingerprint string) engine.LedgerRecord {
	return engine.LedgerRecord{
		WorkerID:    engine.WorkerID(worker),
		ReceiverID:  engine.ReceiverID(receiver),
		Hours:       engine.MustMoney("1"),
		Amount:      engine.MustMoney("20"),
		Fingerprint: fingerprint,
	}
}

// =============================================================================
// LEDGER
// =============================================================================

func TestAppend_AssignsIncreasingSequences(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	first, err := store.Append(ctx, payout("W1", "R1", "fp-1"))
	require.NoError(t, err)
	second, err := store.Append(ctx, payout("W2", "R2", "fp-2"))
	require.NoError(t, err)

	assert.Greater(t, second.Sequence, first.Sequence)
	assert.False(t, first.PaidAt.IsZero())
}

func TestAppend_DuplicateFingerprintRejected(t *testing.T) {
	// GIVEN: A payment already recorded
	// WHEN: The same fingerprint is appended again
	// THEN: ErrAlreadyPaid; the ledger keeps exactly one record

	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Append(ctx, payout("W1", "R1", "fp-1"))
	require.NoError(t, err)

	_, err = store.Append(ctx, payout("W1", "R1", "fp-1"))
	assert.ErrorIs(t, err, engine.ErrAlreadyPaid)

	records, err := store.ListPayouts(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestAlreadyPaid(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	paid, err := store.AlreadyPaid(ctx, "fp-1")
	require.NoError(t, err)
	assert.False(t, paid)

	_, err = store.Append(ctx, payout("W1", "R1", "fp-1"))
	require.NoError(t, err)

	paid, err = store.AlreadyPaid(ctx, "fp-1")
	require.NoError(t, err)
	assert.True(t, paid)
}

func TestListPayouts_RoundTripsDecimals(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	rec := engine.LedgerRecord{
		WorkerID:    "W1",
		ReceiverID:  "R1",
		Hours:       engine.MustMoney("7.500277777777778"),
		Amount:      engine.MustMoney("150.0055555555556"),
		Fingerprint: "fp-1",
	}
	_, err := store.Append(ctx, rec)
	require.NoError(t, err)

	records, err := store.ListPayouts(ctx, 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, records[0].Hours.Equal(rec.Hours), "hours %s", records[0].Hours)
	assert.True(t, records[0].Amount.Equal(rec.Amount), "amount %s", records[0].Amount)
	assert.Equal(t, rec.Fingerprint, records[0].Fingerprint)
}

func TestListPayouts_Limit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		_, err := store.Append(ctx, payout("W1", "R1", ""))
		require.NoError(t, err)
	}

	records, err := store.ListPayouts(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

func TestAppend_EmptyFingerprintNeverCollides(t *testing.T) {
	// Records without fingerprints (legacy imports) must not trip the
	// unique index.
	store := newTestStore(t)
	ctx := context.Background()

	_, err := store.Append(ctx, payout("W1", "R1", ""))
	require.NoError(t, err)
	_, err = store.Append(ctx, payout("W2", "R2", ""))
	require.NoError(t, err)
}

// =============================================================================
// RUN HISTORY
// =============================================================================

func TestRunLifecycle(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.BeginRun(ctx, "run-1", "2026-08-30"))

	// Appends during the run are tagged with it.
	_, err := store.Append(ctx, payout("W1", "R1", "fp-1"))
	require.NoError(t, err)

	report := &engine.Report{Paid: 1, Skipped: 2, Failed: 3}
	require.NoError(t, store.FinishRun(ctx, "run-1", report, nil))

	run, err := store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, "completed", run.Status)
	assert.Equal(t, 1, run.Paid)
	assert.Equal(t, 2, run.Skipped)
	assert.Equal(t, 3, run.Failed)
	require.NotNil(t, run.CompletedAt)
	assert.False(t, run.CompletedAt.Before(run.StartedAt))
}

func TestFinishRun_RecordsError(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.BeginRun(ctx, "run-1", "2026-08-30"))
	require.NoError(t, store.FinishRun(ctx, "run-1", &engine.Report{}, assert.AnError))

	run, err := store.GetRun(ctx, "run-1")
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, "failed", run.Status)
	assert.NotEmpty(t, run.Error)
}

func TestGetRun_Unknown(t *testing.T) {
	store := newTestStore(t)

	run, err := store.GetRun(context.Background(), "nope")
	require.NoError(t, err)
	assert.Nil(t, run)
}

func TestListRuns_NewestFirst(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.BeginRun(ctx, "run-1", "2026-08-29"))
	require.NoError(t, store.FinishRun(ctx, "run-1", &engine.Report{}, nil))
	require.NoError(t, store.BeginRun(ctx, "run-2", "2026-08-30"))
	require.NoError(t, store.FinishRun(ctx, "run-2", &engine.Report{}, nil))

	runs, err := store.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-2", runs[0].ID)
}
