/*
Package sqlite provides a SQLite-backed implementation of the ledger.

PURPOSE:
  The production ledger store. Beyond the four canonical audit columns it
  persists the worker, the payment fingerprint, and the run that produced
  each record, which buys two things the plain CSV store cannot offer:
  cross-run dedup (no double payment after a crash/re-run) and a browsable
  run history for the API.

INTERFACES IMPLEMENTED:
  engine.Ledger:      Append-only payout records
  engine.DedupLedger: Fingerprint lookups before paying

APPEND-ONLY ENFORCEMENT:
  - No UPDATE or DELETE statements touch the payouts table
  - The fingerprint UNIQUE index rejects duplicate payments at the
    database level even if the driver-level check is bypassed

CONCURRENCY:
  Uses sync.RWMutex around writes so sequence assignment (AUTOINCREMENT)
  and the insert can never interleave between two payments.

WAL MODE:
  SQLite is opened with WAL for better crash recovery and so readers
  (the API listing the ledger) never block an in-flight run.

USAGE:
  store, err := sqlite.New("./data/payouts.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

SEE ALSO:
  - engine/ledger.go: Interface definitions
  - store/csvledger:  Base tabular-file store
  - store/memory:     In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/payout-engine/engine"
)

// Store implements the ledger and run-history storage using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex

	// runID tags appends with the run in progress, between BeginRun and
	// FinishRun. Empty outside a run.
	runID string
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Payouts (append-only ledger)
	CREATE TABLE IF NOT EXISTS payouts (
		sequence_id INTEGER PRIMARY KEY AUTOINCREMENT,
		receiver_id TEXT NOT NULL,
		hours TEXT NOT NULL,
		amount TEXT NOT NULL,
		worker_id TEXT NOT NULL,
		fingerprint TEXT,
		run_id TEXT,
		paid_at TEXT NOT NULL
	);

	-- CRITICAL: one payment per (worker, shift). The fingerprint is a
	-- stable hash of worker_id|started_at|ended_at; re-running the same
	-- day can never insert the same payment twice.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_payouts_fingerprint
		ON payouts(fingerprint) WHERE fingerprint IS NOT NULL;

	CREATE INDEX IF NOT EXISTS idx_payouts_receiver
		ON payouts(receiver_id);
	CREATE INDEX IF NOT EXISTS idx_payouts_run
		ON payouts(run_id) WHERE run_id IS NOT NULL;

	-- Reconciliation run history
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		run_date TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'running',
		paid INTEGER DEFAULT 0,
		skipped INTEGER DEFAULT 0,
		failed INTEGER DEFAULT 0,
		gaps INTEGER DEFAULT 0,
		error TEXT,
		started_at TEXT NOT NULL,
		completed_at TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_runs_date
		ON runs(run_date);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// LEDGER (engine.Ledger interface)
// =============================================================================

// Append inserts one payout record and returns it with the assigned
// sequence. A fingerprint collision maps to engine.ErrAlreadyPaid.
func (s *Store) Append(ctx context.Context, rec engine.LedgerRecord) (engine.LedgerRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.PaidAt.IsZero() {
		rec.PaidAt = time.Now().UTC()
	}

	query := `
		INSERT INTO payouts
		(receiver_id, hours, amount, worker_id, fingerprint, run_id, paid_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	res, err := s.db.ExecContext(ctx, query,
		string(rec.ReceiverID),
		rec.Hours.String(),
		rec.Amount.String(),
		string(rec.WorkerID),
		nullString(rec.Fingerprint),
		nullString(s.runID),
		rec.PaidAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return engine.LedgerRecord{}, engine.ErrAlreadyPaid
		}
		return engine.LedgerRecord{}, fmt.Errorf("%w: %v", engine.ErrLedgerWriteFailed, err)
	}

	seq, err := res.LastInsertId()
	if err != nil {
		return engine.LedgerRecord{}, fmt.Errorf("%w: sequence: %v", engine.ErrLedgerWriteFailed, err)
	}
	rec.Sequence = seq
	return rec, nil
}

// AlreadyPaid implements engine.DedupLedger.
func (s *Store) AlreadyPaid(ctx context.Context, fingerprint string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(1) FROM payouts WHERE fingerprint = ?`, fingerprint).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("fingerprint lookup: %w", err)
	}
	return n > 0, nil
}

// ListPayouts returns ledger records in sequence order, oldest first.
// Limit <= 0 returns everything.
func (s *Store) ListPayouts(ctx context.Context, limit int) ([]engine.LedgerRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := `
		SELECT sequence_id, receiver_id, hours, amount, worker_id,
		       COALESCE(fingerprint, ''), paid_at
		FROM payouts ORDER BY sequence_id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list payouts: %w", err)
	}
	defer rows.Close()

	var records []engine.LedgerRecord
	for rows.Next() {
		var (
			rec                       engine.LedgerRecord
			receiver, worker          string
			hoursStr, amountStr, paid string
		)
		if err := rows.Scan(&rec.Sequence, &receiver, &hoursStr, &amountStr,
			&worker, &rec.Fingerprint, &paid); err != nil {
			return nil, fmt.Errorf("scan payout: %w", err)
		}
		rec.ReceiverID = engine.ReceiverID(receiver)
		rec.WorkerID = engine.WorkerID(worker)
		if rec.Hours, err = decimal.NewFromString(hoursStr); err != nil {
			return nil, fmt.Errorf("payout %d hours: %w", rec.Sequence, err)
		}
		if rec.Amount, err = decimal.NewFromString(amountStr); err != nil {
			return nil, fmt.Errorf("payout %d amount: %w", rec.Sequence, err)
		}
		if rec.PaidAt, err = time.Parse(time.RFC3339, paid); err != nil {
			return nil, fmt.Errorf("payout %d paid_at: %w", rec.Sequence, err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// =============================================================================
// RUN HISTORY
// =============================================================================

// RunRecord is one persisted reconciliation run.
type RunRecord struct {
	ID          string     `json:"id"`
	RunDate     string     `json:"run_date"` // YYYY-MM-DD
	Status      string     `json:"status"`   // running | completed | failed
	Paid        int        `json:"paid"`
	Skipped     int        `json:"skipped"`
	Failed      int        `json:"failed"`
	Gaps        int        `json:"gaps"`
	Error       string     `json:"error,omitempty"`
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// BeginRun records the start of a run and tags subsequent appends with its
// ID until FinishRun is called.
func (s *Store) BeginRun(ctx context.Context, id, runDate string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, run_date, status, started_at) VALUES (?, ?, 'running', ?)`,
		id, runDate, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("begin run: %w", err)
	}
	s.runID = id
	return nil
}

// FinishRun stores the run's outcome counts and final status.
func (s *Store) FinishRun(ctx context.Context, id string, report *engine.Report, runErr error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	status := "completed"
	errText := ""
	if runErr != nil {
		status = "failed"
		errText = runErr.Error()
	}

	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, paid = ?, skipped = ?, failed = ?, gaps = ?,
		        error = ?, completed_at = ? WHERE id = ?`,
		status, report.Paid, report.Skipped, report.Failed, len(report.Gaps),
		nullString(errText), time.Now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	s.runID = ""
	return nil
}

// GetRun returns one run by ID, or nil if it does not exist.
func (s *Store) GetRun(ctx context.Context, id string) (*RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx, runSelect+` WHERE id = ?`, id)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return run, err
}

// ListRuns returns runs newest first.
func (s *Store) ListRuns(ctx context.Context) ([]RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, runSelect+` ORDER BY started_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

const runSelect = `
	SELECT id, run_date, status, paid, skipped, failed, gaps,
	       COALESCE(error, ''), started_at, COALESCE(completed_at, '')
	FROM runs`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*RunRecord, error) {
	var (
		run                  RunRecord
		startedAt, completed string
	)
	err := row.Scan(&run.ID, &run.RunDate, &run.Status, &run.Paid, &run.Skipped,
		&run.Failed, &run.Gaps, &run.Error, &startedAt, &completed)
	if err != nil {
		return nil, err
	}
	if run.StartedAt, err = time.Parse(time.RFC3339, startedAt); err != nil {
		return nil, fmt.Errorf("run %s started_at: %w", run.ID, err)
	}
	if completed != "" {
		t, err := time.Parse(time.RFC3339, completed)
		if err != nil {
			return nil, fmt.Errorf("run %s completed_at: %w", run.ID, err)
		}
		run.CompletedAt = &t
	}
	return &run, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func isUniqueConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
