/*
Package csvledger persists the payout ledger as an append-only CSV file.

PURPOSE:
  The simplest durable ledger: one tabular file with the four canonical
  audit columns. A header row is written exactly once, when the file is
  first created, and never rewritten.

FILE FORMAT:

	sequence_id,receiver_id,hours,amount
	0,R1,1,20
	1,R2,7.5,262.5

APPEND-ONLY ENFORCEMENT:
  The file is opened O_APPEND|O_CREATE, never O_TRUNC. There is no code
  path that seeks, rewrites, or deletes. Each record is flushed to the OS
  before Append returns, so a crash between entries loses nothing already
  acknowledged.

SEQUENCE NUMBERS:
  The counter is process-local, seeded from 0 at Open. Re-running the
  process appends records whose sequence numbers restart; cross-run unique
  sequencing and fingerprint dedup are properties of the sqlite store, not
  this one. This store reads the file at open time only to decide whether
  the header must be written.

CONCURRENCY:
  Appends are serialized with a mutex so sequence assignment and the write
  can never interleave, even if a future driver parallelizes entries.

SEE ALSO:
  - store/sqlite: dedup-capable store with run history
*/
package csvledger

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/warp/payout-engine/engine"
)

var header = []string{"sequence_id", "receiver_id", "hours", "amount"}

// Ledger is an append-only CSV-backed engine.Ledger.
type Ledger struct {
	mu      sync.Mutex
	f       *os.File
	w       *csv.Writer
	nextSeq int64
}

// Open opens (or creates) the ledger file at path. If the file does not
// yet exist, the header row is written before any record.
func Open(path string) (*Ledger, error) {
	_, statErr := os.Stat(path)
	writeHeader := os.IsNotExist(statErr)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}

	l := &Ledger{f: f, w: csv.NewWriter(f)}
	if writeHeader {
		if err := l.w.Write(header); err != nil {
			f.Close()
			return nil, fmt.Errorf("write ledger header: %w", err)
		}
		l.w.Flush()
		if err := l.w.Error(); err != nil {
			f.Close()
			return nil, fmt.Errorf("flush ledger header: %w", err)
		}
	}
	return l, nil
}

// Append writes one record durably and returns it with its assigned
// sequence. Either the full row reaches the file or an error is returned;
// the writer is flushed and checked on every path.
func (l *Ledger) Append(_ context.Context, rec engine.LedgerRecord) (engine.LedgerRecord, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	rec.Sequence = l.nextSeq
	if rec.PaidAt.IsZero() {
		rec.PaidAt = time.Now().UTC()
	}

	row := []string{
		fmt.Sprintf("%d", rec.Sequence),
		string(rec.ReceiverID),
		rec.Hours.String(),
		rec.Amount.String(),
	}
	if err := l.w.Write(row); err != nil {
		return engine.LedgerRecord{}, fmt.Errorf("%w: %v", engine.ErrLedgerWriteFailed, err)
	}
	l.w.Flush()
	if err := l.w.Error(); err != nil {
		return engine.LedgerRecord{}, fmt.Errorf("%w: %v", engine.ErrLedgerWriteFailed, err)
	}
	if err := l.f.Sync(); err != nil {
		return engine.LedgerRecord{}, fmt.Errorf("%w: sync: %v", engine.ErrLedgerWriteFailed, err)
	}

	l.nextSeq++
	return rec, nil
}

// Close releases the underlying file. Pending rows are already flushed by
// Append; Close only closes the handle.
func (l *Ledger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.Close()
}
