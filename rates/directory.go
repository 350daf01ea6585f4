/*
Package rates loads the rate directory: the reference table mapping each
worker to its hourly pay rate and payment receiver.

PURPOSE:
  The directory is load-bearing for every payment calculation, so this
  loader is strict: any malformed row aborts the entire run before a
  single payment is attempted. Better to pay nobody today than to pay
  somebody wrong.

SOURCE FORMAT:
  CSV with a header row. Required columns (any order, extra columns
  ignored):

	worker_id,rate,receiver_id

  The source is a maintained reference table, not a log: if a worker_id
  appears twice, the later row wins.

LIFECYCLE:
  Loaded fresh at the start of each reconciliation run; immutable for the
  run's duration; never written by the engine.
*/
package rates

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/shopspring/decimal"

	"github.com/warp/payout-engine/engine"
)

const (
	colWorkerID   = "worker_id"
	colRate       = "rate"
	colReceiverID = "receiver_id"
)

// Directory maps workers to their rate entries for one run.
type Directory struct {
	entries map[engine.WorkerID]engine.RateEntry
}

// Lookup returns the rate entry for a worker. Implements
// engine.RateDirectory.
func (d Directory) Lookup(id engine.WorkerID) (engine.RateEntry, bool) {
	e, ok := d.entries[id]
	return e, ok
}

// Len returns the number of distinct workers in the directory.
func (d Directory) Len() int { return len(d.entries) }

// LoadFile reads the rate directory from a CSV file on disk.
func LoadFile(path string) (Directory, error) {
	f, err := os.Open(path)
	if err != nil {
		return Directory{}, fmt.Errorf("open rate source: %w", err)
	}
	defer f.Close()
	return Load(f)
}

// Load reads the rate directory from CSV data. Later rows with a duplicate
// worker_id overwrite earlier ones. Any malformed row returns a
// *engine.MalformedRateSourceError and no directory.
func Load(r io.Reader) (Directory, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	// Rows are validated column-by-column below; the reader itself only
	// needs to reject ragged quoting, not enforce a fixed width.
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return Directory{}, &engine.MalformedRateSourceError{Line: 1, Err: fmt.Errorf("read header: %w", err)}
	}

	cols := map[string]int{}
	for i, name := range header {
		cols[name] = i
	}
	for _, required := range []string{colWorkerID, colRate, colReceiverID} {
		if _, ok := cols[required]; !ok {
			return Directory{}, &engine.MalformedRateSourceError{
				Line:   1,
				Column: required,
				Err:    errors.New("missing required column"),
			}
		}
	}

	entries := map[engine.WorkerID]engine.RateEntry{}
	line := 1

	for {
		line++
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Directory{}, &engine.MalformedRateSourceError{Line: line, Err: err}
		}

		entry, err := parseRow(cols, row)
		if err != nil {
			var malformed *engine.MalformedRateSourceError
			if errors.As(err, &malformed) {
				malformed.Line = line
				return Directory{}, malformed
			}
			return Directory{}, &engine.MalformedRateSourceError{Line: line, Err: err}
		}

		// Last-write-wins on duplicate worker IDs.
		entries[entry.WorkerID] = entry
	}

	return Directory{entries: entries}, nil
}

func parseRow(cols map[string]int, row []string) (engine.RateEntry, error) {
	field := func(name string) (string, error) {
		i := cols[name]
		if i >= len(row) {
			return "", &engine.MalformedRateSourceError{Column: name, Err: errors.New("missing value")}
		}
		return row[i], nil
	}

	workerID, err := field(colWorkerID)
	if err != nil {
		return engine.RateEntry{}, err
	}
	if workerID == "" {
		return engine.RateEntry{}, &engine.MalformedRateSourceError{Column: colWorkerID, Err: errors.New("empty worker id")}
	}

	rateStr, err := field(colRate)
	if err != nil {
		return engine.RateEntry{}, err
	}
	rate, err := decimal.NewFromString(rateStr)
	if err != nil {
		return engine.RateEntry{}, &engine.MalformedRateSourceError{Column: colRate, Err: fmt.Errorf("parse %q: %w", rateStr, err)}
	}
	if rate.IsNegative() {
		return engine.RateEntry{}, &engine.MalformedRateSourceError{Column: colRate, Err: fmt.Errorf("negative rate %s", rate)}
	}

	receiverID, err := field(colReceiverID)
	if err != nil {
		return engine.RateEntry{}, err
	}
	if receiverID == "" {
		return engine.RateEntry{}, &engine.MalformedRateSourceError{Column: colReceiverID, Err: errors.New("empty receiver id")}
	}

	return engine.RateEntry{
		WorkerID:   engine.WorkerID(workerID),
		Rate:       rate,
		ReceiverID: engine.ReceiverID(receiverID),
	}, nil
}
