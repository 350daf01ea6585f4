// Package timesheet fetches recorded work time from the time-tracking
// provider and converts it into validated engine entries at this boundary,
// so the core never touches loosely-typed provider payloads.
package timesheet

import (
	"context"
	"time"

	"github.com/warp/payout-engine/engine"
)

// Client lists timesheet entries for a time window. Implementations return
// entries already filtered to [start, end) and sorted by start time.
type Client interface {
	ListTimesheets(ctx context.Context, start, end time.Time) ([]engine.TimesheetEntry, error)
}

// DayWindow returns the [midnight, next midnight) window for one calendar
// day in the given location. Reconciliation runs over exactly one such
// window per invocation.
func DayWindow(day time.Time, loc *time.Location) (start, end time.Time) {
	if loc == nil {
		loc = time.Local
	}
	y, m, d := day.In(loc).Date()
	start = time.Date(y, m, d, 0, 0, 0, 0, loc)
	end = start.AddDate(0, 0, 1)
	return start, end
}
