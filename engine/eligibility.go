package engine

import "time"

// DefaultMaxEntryDuration is the safety cap on a single timesheet entry.
// Entries longer than this are assumed malformed (a timer left running,
// an import glitch) rather than a legitimate shift, and are never auto-paid.
const DefaultMaxEntryDuration = 8 * time.Hour

// EligibilityPolicy decides which timesheet entries qualify for payment.
// The cap is a deployment tunable, not a business maximum on a workday.
type EligibilityPolicy struct {
	MaxEntryDuration time.Duration
}

// DefaultEligibility returns the policy with the standard 8-hour cap.
func DefaultEligibility() EligibilityPolicy {
	return EligibilityPolicy{MaxEntryDuration: DefaultMaxEntryDuration}
}

// Payable reports whether the entry qualifies for payment. Pure predicate;
// entries that fail are classified Skipped and never reach the calculator.
func (p EligibilityPolicy) Payable(entry TimesheetEntry) bool {
	max := p.MaxEntryDuration
	if max <= 0 {
		max = DefaultMaxEntryDuration
	}
	return entry.Duration <= int64(max/time.Second)
}
