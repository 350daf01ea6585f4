package engine

import "github.com/shopspring/decimal"

// Calculate converts a qualifying timesheet entry plus its rate entry into
// a monetary amount and the decimal hours it represents:
//
//	hours  = duration_seconds / 3600   (exact decimal division)
//	amount = rate * hours
//
// No rounding is applied here. Amounts stay exact until a transport
// boundary (e.g. the gateway's minor-unit conversion) imposes precision.
// Pure function; no I/O.
func Calculate(rate RateEntry, entry TimesheetEntry) (amount Money, hours Hours) {
	hours = decimal.NewFromInt(entry.Duration).Div(secondsPerHour)
	amount = rate.Rate.Mul(hours)
	return amount, hours
}
