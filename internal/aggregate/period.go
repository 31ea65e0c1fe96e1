// Package aggregate derives report figures from a snapshot of transactions.
//
// Every function is pure: it never mutates its input and returns the same
// result for the same snapshot, settings and anchor time. Empty input yields
// zeroed or empty results.
package aggregate

import (
	"time"

	"ledger/internal/core"
)

// Window returns the half-open interval [start, end) of the calendar month or
// year containing anchor, in anchor's location. bounded is false for
// core.PeriodAll.
func Window(period core.Period, anchor time.Time) (start, end time.Time, bounded bool) {
	loc := anchor.Location()
	switch period {
	case core.PeriodYear:
		start = time.Date(anchor.Year(), time.January, 1, 0, 0, 0, 0, loc)
		return start, start.AddDate(1, 0, 0), true
	case core.PeriodAll:
		return time.Time{}, time.Time{}, false
	default:
		start = time.Date(anchor.Year(), anchor.Month(), 1, 0, 0, 0, 0, loc)
		return start, start.AddDate(0, 1, 0), true
	}
}

// FilterByPeriod keeps the transactions created inside the period window
// containing anchor. The input order is preserved.
func FilterByPeriod(txs []core.Transaction, period core.Period, anchor time.Time) []core.Transaction {
	start, end, bounded := Window(period, anchor)
	out := make([]core.Transaction, 0, len(txs))
	for _, t := range txs {
		if !bounded || within(t.CreatedAt, start, end) {
			out = append(out, t)
		}
	}
	return out
}

func within(t, start, end time.Time) bool {
	return !t.Before(start) && t.Before(end)
}
