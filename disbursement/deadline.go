package disbursement

import (
	"fmt"
	"time"
)

// ComputeDeadline adds months calendar months to issued and returns the end
// of that day (23:59:59) in issued's location. The day of month is clamped to
// the last day of the target month, so Jan 31 + 1 month is Feb 28 (or 29),
// never a date in March.
func ComputeDeadline(issued time.Time, months int) (time.Time, error) {
	if months <= 0 {
		return time.Time{}, fmt.Errorf("disbursement: months must be positive, got %d", months)
	}
	if issued.IsZero() {
		return time.Time{}, fmt.Errorf("disbursement: issue date is required")
	}

	year, month, day := issued.Date()
	offset := int(month) - 1 + months
	targetYear := year + offset/12
	targetMonth := time.Month(offset%12 + 1)

	if last := daysIn(targetYear, targetMonth, issued.Location()); day > last {
		day = last
	}

	return time.Date(targetYear, targetMonth, day, 23, 59, 59, 0, issued.Location()), nil
}

// EndOfDay returns 23:59:59 on t's calendar date.
func EndOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 23, 59, 59, 0, t.Location())
}

func daysIn(year int, month time.Month, loc *time.Location) int {
	// Day 0 of the following month normalizes to the last day of month.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, loc).Day()
}
