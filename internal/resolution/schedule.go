// Package resolution schedules settlement checks for open positions against
// their markets' end dates instead of polling on a fixed timer.
package resolution

import "time"

// NextCheckDelay returns the wait until the earliest future end date plus
// buffer. It returns 0 when no end date lies in the future (all past due or
// dateless), meaning check now.
func NextCheckDelay(now time.Time, endDates []*time.Time, buffer time.Duration) time.Duration {
	var earliest *time.Time
	for _, end := range endDates {
		if end == nil || !end.After(now) {
			continue
		}
		if earliest == nil || end.Before(*earliest) {
			earliest = end
		}
	}
	if earliest == nil {
		return 0
	}
	return earliest.Sub(now) + buffer
}

// IsDue reports whether a position with the given end date should be checked.
// Dateless positions are always due.
func IsDue(endDate *time.Time, now time.Time, buffer time.Duration) bool {
	if endDate == nil {
		return true
	}
	return !now.Before(endDate.Add(buffer))
}
