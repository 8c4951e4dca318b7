package server

import (
	"time"

	"github.com/jmwhea/matchup/common"
)

// IsAvailableNow reports whether the user is inside one of their availability
// intervals at the given instant, evaluated in their own timezone. A user
// with no timezone set, or with a timezone the system cannot resolve, is
// never available.
func IsAvailableNow(store *Store, uid uint64, now time.Time) bool {
	tz, ok := store.Timezone(uid)
	if !ok {
		return false
	}

	loc, err := time.LoadLocation(tz)
	if err != nil {
		return false
	}

	local := now.In(loc)
	minute := local.Hour()*60 + local.Minute()
	day := common.DayKeyFor(local.Weekday())

	availability := store.Availability(uid)
	for _, interval := range availability[day] {
		if interval.Contains(minute) {
			return true
		}
	}

	// An interval from the previous day may span midnight into this one.
	for _, interval := range availability[common.PreviousDayKey(day)] {
		if interval.ContainsAfterMidnight(minute) {
			return true
		}
	}

	return false
}
