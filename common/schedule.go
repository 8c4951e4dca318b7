package common

import (
	"strconv"
	"strings"
	"time"
	"unicode"
)

// DayKeys are the weekday keys used throughout the program, Monday first.
var DayKeys = []string{"mon", "tue", "wed", "thu", "fri", "sat", "sun"}

// IsDayKey reports whether day is one of the seven weekday keys.
func IsDayKey(day string) bool {
	for _, d := range DayKeys {
		if d == day {
			return true
		}
	}
	return false
}

// DayKeyFor maps a time.Weekday to its weekday key. time.Weekday starts the
// week on Sunday, DayKeys on Monday.
func DayKeyFor(weekday time.Weekday) string {
	return DayKeys[(int(weekday)+6)%7]
}

// PreviousDayKey returns the weekday key preceding day. Needed when checking
// whether an interval from the previous day spans past midnight into this one.
func PreviousDayKey(day string) string {
	for i, d := range DayKeys {
		if d == day {
			return DayKeys[(i+6)%7]
		}
	}
	return ""
}

// NormalizeGameName strips all whitespace from name and lowercases the rest.
// Two titles refer to the same game exactly when their normalized forms are
// equal.
func NormalizeGameName(name string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToLower(r)
	}, name)
}

// MinuteOfDay parses a zero-padded 24-hour "HH:MM" string into its offset in
// minutes from midnight. Returns false for anything else.
func MinuteOfDay(t string) (int, bool) {
	if len(t) != 5 || t[2] != ':' {
		return 0, false
	}

	hour, err := strconv.Atoi(t[0:2])
	if err != nil || hour < 0 || hour > 23 {
		return 0, false
	}
	minute, err := strconv.Atoi(t[3:5])
	if err != nil || minute < 0 || minute > 59 {
		return 0, false
	}

	return hour*60 + minute, true
}

// ValidateTime reports whether t is a valid zero-padded "HH:MM" time string.
func ValidateTime(t string) bool {
	_, ok := MinuteOfDay(t)
	return ok
}

// ValidateTimezone reports whether tz names a timezone resolvable from the
// system's IANA database.
func ValidateTimezone(tz string) bool {
	if tz == "" {
		return false
	}
	_, err := time.LoadLocation(tz)
	return err == nil
}

// Interval is a half-open [Start, End) range of local time within a weekday,
// both bounds as "HH:MM" strings. End earlier than Start means the interval
// runs to midnight and continues into the following day; Start equal to End
// is an empty interval.
type Interval struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Valid reports whether both bounds parse and the interval is non-empty.
func (iv Interval) Valid() bool {
	start, okStart := MinuteOfDay(iv.Start)
	end, okEnd := MinuteOfDay(iv.End)
	return okStart && okEnd && start != end
}

// span returns the interval as minute offsets where end is shifted past 1440
// when the interval crosses midnight. ok is false if either bound is
// malformed or the interval is empty.
func (iv Interval) span() (start int, end int, ok bool) {
	start, okStart := MinuteOfDay(iv.Start)
	end, okEnd := MinuteOfDay(iv.End)
	if !okStart || !okEnd || start == end {
		return 0, 0, false
	}
	if end < start {
		end += 24 * 60
	}
	return start, end, true
}

// Contains reports whether the given minute of the interval's own day falls
// inside it, counting the portion up to midnight for intervals that wrap.
func (iv Interval) Contains(minute int) bool {
	start, end, ok := iv.span()
	return ok && minute >= start && minute < end
}

// ContainsAfterMidnight reports whether the given minute of the following day
// is still covered by this interval's spill past midnight.
func (iv Interval) ContainsAfterMidnight(minute int) bool {
	start, end, ok := iv.span()
	return ok && end > 24*60 && minute+24*60 >= start && minute+24*60 < end
}

// Overlaps reports whether two intervals anchored on the same day share any
// minute. The spill of a wrapping interval lands on the following day, so it
// is not compared against the other interval's pre-midnight portion.
func (iv Interval) Overlaps(other Interval) bool {
	startA, endA, okA := iv.span()
	startB, endB, okB := other.span()
	if !okA || !okB {
		return false
	}
	return startA < endB && startB < endA
}
