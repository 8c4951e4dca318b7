package server

import (
	"sort"

	"github.com/jmwhea/matchup/common"
)

// Profile holds everything the server tracks about a single user: their game
// list, optional home timezone, and weekly availability in their local time.
type Profile struct {
	Games        []string
	Timezone     string
	Availability map[string][]common.Interval
}

// Store is the in-memory profile store, keyed by the numeric user identifier.
// It does no locking of its own; StartControlServer serializes every
// mutate-then-persist sequence under one mutex.
type Store struct {
	users map[uint64]*Profile
}

// NewStore creates an empty profile store.
func NewStore() *Store {
	return &Store{users: make(map[uint64]*Profile)}
}

// profile returns the user's record, creating an empty one on first use.
func (s *Store) profile(uid uint64) *Profile {
	p, exists := s.users[uid]
	if !exists {
		p = &Profile{Availability: make(map[string][]common.Interval)}
		s.users[uid] = p
	}
	return p
}

// AddGame records a game for the user. If an existing entry normalizes equal
// to name, its stored spelling is replaced in place; otherwise name is
// appended, so the list keeps insertion order.
func (s *Store) AddGame(uid uint64, name string) {
	p := s.profile(uid)
	normalized := common.NormalizeGameName(name)

	for i, existing := range p.Games {
		if common.NormalizeGameName(existing) == normalized {
			p.Games[i] = name
			return
		}
	}
	p.Games = append(p.Games, name)
}

// RemoveGame removes the first game entry matching name under normalized
// identity. Returns false if the user or the game is unknown.
func (s *Store) RemoveGame(uid uint64, name string) bool {
	p, exists := s.users[uid]
	if !exists {
		return false
	}

	normalized := common.NormalizeGameName(name)
	for i, existing := range p.Games {
		if common.NormalizeGameName(existing) == normalized {
			p.Games = append(p.Games[:i], p.Games[i+1:]...)
			return true
		}
	}
	return false
}

// Games returns a copy of the user's games in insertion order, empty for an
// unknown user.
func (s *Store) Games(uid uint64) []string {
	p, exists := s.users[uid]
	if !exists {
		return []string{}
	}
	games := make([]string, len(p.Games))
	copy(games, p.Games)
	return games
}

// SetTimezone stores the identifier verbatim. Callers validate tz against the
// IANA database first; the store does not re-check it.
func (s *Store) SetTimezone(uid uint64, tz string) {
	s.profile(uid).Timezone = tz
}

// Timezone returns the user's timezone identifier, ok false when none is set.
func (s *Store) Timezone(uid uint64) (string, bool) {
	p, exists := s.users[uid]
	if !exists || p.Timezone == "" {
		return "", false
	}
	return p.Timezone, true
}

// SetDayAvailability replaces the day's interval list wholesale with the
// single interval [start, end). An empty start or end clears the day instead.
func (s *Store) SetDayAvailability(uid uint64, day, start, end string) {
	if !common.IsDayKey(day) {
		return
	}

	p := s.profile(uid)
	if start == "" || end == "" {
		p.Availability[day] = []common.Interval{}
		return
	}
	p.Availability[day] = []common.Interval{{Start: start, End: end}}
}

// AddDayAvailability appends the interval [start, end) to the day's list.
// Returns false when the day key or interval is malformed, or when the
// interval overlaps one already recorded for that day.
func (s *Store) AddDayAvailability(uid uint64, day, start, end string) bool {
	if !common.IsDayKey(day) {
		return false
	}

	interval := common.Interval{Start: start, End: end}
	if !interval.Valid() {
		return false
	}

	p := s.profile(uid)
	for _, existing := range p.Availability[day] {
		if existing.Overlaps(interval) {
			return false
		}
	}

	p.Availability[day] = append(p.Availability[day], interval)
	return true
}

// ClearDayAvailability empties the day's interval list.
func (s *Store) ClearDayAvailability(uid uint64, day string) {
	if !common.IsDayKey(day) {
		return
	}
	s.profile(uid).Availability[day] = []common.Interval{}
}

// Availability returns a copy of the user's weekly schedule with all seven
// weekday keys present, defaulting to empty. Mutating the result does not
// touch the store.
func (s *Store) Availability(uid uint64) map[string][]common.Interval {
	result := make(map[string][]common.Interval, len(common.DayKeys))
	for _, day := range common.DayKeys {
		result[day] = []common.Interval{}
	}

	p, exists := s.users[uid]
	if !exists {
		return result
	}

	for _, day := range common.DayKeys {
		intervals, ok := p.Availability[day]
		if !ok {
			continue
		}
		dayCopy := make([]common.Interval, len(intervals))
		copy(dayCopy, intervals)
		result[day] = dayCopy
	}
	return result
}

// UserIDs returns every known user identifier in ascending order.
func (s *Store) UserIDs() []uint64 {
	ids := make([]uint64, 0, len(s.users))
	for uid := range s.users {
		ids = append(ids, uid)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
