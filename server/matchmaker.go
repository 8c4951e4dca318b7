package server

import (
	"sort"
	"time"

	"github.com/jmwhea/matchup/common"
)

// Matchmaker answers the "who can I play with right now?" query over a
// profile store.
type Matchmaker struct {
	store *Store
}

// NewMatchmaker creates a Matchmaker reading from the given store.
func NewMatchmaker(store *Store) *Matchmaker {
	return &Matchmaker{store: store}
}

// CommonGames returns the games both users play, matched under normalized
// identity. The returned titles use user a's own spelling, in a's insertion
// order.
func (m *Matchmaker) CommonGames(a, b uint64) []string {
	gamesB := make(map[string]bool)
	for _, name := range m.store.Games(b) {
		gamesB[common.NormalizeGameName(name)] = true
	}

	shared := []string{}
	for _, name := range m.store.Games(a) {
		if gamesB[common.NormalizeGameName(name)] {
			shared = append(shared, name)
		}
	}
	return shared
}

// FindReadyPlayers returns every user other than the invoker who is available
// at the given instant and shares at least one game with them, sorted by user
// id ascending. A non-empty gameFilter restricts the shared games to that
// single title; users left with nothing in common are dropped.
func (m *Matchmaker) FindReadyPlayers(invoker uint64, now time.Time, gameFilter string) []common.ReadyPlayer {
	results := []common.ReadyPlayer{}

	for _, other := range m.store.UserIDs() {
		if other == invoker {
			continue
		}
		if !IsAvailableNow(m.store, other, now) {
			continue
		}

		shared := m.CommonGames(invoker, other)
		if len(shared) == 0 {
			continue
		}

		if gameFilter != "" {
			normalized := common.NormalizeGameName(gameFilter)
			filtered := []string{}
			for _, name := range shared {
				if common.NormalizeGameName(name) == normalized {
					filtered = append(filtered, name)
				}
			}
			if len(filtered) == 0 {
				continue
			}
			shared = filtered
		}

		results = append(results, common.ReadyPlayer{User: other, Games: shared})
	}

	sort.Slice(results, func(i, j int) bool { return results[i].User < results[j].User })
	return results
}

// AllGameNames returns one display name per distinct game known to any user,
// sorted alphabetically. When the same game is spelled differently across
// users, the spelling of the lowest user id wins.
func (m *Matchmaker) AllGameNames() []string {
	seen := make(map[string]bool)
	names := []string{}

	for _, uid := range m.store.UserIDs() {
		for _, name := range m.store.Games(uid) {
			normalized := common.NormalizeGameName(name)
			if seen[normalized] {
				continue
			}
			seen[normalized] = true
			names = append(names, name)
		}
	}

	sort.Strings(names)
	return names
}
