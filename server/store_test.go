package server

import (
	"encoding/json"
	"io/ioutil"
	"os"
	"path/filepath"
	"testing"

	"github.com/jmwhea/matchup/common"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
)

func TestStore(t *testing.T) {
	suite.Run(t, new(StoreTestSuite))
}

type StoreTestSuite struct {
	suite.Suite

	store *Store
}

func (ts *StoreTestSuite) SetupTest() {
	ts.store = NewStore()
}

func (ts *StoreTestSuite) TestAddGameIdempotent() {
	ts.store.AddGame(1, "Chess")
	ts.store.AddGame(1, "Chess")

	assert.Equal(ts.T(), []string{"Chess"}, ts.store.Games(1), "Adding the same game twice must leave one entry")
}

func (ts *StoreTestSuite) TestAddGameReplacesSpellingInPlace() {
	ts.store.AddGame(1, "Stardew Valley")
	ts.store.AddGame(1, "Go")
	ts.store.AddGame(1, "stardewvalley")

	assert.Equal(ts.T(), []string{"stardewvalley", "Go"}, ts.store.Games(1),
		"The later spelling must win without moving the entry")
}

func (ts *StoreTestSuite) TestRemoveGame() {
	ts.store.AddGame(1, "Stardew Valley")

	assert.True(ts.T(), ts.store.RemoveGame(1, "STARDEW valley"), "Removal must match case- and whitespace-insensitively")
	assert.False(ts.T(), ts.store.RemoveGame(1, "Stardew Valley"), "A second removal of the same game must return false")
	assert.False(ts.T(), ts.store.RemoveGame(99, "Chess"), "Removing from an unknown user must return false")
	assert.Empty(ts.T(), ts.store.Games(1))
}

func (ts *StoreTestSuite) TestGamesReturnsCopy() {
	ts.store.AddGame(1, "Chess")

	games := ts.store.Games(1)
	games[0] = "Checkers"

	assert.Equal(ts.T(), []string{"Chess"}, ts.store.Games(1), "Mutating the returned slice must not affect the store")
	assert.Equal(ts.T(), []string{}, ts.store.Games(42), "An unknown user has an empty game list")
}

func (ts *StoreTestSuite) TestTimezone() {
	_, ok := ts.store.Timezone(1)
	assert.False(ts.T(), ok, "An unknown user has no timezone")

	ts.store.SetTimezone(1, "Europe/Lisbon")
	tz, ok := ts.store.Timezone(1)
	require.True(ts.T(), ok)
	assert.Equal(ts.T(), "Europe/Lisbon", tz)
}

func (ts *StoreTestSuite) TestAvailabilityAlwaysHasSevenDays() {
	availability := ts.store.Availability(1)
	assert.Len(ts.T(), availability, 7, "Even an unknown user's availability carries all seven keys")
	for _, day := range common.DayKeys {
		assert.Equal(ts.T(), []common.Interval{}, availability[day])
	}

	ts.store.SetDayAvailability(1, "mon", "09:00", "17:00")
	availability = ts.store.Availability(1)
	assert.Len(ts.T(), availability, 7)
	assert.Equal(ts.T(), []common.Interval{{Start: "09:00", End: "17:00"}}, availability["mon"])
}

func (ts *StoreTestSuite) TestSetDayAvailabilityReplacesAndClears() {
	ts.store.SetDayAvailability(1, "mon", "09:00", "17:00")
	ts.store.SetDayAvailability(1, "mon", "18:00", "20:00")
	assert.Equal(ts.T(), []common.Interval{{Start: "18:00", End: "20:00"}}, ts.store.Availability(1)["mon"],
		"Setting a day must replace its whole interval list")

	ts.store.SetDayAvailability(1, "mon", "", "")
	assert.Equal(ts.T(), []common.Interval{}, ts.store.Availability(1)["mon"], "Empty bounds must clear the day")

	ts.store.SetDayAvailability(1, "monday", "09:00", "17:00")
	assert.Equal(ts.T(), []common.Interval{}, ts.store.Availability(1)["mon"], "An invalid day key is ignored")
}

func (ts *StoreTestSuite) TestAddDayAvailability() {
	require.True(ts.T(), ts.store.AddDayAvailability(1, "fri", "09:00", "11:00"))
	require.True(ts.T(), ts.store.AddDayAvailability(1, "fri", "18:00", "20:00"), "Non-overlapping intervals accumulate")

	assert.False(ts.T(), ts.store.AddDayAvailability(1, "fri", "10:00", "12:00"), "An overlapping interval is rejected")
	assert.False(ts.T(), ts.store.AddDayAvailability(1, "fri", "12:00", "12:00"), "An empty interval is rejected")
	assert.False(ts.T(), ts.store.AddDayAvailability(1, "friday", "09:00", "11:00"), "An invalid day key is rejected")

	assert.Equal(ts.T(), []common.Interval{
		{Start: "09:00", End: "11:00"},
		{Start: "18:00", End: "20:00"},
	}, ts.store.Availability(1)["fri"])

	ts.store.ClearDayAvailability(1, "fri")
	assert.Equal(ts.T(), []common.Interval{}, ts.store.Availability(1)["fri"])
}

func (ts *StoreTestSuite) TestAvailabilityReturnsCopy() {
	ts.store.SetDayAvailability(1, "tue", "10:00", "12:00")

	availability := ts.store.Availability(1)
	availability["tue"][0] = common.Interval{Start: "00:00", End: "00:01"}

	assert.Equal(ts.T(), []common.Interval{{Start: "10:00", End: "12:00"}}, ts.store.Availability(1)["tue"],
		"Mutating the returned map must not affect the store")
}

func TestPersistence(t *testing.T) {
	suite.Run(t, new(PersistenceTestSuite))
}

type PersistenceTestSuite struct {
	suite.Suite

	dir  string
	path string
}

func (ts *PersistenceTestSuite) SetupTest() {
	dir, err := ioutil.TempDir("", "matchup-test")
	require.NoError(ts.T(), err, "Creating a temp dir for the snapshot should not fail")
	ts.dir = dir
	ts.path = filepath.Join(dir, "data", "state.json")
}

func (ts *PersistenceTestSuite) TearDownTest() {
	os.RemoveAll(ts.dir)
}

func (ts *PersistenceTestSuite) TestRoundTrip() {
	store := NewStore()
	store.AddGame(1, "Chess")
	store.AddGame(1, "Go")
	store.SetTimezone(1, "UTC")
	store.SetDayAvailability(1, "mon", "09:00", "17:00")
	store.AddGame(2, "chess")

	require.NoError(ts.T(), store.Save(ts.path), "Save should create the data directory and write the file")

	loaded := LoadStore(ts.path)
	assert.Equal(ts.T(), []string{"Chess", "Go"}, loaded.Games(1))
	tz, ok := loaded.Timezone(1)
	require.True(ts.T(), ok)
	assert.Equal(ts.T(), "UTC", tz)
	assert.Equal(ts.T(), []common.Interval{{Start: "09:00", End: "17:00"}}, loaded.Availability(1)["mon"])
	assert.Equal(ts.T(), []string{"chess"}, loaded.Games(2))
}

func (ts *PersistenceTestSuite) TestSnapshotUsesStringifiedIDs() {
	store := NewStore()
	store.AddGame(7, "Chess")
	require.NoError(ts.T(), store.Save(ts.path))

	data, err := ioutil.ReadFile(ts.path)
	require.NoError(ts.T(), err)

	var document map[string]map[string]json.RawMessage
	require.NoError(ts.T(), json.Unmarshal(data, &document), "The snapshot must be one JSON document")
	require.Contains(ts.T(), document, "users", "The document must have a top-level users mapping")
	assert.Contains(ts.T(), document["users"], "7", "User ids are stringified keys")
}

func (ts *PersistenceTestSuite) TestLoadMissingFile() {
	loaded := LoadStore(ts.path)
	assert.Empty(ts.T(), loaded.UserIDs(), "A missing snapshot yields an empty store")
}

func (ts *PersistenceTestSuite) TestLoadTolerantOfBadDocuments() {
	require.NoError(ts.T(), os.MkdirAll(filepath.Dir(ts.path), 0755))

	cases := map[string]string{
		"not json":                 "{{{{",
		"wrong top-level type":     `["users"]`,
		"missing users key":        `{"people": {}}`,
		"users is the wrong type":  `{"users": [1, 2]}`,
		"user record is malformed": `{"users": {"1": {"games": "Chess"}}}`,
		"user id is not a number":  `{"users": {"alice": {"games": ["Chess"]}}}`,
	}

	for name, body := range cases {
		require.NoError(ts.T(), ioutil.WriteFile(ts.path, []byte(body), 0644))
		loaded := LoadStore(ts.path)
		assert.Empty(ts.T(), loaded.UserIDs(), "Case %q should load as an empty store", name)
	}
}

func (ts *PersistenceTestSuite) TestLoadDropsMalformedIntervals() {
	body := `{"users": {"1": {
		"games": ["Chess"],
		"timezone": "UTC",
		"availability": {
			"mon": [{"start": "09:00", "end": "17:00"}, {"start": "late", "end": "later"}],
			"someday": [{"start": "09:00", "end": "17:00"}]
		}
	}}}`
	require.NoError(ts.T(), os.MkdirAll(filepath.Dir(ts.path), 0755))
	require.NoError(ts.T(), ioutil.WriteFile(ts.path, []byte(body), 0644))

	loaded := LoadStore(ts.path)
	assert.Equal(ts.T(), []common.Interval{{Start: "09:00", End: "17:00"}}, loaded.Availability(1)["mon"],
		"Intervals with unparseable bounds are dropped on load")
	assert.Len(ts.T(), loaded.Availability(1), 7, "Unknown day keys are dropped on load")
}
