package server

import (
	"encoding/json"
	"io/ioutil"
	"os"
	"path/filepath"
	"strconv"

	"github.com/jmwhea/matchup/common"

	log "github.com/sirupsen/logrus"
)

// On disk the whole store is one JSON document: a "users" object mapping
// stringified user ids to profile records.
type snapshot struct {
	Users map[string]json.RawMessage `json:"users"`
}

type profileRecord struct {
	Games        []string                     `json:"games"`
	Timezone     string                       `json:"timezone,omitempty"`
	Availability map[string][]common.Interval `json:"availability,omitempty"`
}

// LoadStore reads the snapshot file at path into a new Store. A missing file,
// unreadable JSON, or a document without a "users" object all yield an empty
// store; individual user entries that don't decode are skipped. Load problems
// are logged but never fatal, so a damaged snapshot costs data rather than
// uptime.
func LoadStore(path string) *Store {
	store := NewStore()

	data, err := ioutil.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.WithField("datafile", path).WithError(err).Warn("Failed to read state snapshot, starting empty")
		}
		return store
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		log.WithField("datafile", path).WithError(err).Warn("State snapshot is not valid JSON, starting empty")
		return store
	}

	for key, raw := range snap.Users {
		uid, err := strconv.ParseUint(key, 10, 64)
		if err != nil {
			log.WithField("user", key).Warn("Skipping snapshot entry with non-numeric user id")
			continue
		}

		var record profileRecord
		if err := json.Unmarshal(raw, &record); err != nil {
			log.WithField("user", key).WithError(err).Warn("Skipping malformed snapshot entry")
			continue
		}

		p := store.profile(uid)
		p.Games = append(p.Games, record.Games...)
		p.Timezone = record.Timezone
		for day, intervals := range record.Availability {
			if !common.IsDayKey(day) {
				continue
			}
			kept := make([]common.Interval, 0, len(intervals))
			for _, iv := range intervals {
				if common.ValidateTime(iv.Start) && common.ValidateTime(iv.End) {
					kept = append(kept, iv)
				}
			}
			p.Availability[day] = kept
		}
	}

	return store
}

// Save writes the whole store back to path as pretty-printed JSON, creating
// the parent directory if needed. The file is rewritten in full on every
// call.
func (s *Store) Save(path string) error {
	users := make(map[string]json.RawMessage, len(s.users))
	for uid, p := range s.users {
		record := profileRecord{
			Games:        p.Games,
			Timezone:     p.Timezone,
			Availability: p.Availability,
		}
		if record.Games == nil {
			record.Games = []string{}
		}
		encoded, err := json.Marshal(record)
		if err != nil {
			return err
		}
		users[strconv.FormatUint(uid, 10)] = encoded
	}

	data, err := json.MarshalIndent(snapshot{Users: users}, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	return ioutil.WriteFile(path, data, 0644)
}
