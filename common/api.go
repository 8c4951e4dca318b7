package common

// SoftwareName is the name of this software
const SoftwareName = "matchup"

// SoftwareVersion is the version of this software
const SoftwareVersion = "v1.0.0"

// APIVersion is the version of the REST API implemented by the server package
const APIVersion uint = 1

// InfoResponse is the JSON response to the /info REST method
type InfoResponse struct {
	Software string `json:"software"`
	Version  string `json:"version"`
	API      uint   `json:"apiVersion"`
}

// ProfileResponse is the JSON response to the /profile REST method.
// Availability always contains all seven weekday keys.
type ProfileResponse struct {
	Games        []string              `json:"games"`
	Timezone     string                `json:"timezone,omitempty"`
	Availability map[string][]Interval `json:"availability"`
}

// ReadyPlayer is one entry of the JSON response to the /ready REST method.
// Games holds the titles shared with the requesting user, in the requesting
// user's own spelling and order.
type ReadyPlayer struct {
	User  uint64   `json:"user"`
	Games []string `json:"games"`
}

// ChangeEvent is pushed over the /watch websocket whenever a profile mutates.
type ChangeEvent struct {
	User   uint64 `json:"user"`
	Change string `json:"change"`
}

// Change kinds carried by ChangeEvent
const (
	ChangeGames        = "games"
	ChangeTimezone     = "timezone"
	ChangeAvailability = "availability"
)
