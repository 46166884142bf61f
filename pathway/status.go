package pathway

import "time"

type Status struct {
	// AzPos and ElPos are in decimal degrees, as of the last successful
	// parse. The positioner may still be moving.
	AzPos float64 `json:"azimuth"`
	ElPos float64 `json:"elevation"`

	Initialized bool `json:"initialized"`
	// Updated is the time of the last successful position parse.
	Updated time.Time `json:"updated"`

	LastCommand  string `json:"last_command"`
	LastResponse string `json:"last_response"`
}

type StatusCallback func(status Status)
