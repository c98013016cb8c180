package models

import "time"

// Position is an immutable location sample. Speed is in m/s.
type Position struct {
	Latitude  float64   `json:"latitude"`
	Longitude float64   `json:"longitude"`
	Heading   *float64  `json:"heading,omitempty"`
	Speed     *float64  `json:"speed,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// LocationUpdate is the payload of a location broadcast: a position plus the washer that sent it.
type LocationUpdate struct {
	WasherID string `json:"washer_id"`
	Position
}
