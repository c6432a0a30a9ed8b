package model

import "time"

// Station is a stop a train departs from or arrives at.  Code is the
// short unique identifier printed on tickets (e.g. "GMR").
type Station struct {
	ID        uint64    `json:"id"`
	Name      string    `json:"name"`
	Code      string    `json:"code"`
	City      string    `json:"city"`
	Address   *string   `json:"address,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
