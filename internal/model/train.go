package model

import "time"

// Train classes.
const (
	TrainEksekutif = "Eksekutif"
	TrainBisnis    = "Bisnis"
	TrainEkonomi   = "Ekonomi"
)

// ValidTrainType reports whether t is one of the known classes.
func ValidTrainType(t string) bool {
	switch t {
	case TrainEksekutif, TrainBisnis, TrainEkonomi:
		return true
	}
	return false
}

// Train is a rolling-stock set.  TotalSeats is the seat pool every
// schedule of this train starts from and the ceiling its
// available_seats may never exceed.
type Train struct {
	ID         uint64    `json:"id"`
	Name       string    `json:"name"`
	Code       string    `json:"code"`
	Type       string    `json:"type"`
	Facilities []string  `json:"facilities"`
	TotalSeats int       `json:"total_seats"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
