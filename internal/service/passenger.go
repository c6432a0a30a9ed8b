package service

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/iliyamo/train-ticket-booking/internal/model"
)

// Passenger field limits.
const (
	MaxPassengers    = 10
	minNameLen       = 2
	maxNameLen       = 100
	minIDNumberLen   = 5
	maxIDNumberLen   = 30
	maxSeatNumberLen = 10
)

// PassengerInput is one passenger of a create-booking request.
// SeatNumber is optional.
type PassengerInput struct {
	Name       string `json:"name"`
	IDNumber   string `json:"id_number"`
	SeatNumber string `json:"seat_number"`
}

// normalizePassengers validates the request passengers and returns the
// records to persist.  A missing seat number defaults to A<position>;
// seat labels are free text and are not checked for uniqueness.
func normalizePassengers(in []PassengerInput) ([]model.Passenger, error) {
	if len(in) == 0 {
		return nil, invalid("passengers", "at least one passenger is required")
	}
	if len(in) > MaxPassengers {
		return nil, invalid("passengers", "at most %d passengers per booking", MaxPassengers)
	}
	out := make([]model.Passenger, len(in))
	for i, p := range in {
		field := fmt.Sprintf("passengers[%d]", i)
		name := strings.TrimSpace(p.Name)
		if n := utf8.RuneCountInString(name); n < minNameLen || n > maxNameLen {
			return nil, invalid(field+".name", "must be %d to %d characters", minNameLen, maxNameLen)
		}
		idNum := strings.TrimSpace(p.IDNumber)
		if n := utf8.RuneCountInString(idNum); n < minIDNumberLen || n > maxIDNumberLen {
			return nil, invalid(field+".id_number", "must be %d to %d characters", minIDNumberLen, maxIDNumberLen)
		}
		seat := strings.TrimSpace(p.SeatNumber)
		if seat == "" {
			seat = fmt.Sprintf("A%d", i+1)
		}
		if utf8.RuneCountInString(seat) > maxSeatNumberLen {
			return nil, invalid(field+".seat_number", "must be at most %d characters", maxSeatNumberLen)
		}
		out[i] = model.Passenger{Name: name, IDNumber: idNum, SeatNumber: seat}
	}
	return out, nil
}
