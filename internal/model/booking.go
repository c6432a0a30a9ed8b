package model

import (
	"regexp"
	"time"
)

// BookingStatus is the lifecycle state of a booking.
type BookingStatus string

const (
	StatusPending   BookingStatus = "pending"
	StatusConfirmed BookingStatus = "confirmed"
	StatusCompleted BookingStatus = "completed"
	StatusCancelled BookingStatus = "cancelled"
)

// transitions lists every allowed status change.  Cancelled and completed
// are terminal; nothing currently moves a booking into completed.
var transitions = map[BookingStatus][]BookingStatus{
	StatusPending:   {StatusConfirmed, StatusCancelled},
	StatusConfirmed: {StatusCancelled},
}

// CanTransition reports whether a booking in status s may move to next.
func (s BookingStatus) CanTransition(next BookingStatus) bool {
	for _, t := range transitions[s] {
		if t == next {
			return true
		}
	}
	return false
}

// HoldsSeats reports whether a booking in this status still occupies
// inventory.
func (s BookingStatus) HoldsSeats() bool {
	return s == StatusPending || s == StatusConfirmed || s == StatusCompleted
}

// Valid reports whether s is a known status.
func (s BookingStatus) Valid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// Booking code layout: KAS-<year>-<6 chars of [0-9A-Z]>.
const (
	BookingCodePrefix    = "KAS"
	BookingCodeSuffixLen = 6
	BookingCodeAlphabet  = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"
)

var bookingCodeRe = regexp.MustCompile(`^KAS-[0-9]{4}-[0-9A-Z]{6}$`)

// ValidBookingCode reports whether code matches the booking code layout.
func ValidBookingCode(code string) bool { return bookingCodeRe.MatchString(code) }

// Booking records one purchase covering one or more passengers on a
// schedule.  TotalPrice is frozen at creation.
type Booking struct {
	ID          uint64        `json:"id"`
	BookingCode string        `json:"booking_code"`
	UserID      uint64        `json:"user_id"`
	ScheduleID  uint64        `json:"schedule_id"`
	TotalPrice  Money         `json:"total_price"`
	Status      BookingStatus `json:"status"`
	BookingDate time.Time     `json:"booking_date"`
	PaymentDate *time.Time    `json:"payment_date"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

// Passenger belongs to exactly one booking and is never updated after
// the booking is created.
type Passenger struct {
	ID         uint64 `json:"id"`
	BookingID  uint64 `json:"booking_id"`
	Name       string `json:"name"`
	IDNumber   string `json:"id_number"`
	SeatNumber string `json:"seat_number"`
}

// BookingDetail is the denormalised read view of a booking: the booking
// itself plus the user, schedule, train and station fields a ticket
// shows, and its passengers.
type BookingDetail struct {
	Booking
	UserName        string      `json:"user_name"`
	UserEmail       string      `json:"user_email"`
	DepartureTime   time.Time   `json:"departure_time"`
	ArrivalTime     time.Time   `json:"arrival_time"`
	Price           Money       `json:"price"`
	TrainName       string      `json:"train_name"`
	TrainCode       string      `json:"train_code"`
	TrainType       string      `json:"train_type"`
	OriginName      string      `json:"origin_name"`
	OriginCode      string      `json:"origin_code"`
	DestinationName string      `json:"destination_name"`
	DestinationCode string      `json:"destination_code"`
	Passengers      []Passenger `json:"passengers"`
}
