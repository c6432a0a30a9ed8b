// Package queue defines the booking event payloads exchanged over RabbitMQ,
// the publisher used by the booking lifecycle and the consumer that keeps
// cached schedule listings in step with seat availability.
package queue

import "time"

// Event types double as routing keys and queue names.
const (
	BookingCreated   = "booking.created"
	BookingConfirmed = "booking.confirmed"
	BookingCancelled = "booking.cancelled"
)

// EventTypes lists every booking event queue.
var EventTypes = []string{BookingCreated, BookingConfirmed, BookingCancelled}

// BookingEvent is published after a booking transaction commits.  It
// carries enough for consumers to log, notify or invalidate caches
// without querying the primary database.
type BookingEvent struct {
	Type        string    `json:"type"`
	BookingID   uint64    `json:"booking_id"`
	BookingCode string    `json:"booking_code"`
	UserID      uint64    `json:"user_id"`
	ScheduleID  uint64    `json:"schedule_id"`
	Passengers  int       `json:"passengers"`
	Status      string    `json:"status"`
	TotalPrice  string    `json:"total_price"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// ChangesSeats reports whether the event moved the schedule's
// available_seats counter.
func (e BookingEvent) ChangesSeats() bool {
	return e.Type == BookingCreated || e.Type == BookingCancelled
}
