package model

import "time"

// Schedule is one run of a train between two stations.  AvailableSeats
// is owned by the seat inventory: bookings decrement it and cancellations
// give seats back, never beyond the train's TotalSeats.
type Schedule struct {
	ID             uint64    `json:"id"`
	TrainID        uint64    `json:"train_id"`
	OriginID       uint64    `json:"origin_id"`
	DestinationID  uint64    `json:"destination_id"`
	DepartureTime  time.Time `json:"departure_time"`
	ArrivalTime    time.Time `json:"arrival_time"`
	Price          Money     `json:"price"`
	AvailableSeats int       `json:"available_seats"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// ScheduleView is a schedule joined with its train and stations, as
// returned by listing and search endpoints.
type ScheduleView struct {
	Schedule
	TrainName       string `json:"train_name"`
	TrainCode       string `json:"train_code"`
	TrainType       string `json:"train_type"`
	TotalSeats      int    `json:"total_seats"`
	OriginName      string `json:"origin_name"`
	OriginCode      string `json:"origin_code"`
	DestinationName string `json:"destination_name"`
	DestinationCode string `json:"destination_code"`
}

// SchedulePatch holds the fields of a partial schedule update.  Nil fields
// keep their stored value.  AvailableSeats is only written when set.
type SchedulePatch struct {
	TrainID        *uint64    `json:"train_id"`
	OriginID       *uint64    `json:"origin_id"`
	DestinationID  *uint64    `json:"destination_id"`
	DepartureTime  *time.Time `json:"departure_time"`
	ArrivalTime    *time.Time `json:"arrival_time"`
	Price          *Money     `json:"price"`
	AvailableSeats *int       `json:"available_seats"`
	IsActive       *bool      `json:"is_active"`
}

// Apply overlays the supplied fields onto s.
func (p SchedulePatch) Apply(s *Schedule) {
	if p.TrainID != nil {
		s.TrainID = *p.TrainID
	}
	if p.OriginID != nil {
		s.OriginID = *p.OriginID
	}
	if p.DestinationID != nil {
		s.DestinationID = *p.DestinationID
	}
	if p.DepartureTime != nil {
		s.DepartureTime = p.DepartureTime.UTC()
	}
	if p.ArrivalTime != nil {
		s.ArrivalTime = p.ArrivalTime.UTC()
	}
	if p.Price != nil {
		s.Price = *p.Price
	}
	if p.AvailableSeats != nil {
		s.AvailableSeats = *p.AvailableSeats
	}
	if p.IsActive != nil {
		s.IsActive = *p.IsActive
	}
}
