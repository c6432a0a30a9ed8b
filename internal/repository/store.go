package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/train-ticket-booking/internal/model"
)

// TxQueries is the set of booking-lifecycle operations that run inside
// one database transaction.  It is implemented over *sql.Tx by Store and
// by in-memory fakes in tests.
type TxQueries interface {
	GetSchedule(ctx context.Context, id uint64) (model.Schedule, error)
	ReserveSeats(ctx context.Context, scheduleID uint64, n int) error
	ReleaseSeats(ctx context.Context, scheduleID uint64, n int) error
	InsertBooking(ctx context.Context, b *model.Booking) error
	InsertPassengers(ctx context.Context, bookingID uint64, ps []model.Passenger) error
	LockBooking(ctx context.Context, id uint64) (model.Booking, error)
	CountPassengers(ctx context.Context, bookingID uint64) (int, error)
	UpdateBookingStatus(ctx context.Context, id uint64, from, to model.BookingStatus, paymentDate *time.Time) (model.Booking, error)
}

// Store runs booking transactions against MySQL and serves the booking
// read views.
type Store struct {
	db        *sql.DB
	schedules *ScheduleRepo
	bookings  *BookingRepo
}

// NewStore builds a Store sharing db with the schedule and booking repos.
func NewStore(db *sql.DB, schedules *ScheduleRepo, bookings *BookingRepo) *Store {
	return &Store{db: db, schedules: schedules, bookings: bookings}
}

// InTx begins a transaction, hands fn a TxQueries bound to it and commits
// when fn returns nil.  Any error from fn, or a panic, rolls everything
// back so a failed create never keeps its seat reservation.
func (s *Store) InTx(ctx context.Context, fn func(q TxQueries) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(&txQueries{tx: tx, schedules: s.schedules, bookings: s.bookings}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return classify(err)
	}
	committed = true
	return nil
}

// GetDetail returns the read view of one booking.
func (s *Store) GetDetail(ctx context.Context, id uint64) (model.BookingDetail, error) {
	return s.bookings.GetDetail(ctx, id)
}

// ListDetails returns booking read views; nil userID lists all bookings.
func (s *Store) ListDetails(ctx context.Context, userID *uint64) ([]model.BookingDetail, error) {
	return s.bookings.ListDetails(ctx, userID)
}

type txQueries struct {
	tx        *sql.Tx
	schedules *ScheduleRepo
	bookings  *BookingRepo
}

func (q *txQueries) GetSchedule(ctx context.Context, id uint64) (model.Schedule, error) {
	return q.schedules.GetByIDTx(ctx, q.tx, id)
}

func (q *txQueries) ReserveSeats(ctx context.Context, scheduleID uint64, n int) error {
	return q.schedules.ReserveSeatsTx(ctx, q.tx, scheduleID, n)
}

func (q *txQueries) ReleaseSeats(ctx context.Context, scheduleID uint64, n int) error {
	return q.schedules.ReleaseSeatsTx(ctx, q.tx, scheduleID, n)
}

func (q *txQueries) InsertBooking(ctx context.Context, b *model.Booking) error {
	return q.bookings.InsertTx(ctx, q.tx, b)
}

func (q *txQueries) InsertPassengers(ctx context.Context, bookingID uint64, ps []model.Passenger) error {
	return q.bookings.InsertPassengersTx(ctx, q.tx, bookingID, ps)
}

func (q *txQueries) LockBooking(ctx context.Context, id uint64) (model.Booking, error) {
	return q.bookings.LockTx(ctx, q.tx, id)
}

func (q *txQueries) CountPassengers(ctx context.Context, bookingID uint64) (int, error) {
	return q.bookings.CountPassengersTx(ctx, q.tx, bookingID)
}

func (q *txQueries) UpdateBookingStatus(ctx context.Context, id uint64, from, to model.BookingStatus, paymentDate *time.Time) (model.Booking, error) {
	return q.bookings.UpdateStatusTx(ctx, q.tx, id, from, to, paymentDate)
}
