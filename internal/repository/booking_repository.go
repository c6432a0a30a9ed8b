package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/iliyamo/train-ticket-booking/internal/model"
)

// BookingRepo persists bookings and their passengers.  Writes happen
// inside a caller-owned transaction (the ...Tx methods); the read side
// (GetDetail, ListDetails) joins users, schedules, trains and both
// stations to build the view returned to clients.  All timestamps are
// stored in UTC.
type BookingRepo struct {
	db *sql.DB
}

// NewBookingRepo returns a new BookingRepo bound to the given database.
func NewBookingRepo(db *sql.DB) *BookingRepo { return &BookingRepo{db: db} }

const bookingColumns = `b.id, b.booking_code, b.user_id, b.schedule_id, b.total_price, b.status,
	b.booking_date, b.payment_date, b.created_at, b.updated_at`

func scanBooking(row rowScanner, b *model.Booking, extra ...any) error {
	var paid sql.NullTime
	dest := []any{&b.ID, &b.BookingCode, &b.UserID, &b.ScheduleID, &b.TotalPrice, &b.Status,
		&b.BookingDate, &paid, &b.CreatedAt, &b.UpdatedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return err
	}
	b.PaymentDate = nil
	if paid.Valid {
		t := paid.Time
		b.PaymentDate = &t
	}
	return nil
}

// InsertTx inserts a booking and reads the stored row back into b so that
// the generated id and timestamps are populated.  A booking_code that is
// already taken yields ErrDuplicate; InnoDB rolls back only the failed
// statement, so the caller may retry with a fresh code in the same tx.
func (r *BookingRepo) InsertTx(ctx context.Context, tx *sql.Tx, b *model.Booking) error {
	const q = `INSERT INTO bookings (booking_code, user_id, schedule_id, total_price, status, booking_date)
		VALUES (?, ?, ?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, q, b.BookingCode, b.UserID, b.ScheduleID, b.TotalPrice, string(b.Status), b.BookingDate.UTC())
	if err != nil {
		return classify(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	err = scanBooking(tx.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings b WHERE b.id = ?`, id), b)
	return classify(err)
}

// InsertPassengersTx inserts all passengers of a booking in a single
// multi-row statement.  Passing an empty slice has no effect.
func (r *BookingRepo) InsertPassengersTx(ctx context.Context, tx *sql.Tx, bookingID uint64, ps []model.Passenger) error {
	if len(ps) == 0 {
		return nil
	}
	var sb strings.Builder
	sb.WriteString(`INSERT INTO passengers (booking_id, name, id_number, seat_number) VALUES `)
	args := make([]any, 0, len(ps)*4)
	for i, p := range ps {
		if i > 0 {
			sb.WriteString(",")
		}
		sb.WriteString("(?, ?, ?, ?)")
		args = append(args, bookingID, p.Name, p.IDNumber, p.SeatNumber)
	}
	_, err := tx.ExecContext(ctx, sb.String(), args...)
	return classify(err)
}

// LockTx loads a booking and holds its row lock until tx ends, so two
// concurrent confirm/cancel calls on the same booking are serialized and
// the second one observes the first one's status.
func (r *BookingRepo) LockTx(ctx context.Context, tx *sql.Tx, id uint64) (model.Booking, error) {
	var b model.Booking
	err := scanBooking(tx.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings b WHERE b.id = ? FOR UPDATE`, id), &b)
	if errors.Is(err, sql.ErrNoRows) {
		return b, ErrBookingNotFound
	}
	return b, classify(err)
}

// CountPassengersTx returns how many passengers a booking holds seats for.
func (r *BookingRepo) CountPassengersTx(ctx context.Context, tx *sql.Tx, bookingID uint64) (int, error) {
	var n int
	err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM passengers WHERE booking_id = ?`, bookingID).Scan(&n)
	return n, classify(err)
}

// UpdateStatusTx moves a booking from one status to another.  The update
// is conditional on the current status; if it no longer matches,
// ErrInvalidTransition is returned.  A non-nil paymentDate is stamped on
// the row, otherwise payment_date is left as is.
func (r *BookingRepo) UpdateStatusTx(ctx context.Context, tx *sql.Tx, id uint64, from, to model.BookingStatus, paymentDate *time.Time) (model.Booking, error) {
	var paid any
	if paymentDate != nil {
		paid = paymentDate.UTC()
	}
	const q = `UPDATE bookings SET status = ?, payment_date = COALESCE(?, payment_date), updated_at = NOW()
		WHERE id = ? AND status = ?`
	res, err := tx.ExecContext(ctx, q, string(to), paid, id, string(from))
	if err != nil {
		return model.Booking{}, classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.Booking{}, err
	}
	if n == 0 {
		return model.Booking{}, ErrInvalidTransition
	}
	var b model.Booking
	err = scanBooking(tx.QueryRowContext(ctx, `SELECT `+bookingColumns+` FROM bookings b WHERE b.id = ?`, id), &b)
	return b, classify(err)
}

const bookingDetailSelect = `SELECT ` + bookingColumns + `,
	u.name, u.email,
	s.departure_time, s.arrival_time, s.price,
	t.name, t.code, t.type,
	o.name, o.code, d.name, d.code
	FROM bookings b
	JOIN users u    ON u.id = b.user_id
	JOIN schedules s ON s.id = b.schedule_id
	JOIN trains t   ON t.id = s.train_id
	JOIN stations o ON o.id = s.origin_id
	JOIN stations d ON d.id = s.destination_id`

func scanBookingDetail(row rowScanner, d *model.BookingDetail) error {
	return scanBooking(row, &d.Booking,
		&d.UserName, &d.UserEmail,
		&d.DepartureTime, &d.ArrivalTime, &d.Price,
		&d.TrainName, &d.TrainCode, &d.TrainType,
		&d.OriginName, &d.OriginCode, &d.DestinationName, &d.DestinationCode)
}

// GetDetail returns the denormalised view of one booking with its
// passengers ordered by id.
func (r *BookingRepo) GetDetail(ctx context.Context, id uint64) (model.BookingDetail, error) {
	var d model.BookingDetail
	err := scanBookingDetail(r.db.QueryRowContext(ctx, bookingDetailSelect+` WHERE b.id = ?`, id), &d)
	if errors.Is(err, sql.ErrNoRows) {
		return d, ErrBookingNotFound
	}
	if err != nil {
		return d, classify(err)
	}
	d.Passengers = []model.Passenger{}
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, booking_id, name, id_number, seat_number FROM passengers WHERE booking_id = ? ORDER BY id`, d.ID)
	if err != nil {
		return d, classify(err)
	}
	defer rows.Close()
	for rows.Next() {
		var p model.Passenger
		if err := rows.Scan(&p.ID, &p.BookingID, &p.Name, &p.IDNumber, &p.SeatNumber); err != nil {
			return d, err
		}
		d.Passengers = append(d.Passengers, p)
	}
	return d, rows.Err()
}

// ListDetails returns booking views newest first.  A non-nil userID
// restricts the list to that user's bookings; nil lists every booking.
// Passengers for all returned bookings are loaded with one extra query.
func (r *BookingRepo) ListDetails(ctx context.Context, userID *uint64) ([]model.BookingDetail, error) {
	q := bookingDetailSelect
	var args []any
	if userID != nil {
		q += ` WHERE b.user_id = ?`
		args = append(args, *userID)
	}
	q += ` ORDER BY b.created_at DESC, b.id DESC`

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()
	details := make([]model.BookingDetail, 0)
	index := make(map[uint64]int)
	for rows.Next() {
		var d model.BookingDetail
		if err := scanBookingDetail(rows, &d); err != nil {
			return nil, err
		}
		d.Passengers = []model.Passenger{}
		index[d.ID] = len(details)
		details = append(details, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(details) == 0 {
		return details, nil
	}

	placeholders := make([]string, len(details))
	pargs := make([]any, len(details))
	for i, d := range details {
		placeholders[i] = "?"
		pargs[i] = d.ID
	}
	pq := `SELECT id, booking_id, name, id_number, seat_number FROM passengers
		WHERE booking_id IN (` + strings.Join(placeholders, ",") + `) ORDER BY booking_id, id`
	prows, err := r.db.QueryContext(ctx, pq, pargs...)
	if err != nil {
		return nil, classify(err)
	}
	defer prows.Close()
	for prows.Next() {
		var p model.Passenger
		if err := prows.Scan(&p.ID, &p.BookingID, &p.Name, &p.IDNumber, &p.SeatNumber); err != nil {
			return nil, err
		}
		if i, ok := index[p.BookingID]; ok {
			details[i].Passengers = append(details[i].Passengers, p)
		}
	}
	return details, prows.Err()
}
