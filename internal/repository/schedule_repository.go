package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/train-ticket-booking/internal/model"
)

// ScheduleRepo manages persistence for schedules and owns the seat
// inventory: ReserveSeatsTx and ReleaseSeatsTx are the only code paths
// that move available_seats once a schedule exists.
type ScheduleRepo struct {
	db *sql.DB
}

// NewScheduleRepo constructs a ScheduleRepo with the given DB handle.
func NewScheduleRepo(db *sql.DB) *ScheduleRepo { return &ScheduleRepo{db: db} }

// DB exposes the underlying sql.DB so callers can begin transactions
// spanning multiple repositories.
func (r *ScheduleRepo) DB() *sql.DB { return r.db }

const scheduleColumns = `s.id, s.train_id, s.origin_id, s.destination_id, s.departure_time, s.arrival_time,
	s.price, s.available_seats, s.is_active, s.created_at, s.updated_at`

const scheduleViewSelect = `SELECT ` + scheduleColumns + `,
	t.name, t.code, t.type, t.total_seats,
	o.name, o.code, d.name, d.code
	FROM schedules s
	JOIN trains t   ON t.id = s.train_id
	JOIN stations o ON o.id = s.origin_id
	JOIN stations d ON d.id = s.destination_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSchedule(row rowScanner, s *model.Schedule) error {
	return row.Scan(&s.ID, &s.TrainID, &s.OriginID, &s.DestinationID, &s.DepartureTime, &s.ArrivalTime,
		&s.Price, &s.AvailableSeats, &s.IsActive, &s.CreatedAt, &s.UpdatedAt)
}

func scanScheduleView(row rowScanner, v *model.ScheduleView) error {
	s := &v.Schedule
	return row.Scan(&s.ID, &s.TrainID, &s.OriginID, &s.DestinationID, &s.DepartureTime, &s.ArrivalTime,
		&s.Price, &s.AvailableSeats, &s.IsActive, &s.CreatedAt, &s.UpdatedAt,
		&v.TrainName, &v.TrainCode, &v.TrainType, &v.TotalSeats,
		&v.OriginName, &v.OriginCode, &v.DestinationName, &v.DestinationCode)
}

// GetByIDTx loads a schedule inside tx.  It returns ErrScheduleNotFound
// when no row matches.
func (r *ScheduleRepo) GetByIDTx(ctx context.Context, tx *sql.Tx, id uint64) (model.Schedule, error) {
	var s model.Schedule
	err := scanSchedule(tx.QueryRowContext(ctx, `SELECT `+scheduleColumns+` FROM schedules s WHERE s.id = ?`, id), &s)
	if errors.Is(err, sql.ErrNoRows) {
		return s, ErrScheduleNotFound
	}
	return s, classify(err)
}

// GetView returns a schedule joined with its train and stations.
func (r *ScheduleRepo) GetView(ctx context.Context, id uint64) (model.ScheduleView, error) {
	var v model.ScheduleView
	err := scanScheduleView(r.db.QueryRowContext(ctx, scheduleViewSelect+` WHERE s.id = ?`, id), &v)
	if errors.Is(err, sql.ErrNoRows) {
		return v, ErrScheduleNotFound
	}
	return v, classify(err)
}

// ListActive returns every active schedule ordered by departure time.
func (r *ScheduleRepo) ListActive(ctx context.Context) ([]model.ScheduleView, error) {
	return r.queryViews(ctx, scheduleViewSelect+` WHERE s.is_active = 1 ORDER BY s.departure_time ASC`)
}

// Search returns active schedules between two stations departing on the
// given calendar day (UTC) that still have at least one free seat.
func (r *ScheduleRepo) Search(ctx context.Context, originID, destinationID uint64, day time.Time) ([]model.ScheduleView, error) {
	from := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	to := from.AddDate(0, 0, 1)
	q := scheduleViewSelect + `
		WHERE s.origin_id = ? AND s.destination_id = ?
		  AND s.departure_time >= ? AND s.departure_time < ?
		  AND s.is_active = 1 AND s.available_seats > 0
		ORDER BY s.departure_time ASC`
	return r.queryViews(ctx, q, originID, destinationID, from, to)
}

func (r *ScheduleRepo) queryViews(ctx context.Context, q string, args ...any) ([]model.ScheduleView, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()
	out := []model.ScheduleView{}
	for rows.Next() {
		var v model.ScheduleView
		if err := scanScheduleView(rows, &v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// trainSeatPoolTx returns the total_seats of a train, locking the train
// row in share mode so the pool cannot shrink underneath the caller.
func trainSeatPoolTx(ctx context.Context, tx *sql.Tx, trainID uint64) (int, error) {
	var total int
	err := tx.QueryRowContext(ctx, `SELECT total_seats FROM trains WHERE id = ? LOCK IN SHARE MODE`, trainID).Scan(&total)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrTrainNotFound
	}
	return total, classify(err)
}

// Create inserts a schedule.  A negative AvailableSeats means "not
// supplied" and defaults to the train's total_seats; any other value must
// lie within [0, total_seats].  The stored row is read back into s.
func (r *ScheduleRepo) Create(ctx context.Context, s *model.Schedule) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	pool, err := trainSeatPoolTx(ctx, tx, s.TrainID)
	if err != nil {
		return err
	}
	if s.AvailableSeats < 0 {
		s.AvailableSeats = pool
	}
	if s.AvailableSeats > pool {
		return ErrInvalidSeatCount
	}
	const q = `INSERT INTO schedules (train_id, origin_id, destination_id, departure_time, arrival_time, price, available_seats, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, q, s.TrainID, s.OriginID, s.DestinationID,
		s.DepartureTime.UTC(), s.ArrivalTime.UTC(), s.Price, s.AvailableSeats, s.IsActive)
	if err != nil {
		return classify(err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	stored, err := r.GetByIDTx(ctx, tx, uint64(id))
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return classify(err)
	}
	committed = true
	*s = stored
	return nil
}

// Update applies p to the schedule with the given id and returns the
// stored row.  The row is locked and the patch is applied to the locked
// copy, so fields the patch leaves nil keep whatever concurrent bookings
// committed.  available_seats is only written when p sets it, and must then
// lie within [0, total_seats].  check, when non-nil, vets the merged row
// before anything is written.
func (r *ScheduleRepo) Update(ctx context.Context, id uint64, p model.SchedulePatch, check func(model.Schedule) error) (model.Schedule, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Schedule{}, classify(err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var s model.Schedule
	err = scanSchedule(tx.QueryRowContext(ctx, `SELECT `+scheduleColumns+` FROM schedules s WHERE s.id = ? FOR UPDATE`, id), &s)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Schedule{}, ErrScheduleNotFound
	}
	if err != nil {
		return model.Schedule{}, classify(err)
	}
	p.Apply(&s)
	if check != nil {
		if err := check(s); err != nil {
			return model.Schedule{}, err
		}
	}
	if p.TrainID != nil || p.AvailableSeats != nil {
		pool, err := trainSeatPoolTx(ctx, tx, s.TrainID)
		if err != nil {
			return model.Schedule{}, err
		}
		if s.AvailableSeats < 0 || s.AvailableSeats > pool {
			return model.Schedule{}, ErrInvalidSeatCount
		}
	}

	q := `UPDATE schedules SET train_id = ?, origin_id = ?, destination_id = ?, departure_time = ?, arrival_time = ?,
		price = ?, is_active = ?`
	args := []any{s.TrainID, s.OriginID, s.DestinationID, s.DepartureTime.UTC(), s.ArrivalTime.UTC(), s.Price, s.IsActive}
	if p.AvailableSeats != nil {
		q += `, available_seats = ?`
		args = append(args, s.AvailableSeats)
	}
	q += `, updated_at = NOW() WHERE id = ?`
	args = append(args, id)
	if _, err := tx.ExecContext(ctx, q, args...); err != nil {
		return model.Schedule{}, classify(err)
	}
	stored, err := r.GetByIDTx(ctx, tx, id)
	if err != nil {
		return model.Schedule{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.Schedule{}, classify(err)
	}
	committed = true
	return stored, nil
}

// Delete removes a schedule.  Schedules referenced by bookings cannot be
// removed and yield ErrConflict.
func (r *ScheduleRepo) Delete(ctx context.Context, id uint64) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM schedules WHERE id = ?`, id)
	if err != nil {
		return classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrScheduleNotFound
	}
	return nil
}

// ReserveSeatsTx takes n seats from a schedule in one conditional UPDATE,
// so concurrent reservations on the same row serialize on the row lock
// and can never drive available_seats below zero.  When no row changes,
// a follow-up lookup tells a missing schedule apart from a full one.
func (r *ScheduleRepo) ReserveSeatsTx(ctx context.Context, tx *sql.Tx, scheduleID uint64, n int) error {
	if n < 1 {
		return ErrInvalidSeatCount
	}
	const q = `UPDATE schedules SET available_seats = available_seats - ?, updated_at = NOW()
		WHERE id = ? AND available_seats >= ?`
	res, err := tx.ExecContext(ctx, q, n, scheduleID, n)
	if err != nil {
		return classify(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 1 {
		return nil
	}
	if err := r.existsTx(ctx, tx, scheduleID); err != nil {
		return err
	}
	return ErrInsufficientSeats
}

// ReleaseSeatsTx gives n seats back to a schedule, capped at the train's
// total_seats so a release without a matching reservation cannot grow the
// pool.
func (r *ScheduleRepo) ReleaseSeatsTx(ctx context.Context, tx *sql.Tx, scheduleID uint64, n int) error {
	if n < 1 {
		return ErrInvalidSeatCount
	}
	const q = `UPDATE schedules s JOIN trains t ON t.id = s.train_id
		SET s.available_seats = LEAST(s.available_seats + ?, t.total_seats), s.updated_at = NOW()
		WHERE s.id = ?`
	res, err := tx.ExecContext(ctx, q, n, scheduleID)
	if err != nil {
		return classify(err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		// Either the schedule is gone or it was already at the cap.
		return r.existsTx(ctx, tx, scheduleID)
	}
	return nil
}

func (r *ScheduleRepo) existsTx(ctx context.Context, tx *sql.Tx, scheduleID uint64) error {
	var id uint64
	err := tx.QueryRowContext(ctx, `SELECT id FROM schedules WHERE id = ?`, scheduleID).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrScheduleNotFound
	}
	return classify(err)
}
