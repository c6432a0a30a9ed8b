package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/train-ticket-booking/internal/model"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

// inTx runs fn inside a real *sql.Tx on the mock and commits.
func inTx(t *testing.T, db *sql.DB, fn func(tx *sql.Tx) error) error {
	t.Helper()
	tx, err := db.Begin()
	require.NoError(t, err)
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

var (
	reserveSQL = regexp.QuoteMeta(`UPDATE schedules SET available_seats = available_seats - ?, updated_at = NOW() WHERE id = ? AND available_seats >= ?`)
	releaseSQL = regexp.QuoteMeta(`SET s.available_seats = LEAST(s.available_seats + ?, t.total_seats)`)
	existsSQL  = regexp.QuoteMeta(`SELECT id FROM schedules WHERE id = ?`)
)

func TestReserveSeatsTx(t *testing.T) {
	ctx := context.Background()

	t.Run("conditional decrement", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectExec(reserveSQL).WithArgs(2, 7, 2).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := inTx(t, db, func(tx *sql.Tx) error { return NewScheduleRepo(db).ReserveSeatsTx(ctx, tx, 7, 2) })
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("not enough seats", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectExec(reserveSQL).WithArgs(5, 7, 5).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(existsSQL).WithArgs(7).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
		mock.ExpectRollback()

		err := inTx(t, db, func(tx *sql.Tx) error { return NewScheduleRepo(db).ReserveSeatsTx(ctx, tx, 7, 5) })
		assert.ErrorIs(t, err, ErrInsufficientSeats)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing schedule", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectExec(reserveSQL).WithArgs(1, 404, 1).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(existsSQL).WithArgs(404).WillReturnRows(sqlmock.NewRows([]string{"id"}))
		mock.ExpectRollback()

		err := inTx(t, db, func(tx *sql.Tx) error { return NewScheduleRepo(db).ReserveSeatsTx(ctx, tx, 404, 1) })
		assert.ErrorIs(t, err, ErrScheduleNotFound)
		assert.ErrorIs(t, err, ErrNotFound)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("non-positive count issues no SQL", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectRollback()

		err := inTx(t, db, func(tx *sql.Tx) error { return NewScheduleRepo(db).ReserveSeatsTx(ctx, tx, 7, 0) })
		assert.ErrorIs(t, err, ErrInvalidSeatCount)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("deadlock is transient", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectExec(reserveSQL).WillReturnError(&mysql.MySQLError{Number: 1213, Message: "Deadlock found"})
		mock.ExpectRollback()

		err := inTx(t, db, func(tx *sql.Tx) error { return NewScheduleRepo(db).ReserveSeatsTx(ctx, tx, 7, 1) })
		assert.ErrorIs(t, err, ErrTransient)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestReleaseSeatsTx(t *testing.T) {
	ctx := context.Background()

	t.Run("capped at the train pool", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectExec(releaseSQL).WithArgs(3, 7).WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectCommit()

		err := inTx(t, db, func(tx *sql.Tx) error { return NewScheduleRepo(db).ReleaseSeatsTx(ctx, tx, 7, 3) })
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("already full is not an error", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectExec(releaseSQL).WithArgs(1, 7).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(existsSQL).WithArgs(7).WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
		mock.ExpectCommit()

		err := inTx(t, db, func(tx *sql.Tx) error { return NewScheduleRepo(db).ReleaseSeatsTx(ctx, tx, 7, 1) })
		require.NoError(t, err)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing schedule", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectExec(releaseSQL).WithArgs(1, 9).WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectQuery(existsSQL).WithArgs(9).WillReturnRows(sqlmock.NewRows([]string{"id"}))
		mock.ExpectRollback()

		err := inTx(t, db, func(tx *sql.Tx) error { return NewScheduleRepo(db).ReleaseSeatsTx(ctx, tx, 9, 1) })
		assert.ErrorIs(t, err, ErrScheduleNotFound)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

var bookingCols = []string{"id", "booking_code", "user_id", "schedule_id", "total_price", "status",
	"booking_date", "payment_date", "created_at", "updated_at"}

func TestScheduleUpdate(t *testing.T) {
	dep := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	cols := []string{"id", "train_id", "origin_id", "destination_id", "departure_time", "arrival_time",
		"price", "available_seats", "is_active", "created_at", "updated_at"}
	row := func(seats int, price string) *sqlmock.Rows {
		return sqlmock.NewRows(cols).AddRow(5, 1, 1, 2, dep, dep.Add(4*time.Hour), price, seats, true, dep, dep)
	}
	lockSQL := regexp.QuoteMeta(`FROM schedules s WHERE s.id = ? FOR UPDATE`)
	readSQL := regexp.QuoteMeta(`FROM schedules s WHERE s.id = ?`)
	poolSQL := regexp.QuoteMeta(`SELECT total_seats FROM trains WHERE id = ? LOCK IN SHARE MODE`)

	t.Run("price only never writes available_seats", func(t *testing.T) {
		db, mock := newMock(t)
		price := model.Money(1200000)
		mock.ExpectBegin()
		// 29 seats left after a concurrent booking
		mock.ExpectQuery(lockSQL).WithArgs(5).WillReturnRows(row(29, "100.00"))
		mock.ExpectExec(regexp.QuoteMeta(`price = ?, is_active = ?, updated_at = NOW() WHERE id = ?`)).
			WithArgs(1, 1, 2, sqlmock.AnyArg(), sqlmock.AnyArg(), price, true, 5).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(readSQL).WithArgs(5).WillReturnRows(row(29, "12000.00"))
		mock.ExpectCommit()

		got, err := NewScheduleRepo(db).Update(context.Background(), 5, model.SchedulePatch{Price: &price}, nil)
		require.NoError(t, err)
		assert.Equal(t, 29, got.AvailableSeats)
		assert.Equal(t, price, got.Price)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("explicit seats are bounded by the train", func(t *testing.T) {
		db, mock := newMock(t)
		seats := 10
		mock.ExpectBegin()
		mock.ExpectQuery(lockSQL).WithArgs(5).WillReturnRows(row(29, "100.00"))
		mock.ExpectQuery(poolSQL).WithArgs(1).WillReturnRows(sqlmock.NewRows([]string{"total_seats"}).AddRow(40))
		mock.ExpectExec(regexp.QuoteMeta(`is_active = ?, available_seats = ?, updated_at = NOW() WHERE id = ?`)).
			WithArgs(1, 1, 2, sqlmock.AnyArg(), sqlmock.AnyArg(), model.Money(10000), true, 10, 5).
			WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(readSQL).WithArgs(5).WillReturnRows(row(10, "100.00"))
		mock.ExpectCommit()

		got, err := NewScheduleRepo(db).Update(context.Background(), 5, model.SchedulePatch{AvailableSeats: &seats}, nil)
		require.NoError(t, err)
		assert.Equal(t, 10, got.AvailableSeats)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("seats above the pool", func(t *testing.T) {
		db, mock := newMock(t)
		seats := 41
		mock.ExpectBegin()
		mock.ExpectQuery(lockSQL).WithArgs(5).WillReturnRows(row(29, "100.00"))
		mock.ExpectQuery(poolSQL).WithArgs(1).WillReturnRows(sqlmock.NewRows([]string{"total_seats"}).AddRow(40))
		mock.ExpectRollback()

		_, err := NewScheduleRepo(db).Update(context.Background(), 5, model.SchedulePatch{AvailableSeats: &seats}, nil)
		assert.ErrorIs(t, err, ErrInvalidSeatCount)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("check rejects the merged row", func(t *testing.T) {
		db, mock := newMock(t)
		rejected := errors.New("arrival before departure")
		arr := dep.Add(-time.Hour)
		mock.ExpectBegin()
		mock.ExpectQuery(lockSQL).WithArgs(5).WillReturnRows(row(29, "100.00"))
		mock.ExpectRollback()

		_, err := NewScheduleRepo(db).Update(context.Background(), 5, model.SchedulePatch{ArrivalTime: &arr},
			func(s model.Schedule) error {
				if !s.ArrivalTime.After(s.DepartureTime) {
					return rejected
				}
				return nil
			})
		assert.ErrorIs(t, err, rejected)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing schedule", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectQuery(lockSQL).WithArgs(9).WillReturnError(sql.ErrNoRows)
		mock.ExpectRollback()

		_, err := NewScheduleRepo(db).Update(context.Background(), 9, model.SchedulePatch{}, nil)
		assert.ErrorIs(t, err, ErrScheduleNotFound)
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestInsertTxDuplicateCode(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO bookings`)).
		WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'KAS-2026-AAAAAA'"})
	mock.ExpectRollback()

	b := model.Booking{BookingCode: "KAS-2026-AAAAAA", UserID: 1, ScheduleID: 2, TotalPrice: 100, Status: model.StatusPending, BookingDate: time.Now()}
	err := inTx(t, db, func(tx *sql.Tx) error { return NewBookingRepo(db).InsertTx(context.Background(), tx, &b) })
	assert.ErrorIs(t, err, ErrDuplicate)
	assert.ErrorIs(t, err, ErrConflict)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertTxReadsBack(t *testing.T) {
	db, mock := newMock(t)
	now := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO bookings (booking_code, user_id, schedule_id, total_price, status, booking_date)`)).
		WithArgs("KAS-2026-AB12CD", 1, 2, "400000.00", "pending", now).
		WillReturnResult(sqlmock.NewResult(31, 1))
	mock.ExpectQuery(regexp.QuoteMeta(`FROM bookings b WHERE b.id = ?`)).WithArgs(31).
		WillReturnRows(sqlmock.NewRows(bookingCols).
			AddRow(31, "KAS-2026-AB12CD", 1, 2, "400000.00", "pending", now, nil, now, now))
	mock.ExpectCommit()

	b := model.Booking{BookingCode: "KAS-2026-AB12CD", UserID: 1, ScheduleID: 2, TotalPrice: 40000000,
		Status: model.StatusPending, BookingDate: now}
	err := inTx(t, db, func(tx *sql.Tx) error { return NewBookingRepo(db).InsertTx(context.Background(), tx, &b) })
	require.NoError(t, err)
	assert.Equal(t, uint64(31), b.ID)
	assert.Equal(t, model.Money(40000000), b.TotalPrice)
	assert.Nil(t, b.PaymentDate)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestInsertPassengersTxSingleStatement(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`INSERT INTO passengers (booking_id, name, id_number, seat_number) VALUES (?, ?, ?, ?),(?, ?, ?, ?)`)).
		WithArgs(5, "Budi", "3201011", "A1", 5, "Sari", "3201012", "A2").
		WillReturnResult(sqlmock.NewResult(1, 2))
	mock.ExpectCommit()

	ps := []model.Passenger{{Name: "Budi", IDNumber: "3201011", SeatNumber: "A1"}, {Name: "Sari", IDNumber: "3201012", SeatNumber: "A2"}}
	err := inTx(t, db, func(tx *sql.Tx) error { return NewBookingRepo(db).InsertPassengersTx(context.Background(), tx, 5, ps) })
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatusTx(t *testing.T) {
	updateSQL := regexp.QuoteMeta(`UPDATE bookings SET status = ?, payment_date = COALESCE(?, payment_date), updated_at = NOW() WHERE id = ? AND status = ?`)

	t.Run("status moved underneath", func(t *testing.T) {
		db, mock := newMock(t)
		mock.ExpectBegin()
		mock.ExpectExec(updateSQL).WithArgs("cancelled", nil, 8, "pending").WillReturnResult(sqlmock.NewResult(0, 0))
		mock.ExpectRollback()

		err := inTx(t, db, func(tx *sql.Tx) error {
			_, err := NewBookingRepo(db).UpdateStatusTx(context.Background(), tx, 8, model.StatusPending, model.StatusCancelled, nil)
			return err
		})
		assert.ErrorIs(t, err, ErrInvalidTransition)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("confirm stamps payment date", func(t *testing.T) {
		db, mock := newMock(t)
		paid := time.Date(2026, 3, 1, 11, 0, 0, 0, time.UTC)
		mock.ExpectBegin()
		mock.ExpectExec(updateSQL).WithArgs("confirmed", paid, 8, "pending").WillReturnResult(sqlmock.NewResult(0, 1))
		mock.ExpectQuery(regexp.QuoteMeta(`FROM bookings b WHERE b.id = ?`)).WithArgs(8).
			WillReturnRows(sqlmock.NewRows(bookingCols).
				AddRow(8, "KAS-2026-ZZZZZZ", 1, 2, "100.00", "confirmed", paid, paid, paid, paid))
		mock.ExpectCommit()

		var got model.Booking
		err := inTx(t, db, func(tx *sql.Tx) error {
			var err error
			got, err = NewBookingRepo(db).UpdateStatusTx(context.Background(), tx, 8, model.StatusPending, model.StatusConfirmed, &paid)
			return err
		})
		require.NoError(t, err)
		assert.Equal(t, model.StatusConfirmed, got.Status)
		require.NotNil(t, got.PaymentDate)
		assert.True(t, paid.Equal(*got.PaymentDate))
		require.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestLockTxNotFound(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`WHERE b.id = ? FOR UPDATE`)).WithArgs(3).WillReturnRows(sqlmock.NewRows(bookingCols))
	mock.ExpectRollback()

	err := inTx(t, db, func(tx *sql.Tx) error {
		_, err := NewBookingRepo(db).LockTx(context.Background(), tx, 3)
		return err
	})
	assert.ErrorIs(t, err, ErrBookingNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func detailRow(rows *sqlmock.Rows, id uint64, code string, at time.Time) *sqlmock.Rows {
	return rows.AddRow(id, code, 1, 2, "200.00", "pending", at, nil, at, at,
		"Budi", "budi@example.com", at, at.Add(4*time.Hour), "100.00",
		"Argo Bromo", "AB1", "Eksekutif", "Gambir", "GMR", "Surabaya Pasar Turi", "SBI")
}

func TestListDetailsBatchesPassengers(t *testing.T) {
	db, mock := newMock(t)
	at := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)
	cols := append(append([]string{}, bookingCols...),
		"u_name", "u_email", "departure_time", "arrival_time", "price",
		"t_name", "t_code", "t_type", "o_name", "o_code", "d_name", "d_code")

	rows := sqlmock.NewRows(cols)
	detailRow(rows, 2, "KAS-2026-BBBBBB", at.Add(time.Hour))
	detailRow(rows, 1, "KAS-2026-AAAAAA", at)
	mock.ExpectQuery(regexp.QuoteMeta(`WHERE b.user_id = ? ORDER BY b.created_at DESC, b.id DESC`)).
		WithArgs(1).WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta(`WHERE booking_id IN (?,?) ORDER BY booking_id, id`)).
		WithArgs(2, 1).
		WillReturnRows(sqlmock.NewRows([]string{"id", "booking_id", "name", "id_number", "seat_number"}).
			AddRow(1, 1, "Budi", "3201011", "A1").
			AddRow(2, 1, "Sari", "3201012", "A2").
			AddRow(3, 2, "Joko", "3201013", "A1"))

	uid := uint64(1)
	got, err := NewBookingRepo(db).ListDetails(context.Background(), &uid)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "KAS-2026-BBBBBB", got[0].BookingCode)
	assert.Len(t, got[0].Passengers, 1)
	assert.Len(t, got[1].Passengers, 2)
	assert.Equal(t, "Gambir", got[1].OriginName)
	assert.Equal(t, model.Money(10000), got[1].Price)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListDetailsEmptySkipsPassengerQuery(t *testing.T) {
	db, mock := newMock(t)
	mock.ExpectQuery(regexp.QuoteMeta(`ORDER BY b.created_at DESC`)).WillReturnRows(sqlmock.NewRows(bookingCols))

	got, err := NewBookingRepo(db).ListDetails(context.Background(), nil)
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStoreInTx(t *testing.T) {
	db, mock := newMock(t)
	store := NewStore(db, NewScheduleRepo(db), NewBookingRepo(db))

	mock.ExpectBegin()
	mock.ExpectExec(reserveSQL).WithArgs(1, 4, 1).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	boom := errors.New("passenger insert failed")
	err := store.InTx(context.Background(), func(q TxQueries) error {
		require.NoError(t, q.ReserveSeats(context.Background(), 4, 1))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	mock.ExpectBegin()
	mock.ExpectCommit()
	require.NoError(t, store.InTx(context.Background(), func(q TxQueries) error { return nil }))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClassify(t *testing.T) {
	cases := []struct {
		in   error
		want error
	}{
		{&mysql.MySQLError{Number: 1062}, ErrDuplicate},
		{&mysql.MySQLError{Number: 1205}, ErrTransient},
		{&mysql.MySQLError{Number: 1213}, ErrTransient},
		{&mysql.MySQLError{Number: 1451}, ErrConflict},
		{&mysql.MySQLError{Number: 1452}, ErrNotFound},
		{fmt.Errorf("query: %w", context.DeadlineExceeded), ErrTransient},
	}
	for _, tc := range cases {
		assert.ErrorIs(t, classify(tc.in), tc.want, tc.in.Error())
	}
	assert.ErrorIs(t, classify(context.DeadlineExceeded), context.DeadlineExceeded)
	assert.Nil(t, classify(nil))

	other := errors.New("other")
	assert.Same(t, other, classify(other))
}
