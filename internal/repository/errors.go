// Package repository holds the database/sql data access layer and the
// sentinel errors shared with the service and handler layers.  Handlers
// translate these values into HTTP status codes; callers match them with
// errors.Is, so specific not-found errors wrap ErrNotFound.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is the parent of every "row does not exist" error.
var ErrNotFound = errors.New("not found")

var (
	ErrScheduleNotFound = fmt.Errorf("schedule %w", ErrNotFound)
	ErrBookingNotFound  = fmt.Errorf("booking %w", ErrNotFound)
	ErrStationNotFound  = fmt.Errorf("station %w", ErrNotFound)
	ErrTrainNotFound    = fmt.Errorf("train %w", ErrNotFound)
	ErrUserNotFound     = fmt.Errorf("user %w", ErrNotFound)
)

// ErrInsufficientSeats is returned when a schedule cannot cover the
// requested number of seats.  It is a business error and never retried.
var ErrInsufficientSeats = errors.New("insufficient seats")

// ErrScheduleInactive is returned when booking a schedule that has been
// switched off by an administrator.
var ErrScheduleInactive = errors.New("schedule is not active")

// ErrInvalidSeatCount is returned for a non-positive reserve/release
// amount or an available_seats value outside [0, train total_seats].
var ErrInvalidSeatCount = errors.New("invalid seat count")

// ErrInvalidTransition is returned when a booking status change is not in
// the allowed transition table (e.g. cancelling a cancelled booking).
var ErrInvalidTransition = errors.New("invalid booking status transition")

// ErrForbidden is returned when the caller attempts an operation on a
// resource they do not own.  Handlers translate this into HTTP 403.
var ErrForbidden = errors.New("forbidden")

// ErrConflict is returned when a write cannot be performed because of
// conflicting state, such as a duplicate unique code or deleting a
// schedule that still has bookings.  Handlers translate this into 409.
var ErrConflict = errors.New("conflict")

// ErrDuplicate marks a unique-key violation.  It wraps ErrConflict so
// callers that do not retry still surface a 409.
var ErrDuplicate = fmt.Errorf("duplicate key: %w", ErrConflict)

// ErrEmailExists is returned by UserRepo.Create for a taken address.
var ErrEmailExists = fmt.Errorf("email already exists: %w", ErrConflict)

// ErrTransient marks storage timeouts, lock waits and deadlocks.  The
// operation had no effect and the client may retry it.
var ErrTransient = errors.New("temporary storage failure, retry later")

// MySQL server error numbers the repositories react to.
const (
	mysqlDupEntry        = 1062
	mysqlLockWaitTimeout = 1205
	mysqlDeadlock        = 1213
	mysqlRowIsReferenced = 1451
	mysqlNoReferencedRow = 1452
)

// classify maps driver and context errors onto the sentinels above.  Any
// other error is returned unchanged.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTransient, err)
	}
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		switch me.Number {
		case mysqlDupEntry:
			return fmt.Errorf("%w: %s", ErrDuplicate, me.Message)
		case mysqlLockWaitTimeout, mysqlDeadlock:
			return fmt.Errorf("%w: %s", ErrTransient, me.Message)
		case mysqlRowIsReferenced:
			return fmt.Errorf("%w: row is still referenced", ErrConflict)
		case mysqlNoReferencedRow:
			return fmt.Errorf("%w: referenced row does not exist", ErrNotFound)
		}
	}
	return err
}
