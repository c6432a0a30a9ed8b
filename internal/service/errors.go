package service

import (
	"errors"
	"fmt"

	"github.com/iliyamo/train-ticket-booking/internal/repository"
)

// ErrUnauthorized is returned when a call carries no authenticated user.
var ErrUnauthorized = errors.New("unauthorized")

// ErrValidation is the parent of every input validation failure.
var ErrValidation = errors.New("validation failed")

// ErrIdempotencyInFlight is returned when a create with the same
// Idempotency-Key is still being processed.
var ErrIdempotencyInFlight = fmt.Errorf("%w: a request with this idempotency key is in progress", repository.ErrConflict)

// ErrCodeExhausted is returned when every generated booking code collided.
var ErrCodeExhausted = fmt.Errorf("%w: could not allocate a unique booking code", repository.ErrTransient)

// ValidationError names the offending field.  errors.Is(err, ErrValidation)
// holds for every ValidationError.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}
