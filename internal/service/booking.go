// Package service implements the booking lifecycle: creating a booking
// with its passengers against a schedule's seat inventory, and moving it
// through confirm and cancel while keeping available_seats consistent.
package service

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/iliyamo/train-ticket-booking/internal/logger"
	"github.com/iliyamo/train-ticket-booking/internal/model"
	"github.com/iliyamo/train-ticket-booking/internal/queue"
	"github.com/iliyamo/train-ticket-booking/internal/repository"
)

// Actor is the authenticated caller of a booking operation.  It is passed
// explicitly into every call; the service keeps no session state.
type Actor struct {
	UserID uint64
	Role   string
}

// IsAdmin reports whether the actor may act on any booking.
func (a Actor) IsAdmin() bool { return a.Role == model.RoleAdmin }

// BookingStore runs booking transactions and serves booking read views.
type BookingStore interface {
	InTx(ctx context.Context, fn func(q repository.TxQueries) error) error
	GetDetail(ctx context.Context, id uint64) (model.BookingDetail, error)
	ListDetails(ctx context.Context, userID *uint64) ([]model.BookingDetail, error)
}

// IdempotencyStore binds an Idempotency-Key to the booking it created.
// Claim returns claimed=true for a fresh key.  For a known key it returns
// the stored booking id, or 0 while the first request is still running.
type IdempotencyStore interface {
	Claim(ctx context.Context, key string) (bookingID uint64, claimed bool, err error)
	Complete(ctx context.Context, key string, bookingID uint64) error
	Release(ctx context.Context, key string) error
}

// EventPublisher delivers booking events after commit.
type EventPublisher interface {
	PublishBookingEvent(ctx context.Context, ev queue.BookingEvent) error
}

// Options tunes a BookingService.  Zero values select the defaults.
type Options struct {
	StoreTimeout time.Duration // default 5s
	CodeAttempts int           // default 5
}

// BookingService is the booking lifecycle.
type BookingService struct {
	store        BookingStore
	idem         IdempotencyStore
	pub          EventPublisher
	log          *zap.Logger
	storeTimeout time.Duration
	codeAttempts int
	newCode      CodeGenerator
	now          func() time.Time
}

// NewBookingService wires a BookingService.  idem and pub may be nil, in
// which case idempotency keys are ignored and no events are published.
func NewBookingService(store BookingStore, idem IdempotencyStore, pub EventPublisher, log *zap.Logger, opts Options) *BookingService {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.StoreTimeout <= 0 {
		opts.StoreTimeout = 5 * time.Second
	}
	if opts.CodeAttempts <= 0 {
		opts.CodeAttempts = 5
	}
	return &BookingService{
		store:        store,
		idem:         idem,
		pub:          pub,
		log:          log.Named("booking"),
		storeTimeout: opts.StoreTimeout,
		codeAttempts: opts.CodeAttempts,
		newCode:      NewBookingCode,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// CreateBookingRequest is the input of Create.
type CreateBookingRequest struct {
	ScheduleID     uint64
	Passengers     []PassengerInput
	IdempotencyKey string
}

// Create books len(Passengers) seats on a schedule for the actor.  The
// schedule lookup, seat reservation, booking insert and passenger inserts
// run in one transaction; if any step fails nothing is kept.  The total
// price is schedule price × passenger count and never changes afterwards.
func (s *BookingService) Create(ctx context.Context, actor Actor, req CreateBookingRequest) (model.BookingDetail, error) {
	if actor.UserID == 0 {
		return model.BookingDetail{}, ErrUnauthorized
	}
	if req.ScheduleID == 0 {
		return model.BookingDetail{}, invalid("schedule_id", "is required")
	}
	passengers, err := normalizePassengers(req.Passengers)
	if err != nil {
		return model.BookingDetail{}, err
	}
	log := logger.From(ctx, s.log)

	idemKey := ""
	if req.IdempotencyKey != "" && s.idem != nil {
		key := "booking:" + strconv.FormatUint(actor.UserID, 10) + ":" + req.IdempotencyKey
		prevID, claimed, err := s.idem.Claim(ctx, key)
		switch {
		case err != nil:
			// Redis trouble must not block bookings; carry on without the key.
			log.Warn("idempotency claim failed", zap.Error(err))
		case !claimed && prevID != 0:
			log.Info("idempotent replay", zap.Uint64("booking_id", prevID))
			return s.Get(ctx, actor, prevID)
		case !claimed:
			return model.BookingDetail{}, ErrIdempotencyInFlight
		default:
			idemKey = key
		}
	}

	var created model.Booking
	err = s.withTimeout(ctx, func(ctx context.Context) error {
		return s.store.InTx(ctx, func(q repository.TxQueries) error {
			sched, err := q.GetSchedule(ctx, req.ScheduleID)
			if err != nil {
				return err
			}
			if !sched.IsActive {
				return repository.ErrScheduleInactive
			}
			total, err := sched.Price.Mul(len(passengers))
			if err != nil {
				return invalid("passengers", "total price out of range")
			}
			if err := q.ReserveSeats(ctx, sched.ID, len(passengers)); err != nil {
				return err
			}
			b, err := s.insertWithFreshCode(ctx, q, model.Booking{
				UserID:      actor.UserID,
				ScheduleID:  sched.ID,
				TotalPrice:  total,
				Status:      model.StatusPending,
				BookingDate: s.now(),
			})
			if err != nil {
				return err
			}
			if err := q.InsertPassengers(ctx, b.ID, passengers); err != nil {
				return err
			}
			created = b
			return nil
		})
	})
	if err != nil {
		if idemKey != "" {
			if rerr := s.idem.Release(context.WithoutCancel(ctx), idemKey); rerr != nil {
				log.Warn("idempotency release failed", zap.Error(rerr))
			}
		}
		return model.BookingDetail{}, err
	}
	if idemKey != "" {
		if err := s.idem.Complete(context.WithoutCancel(ctx), idemKey, created.ID); err != nil {
			log.Warn("idempotency complete failed", zap.Error(err))
		}
	}

	log.Info("booking created",
		zap.Uint64("booking_id", created.ID),
		zap.String("booking_code", created.BookingCode),
		zap.Uint64("schedule_id", created.ScheduleID),
		zap.Uint64("user_id", created.UserID),
		zap.Int("passengers", len(passengers)),
		zap.String("total_price", created.TotalPrice.String()),
	)
	s.publish(ctx, queue.BookingCreated, created, len(passengers))
	return s.detail(ctx, created.ID)
}

// insertWithFreshCode inserts b under a newly drawn booking code, drawing
// again on a duplicate up to codeAttempts times.
func (s *BookingService) insertWithFreshCode(ctx context.Context, q repository.TxQueries, b model.Booking) (model.Booking, error) {
	for attempt := 1; attempt <= s.codeAttempts; attempt++ {
		code, err := s.newCode(b.BookingDate)
		if err != nil {
			return model.Booking{}, err
		}
		b.BookingCode = code
		err = q.InsertBooking(ctx, &b)
		if err == nil {
			return b, nil
		}
		if !errors.Is(err, repository.ErrDuplicate) {
			return model.Booking{}, err
		}
		s.log.Debug("booking code collision", zap.String("booking_code", code), zap.Int("attempt", attempt))
	}
	return model.Booking{}, ErrCodeExhausted
}

// Confirm marks a pending booking as paid.  Inventory is not touched; the
// seats were reserved at creation.
func (s *BookingService) Confirm(ctx context.Context, actor Actor, bookingID uint64) (model.BookingDetail, error) {
	var updated model.Booking
	var passengers int
	err := s.transition(ctx, actor, bookingID, model.StatusConfirmed, func(ctx context.Context, q repository.TxQueries, b model.Booking) error {
		paid := s.now()
		var err error
		updated, err = q.UpdateBookingStatus(ctx, b.ID, b.Status, model.StatusConfirmed, &paid)
		if err != nil {
			return err
		}
		passengers, err = q.CountPassengers(ctx, b.ID)
		return err
	})
	if err != nil {
		return model.BookingDetail{}, err
	}
	logger.From(ctx, s.log).Info("booking confirmed",
		zap.Uint64("booking_id", updated.ID),
		zap.String("booking_code", updated.BookingCode),
		zap.Uint64("user_id", updated.UserID),
	)
	s.publish(ctx, queue.BookingConfirmed, updated, passengers)
	return s.detail(ctx, updated.ID)
}

// Cancel cancels a pending or confirmed booking and gives its seats back
// to the schedule.  The booking row is locked for the whole transaction,
// so of two concurrent cancels only the first releases seats; the second
// sees the cancelled status and fails with ErrInvalidTransition.
func (s *BookingService) Cancel(ctx context.Context, actor Actor, bookingID uint64) (model.BookingDetail, error) {
	var updated model.Booking
	var released int
	err := s.transition(ctx, actor, bookingID, model.StatusCancelled, func(ctx context.Context, q repository.TxQueries, b model.Booking) error {
		n, err := q.CountPassengers(ctx, b.ID)
		if err != nil {
			return err
		}
		if n > 0 && b.Status.HoldsSeats() {
			if err := q.ReleaseSeats(ctx, b.ScheduleID, n); err != nil {
				return err
			}
			released = n
		}
		updated, err = q.UpdateBookingStatus(ctx, b.ID, b.Status, model.StatusCancelled, nil)
		return err
	})
	if err != nil {
		return model.BookingDetail{}, err
	}
	logger.From(ctx, s.log).Info("booking cancelled",
		zap.Uint64("booking_id", updated.ID),
		zap.String("booking_code", updated.BookingCode),
		zap.Uint64("schedule_id", updated.ScheduleID),
		zap.Uint64("user_id", updated.UserID),
		zap.Int("released_seats", released),
	)
	s.publish(ctx, queue.BookingCancelled, updated, released)
	return s.detail(ctx, updated.ID)
}

// transition locks the booking, checks ownership and the transition table
// and then runs apply inside the same transaction.
func (s *BookingService) transition(ctx context.Context, actor Actor, bookingID uint64, to model.BookingStatus,
	apply func(ctx context.Context, q repository.TxQueries, b model.Booking) error) error {
	if actor.UserID == 0 {
		return ErrUnauthorized
	}
	return s.withTimeout(ctx, func(ctx context.Context) error {
		return s.store.InTx(ctx, func(q repository.TxQueries) error {
			b, err := q.LockBooking(ctx, bookingID)
			if err != nil {
				return err
			}
			if !actor.IsAdmin() && b.UserID != actor.UserID {
				return repository.ErrForbidden
			}
			if !b.Status.CanTransition(to) {
				return fmt.Errorf("%w: %s to %s", repository.ErrInvalidTransition, b.Status, to)
			}
			return apply(ctx, q, b)
		})
	})
}

// Get returns one booking view.  Users may only read their own bookings.
func (s *BookingService) Get(ctx context.Context, actor Actor, bookingID uint64) (model.BookingDetail, error) {
	if actor.UserID == 0 {
		return model.BookingDetail{}, ErrUnauthorized
	}
	d, err := s.detail(ctx, bookingID)
	if err != nil {
		return d, err
	}
	if !actor.IsAdmin() && d.UserID != actor.UserID {
		return model.BookingDetail{}, repository.ErrForbidden
	}
	return d, nil
}

// List returns the actor's bookings, or every booking when all is set.
// Listing all bookings is reserved to admins.
func (s *BookingService) List(ctx context.Context, actor Actor, all bool) ([]model.BookingDetail, error) {
	if actor.UserID == 0 {
		return nil, ErrUnauthorized
	}
	var filter *uint64
	if !all {
		uid := actor.UserID
		filter = &uid
	} else if !actor.IsAdmin() {
		return nil, repository.ErrForbidden
	}
	var out []model.BookingDetail
	err := s.withTimeout(ctx, func(ctx context.Context) error {
		var err error
		out, err = s.store.ListDetails(ctx, filter)
		return err
	})
	return out, err
}

func (s *BookingService) detail(ctx context.Context, id uint64) (model.BookingDetail, error) {
	var d model.BookingDetail
	err := s.withTimeout(ctx, func(ctx context.Context) error {
		var err error
		d, err = s.store.GetDetail(ctx, id)
		return err
	})
	return d, err
}

// withTimeout bounds fn by the store timeout.  Running out of time is
// reported as repository.ErrTransient.
func (s *BookingService) withTimeout(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.storeTimeout)
	defer cancel()
	err := fn(ctx)
	if err != nil && errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, repository.ErrTransient) {
		return fmt.Errorf("%w: %w", repository.ErrTransient, err)
	}
	return err
}

// publish emits a booking event.  Failures are logged only; the booking
// transaction has already committed.
func (s *BookingService) publish(ctx context.Context, typ string, b model.Booking, passengers int) {
	if s.pub == nil {
		return
	}
	ev := queue.BookingEvent{
		Type:        typ,
		BookingID:   b.ID,
		BookingCode: b.BookingCode,
		UserID:      b.UserID,
		ScheduleID:  b.ScheduleID,
		Passengers:  passengers,
		Status:      string(b.Status),
		TotalPrice:  b.TotalPrice.String(),
		OccurredAt:  s.now(),
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.storeTimeout)
	defer cancel()
	if err := s.pub.PublishBookingEvent(pctx, ev); err != nil {
		logger.From(ctx, s.log).Error("publish booking event failed",
			zap.String("type", typ), zap.Uint64("booking_id", b.ID), zap.Error(err))
	}
}
