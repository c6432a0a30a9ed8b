package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/train-ticket-booking/internal/logger"
	"github.com/iliyamo/train-ticket-booking/internal/model"
	"github.com/iliyamo/train-ticket-booking/internal/queue"
	"github.com/iliyamo/train-ticket-booking/internal/service"
)

// ScheduleStore is the persistence ScheduleHandler needs.
type ScheduleStore interface {
	ListActive(ctx context.Context) ([]model.ScheduleView, error)
	Search(ctx context.Context, originID, destinationID uint64, day time.Time) ([]model.ScheduleView, error)
	GetView(ctx context.Context, id uint64) (model.ScheduleView, error)
	Create(ctx context.Context, s *model.Schedule) error
	Update(ctx context.Context, id uint64, p model.SchedulePatch, check func(model.Schedule) error) (model.Schedule, error)
	Delete(ctx context.Context, id uint64) error
}

// ScheduleHandler serves /api/schedules.  Every successful write bumps the
// cache generation so cached listings are not served stale.
type ScheduleHandler struct {
	Schedules ScheduleStore
	Cache     queue.Invalidator // may be nil
}

func validateSchedule(s model.Schedule) string {
	switch {
	case s.TrainID == 0:
		return "train_id is required"
	case s.OriginID == 0 || s.DestinationID == 0:
		return "origin_id and destination_id are required"
	case s.OriginID == s.DestinationID:
		return "origin and destination must differ"
	case s.DepartureTime.IsZero() || s.ArrivalTime.IsZero():
		return "departure_time and arrival_time are required"
	case !s.ArrivalTime.After(s.DepartureTime):
		return "arrival_time must be after departure_time"
	case s.Price < 0:
		return "price must not be negative"
	}
	return ""
}

func checkSchedule(s model.Schedule) error {
	if msg := validateSchedule(s); msg != "" {
		return &service.ValidationError{Message: msg}
	}
	return nil
}

func (h *ScheduleHandler) bump(c echo.Context) {
	if h.Cache == nil {
		return
	}
	if err := h.Cache.Bump(c.Request().Context()); err != nil {
		logger.From(c.Request().Context(), zap.L()).Warn("cache generation bump failed", zap.Error(err))
	}
}

// List returns the active schedules ordered by departure.
func (h *ScheduleHandler) List(c echo.Context) error {
	ctx, cancel := withTimeout(c)
	defer cancel()
	list, err := h.Schedules.ListActive(ctx)
	if err != nil {
		return respondError(c, err)
	}
	return items(c, list)
}

// Search handles GET /api/schedules/search?origin_id=&destination_id=&date=YYYY-MM-DD.
// Only active schedules with free seats are returned.  date defaults to today (UTC).
func (h *ScheduleHandler) Search(c echo.Context) error {
	origin, err1 := strconv.ParseUint(c.QueryParam("origin_id"), 10, 64)
	dest, err2 := strconv.ParseUint(c.QueryParam("destination_id"), 10, 64)
	if err1 != nil || err2 != nil || origin == 0 || dest == 0 {
		return badRequest(c, "origin_id and destination_id are required")
	}
	day := time.Now().UTC().Truncate(24 * time.Hour)
	if d := strings.TrimSpace(c.QueryParam("date")); d != "" {
		parsed, err := time.Parse("2006-01-02", d)
		if err != nil {
			return badRequest(c, "date must be YYYY-MM-DD")
		}
		day = parsed
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	list, err := h.Schedules.Search(ctx, origin, dest, day)
	if err != nil {
		return respondError(c, err)
	}
	return items(c, list)
}

func (h *ScheduleHandler) Get(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	v, err := h.Schedules.GetView(ctx, id)
	if err != nil {
		return respondError(c, err)
	}
	return item(c, http.StatusOK, v)
}

// Create adds a schedule.  Omitting available_seats starts it at the
// train's total_seats; omitting is_active makes it active.
func (h *ScheduleHandler) Create(c echo.Context) error {
	var req model.SchedulePatch
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	s := model.Schedule{AvailableSeats: -1, IsActive: true}
	req.Apply(&s)
	if msg := validateSchedule(s); msg != "" {
		return badRequest(c, msg)
	}
	if req.AvailableSeats != nil && *req.AvailableSeats < 0 {
		return badRequest(c, "available_seats must not be negative")
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	if err := h.Schedules.Create(ctx, &s); err != nil {
		return respondError(c, err)
	}
	h.bump(c)
	return item(c, http.StatusCreated, s)
}

// Update applies the supplied fields to an existing schedule.  Seat
// availability is only changed when available_seats is in the body.
func (h *ScheduleHandler) Update(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	var req model.SchedulePatch
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	s, err := h.Schedules.Update(ctx, id, req, checkSchedule)
	if err != nil {
		return respondError(c, err)
	}
	h.bump(c)
	return item(c, http.StatusOK, s)
}

func (h *ScheduleHandler) Delete(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	if err := h.Schedules.Delete(ctx, id); err != nil {
		return respondError(c, err)
	}
	h.bump(c)
	return c.NoContent(http.StatusNoContent)
}
