package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/train-ticket-booking/internal/model"
	"github.com/iliyamo/train-ticket-booking/internal/service"
)

// BookingService is the lifecycle BookingHandler drives; implemented by
// *service.BookingService.
type BookingService interface {
	Create(ctx context.Context, actor service.Actor, req service.CreateBookingRequest) (model.BookingDetail, error)
	Confirm(ctx context.Context, actor service.Actor, bookingID uint64) (model.BookingDetail, error)
	Cancel(ctx context.Context, actor service.Actor, bookingID uint64) (model.BookingDetail, error)
	Get(ctx context.Context, actor service.Actor, bookingID uint64) (model.BookingDetail, error)
	List(ctx context.Context, actor service.Actor, all bool) ([]model.BookingDetail, error)
}

// BookingHandler serves /api/bookings.  The service bounds its own store
// calls, so handlers pass the request context through unchanged.
type BookingHandler struct {
	Bookings BookingService
}

// HeaderIdempotencyKey lets clients retry a create without booking twice.
const HeaderIdempotencyKey = "Idempotency-Key"

type createBookingReq struct {
	ScheduleID uint64                   `json:"schedule_id"`
	Passengers []service.PassengerInput `json:"passengers"`
}

// Create handles POST /api/bookings.
func (h *BookingHandler) Create(c echo.Context) error {
	var req createBookingReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	key := strings.TrimSpace(c.Request().Header.Get(HeaderIdempotencyKey))
	if len(key) > 128 {
		return badRequest(c, "Idempotency-Key too long")
	}
	d, err := h.Bookings.Create(c.Request().Context(), actorFrom(c), service.CreateBookingRequest{
		ScheduleID:     req.ScheduleID,
		Passengers:     req.Passengers,
		IdempotencyKey: key,
	})
	if err != nil {
		return respondError(c, err)
	}
	return item(c, http.StatusCreated, d)
}

// Confirm handles PUT /api/bookings/:id/confirm.
func (h *BookingHandler) Confirm(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid booking id")
	}
	d, err := h.Bookings.Confirm(c.Request().Context(), actorFrom(c), id)
	if err != nil {
		return respondError(c, err)
	}
	return item(c, http.StatusOK, d)
}

// Cancel handles PUT /api/bookings/:id/cancel.
func (h *BookingHandler) Cancel(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid booking id")
	}
	d, err := h.Bookings.Cancel(c.Request().Context(), actorFrom(c), id)
	if err != nil {
		return respondError(c, err)
	}
	return item(c, http.StatusOK, d)
}

// Get handles GET /api/bookings/:id.
func (h *BookingHandler) Get(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid booking id")
	}
	d, err := h.Bookings.Get(c.Request().Context(), actorFrom(c), id)
	if err != nil {
		return respondError(c, err)
	}
	return item(c, http.StatusOK, d)
}

// ListMine handles GET /api/bookings.
func (h *BookingHandler) ListMine(c echo.Context) error {
	list, err := h.Bookings.List(c.Request().Context(), actorFrom(c), false)
	if err != nil {
		return respondError(c, err)
	}
	return items(c, list)
}

// ListAll handles GET /api/bookings/all (ADMIN).
func (h *BookingHandler) ListAll(c echo.Context) error {
	list, err := h.Bookings.List(c.Request().Context(), actorFrom(c), true)
	if err != nil {
		return respondError(c, err)
	}
	return items(c, list)
}
