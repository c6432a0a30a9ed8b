package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/train-ticket-booking/internal/logger"
	"github.com/iliyamo/train-ticket-booking/internal/middleware"
	"github.com/iliyamo/train-ticket-booking/internal/repository"
	"github.com/iliyamo/train-ticket-booking/internal/service"
)

// requestTimeout bounds the store calls of reference-data handlers.
const requestTimeout = 5 * time.Second

// getUserID reads the authenticated user id placed in the context by
// middleware.JWTAuth.
func getUserID(c echo.Context) (uint64, error) {
	switch t := c.Get(middleware.CtxUserID).(type) {
	case uint64:
		return t, nil
	case int:
		return uint64(t), nil
	case int64:
		return uint64(t), nil
	case string:
		if n, err := strconv.ParseUint(t, 10, 64); err == nil {
			return n, nil
		}
	}
	return 0, errors.New("invalid user_id in context")
}

// actorFrom builds the service actor of the current request.  An
// unauthenticated request yields the zero Actor, which the service rejects.
func actorFrom(c echo.Context) service.Actor {
	uid, err := getUserID(c)
	if err != nil {
		return service.Actor{}
	}
	role, _ := c.Get(middleware.CtxRole).(string)
	return service.Actor{UserID: uid, Role: role}
}

// parseID reads a positive numeric path parameter.
func parseID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return id, true
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
}

func withTimeout(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), requestTimeout)
}

// statusOf maps domain and repository errors to HTTP status codes.
func statusOf(err error) int {
	switch {
	case errors.Is(err, service.ErrValidation),
		errors.Is(err, repository.ErrInsufficientSeats),
		errors.Is(err, repository.ErrScheduleInactive),
		errors.Is(err, repository.ErrInvalidSeatCount):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, repository.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, repository.ErrInvalidTransition),
		errors.Is(err, repository.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, repository.ErrTransient):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// respondError writes the error envelope for err.  Client errors carry the
// error text; server errors are logged and answered with a fixed message.
func respondError(c echo.Context, err error) error {
	status := statusOf(err)
	switch status {
	case http.StatusInternalServerError:
		logger.From(c.Request().Context(), zap.L()).Error("request failed", zap.Error(err))
		return c.JSON(status, echo.Map{"error": "internal error"})
	case http.StatusServiceUnavailable:
		logger.From(c.Request().Context(), zap.L()).Warn("transient failure", zap.Error(err))
		return c.JSON(status, echo.Map{"error": "service temporarily unavailable, retry"})
	}
	return c.JSON(status, echo.Map{"error": err.Error()})
}

func item(c echo.Context, status int, v any) error {
	return c.JSON(status, echo.Map{"item": v})
}

func items[T any](c echo.Context, list []T) error {
	if list == nil {
		list = []T{}
	}
	return c.JSON(http.StatusOK, echo.Map{"items": list, "count": len(list)})
}
