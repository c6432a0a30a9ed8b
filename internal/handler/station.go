package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/train-ticket-booking/internal/model"
)

// StationStore is the persistence StationHandler needs.
type StationStore interface {
	List(ctx context.Context) ([]model.Station, error)
	GetByID(ctx context.Context, id uint64) (model.Station, error)
	Create(ctx context.Context, s *model.Station) error
	Update(ctx context.Context, s *model.Station) error
	Delete(ctx context.Context, id uint64) error
}

// StationHandler serves /api/stations.  Reads are public; writes are
// mounted behind the ADMIN role.
type StationHandler struct {
	Stations StationStore
}

type stationReq struct {
	Name    string  `json:"name"`
	Code    string  `json:"code"`
	City    string  `json:"city"`
	Address *string `json:"address"`
}

func (r *stationReq) toModel() (model.Station, string) {
	s := model.Station{
		Name: strings.TrimSpace(r.Name),
		Code: strings.ToUpper(strings.TrimSpace(r.Code)),
		City: strings.TrimSpace(r.City),
	}
	if r.Address != nil {
		if a := strings.TrimSpace(*r.Address); a != "" {
			s.Address = &a
		}
	}
	switch {
	case s.Name == "":
		return s, "name is required"
	case s.Code == "" || len(s.Code) > 10:
		return s, "code must be 1-10 characters"
	case s.City == "":
		return s, "city is required"
	}
	return s, ""
}

func (h *StationHandler) List(c echo.Context) error {
	ctx, cancel := withTimeout(c)
	defer cancel()
	list, err := h.Stations.List(ctx)
	if err != nil {
		return respondError(c, err)
	}
	return items(c, list)
}

func (h *StationHandler) Get(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	s, err := h.Stations.GetByID(ctx, id)
	if err != nil {
		return respondError(c, err)
	}
	return item(c, http.StatusOK, s)
}

func (h *StationHandler) Create(c echo.Context) error {
	var req stationReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	s, msg := req.toModel()
	if msg != "" {
		return badRequest(c, msg)
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	if err := h.Stations.Create(ctx, &s); err != nil {
		return respondError(c, err)
	}
	return item(c, http.StatusCreated, s)
}

func (h *StationHandler) Update(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	var req stationReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	s, msg := req.toModel()
	if msg != "" {
		return badRequest(c, msg)
	}
	s.ID = id
	ctx, cancel := withTimeout(c)
	defer cancel()
	if err := h.Stations.Update(ctx, &s); err != nil {
		return respondError(c, err)
	}
	return item(c, http.StatusOK, s)
}

func (h *StationHandler) Delete(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	if err := h.Stations.Delete(ctx, id); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
