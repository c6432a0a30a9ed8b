package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/train-ticket-booking/internal/model"
)

// TrainStore is the persistence TrainHandler needs.
type TrainStore interface {
	List(ctx context.Context) ([]model.Train, error)
	GetByID(ctx context.Context, id uint64) (model.Train, error)
	Create(ctx context.Context, t *model.Train) error
	Update(ctx context.Context, t *model.Train) error
	Delete(ctx context.Context, id uint64) error
}

// TrainHandler serves /api/trains.
type TrainHandler struct {
	Trains TrainStore
}

type trainReq struct {
	Name       string   `json:"name"`
	Code       string   `json:"code"`
	Type       string   `json:"type"`
	Facilities []string `json:"facilities"`
	TotalSeats int      `json:"total_seats"`
}

func (r *trainReq) toModel() (model.Train, string) {
	t := model.Train{
		Name:       strings.TrimSpace(r.Name),
		Code:       strings.ToUpper(strings.TrimSpace(r.Code)),
		Type:       strings.TrimSpace(r.Type),
		TotalSeats: r.TotalSeats,
		Facilities: []string{},
	}
	for _, f := range r.Facilities {
		if f = strings.TrimSpace(f); f != "" {
			t.Facilities = append(t.Facilities, f)
		}
	}
	switch {
	case t.Name == "":
		return t, "name is required"
	case t.Code == "" || len(t.Code) > 20:
		return t, "code must be 1-20 characters"
	case !model.ValidTrainType(t.Type):
		return t, "type must be one of Eksekutif, Bisnis, Ekonomi"
	case t.TotalSeats <= 0:
		return t, "total_seats must be positive"
	}
	return t, ""
}

func (h *TrainHandler) List(c echo.Context) error {
	ctx, cancel := withTimeout(c)
	defer cancel()
	list, err := h.Trains.List(ctx)
	if err != nil {
		return respondError(c, err)
	}
	return items(c, list)
}

func (h *TrainHandler) Get(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	t, err := h.Trains.GetByID(ctx, id)
	if err != nil {
		return respondError(c, err)
	}
	return item(c, http.StatusOK, t)
}

func (h *TrainHandler) Create(c echo.Context) error {
	var req trainReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	t, msg := req.toModel()
	if msg != "" {
		return badRequest(c, msg)
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	if err := h.Trains.Create(ctx, &t); err != nil {
		return respondError(c, err)
	}
	return item(c, http.StatusCreated, t)
}

// Update replaces a train.  Lowering total_seats clamps the free seats of
// its schedules in the same transaction.
func (h *TrainHandler) Update(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	var req trainReq
	if err := c.Bind(&req); err != nil {
		return badRequest(c, "invalid body")
	}
	t, msg := req.toModel()
	if msg != "" {
		return badRequest(c, msg)
	}
	t.ID = id
	ctx, cancel := withTimeout(c)
	defer cancel()
	if err := h.Trains.Update(ctx, &t); err != nil {
		return respondError(c, err)
	}
	return item(c, http.StatusOK, t)
}

func (h *TrainHandler) Delete(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badRequest(c, "invalid id")
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	if err := h.Trains.Delete(ctx, id); err != nil {
		return respondError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}
