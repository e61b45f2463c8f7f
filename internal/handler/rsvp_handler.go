package handler

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/brightling/convene/internal/dto"
	"github.com/brightling/convene/internal/identity"
	"github.com/brightling/convene/internal/models"
	"github.com/brightling/convene/internal/repository"
	"github.com/brightling/convene/internal/service"
)

type RSVPHandler struct {
	svc service.RSVPService
}

func NewRSVPHandler(svc service.RSVPService) *RSVPHandler {
	return &RSVPHandler{svc: svc}
}

func (h *RSVPHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/events/:id/rsvp", h.Join)
	g.DELETE("/events/:id/rsvp", h.Leave)
	g.GET("/events/:id/capacity", h.GetCapacity)
	g.GET("/events/:id/rsvps", h.ListForEvent)
	g.GET("/rsvps", h.ListMine)
}

// Join is idempotent: repeating it never duplicates a row or loses a
// confirmed spot, so it always answers 200 with the resulting status.
func (h *RSVPHandler) Join(c echo.Context) error {
	ident, ok := identity.FromContext(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing identity")
	}

	eventID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid event id")
	}

	result, err := h.svc.Join(c.Request().Context(), uint(eventID), ident.UserID)
	if err != nil {
		return mapEventError(err)
	}

	return c.JSON(http.StatusOK, dto.JoinResponse{
		Status:           result.RSVP.Status,
		Message:          result.Message,
		WaitlistPosition: result.RSVP.WaitlistPosition,
	})
}

func (h *RSVPHandler) Leave(c echo.Context) error {
	ident, ok := identity.FromContext(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing identity")
	}

	eventID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid event id")
	}

	rsvp, err := h.svc.Leave(c.Request().Context(), uint(eventID), ident.UserID)
	if err != nil {
		return mapEventError(err)
	}
	if rsvp == nil {
		return c.NoContent(http.StatusNoContent)
	}

	return c.JSON(http.StatusOK, dto.ToRSVPResponse(rsvp))
}

func (h *RSVPHandler) GetCapacity(c echo.Context) error {
	ident, ok := identity.FromContext(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing identity")
	}

	eventID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid event id")
	}

	snap, err := h.svc.Capacity(c.Request().Context(), uint(eventID), ident.UserID)
	if err != nil {
		return mapEventError(err)
	}

	counts := repository.StatusCounts{Confirmed: snap.Confirmed, Waitlisted: snap.Waitlisted}
	return c.JSON(http.StatusOK, dto.ToCapacityResponse(snap.EventID, snap.Capacity, counts))
}

func (h *RSVPHandler) ListForEvent(c echo.Context) error {
	ident, ok := identity.FromContext(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing identity")
	}

	eventID, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid event id")
	}

	var status *models.RSVPStatus
	if s := c.QueryParam("status"); s != "" {
		rs := models.RSVPStatus(s)
		status = &rs
	}

	rsvps, err := h.svc.ListForEvent(c.Request().Context(), uint(eventID), ident.UserID, status)
	if err != nil {
		return mapEventError(err)
	}

	resp := make([]dto.RSVPResponse, len(rsvps))
	for i, r := range rsvps {
		resp[i] = dto.ToRSVPResponse(&r)
	}

	return c.JSON(http.StatusOK, resp)
}

func (h *RSVPHandler) ListMine(c echo.Context) error {
	ident, ok := identity.FromContext(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing identity")
	}

	rsvps, err := h.svc.ListForUser(c.Request().Context(), ident.UserID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	resp := make([]dto.RSVPResponse, len(rsvps))
	for i, r := range rsvps {
		resp[i] = dto.ToRSVPResponse(&r)
	}

	return c.JSON(http.StatusOK, resp)
}
