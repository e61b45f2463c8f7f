package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/brightling/convene/internal/dto"
	"github.com/brightling/convene/internal/identity"
	"github.com/brightling/convene/internal/models"
	"github.com/brightling/convene/internal/repository"
	"github.com/brightling/convene/internal/service"
)

type EventHandler struct {
	svc  service.EventService
	rsvp service.RSVPService
}

func NewEventHandler(svc service.EventService, rsvp service.RSVPService) *EventHandler {
	return &EventHandler{svc: svc, rsvp: rsvp}
}

func (h *EventHandler) RegisterRoutes(g *echo.Group) {
	g.POST("/events", h.CreateEvent)
	g.GET("/events", h.ListEvents)
	g.GET("/events/:id", h.GetEvent)
	g.PUT("/events/:id", h.UpdateEvent)
	g.DELETE("/events/:id", h.CancelEvent)
}

func (h *EventHandler) CreateEvent(c echo.Context) error {
	ident, ok := identity.FromContext(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing identity")
	}

	var req dto.CreateEventRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	event, err := h.svc.Create(c.Request().Context(), ident.UserID, eventInputFrom(req.Title, req.Description, req.Location, req.Capacity, req.Status, req.StartAt, req.EndAt))
	if err != nil {
		return mapEventError(err)
	}

	return c.JSON(http.StatusCreated, dto.ToEventResponse(event, repository.StatusCounts{}))
}

func (h *EventHandler) GetEvent(c echo.Context) error {
	ident, ok := identity.FromContext(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing identity")
	}

	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid event id")
	}

	event, err := h.svc.Get(c.Request().Context(), uint(id), ident.UserID)
	if err != nil {
		return mapEventError(err)
	}

	counts, err := h.rsvp.Counts(c.Request().Context(), event.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, dto.ToEventResponse(event, counts))
}

func (h *EventHandler) ListEvents(c echo.Context) error {
	ident, ok := identity.FromContext(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing identity")
	}

	opts := service.FeedOptions{
		Query: c.QueryParam("q"),
		Actor: ident.UserID,
	}

	if v := c.QueryParam("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "from must be RFC3339")
		}
		opts.From = &t
	}
	if v := c.QueryParam("until"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return echo.NewHTTPError(http.StatusBadRequest, "until must be RFC3339")
		}
		opts.Until = &t
	}
	if v := c.QueryParam("status"); v != "" {
		status := models.EventStatus(v)
		opts.Status = &status
	}
	if v := c.QueryParam("mine"); v != "" {
		opts.Mine, _ = strconv.ParseBool(v)
	}
	if v := c.QueryParam("limit"); v != "" {
		opts.Limit, _ = strconv.Atoi(v)
	}
	if v := c.QueryParam("offset"); v != "" {
		opts.Offset, _ = strconv.Atoi(v)
	}

	events, counts, err := h.svc.List(c.Request().Context(), opts)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	resp := make([]dto.EventResponse, len(events))
	for i, e := range events {
		resp[i] = dto.ToEventResponse(&e, counts[e.ID])
	}

	return c.JSON(http.StatusOK, resp)
}

func (h *EventHandler) UpdateEvent(c echo.Context) error {
	ident, ok := identity.FromContext(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing identity")
	}

	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid event id")
	}

	var req dto.UpdateEventRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	event, err := h.svc.Update(c.Request().Context(), uint(id), ident.UserID, eventInputFrom(req.Title, req.Description, req.Location, req.Capacity, req.Status, req.StartAt, req.EndAt))
	if err != nil {
		return mapEventError(err)
	}

	counts, err := h.rsvp.Counts(c.Request().Context(), event.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, dto.ToEventResponse(event, counts))
}

func (h *EventHandler) CancelEvent(c echo.Context) error {
	ident, ok := identity.FromContext(c)
	if !ok {
		return echo.NewHTTPError(http.StatusUnauthorized, "missing identity")
	}

	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid event id")
	}

	event, err := h.svc.Cancel(c.Request().Context(), uint(id), ident.UserID)
	if err != nil {
		return mapEventError(err)
	}

	counts, err := h.rsvp.Counts(c.Request().Context(), event.ID)
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, dto.ToEventResponse(event, counts))
}

func eventInputFrom(title, description, location string, capacity *int, status string, startAt, endAt time.Time) service.EventInput {
	return service.EventInput{
		Title:       title,
		Description: description,
		Location:    location,
		Capacity:    capacity,
		Status:      models.EventStatus(status),
		StartAt:     startAt,
		EndAt:       endAt,
	}
}

func mapEventError(err error) error {
	switch {
	case errors.Is(err, service.ErrEventNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrInvalidEvent):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrNotOwner):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	case errors.Is(err, service.ErrEventClosed):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	case errors.Is(err, service.ErrConcurrencyConflict):
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
