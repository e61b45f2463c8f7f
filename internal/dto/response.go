package dto

import (
	"time"

	"github.com/brightling/convene/internal/models"
	"github.com/brightling/convene/internal/repository"
)

type EventResponse struct {
	ID          uint               `json:"id"`
	Title       string             `json:"title"`
	Description string             `json:"description,omitempty"`
	Location    string             `json:"location,omitempty"`
	Capacity    *int               `json:"capacity"`
	Status      models.EventStatus `json:"status"`
	CreatedBy   string             `json:"created_by"`
	StartAt     time.Time          `json:"start_at"`
	EndAt       time.Time          `json:"end_at"`
	Confirmed   int64              `json:"confirmed_count"`
	Waitlisted  int64              `json:"waitlisted_count"`
	CreatedAt   time.Time          `json:"created_at"`
}

type EventSummary struct {
	ID      uint               `json:"id"`
	Title   string             `json:"title"`
	Status  models.EventStatus `json:"status"`
	StartAt time.Time          `json:"start_at"`
	EndAt   time.Time          `json:"end_at"`
}

type RSVPResponse struct {
	ID               uint              `json:"id"`
	EventID          uint              `json:"event_id"`
	UserID           string            `json:"user_id"`
	Status           models.RSVPStatus `json:"status"`
	WaitlistPosition *int              `json:"waitlist_position,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
	Event            *EventSummary     `json:"event,omitempty"`
}

type JoinResponse struct {
	Status           models.RSVPStatus `json:"status"`
	Message          string            `json:"message"`
	WaitlistPosition *int              `json:"waitlist_position,omitempty"`
}

// CapacityResponse reports the live ledger for one event. SpotsLeft is nil
// for unlimited events.
type CapacityResponse struct {
	EventID    uint   `json:"event_id"`
	Capacity   *int   `json:"capacity"`
	Confirmed  int64  `json:"confirmed_count"`
	Waitlisted int64  `json:"waitlisted_count"`
	SpotsLeft  *int64 `json:"spots_left,omitempty"`
}

type ErrorResponse struct {
	Message string `json:"message"`
}

func ToEventResponse(e *models.Event, counts repository.StatusCounts) EventResponse {
	return EventResponse{
		ID:          e.ID,
		Title:       e.Title,
		Description: e.Description,
		Location:    e.Location,
		Capacity:    e.Capacity,
		Status:      e.Status,
		CreatedBy:   e.CreatedBy,
		StartAt:     e.StartAt,
		EndAt:       e.EndAt,
		Confirmed:   counts.Confirmed,
		Waitlisted:  counts.Waitlisted,
		CreatedAt:   e.CreatedAt,
	}
}

func ToRSVPResponse(r *models.RSVP) RSVPResponse {
	resp := RSVPResponse{
		ID:               r.ID,
		EventID:          r.EventID,
		UserID:           r.UserID,
		Status:           r.Status,
		WaitlistPosition: r.WaitlistPosition,
		CreatedAt:        r.CreatedAt,
		UpdatedAt:        r.UpdatedAt,
	}
	if r.Event != nil {
		resp.Event = &EventSummary{
			ID:      r.Event.ID,
			Title:   r.Event.Title,
			Status:  r.Event.Status,
			StartAt: r.Event.StartAt,
			EndAt:   r.Event.EndAt,
		}
	}
	return resp
}

func ToCapacityResponse(eventID uint, capacity *int, counts repository.StatusCounts) CapacityResponse {
	resp := CapacityResponse{
		EventID:    eventID,
		Capacity:   capacity,
		Confirmed:  counts.Confirmed,
		Waitlisted: counts.Waitlisted,
	}
	if capacity != nil {
		left := int64(*capacity) - counts.Confirmed
		if left < 0 {
			left = 0
		}
		resp.SpotsLeft = &left
	}
	return resp
}
