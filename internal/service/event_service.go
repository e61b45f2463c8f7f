package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/brightling/convene/internal/audit"
	"github.com/brightling/convene/internal/metrics"
	"github.com/brightling/convene/internal/models"
	"github.com/brightling/convene/internal/notify"
	"github.com/brightling/convene/internal/repository"
)

var (
	ErrNotOwner     = errors.New("only the event creator may do this")
	ErrInvalidEvent = errors.New("invalid event")
)

// EventInput carries the caller-supplied fields for create and update.
// Status may be empty (keep current, or active on create), "active" or
// "hidden"; cancellation goes through Cancel, never through here.
type EventInput struct {
	Title       string
	Description string
	Location    string
	Capacity    *int
	Status      models.EventStatus
	StartAt     time.Time
	EndAt       time.Time
}

func (in EventInput) validate() error {
	if strings.TrimSpace(in.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidEvent)
	}
	if in.StartAt.IsZero() || in.EndAt.IsZero() {
		return fmt.Errorf("%w: start_at and end_at are required", ErrInvalidEvent)
	}
	if !in.EndAt.After(in.StartAt) {
		return fmt.Errorf("%w: end_at must be after start_at", ErrInvalidEvent)
	}
	if in.Capacity != nil && *in.Capacity <= 0 {
		return fmt.Errorf("%w: capacity must be positive", ErrInvalidEvent)
	}
	switch in.Status {
	case "", models.EventActive, models.EventHidden:
	default:
		return fmt.Errorf("%w: status must be active or hidden", ErrInvalidEvent)
	}
	return nil
}

// FeedOptions narrows the event feed. Mine restricts the listing to events
// the actor created, which is the only way to see hidden ones.
type FeedOptions struct {
	Query  string
	From   *time.Time
	Until  *time.Time
	Status *models.EventStatus
	Mine   bool
	Actor  string
	Limit  int
	Offset int
}

const (
	defaultFeedLimit = 50
	maxFeedLimit     = 200
)

type EventService interface {
	Create(ctx context.Context, actor string, input EventInput) (*models.Event, error)
	Get(ctx context.Context, id uint, actor string) (*models.Event, error)
	List(ctx context.Context, opts FeedOptions) ([]models.Event, map[uint]repository.StatusCounts, error)
	Update(ctx context.Context, id uint, actor string, input EventInput) (*models.Event, error)
	Cancel(ctx context.Context, id uint, actor string) (*models.Event, error)
}

type eventService struct {
	eventRepo  repository.EventRepository
	rsvpRepo   repository.RSVPRepository
	dispatcher notify.Dispatcher
	trail      audit.Trail
	metrics    *metrics.Registry
}

func NewEventService(
	eventRepo repository.EventRepository,
	rsvpRepo repository.RSVPRepository,
	dispatcher notify.Dispatcher,
	trail audit.Trail,
	m *metrics.Registry,
) EventService {
	return &eventService{
		eventRepo:  eventRepo,
		rsvpRepo:   rsvpRepo,
		dispatcher: dispatcher,
		trail:      trail,
		metrics:    m,
	}
}

func (s *eventService) Create(ctx context.Context, actor string, input EventInput) (*models.Event, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	status := input.Status
	if status == "" {
		status = models.EventActive
	}
	event := &models.Event{
		Title:       strings.TrimSpace(input.Title),
		Description: input.Description,
		Location:    input.Location,
		Capacity:    input.Capacity,
		Status:      status,
		CreatedBy:   actor,
		StartAt:     input.StartAt,
		EndAt:       input.EndAt,
	}
	if err := s.eventRepo.Create(ctx, event); err != nil {
		return nil, fmt.Errorf("create event: %w", err)
	}
	return event, nil
}

func (s *eventService) Get(ctx context.Context, id uint, actor string) (*models.Event, error) {
	event, err := s.eventRepo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, err
	}
	// Hidden events exist only for their creator.
	if event.Status == models.EventHidden && event.CreatedBy != actor {
		return nil, ErrEventNotFound
	}
	return event, nil
}

func (s *eventService) List(ctx context.Context, opts FeedOptions) ([]models.Event, map[uint]repository.StatusCounts, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultFeedLimit
	}
	if limit > maxFeedLimit {
		limit = maxFeedLimit
	}

	filter := repository.EventFilter{
		Query:  opts.Query,
		From:   opts.From,
		Until:  opts.Until,
		Status: opts.Status,
		Limit:  limit,
		Offset: opts.Offset,
	}
	if opts.Mine {
		filter.CreatedBy = opts.Actor
	}

	events, err := s.eventRepo.List(ctx, filter)
	if err != nil {
		return nil, nil, err
	}

	ids := make([]uint, len(events))
	for i, e := range events {
		ids[i] = e.ID
	}
	counts, err := s.rsvpRepo.CountsForEvents(ctx, ids)
	if err != nil {
		return nil, nil, err
	}
	return events, counts, nil
}

// Update rewrites the event's details. Raising or removing the capacity
// frees room, so the waitlist is promoted inside the same transaction;
// everyone still attending or waiting is then told the event changed.
func (s *eventService) Update(ctx context.Context, id uint, actor string, input EventInput) (*models.Event, error) {
	if err := input.validate(); err != nil {
		return nil, err
	}

	var (
		updated     *models.Event
		transitions []transition
		attending   []models.RSVP
	)

	err := s.rsvpRepo.Transact(ctx, func(tx *gorm.DB) error {
		event, err := s.eventRepo.FindByIDForUpdate(ctx, tx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrEventNotFound
			}
			return err
		}
		if event.Status == models.EventHidden && event.CreatedBy != actor {
			return ErrEventNotFound
		}
		if event.CreatedBy != actor {
			return ErrNotOwner
		}
		if event.Status == models.EventCancelled {
			return ErrEventClosed
		}

		event.Title = strings.TrimSpace(input.Title)
		event.Description = input.Description
		event.Location = input.Location
		event.Capacity = input.Capacity
		event.StartAt = input.StartAt
		event.EndAt = input.EndAt
		if input.Status != "" {
			event.Status = input.Status
		}
		if err := s.eventRepo.Save(ctx, tx, event); err != nil {
			return err
		}

		promoted, err := promoteWhileRoom(ctx, tx, s.rsvpRepo, event, actor)
		if err != nil {
			return err
		}
		transitions = promoted

		attending, err = s.rsvpRepo.FindActiveByEvent(ctx, tx, event.ID)
		if err != nil {
			return err
		}
		updated = event
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil && len(transitions) > 0 {
		s.metrics.Promotions.Add(float64(len(transitions)))
	}
	emitTransitions(s.dispatcher, s.trail, transitions)
	s.fanOut(notify.KindEventUpdated, updated, attending)
	return updated, nil
}

// Cancel retires the event. Existing RSVP rows keep their status for the
// historical record; attendees and waitlisted users are notified once.
func (s *eventService) Cancel(ctx context.Context, id uint, actor string) (*models.Event, error) {
	var (
		cancelled *models.Event
		attending []models.RSVP
		changed   bool
	)

	err := s.rsvpRepo.Transact(ctx, func(tx *gorm.DB) error {
		event, err := s.eventRepo.FindByIDForUpdate(ctx, tx, id)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrEventNotFound
			}
			return err
		}
		if event.Status == models.EventHidden && event.CreatedBy != actor {
			return ErrEventNotFound
		}
		if event.CreatedBy != actor {
			return ErrNotOwner
		}
		if event.Status == models.EventCancelled {
			cancelled = event
			return nil
		}

		event.Status = models.EventCancelled
		if err := s.eventRepo.Save(ctx, tx, event); err != nil {
			return err
		}

		attending, err = s.rsvpRepo.FindActiveByEvent(ctx, tx, event.ID)
		if err != nil {
			return err
		}
		cancelled = event
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}

	if changed {
		s.fanOut(notify.KindEventCancelled, cancelled, attending)
	}
	return cancelled, nil
}

// fanOut tells every active RSVP holder that something happened to the
// event itself.
func (s *eventService) fanOut(kind string, event *models.Event, attending []models.RSVP) {
	if s.dispatcher == nil {
		return
	}
	for _, r := range attending {
		s.dispatcher.Dispatch(notify.Message{
			Kind:       kind,
			UserID:     r.UserID,
			EventID:    event.ID,
			EventTitle: event.Title,
			Status:     string(r.Status),
		})
	}
}
