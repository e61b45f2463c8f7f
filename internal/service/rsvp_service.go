package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/brightling/convene/internal/audit"
	"github.com/brightling/convene/internal/metrics"
	"github.com/brightling/convene/internal/models"
	"github.com/brightling/convene/internal/notify"
	"github.com/brightling/convene/internal/repository"
)

var (
	ErrEventNotFound       = errors.New("event not found")
	ErrEventClosed         = errors.New("event is not accepting RSVPs")
	ErrConcurrencyConflict = errors.New("rsvp conflicted with concurrent updates")
)

const (
	msgConfirmed  = "RSVP confirmed"
	msgWaitlisted = "Added to waitlist"

	// Arbitration transactions are short; when Postgres aborts one for a
	// concurrency reason a couple of fresh attempts almost always succeed.
	maxArbitrationAttempts = 3
)

// JoinResult is the arbitration outcome for one join request.
type JoinResult struct {
	RSVP    *models.RSVP
	Message string
}

// CapacitySnapshot pairs an event's cap with its live attendance ledger.
type CapacitySnapshot struct {
	EventID    uint
	Capacity   *int
	Confirmed  int64
	Waitlisted int64
}

type RSVPService interface {
	Join(ctx context.Context, eventID uint, userID string) (*JoinResult, error)
	Leave(ctx context.Context, eventID uint, userID string) (*models.RSVP, error)
	Counts(ctx context.Context, eventID uint) (repository.StatusCounts, error)
	Capacity(ctx context.Context, eventID uint, actor string) (*CapacitySnapshot, error)
	ListForEvent(ctx context.Context, eventID uint, actor string, status *models.RSVPStatus) ([]models.RSVP, error)
	ListForUser(ctx context.Context, userID string) ([]models.RSVP, error)
}

type rsvpService struct {
	rsvpRepo   repository.RSVPRepository
	eventRepo  repository.EventRepository
	dispatcher notify.Dispatcher
	trail      audit.Trail
	metrics    *metrics.Registry
}

func NewRSVPService(
	rsvpRepo repository.RSVPRepository,
	eventRepo repository.EventRepository,
	dispatcher notify.Dispatcher,
	trail audit.Trail,
	m *metrics.Registry,
) RSVPService {
	return &rsvpService{
		rsvpRepo:   rsvpRepo,
		eventRepo:  eventRepo,
		dispatcher: dispatcher,
		trail:      trail,
		metrics:    m,
	}
}

// transition is one committed RSVP status change, held until after commit
// so notifications and audit entries never describe a rolled-back write.
type transition struct {
	rsvp  *models.RSVP
	event *models.Event
	from  models.RSVPStatus
	actor string
}

func (s *rsvpService) Join(ctx context.Context, eventID uint, userID string) (*JoinResult, error) {
	var (
		result      *JoinResult
		transitions []transition
	)

	err := s.withRetry(ctx, func() error {
		result = nil
		transitions = transitions[:0]

		return s.rsvpRepo.Transact(ctx, func(tx *gorm.DB) error {
			// 1. Lock the event row — serializes every arbitration for this event
			event, err := s.eventRepo.FindByIDForUpdate(ctx, tx, eventID)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return ErrEventNotFound
				}
				return err
			}

			// 2. Check the event still takes RSVPs
			if err := joinable(event); err != nil {
				return err
			}

			// 3. Load the caller's existing row, if any
			existing, err := s.rsvpRepo.Find(ctx, tx, eventID, userID)
			if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
				return err
			}

			// 4. Joining while confirmed is a no-op
			if existing != nil && existing.Status == models.StatusYes {
				result = &JoinResult{RSVP: existing, Message: msgConfirmed}
				return nil
			}

			// 5. Decide confirmed vs waitlist from the live count
			confirmed, err := s.rsvpRepo.CountByStatus(ctx, tx, eventID, models.StatusYes)
			if err != nil {
				return err
			}
			target := models.StatusWaitlist
			if event.Unlimited() || confirmed < int64(*event.Capacity) {
				target = models.StatusYes
			}

			// 6. Already waitlisted and still no room: keep the queue position
			if existing != nil && existing.Status == target {
				result = &JoinResult{RSVP: existing, Message: msgWaitlisted}
				return nil
			}

			var position *int
			if target == models.StatusWaitlist {
				last, err := s.rsvpRepo.MaxWaitlistPosition(ctx, tx, eventID)
				if err != nil {
					return err
				}
				next := last + 1
				position = &next
			}

			// 7. Create the row, or revive the cancelled/waitlisted one
			if existing == nil {
				rsvp := &models.RSVP{
					EventID:          eventID,
					UserID:           userID,
					Status:           target,
					WaitlistPosition: position,
				}
				if err := s.rsvpRepo.Create(ctx, tx, rsvp); err != nil {
					return err
				}
				transitions = append(transitions, transition{rsvp: rsvp, event: event, actor: userID})
				result = joinResultFor(rsvp)
				return nil
			}

			from := existing.Status
			if err := s.rsvpRepo.SetStatus(ctx, tx, existing.ID, target, position); err != nil {
				return err
			}
			existing.Status = target
			existing.WaitlistPosition = position
			transitions = append(transitions, transition{rsvp: existing, event: event, from: from, actor: userID})
			result = joinResultFor(existing)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.Joins.WithLabelValues(joinOutcome(result, transitions)).Inc()
	}
	s.emit(transitions)
	return result, nil
}

// Leave cancels the caller's RSVP. It is safe to call in any state: without
// an event or a row to cancel it returns (nil, nil), and cancelling an
// already-cancelled RSVP just returns the row again. When a confirmed
// attendee leaves, the longest-waiting waitlisted RSVP is promoted inside
// the same transaction.
func (s *rsvpService) Leave(ctx context.Context, eventID uint, userID string) (*models.RSVP, error) {
	var (
		result      *models.RSVP
		transitions []transition
	)

	err := s.withRetry(ctx, func() error {
		result = nil
		transitions = transitions[:0]

		return s.rsvpRepo.Transact(ctx, func(tx *gorm.DB) error {
			event, err := s.eventRepo.FindByIDForUpdate(ctx, tx, eventID)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return nil
				}
				return err
			}

			rsvp, err := s.rsvpRepo.Find(ctx, tx, eventID, userID)
			if err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return nil
				}
				return err
			}

			if rsvp.Status == models.StatusCancelled {
				result = rsvp
				return nil
			}

			wasConfirmed := rsvp.Status == models.StatusYes
			from := rsvp.Status

			if err := s.rsvpRepo.SetStatus(ctx, tx, rsvp.ID, models.StatusCancelled, nil); err != nil {
				return err
			}
			rsvp.Status = models.StatusCancelled
			rsvp.WaitlistPosition = nil
			transitions = append(transitions, transition{rsvp: rsvp, event: event, from: from, actor: userID})

			// A confirmed departure frees a spot for the waitlist.
			if wasConfirmed {
				promoted, err := promoteWhileRoom(ctx, tx, s.rsvpRepo, event, userID)
				if err != nil {
					return err
				}
				transitions = append(transitions, promoted...)
			}

			result = rsvp
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	if s.metrics != nil && len(transitions) > 0 {
		s.metrics.Cancellations.Inc()
		if promotions := len(transitions) - 1; promotions > 0 {
			s.metrics.Promotions.Add(float64(promotions))
		}
	}
	s.emit(transitions)
	return result, nil
}

func (s *rsvpService) Counts(ctx context.Context, eventID uint) (repository.StatusCounts, error) {
	db := s.rsvpRepo.GetDB()
	confirmed, err := s.rsvpRepo.CountByStatus(ctx, db, eventID, models.StatusYes)
	if err != nil {
		return repository.StatusCounts{}, err
	}
	waitlisted, err := s.rsvpRepo.CountByStatus(ctx, db, eventID, models.StatusWaitlist)
	if err != nil {
		return repository.StatusCounts{}, err
	}
	return repository.StatusCounts{Confirmed: confirmed, Waitlisted: waitlisted}, nil
}

func (s *rsvpService) Capacity(ctx context.Context, eventID uint, actor string) (*CapacitySnapshot, error) {
	event, err := s.eventRepo.FindByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, err
	}
	if event.Status == models.EventHidden && event.CreatedBy != actor {
		return nil, ErrEventNotFound
	}

	counts, err := s.Counts(ctx, eventID)
	if err != nil {
		return nil, err
	}
	return &CapacitySnapshot{
		EventID:    event.ID,
		Capacity:   event.Capacity,
		Confirmed:  counts.Confirmed,
		Waitlisted: counts.Waitlisted,
	}, nil
}

// ListForEvent enforces the same visibility rule as Capacity: a hidden
// event's attendance is the creator's business only.
func (s *rsvpService) ListForEvent(ctx context.Context, eventID uint, actor string, status *models.RSVPStatus) ([]models.RSVP, error) {
	event, err := s.eventRepo.FindByID(ctx, eventID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEventNotFound
		}
		return nil, err
	}
	if event.Status == models.EventHidden && event.CreatedBy != actor {
		return nil, ErrEventNotFound
	}
	return s.rsvpRepo.FindByEventID(ctx, eventID, status)
}

func (s *rsvpService) ListForUser(ctx context.Context, userID string) ([]models.RSVP, error) {
	return s.rsvpRepo.FindByUserID(ctx, userID)
}

// joinable reports whether the event accepts RSVPs right now. Hidden
// events answer "not found" so their existence does not leak.
func joinable(event *models.Event) error {
	switch event.Status {
	case models.EventHidden:
		return ErrEventNotFound
	case models.EventCancelled:
		return ErrEventClosed
	}
	if time.Now().After(event.EndAt) {
		return ErrEventClosed
	}
	return nil
}

func joinResultFor(rsvp *models.RSVP) *JoinResult {
	msg := msgConfirmed
	if rsvp.Status == models.StatusWaitlist {
		msg = msgWaitlisted
	}
	return &JoinResult{RSVP: rsvp, Message: msg}
}

func joinOutcome(result *JoinResult, transitions []transition) string {
	if len(transitions) == 0 {
		return "noop"
	}
	if result.RSVP.Status == models.StatusYes {
		return "confirmed"
	}
	return "waitlisted"
}

// promoteWhileRoom moves the longest-waiting RSVPs to confirmed until the
// event is full again or the waitlist is empty. An event whose cap was
// removed entirely drains its whole waitlist. The caller must hold the
// event row lock. actor records whose request caused the promotions.
func promoteWhileRoom(ctx context.Context, tx *gorm.DB, rsvps repository.RSVPRepository, event *models.Event, actor string) ([]transition, error) {
	var promoted []transition
	for {
		if !event.Unlimited() {
			confirmed, err := rsvps.CountByStatus(ctx, tx, event.ID, models.StatusYes)
			if err != nil {
				return nil, err
			}
			if confirmed >= int64(*event.Capacity) {
				return promoted, nil
			}
		}

		next, err := rsvps.FindFirstWaitlisted(ctx, tx, event.ID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return promoted, nil
			}
			return nil, err
		}

		if err := rsvps.SetStatus(ctx, tx, next.ID, models.StatusYes, nil); err != nil {
			return nil, err
		}
		next.Status = models.StatusYes
		next.WaitlistPosition = nil
		promoted = append(promoted, transition{rsvp: next, event: event, from: models.StatusWaitlist, actor: actor})
	}
}

// withRetry re-runs fn when the transaction failed for a reason a fresh
// attempt can resolve. Anything still conflicting after the last attempt
// surfaces as ErrConcurrencyConflict.
func (s *rsvpService) withRetry(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 1; attempt <= maxArbitrationAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err = fn()
		if err == nil || !retryable(err) {
			return err
		}
		if s.metrics != nil {
			s.metrics.ConflictRetries.Inc()
		}
		log.Debug().Err(err).Int("attempt", attempt).Msg("retrying rsvp arbitration")
	}
	return fmt.Errorf("%w: %v", ErrConcurrencyConflict, err)
}

// retryable matches serialization aborts, deadlocks, and the unique
// (event_id, user_id) index firing under concurrent first-time joins.
func retryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "23505":
			return true
		}
	}
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

// emit fans committed transitions out to the notification collaborator and
// the audit stream. Runs after the transaction, never inside it.
func (s *rsvpService) emit(transitions []transition) {
	emitTransitions(s.dispatcher, s.trail, transitions)
}

func emitTransitions(dispatcher notify.Dispatcher, trail audit.Trail, transitions []transition) {
	for _, t := range transitions {
		if dispatcher != nil {
			dispatcher.Dispatch(notify.Message{
				Kind:       transitionKind(t.rsvp.Status),
				UserID:     t.rsvp.UserID,
				EventID:    t.rsvp.EventID,
				EventTitle: t.event.Title,
				Status:     string(t.rsvp.Status),
			})
		}
		if trail != nil {
			trail.Append(audit.Entry{
				EventID:    t.rsvp.EventID,
				UserID:     t.rsvp.UserID,
				FromStatus: string(t.from),
				ToStatus:   string(t.rsvp.Status),
				Actor:      t.actor,
			})
		}
	}
}

func transitionKind(status models.RSVPStatus) string {
	switch status {
	case models.StatusYes:
		return notify.KindRSVPConfirmed
	case models.StatusWaitlist:
		return notify.KindRSVPWaitlisted
	default:
		return notify.KindRSVPCancelled
	}
}
