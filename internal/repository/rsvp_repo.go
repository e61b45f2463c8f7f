package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/brightling/convene/internal/models"
)

// StatusCounts is the live attendance ledger for one event, derived from
// RSVP rows rather than stored.
type StatusCounts struct {
	Confirmed  int64 `json:"confirmed"`
	Waitlisted int64 `json:"waitlisted"`
}

type RSVPRepository interface {
	Transact(ctx context.Context, fn func(tx *gorm.DB) error) error
	Create(ctx context.Context, tx *gorm.DB, rsvp *models.RSVP) error
	Find(ctx context.Context, tx *gorm.DB, eventID uint, userID string) (*models.RSVP, error)
	SetStatus(ctx context.Context, tx *gorm.DB, rsvpID uint, status models.RSVPStatus, waitlistPosition *int) error
	CountByStatus(ctx context.Context, tx *gorm.DB, eventID uint, status models.RSVPStatus) (int64, error)
	CountsForEvents(ctx context.Context, eventIDs []uint) (map[uint]StatusCounts, error)
	FindFirstWaitlisted(ctx context.Context, tx *gorm.DB, eventID uint) (*models.RSVP, error)
	MaxWaitlistPosition(ctx context.Context, tx *gorm.DB, eventID uint) (int, error)
	FindActiveByEvent(ctx context.Context, tx *gorm.DB, eventID uint) ([]models.RSVP, error)
	FindByEventID(ctx context.Context, eventID uint, status *models.RSVPStatus) ([]models.RSVP, error)
	FindByUserID(ctx context.Context, userID string) ([]models.RSVP, error)
	GetDB() *gorm.DB
}

type rsvpRepository struct {
	db *gorm.DB
}

func NewRSVPRepository(db *gorm.DB) RSVPRepository {
	return &rsvpRepository{db: db}
}

func (r *rsvpRepository) GetDB() *gorm.DB {
	return r.db
}

// Transact runs fn inside one database transaction. Arbitration logic in
// the service layer always goes through here so the event row lock and the
// RSVP writes commit or roll back together.
func (r *rsvpRepository) Transact(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

func (r *rsvpRepository) Create(ctx context.Context, tx *gorm.DB, rsvp *models.RSVP) error {
	return tx.WithContext(ctx).Create(rsvp).Error
}

func (r *rsvpRepository) Find(ctx context.Context, tx *gorm.DB, eventID uint, userID string) (*models.RSVP, error) {
	var rsvp models.RSVP
	err := tx.WithContext(ctx).
		Where("event_id = ? AND user_id = ?", eventID, userID).
		First(&rsvp).Error
	if err != nil {
		return nil, err
	}
	return &rsvp, nil
}

// SetStatus updates status and waitlist position together. Passing a nil
// position clears it, which is what promotion and cancellation need.
func (r *rsvpRepository) SetStatus(ctx context.Context, tx *gorm.DB, rsvpID uint, status models.RSVPStatus, waitlistPosition *int) error {
	return tx.WithContext(ctx).
		Model(&models.RSVP{}).
		Where("id = ?", rsvpID).
		Updates(map[string]interface{}{
			"status":            status,
			"waitlist_position": waitlistPosition,
		}).Error
}

func (r *rsvpRepository) CountByStatus(ctx context.Context, tx *gorm.DB, eventID uint, status models.RSVPStatus) (int64, error) {
	var count int64
	err := tx.WithContext(ctx).
		Model(&models.RSVP{}).
		Where("event_id = ? AND status = ?", eventID, status).
		Count(&count).Error
	return count, err
}

// CountsForEvents aggregates confirmed and waitlisted tallies for a batch
// of events in one query, for the feed.
func (r *rsvpRepository) CountsForEvents(ctx context.Context, eventIDs []uint) (map[uint]StatusCounts, error) {
	counts := make(map[uint]StatusCounts, len(eventIDs))
	if len(eventIDs) == 0 {
		return counts, nil
	}

	var rows []struct {
		EventID uint
		Status  models.RSVPStatus
		N       int64
	}
	err := r.db.WithContext(ctx).
		Model(&models.RSVP{}).
		Select("event_id, status, COUNT(*) AS n").
		Where("event_id IN ?", eventIDs).
		Group("event_id").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	for _, row := range rows {
		c := counts[row.EventID]
		switch row.Status {
		case models.StatusYes:
			c.Confirmed = row.N
		case models.StatusWaitlist:
			c.Waitlisted = row.N
		}
		counts[row.EventID] = c
	}
	return counts, nil
}

// FindFirstWaitlisted returns the earliest waitlisted RSVP for promotion.
func (r *rsvpRepository) FindFirstWaitlisted(ctx context.Context, tx *gorm.DB, eventID uint) (*models.RSVP, error) {
	var rsvp models.RSVP
	err := tx.WithContext(ctx).
		Where("event_id = ? AND status = ?", eventID, models.StatusWaitlist).
		Order("waitlist_position ASC, id ASC").
		First(&rsvp).Error
	if err != nil {
		return nil, err
	}
	return &rsvp, nil
}

// MaxWaitlistPosition returns the highest position currently assigned for
// the event, 0 when the waitlist is empty. Positions of promoted or
// cancelled rows are cleared, but never reused while they remain assigned.
func (r *rsvpRepository) MaxWaitlistPosition(ctx context.Context, tx *gorm.DB, eventID uint) (int, error) {
	var highest int
	err := tx.WithContext(ctx).
		Model(&models.RSVP{}).
		Where("event_id = ? AND status = ?", eventID, models.StatusWaitlist).
		Select("COALESCE(MAX(waitlist_position), 0)").
		Scan(&highest).Error
	return highest, err
}

// FindActiveByEvent returns the confirmed and waitlisted RSVPs, the set
// that gets notified when the event itself changes.
func (r *rsvpRepository) FindActiveByEvent(ctx context.Context, tx *gorm.DB, eventID uint) ([]models.RSVP, error) {
	var rsvps []models.RSVP
	err := tx.WithContext(ctx).
		Where("event_id = ? AND status <> ?", eventID, models.StatusCancelled).
		Order("id ASC").
		Find(&rsvps).Error
	if err != nil {
		return nil, err
	}
	return rsvps, nil
}

func (r *rsvpRepository) FindByEventID(ctx context.Context, eventID uint, status *models.RSVPStatus) ([]models.RSVP, error) {
	var rsvps []models.RSVP
	q := r.db.WithContext(ctx).Where("event_id = ?", eventID)
	if status != nil {
		q = q.Where("status = ?", *status)
	}
	if err := q.Order("id ASC").Find(&rsvps).Error; err != nil {
		return nil, err
	}
	return rsvps, nil
}

func (r *rsvpRepository) FindByUserID(ctx context.Context, userID string) ([]models.RSVP, error) {
	var rsvps []models.RSVP
	err := r.db.WithContext(ctx).
		Preload("Event").
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Find(&rsvps).Error
	if err != nil {
		return nil, err
	}
	return rsvps, nil
}
