package repository

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/brightling/convene/internal/models"
)

// EventFilter narrows List. Zero values mean no constraint. When CreatedBy
// is empty the listing is a public feed and hidden events are excluded;
// when set, it returns that creator's events in every status.
type EventFilter struct {
	Query     string
	From      *time.Time
	Until     *time.Time
	Status    *models.EventStatus
	CreatedBy string
	Limit     int
	Offset    int
}

type EventRepository interface {
	Create(ctx context.Context, event *models.Event) error
	FindByID(ctx context.Context, id uint) (*models.Event, error)
	FindByIDForUpdate(ctx context.Context, tx *gorm.DB, id uint) (*models.Event, error)
	List(ctx context.Context, filter EventFilter) ([]models.Event, error)
	Save(ctx context.Context, tx *gorm.DB, event *models.Event) error
}

type eventRepository struct {
	db *gorm.DB
}

func NewEventRepository(db *gorm.DB) EventRepository {
	return &eventRepository{db: db}
}

func (r *eventRepository) Create(ctx context.Context, event *models.Event) error {
	return r.db.WithContext(ctx).Create(event).Error
}

func (r *eventRepository) FindByID(ctx context.Context, id uint) (*models.Event, error) {
	var event models.Event
	if err := r.db.WithContext(ctx).First(&event, id).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

// FindByIDForUpdate acquires a row-level lock on the event within the given
// transaction. Every capacity arbitration for an event serializes on this
// lock.
func (r *eventRepository) FindByIDForUpdate(ctx context.Context, tx *gorm.DB, id uint) (*models.Event, error) {
	var event models.Event
	if err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&event, id).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

func (r *eventRepository) List(ctx context.Context, filter EventFilter) ([]models.Event, error) {
	q := r.db.WithContext(ctx).Model(&models.Event{})

	if filter.Query != "" {
		pattern := "%" + filter.Query + "%"
		q = q.Where("title ILIKE ? OR description ILIKE ?", pattern, pattern)
	}
	if filter.From != nil {
		q = q.Where("start_at >= ?", *filter.From)
	}
	if filter.Until != nil {
		q = q.Where("start_at <= ?", *filter.Until)
	}
	if filter.Status != nil {
		q = q.Where("status = ?", *filter.Status)
	}
	if filter.CreatedBy != "" {
		q = q.Where("created_by = ?", filter.CreatedBy)
	} else {
		q = q.Where("status <> ?", models.EventHidden)
	}
	if filter.Limit > 0 {
		q = q.Limit(filter.Limit)
	}
	if filter.Offset > 0 {
		q = q.Offset(filter.Offset)
	}

	var events []models.Event
	if err := q.Order("start_at ASC, id ASC").Find(&events).Error; err != nil {
		return nil, err
	}
	return events, nil
}

func (r *eventRepository) Save(ctx context.Context, tx *gorm.DB, event *models.Event) error {
	return tx.WithContext(ctx).Save(event).Error
}
