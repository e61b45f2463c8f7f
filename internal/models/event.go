package models

import "time"

type EventStatus string

const (
	EventActive    EventStatus = "active"
	EventCancelled EventStatus = "cancelled"
	EventHidden    EventStatus = "hidden"
)

type Event struct {
	ID          uint        `gorm:"primaryKey" json:"id"`
	Title       string      `gorm:"not null" json:"title"`
	Description string      `gorm:"type:text" json:"description"`
	Location    string      `json:"location"`
	Capacity    *int        `json:"capacity"`
	Status      EventStatus `gorm:"type:varchar(20);not null;default:'active';index" json:"status"`
	CreatedBy   string      `gorm:"not null;index" json:"created_by"`
	StartAt     time.Time   `gorm:"not null;index" json:"start_at"`
	EndAt       time.Time   `gorm:"not null" json:"end_at"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Unlimited reports whether the event has no attendance cap. A nil
// Capacity means nobody is ever waitlisted.
func (e *Event) Unlimited() bool {
	return e.Capacity == nil
}
