package models

import "time"

type RSVPStatus string

const (
	StatusYes       RSVPStatus = "yes"
	StatusWaitlist  RSVPStatus = "waitlist"
	StatusCancelled RSVPStatus = "cancelled"
)

// RSVP is the single row tracking one user's relationship to one event.
// Re-joining or leaving mutates the row in place rather than inserting a
// new one, so (EventID, UserID) stays unique for the event's lifetime.
type RSVP struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	EventID          uint       `gorm:"not null;index:idx_rsvps_event_status" json:"event_id"`
	UserID           string     `gorm:"not null" json:"user_id"`
	Status           RSVPStatus `gorm:"type:varchar(20);not null;index:idx_rsvps_event_status" json:"status"`
	WaitlistPosition *int       `json:"waitlist_position,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`

	Event *Event `gorm:"foreignKey:EventID" json:"event,omitempty"`
}
