package notify

import (
	"sync"
	"time"
)

// Notification kinds understood by the messaging collaborator.
const (
	KindRSVPConfirmed  = "rsvp_confirmed"
	KindRSVPWaitlisted = "rsvp_waitlisted"
	KindRSVPCancelled  = "rsvp_cancelled"
	KindEventCancelled = "event_cancelled"
	KindEventUpdated   = "event_updated"
)

// Message is the payload handed to the notification collaborator. Actual
// delivery (email, chat, push) is the collaborator's concern; we only state
// what happened and to whom.
type Message struct {
	ID         string    `json:"id"`
	Kind       string    `json:"kind"`
	UserID     string    `json:"user_id"`
	EventID    uint      `json:"event_id"`
	EventTitle string    `json:"event_title"`
	Status     string    `json:"status,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Dispatcher hands messages to the collaborator. Implementations must never
// block or fail the state change that produced the message: a broken
// collaborator loses notifications, not RSVPs.
type Dispatcher interface {
	Dispatch(msg Message)
}

// NopDispatcher drops everything. Used when no broker is configured.
type NopDispatcher struct{}

func (NopDispatcher) Dispatch(Message) {}

// Recorder retains dispatched messages for inspection in tests.
type Recorder struct {
	mu   sync.Mutex
	msgs []Message
}

func (r *Recorder) Dispatch(msg Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = append(r.msgs, msg)
}

func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Message, len(r.msgs))
	copy(out, r.msgs)
	return out
}

func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.msgs = nil
}
