package audit

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/brightling/convene/internal/metrics"
)

// Entry is one RSVP status transition appended to the analytics stream.
// FromStatus is empty on a user's first RSVP; Actor is the user whose
// request caused the transition, which differs from UserID when a
// cancellation or capacity change promotes somebody else.
type Entry struct {
	ID         string    `json:"id"`
	EventID    uint      `json:"event_id"`
	UserID     string    `json:"user_id"`
	FromStatus string    `json:"from_status,omitempty"`
	ToStatus   string    `json:"to_status"`
	Actor      string    `json:"actor,omitempty"`
	RecordedAt time.Time `json:"recorded_at"`
}

// Trail records transitions for downstream analytics. Append is
// fire-and-forget: a broken sink must never fail the transition itself.
type Trail interface {
	Append(e Entry)
}

// NopTrail drops everything. Used when no Kafka brokers are configured.
type NopTrail struct{}

func (NopTrail) Append(Entry) {}

// MessageWriter is the producer surface the trail needs. Satisfied by
// kafka.Writer.
type MessageWriter interface {
	WriteMessage(ctx context.Context, key, value []byte) error
}

// KafkaTrail appends entries keyed by event id so each event's transitions
// stay ordered within a partition.
type KafkaTrail struct {
	writer  MessageWriter
	metrics *metrics.Registry
	timeout time.Duration
}

func NewKafkaTrail(writer MessageWriter, m *metrics.Registry) *KafkaTrail {
	return &KafkaTrail{
		writer:  writer,
		metrics: m,
		timeout: 5 * time.Second,
	}
}

func (t *KafkaTrail) Append(e Entry) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.RecordedAt.IsZero() {
		e.RecordedAt = time.Now().UTC()
	}

	value, err := json.Marshal(e)
	if err != nil {
		log.Error().Err(err).Msg("marshal audit entry")
		return
	}
	key := []byte(strconv.FormatUint(uint64(e.EventID), 10))

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
		defer cancel()
		if err := t.writer.WriteMessage(ctx, key, value); err != nil {
			if t.metrics != nil {
				t.metrics.DispatchFailures.WithLabelValues("kafka").Inc()
			}
			log.Warn().Err(err).Uint("event_id", e.EventID).Msg("audit append failed")
		}
	}()
}

// RecorderTrail retains entries for inspection in tests.
type RecorderTrail struct {
	mu      sync.Mutex
	entries []Entry
}

func (r *RecorderTrail) Append(e Entry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, e)
}

func (r *RecorderTrail) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}
