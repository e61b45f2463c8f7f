package notify

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/brightling/convene/internal/metrics"
)

// Publisher is the broker-side surface the dispatcher needs. Satisfied by
// rabbitmq.Publisher.
type Publisher interface {
	Publish(routingKey string, payload any) error
}

// AMQPDispatcher publishes notifications to the topic exchange, wrapped in
// a circuit breaker so a dead broker degrades to dropped notifications
// instead of a goroutine pile-up of publish timeouts.
type AMQPDispatcher struct {
	publisher Publisher
	breaker   *gobreaker.CircuitBreaker
	metrics   *metrics.Registry
}

func NewAMQPDispatcher(publisher Publisher, m *metrics.Registry) *AMQPDispatcher {
	settings := gobreaker.Settings{
		Name:    "notify-amqp",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn().Str("breaker", name).Str("from", from.String()).Str("to", to.String()).Msg("circuit breaker state change")
		},
	}
	return &AMQPDispatcher{
		publisher: publisher,
		breaker:   gobreaker.NewCircuitBreaker(settings),
		metrics:   m,
	}
}

func (d *AMQPDispatcher) Dispatch(msg Message) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.OccurredAt.IsZero() {
		msg.OccurredAt = time.Now().UTC()
	}

	go func() {
		_, err := d.breaker.Execute(func() (interface{}, error) {
			return nil, d.publisher.Publish(routingKey(msg.Kind), msg)
		})
		if err != nil {
			if d.metrics != nil {
				d.metrics.DispatchFailures.WithLabelValues("amqp").Inc()
			}
			log.Warn().Err(err).
				Str("kind", msg.Kind).
				Uint("event_id", msg.EventID).
				Str("user_id", msg.UserID).
				Msg("notification dispatch failed")
		}
	}()
}

// routingKey maps a notification kind to its exchange routing key, e.g.
// rsvp_confirmed -> rsvp.confirmed, so consumers can bind on rsvp.* or
// event.*.
func routingKey(kind string) string {
	return strings.ReplaceAll(kind, "_", ".")
}
