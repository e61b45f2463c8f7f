package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry bundles the Prometheus instruments for the RSVP core so services
// receive one injectable handle instead of package globals.
type Registry struct {
	Joins            *prometheus.CounterVec
	Cancellations    prometheus.Counter
	Promotions       prometheus.Counter
	ConflictRetries  prometheus.Counter
	DispatchFailures *prometheus.CounterVec
}

func New(reg prometheus.Registerer) *Registry {
	r := &Registry{
		Joins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "convene_rsvp_joins_total",
			Help: "Join requests by arbitration outcome.",
		}, []string{"outcome"}),
		Cancellations: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "convene_rsvp_cancellations_total",
			Help: "RSVPs cancelled by their owner.",
		}),
		Promotions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "convene_waitlist_promotions_total",
			Help: "Waitlisted RSVPs promoted to confirmed.",
		}),
		ConflictRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "convene_rsvp_conflict_retries_total",
			Help: "Arbitration transactions retried after a concurrency conflict.",
		}),
		DispatchFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "convene_dispatch_failures_total",
			Help: "Collaborator hand-off failures by sink.",
		}, []string{"sink"}),
	}

	reg.MustRegister(r.Joins, r.Cancellations, r.Promotions, r.ConflictRetries, r.DispatchFailures)
	return r
}
