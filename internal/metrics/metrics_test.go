package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestNew_RegistersAndCounts(t *testing.T) {
	reg := New(prometheus.NewRegistry())

	reg.Joins.WithLabelValues("confirmed").Inc()
	reg.Joins.WithLabelValues("waitlisted").Inc()
	reg.Joins.WithLabelValues("waitlisted").Inc()
	reg.Cancellations.Inc()
	reg.Promotions.Inc()
	reg.ConflictRetries.Inc()
	reg.DispatchFailures.WithLabelValues("amqp").Inc()

	assert.Equal(t, float64(1), testutil.ToFloat64(reg.Joins.WithLabelValues("confirmed")))
	assert.Equal(t, float64(2), testutil.ToFloat64(reg.Joins.WithLabelValues("waitlisted")))
	assert.Equal(t, float64(1), testutil.ToFloat64(reg.Cancellations))
	assert.Equal(t, float64(1), testutil.ToFloat64(reg.Promotions))
	assert.Equal(t, float64(1), testutil.ToFloat64(reg.ConflictRetries))
	assert.Equal(t, float64(1), testutil.ToFloat64(reg.DispatchFailures.WithLabelValues("amqp")))
}

func TestNew_SeparateRegistriesIndependent(t *testing.T) {
	a := New(prometheus.NewRegistry())
	b := New(prometheus.NewRegistry())

	a.Promotions.Inc()

	assert.Equal(t, float64(1), testutil.ToFloat64(a.Promotions))
	assert.Equal(t, float64(0), testutil.ToFloat64(b.Promotions))
}
