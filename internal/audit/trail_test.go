package audit

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/brightling/convene/internal/metrics"
)

type fakeWriter struct {
	mu     sync.Mutex
	err    error
	keys   []string
	values [][]byte
}

func (w *fakeWriter) WriteMessage(ctx context.Context, key, value []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.keys = append(w.keys, string(key))
	w.values = append(w.values, value)
	return w.err
}

func (w *fakeWriter) count() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.keys)
}

func (w *fakeWriter) first() (string, []byte) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.keys[0], w.values[0]
}

func TestKafkaTrail_AppendsKeyedByEvent(t *testing.T) {
	w := &fakeWriter{}
	trail := NewKafkaTrail(w, nil)

	trail.Append(Entry{EventID: 42, UserID: "ada", ToStatus: "yes", Actor: "ada"})

	assert.Eventually(t, func() bool { return w.count() == 1 }, 2*time.Second, 10*time.Millisecond)

	key, value := w.first()
	assert.Equal(t, "42", key)

	var got Entry
	assert.NoError(t, json.Unmarshal(value, &got))
	assert.NotEmpty(t, got.ID)
	assert.False(t, got.RecordedAt.IsZero())
	assert.Equal(t, "yes", got.ToStatus)
	// First-ever RSVP has no prior status, so the field stays off the wire.
	assert.NotContains(t, string(value), "from_status")
}

func TestKafkaTrail_WriterFailureCounts(t *testing.T) {
	w := &fakeWriter{err: errors.New("kafka unreachable")}
	reg := metrics.New(prometheus.NewRegistry())
	trail := NewKafkaTrail(w, reg)

	trail.Append(Entry{EventID: 42, UserID: "ada", ToStatus: "cancelled"})

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(reg.DispatchFailures.WithLabelValues("kafka")) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestRecorderTrail_RetainsEntries(t *testing.T) {
	r := &RecorderTrail{}
	r.Append(Entry{EventID: 1, UserID: "ada", ToStatus: "yes"})
	r.Append(Entry{EventID: 1, UserID: "grace", FromStatus: "waitlist", ToStatus: "yes", Actor: "ada"})

	entries := r.Entries()
	assert.Len(t, entries, 2)
	assert.Equal(t, "waitlist", entries[1].FromStatus)
}
