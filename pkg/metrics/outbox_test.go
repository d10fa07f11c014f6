package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutboxMetricsCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewOutboxMetrics(reg)

	m.IncPublished("customer_basket_transitioned")
	m.IncPublished("customer_basket_transitioned")
	m.IncFailed("customer_basket_transitioned")
	m.IncParked("max_attempts")
	m.IncParked("")
	m.ObserveBatch(250 * time.Millisecond)

	mfs, err := reg.Gather()
	require.NoError(t, err)
	assert.Equal(t, 2.0, mustValue(t, mfs, "basket_outbox_published_total", map[string]string{"event_type": "customer_basket_transitioned"}))
	assert.Equal(t, 1.0, mustValue(t, mfs, "basket_outbox_publish_failures_total", map[string]string{"event_type": "customer_basket_transitioned"}))
	assert.Equal(t, 1.0, mustValue(t, mfs, "basket_outbox_parked_total", map[string]string{"reason": "max_attempts"}))
	assert.Equal(t, 1.0, mustValue(t, mfs, "basket_outbox_parked_total", map[string]string{"reason": "unknown"}))
	assert.InDelta(t, 0.25, mustValue(t, mfs, "basket_outbox_batch_duration_seconds", nil), 1e-9)
}

func TestNilOutboxMetricsAreNoops(t *testing.T) {
	var m *OutboxMetrics
	m.IncPublished("x")
	m.IncFailed("x")
	m.IncParked("x")
	m.ObserveBatch(time.Second)

	NewOutboxMetrics(nil).IncPublished("x")
}
