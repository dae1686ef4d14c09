package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, c.Write(&m))
	return m.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, g.Write(&m))
	return m.GetGauge().GetValue()
}

func TestStockMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewStockMetricsWithRegisterer(reg)

	m.RecordAvailabilityCheck("ok")
	m.RecordAvailabilityCheck("shortfall")
	m.RecordAvailabilityCheck("shortfall")
	m.RecordCommit("transactional", "committed", 10*time.Millisecond)
	m.RecordCompensation()
	m.SetDegraded(true)

	assert.Equal(t, 2.0, counterValue(t, m.availabilityChecks.WithLabelValues("shortfall")))
	assert.Equal(t, 1.0, counterValue(t, m.commits.WithLabelValues("transactional", "committed")))
	assert.Equal(t, 1.0, counterValue(t, m.compensations))
	assert.Equal(t, 1.0, gaugeValue(t, m.degradedMode))

	m.SetDegraded(false)
	assert.Equal(t, 0.0, gaugeValue(t, m.degradedMode))
}

func TestRegisterReusesExistingCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	first := NewStockMetricsWithRegisterer(reg)
	second := NewStockMetricsWithRegisterer(reg)

	first.RecordCompensation()
	assert.Equal(t, 1.0, counterValue(t, second.compensations))
}

func TestNotifyMetricsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewNotifyMetricsWithRegisterer(reg)

	m.RecordDelivery("email", "sent")
	m.RecordDropped()
	m.SetQueueDepth(3)

	assert.Equal(t, 1.0, counterValue(t, m.deliveries.WithLabelValues("email", "sent")))
	assert.Equal(t, 1.0, counterValue(t, m.dropped))
	assert.Equal(t, 3.0, gaugeValue(t, m.queueDepth))
}
