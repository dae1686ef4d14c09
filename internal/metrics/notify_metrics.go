package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// NotifyMetrics — метрики диспетчера уведомлений.
type NotifyMetrics struct {
	deliveries *prometheus.CounterVec
	dropped    prometheus.Counter
	queueDepth prometheus.Gauge
}

// NewNotifyMetrics регистрирует метрики в DefaultRegisterer.
func NewNotifyMetrics() *NotifyMetrics {
	return NewNotifyMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func NewNotifyMetricsWithRegisterer(registerer prometheus.Registerer) *NotifyMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	return &NotifyMetrics{
		deliveries: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "storefront_notifications_total",
			Help: "Order confirmation notifications by sink and outcome",
		}, []string{"sink", "outcome"}),
		dropped: registerCounter(registerer, prometheus.CounterOpts{
			Name: "storefront_notifications_dropped_total",
			Help: "Notifications dropped because the queue was full or closed",
		}),
		queueDepth: registerGauge(registerer, prometheus.GaugeOpts{
			Name: "storefront_notifications_queue_depth",
			Help: "Orders waiting for notification delivery",
		}),
	}
}

func (m *NotifyMetrics) RecordDelivery(sink, outcome string) {
	m.deliveries.WithLabelValues(sink, outcome).Inc()
}

func (m *NotifyMetrics) RecordDropped() {
	m.dropped.Inc()
}

func (m *NotifyMetrics) SetQueueDepth(depth int) {
	m.queueDepth.Set(float64(depth))
}
