package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikola1125/ashila-backend/internal/domain"
	"github.com/nikola1125/ashila-backend/internal/metrics"
)

type recordingNotifier struct {
	mu      sync.Mutex
	orders  []string
	err     error
	block   chan struct{}
	started chan struct{}
}

func (n *recordingNotifier) NotifyOrderConfirmed(ctx context.Context, order domain.Order) error {
	if n.started != nil {
		n.started <- struct{}{}
	}
	if n.block != nil {
		select {
		case <-n.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	n.orders = append(n.orders, order.ID)
	return n.err
}

func (n *recordingNotifier) seen() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.orders...)
}

func quietLogger() *log.Entry {
	l := log.New()
	l.SetLevel(log.PanicLevel)
	return l.WithField("component", "test")
}

func TestDispatcher_FansOutToEverySinkAndDrains(t *testing.T) {
	email := &recordingNotifier{}
	kafka := &recordingNotifier{err: errors.New("broker down")}
	reg := prometheus.NewRegistry()
	m := metrics.NewNotifyMetricsWithRegisterer(reg)
	d := NewDispatcher([]Sink{{Name: "email", Notifier: email}, {Name: "kafka", Notifier: kafka}},
		WithLogger(quietLogger()), WithMetrics(m), WithWorkers(3))

	for _, id := range []string{"o1", "o2", "o3"} {
		require.True(t, d.PublishOrderConfirmed(domain.Order{ID: id}))
	}
	require.NoError(t, d.Close(context.Background()))

	assert.ElementsMatch(t, []string{"o1", "o2", "o3"}, email.seen())
	assert.ElementsMatch(t, []string{"o1", "o2", "o3"}, kafka.seen())
	assert.Equal(t, 3.0, deliveries(t, reg, "email", "delivered"))
	assert.Equal(t, 3.0, deliveries(t, reg, "kafka", "failed"))
}

func TestDispatcher_DropsWhenQueueIsFull(t *testing.T) {
	sink := &recordingNotifier{block: make(chan struct{}), started: make(chan struct{}, 1)}
	d := NewDispatcher([]Sink{{Name: "slow", Notifier: sink}},
		WithLogger(quietLogger()), WithWorkers(1), WithQueueSize(1))

	require.True(t, d.PublishOrderConfirmed(domain.Order{ID: "busy"}))
	<-sink.started
	require.True(t, d.PublishOrderConfirmed(domain.Order{ID: "queued"}))
	assert.False(t, d.PublishOrderConfirmed(domain.Order{ID: "dropped"}))

	close(sink.block)
	require.NoError(t, d.Close(context.Background()))
	assert.Equal(t, []string{"busy", "queued"}, sink.seen())
}

func TestDispatcher_PublishAfterCloseIsRejected(t *testing.T) {
	d := NewDispatcher(nil, WithLogger(quietLogger()))
	require.NoError(t, d.Close(context.Background()))
	require.NoError(t, d.Close(context.Background()))

	assert.False(t, d.PublishOrderConfirmed(domain.Order{ID: "late"}))
}

func TestDispatcher_SinkTimeoutBoundsDelivery(t *testing.T) {
	sink := &recordingNotifier{block: make(chan struct{})}
	d := NewDispatcher([]Sink{{Name: "stuck", Notifier: sink}},
		WithLogger(quietLogger()), WithSinkTimeout(20*time.Millisecond))

	require.True(t, d.PublishOrderConfirmed(domain.Order{ID: "o1"}))

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, d.Close(ctx))
	assert.Empty(t, sink.seen())
}

func TestDispatcher_CloseHonoursContext(t *testing.T) {
	sink := &recordingNotifier{block: make(chan struct{}), started: make(chan struct{}, 1)}
	d := NewDispatcher([]Sink{{Name: "stuck", Notifier: sink}}, WithLogger(quietLogger()), WithWorkers(1))
	require.True(t, d.PublishOrderConfirmed(domain.Order{ID: "o1"}))
	<-sink.started

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, d.Close(ctx), context.DeadlineExceeded)
	close(sink.block)
}

func deliveries(t *testing.T, reg *prometheus.Registry, sink, outcome string) float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != "storefront_notifications_total" {
			continue
		}
		for _, metric := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range metric.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["sink"] == sink && labels["outcome"] == outcome {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}
