package notify

import (
	"context"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/nikola1125/ashila-backend/internal/domain"
	"github.com/nikola1125/ashila-backend/internal/metrics"
)

const (
	defaultWorkers     = 2
	defaultQueueSize   = 128
	defaultSinkTimeout = 10 * time.Second
)

// Sink — именованный получатель уведомлений.
type Sink struct {
	Name     string
	Notifier domain.Notifier
}

// Dispatcher рассылает подтверждённые заказы по всем sinks в фоновых воркерах.
// Ошибки доставки только логируются.
type Dispatcher struct {
	sinks   []Sink
	queue   chan domain.Order
	timeout time.Duration
	workers int
	logger  *log.Entry
	metrics *metrics.NotifyMetrics

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// Option настраивает Dispatcher.
type Option func(*Dispatcher)

func WithLogger(logger *log.Entry) Option {
	return func(d *Dispatcher) {
		if logger != nil {
			d.logger = logger
		}
	}
}

func WithMetrics(m *metrics.NotifyMetrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

func WithWorkers(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.queue = make(chan domain.Order, n)
		}
	}
}

// WithSinkTimeout ограничивает одну доставку в один sink.
func WithSinkTimeout(timeout time.Duration) Option {
	return func(d *Dispatcher) {
		if timeout > 0 {
			d.timeout = timeout
		}
	}
}

// NewDispatcher создаёт диспетчер и сразу запускает воркеры.
func NewDispatcher(sinks []Sink, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		sinks:   sinks,
		queue:   make(chan domain.Order, defaultQueueSize),
		timeout: defaultSinkTimeout,
		workers: defaultWorkers,
		logger:  log.New().WithField("component", "notify"),
	}
	for _, opt := range opts {
		opt(d)
	}

	d.wg.Add(d.workers)
	for i := 0; i < d.workers; i++ {
		go d.run()
	}
	return d
}

// PublishOrderConfirmed ставит заказ в очередь, не блокируя вызывающего.
// false — очередь заполнена или диспетчер закрыт, уведомление потеряно.
func (d *Dispatcher) PublishOrderConfirmed(order domain.Order) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		d.drop(order, "dispatcher closed")
		return false
	}
	select {
	case d.queue <- order:
		d.reportDepth()
		return true
	default:
		d.drop(order, "queue full")
		return false
	}
}

// Close перестаёт принимать заказы и ждёт, пока воркеры разберут очередь.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.logger.Info("notification dispatcher stopped")
		return nil
	case <-ctx.Done():
		d.logger.WithField("pending", len(d.queue)).Warn("notification dispatcher stopped before draining the queue")
		return ctx.Err()
	}
}

func (d *Dispatcher) run() {
	defer d.wg.Done()
	for order := range d.queue {
		d.reportDepth()
		d.deliver(order)
	}
}

func (d *Dispatcher) deliver(order domain.Order) {
	for _, sink := range d.sinks {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		err := sink.Notifier.NotifyOrderConfirmed(ctx, order)
		cancel()

		entry := d.logger.WithFields(log.Fields{"sink": sink.Name, "order_id": order.ID})
		if err != nil {
			entry.WithError(err).Error("order notification failed")
			d.record(sink.Name, "failed")
			continue
		}
		entry.Debug("order notification delivered")
		d.record(sink.Name, "delivered")
	}
}

func (d *Dispatcher) drop(order domain.Order, reason string) {
	d.logger.WithFields(log.Fields{"order_id": order.ID, "reason": reason}).Warn("order notification dropped")
	if d.metrics != nil {
		d.metrics.RecordDropped()
	}
}

func (d *Dispatcher) record(sink, outcome string) {
	if d.metrics != nil {
		d.metrics.RecordDelivery(sink, outcome)
	}
}

func (d *Dispatcher) reportDepth() {
	if d.metrics != nil {
		d.metrics.SetQueueDepth(len(d.queue))
	}
}
