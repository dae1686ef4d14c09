package kafka

import (
	"context"

	"github.com/IBM/sarama"

	"github.com/nikola1125/ashila-backend/internal/domain"
)

// OrderEventNotifier публикует order.confirmed в TopicOrderEvents, ключ — id заказа.
type OrderEventNotifier struct {
	producer *Producer
	topic    string
}

func NewOrderEventNotifier(producer *Producer) *OrderEventNotifier {
	return &OrderEventNotifier{producer: producer, topic: TopicOrderEvents}
}

func (n *OrderEventNotifier) NotifyOrderConfirmed(ctx context.Context, order domain.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	event := NewOrderEvent(EventTypeOrderConfirmed, order)
	return n.producer.PublishEvent(n.topic, order.ID, event, sarama.RecordHeader{
		Key:   []byte(HeaderEventType),
		Value: []byte(EventTypeOrderConfirmed),
	})
}

var _ domain.Notifier = (*OrderEventNotifier)(nil)
