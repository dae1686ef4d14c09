package kafka

import (
	"time"

	"github.com/nikola1125/ashila-backend/internal/domain"
)

// EventType определяет тип события.
type EventType string

const (
	EventTypeOrderConfirmed EventType = "order.confirmed"
)

// TopicOrderEvents — топик событий заказов витрины.
const TopicOrderEvents = "storefront.order.events"

const HeaderEventType = "x-event-type"

// OrderItemPayload — позиция в событии.
type OrderItemPayload struct {
	ProductID    string `json:"product_id"`
	ItemName     string `json:"item_name"`
	SelectedSize string `json:"selected_size,omitempty"`
	Quantity     int    `json:"quantity"`
	Price        string `json:"price"`
	SellerEmail  string `json:"seller_email,omitempty"`
}

// OrderEvent — снимок заказа в момент события. Суммы передаются строками без потери точности.
type OrderEvent struct {
	EventType   EventType          `json:"event_type"`
	OrderID     string             `json:"order_id"`
	OrderNumber string             `json:"order_number"`
	BuyerEmail  string             `json:"buyer_email"`
	Status      string             `json:"status"`
	FinalPrice  string             `json:"final_price"`
	Items       []OrderItemPayload `json:"items"`
	Timestamp   time.Time          `json:"timestamp"`
}

// NewOrderEvent строит событие из заказа.
func NewOrderEvent(eventType EventType, order domain.Order) *OrderEvent {
	event := &OrderEvent{
		EventType:   eventType,
		OrderID:     order.ID,
		OrderNumber: order.OrderNumber,
		BuyerEmail:  order.BuyerEmail,
		Status:      string(order.Status),
		FinalPrice:  order.Pricing.FinalPrice.StringFixed(2),
		Items:       make([]OrderItemPayload, 0, len(order.Items)),
		Timestamp:   time.Now().UTC(),
	}
	for _, item := range order.Items {
		event.Items = append(event.Items, OrderItemPayload{
			ProductID:    item.ProductID,
			ItemName:     item.ItemName,
			SelectedSize: item.SelectedSize,
			Quantity:     item.Quantity,
			Price:        item.Price.StringFixed(2),
			SellerEmail:  item.SellerEmail,
		})
	}
	return event
}
