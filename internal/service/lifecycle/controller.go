package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/nikola1125/ashila-backend/internal/domain"
	"github.com/nikola1125/ashila-backend/internal/service/stock"
)

// DefaultShippingCost — фиксированная стоимость доставки.
var DefaultShippingCost = decimal.NewFromInt(300)

const createAttempts = 3

// Publisher принимает подтверждённый заказ для асинхронных уведомлений.
type Publisher interface {
	PublishOrderConfirmed(order domain.Order) bool
}

// Controller ведёт заказ по статусам и вызывает движок остатков на ребре pending -> confirmed.
type Controller struct {
	engine    *stock.Engine
	catalog   domain.CatalogRepository
	orders    domain.OrderRepository
	authz     domain.Authorizer
	publisher Publisher
	numbers   func() string
	shipping  decimal.Decimal
	restock   bool
	retry     stock.RetryConfig
	logger    *log.Entry
	now       func() time.Time
}

// Option настраивает Controller.
type Option func(*Controller)

func WithLogger(logger *log.Entry) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithAuthorizer включает проверку ролей. Без него все вызовы считаются доверенными.
func WithAuthorizer(authz domain.Authorizer) Option {
	return func(c *Controller) { c.authz = authz }
}

func WithPublisher(p Publisher) Option {
	return func(c *Controller) { c.publisher = p }
}

func WithShippingCost(cost decimal.Decimal) Option {
	return func(c *Controller) { c.shipping = cost }
}

// WithRestockOnCancel включает возврат остатков при отмене подтверждённого заказа.
func WithRestockOnCancel(enabled bool) Option {
	return func(c *Controller) { c.restock = enabled }
}

func WithOrderNumbers(gen func() string) Option {
	return func(c *Controller) {
		if gen != nil {
			c.numbers = gen
		}
	}
}

func WithRetry(cfg stock.RetryConfig) Option {
	return func(c *Controller) { c.retry = cfg }
}

func withClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// NewController собирает контроллер поверх движка и репозиториев.
func NewController(engine *stock.Engine, catalog domain.CatalogRepository, orders domain.OrderRepository, opts ...Option) *Controller {
	c := &Controller{
		engine:   engine,
		catalog:  catalog,
		orders:   orders,
		numbers:  NewOrderNumberGenerator().Next,
		shipping: DefaultShippingCost,
		restock:  true,
		retry:    stock.DefaultRetryConfig(),
		logger:   log.New().WithField("component", "lifecycle"),
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// CreateOrderInput — данные покупателя и позиции заказа.
type CreateOrderInput struct {
	BuyerEmail      string
	BuyerName       string
	Items           []domain.LineItem
	DeliveryAddress domain.Address
	Notes           string
}

// CreateOrder проверяет наличие, фиксирует суммы по переданным ценам и сохраняет
// заказ в pending/unpaid. Остатки не списываются.
func (c *Controller) CreateOrder(ctx context.Context, in CreateOrderInput) (domain.Order, error) {
	now := c.now()
	order := domain.Order{
		BuyerEmail:      strings.TrimSpace(in.BuyerEmail),
		BuyerName:       strings.TrimSpace(in.BuyerName),
		Items:           append([]domain.LineItem(nil), in.Items...),
		Status:          domain.OrderStatusPending,
		PaymentStatus:   domain.PaymentStatusUnpaid,
		DeliveryAddress: in.DeliveryAddress,
		Notes:           in.Notes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if errs := order.ValidateInvariants(); len(errs) > 0 {
		return domain.Order{}, errors.Join(errs...)
	}

	availability, err := c.engine.CheckAvailability(ctx, domain.StockRequests(order.Items))
	if err != nil {
		return domain.Order{}, fmt.Errorf("check availability: %w", err)
	}
	if err := availability.Err(); err != nil {
		return domain.Order{}, err
	}

	order.Pricing = domain.ComputePricing(order.Items, c.shipping)

	var created domain.Order
	for attempt := 1; ; attempt++ {
		order.OrderNumber = c.numbers()
		created, err = c.orders.Create(ctx, order)
		if err == nil {
			break
		}
		if !errors.Is(err, domain.ErrDuplicateOrderNumber) || attempt >= createAttempts {
			return domain.Order{}, fmt.Errorf("create order: %w", err)
		}
		c.logger.WithField("order_number", order.OrderNumber).Warn("order number collision, regenerating")
	}

	c.logger.WithFields(log.Fields{
		"order_id":     created.ID,
		"order_number": created.OrderNumber,
		"items":        len(created.Items),
		"final_price":  created.Pricing.FinalPrice.String(),
	}).Info("order created")
	return created, nil
}

// UpdateStatus применяет патч к заказу. Переход pending -> confirmed списывает остатки
// через движок; при неудаче заказ остаётся в прежнем статусе.
func (c *Controller) UpdateStatus(ctx context.Context, orderID string, patch domain.OrderPatch) (domain.Order, error) {
	if err := c.requireStaff(ctx); err != nil {
		return domain.Order{}, err
	}
	if err := patch.Validate(); err != nil {
		return domain.Order{}, err
	}

	current, err := c.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if err := c.checkSellerScope(ctx, current); err != nil {
		return domain.Order{}, err
	}
	oldStatus := current.Status
	target := patch.TargetStatus(oldStatus)
	if !domain.CanTransition(oldStatus, target) {
		return domain.Order{}, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, oldStatus, target)
	}
	if target == oldStatus && onlyStatus(patch) {
		return current, nil
	}

	transition := c.patchTransition(patch)
	logger := c.logger.WithFields(log.Fields{"order_id": orderID, "from": oldStatus, "to": target})

	switch {
	case target == domain.OrderStatusConfirmed && oldStatus != domain.OrderStatusConfirmed:
		res, err := c.engine.CommitReservation(ctx, orderID, transition)
		if err != nil {
			return domain.Order{}, err
		}
		if res.NoOp {
			// Подтвердил кто-то другой. Остальные поля патча применяем отдельно.
			if onlyStatus(patch) {
				return res.Order, nil
			}
			return c.save(ctx, orderID, transition)
		}
		c.notify(res.Order, logger)
		logger.Info("order confirmed")
		return res.Order, nil

	case target == domain.OrderStatusCancelled && oldStatus != domain.OrderStatusCancelled && c.restock:
		res, err := c.engine.ReleaseReservation(ctx, orderID, transition)
		if err != nil {
			return domain.Order{}, err
		}
		logger.WithField("restocked", !res.NoOp).Info("order cancelled")
		return res.Order, nil

	default:
		order, err := c.save(ctx, orderID, transition)
		if err != nil {
			return domain.Order{}, err
		}
		if target != oldStatus {
			logger.Info("order status updated")
		}
		return order, nil
	}
}

// patchTransition перепроверяет переход на свежем чтении заказа и применяет патч.
func (c *Controller) patchTransition(patch domain.OrderPatch) stock.Transition {
	return func(current domain.Order) (domain.Order, error) {
		target := patch.TargetStatus(current.Status)
		if !domain.CanTransition(current.Status, target) {
			return domain.Order{}, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, current.Status, target)
		}
		next := current.Clone()
		patch.Apply(&next)
		next.UpdatedAt = c.now()
		return next, nil
	}
}

// save перечитывает заказ и сохраняет результат transition, повторяя при конфликте версий.
func (c *Controller) save(ctx context.Context, orderID string, transition stock.Transition) (domain.Order, error) {
	var saved domain.Order
	err := stock.RetryOnVersionConflict(ctx, c.retry, c.logger.WithField("order_id", orderID), func() error {
		current, err := c.orders.Get(ctx, orderID)
		if err != nil {
			return err
		}
		next, err := transition(current)
		if err != nil {
			return err
		}
		if err := c.orders.Save(ctx, next); err != nil {
			return err
		}
		next.Version = current.Version + 1
		saved = next
		return nil
	})
	if err != nil {
		return domain.Order{}, err
	}
	return saved, nil
}

func (c *Controller) notify(order domain.Order, logger *log.Entry) {
	if c.publisher == nil {
		return
	}
	if !c.publisher.PublishOrderConfirmed(order.Clone()) {
		logger.Warn("order confirmation notification was not queued")
	}
}

func onlyStatus(p domain.OrderPatch) bool {
	return p.PaymentStatus == nil && p.TrackingNumber == nil && p.Notes == nil && p.DeliveryAddress == nil
}
