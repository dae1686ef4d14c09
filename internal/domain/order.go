package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus описывает жизненный цикл заказа.
type OrderStatus string

const (
	// OrderStatusPending — заказ создан, склад ещё не тронут.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusConfirmed — остатки списаны ровно один раз.
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCancelled OrderStatus = "cancelled"
)

// Valid сообщает, что статус входит в известный набор.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusShipped, OrderStatusDelivered, OrderStatusCancelled:
		return true
	}
	return false
}

// Terminal — из этих статусов переходов нет.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// CanTransition проверяет переход from -> to. Повтор текущего статуса разрешён всегда.
// В confirmed можно попасть только из pending: это единственное ребро со списанием остатков.
func CanTransition(from, to OrderStatus) bool {
	if !to.Valid() {
		return false
	}
	if from == to {
		return true
	}
	if from.Terminal() {
		return false
	}
	switch to {
	case OrderStatusPending:
		return false
	case OrderStatusConfirmed:
		return from == OrderStatusPending
	default:
		return true
	}
}

// PaymentStatus — флаг оплаты, независимый от статуса заказа.
type PaymentStatus string

const (
	PaymentStatusPaid   PaymentStatus = "paid"
	PaymentStatusUnpaid PaymentStatus = "unpaid"
)

func (s PaymentStatus) Valid() bool {
	return s == PaymentStatusPaid || s == PaymentStatusUnpaid
}

// LineItem — позиция заказа со снимком цены на момент оформления.
type LineItem struct {
	ProductID    string
	ItemName     string
	Quantity     int
	Price        decimal.Decimal
	Discount     decimal.Decimal
	SelectedSize string
	SellerEmail  string
}

// LineTotal — price * quantity.
func (i LineItem) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// LineDiscount — price * quantity * discount / 100.
func (i LineItem) LineDiscount() decimal.Decimal {
	return i.LineTotal().Mul(i.Discount).Div(decimal.NewFromInt(100))
}

// Address — адрес доставки.
type Address struct {
	Street      string
	City        string
	PostalCode  string
	Country     string
	PhoneNumber string
}

// Pricing — денежный снимок заказа.
type Pricing struct {
	TotalPrice     decimal.Decimal
	DiscountAmount decimal.Decimal
	ShippingCost   decimal.Decimal
	FinalPrice     decimal.Decimal
}

// ComputePricing считает суммы по переданным позициям, каталог не перечитывается.
func ComputePricing(items []LineItem, shipping decimal.Decimal) Pricing {
	total := decimal.Zero
	discount := decimal.Zero
	for _, item := range items {
		total = total.Add(item.LineTotal())
		discount = discount.Add(item.LineDiscount())
	}
	// Итог считается из уже округлённых слагаемых, чтобы снимок сходился до цента.
	total = total.Round(2)
	discount = discount.Round(2)
	shipping = shipping.Round(2)
	return Pricing{
		TotalPrice:     total,
		DiscountAmount: discount,
		ShippingCost:   shipping,
		FinalPrice:     total.Sub(discount).Add(shipping),
	}
}

// Order агрегирует состояние заказа и его позиции.
type Order struct {
	ID              string
	OrderNumber     string
	BuyerEmail      string
	BuyerName       string
	Items           []LineItem
	Pricing         Pricing
	Status          OrderStatus
	PaymentStatus   PaymentStatus
	DeliveryAddress Address
	TrackingNumber  string
	Notes           string
	Version         int64
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Clone возвращает копию заказа без общих слайсов.
func (o Order) Clone() Order {
	if o.Items != nil {
		o.Items = append([]LineItem(nil), o.Items...)
	}
	return o
}

// HasSeller проверяет, что хотя бы одна позиция принадлежит продавцу.
func (o *Order) HasSeller(email string) bool {
	for _, item := range o.Items {
		if strings.EqualFold(item.SellerEmail, email) {
			return true
		}
	}
	return false
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if strings.TrimSpace(o.BuyerEmail) == "" {
		errs = append(errs, ErrBuyerEmailRequired)
	}
	if len(o.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
	}
	hundred := decimal.NewFromInt(100)
	for _, item := range o.Items {
		if strings.TrimSpace(item.ProductID) == "" {
			errs = append(errs, ErrProductIDRequired)
		}
		if item.Quantity <= 0 {
			errs = append(errs, ErrItemQtyInvalid)
		}
		if item.Price.IsNegative() {
			errs = append(errs, ErrItemPriceInvalid)
		}
		if item.Discount.IsNegative() || item.Discount.GreaterThan(hundred) {
			errs = append(errs, ErrItemDiscountInvalid)
		}
	}
	if o.Status != "" && !o.Status.Valid() {
		errs = append(errs, ErrInvalidStatus)
	}
	if o.PaymentStatus != "" && !o.PaymentStatus.Valid() {
		errs = append(errs, ErrInvalidStatus)
	}

	return errs
}

// OrderPatch — изменяемые поля заказа. nil означает «не трогать».
type OrderPatch struct {
	Status          *OrderStatus
	PaymentStatus   *PaymentStatus
	TrackingNumber  *string
	Notes           *string
	DeliveryAddress *Address
}

// Validate проверяет значения перечислений в патче.
func (p OrderPatch) Validate() error {
	if p.Status != nil && !p.Status.Valid() {
		return ErrInvalidStatus
	}
	if p.PaymentStatus != nil && !p.PaymentStatus.Valid() {
		return ErrInvalidStatus
	}
	return nil
}

// TargetStatus возвращает статус после применения патча к заказу в статусе current.
func (p OrderPatch) TargetStatus(current OrderStatus) OrderStatus {
	if p.Status == nil {
		return current
	}
	return *p.Status
}

// Apply переносит заданные поля в заказ.
func (p OrderPatch) Apply(o *Order) {
	if p.Status != nil {
		o.Status = *p.Status
	}
	if p.PaymentStatus != nil {
		o.PaymentStatus = *p.PaymentStatus
	}
	if p.TrackingNumber != nil {
		o.TrackingNumber = *p.TrackingNumber
	}
	if p.Notes != nil {
		o.Notes = *p.Notes
	}
	if p.DeliveryAddress != nil {
		o.DeliveryAddress = *p.DeliveryAddress
	}
}

// OrderFilter задаёт выборку заказов. Пустые поля не фильтруют.
type OrderFilter struct {
	BuyerEmail  string
	SellerEmail string
	Limit       int
}

// StatusSales — выручка и число заказов в одном статусе.
type StatusSales struct {
	Status  OrderStatus
	Revenue decimal.Decimal
	Count   int
}
