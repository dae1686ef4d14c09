package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// Ошибка отсутствующего email покупателя.
	ErrBuyerEmailRequired = errors.New("buyer_email is required")
	// Ошибка отсутствия хотя бы одного товара в заказе.
	ErrItemsRequired = errors.New("order must contain at least one item")
	// Ошибка отсутствующего идентификатора товара в позиции.
	ErrProductIDRequired = errors.New("item product_id is required")
	// Ошибка при некорректном количестве товара (<= 0).
	ErrItemQtyInvalid = errors.New("item quantity must be greater than zero")
	// Ошибка, если цена позиции отрицательная.
	ErrItemPriceInvalid = errors.New("item price must be non-negative")
	// Скидка задаётся в процентах 0..100.
	ErrItemDiscountInvalid = errors.New("item discount must be within 0..100")
	// ErrInvalidStatus — неизвестное значение статуса заказа или оплаты.
	ErrInvalidStatus = errors.New("invalid status")
	// ErrInvalidTransition — переход между статусами запрещён.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrNegativeStock — остаток не может быть отрицательным.
	ErrNegativeStock = errors.New("stock must be non-negative")
	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrProductNotFound возвращается, если товар не найден в каталоге.
	ErrProductNotFound = errors.New("product not found")
	// ErrVariantNotFound — у товара нет ни корневого размера, ни варианта с запрошенным размером.
	ErrVariantNotFound = errors.New("product size not found")
	// ErrOrderVersionConflict сигнализирует о конфликте версий при сохранении.
	ErrOrderVersionConflict = errors.New("order version conflict")
	// ErrDuplicateOrderNumber — номер заказа уже занят.
	ErrDuplicateOrderNumber = errors.New("order number already exists")
	// ErrInsufficientStock — предварительная проверка наличия не пройдена.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrStockConflict — условное списание не выполнилось в момент подтверждения.
	ErrStockConflict = errors.New("stock conflict")
	// ErrTransactionsUnsupported — хранилище не умеет multi-document транзакции.
	ErrTransactionsUnsupported = errors.New("transactions are not supported by the store")
	// ErrInvalidRevenueRange — неизвестная гранулярность или перевёрнутый интервал выручки.
	ErrInvalidRevenueRange = errors.New("invalid revenue range")
	// ErrForbidden — у вызывающего нет нужной роли.
	ErrForbidden = errors.New("forbidden")
	// ErrUnauthenticated — вызывающий не представился.
	ErrUnauthenticated = errors.New("unauthenticated")
)

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict)
}

// IsNotFound покрывает отсутствие заказа, товара или размера.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrOrderNotFound) || errors.Is(err, ErrProductNotFound) || errors.Is(err, ErrVariantNotFound)
}

// IsValidation сообщает, что ошибка вызвана некорректным вводом.
func IsValidation(err error) bool {
	for _, target := range []error{
		ErrBuyerEmailRequired, ErrItemsRequired, ErrProductIDRequired, ErrItemQtyInvalid,
		ErrItemPriceInvalid, ErrItemDiscountInvalid, ErrInvalidStatus, ErrInvalidTransition, ErrNegativeStock,
		ErrInvalidRevenueRange,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// Shortfall описывает одну позицию, которой не хватает на складе.
type Shortfall struct {
	ProductID         string `json:"productId"`
	ItemName          string `json:"itemName"`
	SelectedSize      string `json:"selectedSize,omitempty"`
	RequestedQuantity int    `json:"requestedQuantity"`
	AvailableStock    int    `json:"availableStock"`
}

// ShortfallError возвращается предварительной проверкой наличия и перечисляет все нехватки.
type ShortfallError struct {
	Shortfalls []Shortfall
}

func (e *ShortfallError) Error() string {
	parts := make([]string, 0, len(e.Shortfalls))
	for _, s := range e.Shortfalls {
		parts = append(parts, fmt.Sprintf("%s: requested %d, available %d", describeItem(s.ItemName, s.ProductID, s.SelectedSize), s.RequestedQuantity, s.AvailableStock))
	}
	return fmt.Sprintf("insufficient stock: %s", strings.Join(parts, "; "))
}

func (e *ShortfallError) Unwrap() error { return ErrInsufficientStock }

// ConflictError — позиция, на которой сорвалось условное списание.
type ConflictError struct {
	ProductID    string
	ItemName     string
	SelectedSize string
	Requested    int
	Available    int
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("insufficient stock for %s: requested %d, available %d",
		describeItem(e.ItemName, e.ProductID, e.SelectedSize), e.Requested, e.Available)
}

func (e *ConflictError) Unwrap() error { return ErrStockConflict }

func describeItem(name, productID, size string) string {
	label := name
	if label == "" {
		label = productID
	}
	if size != "" {
		return fmt.Sprintf("%q (size %s)", label, size)
	}
	return fmt.Sprintf("%q", label)
}
