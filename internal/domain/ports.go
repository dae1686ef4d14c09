package domain

import "context"

// CatalogRepository — примитивы каталога, на которых построен движок остатков.
type CatalogRepository interface {
	// CreateProduct сохраняет товар; пустой ID назначается хранилищем.
	CreateProduct(ctx context.Context, product Product) (Product, error)
	// GetProduct возвращает товар или ErrProductNotFound.
	GetProduct(ctx context.Context, id string) (Product, error)
	// FindSibling ищет документ группы groupID с корневым размером size.
	FindSibling(ctx context.Context, groupID, size string) (Product, error)
	// DecrementStock списывает qty, только если в loc осталось не меньше qty.
	// false без ошибки означает, что условие не выполнилось.
	DecrementStock(ctx context.Context, loc StockLocation, qty int) (bool, error)
	// IncrementStock возвращает qty в loc. false — позиция исчезла.
	IncrementStock(ctx context.Context, loc StockLocation, qty int) (bool, error)
	// SetStock выставляет абсолютный остаток корня (size пустой или равен корневому) или варианта.
	SetStock(ctx context.Context, productID, size string, stock int) (Product, error)
	// ListLowStock возвращает товары, у которых корень или вариант не выше threshold.
	ListLowStock(ctx context.Context, threshold, limit int) ([]Product, error)
	// ListProducts возвращает товары по фильтру, недавно изменённые первыми.
	ListProducts(ctx context.Context, filter ProductFilter) ([]Product, error)
}

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет новый заказ; пустой ID назначается хранилищем.
	// Занятый номер заказа даёт ErrDuplicateOrderNumber.
	Create(ctx context.Context, order Order) (Order, error)
	// Get возвращает заказ по идентификатору или ErrOrderNotFound, если его нет.
	Get(ctx context.Context, id string) (Order, error)
	// List возвращает заказы по фильтру, новые первыми.
	List(ctx context.Context, filter OrderFilter) ([]Order, error)
	// Save применяет обновления к заказу с учётом optimistic locking.
	Save(ctx context.Context, order Order) error
	// SalesByStatus агрегирует выручку по статусам.
	SalesByStatus(ctx context.Context) ([]StatusSales, error)
	// DashboardStats считает выручку и число заказов по всем статусам.
	DashboardStats(ctx context.Context) (DashboardStats, error)
	// RevenueSeries группирует выручку неотменённых заказов по периодам q.Granularity,
	// периоды по возрастанию.
	RevenueSeries(ctx context.Context, q RevenueQuery) ([]RevenuePoint, error)
}

// Transactor выполняет fn в одной транзакции хранилища.
// Хранилища без multi-document транзакций возвращают ErrTransactionsUnsupported.
type Transactor interface {
	WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// Notifier получает подтверждённый заказ. Ошибки только логируются вызывающей стороной.
type Notifier interface {
	NotifyOrderConfirmed(ctx context.Context, order Order) error
}

// Role — роль вызывающего.
type Role string

const (
	RoleAdmin  Role = "admin"
	RoleSeller Role = "seller"
	RoleUser   Role = "user"
)

// Authorizer отвечает на вопрос «кто вызывает».
type Authorizer interface {
	IsCaller(ctx context.Context, role Role) bool
	CallerEmail(ctx context.Context) string
}
