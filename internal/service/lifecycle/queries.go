package lifecycle

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/nikola1125/ashila-backend/internal/domain"
)

const (
	DefaultLowStockThreshold = 10
	DefaultReportLimit       = 10
	MaxReportLimit           = 50
)

// GetOrder доступен администратору и продавцу, у которого в заказе есть позиции.
func (c *Controller) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	if err := c.requireStaff(ctx); err != nil {
		return domain.Order{}, err
	}
	order, err := c.orders.Get(ctx, orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if err := c.checkSellerScope(ctx, order); err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

// ListQuery — выборка заказов. Непустой BuyerEmail означает публичную историю покупателя.
type ListQuery struct {
	BuyerEmail string
	Limit      int
}

// ListOrders возвращает заказы в пределах видимости вызывающего:
// покупатель видит свои заказы по email, администратор все, продавец только со своими позициями.
func (c *Controller) ListOrders(ctx context.Context, q ListQuery) ([]domain.Order, error) {
	if email := strings.TrimSpace(q.BuyerEmail); email != "" {
		return c.orders.List(ctx, domain.OrderFilter{BuyerEmail: email, Limit: q.Limit})
	}
	switch {
	case c.authz == nil || c.authz.IsCaller(ctx, domain.RoleAdmin):
		return c.orders.List(ctx, domain.OrderFilter{Limit: q.Limit})
	case c.authz.IsCaller(ctx, domain.RoleSeller):
		return c.orders.List(ctx, domain.OrderFilter{SellerEmail: c.authz.CallerEmail(ctx), Limit: q.Limit})
	default:
		return nil, domain.ErrForbidden
	}
}

// InventoryReport возвращает товары, у которых корень или любой вариант не выше threshold.
func (c *Controller) InventoryReport(ctx context.Context, threshold, limit int) ([]domain.Product, error) {
	if err := c.requireAdmin(ctx); err != nil {
		return nil, err
	}
	if threshold < 0 {
		threshold = DefaultLowStockThreshold
	}
	switch {
	case limit <= 0:
		limit = DefaultReportLimit
	case limit > MaxReportLimit:
		limit = MaxReportLimit
	}
	return c.catalog.ListLowStock(ctx, threshold, limit)
}

// SetStock выставляет абсолютный остаток корня или варианта.
func (c *Controller) SetStock(ctx context.Context, productID, size string, stock int) (domain.Product, error) {
	if err := c.requireAdmin(ctx); err != nil {
		return domain.Product{}, err
	}
	if stock < 0 {
		return domain.Product{}, domain.ErrNegativeStock
	}
	product, err := c.catalog.SetStock(ctx, productID, strings.TrimSpace(size), stock)
	if err != nil {
		return domain.Product{}, err
	}
	c.logger.WithField("product_id", productID).WithField("size", size).WithField("stock", stock).Info("stock set")
	return product, nil
}

// SalesReport агрегирует выручку по статусам заказов.
func (c *Controller) SalesReport(ctx context.Context) ([]domain.StatusSales, error) {
	if err := c.requireAdmin(ctx); err != nil {
		return nil, err
	}
	return c.orders.SalesByStatus(ctx)
}

// ListProducts возвращает весь склад; lowStockOnly оставляет товары с остатком
// корня или варианта не выше DefaultLowStockThreshold.
func (c *Controller) ListProducts(ctx context.Context, lowStockOnly bool) ([]domain.Product, error) {
	if err := c.requireAdmin(ctx); err != nil {
		return nil, err
	}
	return c.catalog.ListProducts(ctx, domain.ProductFilter{LowStockOnly: lowStockOnly, Threshold: DefaultLowStockThreshold})
}

// DashboardStats — выручка, число заказов и число pending-заказов.
func (c *Controller) DashboardStats(ctx context.Context) (domain.DashboardStats, error) {
	if err := c.requireAdmin(ctx); err != nil {
		return domain.DashboardStats{}, err
	}
	return c.orders.DashboardStats(ctx)
}

// RevenueQuery — параметры ряда выручки. Даты берутся в UTC, EndDate включается целиком.
type RevenueQuery struct {
	Range     string
	StartDate time.Time
	EndDate   time.Time
}

// Окна по умолчанию, если не задана ни одна дата. Для year окно не ограничено.
var defaultRevenueWindows = map[domain.RevenueGranularity]func(now time.Time) time.Time{
	domain.GranularityDay:   func(now time.Time) time.Time { return now.AddDate(0, 0, -30) },
	domain.GranularityWeek:  func(now time.Time) time.Time { return now.AddDate(0, 0, -84) },
	domain.GranularityMonth: func(now time.Time) time.Time { return now.AddDate(0, -12, 0) },
}

// RevenueSeries группирует выручку неотменённых заказов по дням, неделям, месяцам или годам.
func (c *Controller) RevenueSeries(ctx context.Context, q RevenueQuery) ([]domain.RevenuePoint, error) {
	if err := c.requireAdmin(ctx); err != nil {
		return nil, err
	}
	query, err := c.revenueQuery(q)
	if err != nil {
		return nil, err
	}
	return c.orders.RevenueSeries(ctx, query)
}

func (c *Controller) revenueQuery(q RevenueQuery) (domain.RevenueQuery, error) {
	granularity, err := domain.ParseGranularity(q.Range)
	if err != nil {
		return domain.RevenueQuery{}, err
	}
	query := domain.RevenueQuery{Granularity: granularity}

	if q.StartDate.IsZero() && q.EndDate.IsZero() {
		if window, ok := defaultRevenueWindows[granularity]; ok {
			query.From = window(c.now())
		}
		return query, nil
	}
	if !q.StartDate.IsZero() {
		query.From = startOfDay(q.StartDate)
	}
	if !q.EndDate.IsZero() {
		query.To = startOfDay(q.EndDate).AddDate(0, 0, 1)
	}
	if !query.From.IsZero() && !query.To.IsZero() && !query.From.Before(query.To) {
		return domain.RevenueQuery{}, fmt.Errorf("%w: start date is after end date", domain.ErrInvalidRevenueRange)
	}
	return query, nil
}

func startOfDay(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func (c *Controller) requireAdmin(ctx context.Context) error {
	if c.authz == nil || c.authz.IsCaller(ctx, domain.RoleAdmin) {
		return nil
	}
	return domain.ErrForbidden
}

func (c *Controller) requireStaff(ctx context.Context) error {
	if c.authz == nil || c.authz.IsCaller(ctx, domain.RoleAdmin) || c.authz.IsCaller(ctx, domain.RoleSeller) {
		return nil
	}
	return domain.ErrForbidden
}

// checkSellerScope ограничивает продавца заказами с его позициями.
func (c *Controller) checkSellerScope(ctx context.Context, order domain.Order) error {
	if c.authz == nil || c.authz.IsCaller(ctx, domain.RoleAdmin) {
		return nil
	}
	if order.HasSeller(c.authz.CallerEmail(ctx)) {
		return nil
	}
	return domain.ErrForbidden
}
