package memory

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/nikola1125/ashila-backend/internal/domain"
)

// Create сохраняет новый заказ, если номер ещё не занят.
func (s *Store) Create(ctx context.Context, order domain.Order) (domain.Order, error) {
	tx, done := s.beginWrite(ctx)
	defer done()

	s.mu.Lock()
	defer s.mu.Unlock()

	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	if _, exists := s.orders[order.ID]; exists {
		return domain.Order{}, domain.ErrOrderVersionConflict
	}
	if _, exists := s.orderNumbers[order.OrderNumber]; exists {
		return domain.Order{}, domain.ErrDuplicateOrderNumber
	}
	// Сохраняем копию, чтобы избежать непредсказуемых мутаций извне.
	stored := order.Clone()
	s.orders[order.ID] = stored
	s.orderNumbers[order.OrderNumber] = order.ID
	id, number := order.ID, order.OrderNumber
	tx.record(func() {
		delete(s.orders, id)
		delete(s.orderNumbers, number)
	})
	return stored.Clone(), nil
}

// Get возвращает заказ или ErrOrderNotFound, если его нет.
func (s *Store) Get(_ context.Context, id string) (domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	order, ok := s.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return order.Clone(), nil
}

// List возвращает заказы по фильтру, ограничивая выборку limit (если >0).
func (s *Store) List(_ context.Context, filter domain.OrderFilter) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]domain.Order, 0, len(s.orders))
	for _, order := range s.orders {
		if filter.BuyerEmail != "" && !strings.EqualFold(order.BuyerEmail, filter.BuyerEmail) {
			continue
		}
		if filter.SellerEmail != "" && !order.HasSeller(filter.SellerEmail) {
			continue
		}
		result = append(result, order.Clone())
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})

	if filter.Limit > 0 && len(result) > filter.Limit {
		result = result[:filter.Limit]
	}

	return result, nil
}

// Save перезаписывает заказ, проверяя версию (optimistic locking).
func (s *Store) Save(ctx context.Context, order domain.Order) error {
	tx, done := s.beginWrite(ctx)
	defer done()

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.orders[order.ID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	if current.Version != order.Version {
		return domain.ErrOrderVersionConflict
	}
	// Инкрементируем версию перед сохранением.
	order.Version++
	s.orders[order.ID] = order.Clone()
	tx.record(func() { s.orders[current.ID] = current })
	return nil
}

// SalesByStatus агрегирует выручку по статусам.
func (s *Store) SalesByStatus(_ context.Context) ([]domain.StatusSales, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byStatus := make(map[domain.OrderStatus]*domain.StatusSales)
	for _, order := range s.orders {
		entry, ok := byStatus[order.Status]
		if !ok {
			entry = &domain.StatusSales{Status: order.Status, Revenue: decimal.Zero}
			byStatus[order.Status] = entry
		}
		entry.Revenue = entry.Revenue.Add(order.Pricing.FinalPrice)
		entry.Count++
	}

	result := make([]domain.StatusSales, 0, len(byStatus))
	for _, entry := range byStatus {
		result = append(result, *entry)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Status < result[j].Status })
	return result, nil
}

// DashboardStats считает выручку и число заказов по всем статусам.
func (s *Store) DashboardStats(_ context.Context) (domain.DashboardStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := domain.DashboardStats{TotalRevenue: decimal.Zero}
	for _, order := range s.orders {
		stats.TotalRevenue = stats.TotalRevenue.Add(order.Pricing.FinalPrice)
		stats.TotalOrders++
		if order.Status == domain.OrderStatusPending {
			stats.PendingOrders++
		}
	}
	return stats, nil
}

// RevenueSeries группирует выручку неотменённых заказов по периодам.
func (s *Store) RevenueSeries(_ context.Context, q domain.RevenueQuery) ([]domain.RevenuePoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	series := domain.NewRevenueSeriesBuilder(q.Granularity)
	for _, order := range s.orders {
		if order.Status == domain.OrderStatusCancelled || !q.Contains(order.CreatedAt) {
			continue
		}
		series.Add(order.CreatedAt, order.Pricing.FinalPrice, 1)
	}
	return series.Points(), nil
}

var _ domain.OrderRepository = (*Store)(nil)
